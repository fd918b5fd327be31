package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"murmur/internal/asr"
	"murmur/internal/config"
	"murmur/internal/optimizer"
)

// healthCheckTimeout bounds a single provider or optimizer health call.
const healthCheckTimeout = 30 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if strings.TrimSpace(path) == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckProvider verifies the configured speech provider builds and passes its
// health check. Remote kinds make one authenticated request; local kinds
// resolve the binary and model without running them.
func CheckProvider(ctx context.Context, cfg *config.Config, registry *asr.Registry) Result {
	const name = "Speech provider"

	if cfg == nil {
		return Result{Name: name, Detail: "no configuration"}
	}
	kind, err := asr.ParseKind(cfg.Transcription.Provider)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	provider, err := registry.Get(kind)
	if err != nil {
		return Result{Name: name, Detail: summarizeHealthError(err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := provider.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeHealthError(err)}
	}
	return Result{Name: name, Passed: true, Detail: provider.Name()}
}

// CheckOptimizer verifies that the optimizer endpoint accepts the configured
// key and model. It uses a 30-second timeout and a single attempt.
func CheckOptimizer(ctx context.Context, cfg config.Optimizer) Result {
	const name = "Optimizer"

	if !cfg.Enabled {
		return Result{Name: name, Passed: true, Detail: "disabled"}
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	client, err := optimizer.New(optimizer.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.Model,
		Referer:        cfg.Referer,
		Title:          cfg.Title,
		TimeoutSeconds: cfg.TimeoutSeconds,
	})
	if err != nil {
		return Result{Name: name, Detail: summarizeHealthError(err)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeHealthError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// summarizeHealthError produces a human-readable summary for health check failures.
func summarizeHealthError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "health check timed out (endpoint unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "health check timed out (endpoint unreachable)"
	}
	return err.Error()
}
