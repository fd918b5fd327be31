package preflight

import (
	"context"

	"murmur/internal/asr"
	"murmur/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// The registry supplies the provider under check.
func RunAll(ctx context.Context, cfg *config.Config, registry *asr.Registry) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result

	// Staging and log directories (always checked)
	results = append(results, CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	// Output directory (when configured)
	if cfg.Paths.OutputDir != "" {
		results = append(results, CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir))
	}

	// Cache directory
	if cfg.Cache.Enabled {
		results = append(results, CheckDirectoryAccess("Cache directory", cfg.Paths.CacheDir))
	}

	// External tools
	for _, status := range CheckTools(cfg) {
		results = append(results, status.Result())
	}

	// Speech provider
	results = append(results, CheckProvider(ctx, cfg, registry))

	// Optimizer
	if cfg.Optimizer.Enabled {
		results = append(results, CheckOptimizer(ctx, cfg.Optimizer))
	}

	return results
}

// Failed filters results down to the checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}
