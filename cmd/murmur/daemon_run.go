package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/asr"
	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/preflight"
	"murmur/internal/queue"
	"murmur/internal/workflow"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the murmur daemon",
	}
	cmd.AddCommand(newDaemonRunCommand(ctx))
	return cmd
}

func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the daemon in the foreground",
		Long:  "Run the workflow manager and HTTP API in the foreground until interrupted.\nIntended for direct use or as a systemd service ExecStart.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemonProcess(cmd.Context(), ctx)
		},
	}
}

func runDaemonProcess(cmdCtx context.Context, ctx *commandContext) error {
	if ctx == nil {
		return fmt.Errorf("command context is required")
	}

	signalCtx, cancel := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := ctx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("murmur-%s.log", runID))
	eventsPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("murmur-%s.events", runID))
	logHub := logging.NewStreamHub(4096)
	eventArchive, archiveErr := logging.NewEventArchive(eventsPath)
	if archiveErr != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize log archive: %v\n", archiveErr)
	} else if eventArchive != nil {
		logHub.AddSink(eventArchive)
		defer eventArchive.Close()
	}
	logger, err := logging.New(logging.Options{
		Level:            cfg.Logging.Level,
		Format:           cfg.Logging.Format,
		OutputPaths:      []string{"stdout", logPath},
		ErrorOutputPaths: []string{"stderr", logPath},
		Stream:           logHub,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update murmur.log link: %v\n", err)
	}
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "murmur-*.log", Exclude: []string{logPath}},
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "murmur-*.events", Exclude: []string{eventsPath}},
	)

	registry := pipeline.NewProviderRegistry(cfg)
	if err := runPreflightGate(signalCtx, cfg, registry, logger); err != nil {
		return err
	}

	store, err := queue.Open(cfg)
	if err != nil {
		logger.Error("open queue store", logging.Error(err))
		return err
	}
	defer store.Close()

	if reset, err := store.ResetStuckProcessing(signalCtx); err != nil {
		logger.Warn("reset stuck tasks", logging.Error(err))
	} else if reset > 0 {
		logger.Info("reset stuck processing tasks", logging.Int64("count", reset))
	}

	pipe, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	handler := pipeline.NewStageHandler(cfg, store, registry, pipe, logger)
	manager := workflow.NewManager(cfg, store, handler, logger)

	var server *api.Server
	if strings.TrimSpace(cfg.Paths.APIBind) != "" {
		server = api.NewServer(cfg, store, manager, logHub, logger)
	}

	d, err := daemon.New(cfg, store, logger, manager, server)
	if err != nil {
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	if err := d.Start(signalCtx); err != nil {
		return err
	}
	if addr := d.APIAddr(); addr != "" {
		logger.Info("api listening", logging.String("addr", addr))
	}

	<-signalCtx.Done()
	logger.Info("murmur daemon shutting down")
	return nil
}

// runPreflightGate logs every check result and refuses startup when any
// check fails. The daemon never accepts tasks over a missing binary or a
// bad credential.
func runPreflightGate(ctx context.Context, cfg *config.Config, registry *asr.Registry, logger *slog.Logger) error {
	results := preflight.RunAll(ctx, cfg, registry)
	for _, res := range results {
		if res.Passed {
			logger.Info("preflight check passed",
				logging.String("check", res.Name),
				logging.String("detail", res.Detail))
		} else {
			logger.Error("preflight check failed",
				logging.String("check", res.Name),
				logging.String("detail", res.Detail))
		}
	}
	if failed := preflight.Failed(results); len(failed) > 0 {
		names := make([]string, 0, len(failed))
		for _, res := range failed {
			names = append(names, res.Name)
		}
		return fmt.Errorf("preflight failed: %s", strings.Join(names, ", "))
	}
	return nil
}

func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, "murmur.log")
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}
