package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/daemon"
	"murmur/internal/pipeline"
	"murmur/internal/preflight"
	"murmur/internal/queue"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, and queue status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			daemonLines, queueStats := daemonSection(cmd.Context(), cfg, colorize)
			for _, line := range renderSectionHeader("Daemon", colorize) {
				fmt.Fprintln(out, line)
			}
			for _, line := range daemonLines {
				fmt.Fprintln(out, line)
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Checks", colorize) {
				fmt.Fprintln(out, line)
			}
			registry := pipeline.NewProviderRegistry(cfg)
			for _, result := range preflight.RunAll(cmd.Context(), cfg, registry) {
				kind := statusOK
				if !result.Passed {
					kind = statusError
				}
				fmt.Fprintln(out, renderStatusLine(result.Name, kind, result.Detail, colorize))
			}

			fmt.Fprintln(out)
			for _, line := range renderSectionHeader("Queue", colorize) {
				fmt.Fprintln(out, line)
			}
			if queueStats == nil {
				err := ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
					stats, err := store.Stats(cmdCtx)
					if err != nil {
						return err
					}
					queueStats = stats
					return nil
				})
				if err != nil {
					return err
				}
			}
			table := renderTable(
				[]column{{name: "Status"}, {name: "Count", right: true}},
				buildQueueStatusRows(queueStats),
			)
			fmt.Fprintln(out, table)
			return nil
		},
	}
}

// daemonSection renders daemon liveness. The API is the preferred source;
// when it is unreachable the PID file still tells whether a daemon process
// exists. Queue stats come back non-nil only when the API answered, so the
// caller knows whether to fall back to the store.
func daemonSection(ctx context.Context, cfg *config.Config, colorize bool) ([]string, map[queue.Status]int) {
	client, clientErr := newAPIClient(cfg)
	if clientErr == nil && client != nil {
		if status, err := client.Status(ctx); err == nil {
			return daemonLinesFromAPI(status, colorize), parseQueueStats(status.Workflow.QueueStats)
		}
	}

	var lines []string
	pid, pidErr := daemon.ReadPIDFile(daemon.PIDFilePath(cfg))
	alive := pidErr == nil && daemon.ProcessAlive(pid)
	switch {
	case alive && client != nil:
		lines = append(lines, renderStatusLine("Daemon", statusWarn, fmt.Sprintf("running (pid %d), API unreachable", pid), colorize))
	case alive:
		lines = append(lines, renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", pid), colorize))
		lines = append(lines, renderStatusLine("API", statusInfo, "not configured", colorize))
	default:
		lines = append(lines, renderStatusLine("Daemon", statusInfo, "stopped", colorize))
	}
	return lines, nil
}

func daemonLinesFromAPI(status *api.DaemonStatus, colorize bool) []string {
	lines := []string{
		renderStatusLine("Daemon", statusOK, fmt.Sprintf("running (pid %d)", status.PID), colorize),
	}

	workflow := status.Workflow
	switch {
	case workflow.Running && workflow.LastTask != nil && workflow.LastTask.Status == string(queue.StatusProcessing):
		detail := fmt.Sprintf("processing task #%d (%s)", workflow.LastTask.ID, workflow.LastTask.Title)
		lines = append(lines, renderStatusLine("Workflow", statusOK, detail, colorize))
	case workflow.Running:
		lines = append(lines, renderStatusLine("Workflow", statusOK, "idle", colorize))
	default:
		lines = append(lines, renderStatusLine("Workflow", statusWarn, "not running", colorize))
	}

	for _, stage := range workflow.StageHealth {
		if stage.Ready {
			lines = append(lines, renderStatusLine("Stage "+stage.Name, statusOK, "ready", colorize))
		} else {
			lines = append(lines, renderStatusLine("Stage "+stage.Name, statusError, stage.Detail, colorize))
		}
	}
	if lastError := strings.TrimSpace(workflow.LastError); lastError != "" {
		lines = append(lines, renderStatusLine("Last error", statusWarn, lastError, colorize))
	}
	return lines
}

func parseQueueStats(stats map[string]int) map[queue.Status]int {
	if stats == nil {
		return nil
	}
	parsed := make(map[queue.Status]int, len(stats))
	for name, count := range stats {
		if status, ok := queue.ParseStatus(name); ok {
			parsed[status] = count
		}
	}
	return parsed
}
