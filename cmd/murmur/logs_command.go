package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/logging"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Display daemon logs",
		Long:  "Tail the daemon log stream over the HTTP API. When the daemon is not\nrunning, the most recent log file is read instead (follow requires the daemon).",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if follow {
				if client == nil {
					return errors.New("log following requires api_bind to be configured")
				}
				err := client.StreamLogs(cmd.Context(), func(evt logging.LogEvent) error {
					fmt.Fprintln(out, formatLogEvent(evt))
					return nil
				})
				return daemonDownHint(err)
			}

			if client != nil {
				resp, err := client.LogsTail(cmd.Context(), lines)
				if err == nil {
					if len(resp.Events) == 0 {
						fmt.Fprintln(out, "No log entries available")
						return nil
					}
					for _, evt := range resp.Events {
						fmt.Fprintln(out, formatLogEvent(evt))
					}
					return nil
				}
				if !errors.Is(err, errAPIUnavailable) {
					return err
				}
			}
			return printLogFileTail(cmd, cfg.Paths.LogDir, lines)
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of entries to show (0 for all buffered)")
	return cmd
}

// printLogFileTail reads the murmur.log pointer left by the last daemon run.
func printLogFileTail(cmd *cobra.Command, logDir string, limit int) error {
	path := filepath.Join(logDir, "murmur.log")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
			return nil
		}
		return fmt.Errorf("read log file %s: %w", path, err)
	}
	text := strings.TrimRight(string(data), "\n")
	if text == "" {
		fmt.Fprintln(cmd.OutOrStdout(), "No log entries available")
		return nil
	}
	entries := strings.Split(text, "\n")
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	for _, entry := range entries {
		fmt.Fprintln(cmd.OutOrStdout(), entry)
	}
	return nil
}

func formatLogEvent(evt logging.LogEvent) string {
	ts := evt.Timestamp.Format("2006-01-02 15:04:05")
	level := strings.ToUpper(strings.TrimSpace(evt.Level))
	if level == "" {
		level = "INFO"
	}
	parts := []string{ts, level}
	if component := strings.TrimSpace(evt.Component); component != "" {
		parts = append(parts, fmt.Sprintf("[%s]", component))
	}
	line := strings.Join(parts, " ")
	if subject := composeSubject(evt.TaskID, evt.Stage); subject != "" {
		line += " " + subject
	}
	if message := strings.TrimSpace(evt.Message); message != "" {
		line += " - " + message
	}
	if provider := strings.TrimSpace(evt.Provider); provider != "" {
		line += " (" + provider + ")"
	}
	if len(evt.Fields) == 0 {
		return line
	}
	keys := make([]string, 0, len(evt.Fields))
	for key := range evt.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	builder := strings.Builder{}
	builder.WriteString(line)
	for _, key := range keys {
		value := strings.TrimSpace(evt.Fields[key])
		if value == "" {
			continue
		}
		builder.WriteString("\n    - ")
		builder.WriteString(key)
		builder.WriteString(": ")
		builder.WriteString(value)
	}
	return builder.String()
}

func composeSubject(taskID int64, stage string) string {
	stage = strings.TrimSpace(stage)
	switch {
	case taskID > 0 && stage != "":
		return fmt.Sprintf("Task #%d (%s)", taskID, stage)
	case taskID > 0:
		return fmt.Sprintf("Task #%d", taskID)
	default:
		return stage
	}
}
