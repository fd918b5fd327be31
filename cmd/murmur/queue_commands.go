package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the task queue",
	}

	queueCmd.AddCommand(newQueueAddCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueClearCompletedCommand(ctx))
	queueCmd.AddCommand(newQueueResetStuckCommand(ctx))
	queueCmd.AddCommand(newQueueStatsCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatusFilters(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				tasks, err := store.List(cmdCtx, statuses...)
				if err != nil {
					return err
				}
				if len(tasks) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				table := renderTable(
					[]column{{name: "ID", right: true}, {name: "Title"}, {name: "Status"}, {name: "Provider"}, {name: "Progress"}, {name: "Created"}},
					buildQueueListRows(tasks),
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by task status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <taskID>",
		Short: "Show one task in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				task, err := store.GetByID(cmdCtx, ids[0])
				if err != nil {
					return err
				}
				if task == nil {
					return fmt.Errorf("task %d not found", ids[0])
				}
				printTaskDetail(cmd.OutOrStdout(), task)
				return nil
			})
		},
	}
}

func printTaskDetail(out io.Writer, task *queue.Task) {
	fmt.Fprintf(out, "Task #%d\n", task.ID)
	field := func(label, value string) {
		if strings.TrimSpace(value) == "" {
			return
		}
		fmt.Fprintf(out, "  %-13s %s\n", label+":", value)
	}
	field("Title", task.Title)
	field("Source", task.SourcePath)
	if task.IsClip() {
		clip := strings.TrimSpace(task.ClipName)
		if clip == "" {
			clip = "clip"
		}
		field("Clip", fmt.Sprintf("%s (%s)", clip, formatClipRange(task)))
	}
	field("Provider", task.Provider)
	field("Status", formatStatusLabel(string(task.Status)))
	if task.IsProcessing() {
		field("Progress", formatProgress(task))
		field("Message", task.ProgressMessage)
	}
	field("Output", task.OutputPath)
	field("Error", task.ErrorMessage)
	if task.NeedsReview {
		reason := strings.TrimSpace(task.ReviewReason)
		if reason == "" {
			reason = "flagged"
		}
		field("Review", reason)
	}
	field("Fingerprint", formatFingerprint(task.Fingerprint))
	field("Created", formatDisplayTime(task.CreatedAt))
	field("Updated", formatDisplayTime(task.UpdatedAt))
	if task.LastHeartbeat != nil {
		field("Heartbeat", formatDisplayTime(*task.LastHeartbeat))
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [taskID...]",
		Short: "Re-queue failed tasks",
		Long:  "Without arguments, every failed task returns to pending.\nWith task IDs, failed and cancelled tasks return to pending.",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				out := cmd.OutOrStdout()
				if len(ids) == 0 {
					updated, err := store.Retry(cmdCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Retried %d failed tasks\n", updated)
					return nil
				}

				for _, id := range ids {
					task, err := store.GetByID(cmdCtx, id)
					if err != nil {
						return err
					}
					if task == nil {
						fmt.Fprintf(out, "Task %d not found\n", id)
						continue
					}
					if task.Status != queue.StatusFailed && task.Status != queue.StatusCancelled {
						fmt.Fprintf(out, "Task %d is not retryable (status %s)\n", id, task.Status)
						continue
					}
					if _, err := store.Retry(cmdCtx, id); err != nil {
						return err
					}
					fmt.Fprintf(out, "Task %d reset for retry\n", id)
				}
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <taskID>...",
		Short: "Remove tasks from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseTaskIDs(args)
			if err != nil {
				return err
			}
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				out := cmd.OutOrStdout()
				for _, id := range ids {
					removed, err := store.Remove(cmdCtx, id)
					if err != nil {
						return err
					}
					if removed {
						fmt.Fprintf(out, "Task %d removed\n", id)
					} else {
						fmt.Fprintf(out, "Task %d not found\n", id)
					}
				}
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearCompleted bool
	var clearFailed bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove tasks in bulk",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearCompleted && clearFailed {
				return errors.New("specify only one of --completed or --failed")
			}
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				out := cmd.OutOrStdout()
				switch {
				case clearCompleted:
					removed, err := store.ClearCompleted(cmdCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d completed tasks\n", removed)
				case clearFailed:
					removed, err := store.ClearFailed(cmdCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d failed tasks\n", removed)
				default:
					removed, err := store.Clear(cmdCtx)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Cleared %d queue tasks\n", removed)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&clearCompleted, "completed", false, "Remove only completed tasks")
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Remove only failed tasks")
	return cmd
}

func newQueueClearCompletedCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-completed",
		Short: "Remove completed tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				removed, err := store.ClearCompleted(cmdCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d completed tasks\n", removed)
				return nil
			})
		},
	}
}

func newQueueResetStuckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-stuck",
		Short: "Return stale in-flight tasks to pending",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				updated, err := store.ResetStuckProcessing(cmdCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d tasks\n", updated)
				return nil
			})
		},
	}
}

func newQueueStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show task counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				stats, err := store.Stats(cmdCtx)
				if err != nil {
					return err
				}
				table := renderTable(
					[]column{{name: "Status"}, {name: "Count", right: true}},
					buildQueueStatusRows(stats),
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue health summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				health, err := store.Health(cmdCtx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Total: %d\nPending: %d\nProcessing: %d\nCompleted: %d\nFailed: %d\nCancelled: %d\n",
					health.Total,
					health.Pending,
					health.Processing,
					health.Completed,
					health.Failed,
					health.Cancelled,
				)
				return nil
			})
		},
	}
}

// parseStatusFilters validates list filters against the known statuses.
func parseStatusFilters(values []string) ([]queue.Status, error) {
	if len(values) == 0 {
		return nil, nil
	}
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			return nil, fmt.Errorf("invalid status %q (valid: %s)", value, knownStatusList())
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}

func knownStatusList() string {
	all := queue.AllStatuses()
	names := make([]string, 0, len(all))
	for _, status := range all {
		names = append(names, string(status))
	}
	return strings.Join(names, ", ")
}
