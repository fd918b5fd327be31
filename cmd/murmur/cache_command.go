package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/cache"
	"murmur/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the transcript cache",
	}

	cacheCmd.AddCommand(newCacheStatsCommand(ctx))
	cacheCmd.AddCommand(newCacheSweepCommand(ctx))

	return cacheCmd
}

func newCacheStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show transcript cache usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := cacheStore(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Entries: %d\n", stats.Entries)
			fmt.Fprintf(out, "Size:    %s / %s\n", humanBytes(stats.TotalBytes), humanBytes(stats.MaxBytes))
			fmt.Fprintf(out, "Disk:    %s free (%.1f%%)\n", humanBytes(int64(stats.FreeBytes)), stats.FreeRatio*100)
			fmt.Fprintf(out, "TTL:     %s\n", stats.TTL)
			printCacheEntries(out, stats.EntrySummaries)
			return nil
		},
	}
}

func printCacheEntries(out io.Writer, entries []cache.EntrySummary) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "Cached transcripts: none")
		return
	}
	const stampLayout = "2006-01-02 15:04"
	fmt.Fprintln(out, "Cached transcripts:")
	for _, entry := range entries {
		label := strings.TrimSpace(entry.Provider)
		if entry.Model != "" {
			label += "/" + entry.Model
		}
		if label == "" {
			label = "(unknown)"
		}
		if entry.Language != "" {
			label += " " + entry.Language
		}
		stored := "unknown"
		if !entry.StoredAt.IsZero() {
			stored = entry.StoredAt.UTC().Format(stampLayout)
		}
		fmt.Fprintf(out, "  - %s, %d segments, %s, stored %s (%s)\n",
			label,
			entry.Segments,
			humanBytes(entry.SizeBytes),
			stored,
			formatFingerprint(entry.Key),
		)
	}
}

func newCacheSweepCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Evict expired and over-budget cache entries now",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, warn, err := cacheStore(ctx)
			if warn != "" {
				fmt.Fprintln(cmd.OutOrStdout(), warn)
			}
			if err != nil || store == nil {
				return err
			}

			result, err := store.Sweep(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if result.Removed == 0 {
				fmt.Fprintf(out, "No cache entries removed (%d scanned)\n", result.Scanned)
				return nil
			}
			fmt.Fprintf(out, "Removed %d entries (%s), %d remaining (%s)\n",
				result.Removed,
				humanBytes(result.RemovedBytes),
				result.Remaining,
				humanBytes(result.RemainingBytes),
			)
			return nil
		},
	}
}

func cacheStore(ctx *commandContext) (*cache.Store, string, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, "", err
	}
	if cfg == nil || !cfg.Cache.Enabled {
		return nil, "Transcript cache is disabled (set enabled = true under [cache])", nil
	}
	if strings.TrimSpace(cfg.Paths.CacheDir) == "" {
		return nil, "Cache dir is not configured", nil
	}
	logger, err := logging.New(logging.Options{Level: "info", Format: "console"})
	if err != nil {
		return nil, "", fmt.Errorf("init logger: %w", err)
	}
	store, err := openCacheStore(cfg, logging.NewComponentLogger(logger, "cli-cache"))
	if err != nil {
		return nil, "", err
	}
	return store, "", nil
}
