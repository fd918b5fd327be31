package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"murmur/internal/asr"
	"murmur/internal/cache"
	"murmur/internal/queue"
	"murmur/internal/textutil"
)

func newQueueAddCommand(ctx *commandContext) *cobra.Command {
	var (
		addProvider  string
		addTitle     string
		addClipName  string
		addClipStart float64
		addClipEnd   float64
	)

	cmd := &cobra.Command{
		Use:   "add <path>...",
		Short: "Add media files or directories to the queue",
		Long: "Add media files to the transcription queue. Directory arguments are\n" +
			"scanned recursively for known media extensions. Files already queued\n" +
			"in a non-terminal state are skipped.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			provider := strings.TrimSpace(addProvider)
			if provider == "" {
				provider = cfg.Transcription.Provider
			}
			kind, err := asr.ParseKind(provider)
			if err != nil {
				return err
			}
			provider = kind.String()

			clipStartSet := cmd.Flags().Changed("clip-start")
			clipEndSet := cmd.Flags().Changed("clip-end")
			if clipStartSet != clipEndSet {
				return errors.New("clip tasks require both --clip-start and --clip-end")
			}
			if clipStartSet {
				if len(args) != 1 {
					return errors.New("clip tasks accept exactly one file argument")
				}
				return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
					return addClip(cmdCtx, cmd, store, args[0], addTitle, addClipName, addClipStart, addClipEnd, provider)
				})
			}

			files := make([]string, 0, len(args))
			for _, arg := range args {
				expanded, err := collectMediaFiles(arg)
				if err != nil {
					return err
				}
				files = append(files, expanded...)
			}
			if len(files) == 0 {
				return errors.New("no media files found")
			}
			if strings.TrimSpace(addTitle) != "" && len(files) > 1 {
				return errors.New("--title applies to a single file")
			}

			return ctx.withStore(cmd, func(cmdCtx context.Context, store *queue.Store) error {
				for _, file := range files {
					if err := addWholeFile(cmdCtx, cmd, store, file, addTitle, provider); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&addProvider, "provider", "p", "", "Speech provider for these tasks (defaults to config)")
	cmd.Flags().StringVarP(&addTitle, "title", "t", "", "Override the derived title (single file only)")
	cmd.Flags().StringVar(&addClipName, "clip-name", "", "Label for the clip, folded into the output name")
	cmd.Flags().Float64Var(&addClipStart, "clip-start", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&addClipEnd, "clip-end", 0, "Clip end in seconds")
	return cmd
}

func addWholeFile(ctx context.Context, cmd *cobra.Command, store *queue.Store, path, title, provider string) error {
	out := cmd.OutOrStdout()

	fingerprint, err := cache.Fingerprint(path)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", path, err)
	}
	existing, err := store.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Status.IsTerminal() {
		fmt.Fprintf(out, "Skipping %s: already queued as task #%d\n", path, existing.ID)
		return nil
	}

	if strings.TrimSpace(title) == "" {
		title = textutil.DeriveTitle(path)
	}
	task, err := store.NewTask(ctx, path, title, provider, fingerprint)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Queued task #%d (%s)\n", task.ID, task.DisplayName())
	return nil
}

// addClip queues a sub-range of a single file. Clips skip the duplicate
// check so several ranges of the same source can coexist.
func addClip(ctx context.Context, cmd *cobra.Command, store *queue.Store, path, title, clipName string, clipStart, clipEnd float64, provider string) error {
	abs, err := collectMediaFiles(path)
	if err != nil {
		return err
	}
	if len(abs) != 1 {
		return fmt.Errorf("clip source must be a single file: %s", path)
	}
	source := abs[0]
	if info, err := os.Stat(source); err != nil || info.IsDir() {
		return fmt.Errorf("clip source must be a regular file: %s", source)
	}

	fingerprint, err := cache.Fingerprint(source)
	if err != nil {
		return fmt.Errorf("fingerprint %s: %w", source, err)
	}
	if strings.TrimSpace(title) == "" {
		title = textutil.DeriveTitle(source)
	}
	task, err := store.NewClipTask(ctx, source, title, clipName, clipStart, clipEnd, provider, fingerprint)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Queued task #%d (%s, %s)\n", task.ID, task.DisplayName(), formatClipRange(task))
	return nil
}
