package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"murmur/internal/asr"
	"murmur/internal/logging"
	"murmur/internal/pipeline"
	"murmur/internal/textutil"
)

func newTranscribeCommand(ctx *commandContext) *cobra.Command {
	var (
		outputPath string
		provider   string
		language   string
		track      int
		clipStart  float64
		clipEnd    float64
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe <file>",
		Short: "Transcribe one file without the queue",
		Long:  "Run the transcription pipeline directly and write an SRT file.\nThe queue and daemon are not involved; progress prints to the terminal.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			source, err := filepath.Abs(args[0])
			if err != nil {
				return fmt.Errorf("resolve path: %w", err)
			}
			if info, err := os.Stat(source); err != nil {
				return fmt.Errorf("source file %s is missing or unreadable", source)
			} else if info.IsDir() {
				return fmt.Errorf("%s is a directory; transcribe takes a single file", source)
			}

			providerName := strings.TrimSpace(provider)
			if providerName == "" {
				providerName = cfg.Transcription.Provider
			}
			kind, err := asr.ParseKind(providerName)
			if err != nil {
				return err
			}
			registry := pipeline.NewProviderRegistry(cfg)
			asrProvider, err := registry.Get(kind)
			if err != nil {
				return err
			}

			clipStartSet := cmd.Flags().Changed("clip-start")
			clipEndSet := cmd.Flags().Changed("clip-end")
			if clipStartSet != clipEndSet {
				return errors.New("clip ranges require both --clip-start and --clip-end")
			}
			var clipStartPtr, clipEndPtr *float64
			if clipStartSet {
				clipStartPtr, clipEndPtr = &clipStart, &clipEnd
			}

			logger := logging.NewNop()
			if verbose {
				logger, err = logging.New(logging.Options{
					Level:            "debug",
					Format:           "console",
					OutputPaths:      []string{"stderr"},
					ErrorOutputPaths: []string{"stderr"},
				})
				if err != nil {
					return fmt.Errorf("init logger: %w", err)
				}
			}

			pipe, err := buildPipeline(cfg, logger)
			if err != nil {
				return err
			}

			opts := pipeline.OptionsFromConfig(cfg)
			if strings.TrimSpace(language) != "" {
				opts.Language = language
			}
			if cmd.Flags().Changed("track") {
				opts.AudioTrack = track
			}

			out := cmd.OutOrStdout()
			sampler := logging.NewProgressSampler(5)
			hooks := pipeline.Hooks{
				Progress: func(percent float64, message string) {
					if !sampler.ShouldLog(percent, "", message) && percent < 100 {
						return
					}
					fmt.Fprintf(out, "%5.1f%%  %s\n", percent, message)
				},
			}
			if verbose {
				hooks.Log = func(line string) {
					fmt.Fprintln(cmd.ErrOrStderr(), line)
				}
			}

			result, err := pipe.Generate(cmd.Context(), pipeline.Request{
				Source:     source,
				Title:      textutil.DeriveTitle(source),
				ClipStart:  clipStartPtr,
				ClipEnd:    clipEndPtr,
				Provider:   asrProvider,
				OutputPath: resolveTranscribeOutput(outputPath, source, clipStartPtr, clipEndPtr),
				WorkDir:    cfg.Paths.StagingDir,
				Options:    opts,
				Hooks:      hooks,
			})
			if err != nil {
				return err
			}

			printTranscribeResult(out, result)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Subtitle output path (defaults beside the source)")
	cmd.Flags().StringVarP(&provider, "provider", "p", "", "Speech provider (defaults to config)")
	cmd.Flags().StringVarP(&language, "language", "l", "", "Language hint, e.g. en (defaults to config)")
	cmd.Flags().IntVar(&track, "track", 0, "Audio track index to transcribe")
	cmd.Flags().Float64Var(&clipStart, "clip-start", 0, "Clip start in seconds")
	cmd.Flags().Float64Var(&clipEnd, "clip-end", 0, "Clip end in seconds")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline internals to stderr")
	return cmd
}

// resolveTranscribeOutput derives the SRT path when --output is not given:
// beside the source, with the clip range folded into the name.
func resolveTranscribeOutput(flagValue, source string, clipStart, clipEnd *float64) string {
	if strings.TrimSpace(flagValue) != "" {
		return flagValue
	}
	base := strings.TrimSuffix(source, filepath.Ext(source))
	if clipStart != nil && clipEnd != nil {
		base = fmt.Sprintf("%s.clip-%d-%d", base, int(*clipStart), int(*clipEnd))
	}
	return base + ".srt"
}

func printTranscribeResult(out io.Writer, result *pipeline.Result) {
	fmt.Fprintf(out, "Subtitles written to %s\n", result.OutputPath)
	fmt.Fprintf(out, "  %d segments, %d windows, %.1fs of audio in %s\n",
		result.SegmentCount, result.Windows, result.RangeSeconds, result.Elapsed.Round(100*time.Millisecond))
	details := make([]string, 0, 4)
	details = append(details, "provider "+result.Provider)
	if result.Language != "" {
		details = append(details, "language "+result.Language)
	}
	if result.CacheHit {
		details = append(details, "from cache")
	}
	if result.Optimized {
		details = append(details, "optimized")
	}
	fmt.Fprintf(out, "  %s\n", strings.Join(details, ", "))
	for _, issue := range result.Issues {
		fmt.Fprintf(out, "  warning: %s\n", issue)
	}
}
