package main

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"murmur/internal/cache"
	"murmur/internal/config"
	"murmur/internal/optimizer"
	"murmur/internal/pipeline"
)

// mediaFileExtensions lists the container and audio formats queue add accepts.
// ffmpeg decodes anything on this list to 16 kHz mono WAV.
var mediaFileExtensions = map[string]struct{}{
	".mkv":  {},
	".mp4":  {},
	".m4v":  {},
	".avi":  {},
	".mov":  {},
	".webm": {},
	".mp3":  {},
	".m4a":  {},
	".m4b":  {},
	".aac":  {},
	".flac": {},
	".ogg":  {},
	".opus": {},
	".wav":  {},
}

func isMediaFile(path string) bool {
	_, ok := mediaFileExtensions[strings.ToLower(filepath.Ext(path))]
	return ok
}

// collectMediaFiles expands a file or directory argument into the sorted list
// of media files underneath it. A direct file argument bypasses the extension
// filter so unusual names can still be queued explicitly.
func collectMediaFiles(path string) ([]string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path does not exist: %s", abs)
		}
		return nil, fmt.Errorf("inspect path: %w", err)
	}
	if !info.IsDir() {
		return []string{abs}, nil
	}

	var files []string
	walkErr := filepath.WalkDir(abs, func(entry string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if isMediaFile(entry) {
			files = append(files, entry)
		}
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("scan directory %s: %w", abs, walkErr)
	}
	sort.Strings(files)
	return files, nil
}

// parseTaskIDs converts command arguments into task identifiers.
func parseTaskIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid task id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// openCacheStore builds the transcript cache from configuration.
func openCacheStore(cfg *config.Config, logger *slog.Logger) (*cache.Store, error) {
	store, err := cache.New(cache.Options{
		Dir:      cfg.Paths.CacheDir,
		MaxBytes: int64(cfg.Cache.MaxGiB) * 1024 * 1024 * 1024,
		TTL:      time.Duration(cfg.Cache.TTLDays) * 24 * time.Hour,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open transcript cache: %w", err)
	}
	return store, nil
}

// buildPipeline assembles the transcription pipeline with the cache and
// optimizer the configuration enables.
func buildPipeline(cfg *config.Config, logger *slog.Logger) (*pipeline.Pipeline, error) {
	opts := []pipeline.Option{pipeline.WithLogger(logger)}
	if cfg.Cache.Enabled {
		store, err := openCacheStore(cfg, logger)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithCache(store))
	}
	if cfg.Optimizer.Enabled {
		client, err := optimizer.New(optimizer.Config{
			APIKey:         cfg.Optimizer.APIKey,
			BaseURL:        cfg.Optimizer.BaseURL,
			Model:          cfg.Optimizer.Model,
			Referer:        cfg.Optimizer.Referer,
			Title:          cfg.Optimizer.Title,
			TimeoutSeconds: cfg.Optimizer.TimeoutSeconds,
		})
		if err != nil {
			return nil, fmt.Errorf("configure optimizer: %w", err)
		}
		opts = append(opts, pipeline.WithOptimizer(client))
	}
	return pipeline.New(cfg, opts...), nil
}

func humanBytes(v int64) string {
	const unit = 1024
	if v < unit {
		return fmt.Sprintf("%d B", v)
	}
	div := int64(unit)
	exp := 0
	for n := v / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	value := float64(v) / float64(div)
	return fmt.Sprintf("%.1f %ciB", value, "KMGTPEZY"[exp])
}
