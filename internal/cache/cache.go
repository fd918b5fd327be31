package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"murmur/internal/fileutil"
	"murmur/internal/logging"
	"murmur/internal/services"
)

const (
	defaultTTL = 7 * 24 * time.Hour
	metaSuffix = ".meta.json"
	// Minimum free-space ratio before Sweep starts evicting regardless of
	// the size cap (0.20 means prune once the filesystem is 80% full).
	freeSpaceFloor = 0.20
)

// statfsFunc allows tests to stub filesystem stats.
type statfsFunc func(path string) (total uint64, free uint64, err error)

// Options configures a Store.
type Options struct {
	Dir string
	// MaxBytes caps the total payload size; zero or negative disables the
	// size limit.
	MaxBytes int64
	// TTL is the entry lifetime; zero means the 7 day default.
	TTL time.Duration
}

// Meta is the sidecar record written next to each payload.
type Meta struct {
	Key       string    `json:"key"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Language  string    `json:"language,omitempty"`
	Segments  int       `json:"segments,omitempty"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
	// ExpiresAt defaults to StoredAt plus the store TTL; compute callbacks
	// may set it to give an entry its own lifetime.
	ExpiresAt time.Time `json:"expires_at"`
}

// Store reads and writes cache entries under a single directory.
type Store struct {
	dir      string
	maxBytes int64
	ttl      time.Duration
	logger   *slog.Logger
	statfs   statfsFunc
}

// New opens (creating if needed) the cache directory.
func New(opts Options, logger *slog.Logger) (*Store, error) {
	dir := strings.TrimSpace(opts.Dir)
	if dir == "" {
		return nil, fmt.Errorf("%w: cache directory required", services.ErrConfiguration)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cache: create %s: %w", dir, err)
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Store{
		dir:      dir,
		maxBytes: opts.MaxBytes,
		ttl:      ttl,
		logger:   logging.NewComponentLogger(logger, "cache"),
		statfs:   realStatfs,
	}, nil
}

// Dir returns the cache root.
func (s *Store) Dir() string {
	if s == nil {
		return ""
	}
	return s.dir
}

// Load returns the payload stored under key. Missing entries are a plain
// miss; corrupt entries (unreadable sidecar, size mismatch, empty payload)
// are removed and also reported as a miss so the caller recomputes.
func (s *Store) Load(key string) ([]byte, Meta, bool, error) {
	var meta Meta
	if err := validateKey(key); err != nil {
		return nil, meta, false, err
	}
	dataPath := filepath.Join(s.dir, key)
	data, err := os.ReadFile(dataPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, meta, false, nil
	}
	if err != nil {
		return nil, meta, false, fmt.Errorf("cache: read %s: %w", key, err)
	}

	raw, err := os.ReadFile(dataPath + metaSuffix)
	if err == nil {
		err = json.Unmarshal(raw, &meta)
	}
	if err != nil || len(data) == 0 || (meta.SizeBytes > 0 && meta.SizeBytes != int64(len(data))) {
		s.logger.Warn("dropping corrupt cache entry",
			logging.String("cache_key", key),
			logging.Error(err),
		)
		s.removeEntry(key)
		return nil, Meta{}, false, nil
	}
	if !meta.ExpiresAt.IsZero() && time.Now().After(meta.ExpiresAt) {
		s.logger.Debug("cache entry expired",
			logging.String("cache_key", key),
			logging.Duration("age", time.Since(meta.StoredAt)),
		)
		s.removeEntry(key)
		return nil, Meta{}, false, nil
	}
	return data, meta, true, nil
}

// Store writes the payload and its sidecar atomically and returns the
// payload path. The payload lands before the sidecar, so a crash between
// the two reads back as a corrupt entry, never as a partial hit.
func (s *Store) Store(key string, meta Meta, data []byte) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: refusing to cache empty payload", services.ErrValidation)
	}
	s.normalizeMeta(&meta, key, data)

	dataPath := filepath.Join(s.dir, key)
	if err := fileutil.WriteFileAtomic(dataPath, data, 0o644); err != nil {
		return "", fmt.Errorf("cache: write %s: %w", key, err)
	}
	encoded, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("cache: encode sidecar for %s: %w", key, err)
	}
	if err := fileutil.WriteFileAtomic(dataPath+metaSuffix, encoded, 0o644); err != nil {
		return "", fmt.Errorf("cache: write sidecar for %s: %w", key, err)
	}
	return dataPath, nil
}

// GetOrCompute loads the entry for key, or runs compute and persists the
// result before returning it. An interrupted run therefore never repeats
// completed work. Persistence failures degrade to a warning; the computed
// payload is still returned. The hit flag reports whether the payload came
// from disk.
func (s *Store) GetOrCompute(ctx context.Context, key string, compute func(context.Context) ([]byte, Meta, error)) ([]byte, Meta, bool, error) {
	data, meta, ok, err := s.Load(key)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed; recomputing",
			logging.String("cache_key", key),
			logging.Error(err),
		)
	} else if ok {
		return data, meta, true, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, Meta{}, false, err
	}
	data, meta, err = compute(ctx)
	if err != nil {
		return nil, Meta{}, false, err
	}
	s.normalizeMeta(&meta, key, data)
	if _, storeErr := s.Store(key, meta, data); storeErr != nil {
		s.logger.WarnContext(ctx, "cache store failed; result not persisted",
			logging.String("cache_key", key),
			logging.Error(storeErr),
		)
	}
	return data, meta, false, nil
}

// Remove deletes the entry for key. Missing entries are not an error.
func (s *Store) Remove(key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.removeEntry(key)
	return nil
}

func (s *Store) removeEntry(key string) {
	dataPath := filepath.Join(s.dir, key)
	for _, path := range []string{dataPath, dataPath + metaSuffix} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cache entry removal failed",
				logging.String("source_file", path),
				logging.Error(err),
			)
		}
	}
}

func (s *Store) normalizeMeta(meta *Meta, key string, data []byte) {
	meta.Key = key
	meta.SizeBytes = int64(len(data))
	if meta.StoredAt.IsZero() {
		meta.StoredAt = time.Now().UTC()
	}
	if meta.ExpiresAt.IsZero() {
		meta.ExpiresAt = meta.StoredAt.Add(s.ttl)
	}
}

func validateKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: cache key required", services.ErrValidation)
	}
	if strings.ContainsAny(key, "/\\") || strings.Contains(key, "..") || strings.HasPrefix(key, ".") {
		return fmt.Errorf("%w: cache key %q must be a plain file name", services.ErrValidation, key)
	}
	return nil
}
