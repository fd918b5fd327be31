package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"murmur/internal/logging"
)

type cacheEntry struct {
	key       string
	dataPath  string
	sizeBytes int64
	storedAt  time.Time
	meta      Meta
	corrupt   bool
}

// SweepResult reports what a sweep removed and what remains.
type SweepResult struct {
	Scanned        int   `json:"scanned"`
	Removed        int   `json:"removed"`
	RemovedBytes   int64 `json:"removed_bytes"`
	Remaining      int   `json:"remaining"`
	RemainingBytes int64 `json:"remaining_bytes"`
}

// Stats describes current cache usage.
type Stats struct {
	Entries        int            `json:"entries"`
	TotalBytes     int64          `json:"total_bytes"`
	MaxBytes       int64          `json:"max_bytes"`
	TTL            time.Duration  `json:"ttl"`
	FreeBytes      uint64         `json:"free_bytes"`
	TotalFSBytes   uint64         `json:"total_fs_bytes"`
	FreeRatio      float64        `json:"free_ratio"`
	EntrySummaries []EntrySummary `json:"entry_summaries"`
}

// EntrySummary surfaces human-friendly details about a cache entry so the
// CLI can show what is currently stored.
type EntrySummary struct {
	Key       string    `json:"key"`
	SizeBytes int64     `json:"size_bytes"`
	StoredAt  time.Time `json:"stored_at"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	Language  string    `json:"language,omitempty"`
	Segments  int       `json:"segments,omitempty"`
}

// Sweep removes corrupt, expired, and over-budget entries, oldest first,
// and keeps evicting while the filesystem sits under the free-space floor.
func (s *Store) Sweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	if s == nil {
		return result, nil
	}

	entries, err := s.scan()
	if err != nil {
		return result, err
	}
	result.Scanned = len(entries)

	now := time.Now()
	kept := entries[:0]
	for _, entry := range entries {
		expiresAt := entry.meta.ExpiresAt
		if expiresAt.IsZero() {
			expiresAt = entry.storedAt.Add(s.ttl)
		}
		switch {
		case entry.corrupt:
			s.evict(ctx, entry, &result, "corrupt")
		case now.After(expiresAt):
			s.evict(ctx, entry, &result, "expired")
		default:
			kept = append(kept, entry)
		}
	}

	var total int64
	for _, entry := range kept {
		total += entry.sizeBytes
	}
	if s.maxBytes > 0 {
		for len(kept) > 0 && total > s.maxBytes {
			total -= kept[0].sizeBytes
			s.evict(ctx, kept[0], &result, "over_size_budget")
			kept = kept[1:]
		}
	}

	for len(kept) > 0 {
		ok, err := s.freeSpaceOK()
		if err != nil {
			return result, err
		}
		if ok {
			break
		}
		total -= kept[0].sizeBytes
		s.evict(ctx, kept[0], &result, "low_free_space")
		kept = kept[1:]
	}

	result.Remaining = len(kept)
	result.RemainingBytes = total
	return result, nil
}

// Stats returns current cache usage and filesystem free-space info. Entry
// summaries are listed newest first.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	if s == nil {
		return stats, nil
	}
	entries, err := s.scan()
	if err != nil {
		return stats, err
	}
	totalFS, freeFS, err := s.statfs(s.dir)
	if err != nil {
		return stats, fmt.Errorf("cache: statfs: %w", err)
	}
	ratio := 1.0
	if totalFS > 0 {
		ratio = float64(freeFS) / float64(totalFS)
	}

	var total int64
	summaries := make([]EntrySummary, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		entry := entries[i]
		total += entry.sizeBytes
		summaries = append(summaries, EntrySummary{
			Key:       entry.key,
			SizeBytes: entry.sizeBytes,
			StoredAt:  entry.storedAt,
			Provider:  entry.meta.Provider,
			Model:     entry.meta.Model,
			Language:  entry.meta.Language,
			Segments:  entry.meta.Segments,
		})
	}
	stats = Stats{
		Entries:        len(entries),
		TotalBytes:     total,
		MaxBytes:       s.maxBytes,
		TTL:            s.ttl,
		FreeBytes:      freeFS,
		TotalFSBytes:   totalFS,
		FreeRatio:      ratio,
		EntrySummaries: summaries,
	}
	if len(entries) == 0 {
		s.logger.InfoContext(ctx, "transcript cache empty")
	}
	return stats, nil
}

// scan lists cache entries sorted oldest first. Sidecar problems mark the
// entry corrupt instead of failing the scan; orphan sidecars and stale
// temp files are folded in as corrupt entries so Sweep clears them.
func (s *Store) scan() ([]cacheEntry, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache: list %s: %w", s.dir, err)
	}

	entries := make([]cacheEntry, 0, len(dirEntries))
	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || strings.HasSuffix(name, metaSuffix) {
			continue
		}
		info, err := dirEntry.Info()
		if err != nil {
			continue
		}
		entry := cacheEntry{
			key:       name,
			dataPath:  filepath.Join(s.dir, name),
			sizeBytes: info.Size(),
			storedAt:  info.ModTime(),
		}
		if strings.HasSuffix(name, ".tmp") {
			entry.corrupt = true
			entries = append(entries, entry)
			continue
		}
		raw, err := os.ReadFile(entry.dataPath + metaSuffix)
		if err == nil {
			err = json.Unmarshal(raw, &entry.meta)
		}
		switch {
		case err != nil:
			entry.corrupt = true
		case entry.meta.SizeBytes > 0 && entry.meta.SizeBytes != entry.sizeBytes:
			entry.corrupt = true
		case !entry.meta.StoredAt.IsZero():
			entry.storedAt = entry.meta.StoredAt
		}
		entries = append(entries, entry)
	}

	for _, dirEntry := range dirEntries {
		name := dirEntry.Name()
		if dirEntry.IsDir() || !strings.HasSuffix(name, metaSuffix) {
			continue
		}
		dataName := strings.TrimSuffix(name, metaSuffix)
		if _, err := os.Stat(filepath.Join(s.dir, dataName)); errors.Is(err, os.ErrNotExist) {
			entries = append(entries, cacheEntry{
				key:      dataName,
				dataPath: filepath.Join(s.dir, dataName),
				corrupt:  true,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].storedAt.Before(entries[j].storedAt)
	})
	return entries, nil
}

func (s *Store) evict(ctx context.Context, entry cacheEntry, result *SweepResult, reason string) {
	if strings.HasSuffix(entry.key, ".tmp") {
		if err := os.Remove(entry.dataPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cache temp file removal failed",
				logging.String("source_file", entry.dataPath),
				logging.Error(err),
			)
			return
		}
	} else {
		s.removeEntry(entry.key)
	}
	result.Removed++
	result.RemovedBytes += entry.sizeBytes
	s.logger.InfoContext(ctx, "evicted cache entry",
		logging.String("cache_key", entry.key),
		logging.String("eviction_reason", reason),
		logging.Int64("entry_size_bytes", entry.sizeBytes),
	)
}

func (s *Store) freeSpaceOK() (bool, error) {
	total, free, err := s.statfs(s.dir)
	if err != nil {
		return false, fmt.Errorf("cache: statfs: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	return float64(free)/float64(total) >= freeSpaceFloor, nil
}

func realStatfs(path string) (uint64, uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, 0, err
	}
	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bavail * uint64(stat.Bsize)
	return total, free, nil
}
