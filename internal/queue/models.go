package queue

import (
	"path/filepath"
	"strings"
	"time"
)

// Status represents the lifecycle of a subtitle task.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Kind distinguishes whole-file tasks from clip sub-range tasks.
type Kind string

const (
	KindWholeFile Kind = "whole_file"
	KindClipRange Kind = "clip_range"
)

// DaemonStopReason is the message recorded when tasks are cancelled because
// the daemon shut down mid-run.
const DaemonStopReason = "daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
	StatusCancelled,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

// Task represents a subtitle generation task persisted in SQLite.
type Task struct {
	ID              int64
	SourcePath      string
	SourceName      string
	Title           string
	Kind            Kind
	ClipName        string
	ClipStart       *float64
	ClipEnd         *float64
	Provider        string
	Status          Status
	ErrorMessage    string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	OutputPath      string
	Fingerprint     string
	LastHeartbeat   *time.Time
	NeedsReview     bool
	ReviewReason    string
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalTasks       int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total      int
	Pending    int
	Processing int
	Completed  int
	Failed     int
	Cancelled  int
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether a status is final. Terminal tasks never change
// status again; retrying requeues them explicitly through Retry.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// IsProcessing reports whether the task reflects an in-flight pipeline run.
func (t Task) IsProcessing() bool {
	return t.Status == StatusProcessing
}

// IsClip reports whether the task transcribes a sub-range of the source.
func (t Task) IsClip() bool {
	return t.Kind == KindClipRange
}

// DisplayName returns the label used in logs, notifications, and tables.
func (t Task) DisplayName() string {
	if t.IsClip() && t.ClipName != "" {
		return t.Title + " / " + t.ClipName
	}
	if t.Title != "" {
		return t.Title
	}
	if t.SourceName != "" {
		return t.SourceName
	}
	return filepath.Base(t.SourcePath)
}

// InitProgress resets progress fields for a fresh run of the pipeline.
func (t *Task) InitProgress(stage, message string) {
	t.ProgressStage = stage
	t.ProgressMessage = message
	t.ProgressPercent = 0
	t.ErrorMessage = ""
}

// SetProgress updates all three progress fields together. Percent never moves
// backwards while the task is processing.
func (t *Task) SetProgress(stage, message string, percent float64) {
	t.ProgressStage = stage
	t.ProgressMessage = message
	if percent > t.ProgressPercent {
		t.ProgressPercent = percent
	}
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (t *Task) SetProgressComplete(stage, message string) {
	t.ProgressStage = stage
	t.ProgressMessage = message
	t.ProgressPercent = 100
}

// SetFailed marks the task as failed with the given error message.
func (t *Task) SetFailed(message string) {
	t.Status = StatusFailed
	t.ErrorMessage = message
	t.ProgressMessage = message
	t.ProgressStage = "failed"
	t.LastHeartbeat = nil
}

// SetCancelled marks the task as cancelled.
func (t *Task) SetCancelled(message string) {
	t.Status = StatusCancelled
	t.ErrorMessage = ""
	t.ProgressMessage = message
	t.ProgressStage = "cancelled"
	t.LastHeartbeat = nil
}
