package api

import "murmur/internal/logging"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// QueueTask describes a queue entry in a transport-friendly format.
type QueueTask struct {
	ID           int64         `json:"id"`
	Title        string        `json:"title"`
	SourcePath   string        `json:"sourcePath"`
	Kind         string        `json:"kind"`
	ClipName     string        `json:"clipName,omitempty"`
	ClipStart    *float64      `json:"clipStart,omitempty"`
	ClipEnd      *float64      `json:"clipEnd,omitempty"`
	Provider     string        `json:"provider"`
	Status       string        `json:"status"`
	Progress     QueueProgress `json:"progress"`
	ErrorMessage string        `json:"errorMessage,omitempty"`
	OutputPath   string        `json:"outputPath,omitempty"`
	NeedsReview  bool          `json:"needsReview"`
	ReviewReason string        `json:"reviewReason,omitempty"`
	CreatedAt    string        `json:"createdAt,omitempty"`
	UpdatedAt    string        `json:"updatedAt,omitempty"`
}

// QueueProgress captures stage progress information for a queue entry.
type QueueProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	QueueStats  map[string]int `json:"queueStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastTask    *QueueTask     `json:"lastTask,omitempty"`
	StageHealth []StageHealth  `json:"stageHealth"`
}

// StageHealth mirrors readiness reporting for workflow stages.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// ToolStatus captures availability of an external binary.
type ToolStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running  bool           `json:"running"`
	PID      int            `json:"pid"`
	Workflow WorkflowStatus `json:"workflow"`
	Tools    []ToolStatus   `json:"tools"`
}

// QueueListResponse wraps a collection of queue tasks.
type QueueListResponse struct {
	Tasks []QueueTask `json:"tasks"`
}

// QueueTaskResponse wraps a single queue task.
type QueueTaskResponse struct {
	Task QueueTask `json:"task"`
}

// LogTailResponse carries buffered log events plus the cursor for resuming.
type LogTailResponse struct {
	Events  []logging.LogEvent `json:"events"`
	NextSeq uint64             `json:"nextSeq"`
}

// ErrorResponse is the JSON body for non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
