package api

import (
	"slices"
	"time"

	"murmur/internal/preflight"
	"murmur/internal/queue"
	"murmur/internal/stage"
	"murmur/internal/workflow"
)

// FromTask converts a queue record to its API representation.
func FromTask(task *queue.Task) QueueTask {
	if task == nil {
		return QueueTask{}
	}

	dto := QueueTask{
		ID:         task.ID,
		Title:      task.Title,
		SourcePath: task.SourcePath,
		Kind:       string(task.Kind),
		ClipName:   task.ClipName,
		Provider:   task.Provider,
		Status:     string(task.Status),
		Progress: QueueProgress{
			Stage:   task.ProgressStage,
			Percent: task.ProgressPercent,
			Message: task.ProgressMessage,
		},
		ErrorMessage: task.ErrorMessage,
		OutputPath:   task.OutputPath,
		NeedsReview:  task.NeedsReview,
		ReviewReason: task.ReviewReason,
	}
	if task.ClipStart != nil {
		start := *task.ClipStart
		dto.ClipStart = &start
	}
	if task.ClipEnd != nil {
		end := *task.ClipEnd
		dto.ClipEnd = &end
	}
	dto.CreatedAt = FormatTime(task.CreatedAt)
	dto.UpdatedAt = FormatTime(task.UpdatedAt)
	return dto
}

// FromTasks converts a slice of queue records into API DTOs.
func FromTasks(tasks []*queue.Task) []QueueTask {
	if len(tasks) == 0 {
		return nil
	}
	out := make([]QueueTask, 0, len(tasks))
	for _, task := range tasks {
		out = append(out, FromTask(task))
	}
	return out
}

// FromStatusSummary converts a workflow status summary to its API payload.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		QueueStats:  QueueStatsMap(summary.QueueStats),
		StageHealth: StageHealthSlice(summary.StageHealth),
	}
	if summary.LastError != "" {
		wf.LastError = summary.LastError
	}
	if summary.LastTask != nil {
		last := FromTask(summary.LastTask)
		wf.LastTask = &last
	}
	return wf
}

// QueueStatsMap produces a string-keyed representation of queue stats.
func QueueStatsMap(stats map[queue.Status]int) map[string]int {
	out := make(map[string]int, len(stats))
	for status, count := range stats {
		out[string(status)] = count
	}
	return out
}

// StageHealthSlice converts a stage health map into a deterministic slice.
func StageHealthSlice(health map[string]stage.Health) []StageHealth {
	if len(health) == 0 {
		return nil
	}
	names := make([]string, 0, len(health))
	for name := range health {
		names = append(names, name)
	}
	slices.Sort(names)

	out := make([]StageHealth, 0, len(names))
	for _, name := range names {
		h := health[name]
		out = append(out, StageHealth{Name: name, Ready: h.Ready, Detail: h.Detail})
	}
	return out
}

// FromToolStatuses converts preflight tool reports into API DTOs.
func FromToolStatuses(statuses []preflight.ToolStatus) []ToolStatus {
	if len(statuses) == 0 {
		return nil
	}
	out := make([]ToolStatus, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, ToolStatus{
			Name:        status.Name,
			Command:     status.Command,
			Description: status.Description,
			Available:   status.Available,
			Detail:      status.Detail,
		})
	}
	return out
}

// FormatTime converts a time to RFC3339 or returns the empty string.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
