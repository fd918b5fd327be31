package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"murmur/internal/queue"
)

// buildQueueStatusRows renders queue counters in lifecycle order. Every
// status gets a row so the table shape is stable across runs.
func buildQueueStatusRows(stats map[queue.Status]int) [][]string {
	rows := make([][]string, 0, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		rows = append(rows, []string{
			formatStatusLabel(string(status)),
			fmt.Sprintf("%d", stats[status]),
		})
	}
	return rows
}

func buildQueueListRows(tasks []*queue.Task) [][]string {
	if len(tasks) == 0 {
		return nil
	}
	sorted := make([]*queue.Task, len(tasks))
	copy(sorted, tasks)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].ID > sorted[j].ID
		}
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	rows := make([][]string, 0, len(sorted))
	for _, task := range sorted {
		rows = append(rows, []string{
			fmt.Sprintf("%d", task.ID),
			task.DisplayName(),
			formatStatusLabel(string(task.Status)),
			formatProvider(task.Provider),
			formatProgress(task),
			formatDisplayTime(task.CreatedAt),
		})
	}
	return rows
}

func formatStatusLabel(status string) string {
	status = strings.TrimSpace(status)
	if status == "" {
		return ""
	}
	parts := strings.Split(status, "_")
	for i, part := range parts {
		lower := strings.ToLower(part)
		if lower == "" {
			continue
		}
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func formatProvider(provider string) string {
	provider = strings.TrimSpace(provider)
	if provider == "" {
		return "-"
	}
	return provider
}

// formatProgress summarizes task progress for the list table. Only active
// tasks carry a meaningful percentage.
func formatProgress(task *queue.Task) string {
	if task == nil {
		return "-"
	}
	switch task.Status {
	case queue.StatusProcessing:
		stage := strings.TrimSpace(task.ProgressStage)
		if stage == "" {
			return fmt.Sprintf("%.0f%%", task.ProgressPercent)
		}
		return fmt.Sprintf("%.0f%% %s", task.ProgressPercent, stage)
	case queue.StatusCompleted:
		return "100%"
	default:
		return "-"
	}
}

func formatDisplayTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04")
}

func formatClipRange(task *queue.Task) string {
	if task == nil || !task.IsClip() {
		return ""
	}
	start, end := 0.0, 0.0
	if task.ClipStart != nil {
		start = *task.ClipStart
	}
	if task.ClipEnd != nil {
		end = *task.ClipEnd
	}
	return fmt.Sprintf("%.1fs to %.1fs", start, end)
}

func formatFingerprint(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "-"
	}
	if len(value) > 12 {
		return value[:12]
	}
	return value
}
