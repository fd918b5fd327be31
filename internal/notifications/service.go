package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"murmur/internal/config"
)

const userAgent = "Murmur/0.1.0"

// Event identifies a notification category published by the workflow.
type Event string

const (
	EventTaskStarted    Event = "task_started"
	EventTaskCompleted  Event = "task_completed"
	EventTaskFailed     Event = "task_failed"
	EventBatchCompleted Event = "batch_completed"
	EventTest           Event = "test"
)

// Payload carries event-specific fields. Formatting stays inside this package
// so callers only pick the event and supply raw values.
type Payload map[string]any

// Service is the notification surface exposed to the workflow manager and CLI.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	switch event {
	case EventTaskStarted:
		return n.send(ctx, message{
			title: "Murmur - Transcribing",
			body:  fmt.Sprintf("Transcribing: %s", payloadString(payload, "title")),
			tags:  []string{"murmur", "task", "started"},
		})
	case EventTaskCompleted:
		body := fmt.Sprintf("✅ Subtitles ready: %s", payloadString(payload, "title"))
		if output := payloadString(payload, "output"); output != "" {
			body = fmt.Sprintf("%s\nFile: %s", body, output)
		}
		return n.send(ctx, message{
			title: "Murmur - Subtitles Ready",
			body:  body,
			tags:  []string{"murmur", "task", "completed"},
		})
	case EventTaskFailed:
		reason := payloadString(payload, "error")
		if reason == "" {
			reason = "unknown error"
		}
		return n.send(ctx, message{
			title:    "Murmur - Task Failed",
			body:     fmt.Sprintf("❌ Failed: %s: %s", payloadString(payload, "title"), reason),
			tags:     []string{"murmur", "task", "failed"},
			priority: "high",
		})
	case EventBatchCompleted:
		return n.send(ctx, n.batchCompleted(payload))
	case EventTest:
		return n.send(ctx, message{
			title:    "Murmur - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"murmur", "test"},
			priority: "low",
		})
	default:
		return fmt.Errorf("unknown notification event %q", event)
	}
}

func (n *ntfyService) batchCompleted(payload Payload) message {
	completed := payloadInt(payload, "completed")
	failed := payloadInt(payload, "failed")
	cancelled := payloadInt(payload, "cancelled")
	duration := payloadDuration(payload, "duration").Round(time.Second)
	if duration <= 0 {
		duration = 0
	}

	title := "Murmur - Batch Complete"
	if failed > 0 {
		title = "Murmur - Batch Complete (with errors)"
	}
	parts := []string{fmt.Sprintf("%d succeeded", completed)}
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("%d failed", failed))
	}
	if cancelled > 0 {
		parts = append(parts, fmt.Sprintf("%d cancelled", cancelled))
	}
	return message{
		title: title,
		body:  fmt.Sprintf("Batch complete: %s in %s", strings.Join(parts, ", "), duration),
		tags:  []string{"murmur", "batch", "completed"},
	}
}

func (n *ntfyService) send(ctx context.Context, data message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func payloadString(payload Payload, key string) string {
	if payload == nil {
		return ""
	}
	switch v := payload[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	default:
		return ""
	}
}

func payloadInt(payload Payload, key string) int {
	if payload == nil {
		return 0
	}
	switch v := payload[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func payloadDuration(payload Payload, key string) time.Duration {
	if payload == nil {
		return 0
	}
	if v, ok := payload[key].(time.Duration); ok {
		return v
	}
	return 0
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
