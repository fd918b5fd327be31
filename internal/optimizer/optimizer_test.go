package optimizer

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"murmur/internal/retry"
	"murmur/internal/services"
	"murmur/internal/subtitle"
)

func instantPolicy(attempts int) retry.Policy {
	return retry.Policy{
		MaxAttempts: attempts,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
		Factor:      2,
		Jitter:      0,
		Sleep:       func(time.Duration) {},
	}
}

func newTestClient(t *testing.T, baseURL string, opts ...Option) *Client {
	t.Helper()
	opts = append([]Option{WithRetryPolicy(instantPolicy(1))}, opts...)
	client, err := New(Config{APIKey: "test-key", BaseURL: baseURL, Model: "demo-model"}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func completionBody(lines []string) map[string]any {
	content, _ := json.Marshal(linesPayload{Lines: lines})
	return map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": string(content)}, "finish_reason": "stop"},
		},
	}
}

func sampleTranscript() *subtitle.Transcript {
	return &subtitle.Transcript{
		Language: "en",
		Segments: []subtitle.Segment{
			{Start: 0, End: 2.5, Text: "hello there everyone"},
			{Start: 3, End: 5.5, Text: "welcome to the show"},
		},
	}
}

func TestOptimizeRewritesText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var request chatRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if request.Model != "demo-model" || request.Temperature != 0 {
			t.Errorf("request = %+v", request)
		}
		if request.ResponseFormat["type"] != "json_object" {
			t.Errorf("response_format = %v", request.ResponseFormat)
		}
		if len(request.Messages) != 2 || request.Messages[0].Role != "system" {
			t.Fatalf("messages = %+v", request.Messages)
		}
		var sent linesPayload
		if err := json.Unmarshal([]byte(request.Messages[1].Content), &sent); err != nil {
			t.Fatalf("decode user payload: %v", err)
		}
		if len(sent.Lines) != 2 || sent.Lines[0] != "hello there everyone" {
			t.Errorf("sent lines = %v", sent.Lines)
		}
		_ = json.NewEncoder(w).Encode(completionBody([]string{
			"Hello there, everyone.",
			"Welcome to the show.",
		}))
	}))
	defer server.Close()

	original := sampleTranscript()
	cleaned, err := newTestClient(t, server.URL).Optimize(context.Background(), original, "")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if cleaned.Segments[0].Text != "Hello there, everyone." {
		t.Errorf("text = %q", cleaned.Segments[0].Text)
	}
	if cleaned.Segments[0].Start != 0 || cleaned.Segments[0].End != 2.5 {
		t.Errorf("timing changed: %+v", cleaned.Segments[0])
	}
	if original.Segments[0].Text != "hello there everyone" {
		t.Errorf("input transcript mutated: %q", original.Segments[0].Text)
	}
}

func TestOptimizeBatches(t *testing.T) {
	var batches [][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var request chatRequest
		_ = json.NewDecoder(r.Body).Decode(&request)
		var sent linesPayload
		_ = json.Unmarshal([]byte(request.Messages[1].Content), &sent)
		batches = append(batches, sent.Lines)
		_ = json.NewEncoder(w).Encode(completionBody(sent.Lines))
	}))
	defer server.Close()

	transcript := &subtitle.Transcript{}
	for _, text := range []string{"one", "two", "three", "four", "five"} {
		transcript.Segments = append(transcript.Segments, subtitle.Segment{Text: text})
	}
	client, err := New(Config{APIKey: "k", BaseURL: server.URL, BatchSize: 2}, WithRetryPolicy(instantPolicy(1)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Optimize(context.Background(), transcript, ""); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("batches = %d, want 3", len(batches))
	}
	if len(batches[0]) != 2 || len(batches[2]) != 1 || batches[2][0] != "five" {
		t.Errorf("batch split = %v", batches)
	}
}

func TestOptimizeKeepsLineWhenModelDropsIt(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody([]string{"Hello there, everyone.", "   "}))
	}))
	defer server.Close()

	cleaned, err := newTestClient(t, server.URL).Optimize(context.Background(), sampleTranscript(), "")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if cleaned.Segments[1].Text != "welcome to the show" {
		t.Errorf("blank rewrite must keep the original: %q", cleaned.Segments[1].Text)
	}
}

func TestOptimizeLineCountMismatch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(completionBody([]string{"merged both lines into one"}))
	}))
	defer server.Close()

	_, err := newTestClient(t, server.URL).Optimize(context.Background(), sampleTranscript(), "")
	if !errors.Is(err, services.ErrParse) {
		t.Fatalf("expected parse error, got %v", err)
	}
	if services.IsRetryable(err) {
		t.Errorf("count mismatch must not retry")
	}
}

func TestOptimizeRetriesEmptyCompletion(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"content": ""}, "finish_reason": "length"}},
			})
			return
		}
		_ = json.NewEncoder(w).Encode(completionBody([]string{"Hello there, everyone.", "Welcome to the show."}))
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetryPolicy(instantPolicy(3)))
	cleaned, err := client.Optimize(context.Background(), sampleTranscript(), "")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if cleaned.Segments[1].Text != "Welcome to the show." {
		t.Errorf("text = %q", cleaned.Segments[1].Text)
	}
}

func TestOptimizeDecodesFencedPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content := "```json\n{\"lines\": [\"Hello there, everyone.\", \"Welcome to the show.\"]}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": content}}},
		})
	}))
	defer server.Close()

	cleaned, err := newTestClient(t, server.URL).Optimize(context.Background(), sampleTranscript(), "")
	if err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if cleaned.Segments[0].Text != "Hello there, everyone." {
		t.Errorf("text = %q", cleaned.Segments[0].Text)
	}
}

func TestOptimizeAuthFailure(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetryPolicy(instantPolicy(3)))
	_, err := client.Optimize(context.Background(), sampleTranscript(), "")
	if !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Errorf("auth failures must not retry: %d calls", calls.Load())
	}
}

func TestOptimizeExhaustsRetriesOnServerErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, WithRetryPolicy(instantPolicy(3)))
	_, err := client.Optimize(context.Background(), sampleTranscript(), "")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("error = %v", err)
	}
}

func TestOptimizeEmptyTranscript(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:0")
	if got, err := client.Optimize(context.Background(), nil, ""); got != nil || err != nil {
		t.Errorf("nil transcript = (%v, %v)", got, err)
	}
	empty := &subtitle.Transcript{Language: "en"}
	got, err := client.Optimize(context.Background(), empty, "")
	if err != nil || got != empty {
		t.Errorf("empty transcript = (%v, %v), want passthrough", got, err)
	}
}

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New(Config{}); !errors.Is(err, services.ErrConfiguration) {
		t.Errorf("missing key: got %v", err)
	}
	client, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if client.cfg.BaseURL != defaultBaseURL || client.cfg.Model != defaultModel {
		t.Errorf("defaults = %+v", client.cfg)
	}
	if client.cfg.BatchSize != defaultBatchSize {
		t.Errorf("batch size = %d", client.cfg.BatchSize)
	}
}

func TestHealthCheck(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":true}`}}},
			})
		}))
		defer server.Close()
		if err := newTestClient(t, server.URL).HealthCheck(context.Background()); err != nil {
			t.Fatalf("HealthCheck: %v", err)
		}
	})

	t.Run("refused", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"choices": []map[string]any{{"message": map[string]any{"content": `{"ok":false}`}}},
			})
		}))
		defer server.Close()
		if err := newTestClient(t, server.URL).HealthCheck(context.Background()); err == nil {
			t.Fatal("expected error")
		}
	})

	t.Run("bad key", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		}))
		defer server.Close()
		err := newTestClient(t, server.URL).HealthCheck(context.Background())
		if !errors.Is(err, services.ErrAuth) {
			t.Fatalf("expected auth error, got %v", err)
		}
	})
}

func TestDecodePayload(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    []string
		wantErr bool
	}{
		{name: "plain", content: `{"lines":["a","b"]}`, want: []string{"a", "b"}},
		{name: "fenced", content: "```json\n{\"lines\":[\"a\"]}\n```", want: []string{"a"}},
		{name: "prose wrapped", content: `Here you go: {"lines":["a"]} hope that helps`, want: []string{"a"}},
		{name: "empty", content: "   ", wantErr: true},
		{name: "not json", content: "sorry, I cannot help with that", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var decoded linesPayload
			err := decodePayload(tc.content, &decoded)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", decoded.Lines)
				}
				return
			}
			if err != nil {
				t.Fatalf("decodePayload: %v", err)
			}
			if len(decoded.Lines) != len(tc.want) || decoded.Lines[0] != tc.want[0] {
				t.Errorf("lines = %v, want %v", decoded.Lines, tc.want)
			}
		})
	}
}
