// Package optimizer cleans up transcribed subtitle text through an
// OpenAI-compatible chat completions endpoint. Timing never changes:
// the model rewrites line text and the optimizer maps the rewritten
// lines back onto the original segments, batch by batch.
package optimizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"murmur/internal/retry"
	"murmur/internal/services"
	"murmur/internal/subtitle"
)

const (
	defaultBaseURL   = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel     = "google/gemini-3-flash-preview"
	defaultTimeout   = 60 * time.Second
	defaultBatchSize = 60
	jsonResponseType = "json_object"
	maxResponseBytes = 8 << 20
)

// DefaultInstructions is the system prompt used when the caller supplies
// no custom instructions.
const DefaultInstructions = `You are a subtitle editor. The user message is a JSON object {"lines": [...]} holding transcribed subtitle lines in order. Correct punctuation, capitalization, and obvious transcription mistakes in each line. Never merge, split, reorder, translate, or summarize lines. Respond with a JSON object {"lines": [...]} containing exactly the same number of lines in the same order.`

// Config captures the runtime settings for the optimizer endpoint.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	// Referer and Title are optional OpenRouter attribution headers.
	Referer string
	Title   string
	// TimeoutSeconds bounds a single request; batches carry many lines,
	// so the default is generous.
	TimeoutSeconds int
	// BatchSize is the number of subtitle lines per request.
	BatchSize int
}

// Client posts subtitle text to a chat completions endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     retry.Policy
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

// WithRetryPolicy overrides the retry policy for completion requests.
func WithRetryPolicy(policy retry.Policy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// New validates the configuration and applies defaults.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: optimizer api key required", services.ErrConfiguration)
	}
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	cfg.Referer = strings.TrimSpace(cfg.Referer)
	cfg.Title = strings.TrimSpace(cfg.Title)
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}

	client := &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
		policy:     retry.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// linesPayload is both the user message body and the expected response
// shape. Mirroring the structures keeps line alignment unambiguous.
type linesPayload struct {
	Lines []string `json:"lines"`
}

// Optimize returns a copy of the transcript with cleaned text. The input
// is never modified, so callers keep the original when this fails.
func (c *Client) Optimize(ctx context.Context, transcript *subtitle.Transcript, instructions string) (*subtitle.Transcript, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return transcript, nil
	}
	system := strings.TrimSpace(instructions)
	if system == "" {
		system = DefaultInstructions
	}

	out := &subtitle.Transcript{
		Language: transcript.Language,
		Segments: make([]subtitle.Segment, len(transcript.Segments)),
	}
	copy(out.Segments, transcript.Segments)

	for start := 0; start < len(out.Segments); start += c.cfg.BatchSize {
		end := start + c.cfg.BatchSize
		if end > len(out.Segments) {
			end = len(out.Segments)
		}
		lines := make([]string, 0, end-start)
		for _, seg := range out.Segments[start:end] {
			lines = append(lines, seg.Text)
		}

		op := fmt.Sprintf("optimize lines %d-%d of %d", start+1, end, len(out.Segments))
		cleaned, err := c.completeLines(ctx, system, lines, op)
		if err != nil {
			return nil, err
		}
		for i, text := range cleaned {
			text = strings.TrimSpace(text)
			if text == "" {
				// The model dropped a line; keep the transcription.
				continue
			}
			out.Segments[start+i].Text = text
		}
	}
	return out, nil
}

// HealthCheck verifies the API key and model produce a usable completion.
func (c *Client) HealthCheck(ctx context.Context) error {
	request := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: "Respond with JSON only."},
			{Role: "user", Content: `Respond with {"ok":true}`},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}
	content, err := c.sendOnce(ctx, request)
	if err != nil {
		return err
	}
	var parsed struct {
		OK bool `json:"ok"`
	}
	if err := decodePayload(content, &parsed); err != nil {
		return fmt.Errorf("%w: optimizer health: %v", services.ErrParse, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%w: optimizer health: unexpected response", services.ErrParse)
	}
	return nil
}

func (c *Client) completeLines(ctx context.Context, system string, lines []string, op string) ([]string, error) {
	encoded, err := json.Marshal(linesPayload{Lines: lines})
	if err != nil {
		return nil, fmt.Errorf("optimizer: encode lines: %w", err)
	}
	request := chatRequest{
		Model: c.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: string(encoded)},
		},
		Temperature:    0,
		ResponseFormat: map[string]string{"type": jsonResponseType},
	}

	content, err := retry.DoValue(ctx, c.policy, op, func(ctx context.Context) (string, error) {
		return c.sendOnce(ctx, request)
	})
	if err != nil {
		return nil, err
	}

	var decoded linesPayload
	if err := decodePayload(content, &decoded); err != nil {
		return nil, fmt.Errorf("%w: optimizer: %v", services.ErrParse, err)
	}
	if len(decoded.Lines) != len(lines) {
		return nil, fmt.Errorf("%w: optimizer: response has %d lines, sent %d", services.ErrParse, len(decoded.Lines), len(lines))
	}
	return decoded.Lines, nil
}

type chatRequest struct {
	Model          string            `json:"model"`
	Messages       []chatMessage     `json:"messages"`
	Temperature    float64           `json:"temperature"`
	ResponseFormat map[string]string `json:"response_format"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatCompletionMessage `json:"message"`
		// Aggregated providers sometimes answer with the streaming
		// schema even when stream=false; tolerate delta and the
		// legacy text field as fallbacks.
		Delta        chatCompletionMessage `json:"delta"`
		Text         string                `json:"text"`
		FinishReason string                `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

type chatCompletionMessage struct {
	Content string `json:"content"`
	Refusal string `json:"refusal"`
}

func (r chatResponse) content() (text, finishReason string) {
	for _, choice := range r.Choices {
		if finishReason == "" {
			finishReason = strings.TrimSpace(choice.FinishReason)
		}
		for _, candidate := range []string{choice.Message.Content, choice.Delta.Content, choice.Text} {
			if trimmed := strings.TrimSpace(candidate); trimmed != "" {
				return trimmed, finishReason
			}
		}
	}
	return "", finishReason
}

// sendOnce issues one completion request and returns the content of the
// first non-empty choice. Empty completions are transient: aggregated
// backends drop responses under load and a retry usually succeeds.
func (c *Client) sendOnce(ctx context.Context, payload chatRequest) (string, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("optimizer request: encode body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(encoded))
	if err != nil {
		return "", fmt.Errorf("optimizer request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Referer != "" {
		req.Header.Set("HTTP-Referer", c.cfg.Referer)
		req.Header.Set("Referer", c.cfg.Referer)
	}
	if c.cfg.Title != "" {
		req.Header.Set("X-Title", c.cfg.Title)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", c.classifyTransport(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", newStatusError(resp.StatusCode, body, resp.Header.Get("Retry-After"))
	}

	var completion chatResponse
	if err := json.Unmarshal(body, &completion); err != nil {
		return "", fmt.Errorf("%w: optimizer: decode response: %v", services.ErrParse, err)
	}
	if completion.Error != nil {
		return "", fmt.Errorf("optimizer: api error: %s", strings.TrimSpace(completion.Error.Message))
	}
	content, finishReason := completion.content()
	if content == "" {
		return "", fmt.Errorf("%w: optimizer: empty completion (finish_reason=%q)", services.ErrTransient, finishReason)
	}
	return content, nil
}

func (c *Client) classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("optimizer request: %w", ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: optimizer request timed out: %v", services.ErrTimeout, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("%w: optimizer request: %v", services.ErrTransient, err)
}

type statusError struct {
	StatusCode int
	Snippet    string
	Hint       time.Duration
}

func newStatusError(code int, body []byte, retryAfter string) *statusError {
	return &statusError{
		StatusCode: code,
		Snippet:    snippet(string(body)),
		Hint:       parseRetryAfter(retryAfter),
	}
}

func (e *statusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("optimizer request: http %d", e.StatusCode)
	}
	return fmt.Sprintf("optimizer request: http %d: %s", e.StatusCode, e.Snippet)
}

func (e *statusError) Retryable() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout,
		e.StatusCode == http.StatusTooManyRequests,
		e.StatusCode >= http.StatusInternalServerError:
		return true
	}
	return false
}

func (e *statusError) RetryAfter() time.Duration { return e.Hint }

func (e *statusError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return services.ErrAuth
	}
	if e.Retryable() {
		return services.ErrTransient
	}
	return nil
}

func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if when, err := http.ParseTime(value); err == nil {
		if delay := time.Until(when); delay > 0 {
			return delay
		}
	}
	return 0
}

// decodePayload tolerates the formatting quirks aggregated providers
// produce: code fences around the JSON and prose before or after it.
func decodePayload(content string, target any) error {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		return errors.New("empty payload")
	}
	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}
	sanitized := sanitizePayload(trimmed)
	if err := json.Unmarshal([]byte(sanitized), target); err != nil {
		return fmt.Errorf("decode payload: %w (snippet: %s)", err, snippet(sanitized))
	}
	return nil
}

func sanitizePayload(content string) string {
	trimmed := strings.TrimSpace(stripCodeFence(content))
	if start := strings.Index(trimmed, "{"); start >= 0 {
		if end := strings.LastIndex(trimmed, "}"); end > start {
			return strings.TrimSpace(trimmed[start : end+1])
		}
	}
	return trimmed
}

func stripCodeFence(content string) string {
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}
	body := strings.TrimLeft(trimmed[3:], " \t\r\n")
	if len(body) >= 4 && strings.EqualFold(body[:4], "json") {
		body = strings.TrimLeft(body[4:], " \t\r\n")
	}
	if idx := strings.LastIndex(body, "```"); idx >= 0 {
		body = body[:idx]
	}
	return strings.TrimSpace(body)
}

func snippet(content string) string {
	clean := strings.Join(strings.Fields(content), " ")
	if clean == "" {
		return "<empty>"
	}
	const limit = 160
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
