// Package openaistt talks to OpenAI-compatible transcription endpoints.
//
// The hosted OpenAI and Groq recognizers share the /audio/transcriptions
// surface, so one client serves both kinds with different base URLs,
// keys, and models.
package openaistt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"murmur/internal/asr"
	"murmur/internal/services"
	"murmur/internal/subtitle"
)

const (
	// Uploads carry several minutes of PCM audio, so the default request
	// timeout is far above a chat-sized one.
	defaultTimeout   = 5 * time.Minute
	responseFormat   = "verbose_json"
	maxResponseBytes = 32 << 20
)

var defaultEndpoints = map[asr.Kind]string{
	asr.KindOpenAI: "https://api.openai.com/v1",
	asr.KindGroq:   "https://api.groq.com/openai/v1",
}

var defaultModels = map[asr.Kind]string{
	asr.KindOpenAI: "whisper-1",
	asr.KindGroq:   "whisper-large-v3-turbo",
}

// Config captures the runtime settings for one remote recognizer.
type Config struct {
	APIKey         string
	BaseURL        string
	Model          string
	TimeoutSeconds int
}

// Client implements asr.Provider over HTTP.
type Client struct {
	kind       asr.Kind
	cfg        Config
	httpClient *http.Client
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// New builds a remote provider for the given kind.
func New(kind asr.Kind, cfg Config, opts ...Option) (*Client, error) {
	if !kind.Remote() {
		return nil, fmt.Errorf("%w: %q is not a remote provider kind", services.ErrValidation, kind)
	}
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	cfg.Model = strings.TrimSpace(cfg.Model)
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key required", services.ErrConfiguration, kind)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultEndpoints[kind]
	}
	if cfg.Model == "" {
		cfg.Model = defaultModels[kind]
	}
	timeout := defaultTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	client := &Client{
		kind:       kind,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

func (c *Client) Kind() asr.Kind { return c.kind }

func (c *Client) Name() string {
	return fmt.Sprintf("%s/%s", c.kind, c.cfg.Model)
}

// Transcribe uploads the audio file and parses the verbose JSON response
// into a transcript. Segment times are shifted by req.Offset so the result
// is absolute to the source media.
func (c *Client) Transcribe(ctx context.Context, req asr.Request) (*subtitle.Transcript, error) {
	audioPath := strings.TrimSpace(req.AudioPath)
	if audioPath == "" {
		return nil, fmt.Errorf("%w: audio path required", services.ErrValidation)
	}
	file, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("stt open audio: %w", err)
	}
	defer file.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("file", filepath.Base(audioPath))
	if err != nil {
		return nil, fmt.Errorf("stt build request: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("stt read audio: %w", err)
	}
	_ = writer.WriteField("model", c.cfg.Model)
	_ = writer.WriteField("response_format", responseFormat)
	if lang := normalizeLanguage(req.Language); lang != "" {
		_ = writer.WriteField("language", lang)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("stt build request: %w", err)
	}

	endpoint := c.cfg.BaseURL + "/audio/transcriptions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("stt build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, c.classifyTransport(ctx, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, newStatusError(resp.StatusCode, payload, resp.Header.Get("Retry-After"))
	}
	return parseVerboseJSON(payload, req.Offset)
}

// HealthCheck verifies the endpoint and key without spending audio minutes.
func (c *Client) HealthCheck(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+"/models", nil)
	if err != nil {
		return fmt.Errorf("stt health: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return c.classifyTransport(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return newStatusError(resp.StatusCode, payload, resp.Header.Get("Retry-After"))
	}
	return nil
}

func (c *Client) classifyTransport(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("stt request: %w", ctx.Err())
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: stt request to %s timed out: %v", services.ErrTimeout, c.kind, err)
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		err = urlErr.Err
	}
	return fmt.Errorf("%w: stt request to %s: %v", services.ErrTransient, c.kind, err)
}

// statusError carries the HTTP failure plus its retry classification so
// the retry layer can believe the server.
type statusError struct {
	StatusCode int
	Snippet    string
	Hint       time.Duration
}

func newStatusError(code int, body []byte, retryAfter string) *statusError {
	return &statusError{
		StatusCode: code,
		Snippet:    summarizeBody(body),
		Hint:       parseRetryAfter(retryAfter),
	}
}

func (e *statusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("stt request: http %d", e.StatusCode)
	}
	return fmt.Sprintf("stt request: http %d: %s", e.StatusCode, e.Snippet)
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

type verboseResponse struct {
	Task     string  `json:"task"`
	Language string  `json:"language"`
	Duration float64 `json:"duration"`
	Text     string  `json:"text"`
	Segments []struct {
		ID    int     `json:"id"`
		Start float64 `json:"start"`
		End   float64 `json:"end"`
		Text  string  `json:"text"`
	} `json:"segments"`
}

// parseVerboseJSON decodes a verbose_json payload. A response with no
// segments and no text is a valid silent window, not a failure.
func parseVerboseJSON(payload []byte, offset float64) (*subtitle.Transcript, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return nil, fmt.Errorf("%w: empty transcription response", services.ErrParse)
	}
	var decoded verboseResponse
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decode transcription response: %v", services.ErrParse, err)
	}

	transcript := &subtitle.Transcript{Language: strings.TrimSpace(decoded.Language)}
	for _, seg := range decoded.Segments {
		text := strings.TrimSpace(seg.Text)
		if text == "" {
			continue
		}
		start := seg.Start
		if start < 0 {
			start = 0
		}
		end := seg.End
		if end < start {
			end = start
		}
		transcript.Segments = append(transcript.Segments, subtitle.Segment{
			Start: start + offset,
			End:   end + offset,
			Text:  text,
		})
	}
	return transcript, nil
}

func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func summarizeBody(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return ""
	}
	replacer := strings.NewReplacer("\r", " ", "\n", " ", "\t", " ")
	clean := strings.Join(strings.Fields(replacer.Replace(trimmed)), " ")
	const limit = 200
	runes := []rune(clean)
	if len(runes) > limit {
		clean = string(runes[:limit]) + "..."
	}
	return clean
}
