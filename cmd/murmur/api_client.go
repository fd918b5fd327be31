package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"murmur/internal/api"
	"murmur/internal/config"
	"murmur/internal/logging"
)

// apiClient talks to the daemon's localhost HTTP API. A nil client means the
// bind address is not configured; callers fall back to direct store access.
type apiClient struct {
	base *url.URL
	http *http.Client
}

func newAPIClient(cfg *config.Config) (*apiClient, error) {
	if cfg == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api bind address: %w", err)
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""
	return &apiClient{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (c *apiClient) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var payload api.DaemonStatus
	if err := c.getJSON(ctx, "/api/status", nil, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (c *apiClient) LogsTail(ctx context.Context, limit int) (*api.LogTailResponse, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var payload api.LogTailResponse
	if err := c.getJSON(ctx, "/api/logs/tail", values, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// StreamLogs dials the websocket log stream and hands every event to fn
// until the context is cancelled or fn returns an error. The server replays
// a short backlog before live events.
func (c *apiClient) StreamLogs(ctx context.Context, fn func(logging.LogEvent) error) error {
	if c == nil {
		return errAPIUnavailable
	}
	wsURL := *c.base
	switch wsURL.Scheme {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/logs/stream"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL.String(), nil)
	if err != nil {
		return classifyAPIError(err)
	}
	defer conn.Close()

	// Closing the connection is the only way to unblock ReadJSON.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	for {
		var evt logging.LogEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("log stream: %w", err)
		}
		if err := fn(evt); err != nil {
			return err
		}
	}
}

func (c *apiClient) getJSON(ctx context.Context, path string, values url.Values, out any) error {
	if c == nil {
		return errAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: values.Encode()})
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return classifyAPIError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var apiErr api.ErrorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error != "" {
			return fmt.Errorf("api %s: %s", path, apiErr.Error)
		}
		return fmt.Errorf("api %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

var errAPIUnavailable = errors.New("daemon api unavailable")

func classifyAPIError(err error) error {
	if isConnectionError(err) {
		return errAPIUnavailable
	}
	return err
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// daemonDownHint turns the unavailable sentinel into actionable advice;
// other errors pass through unchanged.
func daemonDownHint(err error) error {
	if errors.Is(err, errAPIUnavailable) {
		return errors.New("daemon is not reachable; start it with `murmur daemon run`")
	}
	return err
}
