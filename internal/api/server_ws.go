package api

import (
	"context"
	"net/http"

	"murmur/internal/logging"
)

// handleLogStream upgrades to a websocket and pushes every log event the
// hub publishes, starting with the buffered backlog. The client is not
// expected to send anything; its frames are drained only so a close
// surfaces promptly.
func (s *Server) handleLogStream(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		s.writeError(w, http.StatusServiceUnavailable, "log stream not available")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", logging.Error(err))
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	events, since := s.hub.Tail(defaultTailLimit)
	for _, evt := range events {
		if err := conn.WriteJSON(evt); err != nil {
			return
		}
	}

	for {
		batch, _, err := s.hub.Fetch(ctx, since, 0, true)
		if err != nil {
			return
		}
		for _, evt := range batch {
			if err := conn.WriteJSON(evt); err != nil {
				return
			}
			since = evt.Sequence
		}
	}
}
