package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/preflight"
	"murmur/internal/queue"
	"murmur/internal/workflow"
)

const defaultTailLimit = 100

// StatusSource reports workflow execution state. *workflow.Manager satisfies it.
type StatusSource interface {
	Status(ctx context.Context) workflow.StatusSummary
}

// Server exposes daemon state over a localhost HTTP listener.
type Server struct {
	cfg      *config.Config
	store    *queue.Store
	status   StatusSource
	hub      *logging.StreamHub
	logger   *slog.Logger
	router   *chi.Mux
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
}

// NewServer wires the HTTP routes over the given daemon state. The stream
// hub and status source may be nil; the corresponding routes then serve
// empty payloads.
func NewServer(cfg *config.Config, store *queue.Store, status StatusSource, hub *logging.StreamHub, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		cfg:    cfg,
		store:  store,
		status: status,
		hub:    hub,
		logger: logging.NewComponentLogger(logger, "api"),
		router: chi.NewRouter(),
		upgrader: websocket.Upgrader{
			// The listener binds to localhost; browser pages served from
			// elsewhere still need the upgrade to succeed.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.registerRoutes()
	return s
}

// Handler returns the route tree for serving or testing.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)

	s.router.Get("/healthz", s.handleHealthz)
	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/queue", s.handleQueueList)
		r.Get("/queue/{id}", s.handleQueueTask)
		r.Get("/logs/tail", s.handleLogsTail)
		r.Get("/logs/stream", s.handleLogStream)
	})
}

// Start binds the configured address and serves in the background.
func (s *Server) Start() error {
	bind := strings.TrimSpace(s.cfg.Paths.APIBind)
	if bind == "" {
		return errors.New("api bind address not configured")
	}
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return err
	}
	s.listener = listener
	s.httpServer = &http.Server{
		Handler: s.router,
		// No write timeout: /api/logs/stream holds its connection open.
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", logging.Error(err))
		}
	}()
	s.logger.Info("api server listening", logging.String("addr", listener.Addr().String()))
	return nil
}

// Addr reports the bound address, useful when the config requested port 0.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown drains in-flight requests and closes the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return s.httpServer.Close()
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := DaemonStatus{
		Running: true,
		PID:     os.Getpid(),
		Tools:   FromToolStatuses(preflight.CheckTools(s.cfg)),
	}
	if s.status != nil {
		status.Workflow = FromStatusSummary(s.status.Status(r.Context()))
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleQueueList(w http.ResponseWriter, r *http.Request) {
	var statuses []queue.Status
	if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
		for _, token := range strings.Split(raw, ",") {
			status, ok := queue.ParseStatus(strings.TrimSpace(token))
			if !ok {
				s.writeError(w, http.StatusBadRequest, "unknown status "+strconv.Quote(token))
				return
			}
			statuses = append(statuses, status)
		}
	}

	tasks, err := s.store.List(r.Context(), statuses...)
	if err != nil {
		s.logger.Error("queue list failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	s.writeJSON(w, http.StatusOK, QueueListResponse{Tasks: FromTasks(tasks)})
}

func (s *Server) handleQueueTask(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid task id")
		return
	}
	task, err := s.store.GetByID(r.Context(), id)
	if err != nil {
		s.logger.Error("queue lookup failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "queue unavailable")
		return
	}
	if task == nil {
		s.writeError(w, http.StatusNotFound, "task not found")
		return
	}
	s.writeJSON(w, http.StatusOK, QueueTaskResponse{Task: FromTask(task)})
}

func (s *Server) handleLogsTail(w http.ResponseWriter, r *http.Request) {
	limit := defaultTailLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			s.writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = parsed
	}
	events, next := s.hub.Tail(limit)
	s.writeJSON(w, http.StatusOK, LogTailResponse{Events: events, NextSeq: next})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Debug("response encode failed", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, ErrorResponse{Error: message})
}
