package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/AaronLay10/SentientStory/internal/events"
	"github.com/AaronLay10/SentientStory/internal/logging"
	"github.com/AaronLay10/SentientStory/internal/orchestrator"
	"github.com/AaronLay10/SentientStory/internal/registry"
	"github.com/AaronLay10/SentientStory/internal/storage/postgres"
	"github.com/AaronLay10/SentientStory/internal/story"
)

// Journal serves the persisted event history. The Postgres client satisfies it.
type Journal interface {
	Query(limit int) ([]postgres.EventRow, error)
}

// Options configures a Server.
type Options struct {
	Manager *orchestrator.Manager
	Journal Journal // nil disables /events/history
	Auth    *Auth   // nil leaves operator routes open
	Logger  *zap.Logger
	GameID  string
}

// Server is the HTTP front end of a story: the browser player, the session
// API and the operator endpoints.
type Server struct {
	manager   *orchestrator.Manager
	journal   Journal
	auth      *Auth
	logger    *zap.Logger
	gameID    string
	readiness *Readiness
	metrics   *metrics
}

// NewServer creates a server. The story counts as loaded since the manager
// already holds a validated graph.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		manager:   opts.Manager,
		journal:   opts.Journal,
		auth:      opts.Auth,
		logger:    logger,
		gameID:    opts.GameID,
		readiness: &Readiness{},
	}
	s.readiness.SetStoryLoaded(opts.Manager != nil && opts.Manager.Graph() != nil)
	s.metrics = newMetrics(s)
	return s
}

// Readiness returns the readiness tracker so callers can register probes.
func (s *Server) Readiness() *Readiness {
	return s.readiness
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", playerUIHandler)
	mux.HandleFunc("GET /health", healthHandler)
	mux.HandleFunc("GET /ready", s.readyHandler)
	mux.Handle("GET /metrics", s.metrics.handler())

	mux.HandleFunc("GET /story", s.storyHandler)
	mux.HandleFunc("POST /sessions", s.startSessionHandler)
	mux.HandleFunc("GET /sessions/{id}", s.sessionHandler)
	mux.HandleFunc("POST /sessions/{id}/choose", s.chooseHandler)
	mux.HandleFunc("DELETE /sessions/{id}", s.endSessionHandler)
	mux.HandleFunc("GET /registry", s.registryHandler)

	mux.HandleFunc("GET /operator", s.auth.RequireAnyRole(operatorUIHandler))
	mux.HandleFunc("GET /operator/sessions", s.auth.RequireAnyRole(s.operatorSessionsHandler))
	mux.HandleFunc("DELETE /operator/sessions/{id}", s.auth.RequireAdmin(s.operatorEndSessionHandler))
	mux.HandleFunc("GET /events", s.auth.RequireAnyRole(eventsHandler))
	mux.HandleFunc("GET /events/history", s.auth.RequireAnyRole(s.eventsHistoryHandler))
	mux.HandleFunc("GET /ws/events", s.auth.RequireAnyRole(s.wsEventsHandler))

	return logging.Middleware(s.logger, mux)
}

// Serve listens on port until ctx is cancelled, then shuts down gracefully.
// A nil or disabled tlsCfg serves plain HTTP.
func (s *Server) Serve(ctx context.Context, port int, tlsCfg *TLSConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	tc, err := tlsCfg.Load()
	if err != nil {
		return err
	}
	srv.TLSConfig = tc

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("API listening", zap.String("addr", srv.Addr), zap.Bool("tls", tc != nil))
		if tc != nil {
			errCh <- srv.ListenAndServeTLS("", "")
		} else {
			errCh <- srv.ListenAndServe()
		}
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Hijacked websocket connections are not tracked by Shutdown.
	events.CloseAllSubscribers()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}

type StartRequest struct {
	Player string `json:"player"`
}

type ChooseRequest struct {
	Choice int `json:"choice"`
}

// StoryResponse describes the loaded story.
type StoryResponse struct {
	story.Meta
	Entry  string `json:"entry"`
	Scenes int    `json:"scenes"`
}

// RegistryResponse is the /registry payload.
type RegistryResponse = registry.Snapshot

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{OK: false, Error: msg})
}

// statusFor maps manager and engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, story.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, orchestrator.ErrTooManySessions):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "story",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	resp := s.readiness.Check()
	status := http.StatusOK
	if !resp.Ready {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.Snapshot())
}

func (s *Server) eventsHistoryHandler(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, "event journal not configured")
		return
	}

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}

	rows, err := s.journal.Query(limit)
	if err != nil {
		s.logger.Error("Event history query failed", zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "event journal unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) storyHandler(w http.ResponseWriter, r *http.Request) {
	g := s.manager.Graph()
	writeJSON(w, http.StatusOK, StoryResponse{
		Meta:   g.Meta(),
		Entry:  g.Entry(),
		Scenes: g.Len(),
	})
}

func (s *Server) startSessionHandler(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	view, err := s.manager.Start(req.Player)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) sessionHandler(w http.ResponseWriter, r *http.Request) {
	view, err := s.manager.View(r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) chooseHandler(w http.ResponseWriter, r *http.Request) {
	var req ChooseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: choice must be a number")
		return
	}

	view, err := s.manager.Choose(r.PathValue("id"), req.Choice)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) endSessionHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.End(r.PathValue("id")); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) registryHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Registry().Snapshot())
}

func (s *Server) operatorSessionsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.Sessions())
}

// operatorEndSessionHandler discards a stuck session from the operator console.
func (s *Server) operatorEndSessionHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.End(id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	user, _, _ := r.BasicAuth()
	s.logger.Info("Session ended by operator", zap.String("session_id", id), zap.String("user", user))
	w.WriteHeader(http.StatusNoContent)
}
