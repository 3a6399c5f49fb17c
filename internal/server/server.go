// Package server exposes the monitor API: scheduler statistics, call
// states, run history, and a live SSE event stream.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/me/toolflow/internal/runlog"
	"github.com/me/toolflow/internal/scheduler"
)

// Server is the toolflow monitor HTTP server.
type Server struct {
	router    chi.Router
	logger    *slog.Logger
	startTime time.Time
	scheduler *scheduler.Scheduler
	history   runlog.Store // optional; run endpoints return 503 when nil
}

// Option configures optional Server dependencies.
type Option func(*Server)

// WithHistory sets the run history store used by the /runs endpoints.
func WithHistory(store runlog.Store) Option {
	return func(s *Server) {
		s.history = store
	}
}

// New creates a Server with all routes registered.
func New(sched *scheduler.Scheduler, logger *slog.Logger, opts ...Option) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		logger:    logger.With("component", "server"),
		startTime: time.Now(),
		scheduler: sched,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/calls", s.handleCalls)
		r.Get("/calls/{id}", s.handleGetCall)
		r.Get("/runs", s.handleListRuns)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/sse/events", s.handleSSEEvents)
	})
}
