// Package server exposes the SmartRouter pipeline over HTTP: health/status
// probes, a route endpoint that runs one candidate through the full
// pipeline, and a due-reviews endpoint over the ReviewScheduler. Grounded
// on internal/server/server.go's chi-router setup, middleware stack, and
// graceful start/shutdown shape.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"smartrouter/internal/candidate"
	"smartrouter/internal/config"
	"smartrouter/internal/logger"
	"smartrouter/internal/router"
	"smartrouter/internal/scheduler"
	"smartrouter/internal/vectorindex"
)

// Server is the SmartRouter HTTP API.
type Server struct {
	mux        *chi.Mux
	httpServer *http.Server
	config     config.Server
	log        *zerolog.Logger

	validator *candidate.Validator
	router    *router.Router
	sched     *scheduler.Scheduler
	idx       vectorindex.VectorIndex

	startedAt time.Time
}

// New constructs a Server wired to the given pipeline collaborators.
func New(cfg config.Server, validator *candidate.Validator, r *router.Router, sched *scheduler.Scheduler, idx vectorindex.VectorIndex) *Server {
	s := &Server{
		mux:       chi.NewRouter(),
		config:    cfg,
		log:       logger.Get(),
		validator: validator,
		router:    r,
		sched:     sched,
		idx:       idx,
		startedAt: time.Now().UTC(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s
}

func (s *Server) setupMiddleware() {
	s.mux.Use(middleware.RequestID)
	s.mux.Use(middleware.RealIP)
	s.mux.Use(middleware.Recoverer)
	s.mux.Use(middleware.Timeout(60 * time.Second))

	if s.config.CORS.Enabled {
		s.mux.Use(cors.Handler(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}
}

func (s *Server) setupRoutes() {
	s.mux.Get("/health", s.handleHealth)
	s.mux.Get("/api/status", s.handleStatus)

	s.mux.Route("/api", func(r chi.Router) {
		r.Post("/route", s.handleRoute)
		r.Get("/reviews/due", s.handleDueReviews)
		r.Post("/reviews/{conceptId}/answer", s.handleAnswerReview)
		r.Get("/folders", s.handleListFolders)
	})
}

// Start runs the HTTP server until it is shut down or fails.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("starting HTTP server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed to start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

// Mux returns the chi router, useful for testing.
func (s *Server) Mux() *chi.Mux {
	return s.mux
}
