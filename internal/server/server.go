// Package server exposes the bridge's HTTP surface: the signed Instagram
// webhook, health and status endpoints, and the WebSocket upgrade path.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/edgard/instabridge/internal/config"
	"github.com/edgard/instabridge/internal/database"
	"github.com/edgard/instabridge/internal/logger"
	"github.com/edgard/instabridge/internal/normalize"
	"github.com/edgard/instabridge/internal/queue"
	"github.com/edgard/instabridge/internal/realtime"
	"github.com/edgard/instabridge/internal/sync"
)

// Server hosts the HTTP surface over the bridge components.
type Server struct {
	cfg       config.ServerConfig
	security  config.SecurityConfig
	logger    *slog.Logger
	store     database.Store
	db        *database.DB
	queue     *queue.Queue
	hub       *realtime.Hub
	orch      *sync.Orchestrator
	processor *normalize.Processor
	media     *normalize.MediaCache

	httpServer *http.Server
}

// New assembles the server and its router. Optional components may be
// nil; the corresponding endpoints then report them as absent.
func New(
	cfg config.ServerConfig,
	security config.SecurityConfig,
	log *slog.Logger,
	store database.Store,
	db *database.DB,
	q *queue.Queue,
	hub *realtime.Hub,
	orch *sync.Orchestrator,
	processor *normalize.Processor,
	media *normalize.MediaCache,
) *Server {
	if log == nil {
		log = slog.Default()
	}

	s := &Server{
		cfg:       cfg,
		security:  security,
		logger:    log.With("component", "server"),
		store:     store,
		db:        db,
		queue:     q,
		hub:       hub,
		orch:      orch,
		processor: processor,
		media:     media,
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(logger.HTTPMiddleware(log))

	r.Post("/webhook/instagram", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/stats", s.handleStats)
	if hub != nil {
		r.Get("/ws", hub.ServeHTTP)
	}

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// Handler exposes the router, used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Run serves HTTP until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if s.hub != nil {
		s.hub.CloseAll()
	}
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}
	s.logger.Info("HTTP server stopped")
	return ctx.Err()
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("Failed to encode response", "error", err)
	}
}
