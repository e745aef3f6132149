// Package server exposes the loopback ops API: health, status, and read
// views over positions, trades and scheduled orders, plus a manual replay
// nudge. It is an operator surface, not a public one; it binds to loopback
// and carries no auth.
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
)

// Config carries the server wiring.
type Config struct {
	Host     string
	Port     int
	Handlers *Handlers
	Log      zerolog.Logger
}

// Server is the ops HTTP server.
type Server struct {
	httpServer *http.Server
	log        zerolog.Logger
}

// New builds the router and server.
func New(cfg Config) *Server {
	log := cfg.Log.With().Str("component", "server").Logger()

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	h := cfg.Handlers
	r.Get("/health", h.Health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/positions", h.Positions)
		r.Get("/trades", h.Trades)
		r.Get("/history", h.History)
		r.Get("/scheduled", h.Scheduled)
		r.Post("/scheduler/replay", h.TriggerReplay)
	})

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		log: log,
	}
}

// Start blocks serving until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpServer.Addr).Msg("Ops server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ops server failed: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests up to the context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("elapsed", time.Since(start)).
				Msg("Request handled")
		})
	}
}
