// Package api exposes the HTTP trigger for the schedule poller.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/ignite/campaign-dispatch/internal/scheduler"
)

// Ticker runs one polling pass.
type Ticker interface {
	Tick(ctx context.Context) (scheduler.TickResult, error)
}

// Server holds the handler dependencies.
type Server struct {
	ticker Ticker
	secret string
	health *HealthChecker
}

// NewServer creates a Server. An empty secret rejects every trigger.
func NewServer(ticker Ticker, secret string, health *HealthChecker) *Server {
	return &Server{ticker: ticker, secret: secret, health: health}
}

// Routes builds the router.
func (s *Server) Routes(corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: corsOrigins,
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", CronSecretHeader},
			MaxAge:         300,
		}))
	}

	r.Get("/health", s.health.HandleHealth)
	r.Get("/health/ready", s.health.HandleReadiness)
	r.Post("/process-scheduled", s.HandleProcessScheduled)
	return r
}
