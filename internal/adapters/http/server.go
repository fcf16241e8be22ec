package http

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/longregen/archetype/internal/adapters/http/handlers"
	"github.com/longregen/archetype/internal/adapters/http/middleware"
	"github.com/longregen/archetype/internal/config"
	"github.com/longregen/archetype/internal/ports"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server is the read-only API over stored populations and conversations.
type Server struct {
	config           config.ServerConfig
	router           *chi.Mux
	httpServer       *http.Server
	evolutionRepo    ports.EvolutionRepository
	conversationRepo ports.ConversationRepository
	store            handlers.Pinger
}

func NewServer(
	cfg config.ServerConfig,
	evolutionRepo ports.EvolutionRepository,
	conversationRepo ports.ConversationRepository,
	store handlers.Pinger,
) *Server {
	s := &Server{
		config:           cfg,
		evolutionRepo:    evolutionRepo,
		conversationRepo: conversationRepo,
		store:            store,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recovery)
	r.Use(middleware.Metrics)

	healthHandler := handlers.NewHealthHandler(s.store)
	r.Get("/health", healthHandler.Handle)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		populations := handlers.NewPopulationsHandler(s.evolutionRepo)
		r.Get("/populations", populations.List)
		r.Get("/populations/{id}", populations.Get)
		r.Get("/populations/{id}/elites", populations.Elites)
		r.Get("/populations/{id}/generations", populations.Generations)

		frameworks := handlers.NewFrameworksHandler(s.evolutionRepo)
		r.Get("/frameworks/{id}", frameworks.Get)

		agents := handlers.NewAgentsHandler(s.conversationRepo)
		r.Get("/agents/{id}/history", agents.History)
	})

	s.router = r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	slog.Info("starting HTTP server", "addr", addr)
	return s.httpServer.ListenAndServe()
}

func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	slog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Router() *chi.Mux {
	return s.router
}
