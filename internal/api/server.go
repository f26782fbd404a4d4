package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-commerce/heron/internal/analytics"
	"github.com/opensource-commerce/heron/internal/conversation"
	"github.com/opensource-commerce/heron/internal/domain"
	"github.com/opensource-commerce/heron/internal/fraud"
	"github.com/opensource-commerce/heron/internal/history"
	"github.com/opensource-commerce/heron/internal/policy"
)

// Server represents the HTTP API server.
type Server struct {
	router  *chi.Mux
	handler *Handler
	server  *http.Server
	config  domain.ServerConfig
}

// NewServer creates a new API server.
func NewServer(cfg domain.ServerConfig, repo domain.Repository, cache domain.Cache, bus domain.EventBus, compressor *policy.Compressor, scorer *fraud.Scorer, chat *conversation.Handler, hist *history.Service, reports *analytics.Service, version string) *Server {
	handler := NewHandler(repo, cache, bus, compressor, scorer, chat, hist, reports, version)
	router := chi.NewRouter()

	// Global middleware stack
	router.Use(CORSMiddleware)         // CORS for browser clients
	router.Use(RecoverMiddleware)      // Recover from panics
	router.Use(TracingMiddleware)      // OpenTelemetry tracing
	router.Use(LoggingMiddleware)      // Request logging
	router.Use(middleware.RealIP)      // Extract real IP
	router.Use(middleware.Compress(5)) // Gzip compression

	// Health endpoints (no tenant required)
	router.Get("/health", handler.Health)
	router.Get("/ready", handler.Ready)

	// API routes (tenant required)
	router.Route("/", func(r chi.Router) {
		r.Use(TenantMiddleware)

		// Policy compression and retrieval
		r.Post("/policies", handler.CompressPolicy)
		r.Get("/policies", handler.ListPolicies)
		r.Get("/policies/{sellerID}", handler.GetPolicy)

		// Return evaluation
		r.Post("/returns/evaluate", handler.EvaluateReturn)
		r.Get("/returns/{id}", handler.GetReturn)

		// Evaluation retrieval
		r.Get("/evaluations/{id}", handler.GetEvaluation)

		// Fraud signal management
		r.Get("/signals", handler.ListSignals)
		r.Post("/signals/reload", handler.ReloadSignals)

		// Conversational returns assistant
		r.Post("/chat", handler.Chat)
		r.Get("/conversations/{id}", handler.GetConversation)

		// Analytics
		r.Get("/analytics", handler.GetAnalytics)
	})

	return &Server{
		router:  router,
		handler: handler,
		config:  cfg,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.config.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(s.config.WriteTimeout) * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the Chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Handler returns the handler for testing.
func (s *Server) Handler() *Handler {
	return s.handler
}
