package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/nexdesk-ai/nexdesk/internal/api/handlers"
	"github.com/nexdesk-ai/nexdesk/internal/api/middlewares"
	"github.com/nexdesk-ai/nexdesk/internal/config"
	"github.com/nexdesk-ai/nexdesk/internal/core"
	"github.com/nexdesk-ai/nexdesk/internal/logger"
	"github.com/nexdesk-ai/nexdesk/internal/metrics"
	"github.com/nexdesk-ai/nexdesk/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, knowledge *services.KnowledgeService, chat *services.ChatService, msg *services.MessagingService) *Server {
	authHandler := handlers.NewAuthHandler(db, cfg.JWTSecret)
	knowledgeHandler := handlers.NewKnowledgeHandler(knowledge)
	chatHandler := handlers.NewChatHandler(chat)
	webhookHandler := handlers.NewWebhookHandler(msg)

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
	}))

	r.Handle("/metrics", metrics.Handler())

	// Provider callbacks, authenticated upstream by the provider's signature
	// scheme, not by our JWTs.
	r.Post("/webhooks/messages/{businessID}", webhookHandler.Inbound)

	r.Route("/api", func(api chi.Router) {
		// public endpoints
		api.Post("/auth/signup", authHandler.Signup)
		api.Post("/auth/login", authHandler.Login)

		// widget endpoints: anonymous visitors talk to their own sessions
		api.Post("/chat/sessions", chatHandler.CreateSession)
		api.Post("/chat/sessions/{sessionID}/messages", chatHandler.PostMessage)
		api.Get("/chat/sessions/{sessionID}/messages", chatHandler.ListMessages)
		api.Post("/chat/sessions/{sessionID}/lead", chatHandler.MarkLead)

		// protected endpoints
		api.Group(func(protected chi.Router) {
			protected.Use(middleware.JWT(cfg.JWTSecret))
			protected.Post("/knowledge", knowledgeHandler.Ingest)
			protected.Get("/knowledge", knowledgeHandler.List)
			protected.Get("/knowledge/{documentID}", knowledgeHandler.Get)
			protected.Patch("/knowledge/{documentID}/status", knowledgeHandler.SetStatus)

			protected.Post("/chat/preview", chatHandler.Preview)
			protected.Post("/chat/sessions/{sessionID}/close", chatHandler.CloseSession)

			protected.Post("/messages/send", webhookHandler.Send)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}
