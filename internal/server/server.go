package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codemist/webai-bridge/internal/config"
	"github.com/codemist/webai-bridge/internal/handlers"
	"github.com/codemist/webai-bridge/internal/middleware"
	"github.com/codemist/webai-bridge/internal/upstream"
)

type Server struct {
	config   *config.Manager
	registry *upstream.Registry
	logger   *slog.Logger
	server   *http.Server
}

func New(configManager *config.Manager, logger *slog.Logger) *Server {
	return &Server{
		config:   configManager,
		registry: buildRegistry(configManager.Get(), logger),
		logger:   logger,
	}
}

// buildRegistry registers one upstream client per backend that has cookie
// credentials configured.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *upstream.Registry {
	registry := upstream.NewRegistry()

	for _, backend := range cfg.Backends {
		switch backend.Name {
		case "claude":
			if backend.SessionKey != "" {
				registry.Register(upstream.NewClaudeClient(backend.SessionKey, logger))
			}
		case "gemini":
			if backend.Secure1PSID != "" {
				registry.Register(upstream.NewGeminiClient(backend.Secure1PSID, backend.Secure1PSIDTS, logger))
			}
		default:
			logger.Warn("Ignoring unknown backend in config", "backend", backend.Name)
		}
	}

	if len(registry.List()) == 0 {
		logger.Warn("No backend credentials configured, API requests will fail until cookies are added")
	}

	return registry
}

func (s *Server) Start() error {
	cfg := s.config.Get()
	if cfg == nil {
		return fmt.Errorf("configuration not loaded")
	}

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	mux := s.setupRoutes()

	s.server = &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	s.logger.Info("Starting server", "address", addr, "backends", s.registry.List())

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Server error", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	s.logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	s.logger.Info("Server exited")
	return nil
}

func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	messagesHandler := handlers.NewMessagesHandler(s.config, s.registry, s.logger)
	chatHandler := handlers.NewChatHandler(s.config, s.registry, s.logger)
	healthHandler := handlers.NewHealthHandler(s.registry, s.logger)

	middlewareSet := middleware.NewMiddlewareSet(s.logger)

	// Method-less patterns so CORS preflight OPTIONS reaches the middleware.
	mux.Handle("/health", middlewareSet.HealthChain().Handler(healthHandler))
	mux.Handle("/v1/messages", middlewareSet.DefaultChain().Handler(messagesHandler))
	mux.Handle("/v1/chat/completions", middlewareSet.DefaultChain().Handler(chatHandler))

	return mux
}
