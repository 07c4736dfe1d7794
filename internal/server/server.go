// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer. It decides:
//   - which collaborators exist, from configuration (wiring.go)
//   - which URL patterns map to which handler functions
//   - how the server starts and stops gracefully
//
// DEPENDENCY INJECTION FLOW:
//
//	main.go:  config.Load → server.New
//	New:      stores + clients → services → handlers → routes
//
// Handlers only see services, services only see repository interfaces and
// collaborator interfaces. This package is the one place that knows the
// concrete types.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/spanisami/cv-backend/internal/config"
	"github.com/spanisami/cv-backend/internal/handler"
	"github.com/spanisami/cv-backend/internal/middleware"
)

// shutdownGrace is how long in-flight requests get after SIGINT/SIGTERM.
// Generation requests can run for a whole LLM timeout.
const shutdownGrace = 30 * time.Second

// Server represents the HTTP server and everything it owns.
//
// RESOURCE MANAGEMENT:
// The SQLite pool and the Redis client (when configured) are opened in New
// and released by Close. Start calls Close on its way out.
type Server struct {
	router *chi.Mux
	config config.Config
	logger *slog.Logger
	deps   *components
}

// New builds every collaborator named by cfg and mounts the routes.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	deps, err := buildComponents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	s := &Server{
		router: chi.NewRouter(),
		config: cfg,
		logger: logger,
		deps:   deps,
	}
	s.setupRoutes()
	return s, nil
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
// GET    /test               → LLM greeting (checks the provider end to end)
// GET    /healthz            → liveness, no upstream call
// POST   /build_profile      → free text → structured profile
// POST   /generate_cv        → profile (inline or by id) → CV text
// GET    /stats              → counters
// POST   /chat               → coaching / interview practice
// POST   /request_code       → issue a login code
// POST   /verify_code        → redeem a login code
// POST   /upload             → multipart pass-through to object storage
// GET    /files/signed_url   → time-limited download link
//
// MIDDLEWARE ORDER MATTERS:
// 1. RequestID, so every later layer can read the id
// 2. RealIP, so the log line shows the client and not the proxy
// 3. Logger, which must wrap Recoverer to see the 500 it writes
// 4. Recoverer
// 5. CORS, answering preflight requests before routing
func (s *Server) setupRoutes() {
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.config.CORSAllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	opts := handler.Options{ExposeUpstreamErrors: s.config.ExposeUpstreamErrors}
	d := s.deps

	healthHandler := handler.NewHealthHandler(d.health, opts, s.logger)
	profileHandler := handler.NewProfileHandler(d.profiles, opts, s.logger)
	chatHandler := handler.NewChatHandler(d.chat, opts, s.logger)
	loginHandler := handler.NewLoginHandler(d.login, opts, s.logger)
	mediaHandler := handler.NewMediaHandler(d.media, opts, s.logger)

	s.router.Get("/test", healthHandler.HandleTest)
	s.router.Get("/healthz", healthHandler.HandleHealthz)

	s.router.Post("/build_profile", profileHandler.HandleBuildProfile)
	s.router.Post("/generate_cv", profileHandler.HandleGenerateCV)
	s.router.Get("/stats", profileHandler.HandleStats)

	s.router.Post("/chat", chatHandler.HandleChat)

	s.router.Post("/request_code", loginHandler.HandleRequestCode)
	s.router.Post("/verify_code", loginHandler.HandleVerifyCode)

	s.router.Post("/upload", mediaHandler.HandleUpload)
	s.router.Get("/files/signed_url", mediaHandler.HandleSignedURL)
}

// Start serves until SIGINT/SIGTERM, then drains in-flight requests and
// releases the stores.
//
// TIMEOUTS:
// WriteTimeout covers the whole handler, so it has to outlast the LLM
// timeout or slow generations would be cut off mid-response.
func (s *Server) Start() error {
	defer s.Close()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      s.config.LLMTimeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", s.config.Port)),
			slog.String("users", s.deps.userBackend),
			slog.String("codes", s.deps.codeBackend),
			slog.Bool("sms", s.deps.smsEnabled),
			slog.Bool("storage", s.deps.storageEnabled),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}

// Close releases the database and cache connections. Safe to call twice.
func (s *Server) Close() error {
	return s.deps.close()
}
