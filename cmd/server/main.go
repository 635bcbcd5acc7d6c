// TechTree interview practice server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/techtree/internal/api"
	"github.com/ashureev/techtree/internal/app"
	"github.com/ashureev/techtree/internal/config"
	"github.com/ashureev/techtree/internal/identity"
	"github.com/ashureev/techtree/internal/middleware"
	"github.com/ashureev/techtree/internal/probe"
	"github.com/ashureev/techtree/internal/sweeper"
	"github.com/ashureev/techtree/internal/transcript"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "session_backend", cfg.SessionBackend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		slog.Error("Failed to initialize interview stack", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := stack.Close(); closeErr != nil {
			slog.Error("Failed to close stores", "error", closeErr)
		}
	}()
	slog.Info("Interview stack ready", "model", stack.LLM.Model(), "tracks", len(stack.Tree.Tracks))

	conversations, err := transcript.New(transcript.Config{
		Enabled:       cfg.Transcript.Enabled,
		Dir:           cfg.Transcript.Dir,
		GlobalEnabled: cfg.Transcript.GlobalEnabled,
		GlobalPath:    cfg.Transcript.GlobalPath,
		QueueSize:     cfg.Transcript.QueueSize,
		OnDrop:        stack.Metrics.IncTranscriptDropped,
	}, logger)
	if err != nil {
		slog.Error("Failed to initialize transcript logger", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := conversations.Close(); closeErr != nil {
			slog.Error("Failed to close transcript logger", "error", closeErr)
		}
	}()

	limiter := api.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst, 0)
	defer limiter.Close()

	// Initialize handlers.
	interviewHandler := api.NewInterviewHandler(api.InterviewConfig{
		Orchestrator: stack.Orchestrator,
		Limiter:      limiter,
		Transcript:   conversations,
		Metrics:      stack.Metrics,
	})
	catalogHandler := api.NewCatalogHandler(stack.Tree, stack.Repo)
	healthHandler := api.NewHealthHandler(map[string]api.Pinger{"store": stack.Repo})
	wsHandler := api.NewWebSocketHandler(interviewHandler, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(allowedOrigins(cfg)))

	// Public routes.
	healthHandler.RegisterHealth(r)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", stack.Metrics.Handler())
	}

	// Everything else carries an anonymous identity.
	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(stack.Repo, cfg.IsDevelopment()))
		interviewHandler.RegisterRoutes(r)
		catalogHandler.RegisterRoutes(r)
		r.Get("/ws/interview", wsHandler.ServeHTTP)
	})

	// SSE turns can take as long as the model does, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	sweeper.New(stack.Sessions, cfg.SessionTTL, 0, logger).Start(ctx)

	var healthProbe *probe.Server
	if cfg.GRPCPort != "" {
		lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			slog.Error("Failed to listen for gRPC health", "error", err, "port", cfg.GRPCPort)
			os.Exit(1)
		}
		healthProbe = probe.New(stack.Repo, 0, logger)
		go func() {
			if err := healthProbe.Serve(ctx, lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if healthProbe != nil {
		healthProbe.Shutdown()
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		return
	}

	slog.Info("Server stopped successfully")
}

func allowedOrigins(cfg *config.Config) []string {
	if cfg.IsDevelopment() || cfg.FrontendURL == "" {
		return []string{"*"}
	}
	return []string{cfg.FrontendURL}
}
