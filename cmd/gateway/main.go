package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	httpAdapter "github.com/feastly/realtime-gateway/internal/adapters/primary/http"
	mw "github.com/feastly/realtime-gateway/internal/adapters/primary/http/middleware"
	"github.com/feastly/realtime-gateway/internal/adapters/primary/websocket"
	"github.com/feastly/realtime-gateway/internal/auth"
	"github.com/feastly/realtime-gateway/internal/config"
	"github.com/feastly/realtime-gateway/internal/infrastructure/logging"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Initialize Structured Logger
	logger := logging.NewLogger(logging.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		Output:      os.Stdout,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Environment,
	})

	logger.Info("starting gateway",
		"version", cfg.App.Version,
		"environment", cfg.App.Environment,
		"config", cfg.String(),
	)

	// 3. Initialize Security & Real-time Components
	tokenManager := auth.NewTokenManager(cfg.JWT.Secret)
	hub := websocket.NewHub(logger, websocket.Options{
		SendBufferSize:  cfg.WebSocket.SendBufferSize,
		WriteWait:       cfg.WebSocket.WriteWait,
		SweepInterval:   cfg.WebSocket.SweepInterval,
		LivenessTimeout: cfg.WebSocket.LivenessTimeout,
	})
	go hub.RunSupervisor()

	// 4. Initialize Rate Limiter
	var upgradeRateLimiter *mw.RateLimiter
	if cfg.RateLimit.Enabled {
		upgradeRateLimiter = mw.NewRateLimiter(mw.RateLimiterConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			BurstSize:         cfg.RateLimit.BurstSize,
			CleanupInterval:   time.Minute,
			TTL:               3 * time.Minute,
		})
	}

	// 5. Handlers (Primary Adapters)
	upgradeHandler := httpAdapter.NewUpgradeHandler(hub, tokenManager, cfg, logger)
	healthHandler := httpAdapter.NewHealthHandler(hub, cfg.App.Version)

	// 6. Setup Router
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.RequestID)
	r.Use(mw.RequestLogger(logger))
	r.Use(mw.RecoveryLogger(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
		MaxAge:         300,
	}))

	if upgradeRateLimiter != nil {
		r.Use(upgradeRateLimiter.Middleware)
	}

	// Unmatched paths get a bare status line, same as upgrade rejections.
	r.NotFound(upgradeHandler.NotFound)

	// Health check endpoints
	r.Get("/health", healthHandler.HandleHealth)
	r.Get("/health/live", healthHandler.HandleLiveness)
	r.Get("/health/ready", healthHandler.HandleReadiness)

	// Upgrade routes (authentication happens inside the handler)
	upgradeHandler.RegisterRoutes(r)

	// 7. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:        cfg.Server.Port,
		Handler:     r,
		ReadTimeout: cfg.Server.ReadTimeout,
		IdleTimeout: cfg.Server.IdleTimeout,
		// No WriteTimeout: it would sever long-lived websocket streams.
	}

	// Start server in goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("shutdown signal received", "signal", sig.String())

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	// Stop accepting upgrades, then tear down every live connection.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	hub.Shutdown()

	logger.Info("server shutdown complete")
}
