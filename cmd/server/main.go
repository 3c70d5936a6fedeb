// uptain-sync - Builds uptain tracker snapshots for a headless storefront
// and keeps a live session's tracking script in sync.
// Designed for Cloud Run deployment with stateless preview endpoints.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uptain-sync/internal/config"
	"uptain-sync/internal/handler"
	"uptain-sync/internal/middleware"
	"uptain-sync/internal/shopapi"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Initialize structured logger
	logger := initLogger()

	// Load configuration
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger.Info("configuration loaded",
		slog.String("shop_id", cfg.ShopID),
		slog.String("environment", cfg.Environment),
		slog.String("shop_domain", cfg.Shop.Domain),
		slog.Bool("tracker_configured", cfg.Configured()),
	)

	rt, err := runtimeFrom(cfg)
	if err != nil {
		return err
	}

	// The storefront client is optional: without it revenue is "0.00" and
	// wishlists come only from the submitted state.
	var shop *shopapi.Client
	if cfg.Shop.URL != "" {
		shop, err = shopapi.New(shopapi.Config{
			ShopURL: cfg.Shop.URL,
			APIKey:  cfg.Shop.APIKey,
		})
		if err != nil {
			return fmt.Errorf("creating storefront client: %w", err)
		}
	}

	var live *handler.Live
	if cfg.Live {
		live = handler.NewLive(rt, shop, cfg.LiveSession, logger)
		defer live.Close()
	}

	h := handler.New(rt, shop, live, logger)

	// Setup routes
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)

	// Apply middleware chain: recovery → request id → logging → consent header → handler
	// Recovery must be outermost to catch panics from logging middleware
	httpHandler := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logging(logger),
		middleware.TrackingConsent(logger),
	)(mux)

	// Settings edits in the config file apply without a restart.
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		err := config.Watch(ctx, path, logger, func(next *config.Config) {
			nextRT, err := runtimeFrom(next)
			if err != nil {
				logger.Error("config reload rejected", slog.String("error", err.Error()))
				return
			}
			h.Reconfigure(nextRT)
			logger.Info("configuration reloaded", slog.Bool("tracker_configured", next.Configured()))
		})
		if err != nil {
			return fmt.Errorf("watching config: %w", err)
		}
	}

	// Create HTTP server with timeouts
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Channel for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	// Channel for server errors
	serverErr := make(chan error, 1)

	// Start server in goroutine
	go func() {
		logger.Info("server starting",
			slog.String("port", cfg.Port),
			slog.String("addr", server.Addr),
			slog.Bool("live", live != nil),
		)
		serverErr <- server.ListenAndServe()
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-serverErr:
		if err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-shutdown:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		stop()

		// Give outstanding requests time to complete
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			// Force close if graceful shutdown fails
			server.Close()
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logger.Info("server stopped")
	return nil
}

// runtimeFrom derives the handler settings from configuration.
func runtimeFrom(cfg *config.Config) (handler.Runtime, error) {
	predicates, err := cfg.Predicates()
	if err != nil {
		return handler.Runtime{}, fmt.Errorf("compiling personal data rules: %w", err)
	}
	return handler.Runtime{
		Settings:   cfg.AggregateSettings(),
		Script:     cfg.ScriptSettings(),
		Policy:     cfg.ConsentPolicy(),
		Predicates: predicates,
	}, nil
}

// initLogger creates a structured logger configured for the environment.
// Production uses JSON format for GCP Cloud Logging compatibility.
// Development uses text format for readability.
func initLogger() *slog.Logger {
	level := slog.LevelInfo
	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{
		Level: level,
		// Add source location in debug mode
		AddSource: level == slog.LevelDebug,
	}

	// JSON for production (Cloud Logging compatible), text for development
	if os.Getenv("ENVIRONMENT") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
