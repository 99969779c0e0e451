package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/vmkdxailabs/chatwidget/adapters/assistant"
	"github.com/vmkdxailabs/chatwidget/adapters/emailjs"
	"github.com/vmkdxailabs/chatwidget/internal/api"
	"github.com/vmkdxailabs/chatwidget/internal/config"
	"github.com/vmkdxailabs/chatwidget/internal/observability"
	"github.com/vmkdxailabs/chatwidget/internal/websocket"
)

func main() {
	// Bootstrap logger until .env has been read
	logger := newLogger(os.Getenv("APP_ENV") == "development")

	config.LoadDotEnv(logger)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err))
	}

	// Initialize logger
	logger = newLogger(cfg.IsDevelopment())
	defer logger.Sync()

	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	// Initialize adapters
	assistantClient, err := assistant.NewClient(cfg.Assistant, logger)
	if err != nil {
		logger.Fatal("Failed to create assistant client", zap.Error(err))
	}
	notifier := emailjs.NewNotifier(cfg.EmailJS, logger)

	// Initialize WebSocket hub, one widget per connection
	hub := websocket.NewHub(websocket.SessionConfig{
		Assistant:           assistantClient,
		Notifier:            notifier,
		Capture:             cfg.Capture,
		CaptureStartTimeout: cfg.CaptureStartTimeout,
		Conversation:        cfg.Conversation,
		AllowedOrigins:      cfg.AllowedOrigins,
	}, metrics, logger)
	go hub.Run()

	cleanup := websocket.NewSessionCleanupService(hub, cfg.IdleTimeout, logger)
	cleanup.Start()

	// Create Echo instance
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(corsConfig(cfg.AllowedOrigins)))

	// Initialize API routes
	api.InitRoutes(e, hub, logger)

	// Graceful shutdown
	go func() {
		if err := e.Start(cfg.BindAddr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("shutting down the server", zap.Error(err))
		}
	}()

	logger.Info("Chat widget host started",
		zap.String("addr", cfg.BindAddr),
		zap.String("env", cfg.Env),
		zap.String("assistant", assistantClient.BaseURL()),
		zap.Bool("leadRelay", cfg.EmailJS.Configured()))

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Server is shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cleanup.Stop()
	hub.Close()

	// Lead notifications are detached from their turns; give them until the
	// shutdown deadline to finish.
	finished := make(chan struct{})
	go func() {
		hub.Wait()
		close(finished)
	}()
	select {
	case <-finished:
	case <-ctx.Done():
		logger.Warn("Shutdown deadline reached before widget sessions finished")
	}

	logger.Info("Server exited")
}

func newLogger(development bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func corsConfig(origins []string) middleware.CORSConfig {
	cfg := middleware.DefaultCORSConfig
	if len(origins) > 0 && !(len(origins) == 1 && strings.TrimSpace(origins[0]) == "*") {
		cfg.AllowOrigins = origins
	}
	return cfg
}
