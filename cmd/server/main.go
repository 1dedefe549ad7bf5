package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/plsfix/plsfix/internal/api"
	"github.com/plsfix/plsfix/internal/bus"
	"github.com/plsfix/plsfix/internal/config"
	"github.com/plsfix/plsfix/internal/logging"
	"github.com/plsfix/plsfix/internal/proxy"
	"github.com/plsfix/plsfix/internal/ratelimit"
	"github.com/plsfix/plsfix/internal/registry"
	"github.com/plsfix/plsfix/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Dev)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting plsfix server")

	store, err := registry.Open(cfg.DBPath)
	if err != nil {
		logger.Fatal("failed to open registry", zap.String("path", cfg.DBPath), zap.Error(err))
	}
	logger.Info("registry ready", zap.String("path", cfg.DBPath))

	sessions := session.NewManager(cfg.SessionTTL, logger)
	defer sessions.Close()

	proxySvc := proxy.New(store, sessions, cfg.BackendURL, cfg.WebappURL, cfg.FetchTimeout, logger)
	limiter := ratelimit.NewLimiter(cfg.CreateRatePerHour, cfg.CreateRateBurst)
	hub := bus.NewHub(logger)

	handler := api.NewHandler(store, proxySvc, sessions, hub, logger)
	router := handler.SetupRoutes(store, limiter, cfg.CreateRatePerHour)

	srv := &http.Server{
		Addr:        cfg.Addr(),
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// Page proxying can spend up to FetchTimeout waiting on the target
		// site, so the write timeout must sit above it.
		WriteTimeout: cfg.FetchTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr()))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
