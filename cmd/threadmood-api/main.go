package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/pevans/threadmood/config"
	"github.com/pevans/threadmood/history"
	"github.com/pevans/threadmood/logging"
)

// getEnv returns the value of an environment variable or a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	addr := flag.String("addr", getEnv("THREADMOOD_API_ADDR", "localhost:8080"), "Listen address")
	configPath := flag.String("config", getEnv("THREADMOOD_CONFIG", ""), "Config file path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Init(cfg.Log.Level, cfg.Log.Format)

	store, err := history.NewRunStore(cfg.Storage.HistoryDSN)
	if err != nil {
		logging.WithError(err).Error("Failed to open run history", "dsn", cfg.Storage.HistoryDSN)
		os.Exit(1)
	}
	defer store.Close()

	server := history.NewAPIServer(store)
	if origins := getEnv("THREADMOOD_API_ALLOWED_ORIGINS", ""); origins != "" {
		for _, origin := range strings.Split(origins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				server.AllowedOrigins = append(server.AllowedOrigins, origin)
			}
		}
	}
	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           server.SetupRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logging.Logger.Info("Starting history API server", "addr", *addr, "runs", "/api/v1/runs", "metrics", "/metrics")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.WithError(err).Error("Server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logging.WithError(err).Error("Graceful shutdown failed")
	}
	logging.Logger.Info("History API server stopped")
}
