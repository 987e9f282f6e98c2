package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/harshgupt/game-telemetry-system/internal/config"
	"github.com/harshgupt/game-telemetry-system/internal/httpserver"
	"github.com/harshgupt/game-telemetry-system/internal/store"
)

// main boots the service: config → store → schema → HTTP server.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	st, err := store.Open(ctx, cfg.StoreDriver, cfg.DBURL, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Error("failed to connect to store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer st.Close()
	logger.Info("connected to store", "driver", cfg.StoreDriver)

	// Ensure tables/collections and indexes exist so `docker compose up
	// --build` is enough.
	if err := st.EnsureSchema(ctx); err != nil {
		logger.Error("failed to ensure schema", "error", err)
		os.Exit(1)
	}

	router := httpserver.NewRouter(st)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
