// cmd/stubapi serves an in-memory booking API for local development.
// It seeds demo accounts and events and mounts the routes under /api.
package main

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

	"github.com/Ayaanthaher/ticket-booking/internal/stubapi"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	// ── 1. Build the stub ────────────────────────────────────────────────
	stub := stubapi.New([]byte(getEnv("JWT_SECRET", "stubapi-dev-secret")), logger)
	stub.Seed()
	logger.Info("seeded demo data",
		"user", "user@example.com",
		"admin", "admin@example.com",
		"events", len(stub.Store.Events()),
	)

	// ── 2. Build the router ───────────────────────────────────────────────
	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Get("/health", stubapi.HealthCheck)
	r.Mount("/api", stub.Router)

	// ── 3. Start server with graceful shutdown ────────────────────────────
	port := getEnv("PORT", "5000")
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("stub api listening", "url", "http://localhost:"+port+"/api")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
