// The trail-guide content server: a revisioned content store with asset
// management and release bundle generation, exposed as a JSON API under
// /api/v1.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/lmittmann/tint"

	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/api"
	"github.com/davidlougheed/trail-guide-content-server/pkg/trailguide/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("could not load configuration", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(buildLogger(cfg))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := cfg.BuildService(ctx)
	if err != nil {
		slog.Error("could not build service", "error", err)
		os.Exit(1)
	}
	defer svc.Store().Close()

	authz, err := cfg.BuildAuthorizer()
	if err != nil {
		slog.Error("could not build authorizer", "error", err)
		os.Exit(1)
	}
	if cfg.AuthSecret == "" {
		slog.Warn("no auth secret configured; all requests are allowed")
	}

	logger := httplog.NewLogger("trail-guide-content-server", httplog.Options{
		LogLevel: parseLevel(cfg.LogLevel),
		Concise:  true,
	})

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httplog.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Mount("/api/v1", api.NewHandler(svc, authz, cfg.MaxContentLength).Routes())

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("listening", "addr", srv.Addr, "database_type", cfg.DatabaseType,
			"asset_storage", cfg.AssetStorage)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func buildLogger(cfg *config.ServerConfig) *slog.Logger {
	level := parseLevel(cfg.LogLevel)

	var handler slog.Handler
	switch cfg.LogFormat {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	default:
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
