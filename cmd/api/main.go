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

	"github.com/PratikDhanave/call-intake-service/internal/cache"
	"github.com/PratikDhanave/call-intake-service/internal/config"
	"github.com/PratikDhanave/call-intake-service/internal/httpserver"
	"github.com/PratikDhanave/call-intake-service/internal/intake"
	"github.com/PratikDhanave/call-intake-service/internal/logger"
	"github.com/PratikDhanave/call-intake-service/internal/metrics"
	"github.com/PratikDhanave/call-intake-service/internal/store"
)

// main boots the service: config → DB → schema → cache → gate → HTTP server.
func main() {
	// Load runtime config from environment (DB_URL, API_KEYS, MANGO_*).
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	log := logger.New(cfg.Env, cfg.LogLevel)
	log.Info("starting server", slog.String("env", cfg.Env), slog.String("addr", cfg.HTTPAddr))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *logger.Logger) error {
	// Connect to durable storage (Postgres) using a connection pool.
	db, err := store.NewPostgresStore(cfg.DBURL, cfg.DedupeWindow)
	if err != nil {
		return err
	}
	defer db.Close()

	// Apply migrations so `docker compose up --build` is enough.
	if err := db.EnsureSchema(); err != nil {
		return err
	}
	log.Info("database migrations complete")

	// Redis is optional: without it campaigns and reports are read straight
	// from Postgres.
	var c *cache.Cache
	if cfg.RedisURL != "" {
		rdb, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			log.Warn("redis unavailable, running without cache", slog.String("error", err.Error()))
		} else {
			defer func() { _ = rdb.Close() }()
			c = cache.New(rdb, cfg.CacheKeyPrefix, cfg.CacheTTL)
		}
	}

	gate := intake.NewGate(db, cache.NewCampaignDirectory(db, c, log), intake.Options{
		DedupeWindow: cfg.DedupeWindow,
		PhoneRegion:  cfg.PhoneRegion,
		Invalidator:  c,
		Logger:       log,
	})

	router := httpserver.NewRouter(cfg, httpserver.Deps{
		Store:   db,
		Gate:    gate,
		Cache:   c,
		Metrics: metrics.NewIntakeMetrics(nil),
		Logger:  log,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server started", slog.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
