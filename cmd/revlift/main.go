package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/revlift/revlift/internal/config"
	"github.com/revlift/revlift/internal/database"
	"github.com/revlift/revlift/internal/httpserver"
	"github.com/revlift/revlift/internal/metrics"
	"github.com/revlift/revlift/internal/middleware"
	"github.com/revlift/revlift/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg)
	defer logger.Sync()

	logger.Info("starting revlift",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.Ints("horizons", cfg.Analysis.Horizons),
	)

	ctx := context.Background()

	// Pick a dataset store: ClickHouse for large event logs, Postgres
	// as the usual durable backend, in-memory when neither is up.
	var store storage.DatasetStore

	if cfg.ClickHouse.Enabled {
		ch, err := database.NewClickHouseDB(ctx, cfg.ClickHouse, logger)
		if err != nil {
			logger.Warn("ClickHouse not available", zap.Error(err))
		} else {
			defer ch.Close()
			chStore := storage.NewClickHouseDatasetStore(ch.Conn)
			if err := chStore.InitSchema(ctx); err != nil {
				logger.Warn("ClickHouse schema init failed", zap.Error(err))
			} else {
				store = chStore
			}
		}
	}

	if store == nil && cfg.Database.Enabled {
		db, err := database.NewPostgresDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available", zap.Error(err))
		} else {
			defer db.Close()
			pgStore := storage.NewPostgresDatasetStore(db.Pool)
			if err := pgStore.InitSchema(ctx); err != nil {
				logger.Warn("PostgreSQL schema init failed", zap.Error(err))
			} else {
				store = pgStore
			}
		}
	}

	if store == nil {
		logger.Warn("no durable store available, datasets will not survive restarts")
		store = storage.NewInMemoryDatasetStore()
	}

	// Redis caches computed aggregate tables.
	var cache *storage.ResultCache
	if cfg.Redis.Enabled {
		rdb, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, aggregate caching disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			cache = storage.NewResultCache(rdb.Client, cfg.Analysis.CacheTTL)
		}
	}

	m := metrics.NewMetrics("revlift")

	deps := &httpserver.Dependencies{
		Store:   store,
		Cache:   cache,
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
	}

	handler := httpserver.NewServer(deps)

	// Middleware chain: recovery outermost, then logging, auth, rate
	// limiting.
	rateLimiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger)
	rateLimiter.SetMetrics(m)
	handler = rateLimiter.Handler(handler)
	handler = middleware.NewAuthMiddleware(cfg.Auth, logger).Handler(handler)
	handler = middleware.NewLoggingMiddleware(logger).Handler(handler)
	handler = middleware.NewRecoveryMiddleware(logger).Handler(handler)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func setupLogger(cfg *config.Config) *zap.Logger {
	var zapCfg zap.Config

	if cfg.IsDevelopment() {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	// Set log level
	switch cfg.Log.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to create logger: %v", err))
	}

	return logger
}
