package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"fieldsched/internal/api"
	"fieldsched/internal/buildinfo"
	"fieldsched/internal/config"
	"fieldsched/internal/metrics"
	"fieldsched/internal/store"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		zap.NewExample().Fatal("load config", zap.Error(err))
	}
	logger := newLogger(cfg)
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer closeStore()

	metrics.RegisterDefault()
	srvDeps, err := api.NewServer(cfg, st, logger)
	if err != nil {
		logger.Fatal("failed to init server", zap.Error(err))
	}
	defer func() { _ = srvDeps.Close() }()

	worker := srvDeps.NewWebhookWorker()
	go worker.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srvDeps.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("shutdown", zap.Error(err))
		}
	}()

	info := buildinfo.Info()
	logger.Info("API listening", zap.String("addr", srv.Addr), zap.String("version", info["version"]), zap.String("commit", info["commit"]), zap.String("env", cfg.Env))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("API stopped")
}

func newLogger(cfg config.Config) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Env == "development" {
		zc = zap.NewDevelopmentConfig()
	}
	if lvl, err := zapcore.ParseLevel(cfg.LogLevel); err == nil {
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// openStore uses Postgres when DATABASE_URL is set and the in-memory store
// otherwise, optionally seeded from a YAML fixture.
func openStore(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Store, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if cfg.Migrate {
			if err := pg.Migrate(ctx); err != nil {
				_ = pg.Close()
				return nil, nil, err
			}
		}
		logger.Info("using postgres store", zap.Bool("migrated", cfg.Migrate))
		return pg, func() { _ = pg.Close() }, nil
	}
	m := store.NewMemory()
	if cfg.SeedFile != "" {
		f, err := os.Open(cfg.SeedFile)
		if err != nil {
			return nil, nil, err
		}
		defer f.Close()
		if err := m.LoadFixture(f); err != nil {
			return nil, nil, err
		}
		logger.Info("seeded memory store", zap.String("file", cfg.SeedFile))
	} else {
		logger.Warn("DATABASE_URL not set, using empty in-memory store")
	}
	return m, func() {}, nil
}
