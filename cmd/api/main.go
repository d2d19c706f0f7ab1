package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/beetlebooks/beetlebooks/internal/config"
	"github.com/beetlebooks/beetlebooks/internal/engine"
	"github.com/beetlebooks/beetlebooks/internal/engine/tb"
	"github.com/beetlebooks/beetlebooks/internal/infra"
	"github.com/beetlebooks/beetlebooks/internal/logging"
	"github.com/beetlebooks/beetlebooks/internal/obs"
	"github.com/beetlebooks/beetlebooks/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	obs.Init()
	obs.InitBuildInfo()

	ctx := context.Background()

	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		db, err = infra.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("connect postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory metadata store")
	}

	var cache *redis.Client
	if cfg.RedisURL != "" {
		cache, err = infra.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
	} else {
		logger.Warn("REDIS_URL not set, idempotency and resolver cache disabled")
	}

	var eng engine.Engine
	if cfg.TBAddress != "" {
		client, err := tb.Dial(cfg.TBClusterID, cfg.TBAddress)
		if err != nil {
			logger.Error("connect tigerbeetle", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		eng = client
	} else {
		logger.Warn("TB_ADDRESS not set, using in-memory ledger engine")
		eng = engine.NewInMemory()
	}

	srv, err := server.New(cfg, db, cache, eng, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
