// craftflow-runner — выполняет шаги выполнений в headless-режиме.
//
// Runner:
//   - получает шаги из RabbitMQ (steps.ready)
//   - берёт блокировку шага в Redis
//   - собирает граф версии, выполняет вершину и сохраняет снимки
//   - переотправляет зависшие шаги опросом Postgres
//
// Runners масштабируются горизонтально.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/shaiso/craftflow/internal/api"
	"github.com/shaiso/craftflow/internal/config"
	"github.com/shaiso/craftflow/internal/lock"
	"github.com/shaiso/craftflow/internal/mq"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/orchestrator"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/runner"
	"github.com/shaiso/craftflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting craftflow-runner")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// DB pool
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	logger.Info("database connected")

	store := repo.New(pool)
	registry := nodes.DefaultRegistry()
	orchCfg := orchestrator.Config{Store: store, Registry: registry, Logger: logger}

	// RabbitMQ
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, running in polling-only mode", "error", err)
	} else {
		defer mqConn.Close()
		logger.Info("RabbitMQ connected")

		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		orchCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	// Redis: блокировки шагов между экземплярами runner
	var locker lock.Locker
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis not available, using in-process step locks", "error", err)
		locker = lock.NewLocalLocker()
	} else {
		logger.Info("Redis connected", "addr", cfg.Redis.Addr)
		locker = lock.NewRedisLocker(rdb)
	}
	pingCancel()

	r := runner.New(runner.Config{
		Store:           store,
		Orchestrator:    orchestrator.New(orchCfg),
		Registry:        registry,
		Locker:          locker,
		Conn:            mqConn,
		ExecuteTimeout:  cfg.Execution.ExecuteTimeout,
		ContextDebounce: cfg.Execution.ContextDebounce,
		LockTTL:         cfg.Execution.LockTTL(),
		PollInterval:    cfg.Execution.PollInterval,
		StaleAfter:      cfg.Execution.StaleAfter,
		Prefetch:        cfg.Execution.Prefetch,
		Logger:          logger,
	})
	r.Start(ctx)

	// HTTP mux: /healthz + /metrics
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", api.Health)
	mux.Handle("GET /metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.RunnerAddr(), Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = server.Shutdown(shutdownCtx)

	r.Stop()
	logger.Info("craftflow-runner stopped")
}
