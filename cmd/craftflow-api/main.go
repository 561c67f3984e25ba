// craftflow-api — HTTP API: вершины, рёбра, Context и запуск выполнений.
//
// Запуск выполнения создаёт записи в Postgres и публикует шаги точек входа
// в RabbitMQ; шаги выполняет craftflow-runner.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shaiso/craftflow/internal/api"
	"github.com/shaiso/craftflow/internal/config"
	"github.com/shaiso/craftflow/internal/mq"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/orchestrator"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		telemetry.SetupLogger("INFO", "json").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := telemetry.SetupLogger(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting craftflow-api")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Подключаемся к базе данных
	pool, err := repo.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := repo.Migrate(ctx, pool); err != nil {
		logger.Error("failed to apply schema", "error", err)
		os.Exit(1)
	}
	logger.Info("connected to database")

	registry := nodes.DefaultRegistry()
	orchCfg := orchestrator.Config{
		Store:    repo.New(pool),
		Registry: registry,
		Logger:   logger,
	}

	// RabbitMQ: без брокера шаги подхватит опрос runner
	mqConn, err := mq.NewConnection(cfg.RabbitMQURL, logger)
	if err != nil {
		logger.Warn("RabbitMQ not available, steps will be picked up by polling", "error", err)
	} else {
		defer mqConn.Close()
		if err := mq.SetupTopology(ctx, mqConn); err != nil {
			logger.Warn("failed to setup topology", "error", err)
		}
		orchCfg.Publisher = mq.NewPublisher(mqConn, logger)
	}

	handler := api.NewHandler(api.Config{
		Store:        orchCfg.Store,
		Orchestrator: orchestrator.New(orchCfg),
		Registry:     registry,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              cfg.APIAddr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	// Graceful shutdown с таймаутом 10 секунд
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("stopped")
}
