package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/craftflow/internal/lock"
	"github.com/shaiso/craftflow/internal/mq"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/orchestrator"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/telemetry"
	"github.com/shaiso/craftflow/internal/workflow"
)

const (
	defaultPollInterval = 10 * time.Second
	defaultStaleAfter   = time.Minute
	defaultBatchSize    = 50
	defaultPrefetch     = 5
)

// Runner выполняет шаги выполнений.
type Runner struct {
	store        *repo.Store
	orchestrator *orchestrator.Orchestrator
	persistence  *Persistence
	registry     *nodes.Registry
	locker       lock.Locker
	conn         *mq.Connection
	logger       *slog.Logger

	executeTimeout  time.Duration
	contextDebounce time.Duration
	lockTTL         time.Duration
	pollInterval    time.Duration
	staleAfter      time.Duration
	batchSize       int
	prefetch        int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config — конфигурация Runner.
type Config struct {
	Store        *repo.Store
	Orchestrator *orchestrator.Orchestrator
	Registry     *nodes.Registry

	// Locker — по умолчанию блокировки в памяти процесса.
	Locker lock.Locker

	// Conn — nil: шаги берутся только опросом.
	Conn *mq.Connection

	ExecuteTimeout  time.Duration
	ContextDebounce time.Duration

	// LockTTL — время жизни блокировки шага (по умолчанию ExecuteTimeout + 30s).
	LockTTL time.Duration

	PollInterval time.Duration
	// StaleAfter — через сколько отправленный, но незавершённый шаг переотправляется.
	StaleAfter time.Duration
	BatchSize  int
	Prefetch   int

	Logger *slog.Logger
}

// New создаёт Runner.
func New(cfg Config) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := cfg.Registry
	if reg == nil {
		reg = nodes.DefaultRegistry()
	}
	orch := cfg.Orchestrator
	if orch == nil {
		orch = orchestrator.New(orchestrator.Config{Store: cfg.Store, Registry: reg, Logger: logger})
	}
	locker := cfg.Locker
	if locker == nil {
		locker = lock.NewLocalLocker()
	}

	r := &Runner{
		store:           cfg.Store,
		orchestrator:    orch,
		persistence:     NewPersistence(cfg.Store, orch),
		registry:        reg,
		locker:          locker,
		conn:            cfg.Conn,
		logger:          logger,
		executeTimeout:  cfg.ExecuteTimeout,
		contextDebounce: cfg.ContextDebounce,
		lockTTL:         cfg.LockTTL,
		pollInterval:    cfg.PollInterval,
		staleAfter:      cfg.StaleAfter,
		batchSize:       cfg.BatchSize,
		prefetch:        cfg.Prefetch,
	}
	if r.executeTimeout <= 0 {
		r.executeTimeout = node.DefaultExecuteTimeout
	}
	if r.lockTTL <= 0 {
		r.lockTTL = r.executeTimeout + 30*time.Second
	}
	if r.pollInterval <= 0 {
		r.pollInterval = defaultPollInterval
	}
	if r.staleAfter <= 0 {
		r.staleAfter = defaultStaleAfter
	}
	if r.batchSize <= 0 {
		r.batchSize = defaultBatchSize
	}
	if r.prefetch <= 0 {
		r.prefetch = defaultPrefetch
	}
	return r
}

// Start запускает потребителя очереди (если есть соединение) и опрос.
func (r *Runner) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.logger.Info("starting runner",
		"execute_timeout", r.executeTimeout,
		"poll_interval", r.pollInterval,
		"stale_after", r.staleAfter,
	)

	if r.conn != nil {
		consumer := mq.NewConsumer(r.conn, r.logger, mq.ConsumerConfig{
			Queue:    mq.QueueStepsReady,
			Handler:  r.handleStep,
			Prefetch: r.prefetch,
		})
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				r.logger.Error("step consumer stopped", "error", err)
			}
		}()
	} else {
		r.logger.Warn("message broker is not configured, steps are picked up by polling only")
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.pollLoop(ctx)
	}()
}

// Stop останавливает Runner и ждёт текущие шаги.
func (r *Runner) Stop() {
	r.logger.Info("stopping runner...")
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	r.logger.Info("runner stopped")
}

func (r *Runner) handleStep(ctx context.Context, msg *mq.Message) error {
	step, err := mq.DecodeStep(msg)
	if err != nil {
		// некорректное сообщение не станет корректным при повторе
		r.logger.Error("dropping malformed step", "message_id", msg.ID, "error", err)
		return nil
	}
	return r.RunStep(ctx, step.ExecutionID, step.WorkflowNodeID)
}

// RunStep выполняет вершину nodeID в выполнении executionID.
//
// Занятая блокировка, отсутствующее или завершённое выполнение — шаг
// пропускается без ошибки. Ошибка возвращается только для повторяемых
// сбоев (хранилище, отмена ctx).
func (r *Runner) RunStep(ctx context.Context, executionID, nodeID string) error {
	logger := telemetry.WithExecutionID(r.logger, executionID).With("node_id", nodeID)

	held, err := r.locker.Acquire(ctx, lock.StepKey(executionID, nodeID), r.lockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		telemetry.Steps.WithLabelValues("locked").Inc()
		logger.Debug("step is already running elsewhere")
		return nil
	}
	if err != nil {
		return err
	}
	defer func() {
		if err := held.Release(context.Background()); err != nil {
			logger.Warn("failed to release step lock", "error", err)
		}
	}()

	exec, err := r.store.Executions.GetByID(ctx, executionID)
	if errors.Is(err, repo.ErrNotFound) {
		telemetry.Steps.WithLabelValues("skipped").Inc()
		logger.Warn("execution not found, skipping step")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get execution: %w", err)
	}
	if exec.IsFinished() {
		telemetry.Steps.WithLabelValues("skipped").Inc()
		logger.Debug("execution already finished, skipping step", "status", exec.Status)
		return nil
	}

	spec, err := workflow.Load(ctx, r.store, exec.WorkflowVersionID, executionID)
	if err != nil {
		return fmt.Errorf("load execution graph: %w", err)
	}
	g, err := workflow.Build(spec, workflow.Options{
		Registry:        r.registry,
		Store:           r.persistence,
		Logger:          telemetry.WithExecutionID(r.logger, executionID),
		Headless:        true,
		ExecuteTimeout:  r.executeTimeout,
		ContextDebounce: r.contextDebounce,
	})
	if err != nil {
		telemetry.Steps.WithLabelValues("failed").Inc()
		return r.orchestrator.Fail(ctx, executionID, fmt.Sprintf("build graph: %v", err))
	}
	defer g.Close()

	n, ok := g.Node(nodeID)
	if !ok {
		telemetry.Steps.WithLabelValues("failed").Inc()
		err := fmt.Errorf("%w: %s", ErrNodeNotInVersion, nodeID)
		logger.Error("cannot run step", "error", err)
		return r.orchestrator.Fail(ctx, executionID, err.Error())
	}

	logger.Info("running step", "node_type", n.Type())
	if err := n.Execute(ctx, nil, nil, executionID); err != nil {
		if ctx.Err() != nil {
			return err
		}
		telemetry.Steps.WithLabelValues("failed").Inc()
		logger.Warn("step failed", "error", err)
		return r.orchestrator.Fail(ctx, executionID, err.Error())
	}
	telemetry.Steps.WithLabelValues("executed").Inc()

	if _, err := r.orchestrator.Finalize(ctx, executionID); err != nil {
		return fmt.Errorf("finalize execution: %w", err)
	}
	return nil
}

func (r *Runner) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

// poll переотправляет шаги, которые были запущены, но не завершились.
func (r *Runner) poll(ctx context.Context) {
	stale, err := r.store.ExecutionNodes.ListStale(ctx, time.Now().Add(-r.staleAfter), r.batchSize)
	if err != nil {
		r.logger.Error("failed to list stale steps", "error", err)
		return
	}
	if len(stale) == 0 {
		return
	}
	r.logger.Debug("poll found stale steps", "count", len(stale))

	for _, en := range stale {
		if ctx.Err() != nil {
			return
		}
		if err := r.RunStep(ctx, en.ExecutionID, en.WorkflowNodeID); err != nil {
			r.logger.Error("failed to run stale step",
				"execution_id", en.ExecutionID,
				"node_id", en.WorkflowNodeID,
				"error", err,
			)
		}
	}
}
