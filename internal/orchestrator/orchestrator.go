package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/telemetry"
	"github.com/shaiso/craftflow/internal/workflow"
)

// StepPublisher отправляет шаг выполнения исполнителю.
type StepPublisher interface {
	PublishExecutionStep(ctx context.Context, executionID, workflowNodeID string) error
}

// Orchestrator управляет жизненным циклом выполнений.
type Orchestrator struct {
	store     *repo.Store
	registry  *nodes.Registry
	publisher StepPublisher
	logger    *slog.Logger
}

// Config — зависимости Orchestrator.
type Config struct {
	Store    *repo.Store
	Registry *nodes.Registry

	// Publisher — nil: шаги только отмечаются в БД и подхватываются опросом.
	Publisher StepPublisher

	Logger *slog.Logger
}

// New создаёт Orchestrator.
func New(cfg Config) *Orchestrator {
	reg := cfg.Registry
	if reg == nil {
		reg = nodes.DefaultRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     cfg.Store,
		registry:  reg,
		publisher: cfg.Publisher,
		logger:    logger,
	}
}

// Plan загружает версию и вычисляет её управляющую структуру.
func (o *Orchestrator) Plan(ctx context.Context, versionID string) (*Plan, error) {
	spec, err := workflow.Load(ctx, o.store, versionID, "")
	if err != nil {
		return nil, err
	}
	return BuildPlan(o.registry, spec)
}

// StartExecution создаёт выполнение версии и отправляет шаги точкам входа.
func (o *Orchestrator) StartExecution(ctx context.Context, versionID string) (*domain.WorkflowExecution, error) {
	plan, err := o.Plan(ctx, versionID)
	if err != nil {
		return nil, fmt.Errorf("plan version %s: %w", versionID, err)
	}
	if len(plan.Vertices) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyVersion, versionID)
	}
	if len(plan.Entries) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoEntryPoints, versionID)
	}

	first := plan.Vertices[0]
	exec := &domain.WorkflowExecution{
		ID:                uuid.NewString(),
		WorkflowID:        first.WorkflowID,
		WorkflowVersionID: versionID,
		ProjectID:         first.ProjectID,
		Status:            domain.ExecutionStatusPending,
		CreatedAt:         time.Now(),
	}
	if err := o.store.Executions.Create(ctx, exec); err != nil {
		return nil, fmt.Errorf("create execution: %w", err)
	}

	batch := make([]domain.ExecutionNode, 0, len(plan.Vertices))
	for _, v := range plan.Vertices {
		batch = append(batch, domain.ExecutionNode{
			ID:             uuid.NewString(),
			ExecutionID:    exec.ID,
			WorkflowNodeID: v.ID,
		})
	}
	if err := o.store.ExecutionNodes.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create execution nodes: %w", err)
	}

	exec.MarkRunning()
	if err := o.store.Executions.Update(ctx, exec); err != nil {
		return nil, fmt.Errorf("update execution to running: %w", err)
	}

	logger := telemetry.WithWorkflowID(telemetry.WithExecutionID(o.logger, exec.ID), exec.WorkflowID)
	logger.Info("execution started",
		"workflow_version_id", versionID,
		"nodes", len(batch),
		"entries", plan.Entries,
	)

	for _, id := range plan.Entries {
		if err := o.Dispatch(ctx, exec.ID, id); err != nil {
			return exec, err
		}
	}
	return exec, nil
}

// Dispatch отмечает вершину запущенной и публикует шаг. Ошибка публикации
// только логируется: отмеченный шаг переотправит опрос зависших шагов.
func (o *Orchestrator) Dispatch(ctx context.Context, executionID, nodeID string) error {
	if err := o.store.ExecutionNodes.MarkTriggered(ctx, executionID, nodeID); err != nil {
		return fmt.Errorf("mark %s triggered: %w", nodeID, err)
	}

	logger := telemetry.WithExecutionID(o.logger, executionID).With("node_id", nodeID)
	if o.publisher == nil {
		logger.Warn("step publisher is not configured, step left for polling")
		return nil
	}
	if err := o.publisher.PublishExecutionStep(ctx, executionID, nodeID); err != nil {
		logger.Error("failed to publish execution step", "error", err)
		return nil
	}
	logger.Debug("execution step dispatched")
	return nil
}

// Finalize проверяет управляющие вершины и переводит выполнение
// в SUCCEEDED или FAILED. Незавершённое выполнение остаётся RUNNING.
func (o *Orchestrator) Finalize(ctx context.Context, executionID string) (*domain.WorkflowExecution, error) {
	exec, err := o.execution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if exec.IsFinished() {
		return exec, nil
	}

	plan, err := o.Plan(ctx, exec.WorkflowVersionID)
	if err != nil {
		return nil, fmt.Errorf("plan version %s: %w", exec.WorkflowVersionID, err)
	}
	list, err := o.store.ExecutionNodes.ListByExecution(ctx, executionID)
	if err != nil {
		return nil, fmt.Errorf("list execution nodes: %w", err)
	}
	byNode := make(map[string]*domain.ExecutionNode, len(list))
	for i := range list {
		byNode[list[i].WorkflowNodeID] = &list[i]
	}

	pending := 0
	for _, id := range plan.Control {
		en, ok := byNode[id]
		if !ok || !en.HasState() {
			pending++
			continue
		}
		if reason, failed := nodeFailure(en); failed {
			return exec, o.finish(ctx, exec, fmt.Sprintf("node %s failed: %s", id, reason))
		}
		if !en.Complete {
			pending++
		}
	}
	if pending > 0 {
		o.logger.Debug("execution in progress", "execution_id", executionID, "pending", pending)
		return exec, nil
	}
	return exec, o.finish(ctx, exec, "")
}

// Fail переводит выполнение в FAILED (таймаут шага, ошибка runner).
func (o *Orchestrator) Fail(ctx context.Context, executionID, reason string) error {
	exec, err := o.execution(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.IsFinished() {
		return nil
	}
	return o.finish(ctx, exec, reason)
}

func (o *Orchestrator) execution(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	exec, err := o.store.Executions.GetByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get execution: %w", err)
	}
	return exec, nil
}

// finish завершает выполнение: пустой reason — SUCCEEDED.
// Если другой runner уже завершил выполнение, exec заменяется сохранённым.
func (o *Orchestrator) finish(ctx context.Context, exec *domain.WorkflowExecution, reason string) error {
	if reason == "" {
		exec.MarkSucceeded()
	} else {
		exec.MarkFailed(reason)
	}

	logger := telemetry.WithExecutionID(o.logger, exec.ID)
	err := o.store.Executions.Finish(ctx, exec)
	if errors.Is(err, repo.ErrInvalidState) {
		stored, getErr := o.execution(ctx, exec.ID)
		if getErr != nil {
			return getErr
		}
		*exec = *stored
		logger.Debug("execution already finished", "status", exec.Status)
		return nil
	}
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	telemetry.Executions.WithLabelValues(string(exec.Status)).Inc()

	if exec.Status == domain.ExecutionStatusFailed {
		logger.Warn("execution failed", "error", reason, "duration", exec.Duration())
	} else {
		logger.Info("execution succeeded", "duration", exec.Duration())
	}
	return nil
}

// nodeFailure сообщает, находится ли снимок вершины в состоянии error.
func nodeFailure(en *domain.ExecutionNode) (string, bool) {
	snap, err := actor.ParseSnapshot(en.State)
	if err != nil {
		return err.Error(), true
	}
	if !snap.Matches(node.StateError) {
		return "", false
	}
	if snap.Memory.Error != nil {
		return snap.Memory.Error.Error(), true
	}
	return "machine error", true
}
