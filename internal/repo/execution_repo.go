package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/craftflow/internal/domain"
)

// ExecutionRepo — репозиторий выполнений workflow.
type ExecutionRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionRepo создаёт новый ExecutionRepo.
func NewExecutionRepo(pool *pgxpool.Pool) *ExecutionRepo {
	return &ExecutionRepo{pool: pool}
}

const executionColumns = `id, workflow_id, workflow_version_id, project_id, status, error,
	started_at, finished_at, created_at`

// Create создаёт выполнение.
func (r *ExecutionRepo) Create(ctx context.Context, e *domain.WorkflowExecution) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, workflow_version_id, project_id, status, error,
		                                 started_at, finished_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		e.ID,
		e.WorkflowID,
		e.WorkflowVersionID,
		nullString(e.ProjectID),
		e.Status,
		nullString(e.Error),
		e.StartedAt,
		e.FinishedAt,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// GetByID возвращает выполнение по ID.
func (r *ExecutionRepo) GetByID(ctx context.Context, id string) (*domain.WorkflowExecution, error) {
	query := `SELECT ` + executionColumns + ` FROM workflow_executions WHERE id = $1`
	return scanExecution(r.pool.QueryRow(ctx, query, id))
}

// Update обновляет статус выполнения.
func (r *ExecutionRepo) Update(ctx context.Context, e *domain.WorkflowExecution) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE workflow_executions
		SET status = $2, error = $3, started_at = $4, finished_at = $5
		WHERE id = $1
	`, e.ID, e.Status, nullString(e.Error), e.StartedAt, e.FinishedAt)
	if err != nil {
		return fmt.Errorf("update execution: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Finish завершает выполнение условным UPDATE: из двух одновременных
// завершений применяется только первое.
func (r *ExecutionRepo) Finish(ctx context.Context, e *domain.WorkflowExecution) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE workflow_executions
		SET status = $2, error = $3, finished_at = $4
		WHERE id = $1 AND status IN ('PENDING', 'RUNNING')
	`, e.ID, e.Status, nullString(e.Error), e.FinishedAt)
	if err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if result.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM workflow_executions WHERE id = $1)`, e.ID).Scan(&exists); err != nil {
		return fmt.Errorf("finish execution: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return fmt.Errorf("%w: execution %s is already finished", ErrInvalidState, e.ID)
}

// List возвращает выполнения с фильтрацией, новые первыми.
func (r *ExecutionRepo) List(ctx context.Context, filter ExecutionFilter) ([]domain.WorkflowExecution, error) {
	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	query := `SELECT ` + executionColumns + `
		FROM workflow_executions
		WHERE ($1::text IS NULL OR workflow_version_id = $1)
		  AND ($2::text IS NULL OR status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.pool.Query(ctx, query,
		nullString(filter.WorkflowVersionID),
		nullString(string(filter.Status)),
		filter.Limit,
		filter.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list executions: %w", err)
	}
	defer rows.Close()

	var executions []domain.WorkflowExecution
	for rows.Next() {
		e, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		executions = append(executions, *e)
	}
	return executions, rows.Err()
}

func scanExecution(row pgx.Row) (*domain.WorkflowExecution, error) {
	var e domain.WorkflowExecution
	var projectID, execError *string

	err := row.Scan(
		&e.ID,
		&e.WorkflowID,
		&e.WorkflowVersionID,
		&projectID,
		&e.Status,
		&execError,
		&e.StartedAt,
		&e.FinishedAt,
		&e.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution: %w", err)
	}

	e.ProjectID = fromNull(projectID)
	e.Error = fromNull(execError)
	return &e, nil
}
