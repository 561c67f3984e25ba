package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/craftflow/internal/domain"
)

// ExecutionNodeRepo — репозиторий вершин в выполнении.
type ExecutionNodeRepo struct {
	pool *pgxpool.Pool
}

// NewExecutionNodeRepo создаёт новый ExecutionNodeRepo.
func NewExecutionNodeRepo(pool *pgxpool.Pool) *ExecutionNodeRepo {
	return &ExecutionNodeRepo{pool: pool}
}

const executionNodeColumns = `id, execution_id, workflow_node_id, state, complete, triggered_at, updated_at`

// CreateBatch создаёт записи вершин выполнения одним batch.
func (r *ExecutionNodeRepo) CreateBatch(ctx context.Context, nodes []domain.ExecutionNode) error {
	if len(nodes) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, n := range nodes {
		batch.Queue(`
			INSERT INTO workflow_execution_nodes (id, execution_id, workflow_node_id, state, complete, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
		`, n.ID, n.ExecutionID, n.WorkflowNodeID, nullJSON(n.State), n.Complete)
	}

	if err := r.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert execution nodes: %w", err)
	}
	return nil
}

// GetByID возвращает вершину выполнения по ID.
func (r *ExecutionNodeRepo) GetByID(ctx context.Context, id string) (*domain.ExecutionNode, error) {
	query := `SELECT ` + executionNodeColumns + ` FROM workflow_execution_nodes WHERE id = $1`
	return scanExecutionNode(r.pool.QueryRow(ctx, query, id))
}

// GetByExecutionAndNode возвращает запись вершины nodeID в выполнении.
func (r *ExecutionNodeRepo) GetByExecutionAndNode(ctx context.Context, executionID, nodeID string) (*domain.ExecutionNode, error) {
	query := `SELECT ` + executionNodeColumns + `
		FROM workflow_execution_nodes
		WHERE execution_id = $1 AND workflow_node_id = $2`
	return scanExecutionNode(r.pool.QueryRow(ctx, query, executionID, nodeID))
}

// ListByExecution возвращает все вершины выполнения.
func (r *ExecutionNodeRepo) ListByExecution(ctx context.Context, executionID string) ([]domain.ExecutionNode, error) {
	query := `SELECT ` + executionNodeColumns + `
		FROM workflow_execution_nodes
		WHERE execution_id = $1
		ORDER BY workflow_node_id`
	return r.list(ctx, query, executionID)
}

// UpdateState перезаписывает снимок автомата вершины.
func (r *ExecutionNodeRepo) UpdateState(ctx context.Context, id string, state json.RawMessage, complete bool) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE workflow_execution_nodes
		SET state = $2, complete = $3, updated_at = now()
		WHERE id = $1
	`, id, nullJSON(state), complete)
	if err != nil {
		return fmt.Errorf("update execution node: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTriggered отмечает отправку шага выполнения вершине.
func (r *ExecutionNodeRepo) MarkTriggered(ctx context.Context, executionID, nodeID string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE workflow_execution_nodes
		SET triggered_at = now(), updated_at = now()
		WHERE execution_id = $1 AND workflow_node_id = $2
	`, executionID, nodeID)
	if err != nil {
		return fmt.Errorf("mark triggered: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListStale возвращает незавершённые вершины с давно отправленным шагом.
func (r *ExecutionNodeRepo) ListStale(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionNode, error) {
	query := `SELECT en.id, en.execution_id, en.workflow_node_id, en.state, en.complete, en.triggered_at, en.updated_at
		FROM workflow_execution_nodes en
		JOIN workflow_executions e ON e.id = en.execution_id
		WHERE en.triggered_at IS NOT NULL
		  AND en.triggered_at < $1
		  AND en.complete = false
		  AND e.status = 'RUNNING'
		ORDER BY en.triggered_at
		LIMIT $2`
	return r.list(ctx, query, before, limit)
}

func (r *ExecutionNodeRepo) list(ctx context.Context, query string, args ...any) ([]domain.ExecutionNode, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list execution nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.ExecutionNode
	for rows.Next() {
		n, err := scanExecutionNode(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *n)
	}
	return nodes, rows.Err()
}

func scanExecutionNode(row pgx.Row) (*domain.ExecutionNode, error) {
	var n domain.ExecutionNode
	var state []byte

	err := row.Scan(
		&n.ID,
		&n.ExecutionID,
		&n.WorkflowNodeID,
		&state,
		&n.Complete,
		&n.TriggeredAt,
		&n.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan execution node: %w", err)
	}

	if state != nil {
		n.State = state
	}
	return &n, nil
}

// nullJSON возвращает nil для пустого снимка (NULL в БД).
func nullJSON(state json.RawMessage) []byte {
	if len(state) == 0 || string(state) == "null" {
		return nil
	}
	return state
}
