package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/craftflow/internal/domain"
)

// EdgeRepo — репозиторий рёбер workflow.
type EdgeRepo struct {
	pool *pgxpool.Pool
}

// NewEdgeRepo создаёт новый EdgeRepo.
func NewEdgeRepo(pool *pgxpool.Pool) *EdgeRepo {
	return &EdgeRepo{pool: pool}
}

// Create сохраняет ребро.
func (r *EdgeRepo) Create(ctx context.Context, e *domain.Edge) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO workflow_edges (id, workflow_id, workflow_version_id, source, source_output, target, target_input)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, e.ID, e.WorkflowID, e.WorkflowVersionID, e.Source, e.SourceOutput, e.Target, e.TargetInput)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert edge: %w", err)
	}
	return nil
}

// Delete удаляет ребро по концам.
func (r *EdgeRepo) Delete(ctx context.Context, e domain.Edge) error {
	result, err := r.pool.Exec(ctx, `
		DELETE FROM workflow_edges
		WHERE workflow_version_id = $1
		  AND source = $2 AND source_output = $3
		  AND target = $4 AND target_input = $5
	`, e.WorkflowVersionID, e.Source, e.SourceOutput, e.Target, e.TargetInput)
	if err != nil {
		return fmt.Errorf("delete edge: %w", err)
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByVersion возвращает рёбра версии.
func (r *EdgeRepo) ListByVersion(ctx context.Context, versionID string) ([]domain.Edge, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workflow_id, workflow_version_id, source, source_output, target, target_input
		FROM workflow_edges
		WHERE workflow_version_id = $1
		ORDER BY created_at, id
	`, versionID)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var edges []domain.Edge
	for rows.Next() {
		var e domain.Edge
		if err := rows.Scan(&e.ID, &e.WorkflowID, &e.WorkflowVersionID,
			&e.Source, &e.SourceOutput, &e.Target, &e.TargetInput); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		edges = append(edges, e)
	}
	return edges, rows.Err()
}
