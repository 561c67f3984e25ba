package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/craftflow/internal/domain"
)

// NodeRepo — репозиторий вершин workflow.
type NodeRepo struct {
	pool *pgxpool.Pool
}

// NewNodeRepo создаёт новый NodeRepo.
func NewNodeRepo(pool *pgxpool.Pool) *NodeRepo {
	return &NodeRepo{pool: pool}
}

const nodeColumns = `id, workflow_id, workflow_version_id, project_id, type, context_id,
	label, width, height, position_x, position_y, color, created_at, updated_at`

// Upsert создаёт или обновляет вершину в одной транзакции
// вместе с восстановлением её Context.
func (r *NodeRepo) Upsert(ctx context.Context, v *domain.Vertex) error {
	if v.ContextID == "" {
		v.ContextID = uuid.NewString()
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Context мог быть удалён — создаём заново с тем же ID
	_, err = tx.Exec(ctx, `
		INSERT INTO contexts (id, project_id, type, state, updated_at)
		VALUES ($1, $2, $3, '{}'::jsonb, now())
		ON CONFLICT (id) DO NOTHING
	`, v.ContextID, nullString(v.ProjectID), v.Type)
	if err != nil {
		return fmt.Errorf("ensure context: %w", err)
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO workflow_nodes (id, workflow_id, workflow_version_id, project_id, type, context_id,
		                            label, width, height, position_x, position_y, color)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			context_id = EXCLUDED.context_id,
			label = EXCLUDED.label,
			width = EXCLUDED.width,
			height = EXCLUDED.height,
			position_x = EXCLUDED.position_x,
			position_y = EXCLUDED.position_y,
			color = EXCLUDED.color,
			updated_at = now()
		RETURNING created_at, updated_at
	`,
		v.ID,
		v.WorkflowID,
		v.WorkflowVersionID,
		nullString(v.ProjectID),
		v.Type,
		v.ContextID,
		v.Label,
		v.Width,
		v.Height,
		v.Position.X,
		v.Position.Y,
		nullString(v.Color),
	).Scan(&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert node: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID возвращает вершину по ID.
func (r *NodeRepo) GetByID(ctx context.Context, id string) (*domain.Vertex, error) {
	query := `SELECT ` + nodeColumns + ` FROM workflow_nodes WHERE id = $1`
	return scanVertex(r.pool.QueryRow(ctx, query, id))
}

// ListByVersion возвращает вершины версии.
func (r *NodeRepo) ListByVersion(ctx context.Context, versionID string) ([]domain.Vertex, error) {
	query := `SELECT ` + nodeColumns + `
		FROM workflow_nodes
		WHERE workflow_version_id = $1
		ORDER BY created_at, id`

	rows, err := r.pool.Query(ctx, query, versionID)
	if err != nil {
		return nil, fmt.Errorf("list nodes: %w", err)
	}
	defer rows.Close()

	var nodes []domain.Vertex
	for rows.Next() {
		v, err := scanVertex(rows)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, *v)
	}
	return nodes, rows.Err()
}

// Delete удаляет вершину вместе с Context и данными выполнений
// неопубликованных версий.
func (r *NodeRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var contextID, versionID string
	err = tx.QueryRow(ctx,
		`DELETE FROM workflow_nodes WHERE id = $1 RETURNING context_id, workflow_version_id`, id,
	).Scan(&contextID, &versionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM workflow_execution_nodes en
		USING workflow_executions e
		LEFT JOIN workflow_versions v ON v.id = e.workflow_version_id
		WHERE en.execution_id = e.id
		  AND en.workflow_node_id = $1
		  AND e.workflow_version_id = $2
		  AND v.published_at IS NULL
	`, id, versionID)
	if err != nil {
		return fmt.Errorf("delete execution nodes: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM workflow_edges WHERE source = $1 OR target = $1`, id); err != nil {
		return fmt.Errorf("delete node edges: %w", err)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM contexts WHERE id = $1`, contextID); err != nil {
		return fmt.Errorf("delete context: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func scanVertex(row pgx.Row) (*domain.Vertex, error) {
	var v domain.Vertex
	var projectID, color *string

	err := row.Scan(
		&v.ID,
		&v.WorkflowID,
		&v.WorkflowVersionID,
		&projectID,
		&v.Type,
		&v.ContextID,
		&v.Label,
		&v.Width,
		&v.Height,
		&v.Position.X,
		&v.Position.Y,
		&color,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan node: %w", err)
	}

	v.ProjectID = fromNull(projectID)
	v.Color = fromNull(color)
	return &v, nil
}
