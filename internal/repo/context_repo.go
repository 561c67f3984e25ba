package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shaiso/craftflow/internal/domain"
)

// ContextRepo — репозиторий долговременных состояний вершин.
type ContextRepo struct {
	pool *pgxpool.Pool
}

// NewContextRepo создаёт новый ContextRepo.
func NewContextRepo(pool *pgxpool.Pool) *ContextRepo {
	return &ContextRepo{pool: pool}
}

// Get возвращает контекст по ID.
func (r *ContextRepo) Get(ctx context.Context, id string) (*domain.Context, error) {
	var c domain.Context
	var projectID, typ *string
	var state []byte

	err := r.pool.QueryRow(ctx, `
		SELECT id, project_id, type, state, updated_at FROM contexts WHERE id = $1
	`, id).Scan(&c.ID, &projectID, &typ, &state, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}

	c.ProjectID = fromNull(projectID)
	c.Type = fromNull(typ)
	c.State = state
	return &c, nil
}

// Set перезаписывает состояние контекста.
func (r *ContextRepo) Set(ctx context.Context, id string, state json.RawMessage) error {
	if len(state) == 0 {
		state = domain.EmptyState
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO contexts (id, state, updated_at) VALUES ($1, $2, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`, id, []byte(state))
	if err != nil {
		return fmt.Errorf("set context: %w", err)
	}
	return nil
}
