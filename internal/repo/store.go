package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shaiso/craftflow/internal/domain"
)

// NodeStore — вершины workflow.
type NodeStore interface {
	// Upsert создаёт или обновляет вершину. Если Context вершины
	// отсутствует, он создаётся заново с тем же ID и пустым состоянием.
	// Пустой ContextID генерируется.
	Upsert(ctx context.Context, v *domain.Vertex) error

	GetByID(ctx context.Context, id string) (*domain.Vertex, error)

	// ListByVersion возвращает вершины версии в порядке создания.
	ListByVersion(ctx context.Context, versionID string) ([]domain.Vertex, error)

	// Delete удаляет вершину, её Context и данные выполнений
	// неопубликованных версий.
	Delete(ctx context.Context, id string) error
}

// EdgeStore — рёбра workflow.
type EdgeStore interface {
	// Create сохраняет ребро. Пустой ID генерируется.
	Create(ctx context.Context, e *domain.Edge) error

	// Delete удаляет ребро по концам в пределах версии.
	Delete(ctx context.Context, e domain.Edge) error

	// ListByVersion возвращает рёбра версии в порядке создания.
	ListByVersion(ctx context.Context, versionID string) ([]domain.Edge, error)
}

// ContextStore — долговременные состояния вершин.
type ContextStore interface {
	Get(ctx context.Context, id string) (*domain.Context, error)

	// Set перезаписывает состояние. Отсутствующий контекст создаётся.
	Set(ctx context.Context, id string, state json.RawMessage) error
}

// ExecutionStore — выполнения workflow.
type ExecutionStore interface {
	Create(ctx context.Context, e *domain.WorkflowExecution) error
	GetByID(ctx context.Context, id string) (*domain.WorkflowExecution, error)
	Update(ctx context.Context, e *domain.WorkflowExecution) error

	// Finish записывает терминальный статус, только если выполнение ещё
	// не завершено. Уже завершённое выполнение даёт ErrInvalidState.
	Finish(ctx context.Context, e *domain.WorkflowExecution) error

	List(ctx context.Context, filter ExecutionFilter) ([]domain.WorkflowExecution, error)
}

// ExecutionNodeStore — вершины в выполнении.
type ExecutionNodeStore interface {
	CreateBatch(ctx context.Context, nodes []domain.ExecutionNode) error
	GetByID(ctx context.Context, id string) (*domain.ExecutionNode, error)
	GetByExecutionAndNode(ctx context.Context, executionID, nodeID string) (*domain.ExecutionNode, error)
	ListByExecution(ctx context.Context, executionID string) ([]domain.ExecutionNode, error)

	// UpdateState перезаписывает снимок автомата.
	UpdateState(ctx context.Context, id string, state json.RawMessage, complete bool) error

	// MarkTriggered отмечает, что вершине отправлен шаг выполнения.
	MarkTriggered(ctx context.Context, executionID, nodeID string) error

	// ListStale возвращает вершины, которым шаг отправлен раньше before,
	// но которые не завершены (выполнения в статусе RUNNING).
	ListStale(ctx context.Context, before time.Time, limit int) ([]domain.ExecutionNode, error)
}

// ExecutionFilter — параметры фильтрации выполнений.
type ExecutionFilter struct {
	WorkflowVersionID string
	Status            domain.ExecutionStatus
	Limit             int
	Offset            int
}

// Store объединяет хранилища.
type Store struct {
	Nodes          NodeStore
	Edges          EdgeStore
	Contexts       ContextStore
	Executions     ExecutionStore
	ExecutionNodes ExecutionNodeStore
}

var (
	_ NodeStore          = (*NodeRepo)(nil)
	_ EdgeStore          = (*EdgeRepo)(nil)
	_ ContextStore       = (*ContextRepo)(nil)
	_ ExecutionStore     = (*ExecutionRepo)(nil)
	_ ExecutionNodeStore = (*ExecutionNodeRepo)(nil)
)
