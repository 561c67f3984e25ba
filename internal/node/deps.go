package node

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shaiso/craftflow/internal/dataflow"
	"github.com/shaiso/craftflow/internal/domain"
)

// Значения по умолчанию.
const (
	DefaultExecuteTimeout    = 5 * time.Minute
	DefaultContextDebounce   = time.Second
	DefaultStatePollInterval = 500 * time.Millisecond
	DefaultStateWaitTimeout  = 30 * time.Second
)

// Persistence — хранилище состояния вершин.
type Persistence interface {
	// SetContext перезаписывает долговременное состояние вершины.
	SetContext(ctx context.Context, contextID string, state json.RawMessage) error

	// UpdateExecutionNode сохраняет снимок автомата вершины в выполнении.
	UpdateExecutionNode(ctx context.Context, id string, state json.RawMessage, complete bool) error

	// TriggerWorkflowExecutionStep запускает шаг выполнения для вершины.
	TriggerWorkflowExecutionStep(ctx context.Context, executionID, workflowNodeID string) error
}

// Graph — то, что вершине нужно от графа.
type Graph interface {
	// Connections возвращает рёбра в порядке объявления.
	Connections() []domain.Edge

	Node(id string) (*Node, bool)

	// Outgoers возвращает вершины, в которые ведут рёбра из id.
	Outgoers(id string) []*Node

	RemoveConnection(id string) error
}

// Deps — зависимости, общие для всех вершин графа.
type Deps struct {
	Graph    Graph
	Dataflow *dataflow.Engine

	// Store — nil отключает сохранение (с предупреждением в логе).
	Store Persistence

	Logger *slog.Logger

	// Headless — передавать управление через шаги выполнения, а не forward.
	Headless bool

	// ReadOnly — не сохранять Context в интерактивном режиме.
	ReadOnly bool

	ExecuteTimeout    time.Duration
	ContextDebounce   time.Duration
	StatePollInterval time.Duration
	StateWaitTimeout  time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.ExecuteTimeout <= 0 {
		d.ExecuteTimeout = DefaultExecuteTimeout
	}
	if d.ContextDebounce <= 0 {
		d.ContextDebounce = DefaultContextDebounce
	}
	if d.StatePollInterval <= 0 {
		d.StatePollInterval = DefaultStatePollInterval
	}
	if d.StateWaitTimeout <= 0 {
		d.StateWaitTimeout = DefaultStateWaitTimeout
	}
	return d
}
