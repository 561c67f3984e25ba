package runner

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/repo"
)

// Dispatcher отправляет шаг выполнения (orchestrator.Orchestrator).
type Dispatcher interface {
	Dispatch(ctx context.Context, executionID, nodeID string) error
}

// Persistence связывает вершины с хранилищем и очередью шагов.
type Persistence struct {
	store      *repo.Store
	dispatcher Dispatcher
}

var _ node.Persistence = (*Persistence)(nil)

// NewPersistence создаёт Persistence.
func NewPersistence(store *repo.Store, d Dispatcher) *Persistence {
	return &Persistence{store: store, dispatcher: d}
}

func (p *Persistence) SetContext(ctx context.Context, contextID string, state json.RawMessage) error {
	if err := p.store.Contexts.Set(ctx, contextID, state); err != nil {
		return fmt.Errorf("set context %s: %w", contextID, err)
	}
	return nil
}

func (p *Persistence) UpdateExecutionNode(ctx context.Context, id string, state json.RawMessage, complete bool) error {
	if err := p.store.ExecutionNodes.UpdateState(ctx, id, state, complete); err != nil {
		return fmt.Errorf("update execution node %s: %w", id, err)
	}
	return nil
}

func (p *Persistence) TriggerWorkflowExecutionStep(ctx context.Context, executionID, workflowNodeID string) error {
	return p.dispatcher.Dispatch(ctx, executionID, workflowNodeID)
}
