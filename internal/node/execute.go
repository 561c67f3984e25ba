package node

import (
	"context"
	"fmt"
	"time"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/telemetry"
)

// Forward передаёт завершение вершины среде выполнения (интерактивный режим).
// output — имя выходного порта управления, всегда "trigger".
type Forward func(output string)

// Execute выполняет вершину.
//
// Уже завершённая вершина не запускается повторно, а только передаёт
// управление дальше. Иначе входы разрешаются, автомату отправляется RUN
// и Execute ждёт complete не дольше Deps.ExecuteTimeout.
// Переход автомата в error не считается ошибкой Execute: управление
// дальше не передаётся, ошибка остаётся в памяти автомата.
//
// input дополняет разрешённые входы (значения среды выполнения важнее).
func (n *Node) Execute(ctx context.Context, input map[string]any, forward Forward, executionID string) error {
	if executionID == "" {
		executionID = n.executionID
	}
	logger := telemetry.WithExecutionID(n.logger, executionID)

	if n.actor.Snapshot().Matches(StateComplete) {
		logger.Debug("node already complete, propagating")
		n.propagate(ctx, forward, executionID)
		return nil
	}

	inputs, err := n.GetInputs(ctx)
	if err != nil {
		return err
	}
	for k, v := range input {
		inputs[k] = v
	}

	finished := make(chan actor.Snapshot, 1)
	sub := n.actor.Subscribe(actor.Observer{
		Next: func(s actor.Snapshot) {
			if s.Matches(StateComplete) || s.Matches(StateError) {
				select {
				case finished <- s:
				default:
				}
			}
		},
	})
	defer sub.Unsubscribe()

	logger.Debug("executing node", "inputs", len(inputs))
	started := time.Now()
	n.actor.Send(actor.Event{Type: actor.EventRun, Inputs: inputs})

	timer := time.NewTimer(n.deps.ExecuteTimeout)
	defer timer.Stop()

	select {
	case s := <-finished:
		if s.Matches(StateError) {
			logger.Warn("node finished with error", "error", s.Memory.Error)
			return nil
		}
		telemetry.NodeExecuteDuration.WithLabelValues(n.typ).Observe(time.Since(started).Seconds())
		n.propagate(ctx, forward, executionID)
		return nil
	case <-timer.C:
		telemetry.NodeExecuteTimeouts.WithLabelValues(n.typ).Inc()
		return fmt.Errorf("%w: node %s after %s in state %q",
			ErrExecutionTimeout, n.id, n.deps.ExecuteTimeout, n.actor.Snapshot().Value)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// propagate передаёт управление дальше, если у вершины есть выход trigger.
func (n *Node) propagate(ctx context.Context, forward Forward, executionID string) {
	if !n.HasOutput(domain.TriggerPort) {
		return
	}
	if n.deps.Headless {
		n.TriggerSuccessors(ctx, executionID)
		return
	}
	if forward != nil {
		forward(domain.TriggerPort)
	}
}

// TriggerSuccessors запускает шаг выполнения для каждой вершины,
// в которую ведёт ребро из выхода trigger. Ошибки логируются по каждому ребру.
func (n *Node) TriggerSuccessors(ctx context.Context, executionID string) {
	logger := telemetry.WithExecutionID(n.logger, executionID)
	if n.deps.Store == nil {
		logger.Warn("persistence is not configured, successors are not triggered")
		return
	}

	for _, edge := range n.deps.Graph.Connections() {
		if edge.Source != n.id || edge.SourceOutput != domain.TriggerPort {
			continue
		}
		if _, ok := n.deps.Graph.Node(edge.Target); !ok {
			logger.Warn("trigger target not found", "target", edge.Target)
			continue
		}

		err := n.deps.Store.TriggerWorkflowExecutionStep(ctx, executionID, edge.Target)
		telemetry.PersistenceWrites.WithLabelValues("trigger", telemetry.Result(err)).Inc()
		if err != nil {
			logger.Error("failed to trigger execution step", "target", edge.Target, "error", err)
			continue
		}
		logger.Debug("execution step triggered", "target", edge.Target)
	}
}

// UpdateAncestors дожидается complete и пересчитывает вершины ниже по графу.
func (n *Node) UpdateAncestors(ctx context.Context) error {
	if _, err := actor.WaitFor(ctx, n.actor, actor.InState(StateComplete), n.deps.ExecuteTimeout); err != nil {
		return fmt.Errorf("node %s: wait for complete: %w", n.id, err)
	}

	for _, next := range n.deps.Graph.Outgoers(n.id) {
		inputs, err := next.GetInputs(ctx)
		if err != nil {
			n.logger.Warn("failed to resolve outgoer inputs", "outgoer", next.ID(), "error", err)
			continue
		}
		next.Compute(inputs)
	}
	return nil
}

// WaitForState опрашивает состояние автомата каждые Deps.StatePollInterval,
// пока оно не совпадёт с state. Через Deps.StateWaitTimeout возвращает
// ErrStateWaitTimeout.
func (n *Node) WaitForState(ctx context.Context, state string) error {
	ticker := time.NewTicker(n.deps.StatePollInterval)
	defer ticker.Stop()
	deadline := time.NewTimer(n.deps.StateWaitTimeout)
	defer deadline.Stop()

	for {
		if n.actor.Snapshot().Matches(state) {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline.C:
			return fmt.Errorf("%w: node %s did not reach %q within %s",
				ErrStateWaitTimeout, n.id, state, n.deps.StateWaitTimeout)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
