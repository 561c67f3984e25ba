package node

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/dataflow"
)

// Data возвращает текущие выходы вершины.
//
// inputs == nil — входы разрешаются через dataflow. Если входы отличаются
// от тех, что видел автомат, вершина пересчитывается (кроме InputNode).
// Пока автомат в running, Data ждёт complete или error.
func (n *Node) Data(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	if inputs == nil {
		var err error
		inputs, err = n.GetInputs(ctx)
		if err != nil {
			return nil, err
		}
	}

	snap := n.actor.Snapshot()
	if n.typ != TypeInputNode && !actor.Equal(snap.Memory.Inputs, inputs) {
		n.logger.Debug("inputs changed, computing")
		var err error
		snap, err = n.actor.SendWait(ctx, actor.Event{Type: actor.EventCompute, Inputs: inputs})
		if err != nil {
			return nil, fmt.Errorf("node %s: compute: %w", n.id, err)
		}
	}

	if snap.Matches(StateRunning) {
		var err error
		snap, err = actor.WaitFor(ctx, n.actor, actor.InState(StateComplete, StateError), n.deps.ExecuteTimeout)
		if err != nil {
			return nil, fmt.Errorf("node %s: wait for outputs: %w", n.id, err)
		}
	}

	return snap.Memory.Outputs, nil
}

// Compute отправляет автомату COMPUTE с новыми входами.
// Чистые типы пересчитываются, типы с побочными эффектами только запоминают входы.
func (n *Node) Compute(inputs map[string]any) {
	n.actor.Send(actor.Event{Type: actor.EventCompute, Inputs: inputs})
}

// GetInputs разрешает входы вершины.
//
// Порт без значения из графа, но с контролом, получает значение,
// сохранённое в памяти автомата (или значение контрола по умолчанию).
// Порт без Multiple всегда получает одно значение (первое по порядку рёбер).
//
// Ошибки разрешения логируются, возвращаются частичные входы.
// Цикл по рёбрам данных возвращается как dataflow.ErrCycleDetected.
func (n *Node) GetInputs(ctx context.Context) (map[string]any, error) {
	if n.typ == TypeInputNode {
		return n.actor.Snapshot().Memory.Inputs, nil
	}

	resolved, err := n.deps.Dataflow.Resolve(ctx, n.id)
	if err != nil {
		if errors.Is(err, dataflow.ErrCycleDetected) || ctx.Err() != nil {
			return nil, err
		}
		n.logger.Warn("input resolution failed", "error", err)
	}

	defs := n.Inputs()
	inputs := make(map[string]any, len(resolved))
	for key, values := range resolved {
		if len(values) == 0 {
			continue
		}
		if def, ok := defs[key]; ok && def.Multiple {
			inputs[key] = slices.Clone(values)
			continue
		}
		inputs[key] = values[0]
	}

	stored := n.actor.Snapshot().Memory.Inputs
	for key, def := range defs {
		if def.Control == nil {
			continue
		}
		if v, ok := inputs[key]; ok && v != nil {
			continue
		}
		if v, ok := stored[key]; ok && v != nil {
			inputs[key] = v
		} else if def.Control.Default != nil {
			inputs[key] = def.Control.Default
		}
	}

	return inputs, nil
}
