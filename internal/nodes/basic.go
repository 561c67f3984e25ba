package nodes

import (
	"context"
	"maps"
	"time"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

const (
	// stateTyping — значение редактируется, выходы ещё не обновлены.
	stateTyping = "typing"

	typingDelay = 10 * time.Millisecond
)

// Start — точка входа управляющего потока.
type Start struct {
	machine *actor.Machine
}

// NewStart создаёт тип Start.
func NewStart() *Start {
	return &Start{machine: standardMachine(TypeStart, false)}
}

func (k *Start) Type() string            { return TypeStart }
func (k *Start) Machine() *actor.Machine { return k.machine }

func (k *Start) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs:  map[string]*node.Input{},
		Outputs: map[string]*node.Output{domain.TriggerPort: triggerOutput()},
	}
}

func (k *Start) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{
		serviceRun: func(context.Context, actor.Memory) (map[string]any, error) {
			return map[string]any{}, nil
		},
	}
}

// Text — строковое значение из контрола или входящего ребра.
type Text struct {
	machine *actor.Machine
}

// NewText создаёт тип Text.
func NewText() *Text {
	return &Text{machine: valueMachine(TypeText, func(m *actor.Memory, _ actor.Event) {
		m.Outputs = map[string]any{"value": m.Inputs["value"]}
	})}
}

func (k *Text) Type() string                          { return TypeText }
func (k *Text) Machine() *actor.Machine               { return k.machine }
func (k *Text) Services(Env) map[string]actor.Service { return nil }

func (k *Text) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs: map[string]*node.Input{
			"value": controlled(domain.SocketString, "Text", "textarea", ""),
		},
		Outputs: map[string]*node.Output{
			"value": {Socket: domain.SocketString, Label: "Text"},
		},
	}
}

// Number — числовое значение. Строки приводятся к числу,
// неразбираемое значение даёт nil.
type Number struct {
	machine *actor.Machine
}

// NewNumber создаёт тип Number.
func NewNumber() *Number {
	return &Number{machine: valueMachine(TypeNumber, func(m *actor.Memory, _ actor.Event) {
		var out any
		if f, ok := getFloat(m.Inputs, "value"); ok {
			out = f
		}
		m.Outputs = map[string]any{"value": out}
	})}
}

func (k *Number) Type() string                          { return TypeNumber }
func (k *Number) Machine() *actor.Machine               { return k.machine }
func (k *Number) Services(Env) map[string]actor.Service { return nil }

func (k *Number) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs: map[string]*node.Input{
			"value": controlled(domain.SocketNumber, "Number", "number", 0),
		},
		Outputs: map[string]*node.Output{
			"value": {Socket: domain.SocketNumber, Label: "Number"},
		},
	}
}

// InputNode — вход графа. Значения задаются снаружи (SET_VALUE или
// сохранённый контекст), каждый вход публикуется одноимённым выходом.
//
// Values["fields"] объявляет выходы, значения для которых ещё не заданы.
type InputNode struct {
	machine *actor.Machine
}

// NewInputNode создаёт тип InputNode.
func NewInputNode() *InputNode {
	return &InputNode{machine: valueMachine(TypeInputNode, func(m *actor.Memory, _ actor.Event) {
		m.Outputs = maps.Clone(m.Inputs)
		if m.Outputs == nil {
			m.Outputs = make(map[string]any)
		}
	})}
}

func (k *InputNode) Type() string                          { return TypeInputNode }
func (k *InputNode) Machine() *actor.Machine               { return k.machine }
func (k *InputNode) Services(Env) map[string]actor.Service { return nil }

func (k *InputNode) Sockets(mem actor.Memory) Sockets {
	outputs := make(map[string]*node.Output)
	if fields, ok := mem.Values["fields"].([]any); ok {
		for _, f := range fields {
			if name, ok := f.(string); ok && name != "" {
				outputs[name] = &node.Output{Socket: domain.SocketAny, Label: name}
			}
		}
	}
	for key := range mem.Inputs {
		outputs[key] = &node.Output{Socket: domain.SocketAny, Label: key}
	}
	return Sockets{Inputs: map[string]*node.Input{}, Outputs: outputs}
}

// OutputNode — выход графа: передаёт значение дальше без изменений.
type OutputNode struct {
	machine *actor.Machine
}

// NewOutputNode создаёт тип OutputNode.
func NewOutputNode() *OutputNode {
	return &OutputNode{machine: standardMachine(TypeOutputNode, true)}
}

func (k *OutputNode) Type() string            { return TypeOutputNode }
func (k *OutputNode) Machine() *actor.Machine { return k.machine }

func (k *OutputNode) Sockets(actor.Memory) Sockets {
	return Sockets{
		Inputs: map[string]*node.Input{
			domain.TriggerPort: triggerInput(),
			"value":            {Socket: domain.SocketAny, Label: "Value"},
		},
		Outputs: map[string]*node.Output{
			"value": {Socket: domain.SocketAny, Label: "Value"},
		},
	}
}

func (k *OutputNode) Services(Env) map[string]actor.Service {
	return map[string]actor.Service{
		serviceRun: func(_ context.Context, m actor.Memory) (map[string]any, error) {
			return map[string]any{"value": m.Inputs["value"]}, nil
		},
	}
}
