package node

import (
	"encoding/json"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
)

// Состояния общего контракта автоматов вершин.
const (
	StateIdle     = "idle"
	StateRunning  = "running"
	StateComplete = "complete"
	StateError    = "error"
)

// TypeInputNode — тип вершины-входа графа. Её входы задаются снаружи,
// а не разрешаются по рёбрам.
const TypeInputNode = "InputNode"

// Control — элемент управления, задающий значение входа без ребра.
type Control struct {
	Kind    string `json:"kind" yaml:"kind"`
	Default any    `json:"default,omitempty" yaml:"default,omitempty"`
}

// Input — входной порт вершины.
type Input struct {
	Socket domain.Socket `json:"socket"`
	Label  string        `json:"label,omitempty"`

	// Multiple — порт принимает несколько рёбер и получает массив значений.
	Multiple bool `json:"multiple,omitempty"`

	Control *Control `json:"control,omitempty"`
}

// Output — выходной порт вершины.
type Output struct {
	Socket domain.Socket `json:"socket"`
	Label  string        `json:"label,omitempty"`
}

// Config — параметры создания вершины.
type Config struct {
	Vertex domain.Vertex

	// Machine — определение автомата типа вершины.
	Machine         *actor.Machine
	Implementations actor.Implementations

	// Context — долговременное состояние (память автомата) из domain.Context.
	Context json.RawMessage

	// Execution — запись вершины в выполнении; nil — интерактивный режим.
	Execution   *domain.ExecutionNode
	ExecutionID string

	Inputs  map[string]*Input
	Outputs map[string]*Output
}
