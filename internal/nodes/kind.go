package nodes

import (
	"log/slog"
	"sort"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

// Kind — тип вершины.
type Kind interface {
	// Type возвращает имя типа (значение Vertex.Type).
	Type() string

	// Machine возвращает определение автомата.
	Machine() *actor.Machine

	// Sockets возвращает порты вершины. Порты могут зависеть от памяти
	// автомата (например, переменные шаблона PromptTemplate).
	Sockets(mem actor.Memory) Sockets

	// Services возвращает реализации сервисов автомата.
	Services(env Env) map[string]actor.Service
}

// Sockets — порты вершины.
type Sockets struct {
	Inputs  map[string]*node.Input
	Outputs map[string]*node.Output
}

// Env — окружение, доступное сервисам вершины.
type Env struct {
	Logger *slog.Logger
}

// Имена встроенных типов.
const (
	TypeStart          = "Start"
	TypeText           = "Text"
	TypeNumber         = "Number"
	TypePromptTemplate = "PromptTemplate"
	TypeTransform      = "Transform"
	TypeComposeObject  = "ComposeObject"
	TypeLog            = "Log"
	TypeInputNode      = node.TypeInputNode
	TypeOutputNode     = "OutputNode"
	TypeHTTPRequest    = "HTTPRequest"
	TypeDelay          = "Delay"
)

// serviceRun — имя сервиса стандартного автомата.
const serviceRun = "run"

func triggerInput() *node.Input {
	return &node.Input{Socket: domain.SocketTrigger, Label: "Run", Multiple: true}
}

func triggerOutput() *node.Output {
	return &node.Output{Socket: domain.SocketTrigger, Label: "Done"}
}

func controlled(socket domain.Socket, label, kind string, def any) *node.Input {
	return &node.Input{
		Socket:  socket,
		Label:   label,
		Control: &node.Control{Kind: kind, Default: def},
	}
}

// SocketTypes возвращает типы портов по имени.
func SocketTypes[P interface{ *node.Input | *node.Output }](ports map[string]P) map[string]domain.Socket {
	out := make(map[string]domain.Socket, len(ports))
	for key, p := range ports {
		switch v := any(p).(type) {
		case *node.Input:
			out[key] = v.Socket
		case *node.Output:
			out[key] = v.Socket
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
