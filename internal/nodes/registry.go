package nodes

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/telemetry"
)

// Registry — реестр типов вершин.
//
// Позволяет регистрировать и получать Kind по имени типа.
// Потокобезопасен.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry создаёт пустой реестр.
func NewRegistry() *Registry {
	return &Registry{
		kinds: make(map[string]Kind),
	}
}

// DefaultRegistry создаёт реестр со всеми встроенными типами.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.Register(NewStart())
	r.Register(NewText())
	r.Register(NewNumber())
	r.Register(NewPromptTemplate())
	r.Register(NewTransform())
	r.Register(NewComposeObject())
	r.Register(NewLog())
	r.Register(NewInputNode())
	r.Register(NewOutputNode())
	r.Register(NewHTTPRequest(nil))
	r.Register(NewDelay())

	return r
}

// Register регистрирует тип. Тип с тем же именем перезаписывается.
func (r *Registry) Register(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind.Type()] = kind
}

// Get возвращает тип по имени или ErrKindNotFound.
func (r *Registry) Get(typ string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	kind, exists := r.kinds[typ]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrKindNotFound, typ)
	}
	return kind, nil
}

// Has проверяет, зарегистрирован ли тип.
func (r *Registry) Has(typ string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.kinds[typ]
	return exists
}

// Types возвращает отсортированный список типов.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]string, 0, len(r.kinds))
	for t := range r.kinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Count возвращает количество зарегистрированных типов.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}

// Unregister удаляет тип из реестра.
func (r *Registry) Unregister(typ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.kinds, typ)
}

// BuildSpec — данные для создания вершины.
type BuildSpec struct {
	Vertex domain.Vertex

	// Context — долговременное состояние вершины.
	Context json.RawMessage

	// Execution — запись вершины в выполнении; nil — интерактивный режим.
	Execution   *domain.ExecutionNode
	ExecutionID string
}

// Build создаёт вершину по её типу.
func (r *Registry) Build(deps node.Deps, spec BuildSpec) (*node.Node, error) {
	kind, err := r.Get(spec.Vertex.Type)
	if err != nil {
		return nil, err
	}

	mem, err := initialMemory(kind, spec)
	if err != nil {
		return nil, fmt.Errorf("node %s: %w", spec.Vertex.ID, err)
	}
	sockets := kind.Sockets(mem)

	logger := deps.Logger
	if logger != nil {
		logger = telemetry.WithNodeID(logger, spec.Vertex.ID)
	}

	return node.New(deps, node.Config{
		Vertex:          spec.Vertex,
		Machine:         kind.Machine(),
		Implementations: actor.Implementations{Services: kind.Services(Env{Logger: logger})},
		Context:         spec.Context,
		Execution:       spec.Execution,
		ExecutionID:     spec.ExecutionID,
		Inputs:          sockets.Inputs,
		Outputs:         sockets.Outputs,
	})
}

// Sync приводит порты вершины к текущей памяти автомата.
// Используется после изменения данных, от которых зависят порты
// (шаблон PromptTemplate, поля ComposeObject).
func (r *Registry) Sync(n *node.Node) error {
	kind, err := r.Get(n.Type())
	if err != nil {
		return err
	}
	sockets := kind.Sockets(n.Snapshot().Memory)
	return errors.Join(
		n.SetInputs(SocketTypes(sockets.Inputs)),
		n.SetOutputs(SocketTypes(sockets.Outputs)),
	)
}

// initialMemory возвращает память, с которой стартует актор вершины:
// из снимка выполнения или из долговременного контекста.
func initialMemory(kind Kind, spec BuildSpec) (actor.Memory, error) {
	if spec.Execution != nil && spec.Execution.HasState() {
		snap, err := actor.ParseSnapshot(spec.Execution.State)
		if err != nil {
			return actor.Memory{}, err
		}
		return snap.Memory, nil
	}
	mem, err := actor.ParseMemory(spec.Context)
	if err != nil {
		return actor.Memory{}, err
	}
	if m := kind.Machine(); m.Memory != nil {
		mem = m.Memory(mem)
	}
	return mem, nil
}

// Describe возвращает порты вершины без запуска актора.
func (r *Registry) Describe(v domain.Vertex, state json.RawMessage) (Sockets, error) {
	kind, err := r.Get(v.Type)
	if err != nil {
		return Sockets{}, err
	}
	mem, err := initialMemory(kind, BuildSpec{Vertex: v, Context: state})
	if err != nil {
		return Sockets{}, fmt.Errorf("node %s: %w", v.ID, err)
	}
	return kind.Sockets(mem), nil
}
