package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/telemetry"
)

// Node — вершина графа с запущенным актором.
type Node struct {
	id     string
	typ    string
	deps   Deps
	logger *slog.Logger

	actor *actor.Actor

	// execution — запись вершины в выполнении (nil в интерактивном режиме).
	execution   *domain.ExecutionNode
	executionID string

	saver *debouncer[json.RawMessage]

	mu          sync.RWMutex
	vertex      domain.Vertex
	state       string
	inputs      map[string]*Input
	outputs     map[string]*Output
	lastOutputs map[string]any
	seen        int
	ready       bool
}

// New создаёт вершину и запускает её актор.
//
// Если у записи выполнения уже есть снимок, актор восстанавливается из него;
// иначе начальная память берётся из долговременного Context.
func New(deps Deps, cfg Config) (*Node, error) {
	if cfg.Vertex.ID == "" {
		return nil, fmt.Errorf("%w: vertex id is empty", ErrInvalidConfig)
	}
	if cfg.Machine == nil {
		return nil, fmt.Errorf("%w: node %s has no machine", ErrInvalidConfig, cfg.Vertex.ID)
	}
	if deps.Graph == nil {
		return nil, fmt.Errorf("%w: graph", ErrMissingDependency)
	}
	if deps.Dataflow == nil {
		return nil, fmt.Errorf("%w: dataflow engine", ErrMissingDependency)
	}
	deps = deps.withDefaults()

	n := &Node{
		id:          cfg.Vertex.ID,
		typ:         cfg.Vertex.Type,
		deps:        deps,
		logger:      telemetry.WithNodeID(deps.Logger, cfg.Vertex.ID).With("node_type", cfg.Vertex.Type),
		execution:   cfg.Execution,
		executionID: cfg.ExecutionID,
		vertex:      cfg.Vertex,
		inputs:      cloneInputs(cfg.Inputs),
		outputs:     cloneOutputs(cfg.Outputs),
	}
	if n.execution != nil && n.executionID == "" {
		n.executionID = n.execution.ExecutionID
	}

	machine := cfg.Machine.Provide(cfg.Implementations)
	opts := actor.Options{ID: n.id, Logger: n.logger}

	if n.IsExecution() {
		machine = machine.WithFinal(StateComplete)
		opts.ID = n.execution.ID
		if n.execution.HasState() {
			snap, err := actor.ParseSnapshot(n.execution.State)
			if err != nil {
				return nil, fmt.Errorf("node %s: %w", n.id, err)
			}
			opts.Snapshot = snap
		}
	}
	if opts.Snapshot == nil {
		mem, err := actor.ParseMemory(cfg.Context)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", n.id, err)
		}
		opts.Input = mem
	}

	a, err := actor.New(machine, opts)
	if err != nil {
		return nil, fmt.Errorf("node %s: create actor: %w", n.id, err)
	}
	n.actor = a

	snap := a.Snapshot()
	n.state = snap.Top()
	n.lastOutputs = snap.Memory.Outputs

	if deps.Store == nil && !deps.ReadOnly {
		n.logger.Warn("persistence is not configured, node state will not be saved")
	} else if !n.IsExecution() && !deps.ReadOnly {
		n.saver = newDebouncer(deps.ContextDebounce, n.saveContext)
	}

	// Начальный снимок сохраняется только для новой записи выполнения.
	persistInitial := n.IsExecution() && !n.execution.HasState()

	a.Subscribe(actor.Observer{
		Next: func(s actor.Snapshot) { n.onTransition(s, persistInitial) },
		Complete: func() {
			n.logger.Debug("actor finished", "status", n.actor.Snapshot().Status)
		},
	})
	a.Start()

	n.mu.Lock()
	n.ready = true
	n.mu.Unlock()

	return n, nil
}

// onTransition вызывается после каждого перехода актора.
func (n *Node) onTransition(snap actor.Snapshot, persistInitial bool) {
	n.mu.Lock()
	n.state = snap.Top()
	prev := n.lastOutputs
	n.lastOutputs = snap.Memory.Outputs
	initial := n.seen == 0
	n.seen++
	n.mu.Unlock()

	if initial {
		if persistInitial {
			n.persist(snap)
		}
		return
	}

	telemetry.NodeTransitions.WithLabelValues(n.typ, snap.Top()).Inc()
	n.logger.Debug("node transition", "state", snap.Value)

	if snap.Matches(StateComplete) && !actor.Equal(prev, snap.Memory.Outputs) {
		n.deps.Dataflow.Evict(n.id)
		if !n.IsExecution() {
			go func() {
				if err := n.UpdateAncestors(context.Background()); err != nil {
					n.logger.Warn("update ancestors failed", "error", err)
				}
			}()
		}
	}

	n.persist(snap)
}

// persist сохраняет снимок: в режиме выполнения сразу и целиком,
// в интерактивном режиме только память автомата и с debounce.
func (n *Node) persist(snap actor.Snapshot) {
	if n.deps.Store == nil {
		return
	}

	if n.IsExecution() {
		data, err := snap.Marshal()
		if err != nil {
			n.logger.Error("failed to encode snapshot", "error", err)
			return
		}
		err = n.deps.Store.UpdateExecutionNode(context.Background(), n.execution.ID, data, snap.Matches(StateComplete))
		telemetry.PersistenceWrites.WithLabelValues("execution_node", telemetry.Result(err)).Inc()
		if err != nil {
			n.logger.Error("failed to save execution node state", "execution_node_id", n.execution.ID, "error", err)
		}
		return
	}

	if n.saver == nil {
		return
	}
	data, err := json.Marshal(snap.Memory)
	if err != nil {
		n.logger.Error("failed to encode machine memory", "error", err)
		return
	}
	n.saver.Schedule(data)
}

func (n *Node) saveContext(state json.RawMessage) {
	n.mu.RLock()
	contextID := n.vertex.ContextID
	n.mu.RUnlock()

	n.logger.Debug("saving context state", "context_id", contextID)
	err := n.deps.Store.SetContext(context.Background(), contextID, state)
	telemetry.PersistenceWrites.WithLabelValues("context", telemetry.Result(err)).Inc()
	if err != nil {
		n.logger.Error("failed to save context", "context_id", contextID, "error", err)
	}
}

// ID возвращает ID вершины.
func (n *Node) ID() string { return n.id }

// Type возвращает тип вершины.
func (n *Node) Type() string { return n.typ }

// Vertex возвращает копию описания вершины.
func (n *Node) Vertex() domain.Vertex {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.vertex
}

// State возвращает верхнеуровневое состояние автомата ("idle", "running", ...).
func (n *Node) State() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.state
}

// Snapshot возвращает текущий снимок актора.
func (n *Node) Snapshot() actor.Snapshot {
	return n.actor.Snapshot()
}

// IsExecution сообщает, работает ли вершина в режиме выполнения.
func (n *Node) IsExecution() bool {
	return n.execution != nil
}

// IsReady сообщает, что актор запущен.
func (n *Node) IsReady() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.ready
}

// ExecutionID возвращает ID выполнения, к которому привязана вершина.
func (n *Node) ExecutionID() string {
	return n.executionID
}

// Inputs возвращает копию входных портов.
func (n *Node) Inputs() map[string]*Input {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return cloneInputs(n.inputs)
}

// Outputs возвращает копию выходных портов.
func (n *Node) Outputs() map[string]*Output {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return cloneOutputs(n.outputs)
}

// HasOutput проверяет наличие выходного порта.
func (n *Node) HasOutput(key string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.outputs[key]
	return ok
}

// HasInput проверяет наличие входного порта.
func (n *Node) HasInput(key string) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	_, ok := n.inputs[key]
	return ok
}

// Send отправляет событие актору (например, SET_VALUE из контрола).
func (n *Node) Send(ev actor.Event) {
	n.actor.Send(ev)
}

// Close сохраняет отложенный Context и останавливает актор.
func (n *Node) Close() {
	if n.saver != nil {
		n.saver.Stop()
	}
	n.actor.Stop()
}

func cloneInputs(in map[string]*Input) map[string]*Input {
	out := make(map[string]*Input, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		cp := *v
		out[k] = &cp
	}
	return out
}

func cloneOutputs(in map[string]*Output) map[string]*Output {
	out := make(map[string]*Output, len(in))
	for k, v := range in {
		if v == nil {
			continue
		}
		cp := *v
		out[k] = &cp
	}
	return out
}
