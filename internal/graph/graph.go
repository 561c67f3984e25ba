package graph

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/craftflow/internal/dataflow"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

// Graph — граф вершин workflow.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*node.Node
	order []string
	edges []domain.Edge
}

// New создаёт пустой граф.
func New() *Graph {
	return &Graph{
		nodes: make(map[string]*node.Node),
	}
}

// AddNode добавляет вершину.
func (g *Graph) AddNode(n *node.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[n.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
	}
	g.nodes[n.ID()] = n
	g.order = append(g.order, n.ID())
	return nil
}

// RemoveNode удаляет вершину вместе с её рёбрами и останавливает её актор.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	n, ok := g.nodes[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	delete(g.nodes, id)
	g.order = slices.DeleteFunc(g.order, func(x string) bool { return x == id })
	g.edges = slices.DeleteFunc(g.edges, func(e domain.Edge) bool {
		return e.Source == id || e.Target == id
	})
	g.mu.Unlock()

	n.Close()
	return nil
}

// Node возвращает вершину по ID.
func (g *Graph) Node(id string) (*node.Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok
}

// Source возвращает вершину как источник данных для dataflow.
func (g *Graph) Source(id string) (dataflow.Source, bool) {
	n, ok := g.Node(id)
	if !ok {
		return nil, false
	}
	return n, true
}

// Nodes возвращает вершины в порядке добавления.
func (g *Graph) Nodes() []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]*node.Node, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.nodes[id])
	}
	return out
}

// Len возвращает количество вершин.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Connections возвращает копию рёбер в порядке добавления.
func (g *Graph) Connections() []domain.Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return slices.Clone(g.edges)
}

// AddConnection проверяет и добавляет ребро. Пустой ID генерируется.
func (g *Graph) AddConnection(e domain.Edge) (domain.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.validateConnection(e); err != nil {
		return domain.Edge{}, err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	g.edges = append(g.edges, e)
	return e, nil
}

// validateConnection вызывается под g.mu.
func (g *Graph) validateConnection(e domain.Edge) error {
	src, ok := g.nodes[e.Source]
	if !ok {
		return NewValidationError(e.Source, "source", "source node not found", ErrNodeNotFound)
	}
	dst, ok := g.nodes[e.Target]
	if !ok {
		return NewValidationError(e.Target, "target", "target node not found", ErrNodeNotFound)
	}
	if e.Source == e.Target {
		return NewValidationError(e.Source, e.SourceOutput, "cannot connect node to itself", ErrSelfConnection)
	}

	out, ok := src.Outputs()[e.SourceOutput]
	if !ok {
		return NewValidationError(e.Source, e.SourceOutput,
			fmt.Sprintf("unknown output %q", e.SourceOutput), ErrUnknownPort)
	}
	in, ok := dst.Inputs()[e.TargetInput]
	if !ok {
		return NewValidationError(e.Target, e.TargetInput,
			fmt.Sprintf("unknown input %q", e.TargetInput), ErrUnknownPort)
	}
	if !out.Socket.IsCompatibleWith(in.Socket) {
		return NewValidationError(e.Target, e.TargetInput,
			fmt.Sprintf("socket %s is not compatible with %s", out.Socket, in.Socket), ErrIncompatibleSockets)
	}

	for _, existing := range g.edges {
		if existing.SameEnds(e) {
			return NewValidationError(e.Target, e.TargetInput, "connection already exists", ErrDuplicateConnection)
		}
	}

	if !e.IsTrigger() && g.reachable(e.Target, e.Source, true) {
		return NewValidationError(e.Target, e.TargetInput,
			fmt.Sprintf("%s already depends on %s", e.Source, e.Target), ErrCyclicConnection)
	}
	return nil
}

// reachable проверяет путь from → to. Вызывается под g.mu.
func (g *Graph) reachable(from, to string, dataOnly bool) bool {
	visited := map[string]bool{from: true}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			return true
		}
		for _, e := range g.edges {
			if e.Source != cur || (dataOnly && e.IsTrigger()) || visited[e.Target] {
				continue
			}
			visited[e.Target] = true
			queue = append(queue, e.Target)
		}
	}
	return false
}

// RemoveConnection удаляет ребро по ID.
func (g *Graph) RemoveConnection(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.IndexFunc(g.edges, func(e domain.Edge) bool { return e.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, id)
	}
	g.edges = slices.Delete(g.edges, idx, idx+1)
	return nil
}

// Outgoers возвращает вершины, в которые ведут рёбра из id (без повторов).
func (g *Graph) Outgoers(id string) []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(e domain.Edge) (string, bool) { return e.Target, e.Source == id })
}

// Incomers возвращает вершины, из которых ведут рёбра в id (без повторов).
func (g *Graph) Incomers(id string) []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(e domain.Edge) (string, bool) { return e.Source, e.Target == id })
}

func (g *Graph) collect(pick func(domain.Edge) (string, bool)) []*node.Node {
	var out []*node.Node
	seen := make(map[string]bool)
	for _, e := range g.edges {
		other, ok := pick(e)
		if !ok || seen[other] {
			continue
		}
		seen[other] = true
		if n, exists := g.nodes[other]; exists {
			out = append(out, n)
		}
	}
	return out
}

// Successors возвращает вершины, в которые ведут рёбра управления из id.
func (g *Graph) Successors(id string) []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(func(e domain.Edge) (string, bool) {
		return e.Target, e.Source == id && e.IsTrigger()
	})
}

// EntryPoints возвращает вершины, с которых начинается выполнение:
// у них есть выход trigger и нет входящих рёбер управления.
func (g *Graph) EntryPoints() []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	triggered := make(map[string]bool)
	for _, e := range g.edges {
		if e.IsTrigger() {
			triggered[e.Target] = true
		}
	}
	var out []*node.Node
	for _, id := range g.order {
		n := g.nodes[id]
		if !triggered[id] && n.HasOutput(domain.TriggerPort) {
			out = append(out, n)
		}
	}
	return out
}

// Ancestors возвращает все вершины, от которых id зависит транзитивно.
func (g *Graph) Ancestors(id string) []*node.Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	visited := map[string]bool{id: true}
	queue := []string{id}
	var out []*node.Node
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.edges {
			if e.Target != cur || visited[e.Source] {
				continue
			}
			visited[e.Source] = true
			queue = append(queue, e.Source)
			if n, ok := g.nodes[e.Source]; ok {
				out = append(out, n)
			}
		}
	}
	return out
}

// TopologicalOrder возвращает вершины в топологическом порядке (алгоритм Кана).
// Учитываются все рёбра; при равенстве сохраняется порядок добавления.
func (g *Graph) TopologicalOrder() ([]*node.Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	inDegree := make(map[string]int, len(g.nodes))
	dependents := make(map[string][]string)
	linked := make(map[[2]string]bool)
	for _, e := range g.edges {
		if _, ok := g.nodes[e.Source]; !ok {
			continue
		}
		if _, ok := g.nodes[e.Target]; !ok {
			continue
		}
		key := [2]string{e.Source, e.Target}
		if linked[key] {
			continue
		}
		linked[key] = true
		dependents[e.Source] = append(dependents[e.Source], e.Target)
		inDegree[e.Target]++
	}

	// Очередь узлов с inDegree = 0
	queue := make([]string, 0, len(g.order))
	for _, id := range g.order {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	order := make([]*node.Node, 0, len(g.nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, g.nodes[id])

		for _, dep := range dependents[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	// Если не все узлы обработаны — есть цикл
	if len(order) != len(g.nodes) {
		return nil, ErrCyclicGraph
	}
	return order, nil
}

// Close останавливает акторы всех вершин.
func (g *Graph) Close() {
	for _, n := range g.Nodes() {
		n.Close()
	}
}
