package graph

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/dataflow"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

func idleMachine() *actor.Machine {
	return &actor.Machine{
		ID:      "idle",
		Initial: node.StateIdle,
		States: map[string]*actor.StateNode{
			node.StateIdle: {},
		},
	}
}

// newTestGraph создаёт граф с вершинами, у каждой вход/выход trigger,
// вход "in" (String) и выход "out" (String), плюс "num" (Number) для проверки типов.
func newTestGraph(t *testing.T, ids ...string) *Graph {
	t.Helper()
	g := New()
	deps := node.Deps{
		Graph:    g,
		Dataflow: dataflow.New(g, nil),
		Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, id := range ids {
		n, err := node.New(deps, node.Config{
			Vertex:  domain.Vertex{ID: id, Type: "Test"},
			Machine: idleMachine(),
			Inputs: map[string]*node.Input{
				domain.TriggerPort: {Socket: domain.SocketTrigger},
				"in":               {Socket: domain.SocketString, Multiple: true},
				"num":              {Socket: domain.SocketNumber},
			},
			Outputs: map[string]*node.Output{
				domain.TriggerPort: {Socket: domain.SocketTrigger},
				"out":              {Socket: domain.SocketString},
				"any":              {Socket: domain.SocketAny},
			},
		})
		if err != nil {
			t.Fatalf("create node %s: %v", id, err)
		}
		if err := g.AddNode(n); err != nil {
			t.Fatalf("add node %s: %v", id, err)
		}
	}
	t.Cleanup(g.Close)
	return g
}

func connect(t *testing.T, g *Graph, src, out, dst, in string) domain.Edge {
	t.Helper()
	e, err := g.AddConnection(domain.Edge{Source: src, SourceOutput: out, Target: dst, TargetInput: in})
	if err != nil {
		t.Fatalf("connect %s.%s → %s.%s: %v", src, out, dst, in, err)
	}
	return e
}

func ids(nodes []*node.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID()
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestAddNode_Duplicate(t *testing.T) {
	g := newTestGraph(t, "A")
	n, _ := g.Node("A")

	err := g.AddNode(n)
	if !errors.Is(err, ErrDuplicateNode) {
		t.Errorf("expected ErrDuplicateNode, got %v", err)
	}
}

func TestAddConnection_GeneratesID(t *testing.T) {
	g := newTestGraph(t, "A", "B")

	e := connect(t, g, "A", "out", "B", "in")
	if e.ID == "" {
		t.Error("expected generated edge ID")
	}

	conns := g.Connections()
	if len(conns) != 1 || conns[0].ID != e.ID {
		t.Errorf("unexpected connections: %+v", conns)
	}
}

func TestAddConnection_Validation(t *testing.T) {
	g := newTestGraph(t, "A", "B", "C")
	connect(t, g, "A", "out", "B", "in")
	connect(t, g, "B", "out", "C", "in")

	tests := []struct {
		name string
		edge domain.Edge
		want error
	}{
		{"unknown source", domain.Edge{Source: "X", SourceOutput: "out", Target: "B", TargetInput: "in"}, ErrNodeNotFound},
		{"unknown target", domain.Edge{Source: "A", SourceOutput: "out", Target: "X", TargetInput: "in"}, ErrNodeNotFound},
		{"self", domain.Edge{Source: "A", SourceOutput: "out", Target: "A", TargetInput: "in"}, ErrSelfConnection},
		{"unknown output", domain.Edge{Source: "A", SourceOutput: "nope", Target: "B", TargetInput: "in"}, ErrUnknownPort},
		{"unknown input", domain.Edge{Source: "A", SourceOutput: "out", Target: "B", TargetInput: "nope"}, ErrUnknownPort},
		{"string to number", domain.Edge{Source: "A", SourceOutput: "out", Target: "C", TargetInput: "num"}, ErrIncompatibleSockets},
		{"data to trigger", domain.Edge{Source: "A", SourceOutput: "any", Target: "C", TargetInput: domain.TriggerPort}, ErrIncompatibleSockets},
		{"duplicate", domain.Edge{Source: "A", SourceOutput: "out", Target: "B", TargetInput: "in"}, ErrDuplicateConnection},
		{"data cycle", domain.Edge{Source: "C", SourceOutput: "out", Target: "A", TargetInput: "in"}, ErrCyclicConnection},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.AddConnection(tt.edge)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("expected ValidationError, got %T", err)
			}
		})
	}

	if len(g.Connections()) != 2 {
		t.Errorf("rejected edges must not be added, got %d", len(g.Connections()))
	}
}

func TestAddConnection_AnyAndTriggerCycle(t *testing.T) {
	g := newTestGraph(t, "A", "B")

	// Any совместим с Number
	connect(t, g, "A", "any", "B", "num")

	// цикл по рёбрам управления допустим
	connect(t, g, "A", domain.TriggerPort, "B", domain.TriggerPort)
	connect(t, g, "B", domain.TriggerPort, "A", domain.TriggerPort)
}

func TestRemoveConnection(t *testing.T) {
	g := newTestGraph(t, "A", "B")
	e := connect(t, g, "A", "out", "B", "in")

	if err := g.RemoveConnection(e.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(g.Connections()) != 0 {
		t.Error("connection should be removed")
	}
	if err := g.RemoveConnection(e.ID); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
}

func TestOutgoersIncomersAncestors(t *testing.T) {
	// A → B → D
	// A → C → D
	g := newTestGraph(t, "A", "B", "C", "D")
	connect(t, g, "A", "out", "B", "in")
	connect(t, g, "A", domain.TriggerPort, "B", domain.TriggerPort)
	connect(t, g, "A", "out", "C", "in")
	connect(t, g, "B", "out", "D", "in")
	connect(t, g, "C", "out", "D", "in")

	if got := ids(g.Outgoers("A")); !equalIDs(got, []string{"B", "C"}) {
		t.Errorf("outgoers of A: %v", got)
	}
	if got := ids(g.Incomers("D")); !equalIDs(got, []string{"B", "C"}) {
		t.Errorf("incomers of D: %v", got)
	}
	if got := ids(g.Ancestors("D")); !equalIDs(got, []string{"B", "C", "A"}) {
		t.Errorf("ancestors of D: %v", got)
	}
	if got := g.Outgoers("D"); len(got) != 0 {
		t.Errorf("D should have no outgoers, got %v", ids(got))
	}
}

func TestTopologicalOrder(t *testing.T) {
	g := newTestGraph(t, "D", "C", "B", "A")
	connect(t, g, "A", "out", "B", "in")
	connect(t, g, "B", "out", "C", "in")
	connect(t, g, "C", domain.TriggerPort, "D", domain.TriggerPort)

	order, err := g.TopologicalOrder()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ids(order); !equalIDs(got, []string{"A", "B", "C", "D"}) {
		t.Errorf("unexpected order: %v", got)
	}

	connect(t, g, "D", domain.TriggerPort, "A", domain.TriggerPort)
	if _, err := g.TopologicalOrder(); !errors.Is(err, ErrCyclicGraph) {
		t.Errorf("expected ErrCyclicGraph, got %v", err)
	}
}

func TestRemoveNode(t *testing.T) {
	g := newTestGraph(t, "A", "B", "C")
	connect(t, g, "A", "out", "B", "in")
	connect(t, g, "B", "out", "C", "in")

	if err := g.RemoveNode("B"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := g.Node("B"); ok {
		t.Error("B should be removed")
	}
	if len(g.Connections()) != 0 {
		t.Errorf("edges of B should be removed, got %d", len(g.Connections()))
	}
	if got := ids(g.Nodes()); !equalIDs(got, []string{"A", "C"}) {
		t.Errorf("unexpected nodes: %v", got)
	}
	if err := g.RemoveNode("B"); !errors.Is(err, ErrNodeNotFound) {
		t.Errorf("expected ErrNodeNotFound, got %v", err)
	}
}

func TestSetInputsRemovesGraphConnections(t *testing.T) {
	g := newTestGraph(t, "A", "B")
	connect(t, g, "A", "out", "B", "in")
	connect(t, g, "A", domain.TriggerPort, "B", domain.TriggerPort)

	b, _ := g.Node("B")
	if err := b.SetInputs(map[string]domain.Socket{"num": domain.SocketNumber}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conns := g.Connections()
	if len(conns) != 1 || !conns[0].IsTrigger() {
		t.Errorf("only the trigger edge should remain, got %+v", conns)
	}
}

func TestSourceResolvesNodeData(t *testing.T) {
	g := newTestGraph(t, "A")

	src, ok := g.Source("A")
	if !ok {
		t.Fatal("expected source A")
	}
	out, err := src.Data(context.Background(), map[string]any{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected empty outputs, got %v", out)
	}

	if _, ok := g.Source("missing"); ok {
		t.Error("missing node should not resolve")
	}
}

func TestSuccessorsAndEntryPoints(t *testing.T) {
	// A ⇒ B ⇒ C, D ⇢ C (только данные)
	g := newTestGraph(t, "A", "B", "C", "D")
	connect(t, g, "A", domain.TriggerPort, "B", domain.TriggerPort)
	connect(t, g, "B", domain.TriggerPort, "C", domain.TriggerPort)
	connect(t, g, "A", "out", "C", "in")
	connect(t, g, "D", "out", "C", "in")

	if got := ids(g.Successors("A")); !equalIDs(got, []string{"B"}) {
		t.Errorf("successors of A: %v", got)
	}
	if got := g.Successors("D"); len(got) != 0 {
		t.Errorf("data edge is not a successor: %v", ids(got))
	}
	if got := ids(g.EntryPoints()); !equalIDs(got, []string{"A", "D"}) {
		t.Errorf("entry points: %v", got)
	}
}
