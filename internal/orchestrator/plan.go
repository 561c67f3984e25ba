package orchestrator

import (
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/workflow"
)

// Plan — управляющая структура версии.
type Plan struct {
	Vertices []domain.Vertex

	// Entries — точки входа: есть выход trigger, нет входящих рёбер управления.
	Entries []string

	// Control — точки входа и вершины, достижимые из них по рёбрам trigger,
	// в порядке вершин версии.
	Control []string
}

// BuildPlan вычисляет Plan по вершинам и рёбрам. Порты вершин берутся
// из реестра типов с учётом сохранённого Context.
func BuildPlan(reg *nodes.Registry, spec workflow.Spec) (*Plan, error) {
	triggered := make(map[string]bool)
	next := make(map[string][]string)
	for _, e := range spec.Edges {
		if !e.IsTrigger() {
			continue
		}
		triggered[e.Target] = true
		next[e.Source] = append(next[e.Source], e.Target)
	}

	p := &Plan{Vertices: spec.Vertices}
	for _, v := range spec.Vertices {
		if triggered[v.ID] {
			continue
		}
		sockets, err := reg.Describe(v, spec.Contexts[v.ContextID])
		if err != nil {
			return nil, err
		}
		if _, ok := sockets.Outputs[domain.TriggerPort]; ok {
			p.Entries = append(p.Entries, v.ID)
		}
	}

	reached := make(map[string]bool, len(p.Entries))
	queue := append([]string(nil), p.Entries...)
	for _, id := range queue {
		reached[id] = true
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, to := range next[id] {
			if !reached[to] {
				reached[to] = true
				queue = append(queue, to)
			}
		}
	}
	for _, v := range spec.Vertices {
		if reached[v.ID] {
			p.Control = append(p.Control, v.ID)
		}
	}
	return p, nil
}
