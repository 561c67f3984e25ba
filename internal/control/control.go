// Package control — интерактивная среда выполнения графа.
//
// Вершины выполняются в процессе: завершившаяся вершина через forward
// передаёт управление дальше, и Engine ставит в очередь все вершины,
// в которые ведут её рёбра управления. В пределах одного Run каждая
// вершина выполняется не больше одного раза.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/telemetry"
)

// ErrUnknownNode — стартовой вершины нет в графе.
var ErrUnknownNode = errors.New("unknown start node")

// Engine выполняет граф в интерактивном режиме.
type Engine struct {
	graph  *graph.Graph
	logger *slog.Logger
}

// New создаёт Engine над графом.
func New(g *graph.Graph, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{graph: g, logger: logger}
}

// NodeResult — итог выполнения вершины.
type NodeResult struct {
	ID      string
	Type    string
	State   string
	Outputs map[string]any
	Error   string
}

// Report — итог Run.
type Report struct {
	ExecutionID string
	// Nodes — вершины в порядке выполнения.
	Nodes    []NodeResult
	Duration time.Duration
}

// Failed возвращает вершины, завершившиеся ошибкой.
func (r *Report) Failed() []NodeResult {
	var out []NodeResult
	for _, n := range r.Nodes {
		if n.Error != "" {
			out = append(out, n)
		}
	}
	return out
}

// Run выполняет граф, начиная с startIDs (по умолчанию с точек входа).
//
// Ошибка Execute одной вершины (таймаут) записывается в отчёт,
// выполнение остальных продолжается. Отмена ctx прерывает Run.
func (e *Engine) Run(ctx context.Context, executionID string, startIDs ...string) (*Report, error) {
	started := time.Now()
	logger := telemetry.WithExecutionID(e.logger, executionID)

	queue, err := e.starts(startIDs)
	if err != nil {
		return nil, err
	}

	report := &Report{ExecutionID: executionID}
	done := make(map[string]bool)

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n := queue[0]
		queue = queue[1:]
		if done[n.ID()] {
			continue
		}
		done[n.ID()] = true

		forward := func(output string) {
			if output != domain.TriggerPort {
				return
			}
			for _, next := range e.graph.Successors(n.ID()) {
				if !done[next.ID()] {
					queue = append(queue, next)
				}
			}
		}

		logger.Debug("running node", "node_id", n.ID(), "node_type", n.Type())
		execErr := n.Execute(ctx, nil, forward, executionID)
		if execErr != nil && ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Nodes = append(report.Nodes, result(n, execErr))
	}

	report.Duration = time.Since(started)
	logger.Info("run finished",
		"nodes", len(report.Nodes),
		"failed", len(report.Failed()),
		"duration", report.Duration,
	)
	return report, nil
}

func (e *Engine) starts(ids []string) ([]*node.Node, error) {
	if len(ids) == 0 {
		return e.graph.EntryPoints(), nil
	}
	out := make([]*node.Node, 0, len(ids))
	for _, id := range ids {
		n, ok := e.graph.Node(id)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
		}
		out = append(out, n)
	}
	return out, nil
}

func result(n *node.Node, execErr error) NodeResult {
	snap := n.Snapshot()
	r := NodeResult{
		ID:      n.ID(),
		Type:    n.Type(),
		State:   snap.Top(),
		Outputs: snap.Memory.Outputs,
	}
	switch {
	case execErr != nil:
		r.Error = execErr.Error()
	case snap.Matches(node.StateError) && snap.Memory.Error != nil:
		r.Error = snap.Memory.Error.Error()
	case snap.Matches(node.StateError):
		r.Error = "node failed"
	}
	return r
}
