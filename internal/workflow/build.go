package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shaiso/craftflow/internal/dataflow"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/repo"
)

// Spec — всё, что нужно для сборки графа: вершины, рёбра,
// состояния Context и (в режиме выполнения) записи вершин.
type Spec struct {
	Vertices []domain.Vertex
	Edges    []domain.Edge

	// Contexts — состояние по ID контекста.
	Contexts map[string]json.RawMessage

	// Executions — записи выполнения по ID вершины. Пусто в интерактивном режиме.
	Executions  map[string]*domain.ExecutionNode
	ExecutionID string
}

// Options — параметры сборки графа.
type Options struct {
	Registry *nodes.Registry
	Store    node.Persistence
	Logger   *slog.Logger

	Headless bool
	ReadOnly bool

	ExecuteTimeout  time.Duration
	ContextDebounce time.Duration
}

// Build создаёт граф: вершины с запущенными акторами и проверенные рёбра.
// При ошибке уже созданные акторы останавливаются.
func Build(spec Spec, opts Options) (*graph.Graph, error) {
	reg := opts.Registry
	if reg == nil {
		reg = nodes.DefaultRegistry()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	g := graph.New()
	deps := node.Deps{
		Graph:           g,
		Dataflow:        dataflow.New(g, logger),
		Store:           opts.Store,
		Logger:          logger,
		Headless:        opts.Headless,
		ReadOnly:        opts.ReadOnly,
		ExecuteTimeout:  opts.ExecuteTimeout,
		ContextDebounce: opts.ContextDebounce,
	}

	for _, v := range spec.Vertices {
		n, err := reg.Build(deps, nodes.BuildSpec{
			Vertex:      v,
			Context:     spec.Contexts[v.ContextID],
			Execution:   spec.Executions[v.ID],
			ExecutionID: spec.ExecutionID,
		})
		if err != nil {
			g.Close()
			return nil, err
		}
		if err := g.AddNode(n); err != nil {
			n.Close()
			g.Close()
			return nil, err
		}
	}

	for _, e := range spec.Edges {
		if _, err := g.AddConnection(e); err != nil {
			g.Close()
			return nil, fmt.Errorf("edge %s:%s → %s:%s: %w",
				e.Source, e.SourceOutput, e.Target, e.TargetInput, err)
		}
	}
	return g, nil
}

// Load читает версию workflow из хранилища. Если executionID не пуст,
// добавляет записи вершин выполнения. Отсутствующие Context создаются
// заново с пустым состоянием.
func Load(ctx context.Context, store *repo.Store, versionID, executionID string) (Spec, error) {
	vertices, err := store.Nodes.ListByVersion(ctx, versionID)
	if err != nil {
		return Spec{}, fmt.Errorf("list nodes: %w", err)
	}
	edges, err := store.Edges.ListByVersion(ctx, versionID)
	if err != nil {
		return Spec{}, fmt.Errorf("list edges: %w", err)
	}

	spec := Spec{
		Vertices:    vertices,
		Edges:       edges,
		Contexts:    make(map[string]json.RawMessage, len(vertices)),
		ExecutionID: executionID,
	}

	for _, v := range vertices {
		c, err := store.Contexts.Get(ctx, v.ContextID)
		switch {
		case errors.Is(err, repo.ErrNotFound):
			if err := store.Contexts.Set(ctx, v.ContextID, domain.EmptyState); err != nil {
				return Spec{}, fmt.Errorf("recreate context %s: %w", v.ContextID, err)
			}
			spec.Contexts[v.ContextID] = domain.EmptyState
		case err != nil:
			return Spec{}, fmt.Errorf("get context %s: %w", v.ContextID, err)
		default:
			spec.Contexts[v.ContextID] = c.State
		}
	}

	if executionID == "" {
		return spec, nil
	}

	execNodes, err := store.ExecutionNodes.ListByExecution(ctx, executionID)
	if err != nil {
		return Spec{}, fmt.Errorf("list execution nodes: %w", err)
	}
	spec.Executions = make(map[string]*domain.ExecutionNode, len(execNodes))
	for i := range execNodes {
		en := execNodes[i]
		spec.Executions[en.WorkflowNodeID] = &en
	}
	return spec, nil
}

// Import сохраняет Spec в хранилище: вершины, их Context и рёбра.
// Повторный импорт обновляет вершины; существующие рёбра пропускаются.
func Import(ctx context.Context, store *repo.Store, spec Spec) error {
	for i := range spec.Vertices {
		v := spec.Vertices[i]
		if err := store.Nodes.Upsert(ctx, &v); err != nil {
			return fmt.Errorf("upsert node %s: %w", v.ID, err)
		}
		if state, ok := spec.Contexts[v.ContextID]; ok {
			if err := store.Contexts.Set(ctx, v.ContextID, state); err != nil {
				return fmt.Errorf("set context %s: %w", v.ContextID, err)
			}
		}
	}

	for i := range spec.Edges {
		e := spec.Edges[i]
		err := store.Edges.Create(ctx, &e)
		if errors.Is(err, repo.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return fmt.Errorf("create edge %s → %s: %w", e.Source, e.Target, err)
		}
	}
	return nil
}
