package dataflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/telemetry"
)

// Source — вершина, умеющая отдать свои выходы.
//
// inputs == nil означает «разреши входы сам».
type Source interface {
	Data(ctx context.Context, inputs map[string]any) (map[string]any, error)
}

// Graph — то, что движку нужно от графа.
type Graph interface {
	// Connections возвращает рёбра в порядке объявления.
	Connections() []domain.Edge

	// Source возвращает источник данных по ID вершины.
	Source(id string) (Source, bool)
}

// Engine — движок разрешения входов с кэшем выходов.
type Engine struct {
	graph  Graph
	logger *slog.Logger

	mu    sync.Mutex
	cache map[string]map[string]any

	// passes — семафор прохода верхнего уровня.
	passes chan struct{}
}

// New создаёт Engine для графа.
func New(graph Graph, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		graph:  graph,
		logger: logger,
		cache:  make(map[string]map[string]any),
		passes: make(chan struct{}, 1),
	}
}

// pass — состояние одного прохода разрешения.
type pass struct {
	engine *Engine

	mu       sync.Mutex
	visiting map[string]bool
}

type passKey struct{}

func (e *Engine) passFrom(ctx context.Context) *pass {
	p, ok := ctx.Value(passKey{}).(*pass)
	if !ok || p.engine != e {
		return nil
	}
	return p
}

// begin открывает проход верхнего уровня либо возвращает текущий.
// release закрывает проход, если begin его открыл.
func (e *Engine) begin(ctx context.Context, reset bool) (context.Context, *pass, func(), error) {
	if p := e.passFrom(ctx); p != nil {
		return ctx, p, func() {}, nil
	}

	select {
	case e.passes <- struct{}{}:
	case <-ctx.Done():
		return ctx, nil, nil, ctx.Err()
	}
	if reset {
		e.Reset()
	}

	p := &pass{engine: e, visiting: make(map[string]bool)}
	return context.WithValue(ctx, passKey{}, p), p, func() { <-e.passes }, nil
}

// Reset очищает кэш выходов.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	clear(e.cache)
}

// Evict удаляет из кэша выходы вершины id.
func (e *Engine) Evict(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.cache, id)
}

// Cached возвращает закэшированные выходы вершины.
func (e *Engine) Cached(id string) (map[string]any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	out, ok := e.cache[id]
	return out, ok
}

// Resolve разрешает входы вершины id.
//
// Вне прохода открывает новый проход со сбросом кэша;
// внутри прохода работает как FetchInputs.
func (e *Engine) Resolve(ctx context.Context, id string) (map[string][]any, error) {
	ctx, p, release, err := e.begin(ctx, true)
	if err != nil {
		return nil, err
	}
	defer release()
	return e.fetch(ctx, p, id)
}

// FetchInputs возвращает значения входов вершины id, сгруппированные по
// входному порту в порядке объявления рёбер. Рёбра trigger пропускаются.
//
// Ошибки отдельных источников не прерывают разрешение: возвращаются
// частичные входы и объединённая ошибка. ErrCycleDetected прерывает сразу.
func (e *Engine) FetchInputs(ctx context.Context, id string) (map[string][]any, error) {
	ctx, p, release, err := e.begin(ctx, false)
	if err != nil {
		return nil, err
	}
	defer release()
	return e.fetch(ctx, p, id)
}

func (e *Engine) fetch(ctx context.Context, p *pass, id string) (map[string][]any, error) {
	p.mu.Lock()
	if p.visiting[id] {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: at node %s", ErrCycleDetected, id)
	}
	p.visiting[id] = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.visiting, id)
		p.mu.Unlock()
	}()

	inputs := make(map[string][]any)
	var errs []error

	for _, edge := range e.graph.Connections() {
		if edge.Target != id || edge.IsTrigger() {
			continue
		}

		outputs, err := e.outputs(ctx, edge.Source)
		if err != nil {
			if errors.Is(err, ErrCycleDetected) {
				return nil, err
			}
			errs = append(errs, fmt.Errorf("input %s from %s: %w", edge.TargetInput, edge.Source, err))
			continue
		}

		value, ok := outputs[edge.SourceOutput]
		if !ok {
			continue
		}
		inputs[edge.TargetInput] = append(inputs[edge.TargetInput], value)
	}

	return inputs, errors.Join(errs...)
}

// outputs возвращает выходы источника из кэша или вызывает Data.
func (e *Engine) outputs(ctx context.Context, id string) (map[string]any, error) {
	if out, ok := e.Cached(id); ok {
		telemetry.DataflowCache.WithLabelValues("hit").Inc()
		return out, nil
	}
	telemetry.DataflowCache.WithLabelValues("miss").Inc()

	src, ok := e.graph.Source(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, id)
	}

	out, err := src.Data(ctx, nil)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.cache[id] = out
	e.mu.Unlock()

	e.logger.Debug("dataflow source resolved", "node_id", id, "outputs", len(out))
	return out, nil
}
