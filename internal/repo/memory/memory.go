// Package memory — хранилище в памяти процесса.
//
// Реализует интерфейсы repo для тестов и локального запуска workflow
// без Postgres.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/repo"
)

// DB — данные хранилища.
type DB struct {
	mu         sync.Mutex
	nodes      map[string]domain.Vertex
	nodeOrder  []string
	edges      []domain.Edge
	contexts   map[string]domain.Context
	executions map[string]domain.WorkflowExecution
	execOrder  []string
	execNodes  map[string]domain.ExecutionNode
	published  map[string]bool
}

// New создаёт пустое хранилище.
func New() *DB {
	return &DB{
		nodes:      make(map[string]domain.Vertex),
		contexts:   make(map[string]domain.Context),
		executions: make(map[string]domain.WorkflowExecution),
		execNodes:  make(map[string]domain.ExecutionNode),
		published:  make(map[string]bool),
	}
}

// Store возвращает набор хранилищ поверх DB.
func (db *DB) Store() *repo.Store {
	return &repo.Store{
		Nodes:          (*nodeStore)(db),
		Edges:          (*edgeStore)(db),
		Contexts:       (*contextStore)(db),
		Executions:     (*executionStore)(db),
		ExecutionNodes: (*executionNodeStore)(db),
	}
}

// Publish помечает версию опубликованной.
func (db *DB) Publish(versionID string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.published[versionID] = true
}

// --- nodes ---

type nodeStore DB

func (s *nodeStore) Upsert(_ context.Context, v *domain.Vertex) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	if v.ContextID == "" {
		v.ContextID = uuid.NewString()
	}
	if _, ok := db.contexts[v.ContextID]; !ok {
		db.contexts[v.ContextID] = domain.Context{
			ID:        v.ContextID,
			ProjectID: v.ProjectID,
			Type:      v.Type,
			State:     domain.EmptyState,
			UpdatedAt: time.Now(),
		}
	}

	now := time.Now()
	if prev, ok := db.nodes[v.ID]; ok {
		v.CreatedAt = prev.CreatedAt
	} else {
		v.CreatedAt = now
		db.nodeOrder = append(db.nodeOrder, v.ID)
	}
	v.UpdatedAt = now
	db.nodes[v.ID] = *v
	return nil
}

func (s *nodeStore) GetByID(_ context.Context, id string) (*domain.Vertex, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	v, ok := db.nodes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &v, nil
}

func (s *nodeStore) ListByVersion(_ context.Context, versionID string) ([]domain.Vertex, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.Vertex
	for _, id := range db.nodeOrder {
		if v := db.nodes[id]; v.WorkflowVersionID == versionID {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *nodeStore) Delete(_ context.Context, id string) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	v, ok := db.nodes[id]
	if !ok {
		return repo.ErrNotFound
	}
	delete(db.nodes, id)
	db.nodeOrder = slices.DeleteFunc(db.nodeOrder, func(x string) bool { return x == id })
	db.edges = slices.DeleteFunc(db.edges, func(e domain.Edge) bool { return e.Source == id || e.Target == id })
	delete(db.contexts, v.ContextID)

	for enID, en := range db.execNodes {
		if en.WorkflowNodeID != id {
			continue
		}
		exec, ok := db.executions[en.ExecutionID]
		if ok && exec.WorkflowVersionID == v.WorkflowVersionID && !db.published[exec.WorkflowVersionID] {
			delete(db.execNodes, enID)
		}
	}
	return nil
}

// --- edges ---

type edgeStore DB

func (s *edgeStore) Create(_ context.Context, e *domain.Edge) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.edges {
		if existing.WorkflowVersionID == e.WorkflowVersionID && existing.SameEnds(*e) {
			return repo.ErrAlreadyExists
		}
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	db.edges = append(db.edges, *e)
	return nil
}

func (s *edgeStore) Delete(_ context.Context, e domain.Edge) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	idx := slices.IndexFunc(db.edges, func(x domain.Edge) bool {
		return x.WorkflowVersionID == e.WorkflowVersionID && x.SameEnds(e)
	})
	if idx < 0 {
		return repo.ErrNotFound
	}
	db.edges = slices.Delete(db.edges, idx, idx+1)
	return nil
}

func (s *edgeStore) ListByVersion(_ context.Context, versionID string) ([]domain.Edge, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.Edge
	for _, e := range db.edges {
		if e.WorkflowVersionID == versionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- contexts ---

type contextStore DB

func (s *contextStore) Get(_ context.Context, id string) (*domain.Context, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	c, ok := db.contexts[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	c.State = slices.Clone(c.State)
	return &c, nil
}

func (s *contextStore) Set(_ context.Context, id string, state json.RawMessage) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	if len(state) == 0 {
		state = domain.EmptyState
	}
	c := db.contexts[id]
	c.ID = id
	c.State = slices.Clone(state)
	c.UpdatedAt = time.Now()
	db.contexts[id] = c
	return nil
}

// --- executions ---

type executionStore DB

func (s *executionStore) Create(_ context.Context, e *domain.WorkflowExecution) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.executions[e.ID]; ok {
		return repo.ErrAlreadyExists
	}
	db.executions[e.ID] = *e
	db.execOrder = append(db.execOrder, e.ID)
	return nil
}

func (s *executionStore) GetByID(_ context.Context, id string) (*domain.WorkflowExecution, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	e, ok := db.executions[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return &e, nil
}

func (s *executionStore) Update(_ context.Context, e *domain.WorkflowExecution) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.executions[e.ID]; !ok {
		return repo.ErrNotFound
	}
	db.executions[e.ID] = *e
	return nil
}

func (s *executionStore) Finish(_ context.Context, e *domain.WorkflowExecution) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	cur, ok := db.executions[e.ID]
	if !ok {
		return repo.ErrNotFound
	}
	if cur.IsFinished() {
		return fmt.Errorf("%w: execution %s is already finished", repo.ErrInvalidState, e.ID)
	}
	cur.Status = e.Status
	cur.Error = e.Error
	cur.FinishedAt = e.FinishedAt
	db.executions[e.ID] = cur
	return nil
}

func (s *executionStore) List(_ context.Context, filter repo.ExecutionFilter) ([]domain.WorkflowExecution, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.WorkflowExecution
	for i := len(db.execOrder) - 1; i >= 0; i-- {
		e := db.executions[db.execOrder[i]]
		if filter.WorkflowVersionID != "" && e.WorkflowVersionID != filter.WorkflowVersionID {
			continue
		}
		if filter.Status != "" && e.Status != filter.Status {
			continue
		}
		out = append(out, e)
	}

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// --- execution nodes ---

type executionNodeStore DB

func (s *executionNodeStore) CreateBatch(_ context.Context, nodes []domain.ExecutionNode) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, n := range nodes {
		if _, ok := db.execNodes[n.ID]; ok {
			return repo.ErrAlreadyExists
		}
	}
	for _, n := range nodes {
		n.UpdatedAt = time.Now()
		db.execNodes[n.ID] = n
	}
	return nil
}

func (s *executionNodeStore) GetByID(_ context.Context, id string) (*domain.ExecutionNode, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	n, ok := db.execNodes[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	return cloneExecNode(n), nil
}

func (s *executionNodeStore) GetByExecutionAndNode(_ context.Context, executionID, nodeID string) (*domain.ExecutionNode, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, n := range db.execNodes {
		if n.ExecutionID == executionID && n.WorkflowNodeID == nodeID {
			return cloneExecNode(n), nil
		}
	}
	return nil, repo.ErrNotFound
}

func (s *executionNodeStore) ListByExecution(_ context.Context, executionID string) ([]domain.ExecutionNode, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.ExecutionNode
	for _, n := range db.execNodes {
		if n.ExecutionID == executionID {
			out = append(out, *cloneExecNode(n))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkflowNodeID < out[j].WorkflowNodeID })
	return out, nil
}

func (s *executionNodeStore) UpdateState(_ context.Context, id string, state json.RawMessage, complete bool) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	n, ok := db.execNodes[id]
	if !ok {
		return repo.ErrNotFound
	}
	n.State = slices.Clone(state)
	n.Complete = complete
	n.UpdatedAt = time.Now()
	db.execNodes[id] = n
	return nil
}

func (s *executionNodeStore) MarkTriggered(_ context.Context, executionID, nodeID string) error {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	for id, n := range db.execNodes {
		if n.ExecutionID == executionID && n.WorkflowNodeID == nodeID {
			now := time.Now()
			n.TriggeredAt = &now
			n.UpdatedAt = now
			db.execNodes[id] = n
			return nil
		}
	}
	return repo.ErrNotFound
}

func (s *executionNodeStore) ListStale(_ context.Context, before time.Time, limit int) ([]domain.ExecutionNode, error) {
	db := (*DB)(s)
	db.mu.Lock()
	defer db.mu.Unlock()

	var out []domain.ExecutionNode
	for _, n := range db.execNodes {
		if n.TriggeredAt == nil || !n.TriggeredAt.Before(before) || n.Complete {
			continue
		}
		if e, ok := db.executions[n.ExecutionID]; !ok || e.Status != domain.ExecutionStatusRunning {
			continue
		}
		out = append(out, *cloneExecNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TriggeredAt.Before(*out[j].TriggeredAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneExecNode(n domain.ExecutionNode) *domain.ExecutionNode {
	n.State = slices.Clone(n.State)
	if n.TriggeredAt != nil {
		t := *n.TriggeredAt
		n.TriggeredAt = &t
	}
	return &n
}

var (
	_ repo.NodeStore          = (*nodeStore)(nil)
	_ repo.EdgeStore          = (*edgeStore)(nil)
	_ repo.ContextStore       = (*contextStore)(nil)
	_ repo.ExecutionStore     = (*executionStore)(nil)
	_ repo.ExecutionNodeStore = (*executionNodeStore)(nil)
)
