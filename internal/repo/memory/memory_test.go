package memory

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/repo"
)

func TestNodes_UpsertReincarnatesContext(t *testing.T) {
	ctx := context.Background()
	db := New()
	s := db.Store()

	v := &domain.Vertex{ID: "n1", Type: "Text", WorkflowVersionID: "v1", ContextID: "ctx-1"}
	require.NoError(t, s.Nodes.Upsert(ctx, v))

	c, err := s.Contexts.Get(ctx, "ctx-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(c.State))

	require.NoError(t, s.Contexts.Set(ctx, "ctx-1", json.RawMessage(`{"inputs":{"value":"x"}}`)))

	// существующий контекст не перезаписывается
	require.NoError(t, s.Nodes.Upsert(ctx, v))
	c, err = s.Contexts.Get(ctx, "ctx-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputs":{"value":"x"}}`, string(c.State))

	// удалённый контекст восстанавливается с тем же ID и пустым состоянием
	db.mu.Lock()
	delete(db.contexts, "ctx-1")
	db.mu.Unlock()

	require.NoError(t, s.Nodes.Upsert(ctx, v))
	c, err = s.Contexts.Get(ctx, "ctx-1")
	require.NoError(t, err)
	assert.Equal(t, "ctx-1", c.ID)
	assert.JSONEq(t, `{}`, string(c.State))
}

func TestNodes_UpsertGeneratesContextID(t *testing.T) {
	s := New().Store()
	v := &domain.Vertex{ID: "n1", Type: "Text", WorkflowVersionID: "v1"}
	require.NoError(t, s.Nodes.Upsert(context.Background(), v))
	assert.NotEmpty(t, v.ContextID)

	_, err := s.Contexts.Get(context.Background(), v.ContextID)
	assert.NoError(t, err)
}

func TestNodes_ListByVersionKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, s.Nodes.Upsert(ctx, &domain.Vertex{ID: id, WorkflowVersionID: "v1"}))
	}
	require.NoError(t, s.Nodes.Upsert(ctx, &domain.Vertex{ID: "other", WorkflowVersionID: "v2"}))

	nodes, err := s.Nodes.ListByVersion(ctx, "v1")
	require.NoError(t, err)
	ids := make([]string, len(nodes))
	for i, n := range nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}

func TestNodes_DeleteRemovesUnpublishedExecutionData(t *testing.T) {
	ctx := context.Background()
	db := New()
	s := db.Store()

	require.NoError(t, s.Nodes.Upsert(ctx, &domain.Vertex{ID: "n1", WorkflowVersionID: "draft", ContextID: "c1"}))
	require.NoError(t, s.Nodes.Upsert(ctx, &domain.Vertex{ID: "n2", WorkflowVersionID: "draft", ContextID: "c2"}))
	require.NoError(t, s.Edges.Create(ctx, &domain.Edge{WorkflowVersionID: "draft", Source: "n1", SourceOutput: "value", Target: "n2", TargetInput: "value"}))

	require.NoError(t, s.Executions.Create(ctx, &domain.WorkflowExecution{ID: "e1", WorkflowVersionID: "draft", Status: domain.ExecutionStatusRunning}))
	require.NoError(t, s.ExecutionNodes.CreateBatch(ctx, []domain.ExecutionNode{
		{ID: "en1", ExecutionID: "e1", WorkflowNodeID: "n1"},
		{ID: "en2", ExecutionID: "e1", WorkflowNodeID: "n2"},
	}))

	require.NoError(t, s.Nodes.Delete(ctx, "n1"))

	_, err := s.Nodes.GetByID(ctx, "n1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.Contexts.Get(ctx, "c1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.ExecutionNodes.GetByID(ctx, "en1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	_, err = s.ExecutionNodes.GetByID(ctx, "en2")
	assert.NoError(t, err)

	edges, err := s.Edges.ListByVersion(ctx, "draft")
	require.NoError(t, err)
	assert.Empty(t, edges)

	assert.ErrorIs(t, s.Nodes.Delete(ctx, "n1"), repo.ErrNotFound)
}

func TestNodes_DeleteKeepsPublishedExecutionData(t *testing.T) {
	ctx := context.Background()
	db := New()
	s := db.Store()
	db.Publish("v1")

	require.NoError(t, s.Nodes.Upsert(ctx, &domain.Vertex{ID: "n1", WorkflowVersionID: "v1"}))
	require.NoError(t, s.Executions.Create(ctx, &domain.WorkflowExecution{ID: "e1", WorkflowVersionID: "v1"}))
	require.NoError(t, s.ExecutionNodes.CreateBatch(ctx, []domain.ExecutionNode{{ID: "en1", ExecutionID: "e1", WorkflowNodeID: "n1"}}))

	require.NoError(t, s.Nodes.Delete(ctx, "n1"))
	_, err := s.ExecutionNodes.GetByID(ctx, "en1")
	assert.NoError(t, err)
}

func TestEdges_CreateDuplicateAndDelete(t *testing.T) {
	ctx := context.Background()
	s := New().Store()

	e := &domain.Edge{WorkflowVersionID: "v1", Source: "a", SourceOutput: "trigger", Target: "b", TargetInput: "trigger"}
	require.NoError(t, s.Edges.Create(ctx, e))
	assert.NotEmpty(t, e.ID)

	dup := *e
	dup.ID = ""
	assert.ErrorIs(t, s.Edges.Create(ctx, &dup), repo.ErrAlreadyExists)

	require.NoError(t, s.Edges.Delete(ctx, *e))
	assert.ErrorIs(t, s.Edges.Delete(ctx, *e), repo.ErrNotFound)
}

func TestExecutionNodes_StateTriggerAndStale(t *testing.T) {
	ctx := context.Background()
	s := New().Store()

	require.NoError(t, s.Executions.Create(ctx, &domain.WorkflowExecution{ID: "e1", Status: domain.ExecutionStatusRunning}))
	require.NoError(t, s.Executions.Create(ctx, &domain.WorkflowExecution{ID: "e2", Status: domain.ExecutionStatusSucceeded}))
	require.NoError(t, s.ExecutionNodes.CreateBatch(ctx, []domain.ExecutionNode{
		{ID: "a", ExecutionID: "e1", WorkflowNodeID: "start"},
		{ID: "b", ExecutionID: "e1", WorkflowNodeID: "log"},
		{ID: "c", ExecutionID: "e2", WorkflowNodeID: "start"},
	}))

	require.NoError(t, s.ExecutionNodes.UpdateState(ctx, "a", json.RawMessage(`{"value":"complete"}`), true))
	got, err := s.ExecutionNodes.GetByExecutionAndNode(ctx, "e1", "start")
	require.NoError(t, err)
	assert.True(t, got.Complete)
	assert.True(t, got.HasState())

	for _, id := range []string{"start", "log"} {
		require.NoError(t, s.ExecutionNodes.MarkTriggered(ctx, "e1", id))
	}
	require.NoError(t, s.ExecutionNodes.MarkTriggered(ctx, "e2", "start"))
	assert.ErrorIs(t, s.ExecutionNodes.MarkTriggered(ctx, "e1", "missing"), repo.ErrNotFound)

	stale, err := s.ExecutionNodes.ListStale(ctx, time.Now().Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, stale, 1, "complete nodes and finished executions are skipped")
	assert.Equal(t, "b", stale[0].ID)

	stale, err = s.ExecutionNodes.ListStale(ctx, time.Now().Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Empty(t, stale)

	list, err := s.ExecutionNodes.ListByExecution(ctx, "e1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "log", list[0].WorkflowNodeID)
}

func TestExecutions_ListFilter(t *testing.T) {
	ctx := context.Background()
	s := New().Store()

	for i, st := range []domain.ExecutionStatus{domain.ExecutionStatusRunning, domain.ExecutionStatusFailed, domain.ExecutionStatusRunning} {
		require.NoError(t, s.Executions.Create(ctx, &domain.WorkflowExecution{
			ID:                string(rune('a' + i)),
			WorkflowVersionID: "v1",
			Status:            st,
		}))
	}

	running, err := s.Executions.List(ctx, repo.ExecutionFilter{Status: domain.ExecutionStatusRunning})
	require.NoError(t, err)
	require.Len(t, running, 2)
	assert.Equal(t, "c", running[0].ID, "newest first")

	page, err := s.Executions.List(ctx, repo.ExecutionFilter{WorkflowVersionID: "v1", Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].ID)
}

func TestExecutions_FinishOnlyOnce(t *testing.T) {
	ctx := context.Background()
	s := New().Store()
	require.NoError(t, s.Executions.Create(ctx, &domain.WorkflowExecution{ID: "e1", Status: domain.ExecutionStatusRunning}))

	first := &domain.WorkflowExecution{ID: "e1", Status: domain.ExecutionStatusRunning}
	second := *first

	first.MarkSucceeded()
	require.NoError(t, s.Executions.Finish(ctx, first))

	second.MarkFailed("late")
	err := s.Executions.Finish(ctx, &second)
	assert.ErrorIs(t, err, repo.ErrInvalidState)

	stored, err := s.Executions.GetByID(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionStatusSucceeded, stored.Status)
	assert.Empty(t, stored.Error)

	assert.ErrorIs(t, s.Executions.Finish(ctx, &domain.WorkflowExecution{ID: "missing"}), repo.ErrNotFound)
}
