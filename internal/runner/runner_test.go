package runner

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/actor"
	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/lock"
	"github.com/shaiso/craftflow/internal/mq"
	"github.com/shaiso/craftflow/internal/orchestrator"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/repo/memory"
	"github.com/shaiso/craftflow/internal/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

// stepQueue подменяет брокер: шаги копятся и разбираются вручную.
type stepQueue struct {
	mu      sync.Mutex
	pending []mq.StepPayload
	history []string
}

func (q *stepQueue) PublishExecutionStep(_ context.Context, executionID, nodeID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, mq.StepPayload{ExecutionID: executionID, WorkflowNodeID: nodeID})
	q.history = append(q.history, nodeID)
	return nil
}

func (q *stepQueue) pop() (mq.StepPayload, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return mq.StepPayload{}, false
	}
	s := q.pending[0]
	q.pending = q.pending[1:]
	return s, true
}

type env struct {
	store  *repo.Store
	queue  *stepQueue
	orch   *orchestrator.Orchestrator
	runner *Runner
	locker *lock.LocalLocker
}

func newEnv(t *testing.T, src string, timeout time.Duration) *env {
	t.Helper()
	def, err := workflow.ParseYAML([]byte(src))
	require.NoError(t, err)
	spec, err := def.Spec()
	require.NoError(t, err)

	store := memory.New().Store()
	require.NoError(t, workflow.Import(context.Background(), store, spec))

	q := &stepQueue{}
	orch := orchestrator.New(orchestrator.Config{Store: store, Publisher: q, Logger: discard})
	locker := lock.NewLocalLocker()
	return &env{
		store:  store,
		queue:  q,
		orch:   orch,
		locker: locker,
		runner: New(Config{
			Store:           store,
			Orchestrator:    orch,
			Locker:          locker,
			ExecuteTimeout:  timeout,
			ContextDebounce: 10 * time.Millisecond,
			Logger:          discard,
		}),
	}
}

func (e *env) drain(t *testing.T) {
	t.Helper()
	for i := 0; i < 100; i++ {
		step, ok := e.queue.pop()
		if !ok {
			return
		}
		require.NoError(t, e.runner.RunStep(context.Background(), step.ExecutionID, step.WorkflowNodeID))
	}
	t.Fatal("step queue did not drain")
}

func (e *env) status(t *testing.T, id string) *domain.WorkflowExecution {
	t.Helper()
	exec, err := e.store.Executions.GetByID(context.Background(), id)
	require.NoError(t, err)
	return exec
}

func (e *env) snapshot(t *testing.T, execID, nodeID string) *actor.Snapshot {
	t.Helper()
	en, err := e.store.ExecutionNodes.GetByExecutionAndNode(context.Background(), execID, nodeID)
	require.NoError(t, err)
	require.True(t, en.HasState(), "node %s has no saved state", nodeID)
	snap, err := actor.ParseSnapshot(en.State)
	require.NoError(t, err)
	return snap
}

const linear = `
version_id: v1
nodes:
  - {id: start, type: Start}
  - {id: greeting, type: Text, inputs: {value: hi}}
  - {id: log, type: Log}
  - {id: out, type: OutputNode}
edges:
  - {from: start, to: log}
  - {from: log, to: out}
  - {from: greeting.value, to: log.value}
  - {from: log.value, to: out.value}
`

func TestRunStep_HeadlessChain(t *testing.T) {
	e := newEnv(t, linear, 2*time.Second)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	e.drain(t)

	assert.Equal(t, []string{"start", "log", "out"}, e.queue.history, "each successor is triggered once")
	got := e.status(t, exec.ID)
	assert.Equal(t, domain.ExecutionStatusSucceeded, got.Status)

	out := e.snapshot(t, exec.ID, "out")
	assert.True(t, out.Matches("complete"))
	assert.Equal(t, "hi", out.Memory.Outputs["value"])
}

func TestRunStep_RepeatedStepIsIdempotent(t *testing.T) {
	e := newEnv(t, linear, 2*time.Second)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	step, ok := e.queue.pop()
	require.True(t, ok)
	require.NoError(t, e.runner.RunStep(context.Background(), exec.ID, step.WorkflowNodeID))
	before := e.snapshot(t, exec.ID, "start")

	// повторная доставка: вершина уже complete, выполняется только передача управления
	require.NoError(t, e.runner.RunStep(context.Background(), exec.ID, step.WorkflowNodeID))
	after := e.snapshot(t, exec.ID, "start")
	assert.Equal(t, before.Value, after.Value)
	assert.Equal(t, []string{"start", "log", "log"}, e.queue.history)
}

func TestRunStep_NodeErrorFailsExecution(t *testing.T) {
	e := newEnv(t, `
version_id: v1
nodes:
  - {id: start, type: Start}
  - {id: fetch, type: HTTPRequest}
  - {id: after, type: Log}
edges:
  - {from: start, to: fetch}
  - {from: fetch, to: after}
`, 2*time.Second)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	e.drain(t)

	got := e.status(t, exec.ID)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Contains(t, got.Error, "node fetch failed")
	assert.NotContains(t, e.queue.history, "after")
}

func TestRunStep_TimeoutFailsExecution(t *testing.T) {
	e := newEnv(t, `
version_id: v1
nodes:
  - {id: start, type: Start}
  - {id: wait, type: Delay, inputs: {duration: 5s}}
edges:
  - {from: start, to: wait}
`, 50*time.Millisecond)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	e.drain(t)

	got := e.status(t, exec.ID)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Contains(t, got.Error, "timed out")
}

func TestRunStep_SkipsLockedAndFinished(t *testing.T) {
	e := newEnv(t, linear, 2*time.Second)
	ctx := context.Background()
	exec, err := e.orch.StartExecution(ctx, "v1")
	require.NoError(t, err)

	held, err := e.locker.Acquire(ctx, lock.StepKey(exec.ID, "start"), time.Minute)
	require.NoError(t, err)
	require.NoError(t, e.runner.RunStep(ctx, exec.ID, "start"))
	en, err := e.store.ExecutionNodes.GetByExecutionAndNode(ctx, exec.ID, "start")
	require.NoError(t, err)
	assert.False(t, en.HasState(), "locked step is skipped")
	require.NoError(t, held.Release(ctx))

	require.NoError(t, e.orch.Fail(ctx, exec.ID, "cancelled"))
	require.NoError(t, e.runner.RunStep(ctx, exec.ID, "start"))
	en, err = e.store.ExecutionNodes.GetByExecutionAndNode(ctx, exec.ID, "start")
	require.NoError(t, err)
	assert.False(t, en.HasState(), "finished execution is skipped")

	require.NoError(t, e.runner.RunStep(ctx, "missing", "start"))
}

func TestRunStep_UnknownNodeFailsExecution(t *testing.T) {
	e := newEnv(t, linear, 2*time.Second)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	require.NoError(t, e.runner.RunStep(context.Background(), exec.ID, "ghost"))
	got := e.status(t, exec.ID)
	assert.Equal(t, domain.ExecutionStatusFailed, got.Status)
	assert.Contains(t, got.Error, "ghost")
}

func TestPoll_ResumesTriggeredSteps(t *testing.T) {
	e := newEnv(t, linear, 2*time.Second)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	// брокер «потерял» сообщения: шаги подхватывает только опрос
	e.queue.pending = nil
	e.runner.staleAfter = -time.Second
	for i := 0; i < 3; i++ {
		e.queue.pending = nil
		e.runner.poll(context.Background())
	}

	assert.Equal(t, domain.ExecutionStatusSucceeded, e.status(t, exec.ID).Status)
}

func TestHandleStep(t *testing.T) {
	e := newEnv(t, linear, 2*time.Second)
	exec, err := e.orch.StartExecution(context.Background(), "v1")
	require.NoError(t, err)

	msg, err := mq.NewMessage(mq.MessageTypeExecutionStep, mq.StepPayload{ExecutionID: exec.ID, WorkflowNodeID: "start"})
	require.NoError(t, err)
	require.NoError(t, e.runner.handleStep(context.Background(), msg))
	assert.True(t, e.snapshot(t, exec.ID, "start").Matches("complete"))

	bad := &mq.Message{ID: "x", Type: "other", Payload: json.RawMessage(`{}`)}
	assert.NoError(t, e.runner.handleStep(context.Background(), bad), "malformed steps are dropped")
}

func TestPersistence(t *testing.T) {
	store := memory.New().Store()
	ctx := context.Background()
	q := &stepQueue{}
	orch := orchestrator.New(orchestrator.Config{Store: store, Publisher: q, Logger: discard})
	p := NewPersistence(store, orch)

	require.NoError(t, p.SetContext(ctx, "ctx-1", json.RawMessage(`{"inputs":{"a":1}}`)))
	c, err := store.Contexts.Get(ctx, "ctx-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"inputs":{"a":1}}`, string(c.State))

	require.NoError(t, store.ExecutionNodes.CreateBatch(ctx, []domain.ExecutionNode{
		{ID: "en-1", ExecutionID: "e1", WorkflowNodeID: "n1"},
	}))
	require.NoError(t, p.UpdateExecutionNode(ctx, "en-1", json.RawMessage(`{"value":"complete"}`), true))
	en, err := store.ExecutionNodes.GetByID(ctx, "en-1")
	require.NoError(t, err)
	assert.True(t, en.Complete)

	require.NoError(t, p.TriggerWorkflowExecutionStep(ctx, "e1", "n1"))
	assert.Equal(t, []string{"n1"}, q.history)
	en, err = store.ExecutionNodes.GetByID(ctx, "en-1")
	require.NoError(t, err)
	assert.NotNil(t, en.TriggeredAt)

	assert.ErrorIs(t, p.UpdateExecutionNode(ctx, "missing", nil, false), repo.ErrNotFound)
}
