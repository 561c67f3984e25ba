package control

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/node"
	"github.com/shaiso/craftflow/internal/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func build(t *testing.T, src string, timeout time.Duration) *graph.Graph {
	t.Helper()
	def, err := workflow.ParseYAML([]byte(src))
	require.NoError(t, err)
	spec, err := def.Spec()
	require.NoError(t, err)
	g, err := workflow.Build(spec, workflow.Options{Logger: discard, ReadOnly: true, ExecuteTimeout: timeout})
	require.NoError(t, err)
	t.Cleanup(g.Close)
	return g
}

func order(r *Report) []string {
	out := make([]string, len(r.Nodes))
	for i, n := range r.Nodes {
		out[i] = n.ID
	}
	return out
}

func TestRun_ForwardsAlongTriggerEdges(t *testing.T) {
	g := build(t, `
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
`, 2*time.Second)

	report, err := New(g, discard).Run(context.Background(), "run-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "log", "out"}, order(report))
	assert.Empty(t, report.Failed())
	last := report.Nodes[2]
	assert.Equal(t, node.StateComplete, last.State)
	assert.Equal(t, "hi", last.Outputs["value"])
}

func TestRun_FanInExecutesOnce(t *testing.T) {
	g := build(t, `
nodes:
  - {id: start, type: Start}
  - {id: a, type: Log}
  - {id: b, type: Log}
  - {id: c, type: Log}
edges:
  - {from: start, to: a}
  - {from: start, to: b}
  - {from: a, to: c}
  - {from: b, to: c}
`, 2*time.Second)

	report, err := New(g, discard).Run(context.Background(), "run-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"start", "a", "b", "c"}, order(report))
}

func TestRun_ErrorStopsBranch(t *testing.T) {
	g := build(t, `
nodes:
  - {id: start, type: Start}
  - {id: fetch, type: HTTPRequest}
  - {id: after, type: Log}
edges:
  - {from: start, to: fetch}
  - {from: fetch, to: after}
`, 2*time.Second)

	report, err := New(g, discard).Run(context.Background(), "run-3")
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "fetch"}, order(report))
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "fetch", failed[0].ID)
	assert.Equal(t, node.StateError, failed[0].State)
}

func TestRun_TimeoutIsReported(t *testing.T) {
	g := build(t, `
nodes:
  - {id: start, type: Start}
  - {id: wait, type: Delay, inputs: {duration: 5s}}
  - {id: other, type: Log}
edges:
  - {from: start, to: wait}
  - {from: start, to: other}
`, 50*time.Millisecond)

	report, err := New(g, discard).Run(context.Background(), "run-4")
	require.NoError(t, err)

	assert.Equal(t, []string{"start", "wait", "other"}, order(report))
	failed := report.Failed()
	require.Len(t, failed, 1)
	assert.Equal(t, "wait", failed[0].ID)
	assert.Contains(t, failed[0].Error, "timed out")
}

func TestRun_ExplicitStart(t *testing.T) {
	g := build(t, `
nodes:
  - {id: start, type: Start}
  - {id: a, type: Log}
  - {id: b, type: Log}
edges:
  - {from: start, to: a}
  - {from: a, to: b}
`, 2*time.Second)

	e := New(g, discard)
	report, err := e.Run(context.Background(), "run-5", "a")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order(report))

	_, err = e.Run(context.Background(), "run-6", "missing")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestRun_Cancelled(t *testing.T) {
	g := build(t, `
nodes:
  - {id: start, type: Start}
`, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(g, discard).Run(ctx, "run-7")
	assert.ErrorIs(t, err, context.Canceled)
}
