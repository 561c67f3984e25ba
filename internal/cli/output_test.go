package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/control"
)

func newTestOutput(jsonMode bool) (*Output, *bytes.Buffer) {
	var buf bytes.Buffer
	return &Output{jsonMode: jsonMode, w: &buf, errW: &bytes.Buffer{}}, &buf
}

func TestOutput_ExecutionNodes(t *testing.T) {
	out, buf := newTestOutput(false)
	out.ExecutionNodes([]ExecutionNodeResponse{
		{WorkflowNodeID: "start"},
		{
			WorkflowNodeID: "prompt",
			Complete:       true,
			State:          json.RawMessage(`{"value":"complete","context":{"inputs":{},"outputs":{"value":"Hello"}},"status":"done"}`),
		},
		{
			WorkflowNodeID: "fetch",
			State:          json.RawMessage(`{"value":"error","context":{"error":{"name":"HTTPError","message":"status 502"}},"status":"active"}`),
		},
		{WorkflowNodeID: "broken", State: json.RawMessage(`{"value":""}`)},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[0], "STATE")
	assert.Contains(t, lines[2], "pending")
	assert.Contains(t, lines[3], "complete")
	assert.Contains(t, lines[3], `{"value":"Hello"}`)
	assert.Contains(t, lines[4], "HTTPError: status 502")
	assert.Contains(t, lines[5], "invalid")
}

func TestOutput_ExecutionNodesJSON(t *testing.T) {
	out, buf := newTestOutput(true)
	out.ExecutionNodes([]ExecutionNodeResponse{{WorkflowNodeID: "a", Complete: true}})

	var got []ExecutionNodeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	require.Len(t, got, 1)
	assert.True(t, got[0].Complete)
}

func TestOutput_Executions(t *testing.T) {
	out, buf := newTestOutput(false)
	out.Executions([]ExecutionResponse{{ID: "e1", WorkflowVersionID: "v-1", Status: "SUCCEEDED", DurationMs: 1500}})
	assert.Contains(t, buf.String(), "1.5s")

	out, buf = newTestOutput(true)
	out.Execution(&ExecutionResponse{ID: "e1", Status: "RUNNING"})
	var got ExecutionResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "RUNNING", got.Status)
}

func TestOutput_Report(t *testing.T) {
	out, buf := newTestOutput(false)
	out.Report(&control.Report{Nodes: []control.NodeResult{
		{ID: "log", Type: "Log", State: "complete", Outputs: map[string]any{"value": strings.Repeat("x", 100)}},
	}})
	assert.Contains(t, buf.String(), "log")
	assert.Contains(t, buf.String(), "...")
	assert.NotContains(t, buf.String(), strings.Repeat("x", 100))
}

func TestEndpoint(t *testing.T) {
	assert.Equal(t, "start", endpoint("start", "trigger"))
	assert.Equal(t, "name.value", endpoint("name", "value"))
}
