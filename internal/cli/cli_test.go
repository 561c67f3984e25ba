package cli

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/api"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/repo/memory"
	"github.com/shaiso/craftflow/internal/workflow"
)

const helloYAML = `
name: hello
workflow_id: wf-1
version_id: v-1
nodes:
  - {id: start, type: Start}
  - {id: name, type: Text, inputs: {value: world}}
  - id: prompt
    type: PromptTemplate
    inputs:
      template: "Hello, {{ .Inputs.name }}!"
  - {id: log, type: Log}
edges:
  - {from: start, to: log}
  - {from: name.value, to: prompt.name}
  - {from: prompt.value, to: log.value}
`

type harness struct {
	stdout bytes.Buffer
	stderr bytes.Buffer
	client *Client
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mux := http.NewServeMux()
	api.NewHandler(api.Config{
		Store:  memory.New().Store(),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return &harness{client: NewClient(srv.URL)}
}

func (h *harness) run(t *testing.T, jsonMode bool, args ...string) error {
	t.Helper()
	h.stdout.Reset()
	h.stderr.Reset()

	root := &cobra.Command{Use: "craftflow", SilenceUsage: true, SilenceErrors: true}
	clientFn := func() *Client { return h.client }
	outputFn := func() *Output { return &Output{jsonMode: jsonMode, w: &h.stdout, errW: &h.stderr} }
	root.AddCommand(
		NewWorkflowCmd(clientFn, outputFn),
		NewExecutionCmd(clientFn, outputFn),
		NewContextCmd(clientFn, outputFn),
		NewLocalCmd(outputFn),
	)
	root.SetArgs(args)
	return root.Execute()
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestWorkflowImportAndGraph(t *testing.T) {
	h := newHarness(t)
	path := writeFile(t, "hello.yaml", helloYAML)

	require.NoError(t, h.run(t, false, "workflow", "import", path))
	assert.Contains(t, h.stderr.String(), "version v-1")
	assert.Contains(t, h.stdout.String(), "wf-1")

	require.NoError(t, h.run(t, false, "workflow", "graph", "v-1"))
	assert.Contains(t, h.stdout.String(), "PromptTemplate")
	assert.Contains(t, h.stdout.String(), "name.value")
	assert.Contains(t, h.stdout.String(), `{"value":"world"}`)

	require.NoError(t, h.run(t, false, "workflow", "graph", "v-1", "--dot"))
	assert.Contains(t, h.stdout.String(), "digraph")

	err := h.run(t, false, "workflow", "graph", "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestWorkflowTypes(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.run(t, false, "workflow", "types"))
	assert.Contains(t, h.stdout.String(), "HTTPRequest")
	assert.Contains(t, h.stdout.String(), "trigger")
}

func TestExecutionCommands(t *testing.T) {
	h := newHarness(t)
	_, err := h.client.ImportWorkflow([]byte(helloYAML), "application/yaml")
	require.NoError(t, err)

	require.NoError(t, h.run(t, false, "execution", "start", "v-1"))
	assert.Contains(t, h.stderr.String(), "Execution started")

	execs, err := h.client.ListExecutions(ListExecutionsOpts{Version: "v-1"})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	id := execs[0].ID
	assert.Equal(t, "RUNNING", execs[0].Status)

	require.NoError(t, h.run(t, true, "execution", "list", "--status", "RUNNING"))
	assert.Contains(t, h.stdout.String(), id)

	require.NoError(t, h.run(t, false, "exec", "nodes", id))
	assert.Contains(t, h.stdout.String(), "prompt")
	assert.Contains(t, h.stdout.String(), "pending")

	require.NoError(t, h.run(t, false, "execution", "step", id, "log"))
	assert.Contains(t, h.stderr.String(), "Step dispatched")

	err = h.run(t, false, "execution", "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOT_FOUND")
}

func TestContextCommands(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.run(t, false, "context", "set", "c1", `{"inputs":{"value":"x"}}`))
	assert.Contains(t, h.stderr.String(), "Context updated: c1")

	require.NoError(t, h.run(t, false, "context", "show", "c1"))
	assert.Contains(t, h.stdout.String(), `"value": "x"`)

	err := h.run(t, false, "context", "set", "c1", `not json`)
	assert.Error(t, err)
}

func TestLocalRun(t *testing.T) {
	h := newHarness(t)
	path := writeFile(t, "hello.yaml", helloYAML)

	require.NoError(t, h.run(t, false, "local", "run", path))
	out := h.stdout.String()
	assert.Contains(t, out, "start")
	assert.Contains(t, out, "Hello, world!")
	assert.Contains(t, h.stderr.String(), "Run finished")
}

func TestLocalRun_UnknownStart(t *testing.T) {
	h := newHarness(t)
	path := writeFile(t, "hello.yaml", helloYAML)

	err := h.run(t, false, "local", "run", path, "--start", "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestLocalValidateAndDot(t *testing.T) {
	h := newHarness(t)
	path := writeFile(t, "hello.yaml", helloYAML)

	require.NoError(t, h.run(t, false, "local", "validate", path))
	assert.Contains(t, h.stderr.String(), "hello is valid: 4 nodes, 3 edges")

	require.NoError(t, h.run(t, false, "local", "dot", path))
	assert.Contains(t, h.stdout.String(), "digraph hello")

	// экспорт снова читается как файл workflow с теми же портами
	exported := writeFile(t, "hello.dot", h.stdout.String())
	def, err := workflow.LoadFile(exported)
	require.NoError(t, err)
	require.NoError(t, def.Validate(nodes.DefaultRegistry()))
	assert.ElementsMatch(t, []workflow.EdgeDef{
		{From: "start.trigger", To: "log.trigger"},
		{From: "name.value", To: "prompt.name"},
		{From: "prompt.value", To: "log.value"},
	}, def.Edges)

	require.NoError(t, h.run(t, false, "local", "validate", exported))
	assert.Contains(t, h.stderr.String(), "hello is valid: 4 nodes, 3 edges")

	bad := writeFile(t, "bad.yaml", `
nodes:
  - {id: a, type: Text}
  - {id: b, type: Log}
edges:
  - {from: a.nope, to: b.value}
`)
	err = h.run(t, false, "local", "validate", bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown output")
}
