package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/repo/memory"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

const helloYAML = `
name: hello
workflow_id: wf-1
version_id: v-1
nodes:
  - id: start
    type: Start
  - id: name
    type: Text
    inputs: {value: world}
  - id: prompt
    type: PromptTemplate
    inputs:
      template: "Hello, {{ .Inputs.name }}!"
  - id: log
    type: Log
edges:
  - {from: start, to: log}
  - {from: name.value, to: prompt.name}
  - {from: prompt.value, to: log.value}
`

const helloDOT = `digraph hello {
    workflow_id = "wf-1"
    start  [type=Start]
    name   [type=Text, inputs="{\"value\":\"world\"}"]
    prompt [comment=PromptTemplate, label="Prompt", inputs="{\"template\":\"Hello, {{ .Inputs.name }}!\"}"]
    log    [type=Log]

    start -> log
    name:value -> prompt:name
    prompt -> log [output=value, input=value]
}`

func TestParseYAML(t *testing.T) {
	def, err := ParseYAML([]byte(helloYAML))
	require.NoError(t, err)

	assert.Equal(t, "hello", def.Name)
	assert.Equal(t, "wf-1", def.WorkflowID)
	require.Len(t, def.Nodes, 4)
	assert.Equal(t, "world", def.Nodes[1].Inputs["value"])
	require.Len(t, def.Edges, 3)
	assert.Equal(t, "name.value", def.Edges[1].From)

	require.NoError(t, def.Validate(nodes.DefaultRegistry()))
}

func TestParseYAML_Invalid(t *testing.T) {
	_, err := ParseYAML([]byte("nodes: [unclosed"))
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestParseDOT(t *testing.T) {
	def, err := ParseDOT(helloDOT)
	require.NoError(t, err)

	assert.Equal(t, "hello", def.Name)
	assert.Equal(t, "wf-1", def.WorkflowID)
	require.Len(t, def.Nodes, 4)

	ids := make([]string, len(def.Nodes))
	for i, n := range def.Nodes {
		ids[i] = n.ID
	}
	assert.Equal(t, []string{"start", "name", "prompt", "log"}, ids)

	assert.Equal(t, nodes.TypePromptTemplate, def.Nodes[2].Type, "comment is a fallback for type")
	assert.Equal(t, "Prompt", def.Nodes[2].Label)
	assert.Equal(t, "Hello, {{ .Inputs.name }}!", def.Nodes[2].Inputs["template"])

	assert.Equal(t, []EdgeDef{
		{From: "start.trigger", To: "log.trigger"},
		{From: "name.value", To: "prompt.name"},
		{From: "prompt.value", To: "log.value"},
	}, def.Edges)
}

func TestParseDOT_Errors(t *testing.T) {
	_, err := ParseDOT("digraph {")
	assert.ErrorIs(t, err, ErrInvalidDefinition)

	_, err = ParseDOT(`digraph { a [type=Text, inputs="{not json"] }`)
	assert.ErrorIs(t, err, ErrInvalidDefinition)
}

func TestValidate(t *testing.T) {
	reg := nodes.DefaultRegistry()

	tests := []struct {
		name string
		def  Definition
		want error
	}{
		{"empty", Definition{}, ErrInvalidDefinition},
		{"empty id", Definition{Nodes: []NodeDef{{Type: "Start"}}}, ErrInvalidDefinition},
		{
			"duplicate",
			Definition{Nodes: []NodeDef{{ID: "a", Type: "Start"}, {ID: "a", Type: "Log"}}},
			graph.ErrDuplicateNode,
		},
		{"unknown type", Definition{Nodes: []NodeDef{{ID: "a", Type: "Nope"}}}, nodes.ErrKindNotFound},
		{
			"unknown edge end",
			Definition{
				Nodes: []NodeDef{{ID: "a", Type: "Start"}},
				Edges: []EdgeDef{{From: "a", To: "b"}},
			},
			graph.ErrNodeNotFound,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.def.Validate(reg)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var ve *graph.ValidationError
			assert.True(t, errors.As(err, &ve))
		})
	}
}

func TestSplitEndpoint(t *testing.T) {
	id, port := splitEndpoint("prompt.value")
	assert.Equal(t, "prompt", id)
	assert.Equal(t, "value", port)

	id, port = splitEndpoint(" start ")
	assert.Equal(t, "start", id)
	assert.Equal(t, domain.TriggerPort, port)
}

func TestBuild_Interactive(t *testing.T) {
	def, err := ParseYAML([]byte(helloYAML))
	require.NoError(t, err)
	spec, err := def.Spec()
	require.NoError(t, err)

	assert.Equal(t, "ctx-prompt", spec.Vertices[2].ContextID)
	assert.JSONEq(t, `{"inputs":{"value":"world"},"values":null}`, string(spec.Contexts["ctx-name"]))

	g, err := Build(spec, Options{Logger: discard, ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(g.Close)

	assert.Equal(t, 4, g.Len())
	assert.Len(t, g.Connections(), 3)

	prompt, ok := g.Node("prompt")
	require.True(t, ok)
	out, err := prompt.Data(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", out["value"])
}

func TestBuild_InvalidEdge(t *testing.T) {
	spec := Spec{
		Vertices: []domain.Vertex{
			{ID: "a", Type: nodes.TypeText, ContextID: "ctx-a"},
			{ID: "b", Type: nodes.TypeLog, ContextID: "ctx-b"},
		},
		Edges: []domain.Edge{{Source: "a", SourceOutput: "missing", Target: "b", TargetInput: "value"}},
	}
	_, err := Build(spec, Options{Logger: discard})
	assert.ErrorIs(t, err, graph.ErrUnknownPort)
}

func TestBuild_UnknownType(t *testing.T) {
	spec := Spec{Vertices: []domain.Vertex{{ID: "a", Type: "Nope"}}}
	_, err := Build(spec, Options{Logger: discard})
	assert.ErrorIs(t, err, nodes.ErrKindNotFound)
}

func TestImportAndLoad(t *testing.T) {
	db := memory.New()
	store := db.Store()
	ctx := context.Background()

	def, err := ParseYAML([]byte(helloYAML))
	require.NoError(t, err)
	spec, err := def.Spec()
	require.NoError(t, err)

	require.NoError(t, Import(ctx, store, spec))
	require.NoError(t, Import(ctx, store, spec), "import is repeatable")

	loaded, err := Load(ctx, store, "v-1", "")
	require.NoError(t, err)
	require.Len(t, loaded.Vertices, 4)
	require.Len(t, loaded.Edges, 3)
	assert.Nil(t, loaded.Executions)

	var state map[string]any
	require.NoError(t, json.Unmarshal(loaded.Contexts["ctx-name"], &state))
	assert.Equal(t, map[string]any{"value": "world"}, state["inputs"])

	require.NoError(t, store.ExecutionNodes.CreateBatch(ctx, []domain.ExecutionNode{
		{ID: "en-1", ExecutionID: "exec-1", WorkflowNodeID: "start"},
	}))
	loaded, err = Load(ctx, store, "v-1", "exec-1")
	require.NoError(t, err)
	require.Contains(t, loaded.Executions, "start")
	assert.Equal(t, "en-1", loaded.Executions["start"].ID)
}

func TestExportDOT_RoundTrip(t *testing.T) {
	def, err := ParseYAML([]byte(helloYAML))
	require.NoError(t, err)
	spec, err := def.Spec()
	require.NoError(t, err)
	g, err := Build(spec, Options{Logger: discard, ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(g.Close)

	out, err := ExportDOT("hello", g)
	require.NoError(t, err)
	assert.Contains(t, out, "digraph hello")
	assert.Contains(t, out, `name -> prompt [input="name", output="value", style="dashed"]`)
	assert.Contains(t, out, `xlabel="idle"`)

	back, err := ParseDOT(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", back.Name)
	assert.Equal(t, "wf-1", back.WorkflowID)
	assert.Equal(t, "v-1", back.VersionID)
	require.Len(t, back.Nodes, 4)
	byID := map[string]NodeDef{}
	for _, n := range back.Nodes {
		byID[n.ID] = n
	}
	assert.Equal(t, nodes.TypePromptTemplate, byID["prompt"].Type)
	assert.Equal(t, "prompt", byID["prompt"].Label)
	assert.Equal(t, "Hello, {{ .Inputs.name }}!", byID["prompt"].Inputs["template"])
	assert.Equal(t, "world", byID["name"].Inputs["value"])
	assert.ElementsMatch(t, []EdgeDef{
		{From: "start.trigger", To: "log.trigger"},
		{From: "name.value", To: "prompt.name"},
		{From: "prompt.value", To: "log.value"},
	}, back.Edges)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()

	yml := filepath.Join(dir, "greet.yaml")
	require.NoError(t, os.WriteFile(yml, []byte("nodes: [{id: a, type: Start}]"), 0o600))
	def, err := LoadFile(yml)
	require.NoError(t, err)
	assert.Equal(t, "greet", def.Name, "name falls back to file name")

	dot := filepath.Join(dir, "hello.dot")
	require.NoError(t, os.WriteFile(dot, []byte(helloDOT), 0o600))
	def, err = LoadFile(dot)
	require.NoError(t, err)
	assert.Len(t, def.Nodes, 4)

	_, err = LoadFile(filepath.Join(dir, "x.txt"))
	assert.Error(t, err)
	other := filepath.Join(dir, "x.json")
	require.NoError(t, os.WriteFile(other, []byte("{}"), 0o600))
	_, err = LoadFile(other)
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestExportDOT_QuotesIdentifiers(t *testing.T) {
	def := &Definition{
		Name: "my flow",
		Nodes: []NodeDef{
			{ID: "node", Type: nodes.TypeStart, Label: "first\nstep"},
			{ID: "log-1", Type: nodes.TypeLog},
		},
		Edges: []EdgeDef{{From: "node", To: "log-1"}},
	}
	spec, err := def.Spec()
	require.NoError(t, err)
	g, err := Build(spec, Options{Logger: discard, ReadOnly: true})
	require.NoError(t, err)
	t.Cleanup(g.Close)

	out, err := ExportDOT(def.Name, g)
	require.NoError(t, err)
	assert.Contains(t, out, `digraph "my flow"`)
	assert.Contains(t, out, `"node" -> "log-1"`)

	back, err := ParseDOT(out)
	require.NoError(t, err)
	assert.Equal(t, "my flow", back.Name)
	require.Len(t, back.Nodes, 2)
	assert.Equal(t, "first\nstep", back.Nodes[0].Label)
	assert.Equal(t, []EdgeDef{{From: "node.trigger", To: "log-1.trigger"}}, back.Edges)
}
