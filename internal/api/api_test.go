package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/repo/memory"
	"github.com/shaiso/craftflow/internal/workflow"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

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

type testServer struct {
	store *repo.Store
	mux   *http.ServeMux
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.New().Store()
	mux := http.NewServeMux()
	NewHandler(Config{Store: store, Logger: discard}).RegisterRoutes(mux)
	return &testServer{store: store, mux: mux}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		r = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	s.mux.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) importHello(t *testing.T) {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/workflows/import", helloYAML)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var resp struct {
		Data T `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Data
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorDetail {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ok")
}

func TestListNodeTypes(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, http.MethodGet, "/api/v1/node-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	types := decode[[]NodeTypeResponse](t, rec)
	byName := map[string]NodeTypeResponse{}
	for _, nt := range types {
		byName[nt.Type] = nt
	}
	require.Contains(t, byName, "Log")
	assert.Contains(t, byName["Log"].Inputs, domain.TriggerPort)
	assert.Contains(t, byName["Log"].Outputs, "value")
}

func TestImportAndGetGraph(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/import", helloYAML)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	imported := decode[ImportResponse](t, rec)
	assert.Equal(t, ImportResponse{WorkflowID: "wf-1", WorkflowVersionID: "v-1", Nodes: 4, Edges: 3}, imported)

	rec = s.do(t, http.MethodGet, "/api/v1/versions/v-1/graph", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	g := decode[GraphResponse](t, rec)
	assert.Len(t, g.Nodes, 4)
	assert.Len(t, g.Edges, 3)
	assert.Contains(t, string(g.Contexts["ctx-name"]), "world")

	rec = s.do(t, http.MethodGet, "/api/v1/versions/v-1/graph?format=dot", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/vnd.graphviz", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), "digraph")
	def, err := workflow.ParseDOT(rec.Body.String())
	require.NoError(t, err)
	assert.Equal(t, "v-1", def.VersionID)
	assert.Contains(t, def.Edges, workflow.EdgeDef{From: "name.value", To: "prompt.name"})

	rec = s.do(t, http.MethodGet, "/api/v1/versions/missing/graph", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestImport_Invalid(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/api/v1/workflows/import", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/workflows/import", "nodes: [{id: a, type: Nope}]")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	bad := `
version_id: v-2
nodes:
  - {id: a, type: Text}
  - {id: b, type: Log}
edges:
  - {from: a.missing, to: b.value}
`
	rec = s.do(t, http.MethodPost, "/api/v1/workflows/import", bad)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "a", decodeError(t, rec).NodeID)

	nodes, err := s.store.Nodes.ListByVersion(t.Context(), "v-2")
	require.NoError(t, err)
	assert.Empty(t, nodes, "rejected definition is not stored")
}

func TestNodes_UpsertGetDelete(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPut, "/api/v1/nodes/n1", UpsertNodeRequest{Type: "Nope", WorkflowVersionID: "v-1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/nodes/n1", UpsertNodeRequest{Type: "Text"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/nodes/n1", UpsertNodeRequest{
		Type:              "Text",
		WorkflowID:        "wf-1",
		WorkflowVersionID: "v-1",
		Label:             "Greeting",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v := decode[domain.Vertex](t, rec)
	assert.Equal(t, "n1", v.ID)
	assert.NotEmpty(t, v.ContextID)

	rec = s.do(t, http.MethodGet, "/api/v1/nodes/n1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Greeting", decode[domain.Vertex](t, rec).Label)

	rec = s.do(t, http.MethodGet, "/api/v1/contexts/"+v.ContextID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/nodes/n1", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/nodes/n1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, ErrCodeNotFound, decodeError(t, rec).Code)
}

func TestEdges_Validation(t *testing.T) {
	s := newTestServer(t)
	s.importHello(t)

	tests := []struct {
		name   string
		req    EdgeRequest
		status int
		field  string
	}{
		{
			name:   "unknown output",
			req:    EdgeRequest{WorkflowVersionID: "v-1", Source: "name", SourceOutput: "nope", Target: "log", TargetInput: "message"},
			status: http.StatusUnprocessableEntity,
			field:  "nope",
		},
		{
			name:   "data cycle",
			req:    EdgeRequest{WorkflowVersionID: "v-1", Source: "log", SourceOutput: "value", Target: "prompt", TargetInput: "name"},
			status: http.StatusUnprocessableEntity,
			field:  "name",
		},
		{
			name:   "duplicate",
			req:    EdgeRequest{WorkflowVersionID: "v-1", Source: "name", SourceOutput: "value", Target: "prompt", TargetInput: "name"},
			status: http.StatusUnprocessableEntity,
			field:  "name",
		},
		{
			name:   "trigger to data",
			req:    EdgeRequest{WorkflowVersionID: "v-1", Source: "start", Target: "log", TargetInput: "message"},
			status: http.StatusUnprocessableEntity,
			field:  "message",
		},
		{
			name:   "missing version",
			req:    EdgeRequest{Source: "name", Target: "log"},
			status: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, http.MethodPost, "/api/v1/edges", tt.req)
			require.Equal(t, tt.status, rec.Code, rec.Body.String())
			if tt.field != "" {
				detail := decodeError(t, rec)
				assert.Equal(t, ErrCodeValidation, detail.Code)
				assert.Equal(t, tt.field, detail.Field)
			}
		})
	}
}

func TestEdges_CreateAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.importHello(t)

	req := EdgeRequest{WorkflowVersionID: "v-1", Source: "name", SourceOutput: "value", Target: "log", TargetInput: "message"}
	rec := s.do(t, http.MethodPost, "/api/v1/edges", req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	edge := decode[domain.Edge](t, rec)
	assert.NotEmpty(t, edge.ID)
	assert.Equal(t, "wf-1", edge.WorkflowID)

	edges, err := s.store.Edges.ListByVersion(t.Context(), "v-1")
	require.NoError(t, err)
	assert.Len(t, edges, 4)

	rec = s.do(t, http.MethodDelete, "/api/v1/edges", req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = s.do(t, http.MethodDelete, "/api/v1/edges", req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContexts(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/v1/contexts/c1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/contexts/c1", map[string]any{"state": []int{1, 2}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPut, "/api/v1/contexts/c1", map[string]any{"state": map[string]any{"inputs": map[string]any{"value": "x"}}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	c := decode[domain.Context](t, rec)
	assert.Equal(t, "c1", c.ID)
	assert.JSONEq(t, `{"inputs":{"value":"x"}}`, string(c.State))
}

func TestExecutions(t *testing.T) {
	s := newTestServer(t)
	s.importHello(t)

	rec := s.do(t, http.MethodPost, "/api/v1/versions/missing/executions", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/versions/v-1/executions", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	exec := decode[ExecutionResponse](t, rec)
	assert.Equal(t, domain.ExecutionStatusRunning, exec.Status)
	assert.Equal(t, "v-1", exec.WorkflowVersionID)

	rec = s.do(t, http.MethodGet, "/api/v1/executions/"+exec.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, exec.ID, decode[ExecutionResponse](t, rec).ID)

	rec = s.do(t, http.MethodGet, "/api/v1/executions/"+exec.ID+"/nodes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	execNodes := decode[[]domain.ExecutionNode](t, rec)
	assert.Len(t, execNodes, 4)

	rec = s.do(t, http.MethodGet, "/api/v1/executions?version=v-1&status=running", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]ExecutionResponse](t, rec), 1)

	rec = s.do(t, http.MethodGet, "/api/v1/executions?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/executions?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/v1/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTriggerStep(t *testing.T) {
	s := newTestServer(t)
	s.importHello(t)

	rec := s.do(t, http.MethodPost, "/api/v1/versions/v-1/executions", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	exec := decode[ExecutionResponse](t, rec)

	rec = s.do(t, http.MethodPost, "/api/v1/executions/"+exec.ID+"/steps", TriggerStepRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/v1/executions/"+exec.ID+"/steps", TriggerStepRequest{WorkflowNodeID: "log"})
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	en, err := s.store.ExecutionNodes.GetByExecutionAndNode(t.Context(), exec.ID, "log")
	require.NoError(t, err)
	assert.NotNil(t, en.TriggeredAt)

	rec = s.do(t, http.MethodPost, "/api/v1/executions/missing/steps", TriggerStepRequest{WorkflowNodeID: "log"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, err := s.store.Executions.GetByID(t.Context(), exec.ID)
	require.NoError(t, err)
	stored.MarkFailed("stopped")
	require.NoError(t, s.store.Executions.Update(t.Context(), stored))

	rec = s.do(t, http.MethodPost, "/api/v1/executions/"+exec.ID+"/steps", TriggerStepRequest{WorkflowNodeID: "log"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRecovery(t *testing.T) {
	h := Recovery(discard)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, ErrCodeInternalError, decodeError(t, rec).Code)
}
