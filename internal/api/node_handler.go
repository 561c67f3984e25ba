package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/workflow"
)

// ListNodeTypes обрабатывает GET /api/v1/node-types.
func (h *Handler) ListNodeTypes(w http.ResponseWriter, r *http.Request) {
	types := h.registry.Types()
	result := make([]NodeTypeResponse, 0, len(types))
	for _, typ := range types {
		sockets, err := h.registry.Describe(domain.Vertex{ID: typ, Type: typ}, nil)
		if err != nil {
			InternalError(w, h.logger, err)
			return
		}
		result = append(result, NodeTypeResponse{Type: typ, Inputs: sockets.Inputs, Outputs: sockets.Outputs})
	}
	List(w, result, len(result))
}

// GetNode обрабатывает GET /api/v1/nodes/{id}.
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	v, err := h.store.Nodes.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "node not found") {
		return
	}
	Success(w, v)
}

// UpsertNode обрабатывает PUT /api/v1/nodes/{id}.
func (h *Handler) UpsertNode(w http.ResponseWriter, r *http.Request) {
	var req UpsertNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.WorkflowVersionID == "" {
		BadRequest(w, "workflow_version_id is required")
		return
	}
	if !h.registry.Has(req.Type) {
		BadRequest(w, "unknown node type: "+req.Type)
		return
	}

	v := req.Vertex(r.PathValue("id"))
	if err := h.store.Nodes.Upsert(r.Context(), &v); HandleError(w, h.logger, err, "node not found") {
		return
	}

	h.logger.Info("node saved", "node_id", v.ID, "type", v.Type, "version_id", v.WorkflowVersionID)
	Success(w, v)
}

// DeleteNode обрабатывает DELETE /api/v1/nodes/{id}.
func (h *Handler) DeleteNode(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.store.Nodes.Delete(r.Context(), id); HandleError(w, h.logger, err, "node not found") {
		return
	}
	h.logger.Info("node deleted", "node_id", id)
	NoContent(w)
}

// GetGraph обрабатывает GET /api/v1/versions/{version}/graph.
//
// ?format=dot возвращает граф в формате Graphviz с текущими состояниями вершин.
func (h *Handler) GetGraph(w http.ResponseWriter, r *http.Request) {
	versionID := r.PathValue("version")
	spec, err := workflow.Load(r.Context(), h.store, versionID, "")
	if HandleError(w, h.logger, err, "version not found") {
		return
	}
	if len(spec.Vertices) == 0 {
		NotFound(w, "version not found")
		return
	}

	if r.URL.Query().Get("format") != "dot" {
		Success(w, GraphResponse{
			VersionID: versionID,
			Nodes:     spec.Vertices,
			Edges:     spec.Edges,
			Contexts:  spec.Contexts,
		})
		return
	}

	g, err := workflow.Build(spec, workflow.Options{Registry: h.registry, Logger: h.logger, ReadOnly: true})
	if HandleError(w, h.logger, err, "version not found") {
		return
	}
	defer g.Close()

	dot, err := workflow.ExportDOT(versionID, g)
	if err != nil {
		InternalError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/vnd.graphviz")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(dot))
}

// ImportWorkflow обрабатывает POST /api/v1/workflows/import.
//
// Принимает описание в YAML или, при Content-Type text/vnd.graphviz, в DOT.
func (h *Handler) ImportWorkflow(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r)
	if err != nil {
		BadRequest(w, err.Error())
		return
	}

	var def *workflow.Definition
	if r.Header.Get("Content-Type") == "text/vnd.graphviz" {
		def, err = workflow.ParseDOT(string(body))
	} else {
		def, err = workflow.ParseYAML(body)
	}
	if err != nil {
		BadRequest(w, err.Error())
		return
	}
	if err := def.Validate(h.registry); HandleError(w, h.logger, err, "") {
		return
	}
	spec, err := def.Spec()
	if HandleError(w, h.logger, err, "") {
		return
	}

	// Рёбра проверяются сборкой графа до записи.
	g, err := workflow.Build(spec, workflow.Options{Registry: h.registry, Logger: h.logger, ReadOnly: true})
	if HandleError(w, h.logger, err, "") {
		return
	}
	g.Close()

	if err := workflow.Import(r.Context(), h.store, spec); HandleError(w, h.logger, err, "") {
		return
	}

	resp := ImportResponse{Nodes: len(spec.Vertices), Edges: len(spec.Edges)}
	if len(spec.Vertices) > 0 {
		resp.WorkflowID = spec.Vertices[0].WorkflowID
		resp.WorkflowVersionID = spec.Vertices[0].WorkflowVersionID
	}
	h.logger.Info("workflow imported", "version_id", resp.WorkflowVersionID, "nodes", resp.Nodes, "edges", resp.Edges)
	Created(w, resp)
}
