package api

import (
	"encoding/json"
	"net/http"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/workflow"
)

// CreateEdge обрабатывает POST /api/v1/edges.
//
// Ребро проверяется на графе версии: существование портов, совместимость
// типов, отсутствие повторов и циклов по данным.
func (h *Handler) CreateEdge(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEdge(w, r)
	if !ok {
		return
	}

	spec, err := workflow.Load(r.Context(), h.store, req.WorkflowVersionID, "")
	if HandleError(w, h.logger, err, "version not found") {
		return
	}
	g, err := workflow.Build(spec, workflow.Options{Registry: h.registry, Logger: h.logger, ReadOnly: true})
	if HandleError(w, h.logger, err, "version not found") {
		return
	}
	defer g.Close()

	edge, err := g.AddConnection(req.Edge())
	if HandleError(w, h.logger, err, "") {
		return
	}
	if edge.WorkflowID == "" {
		edge.WorkflowID = workflowOf(spec, edge.Source)
	}
	if err := h.store.Edges.Create(r.Context(), &edge); HandleError(w, h.logger, err, "") {
		return
	}

	h.logger.Info("edge created",
		"edge_id", edge.ID,
		"source", edge.Source+":"+edge.SourceOutput,
		"target", edge.Target+":"+edge.TargetInput,
	)
	Created(w, edge)
}

// DeleteEdge обрабатывает DELETE /api/v1/edges.
func (h *Handler) DeleteEdge(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeEdge(w, r)
	if !ok {
		return
	}
	if err := h.store.Edges.Delete(r.Context(), req.Edge()); HandleError(w, h.logger, err, "edge not found") {
		return
	}
	NoContent(w)
}

func (h *Handler) decodeEdge(w http.ResponseWriter, r *http.Request) (EdgeRequest, bool) {
	var req EdgeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return req, false
	}
	switch {
	case req.WorkflowVersionID == "":
		BadRequest(w, "workflow_version_id is required")
		return req, false
	case req.Source == "" || req.Target == "":
		BadRequest(w, "source and target are required")
		return req, false
	}
	if req.SourceOutput == "" {
		req.SourceOutput = domain.TriggerPort
	}
	if req.TargetInput == "" {
		req.TargetInput = domain.TriggerPort
	}
	return req, true
}

func workflowOf(spec workflow.Spec, nodeID string) string {
	for _, v := range spec.Vertices {
		if v.ID == nodeID {
			return v.WorkflowID
		}
	}
	return ""
}
