package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/telemetry"
)

// StartExecution обрабатывает POST /api/v1/versions/{version}/executions.
func (h *Handler) StartExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.orchestrator.StartExecution(r.Context(), r.PathValue("version"))
	if HandleError(w, h.logger, err, "version not found") {
		return
	}
	telemetry.FromContext(r.Context()).Info("execution requested",
		"execution_id", exec.ID,
		"workflow_version_id", exec.WorkflowVersionID,
	)
	Created(w, ExecutionFromDomain(*exec))
}

// ListExecutions обрабатывает GET /api/v1/executions.
//
// Параметры: version, status, limit (по умолчанию 50, максимум 500), offset.
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repo.ExecutionFilter{
		WorkflowVersionID: q.Get("version"),
		Limit:             50,
	}
	if s := q.Get("status"); s != "" {
		status := domain.ParseExecutionStatus(strings.ToUpper(s))
		if string(status) != strings.ToUpper(s) {
			BadRequest(w, "invalid status: "+s)
			return
		}
		filter.Status = status
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			BadRequest(w, "invalid limit")
			return
		}
		filter.Limit = min(n, 500)
	}
	if s := q.Get("offset"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			BadRequest(w, "invalid offset")
			return
		}
		filter.Offset = n
	}

	execs, err := h.store.Executions.List(r.Context(), filter)
	if HandleError(w, h.logger, err, "") {
		return
	}
	List(w, ExecutionsFromDomain(execs), len(execs))
}

// GetExecution обрабатывает GET /api/v1/executions/{id}.
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := h.store.Executions.GetByID(r.Context(), r.PathValue("id"))
	if HandleError(w, h.logger, err, "execution not found") {
		return
	}
	Success(w, ExecutionFromDomain(*exec))
}

// ListExecutionNodes обрабатывает GET /api/v1/executions/{id}/nodes.
func (h *Handler) ListExecutionNodes(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := h.store.Executions.GetByID(r.Context(), id); HandleError(w, h.logger, err, "execution not found") {
		return
	}
	nodes, err := h.store.ExecutionNodes.ListByExecution(r.Context(), id)
	if HandleError(w, h.logger, err, "execution not found") {
		return
	}
	List(w, nodes, len(nodes))
}

// TriggerStep обрабатывает POST /api/v1/executions/{id}/steps.
// Повторно отправляет шаг вершине выполнения.
func (h *Handler) TriggerStep(w http.ResponseWriter, r *http.Request) {
	var req TriggerStepRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.WorkflowNodeID == "" {
		BadRequest(w, "workflow_node_id is required")
		return
	}

	id := r.PathValue("id")
	exec, err := h.store.Executions.GetByID(r.Context(), id)
	if HandleError(w, h.logger, err, "execution not found") {
		return
	}
	if exec.IsFinished() {
		InvalidState(w, "execution is already "+string(exec.Status))
		return
	}
	if err := h.orchestrator.Dispatch(r.Context(), id, req.WorkflowNodeID); HandleError(w, h.logger, err, "execution node not found") {
		return
	}
	JSON(w, http.StatusAccepted, DataResponse{Data: req})
}
