package api

import (
	"encoding/json"
	"time"

	"github.com/shaiso/craftflow/internal/domain"
	"github.com/shaiso/craftflow/internal/node"
)

// NodeType DTOs

// NodeTypeResponse — тип вершины и его порты по умолчанию.
type NodeTypeResponse struct {
	Type    string                  `json:"type"`
	Inputs  map[string]*node.Input  `json:"inputs"`
	Outputs map[string]*node.Output `json:"outputs"`
}

// Node DTOs

// UpsertNodeRequest — запрос на создание или обновление вершины.
type UpsertNodeRequest struct {
	Type              string          `json:"type"`
	ContextID         string          `json:"context_id,omitempty"`
	WorkflowID        string          `json:"workflow_id"`
	WorkflowVersionID string          `json:"workflow_version_id"`
	ProjectID         string          `json:"project_id,omitempty"`
	Label             string          `json:"label,omitempty"`
	Width             float64         `json:"width,omitempty"`
	Height            float64         `json:"height,omitempty"`
	Position          domain.Position `json:"position"`
	Color             string          `json:"color,omitempty"`
}

// Vertex возвращает вершину с указанным ID.
func (r UpsertNodeRequest) Vertex(id string) domain.Vertex {
	return domain.Vertex{
		ID:                id,
		Type:              r.Type,
		ContextID:         r.ContextID,
		WorkflowID:        r.WorkflowID,
		WorkflowVersionID: r.WorkflowVersionID,
		ProjectID:         r.ProjectID,
		Label:             r.Label,
		Width:             r.Width,
		Height:            r.Height,
		Position:          r.Position,
		Color:             r.Color,
	}
}

// GraphResponse — вершины и рёбра версии.
type GraphResponse struct {
	VersionID string                     `json:"workflow_version_id"`
	Nodes     []domain.Vertex            `json:"nodes"`
	Edges     []domain.Edge              `json:"edges"`
	Contexts  map[string]json.RawMessage `json:"contexts"`
}

// Edge DTOs

// EdgeRequest — запрос на создание или удаление ребра.
type EdgeRequest struct {
	WorkflowID        string `json:"workflow_id"`
	WorkflowVersionID string `json:"workflow_version_id"`
	Source            string `json:"source"`
	SourceOutput      string `json:"source_output"`
	Target            string `json:"target"`
	TargetInput       string `json:"target_input"`
}

// Edge возвращает ребро домена.
func (r EdgeRequest) Edge() domain.Edge {
	return domain.Edge{
		WorkflowID:        r.WorkflowID,
		WorkflowVersionID: r.WorkflowVersionID,
		Source:            r.Source,
		SourceOutput:      r.SourceOutput,
		Target:            r.Target,
		TargetInput:       r.TargetInput,
	}
}

// Context DTOs

// SetContextRequest — запрос на перезапись состояния.
type SetContextRequest struct {
	State json.RawMessage `json:"state"`
}

// Execution DTOs

// ExecutionResponse — ответ с выполнением.
type ExecutionResponse struct {
	ID                string                 `json:"id"`
	WorkflowID        string                 `json:"workflow_id"`
	WorkflowVersionID string                 `json:"workflow_version_id"`
	Status            domain.ExecutionStatus `json:"status"`
	Error             string                 `json:"error,omitempty"`
	StartedAt         *time.Time             `json:"started_at,omitempty"`
	FinishedAt        *time.Time             `json:"finished_at,omitempty"`
	DurationMs        int64                  `json:"duration_ms,omitempty"`
	CreatedAt         time.Time              `json:"created_at"`
}

// ExecutionFromDomain конвертирует domain.WorkflowExecution в ExecutionResponse.
func ExecutionFromDomain(e domain.WorkflowExecution) ExecutionResponse {
	return ExecutionResponse{
		ID:                e.ID,
		WorkflowID:        e.WorkflowID,
		WorkflowVersionID: e.WorkflowVersionID,
		Status:            e.Status,
		Error:             e.Error,
		StartedAt:         e.StartedAt,
		FinishedAt:        e.FinishedAt,
		DurationMs:        e.Duration().Milliseconds(),
		CreatedAt:         e.CreatedAt,
	}
}

// ExecutionsFromDomain конвертирует список выполнений.
func ExecutionsFromDomain(execs []domain.WorkflowExecution) []ExecutionResponse {
	result := make([]ExecutionResponse, len(execs))
	for i, e := range execs {
		result[i] = ExecutionFromDomain(e)
	}
	return result
}

// TriggerStepRequest — запрос на ручную отправку шага.
type TriggerStepRequest struct {
	WorkflowNodeID string `json:"workflow_node_id"`
}

// ImportResponse — результат импорта описания workflow.
type ImportResponse struct {
	WorkflowID        string `json:"workflow_id"`
	WorkflowVersionID string `json:"workflow_version_id"`
	Nodes             int    `json:"nodes"`
	Edges             int    `json:"edges"`
}
