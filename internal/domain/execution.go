package domain

import (
	"encoding/json"
	"time"
)

// WorkflowExecution — экземпляр выполнения версии workflow.
//
// Execution создаётся когда пользователь запускает workflow (API/CLI).
// Для каждой вершины версии создаётся ExecutionNode, куда вершина
// сохраняет снимки своего автомата.
type WorkflowExecution struct {
	// ID — уникальный идентификатор выполнения.
	ID string `json:"id"`

	WorkflowID        string `json:"workflow_id"`
	WorkflowVersionID string `json:"workflow_version_id"`
	ProjectID         string `json:"project_id,omitempty"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// Error — текст ошибки, если выполнение завершилось с FAILED.
	Error string `json:"error,omitempty"`

	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// Duration возвращает продолжительность выполнения.
// Возвращает 0, если выполнение ещё не завершено.
func (e *WorkflowExecution) Duration() time.Duration {
	if e.StartedAt == nil || e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(*e.StartedAt)
}

// IsFinished возвращает true, если выполнение завершено (в любом статусе).
func (e *WorkflowExecution) IsFinished() bool {
	return e.Status.IsTerminal()
}

// MarkRunning переводит выполнение в статус RUNNING.
func (e *WorkflowExecution) MarkRunning() {
	now := time.Now()
	e.Status = ExecutionStatusRunning
	e.StartedAt = &now
}

// MarkSucceeded переводит выполнение в статус SUCCEEDED.
func (e *WorkflowExecution) MarkSucceeded() {
	now := time.Now()
	e.Status = ExecutionStatusSucceeded
	e.FinishedAt = &now
}

// MarkFailed переводит выполнение в статус FAILED с ошибкой.
func (e *WorkflowExecution) MarkFailed(err string) {
	now := time.Now()
	e.Status = ExecutionStatusFailed
	e.FinishedAt = &now
	e.Error = err
}

// ExecutionNode — запуск одной вершины внутри конкретного выполнения.
//
// State перезаписывается при каждом переходе автомата (не дополняется).
type ExecutionNode struct {
	ID             string `json:"id"`
	ExecutionID    string `json:"execution_id"`
	WorkflowNodeID string `json:"workflow_node_id"`

	// State — полный снимок автомата; nil, пока вершина не создавала актор.
	State json.RawMessage `json:"state,omitempty"`

	// Complete — снимок находится в состоянии complete.
	Complete bool `json:"complete"`

	// TriggeredAt — когда вершине был отправлен шаг выполнения.
	TriggeredAt *time.Time `json:"triggered_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// HasState возвращает true, если снимок уже сохранялся.
func (n *ExecutionNode) HasState() bool {
	return len(n.State) > 0 && string(n.State) != "null"
}
