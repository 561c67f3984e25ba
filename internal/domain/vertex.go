package domain

import "time"

// TriggerPort — зарезервированное имя порта управления.
// Рёбра через этот порт задают порядок выполнения и не несут данных.
const TriggerPort = "trigger"

// Position — координаты вершины в редакторе.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Vertex — вершина графа workflow.
//
// Каждая вершина связана с конечным автоматом своего типа (Type)
// и ссылается на долговременный Context через ContextID.
type Vertex struct {
	// ID — стабильный идентификатор, уникальный в пределах графа.
	// Не меняется после создания.
	ID string `json:"id"`

	// Type — тип вершины, определяет поведение ("Text", "PromptTemplate", ...).
	Type string `json:"type"`

	// ContextID — ссылка на долговременный Context вершины.
	ContextID string `json:"context_id"`

	// WorkflowID — workflow, которому принадлежит вершина.
	WorkflowID string `json:"workflow_id"`

	// WorkflowVersionID — версия workflow.
	WorkflowVersionID string `json:"workflow_version_id"`

	// ProjectID — проект-владелец.
	ProjectID string `json:"project_id,omitempty"`

	Label    string   `json:"label"`
	Width    float64  `json:"width"`
	Height   float64  `json:"height"`
	Position Position `json:"position"`
	Color    string   `json:"color,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Edge — соединение двух портов.
type Edge struct {
	ID                string `json:"id"`
	WorkflowID        string `json:"workflow_id,omitempty"`
	WorkflowVersionID string `json:"workflow_version_id,omitempty"`

	// Source — вершина-источник, SourceOutput — её выходной порт.
	Source       string `json:"source"`
	SourceOutput string `json:"source_output"`

	// Target — вершина-получатель, TargetInput — её входной порт.
	Target      string `json:"target"`
	TargetInput string `json:"target_input"`
}

// IsTrigger возвращает true для рёбер управления.
func (e Edge) IsTrigger() bool {
	return e.SourceOutput == TriggerPort || e.TargetInput == TriggerPort
}

// SameEnds сравнивает рёбра по концам, без учёта ID.
func (e Edge) SameEnds(other Edge) bool {
	return e.Source == other.Source &&
		e.SourceOutput == other.SourceOutput &&
		e.Target == other.Target &&
		e.TargetInput == other.TargetInput
}
