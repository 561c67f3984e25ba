package domain

import (
	"encoding/json"
	"time"
)

// Context — долговременное состояние логики вершины вне выполнения.
//
// Не путать с внутренней памятью автомата (actor.Memory):
// Context переживает выполнения и хранится в БД, память автомата
// живёт только пока работает актор. Связываются они при создании
// актора и при сохранении (debounce) в интерактивном режиме.
type Context struct {
	// ID — ключ, на который ссылается Vertex.ContextID.
	ID string `json:"id"`

	ProjectID string `json:"project_id,omitempty"`

	// Type — тип вершины, которой принадлежит контекст.
	Type string `json:"type,omitempty"`

	// State — сериализованная память автомата (непрозрачный JSON).
	State json.RawMessage `json:"state"`

	UpdatedAt time.Time `json:"updated_at"`
}

// EmptyState — состояние только что созданного (или восстановленного) контекста.
var EmptyState = json.RawMessage(`{}`)
