package actor

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Status — статус актора.
type Status string

const (
	StatusActive  Status = "active"
	StatusDone    Status = "done"
	StatusStopped Status = "stopped"
)

// MachineError — ошибка, записанная автоматом в память.
type MachineError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Error реализует интерфейс error.
func (e *MachineError) Error() string {
	if e.Name == "" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

// NewMachineError оборачивает ошибку сервиса.
func NewMachineError(err error) *MachineError {
	if err == nil {
		return nil
	}
	var me *MachineError
	if ok := asMachineError(err, &me); ok {
		return me
	}
	return &MachineError{Name: "Error", Message: err.Error()}
}

// Memory — внутренняя память автомата.
//
// Живёт только внутри актора; долговременное состояние вершины
// хранится отдельно в domain.Context.
type Memory struct {
	Inputs  map[string]any `json:"inputs"`
	Outputs map[string]any `json:"outputs"`
	Error   *MachineError  `json:"error,omitempty"`

	// Values — данные, специфичные для типа вершины.
	Values map[string]any `json:"values,omitempty"`
}

// Clone возвращает глубокую копию памяти.
func (m Memory) Clone() Memory {
	out := Memory{
		Inputs:  cloneMap(m.Inputs),
		Outputs: cloneMap(m.Outputs),
		Values:  cloneMap(m.Values),
	}
	if m.Error != nil {
		e := *m.Error
		out.Error = &e
	}
	return out
}

// Normalize гарантирует ненулевые Inputs и Outputs.
func (m Memory) Normalize() Memory {
	if m.Inputs == nil {
		m.Inputs = make(map[string]any)
	}
	if m.Outputs == nil {
		m.Outputs = make(map[string]any)
	}
	return m
}

// Snapshot — сериализуемое состояние актора.
type Snapshot struct {
	// Value — путь активного листового состояния, например "running.fetch".
	Value  string `json:"value"`
	Memory Memory `json:"context"`
	Status Status `json:"status"`
}

// Matches проверяет, активно ли состояние state (сам путь или его предок).
func (s Snapshot) Matches(state string) bool {
	return s.Value == state || strings.HasPrefix(s.Value, state+".")
}

// Top возвращает верхнеуровневое имя состояния.
func (s Snapshot) Top() string {
	if i := strings.IndexByte(s.Value, '.'); i >= 0 {
		return s.Value[:i]
	}
	return s.Value
}

func (s Snapshot) clone() Snapshot {
	s.Memory = s.Memory.Clone()
	return s
}

// Marshal сериализует снимок в JSON.
func (s Snapshot) Marshal() (json.RawMessage, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return b, nil
}

// ParseSnapshot разбирает сохранённый снимок.
func ParseSnapshot(data []byte) (*Snapshot, error) {
	var s Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
	}
	if s.Value == "" {
		return nil, fmt.Errorf("%w: empty state value", ErrInvalidSnapshot)
	}
	if s.Status == "" {
		s.Status = StatusActive
	}
	s.Memory = s.Memory.Normalize()
	return &s, nil
}

// ParseMemory разбирает долговременный контекст как память автомата.
// Пустой или null вход даёт пустую память.
func ParseMemory(data []byte) (Memory, error) {
	var m Memory
	if len(data) == 0 || string(data) == "null" {
		return m.Normalize(), nil
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return Memory{}, fmt.Errorf("%w: %v", ErrInvalidMemory, err)
	}
	return m.Normalize(), nil
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
