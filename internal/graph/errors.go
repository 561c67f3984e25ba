package graph

import "errors"

var (
	// ErrDuplicateNode — вершина с таким ID уже есть в графе.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrNodeNotFound — вершины нет в графе.
	ErrNodeNotFound = errors.New("node not found")

	// ErrConnectionNotFound — ребра нет в графе.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrUnknownPort — у вершины нет такого порта.
	ErrUnknownPort = errors.New("unknown port")

	// ErrIncompatibleSockets — типы портов несовместимы.
	ErrIncompatibleSockets = errors.New("incompatible sockets")

	// ErrDuplicateConnection — такое ребро уже есть.
	ErrDuplicateConnection = errors.New("duplicate connection")

	// ErrSelfConnection — ребро из вершины в саму себя.
	ErrSelfConnection = errors.New("node connected to itself")

	// ErrCyclicConnection — ребро данных замыкает цикл.
	ErrCyclicConnection = errors.New("connection creates a data cycle")

	// ErrCyclicGraph — граф содержит цикл (топологический порядок невозможен).
	ErrCyclicGraph = errors.New("graph contains a cycle")
)

// ValidationError — ошибка проверки ребра или вершины с контекстом.
type ValidationError struct {
	NodeID  string // ID вершины, где произошла ошибка
	Field   string // порт или поле, вызвавшее ошибку
	Message string // описание ошибки
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(nodeID, field, message string, err error) *ValidationError {
	return &ValidationError{
		NodeID:  nodeID,
		Field:   field,
		Message: message,
		Err:     err,
	}
}
