package orchestrator

import "errors"

var (
	// ErrExecutionNotFound — выполнения нет в БД.
	ErrExecutionNotFound = errors.New("execution not found")

	// ErrEmptyVersion — у версии нет вершин.
	ErrEmptyVersion = errors.New("workflow version has no nodes")

	// ErrNoEntryPoints — у версии нет вершин, с которых можно начать.
	ErrNoEntryPoints = errors.New("workflow version has no entry points")

	// ErrExecutionFinished — выполнение уже в терминальном статусе.
	ErrExecutionFinished = errors.New("execution already finished")
)
