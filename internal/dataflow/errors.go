package dataflow

import "errors"

var (
	// ErrCycleDetected — цикл по рёбрам данных при разрешении входов.
	ErrCycleDetected = errors.New("dataflow cycle detected")

	// ErrSourceNotFound — ребро ссылается на вершину, которой нет в графе.
	ErrSourceNotFound = errors.New("dataflow source not found")
)
