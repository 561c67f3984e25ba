package node

import "errors"

var (
	// ErrInvalidConfig — некорректная конфигурация вершины.
	ErrInvalidConfig = errors.New("invalid node config")

	// ErrMissingDependency — не передана обязательная зависимость.
	ErrMissingDependency = errors.New("missing node dependency")

	// ErrExecutionTimeout — автомат не дошёл до complete за Deps.ExecuteTimeout.
	ErrExecutionTimeout = errors.New("node execution timed out")

	// ErrStateWaitTimeout — WaitForState не дождался состояния.
	ErrStateWaitTimeout = errors.New("node state wait timed out")
)
