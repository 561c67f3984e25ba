package nodes

import "errors"

var (
	// ErrKindNotFound — тип вершины не зарегистрирован.
	ErrKindNotFound = errors.New("node kind not found")

	// ErrInvalidInput — вход вершины имеет неподходящее значение.
	ErrInvalidInput = errors.New("invalid node input")

	// ErrHTTPRequest — ошибка HTTP-запроса.
	ErrHTTPRequest = errors.New("http request failed")
)
