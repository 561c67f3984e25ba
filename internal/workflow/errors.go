package workflow

import "errors"

var (
	// ErrInvalidDefinition — описание workflow некорректно.
	ErrInvalidDefinition = errors.New("invalid workflow definition")

	// ErrUnknownFormat — формат файла не поддерживается.
	ErrUnknownFormat = errors.New("unknown workflow format")
)
