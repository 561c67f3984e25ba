package actor

import "errors"

// Ошибки определения автомата.
var (
	// ErrNilMachine — автомат не передан.
	ErrNilMachine = errors.New("machine is nil")

	// ErrInvalidMachine — определение автомата некорректно.
	ErrInvalidMachine = errors.New("invalid machine definition")

	// ErrUnknownState — путь состояния не найден в автомате.
	ErrUnknownState = errors.New("unknown state")

	// ErrMissingService — состояние вызывает сервис без реализации.
	ErrMissingService = errors.New("missing service implementation")
)

// Ошибки данных актора.
var (
	// ErrInvalidSnapshot — сохранённый снимок не разбирается.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrInvalidMemory — сохранённая память не разбирается.
	ErrInvalidMemory = errors.New("invalid machine memory")
)

// Ошибки ожидания.
var (
	// ErrWaitTimeout — предикат не выполнился за отведённое время.
	ErrWaitTimeout = errors.New("timed out waiting for actor state")

	// ErrActorDone — актор завершился, так и не достигнув нужного состояния.
	ErrActorDone = errors.New("actor finished before reaching state")
)

func asMachineError(err error, target **MachineError) bool {
	return errors.As(err, target)
}
