package domain

// ExecutionStatus — статус выполнения workflow.
//
// Жизненный цикл:
//
//	PENDING → RUNNING → SUCCEEDED
//	                  ↘ FAILED
type ExecutionStatus string

const (
	// ExecutionStatusPending — выполнение создано, шаги ещё не отправлены.
	ExecutionStatusPending ExecutionStatus = "PENDING"

	// ExecutionStatusRunning — шаги выполняются.
	ExecutionStatusRunning ExecutionStatus = "RUNNING"

	// ExecutionStatusSucceeded — все управляющие вершины завершены.
	ExecutionStatusSucceeded ExecutionStatus = "SUCCEEDED"

	// ExecutionStatusFailed — вершина перешла в error или шаг превысил таймаут.
	ExecutionStatusFailed ExecutionStatus = "FAILED"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusSucceeded, ExecutionStatusFailed:
		return true
	default:
		return false
	}
}

// ParseExecutionStatus парсит строку в ExecutionStatus.
func ParseExecutionStatus(s string) ExecutionStatus {
	switch s {
	case "RUNNING":
		return ExecutionStatusRunning
	case "SUCCEEDED":
		return ExecutionStatusSucceeded
	case "FAILED":
		return ExecutionStatusFailed
	default:
		return ExecutionStatusPending
	}
}
