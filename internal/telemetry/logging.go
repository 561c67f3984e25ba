package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel разбирает уровень логирования.
// Возможные значения: DEBUG, INFO, WARN, ERROR
// По умолчанию: INFO
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetupLogger инициализирует глобальный логгер.
//
// Формат вывода:
//   - "json" (по умолчанию) — JSON формат для production
//   - "text" — человекочитаемый формат для разработки
func SetupLogger(level, format string) *slog.Logger {
	return setupLogger(os.Stdout, level, format)
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	logger := NewLogger(w, level, format)
	slog.SetDefault(logger)
	return logger
}

// NewLogger создаёт логгер, пишущий в w, не меняя глобальный.
func NewLogger(w io.Writer, level, format string) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}

	if format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Ключи контекста для передачи данных в логгер.
type ctxKey string

const (
	// CtxLogger — ключ для логгера в контексте.
	CtxLogger ctxKey = "logger"
)

// WithLogger добавляет логгер в контекст.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, CtxLogger, logger)
}

// FromContext извлекает логгер из контекста.
// Если логгер не найден, возвращает глобальный.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(CtxLogger).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithExecutionID возвращает логгер с добавленным execution_id.
func WithExecutionID(logger *slog.Logger, executionID string) *slog.Logger {
	return logger.With("execution_id", executionID)
}

// WithNodeID возвращает логгер с добавленным node_id.
func WithNodeID(logger *slog.Logger, nodeID string) *slog.Logger {
	return logger.With("node_id", nodeID)
}

// WithWorkflowID возвращает логгер с добавленным workflow_id.
func WithWorkflowID(logger *slog.Logger, workflowID string) *slog.Logger {
	return logger.With("workflow_id", workflowID)
}
