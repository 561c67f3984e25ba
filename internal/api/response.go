package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/shaiso/craftflow/internal/graph"
	"github.com/shaiso/craftflow/internal/nodes"
	"github.com/shaiso/craftflow/internal/orchestrator"
	"github.com/shaiso/craftflow/internal/repo"
	"github.com/shaiso/craftflow/internal/workflow"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest    ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeConflict      ErrorCode = "CONFLICT"
	ErrCodeInvalidState  ErrorCode = "INVALID_STATE"
	ErrCodeValidation    ErrorCode = "VALIDATION_FAILED"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — ответ с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки. Field и NodeID заполняются для ошибок валидации.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	NodeID  string    `json:"node_id,omitempty"`
	Field   string    `json:"field,omitempty"`
}

// DataResponse — успешный ответ.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — ответ со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total"`
}

// JSON пишет JSON-ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func Success(w http.ResponseWriter, data any) { JSON(w, http.StatusOK, DataResponse{Data: data}) }
func Created(w http.ResponseWriter, data any) { JSON(w, http.StatusCreated, DataResponse{Data: data}) }
func NoContent(w http.ResponseWriter)         { w.WriteHeader(http.StatusNoContent) }

// List пишет список.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error пишет ошибку.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{Error: ErrorDetail{Code: code, Message: message}})
}

func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func Conflict(w http.ResponseWriter, message string) {
	Error(w, http.StatusConflict, ErrCodeConflict, message)
}

func InvalidState(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, message)
}

// InternalError логирует ошибку и отвечает 500 без подробностей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// HandleError отображает ошибку на HTTP-ответ. Возвращает false для nil.
func HandleError(w http.ResponseWriter, logger *slog.Logger, err error, notFoundMsg string) bool {
	if err == nil {
		return false
	}

	var ve *graph.ValidationError
	switch {
	case errors.As(err, &ve):
		JSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorDetail{
			Code:    ErrCodeValidation,
			Message: ve.Error(),
			NodeID:  ve.NodeID,
			Field:   ve.Field,
		}})
	case errors.Is(err, repo.ErrNotFound), errors.Is(err, orchestrator.ErrExecutionNotFound):
		NotFound(w, notFoundMsg)
	case errors.Is(err, repo.ErrAlreadyExists):
		Conflict(w, err.Error())
	case errors.Is(err, repo.ErrInvalidState),
		errors.Is(err, orchestrator.ErrEmptyVersion),
		errors.Is(err, orchestrator.ErrNoEntryPoints),
		errors.Is(err, orchestrator.ErrExecutionFinished):
		InvalidState(w, err.Error())
	case errors.Is(err, nodes.ErrKindNotFound), errors.Is(err, workflow.ErrInvalidDefinition):
		BadRequest(w, err.Error())
	default:
		InternalError(w, logger, err)
	}
	return true
}
