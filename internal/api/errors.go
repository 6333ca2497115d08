package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/MJE43/agent-arena/internal/match"
	"github.com/MJE43/agent-arena/internal/store"
)

// ErrorBuilder helps construct structured errors with context.
type ErrorBuilder struct {
	errType   string
	message   string
	context   map[string]any
	requestID string
}

// NewError creates a new error builder.
func NewError(errType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		errType: errType,
		message: message,
		context: make(map[string]any),
	}
}

// WithContext adds context information to the error.
func (eb *ErrorBuilder) WithContext(key string, value any) *ErrorBuilder {
	eb.context[key] = value
	return eb
}

// WithRequestID adds the request ID to the error.
func (eb *ErrorBuilder) WithRequestID(requestID string) *ErrorBuilder {
	eb.requestID = requestID
	return eb
}

// WithCause records the underlying error's message.
func (eb *ErrorBuilder) WithCause(err error) *ErrorBuilder {
	if err != nil {
		eb.context["cause"] = err.Error()
	}
	return eb
}

// Build creates the final EngineError.
func (eb *ErrorBuilder) Build() EngineError {
	return EngineError{
		Type:      eb.errType,
		Message:   eb.message,
		Context:   eb.context,
		RequestID: eb.requestID,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// ErrorHandler writes and logs error responses.
type ErrorHandler struct {
	logger *slog.Logger
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger *slog.Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// classify maps a domain error to a status and error type.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, ErrTypeNotFound
	case errors.Is(err, store.ErrInUse):
		return http.StatusConflict, ErrTypeConflict
	case errors.Is(err, match.ErrNotAllowed):
		return http.StatusForbidden, ErrTypeNotAllowed
	case errors.Is(err, match.ErrSeats):
		return http.StatusUnprocessableEntity, ErrTypeInvalidParams
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrTypeTimeout
	}
	return http.StatusInternalServerError, ErrTypeInternal
}

// HandleError writes the response for err.
func (eh *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, err error) {
	var engineErr EngineError
	if errors.As(err, &engineErr) {
		eh.write(w, r, http.StatusBadRequest, engineErr)
		return
	}
	status, errType := classify(err)
	engineErr = NewError(errType, err.Error()).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()
	eh.write(w, r, status, engineErr)
}

// HandleValidationError rejects a request field.
func (eh *ErrorHandler) HandleValidationError(w http.ResponseWriter, r *http.Request, field, message string) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s", message)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", field).
		WithContext("path", r.URL.Path).
		WithContext("method", r.Method).
		Build()
	eh.write(w, r, http.StatusBadRequest, engineErr)
}

// HandleUnitError rejects a game or agent that cannot be instantiated.
func (eh *ErrorHandler) HandleUnitError(w http.ResponseWriter, r *http.Request, unit string, err error) {
	engineErr := NewError(ErrTypeValidation, fmt.Sprintf("Validation failed: %s cannot be loaded", unit)).
		WithRequestID(middleware.GetReqID(r.Context())).
		WithContext("field", "source").
		WithContext("path", r.URL.Path).
		WithCause(err).
		Build()
	eh.write(w, r, http.StatusBadRequest, engineErr)
}

func (eh *ErrorHandler) write(w http.ResponseWriter, r *http.Request, status int, engineErr EngineError) {
	eh.logError(r, engineErr, status)

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Engine-Version", EngineVersion)
	w.Header().Set("X-Error-Type", engineErr.Type)
	w.Header().Set("X-Error-Category", string(GetErrorCategory(engineErr.Type)))
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(engineErr); err != nil {
		eh.logger.Error("write error response", "request_id", engineErr.RequestID, "error", err)
	}
}

// logError logs validation failures as warnings and everything else as errors.
func (eh *ErrorHandler) logError(r *http.Request, engineErr EngineError, status int) {
	category := GetErrorCategory(engineErr.Type)
	level := slog.LevelError
	if category == CategoryValidation || status < http.StatusInternalServerError {
		level = slog.LevelWarn
	}
	eh.logger.Log(r.Context(), level, "error_occurred",
		"type", engineErr.Type,
		"category", category,
		"status", status,
		"request_id", engineErr.RequestID,
		"method", r.Method,
		"path", r.URL.Path,
		"message", engineErr.Message,
		"context", engineErr.Context,
	)
}

// RecoveryHandler turns a handler panic into a structured 500.
func (eh *ErrorHandler) RecoveryHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rvr := recover(); rvr != nil {
				if rvr == http.ErrAbortHandler {
					panic(rvr)
				}
				requestID := middleware.GetReqID(r.Context())
				eh.logger.Error("panic_recovered",
					"request_id", requestID, "path", r.URL.Path, "method", r.Method, "panic", rvr)

				engineErr := NewError(ErrTypeInternal, "Internal server error").
					WithRequestID(requestID).
					WithContext("panic", fmt.Sprintf("%v", rvr)).
					WithContext("path", r.URL.Path).
					WithContext("method", r.Method).
					Build()
				eh.write(w, r, http.StatusInternalServerError, engineErr)
			}
		}()

		next.ServeHTTP(w, r)
	})
}
