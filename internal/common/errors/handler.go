// internal/common/errors/handler.go
package errors

import (
	"context"
	stderrors "errors"
	"time"

	"automation-engine/internal/common/metrics"
)

// ErrorHandler normalizes and reports errors caught at the scheduler's
// per-workflow error boundary. It never re-raises.
type ErrorHandler struct {
	logger Logger
}

type Logger interface {
	Error(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
}

func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err under the given workflow scope and returns its normalized form.
func (h *ErrorHandler) Handle(workflowType string, fields map[string]interface{}, err error) *StandardError {
	if err == nil {
		return nil
	}
	stdErr := h.normalizeError(err)

	metrics.WorkflowErrors.WithLabelValues(workflowType, string(stdErr.Code)).Inc()

	logFields := map[string]interface{}{
		"workflowType":  workflowType,
		"errorCode":     string(stdErr.Code),
		"message":       stdErr.Message,
		"details":       stdErr.Details,
		"retryable":     stdErr.Retryable,
		"errorCategory": GetErrorCategory(stdErr.Code),
	}
	for k, v := range fields {
		logFields[k] = v
	}

	// cancellation comes from Stop(); it is expected
	if stderrors.Is(err, context.Canceled) {
		h.logger.Warn("workflow processing interrupted", logFields)
		return stdErr
	}
	h.logger.Error("workflow processing failed", logFields)
	return stdErr
}

func (h *ErrorHandler) normalizeError(err error) *StandardError {
	if stdErr, ok := AsStandard(err); ok {
		return stdErr
	}
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}
