// Package errors provides the standardized error taxonomy of the automation engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Configuration errors: rejected synchronously, no partial state change.
const (
	ErrCodeUnknownWorkflowType  ErrorCode = "UNKNOWN_WORKFLOW_TYPE"
	ErrCodeInvalidSettings      ErrorCode = "INVALID_SETTINGS"
	ErrCodeSubjectNotFound      ErrorCode = "SUBJECT_NOT_FOUND"
	ErrCodeRecipientUnavailable ErrorCode = "RECIPIENT_UNAVAILABLE"
)

// Structural errors: store unavailable during a tick.
const (
	ErrCodeSettingsLoadFailed   ErrorCode = "SETTINGS_LOAD_FAILED"
	ErrCodeCandidateQueryFailed ErrorCode = "CANDIDATE_QUERY_FAILED"
	ErrCodeLedgerReadFailed     ErrorCode = "LEDGER_READ_FAILED"
	ErrCodeLedgerWriteFailed    ErrorCode = "LEDGER_WRITE_FAILED"
)

// Transient dispatch errors.
const (
	ErrCodeNotificationSendFailed ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeNotificationTimeout    ErrorCode = "NOTIFICATION_TIMEOUT"
)

// Lifecycle errors: the only fatal class.
const (
	ErrCodeSchedulerStartFailed ErrorCode = "SCHEDULER_START_FAILED"
)

const ErrCodeInternal ErrorCode = "INTERNAL_ERROR"

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	cause error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

// Is matches another StandardError by code, so callers can write
// errors.Is(err, &StandardError{Code: ErrCodeInvalidSettings}).
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// ==========================
// 2. Error Constructors
// ==========================

func NewUnknownWorkflowTypeError(workflowType string) *StandardError {
	return &StandardError{
		Code:      ErrCodeUnknownWorkflowType,
		Message:   "Unknown workflow type",
		Details:   fmt.Sprintf("workflowType: %s", workflowType),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewInvalidSettingsError(workflowType, details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeInvalidSettings,
		Message:   "Settings update rejected",
		Details:   fmt.Sprintf("workflowType: %s, %s", workflowType, details),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSubjectNotFoundError(workflowType, subjectID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeSubjectNotFound,
		Message:   "Subject not found for workflow",
		Details:   fmt.Sprintf("workflowType: %s, subjectId: %s", workflowType, subjectID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewRecipientUnavailableError(subjectID, reason string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecipientUnavailable,
		Message:   "Subject has no reachable recipient",
		Details:   fmt.Sprintf("subjectId: %s, reason: %s", subjectID, reason),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

func NewSettingsLoadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSettingsLoadFailed,
		Message:   "Failed to load automation settings",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewCandidateQueryFailedError(workflowType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeCandidateQueryFailed,
		Message:   "Candidate query failed",
		Details:   fmt.Sprintf("workflowType: %s, error: %s", workflowType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewLedgerReadFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLedgerReadFailed,
		Message:   "Dispatch ledger read failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewLedgerWriteFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeLedgerWriteFailed,
		Message:   "Dispatch ledger write failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewNotificationSendFailedError(workflowType string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationSendFailed,
		Message:   "Notification delivery failed",
		Details:   fmt.Sprintf("type: %s, error: %s", workflowType, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

func NewNotificationTimeoutError(workflowType string, timeout time.Duration) *StandardError {
	return &StandardError{
		Code:      ErrCodeNotificationTimeout,
		Message:   "Notification delivery timed out",
		Details:   fmt.Sprintf("type: %s, timeout: %s", workflowType, timeout),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

func NewSchedulerStartFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeSchedulerStartFailed,
		Message:   "Failed to register periodic trigger",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
		cause:     err,
	}
}

// ==========================
// 3. Utility Functions
// ==========================

// AsStandard extracts a *StandardError from an error chain.
func AsStandard(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandard(err)
	return ok && stdErr.Code == code
}

// GetErrorCategory returns the taxonomy bucket of the error code.
func GetErrorCategory(code ErrorCode) string {
	switch code {
	case ErrCodeUnknownWorkflowType, ErrCodeInvalidSettings,
		ErrCodeSubjectNotFound, ErrCodeRecipientUnavailable:
		return "CONFIGURATION"
	case ErrCodeNotificationSendFailed, ErrCodeNotificationTimeout:
		return "TRANSIENT"
	case ErrCodeSettingsLoadFailed, ErrCodeCandidateQueryFailed,
		ErrCodeLedgerReadFailed, ErrCodeLedgerWriteFailed:
		return "STRUCTURAL"
	case ErrCodeSchedulerStartFailed:
		return "LIFECYCLE"
	default:
		return "OTHER"
	}
}
