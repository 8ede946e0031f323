// Package errors provides standardized error handling for the pipeline.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

// Pipeline phase errors
const (
	ErrCodeParseFailed       ErrorCode = "PARSE_FAILED"
	ErrCodeValidationFailed  ErrorCode = "VALIDATION_FAILED"
	ErrCodeResolutionFailed  ErrorCode = "RESOLUTION_FAILED"
	ErrCodePlanFailed        ErrorCode = "PLAN_FAILED"
	ErrCodeExecutionFailed   ErrorCode = "EXECUTION_FAILED"
	ErrCodeConversationError ErrorCode = "CONVERSATION_ERROR"

	ErrCodeBackendUnavailable ErrorCode = "BACKEND_UNAVAILABLE"
	ErrCodeBackendTimeout     ErrorCode = "BACKEND_TIMEOUT"
	ErrCodeRecordNotFound     ErrorCode = "RECORD_NOT_FOUND"

	ErrCodeIntentAPITimeout ErrorCode = "INTENT_API_TIMEOUT"

	ErrCodePlanNotFound       ErrorCode = "PLAN_NOT_FOUND"
	ErrCodePlanStatusConflict ErrorCode = "PLAN_STATUS_CONFLICT"

	ErrCodeDatabaseConnectionFailed ErrorCode = "DATABASE_CONNECTION_FAILED"
	ErrCodeAuditWriteFailed         ErrorCode = "AUDIT_WRITE_FAILED"
	ErrCodeNotificationSendFailed   ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// ==========================
// 2. Error Constructors
// ==========================

// NewParseFailedError creates a retryable intent-classification error.
func NewParseFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeParseFailed,
		Message:   "Intent classification failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewIntentAPITimeoutError creates a retryable classification timeout error.
func NewIntentAPITimeoutError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeIntentAPITimeout,
		Message:   "Intent classification service timed out",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewResolutionFailedError creates a retryable backend resolution error.
func NewResolutionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeResolutionFailed,
		Message:   "Entity resolution against the order backend failed",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewBackendUnavailableError creates a retryable backend availability error.
func NewBackendUnavailableError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodeBackendUnavailable,
		Message:   "Order management backend is unavailable",
		Details:   details,
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewRecordNotFoundError creates a non-retryable lookup error.
func NewRecordNotFoundError(entityType, reference string) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotFound,
		Message:   "Backend record not found",
		Details:   fmt.Sprintf("entityType: %s, reference: %s", entityType, reference),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanFailedError creates a non-retryable plan construction error.
func NewPlanFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanFailed,
		Message:   "Execution plan construction failed",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewConversationError creates a non-retryable unknown-conversation error.
func NewConversationError(conversationID string) *StandardError {
	return &StandardError{
		Code:      ErrCodeConversationError,
		Message:   "Unknown conversation",
		Details:   fmt.Sprintf("conversationId: %s", conversationID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanNotFoundError creates a non-retryable plan lookup error.
func NewPlanNotFoundError(planID string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanNotFound,
		Message:   "Plan not found",
		Details:   fmt.Sprintf("planId: %s", planID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewPlanStatusConflictError creates a non-retryable lifecycle error.
func NewPlanStatusConflictError(planID, attempted string) *StandardError {
	return &StandardError{
		Code:      ErrCodePlanStatusConflict,
		Message:   "Plan status transition not allowed",
		Details:   fmt.Sprintf("planId: %s, attempted: %s", planID, attempted),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewDatabaseConnectionFailedError creates a retryable database connection error.
func NewDatabaseConnectionFailedError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseConnectionFailed,
		Message:   "Database connection error",
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
	}
}

// NewInternalError wraps an unexpected error with a best-effort code.
func NewInternalError(err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeInternal,
		Message:   "Unexpected error",
		Details:   err.Error(),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// Normalize ensures we always have a StandardError, unwrapping if needed.
func Normalize(err error) *StandardError {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr
	}
	return NewInternalError(err)
}

// CodeOf returns the code of a StandardError anywhere in the chain, or
// INTERNAL_ERROR otherwise.
func CodeOf(err error) ErrorCode {
	var stdErr *StandardError
	if errors.As(err, &stdErr) {
		return stdErr.Code
	}
	return ErrCodeInternal
}
