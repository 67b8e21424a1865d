// Package errors provides the standardized error taxonomy shared by the
// reconciliation engine, the inbound API and the Zeebe job handlers.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	// Boundary errors
	ErrCodePayloadInvalid ErrorCode = "PAYLOAD_INVALID"

	// CRM errors
	ErrCodeRemoteTransient ErrorCode = "REMOTE_TRANSIENT"
	ErrCodeRemoteRejected  ErrorCode = "REMOTE_REJECTED"

	// Reconciliation / persistence errors
	ErrCodeReconciliationFailure ErrorCode = "RECONCILIATION_FAILURE"
	ErrCodeDatabaseWriteFailed   ErrorCode = "DATABASE_WRITE_FAILED"
	ErrCodeDatabaseReadFailed    ErrorCode = "DATABASE_READ_FAILED"
	ErrCodeRecordNotClaimable    ErrorCode = "RECORD_NOT_CLAIMABLE"

	// Alerting errors
	ErrCodeAlertSendFailed ErrorCode = "ALERT_SEND_FAILED"

	// Zeebe gateway errors
	ErrCodeWorkflowEngine ErrorCode = "WORKFLOW_ENGINE_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("StandardError[%s]: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// WithMetadata attaches a key/value pair and returns the same error.
func (e *StandardError) WithMetadata(key string, value interface{}) *StandardError {
	if e.Metadata == nil {
		e.Metadata = make(map[string]interface{})
	}
	e.Metadata[key] = value
	return e
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the Camunda workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting Camunda job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

// NewPayloadInvalidError creates a non-retryable error for malformed loan payloads.
func NewPayloadInvalidError(details string) *StandardError {
	return &StandardError{
		Code:      ErrCodePayloadInvalid,
		Message:   "Loan payload is invalid",
		Details:   details,
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewRemoteTransientError wraps a CRM timeout or connection failure.
func NewRemoteTransientError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteTransient,
		Message:   fmt.Sprintf("CRM %s failed with a transient error", operation),
		Details:   err.Error(),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewRemoteRejectedError wraps a non-2xx CRM response.
func NewRemoteRejectedError(operation string, statusCode int, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeRemoteRejected,
		Message:   fmt.Sprintf("CRM rejected %s", operation),
		Details:   err.Error(),
		Retryable: true,
		Metadata:  map[string]interface{}{"statusCode": statusCode},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewReconciliationFailureError wraps an unexpected failure while reconciling one record.
func NewReconciliationFailureError(poolID int64, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeReconciliationFailure,
		Message:   "Unexpected failure while reconciling loan pool record",
		Details:   fmt.Sprintf("poolId: %d, error: %s", poolID, err.Error()),
		Retryable: true,
		Metadata:  map[string]interface{}{"poolId": poolID},
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewDatabaseWriteFailedError creates a retryable persistence error.
func NewDatabaseWriteFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseWriteFailed,
		Message:   "Database write failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewDatabaseReadFailedError creates a retryable query error.
func NewDatabaseReadFailedError(operation string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeDatabaseReadFailed,
		Message:   "Database read failed",
		Details:   fmt.Sprintf("operation: %s, error: %s", operation, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewRecordNotClaimableError signals that another runner advanced or holds the record.
func NewRecordNotClaimableError(poolID int64) *StandardError {
	return &StandardError{
		Code:      ErrCodeRecordNotClaimable,
		Message:   "Loan pool record is no longer UNPROCESSED or is claimed by another runner",
		Details:   fmt.Sprintf("poolId: %d", poolID),
		Retryable: false,
		Timestamp: time.Now().UTC(),
	}
}

// NewAlertSendFailedError creates a retryable alert delivery error.
func NewAlertSendFailedError(channel string, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeAlertSendFailed,
		Message:   "Failed to deliver stale pool alert",
		Details:   fmt.Sprintf("channel: %s, error: %s", channel, err.Error()),
		Retryable: true,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// NewWorkflowEngineError wraps a failed Zeebe gateway command.
func NewWorkflowEngineError(operation string, retryable bool, err error) *StandardError {
	return &StandardError{
		Code:      ErrCodeWorkflowEngine,
		Message:   fmt.Sprintf("Zeebe operation '%s' failed", operation),
		Details:   err.Error(),
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     err,
	}
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeDatabaseWriteFailed,
		ErrCodeDatabaseReadFailed,
		ErrCodeAlertSendFailed,
		ErrCodeWorkflowEngine:
		return 3

	case ErrCodeRemoteTransient:
		return 2

	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError for Camunda.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      string(stdErr.Code),
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

// AsStandardError extracts a *StandardError from an error chain.
func AsStandardError(err error) (*StandardError, bool) {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr, true
	}
	return nil, false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	stdErr, ok := AsStandardError(err)
	return ok && stdErr.Code == code
}

// CodeOf returns the error code, or UNKNOWN_ERROR.
func CodeOf(err error) string {
	if stdErr, ok := AsStandardError(err); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "REMOTE"):
		return "CRM"
	case strings.HasPrefix(codeStr, "DATABASE") || strings.HasPrefix(codeStr, "RECORD"):
		return "DATABASE"
	case strings.HasPrefix(codeStr, "ALERT"):
		return "NOTIFICATION"
	case strings.HasPrefix(codeStr, "PAYLOAD"):
		return "VALIDATION"
	case strings.HasPrefix(codeStr, "WORKFLOW"):
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}
