package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for service-level operations.
var (
	// ErrRunNotFound indicates the requested run does not exist.
	ErrRunNotFound = errors.New("run not found")
	// ErrForbidden indicates the run exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")
	// ErrCredentialNotFound indicates no credential matched the resolve
	// request.
	ErrCredentialNotFound = errors.New("credential not found")
)

// ValidationError represents plan or request validation failures with
// detailed information. Validation errors are raised before any execution
// starts and are fully recoverable by resubmitting a corrected plan.
type ValidationError struct {
	Field   string `json:"field"`   // Field that failed validation
	Value   any    `json:"value"`   // Value that was provided
	Message string `json:"message"` // Human-readable error message
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StepErrorCode categorizes step execution failures. Codes determine retry
// eligibility: configuration and credential errors are never retried,
// timeouts and downstream execution failures are retried per policy.
type StepErrorCode string

// Step error codes.
const (
	// ErrCodeAgentNotFound indicates the step references an unknown agent.
	ErrCodeAgentNotFound StepErrorCode = "agent_not_found"
	// ErrCodeCapabilityNotSupported indicates the agent does not expose
	// the requested capability.
	ErrCodeCapabilityNotSupported StepErrorCode = "capability_not_supported"
	// ErrCodeCredential indicates credential resolution failed.
	ErrCodeCredential StepErrorCode = "credential_error"
	// ErrCodeStepTimeout indicates the capability invocation exceeded the
	// step timeout.
	ErrCodeStepTimeout StepErrorCode = "step_timeout"
	// ErrCodeCapabilityExecution indicates the downstream call reported a
	// failure.
	ErrCodeCapabilityExecution StepErrorCode = "capability_execution"
	// ErrCodeCondition indicates the step condition failed to evaluate.
	ErrCodeCondition StepErrorCode = "condition_error"
)

// StepError represents errors that occur while executing a single step.
type StepError struct {
	Code    StepErrorCode `json:"code"`               // Error code for categorization
	StepID  string        `json:"step_id"`            // Step that failed
	AgentID string        `json:"agent_id,omitempty"` // Agent involved, when known
	Message string        `json:"message"`            // Human-readable error message
	Err     error         `json:"-"`                  // Wrapped cause, when any
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step error [%s] in %s: %s", e.Code, e.StepID, e.Message)
}

// Unwrap returns the wrapped cause for errors.Is / errors.As chains.
func (e *StepError) Unwrap() error { return e.Err }

// Retryable reports whether the failure is transient and eligible for retry
// under the step's retry policy.
func (e *StepError) Retryable() bool {
	switch e.Code {
	case ErrCodeStepTimeout, ErrCodeCapabilityExecution:
		return true
	default:
		return false
	}
}

// NewStepError creates a StepError with the specified details.
func NewStepError(code StepErrorCode, stepID, agentID, message string) *StepError {
	return &StepError{
		Code:    code,
		StepID:  stepID,
		AgentID: agentID,
		Message: message,
	}
}

// InvalidStateTransitionError indicates a lifecycle operation was requested
// on a run whose current status does not allow it.
type InvalidStateTransitionError struct {
	RunID string    `json:"run_id"`
	From  RunStatus `json:"from"`
	Op    string    `json:"op"`
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s run %s in status %s", e.Op, e.RunID, e.From)
}

// IsInvalidStateTransition reports whether err is (or wraps) an
// InvalidStateTransitionError.
func IsInvalidStateTransition(err error) bool {
	var te *InvalidStateTransitionError
	return errors.As(err, &te)
}
