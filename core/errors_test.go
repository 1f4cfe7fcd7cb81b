package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestStepError_Retryable(t *testing.T) {
	retryable := []StepErrorCode{ErrCodeStepTimeout, ErrCodeCapabilityExecution}
	permanent := []StepErrorCode{ErrCodeAgentNotFound, ErrCodeCapabilityNotSupported, ErrCodeCredential, ErrCodeCondition}

	for _, code := range retryable {
		if !NewStepError(code, "s", "a", "m").Retryable() {
			t.Errorf("%s should be retryable", code)
		}
	}
	for _, code := range permanent {
		if NewStepError(code, "s", "a", "m").Retryable() {
			t.Errorf("%s should not be retryable", code)
		}
	}
}

func TestStepError_Unwrap(t *testing.T) {
	cause := errors.New("downstream broke")
	err := &StepError{Code: ErrCodeCapabilityExecution, StepID: "s", Message: "call failed", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("StepError should unwrap to its cause")
	}

	wrapped := fmt.Errorf("driving step: %w", err)
	var se *StepError
	if !errors.As(wrapped, &se) || se.Code != ErrCodeCapabilityExecution {
		t.Error("StepError should survive wrapping")
	}
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Field: "steps", Message: "must not be empty"}
	want := "validation error for field 'steps': must not be empty"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}

	if !IsValidationError(fmt.Errorf("creating plan: %w", err)) {
		t.Error("IsValidationError should see through wrapping")
	}
}

func TestInvalidStateTransitionError_Message(t *testing.T) {
	err := &InvalidStateTransitionError{RunID: "r-1", From: RunStatusCompleted, Op: "cancel"}
	want := "cannot cancel run r-1 in status completed"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
	if !IsInvalidStateTransition(err) {
		t.Error("IsInvalidStateTransition should match")
	}
}
