package core

import "time"

// StepStatus describes the runtime state of a step within a run.
type StepStatus string

// Step status values. Transitions are monotonic except for the explicit
// failed -> retrying -> running retry cycle.
const (
	StepStatusPending   StepStatus = "pending"
	StepStatusRunning   StepStatus = "running"
	StepStatusCompleted StepStatus = "completed"
	StepStatusFailed    StepStatus = "failed"
	StepStatusSkipped   StepStatus = "skipped"
	StepStatusRetrying  StepStatus = "retrying"
)

// Terminal reports whether the status is final for the current run. A failed
// step is only observed as non-terminal inside the step runner's retry cycle.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepStatusCompleted, StepStatusFailed, StepStatusSkipped:
		return true
	default:
		return false
	}
}

// StepSpec is the immutable configuration of a single step. It is owned by
// its Plan and shared read-only across every run of that plan; runtime state
// lives in StepState, which is cloned per run.
type StepSpec struct {
	// ID uniquely identifies the step within its plan.
	ID string `json:"step_id"`
	// AgentID names the agent whose capability the step invokes.
	AgentID string `json:"agent_id"`
	// Capability is the name of the capability to invoke on the agent.
	Capability string `json:"capability_name"`
	// Input is the structured payload passed to the capability. String
	// values may contain {{variable}} placeholders resolved from the run
	// context at invocation time.
	Input map[string]any `json:"input_data,omitempty"`
	// DependsOn lists the IDs of steps that must reach a terminal state
	// before this step becomes eligible.
	DependsOn []string `json:"depends_on,omitempty"`
	// Timeout bounds a single capability invocation. Zero means the step
	// runner's default applies.
	Timeout time.Duration `json:"timeout,omitempty"`
	// RetryCount is the number of additional attempts after the first
	// failure. Total attempts are bounded by RetryCount+1.
	RetryCount int `json:"retry_count,omitempty"`
	// RetryDelay is the wait between attempts.
	RetryDelay time.Duration `json:"retry_delay,omitempty"`
	// Condition is an optional boolean expression over the run context,
	// evaluated by the conditional strategy before the step executes.
	Condition string `json:"condition,omitempty"`
	// CredentialID optionally selects a stored credential for the agent's
	// provider.
	CredentialID string `json:"credential_id,omitempty"`
}

// clone returns a deep copy of the spec safe for plan-internal storage.
func (s StepSpec) clone() *StepSpec {
	c := s
	if s.Input != nil {
		c.Input = make(map[string]any, len(s.Input))
		for k, v := range s.Input {
			c.Input[k] = v
		}
	}
	if s.DependsOn != nil {
		c.DependsOn = make([]string, len(s.DependsOn))
		copy(c.DependsOn, s.DependsOn)
	}
	return &c
}

// StepState is the mutable runtime state of one step within one run. It is
// created in status pending when the run is constructed and is mutated only
// through the owning Run's methods, which guard it with the run's lock.
type StepState struct {
	// ID references the StepSpec this state belongs to.
	ID string `json:"step_id"`
	// Status is the current step status.
	Status StepStatus `json:"status"`
	// Output holds the capability result data. Only set when Status is
	// completed.
	Output map[string]any `json:"output_data,omitempty"`
	// Error carries the failure message, or the skip reason for skipped
	// steps.
	Error string `json:"error,omitempty"`
	// StartedAt is the wall-clock start of the first attempt.
	StartedAt *time.Time `json:"started_at,omitempty"`
	// CompletedAt is the wall-clock time the step reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	// Attempts counts invocation attempts, including the first.
	Attempts int `json:"attempts"`
}

// newStepState creates the pending runtime state for a spec.
func newStepState(spec *StepSpec) *StepState {
	return &StepState{ID: spec.ID, Status: StepStatusPending}
}

// Clone returns a copy of the state safe for independent mutation. Output is
// copied per key; nested values are shared.
func (s *StepState) Clone() *StepState {
	c := *s
	if s.Output != nil {
		c.Output = make(map[string]any, len(s.Output))
		for k, v := range s.Output {
			c.Output[k] = v
		}
	}
	if s.StartedAt != nil {
		t := *s.StartedAt
		c.StartedAt = &t
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

// Duration returns the elapsed time between the step's first attempt and its
// terminal state, or zero while either bound is unset.
func (s *StepState) Duration() time.Duration {
	if s.StartedAt == nil || s.CompletedAt == nil {
		return 0
	}
	return s.CompletedAt.Sub(*s.StartedAt)
}

// StepOutcome is the step runner's report for one driven step. It carries the
// terminal status reached, the output on success and the final error on
// failure, after the retry budget has been exhausted.
type StepOutcome struct {
	StepID   string
	Status   StepStatus
	Output   map[string]any
	Err      *StepError
	Attempts int
}

// Completed reports whether the step finished successfully.
func (o StepOutcome) Completed() bool { return o.Status == StepStatusCompleted }

// Failed reports whether the step ended in failure.
func (o StepOutcome) Failed() bool { return o.Status == StepStatusFailed }
