package core

import (
	"context"
	"sync"
	"time"

	"dario.cat/mergo"
)

// RunStatus describes the lifecycle state of a run.
type RunStatus string

// Run status values.
const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusPaused    RunStatus = "paused"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusCancelled RunStatus = "cancelled"
)

// Terminal reports whether the status is final.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// Run is one stateful execution attempt of a Plan, bound to a user. It owns
// the cloned runtime state of every step, a mutable execution context merged
// from the initial input and step outputs, a cost ledger and an append-only
// execution log. It is safe for concurrent access.
//
// Contract:
//   - the Plan is a shared read-only template and is never mutated
//   - all step state mutations go through Run methods under the run's lock
//   - log entries are appended in completion order
//   - Clone performs per-key copies of maps and slices for safe divergence
type Run struct {
	ID          string                `json:"id"`
	Plan        *Plan                 `json:"plan"`
	UserID      string                `json:"user_id"`
	Input       map[string]any        `json:"input_context,omitempty"`
	Context     map[string]any        `json:"execution_context,omitempty"`
	Status      RunStatus             `json:"status"`
	Error       string                `json:"error,omitempty"`
	Steps       map[string]*StepState `json:"steps"`
	Log         []LogEntry            `json:"execution_log"`
	Costs       *CostLedger           `json:"cost_ledger"`
	StartedAt   *time.Time            `json:"started_at,omitempty"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	PausedAt    *time.Time            `json:"paused_at,omitempty"`
	Created     time.Time             `json:"created"`
	Updated     time.Time             `json:"updated"`

	mu       sync.RWMutex
	done     chan struct{}
	resumeCh chan struct{}
}

// NewRun creates a pending run for the given plan. Step runtime state is
// cloned from the plan template so repeated runs of one plan never share
// mutable state; the initial input is copied into the execution context.
func NewRun(plan *Plan, userID string, input map[string]any) *Run {
	now := time.Now().UTC()

	r := &Run{
		ID:      NewID(),
		Plan:    plan,
		UserID:  userID,
		Input:   make(map[string]any, len(input)),
		Context: make(map[string]any, len(input)),
		Status:  RunStatusPending,
		Steps:   make(map[string]*StepState, len(plan.Steps)),
		Log:     []LogEntry{},
		Costs:   NewCostLedger(),
		Created: now,
		Updated: now,
	}

	for k, v := range input {
		r.Input[k] = v
		r.Context[k] = v
	}

	for _, spec := range plan.Steps {
		r.Steps[spec.ID] = newStepState(spec)
	}

	return r
}

// CurrentStatus returns the run status under the run's lock.
func (r *Run) CurrentStatus() RunStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Status
}

// Terminal reports whether the run has reached a final status.
func (r *Run) Terminal() bool {
	return r.CurrentStatus().Terminal()
}

// Done returns a channel that is closed when the run reaches a terminal
// status. Runs loaded from a store in a terminal status return an already
// closed channel.
func (r *Run) Done() <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done == nil {
		r.done = make(chan struct{})
		if r.Status.Terminal() {
			close(r.done)
		}
	}
	return r.done
}

// MarkRunning transitions the run from pending to running and records the
// start time.
func (r *Run) MarkRunning() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status != RunStatusPending {
		return &InvalidStateTransitionError{RunID: r.ID, From: r.Status, Op: "start"}
	}

	now := time.Now().UTC()
	r.Status = RunStatusRunning
	r.StartedAt = &now
	r.Updated = now

	return nil
}

// Pause transitions a running run to paused. Pausing an already paused run is
// a no-op; any other status is an invalid transition. In-flight steps finish
// their current attempt first, the driving goroutine then blocks on
// AwaitResume between steps.
func (r *Run) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.Status {
	case RunStatusPaused:
		return nil
	case RunStatusRunning:
		now := time.Now().UTC()
		r.Status = RunStatusPaused
		r.PausedAt = &now
		r.Updated = now
		r.resumeCh = make(chan struct{})
		return nil
	default:
		return &InvalidStateTransitionError{RunID: r.ID, From: r.Status, Op: "pause"}
	}
}

// Resume transitions a paused run back to running and wakes the driving
// goroutine immediately. Resuming an already running run is a no-op; any
// other status is an invalid transition.
func (r *Run) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch r.Status {
	case RunStatusRunning:
		return nil
	case RunStatusPaused:
		r.Status = RunStatusRunning
		r.PausedAt = nil
		r.Updated = time.Now().UTC()
		if r.resumeCh != nil {
			close(r.resumeCh)
			r.resumeCh = nil
		}
		return nil
	default:
		return &InvalidStateTransitionError{RunID: r.ID, From: r.Status, Op: "resume"}
	}
}

// AwaitResume blocks while the run is paused. It returns nil as soon as the
// run leaves the paused status and the context error if ctx is cancelled
// first.
func (r *Run) AwaitResume(ctx context.Context) error {
	for {
		r.mu.RLock()
		if r.Status != RunStatusPaused {
			r.mu.RUnlock()
			return nil
		}
		ch := r.resumeCh
		r.mu.RUnlock()

		if ch == nil {
			return nil
		}

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// MarkCompleted moves the run to the completed terminal status.
func (r *Run) MarkCompleted() {
	r.markTerminal(RunStatusCompleted, "")
}

// MarkFailed moves the run to the failed terminal status, attaching the
// originating error message.
func (r *Run) MarkFailed(message string) {
	r.markTerminal(RunStatusFailed, message)
}

// MarkCancelled moves the run to the cancelled terminal status.
func (r *Run) MarkCancelled() {
	r.markTerminal(RunStatusCancelled, "")
}

func (r *Run) markTerminal(status RunStatus, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Status.Terminal() {
		return
	}

	now := time.Now().UTC()
	r.Status = status
	r.CompletedAt = &now
	r.PausedAt = nil
	r.Updated = now
	if message != "" {
		r.Error = message
	}

	if r.resumeCh != nil {
		close(r.resumeCh)
		r.resumeCh = nil
	}
	if r.done == nil {
		r.done = make(chan struct{})
	}
	close(r.done)
}

// MergeContext merges the given delta into the execution context. Nested maps
// merge recursively, existing keys are overridden and slices append.
func (r *Run) MergeContext(delta map[string]any) error {
	if len(delta) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := mergo.Merge(&r.Context, delta, mergo.WithOverride, mergo.WithAppendSlice); err != nil {
		return err
	}
	r.Updated = time.Now().UTC()

	return nil
}

// ContextSnapshot returns a copy of the execution context. Values are copied
// per key; nested values are shared.
func (r *Run) ContextSnapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]any, len(r.Context))
	for k, v := range r.Context {
		snap[k] = v
	}
	return snap
}

// AddLog appends an entry to the execution log.
func (r *Run) AddLog(level LogLevel, message, stepID string, metadata map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Log = append(r.Log, NewLogEntry(level, message, stepID, metadata))
	r.Updated = time.Now().UTC()
}

// LogEntries returns a copy of the execution log.
func (r *Run) LogEntries() []LogEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]LogEntry, len(r.Log))
	copy(entries, r.Log)
	return entries
}

// ChargeCost records a cost against an agent and a step in the run's ledger.
func (r *Run) ChargeCost(agentID, stepID string, amount int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Costs.Charge(agentID, stepID, amount)
	r.Updated = time.Now().UTC()
}

// CostSnapshot returns a copy of the cost ledger.
func (r *Run) CostSnapshot() *CostLedger {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Costs.Clone()
}

// BeginStepAttempt transitions a step to running, increments its attempt
// counter and returns the new attempt number. The step's start time is
// recorded on the first attempt only.
func (r *Run) BeginStepAttempt(stepID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.Steps[stepID]
	if !ok {
		return 0
	}

	now := time.Now().UTC()
	state.Status = StepStatusRunning
	state.Attempts++
	if state.StartedAt == nil {
		state.StartedAt = &now
	}
	r.Updated = now

	return state.Attempts
}

// MarkStepRetrying moves a failed step into the retrying state ahead of its
// next attempt, preserving the recorded error.
func (r *Run) MarkStepRetrying(stepID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if state, ok := r.Steps[stepID]; ok {
		state.Status = StepStatusRetrying
		r.Updated = time.Now().UTC()
	}
}

// CompleteStep marks a step completed with its output data.
func (r *Run) CompleteStep(stepID string, output map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.Steps[stepID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	state.Status = StepStatusCompleted
	state.Output = output
	state.Error = ""
	state.CompletedAt = &now
	r.Updated = now
}

// FailStep marks a step failed with the given error message.
func (r *Run) FailStep(stepID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.Steps[stepID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	state.Status = StepStatusFailed
	state.Error = message
	state.CompletedAt = &now
	r.Updated = now
}

// SkipStep marks a step skipped with the given reason. Skipped steps satisfy
// their dependents' dependency checks.
func (r *Run) SkipStep(stepID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, ok := r.Steps[stepID]
	if !ok {
		return
	}

	now := time.Now().UTC()
	state.Status = StepStatusSkipped
	state.Error = reason
	state.CompletedAt = &now
	r.Updated = now
}

// StepSnapshot returns a copy of one step's runtime state.
func (r *Run) StepSnapshot(stepID string) (StepState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.Steps[stepID]
	if !ok {
		return StepState{}, false
	}
	return *state.Clone(), true
}

// StepStatuses returns the current status of every step keyed by step ID.
func (r *Run) StepStatuses() map[string]StepStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	statuses := make(map[string]StepStatus, len(r.Steps))
	for id, state := range r.Steps {
		statuses[id] = state.Status
	}
	return statuses
}

// AllStepsTerminal reports whether every step has reached a terminal status.
func (r *Run) AllStepsTerminal() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, state := range r.Steps {
		if !state.Status.Terminal() {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the run safe for independent mutation and
// serialization. The Plan pointer is shared since plans are immutable.
func (r *Run) Clone() *Run {
	r.mu.RLock()
	defer r.mu.RUnlock()

	clone := &Run{
		ID:      r.ID,
		Plan:    r.Plan,
		UserID:  r.UserID,
		Input:   make(map[string]any, len(r.Input)),
		Context: make(map[string]any, len(r.Context)),
		Status:  r.Status,
		Error:   r.Error,
		Steps:   make(map[string]*StepState, len(r.Steps)),
		Log:     make([]LogEntry, len(r.Log)),
		Costs:   r.Costs.Clone(),
		Created: r.Created,
		Updated: r.Updated,
	}

	for k, v := range r.Input {
		clone.Input[k] = v
	}
	for k, v := range r.Context {
		clone.Context[k] = v
	}
	for id, state := range r.Steps {
		clone.Steps[id] = state.Clone()
	}
	copy(clone.Log, r.Log)

	if r.StartedAt != nil {
		t := *r.StartedAt
		clone.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		clone.CompletedAt = &t
	}
	if r.PausedAt != nil {
		t := *r.PausedAt
		clone.PausedAt = &t
	}

	return clone
}
