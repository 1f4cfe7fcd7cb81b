package testutil

import (
	"testing"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
)

// RunBuilder provides a fluent helper for constructing runs in specific
// lifecycle states for tests. Example:
//
//	run := testutil.NewRunBuilder(t).
//	    User("user-1").
//	    Running().
//	    CompletedStep("fetch", map[string]any{"subject": "hello"}).
//	    Cost("sa-gmail", "fetch", 2).
//	    Build()
//
// Chain only the parts you need; without a Plan the builder uses a two step
// fetch/send plan.
type RunBuilder struct {
	t      *testing.T
	plan   *core.Plan
	userID string
	input  map[string]any
	mutate []func(run *core.Run)
}

// NewRunBuilder creates a builder with default user "user-1".
func NewRunBuilder(t *testing.T) *RunBuilder {
	return &RunBuilder{t: t, userID: "user-1"}
}

// Plan overrides the default plan (chainable).
func (b *RunBuilder) Plan(plan *core.Plan) *RunBuilder {
	b.plan = plan
	return b
}

// User sets the owning user (chainable).
func (b *RunBuilder) User(userID string) *RunBuilder {
	b.userID = userID
	return b
}

// Input sets an input key/value pair, seeding the run context (chainable).
func (b *RunBuilder) Input(key string, val any) *RunBuilder {
	if b.input == nil {
		b.input = map[string]any{}
	}
	b.input[key] = val
	return b
}

// Running transitions the run to running (chainable).
func (b *RunBuilder) Running() *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		b.t.Helper()
		if err := run.MarkRunning(); err != nil {
			b.t.Fatalf("mark running: %v", err)
		}
	})
	return b
}

// Status forces the run status without lifecycle bookkeeping, for store
// fixtures that only care about the stored value (chainable).
func (b *RunBuilder) Status(status core.RunStatus) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.Status = status
	})
	return b
}

// CompletedStep records one successful attempt for the step (chainable).
func (b *RunBuilder) CompletedStep(stepID string, output map[string]any) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.BeginStepAttempt(stepID)
		run.CompleteStep(stepID, output)
	})
	return b
}

// FailedStep records one failed attempt for the step (chainable).
func (b *RunBuilder) FailedStep(stepID, message string) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.BeginStepAttempt(stepID)
		run.FailStep(stepID, message)
	})
	return b
}

// Log appends an execution log entry (chainable).
func (b *RunBuilder) Log(level core.LogLevel, message, stepID string) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.AddLog(level, message, stepID, nil)
	})
	return b
}

// Cost charges the run's cost ledger (chainable).
func (b *RunBuilder) Cost(agentID, stepID string, amount int) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.ChargeCost(agentID, stepID, amount)
	})
	return b
}

// CreatedAt overrides the creation timestamp, for tests that assert ordering
// (chainable).
func (b *RunBuilder) CreatedAt(ts time.Time) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.Created = ts
	})
	return b
}

// UpdatedAt overrides the last-update timestamp, for retention tests
// (chainable). Chain after any lifecycle methods so they do not restamp it.
func (b *RunBuilder) UpdatedAt(ts time.Time) *RunBuilder {
	b.mutate = append(b.mutate, func(run *core.Run) {
		run.Updated = ts
	})
	return b
}

// Build returns a *core.Run with the configured state applied in chain order.
func (b *RunBuilder) Build() *core.Run {
	b.t.Helper()

	plan := b.plan
	if plan == nil {
		plan = NewPlanBuilder("notify").
			Step("fetch", "sa-gmail", "read_email").
			Step("send", "sa-gmail", "send_email", "fetch").
			Build(b.t)
	}

	run := core.NewRun(plan, b.userID, b.input)
	for _, fn := range b.mutate {
		fn(run)
	}
	return run
}
