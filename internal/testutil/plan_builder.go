package testutil

import (
	"testing"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
)

// PlanBuilder helps construct validated plans with fluent chaining for tests.
// Example:
//
//	plan := testutil.NewPlanBuilder("notify").
//	    Step("fetch", "sa-http", "http_get").
//	    Step("send", "sa-gmail", "send_email", "fetch").
//	    Strategy(core.StrategyPipeline).
//	    Build(t)
type PlanBuilder struct {
	name   string
	steps  []core.StepSpec
	optFns []func(o *core.PlanOptions)
}

// NewPlanBuilder creates a new builder for a plan with the given name. Use
// chainable methods (Step, Spec, Strategy, ...) then call Build.
func NewPlanBuilder(name string) *PlanBuilder {
	return &PlanBuilder{name: name}
}

// Step appends a step bound to the given agent capability, depending on the
// listed step IDs (chainable).
func (b *PlanBuilder) Step(id, agentID, capability string, dependsOn ...string) *PlanBuilder {
	b.steps = append(b.steps, core.StepSpec{
		ID:         id,
		AgentID:    agentID,
		Capability: capability,
		DependsOn:  dependsOn,
	})
	return b
}

// Spec appends a fully specified step for tests that need timeouts, retries,
// conditions or credentials (chainable).
func (b *PlanBuilder) Spec(spec core.StepSpec) *PlanBuilder {
	b.steps = append(b.steps, spec)
	return b
}

// Strategy sets the execution strategy (chainable).
func (b *PlanBuilder) Strategy(s core.Strategy) *PlanBuilder {
	b.optFns = append(b.optFns, func(o *core.PlanOptions) { o.Strategy = s })
	return b
}

// FailurePolicy sets the failure policy (chainable).
func (b *PlanBuilder) FailurePolicy(p core.FailurePolicy) *PlanBuilder {
	b.optFns = append(b.optFns, func(o *core.PlanOptions) { o.FailurePolicy = p })
	return b
}

// MaxParallel sets the parallelism ceiling (chainable).
func (b *PlanBuilder) MaxParallel(n int) *PlanBuilder {
	b.optFns = append(b.optFns, func(o *core.PlanOptions) { o.MaxParallelSteps = n })
	return b
}

// GlobalTimeout sets the run-wide deadline (chainable).
func (b *PlanBuilder) GlobalTimeout(d time.Duration) *PlanBuilder {
	b.optFns = append(b.optFns, func(o *core.PlanOptions) { o.GlobalTimeout = d })
	return b
}

// Build compiles and validates the plan, failing the test on any validation
// error.
func (b *PlanBuilder) Build(t *testing.T) *core.Plan {
	t.Helper()

	plan, err := core.NewPlan(b.name, "", b.steps, b.optFns...)
	if err != nil {
		t.Fatalf("build plan %q: %v", b.name, err)
	}
	return plan
}
