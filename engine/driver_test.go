package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/store"
)

// scriptedExecutor resolves steps from canned outcomes, mutating run state
// the way the real step runner does.
type scriptedExecutor struct {
	mu       sync.Mutex
	calls    []string
	contexts map[string]map[string]any

	fail    map[string]string
	outputs map[string]map[string]any
	delay   map[string]time.Duration
	onCall  func(stepID string)
}

func newScriptedExecutor() *scriptedExecutor {
	return &scriptedExecutor{
		contexts: make(map[string]map[string]any),
		fail:     make(map[string]string),
		outputs:  make(map[string]map[string]any),
		delay:    make(map[string]time.Duration),
	}
}

func (e *scriptedExecutor) Run(_ context.Context, run *core.Run, stepID string) core.StepOutcome {
	e.mu.Lock()
	e.calls = append(e.calls, stepID)
	e.contexts[stepID] = run.ContextSnapshot()
	onCall := e.onCall
	delay := e.delay[stepID]
	msg, failed := e.fail[stepID]
	out := e.outputs[stepID]
	e.mu.Unlock()

	if onCall != nil {
		onCall(stepID)
	}
	if delay > 0 {
		time.Sleep(delay)
	}

	attempts := run.BeginStepAttempt(stepID)
	if failed {
		run.FailStep(stepID, msg)
		return core.StepOutcome{
			StepID:   stepID,
			Status:   core.StepStatusFailed,
			Err:      core.NewStepError(core.ErrCodeCapabilityExecution, stepID, "", msg),
			Attempts: attempts,
		}
	}

	run.CompleteStep(stepID, out)
	return core.StepOutcome{StepID: stepID, Status: core.StepStatusCompleted, Output: out, Attempts: attempts}
}

func (e *scriptedExecutor) callOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

func (e *scriptedExecutor) contextAt(stepID string) map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.contexts[stepID]
}

func stepSpec(id string, deps ...string) core.StepSpec {
	return core.StepSpec{ID: id, AgentID: "sa-x", Capability: "do", DependsOn: deps}
}

func driverPlan(t *testing.T, strat core.Strategy, policy core.FailurePolicy, specs []core.StepSpec) *core.Plan {
	t.Helper()
	plan, err := core.NewPlan("drive", "", specs, func(o *core.PlanOptions) {
		o.Strategy = strat
		o.FailurePolicy = policy
	})
	require.NoError(t, err)
	return plan
}

func stepStatus(t *testing.T, run *core.Run, id string) core.StepState {
	t.Helper()
	state, ok := run.StepSnapshot(id)
	require.True(t, ok, "step %s should exist", id)
	return state
}

func TestDriver_Sequential_CompletesInOrder(t *testing.T) {
	plan := driverPlan(t, core.StrategySequential, core.StopOnFailure, []core.StepSpec{
		stepSpec("a"), stepSpec("b"), stepSpec("c"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	st := store.NewInMemoryStore()

	NewDriver(exec, func(o *DriverOptions) { o.Store = st }).Drive(context.Background(), run)

	assert.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
	assert.Equal(t, []string{"a", "b", "c"}, exec.callOrder())
	for _, id := range []string{"a", "b", "c"} {
		assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, id).Status)
	}

	stored, err := st.FindByID(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, core.RunStatusCompleted, stored.Status)
}

func TestDriver_StopOnFailure_AbortsRun(t *testing.T) {
	plan := driverPlan(t, core.StrategySequential, core.StopOnFailure, []core.StepSpec{
		stepSpec("a"), stepSpec("b", "a"), stepSpec("c", "b"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.fail["b"] = "boom"

	NewDriver(exec).Drive(context.Background(), run)

	assert.Equal(t, core.RunStatusFailed, run.CurrentStatus())
	assert.Contains(t, run.Error, "step b failed: boom")
	assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, "a").Status)
	assert.Equal(t, core.StepStatusFailed, stepStatus(t, run, "b").Status)
	assert.Equal(t, core.StepStatusPending, stepStatus(t, run, "c").Status)
	assert.Equal(t, []string{"a", "b"}, exec.callOrder())
}

func TestDriver_ContinueOnFailure_SkipsDependents(t *testing.T) {
	plan := driverPlan(t, core.StrategyParallel, core.ContinueOnFailure, []core.StepSpec{
		stepSpec("a"),
		stepSpec("b", "a"),
		stepSpec("c", "a"),
		stepSpec("d", "b", "c"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.fail["b"] = "boom"

	NewDriver(exec).Drive(context.Background(), run)

	assert.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
	assert.Equal(t, core.StepStatusFailed, stepStatus(t, run, "b").Status)
	assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, "c").Status)

	d := stepStatus(t, run, "d")
	assert.Equal(t, core.StepStatusSkipped, d.Status)
	assert.Equal(t, "dependency failed", d.Error)
	assert.NotContains(t, exec.callOrder(), "d")
}

func TestDriver_Parallel_LevelJoin(t *testing.T) {
	plan := driverPlan(t, core.StrategyParallel, core.StopOnFailure, []core.StepSpec{
		stepSpec("a"),
		stepSpec("b", "a"),
		stepSpec("c", "a"),
		stepSpec("d", "b", "c"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()

	NewDriver(exec).Drive(context.Background(), run)

	calls := exec.callOrder()
	require.Len(t, calls, 4)
	assert.Equal(t, "a", calls[0])
	assert.ElementsMatch(t, []string{"b", "c"}, calls[1:3])
	assert.Equal(t, "d", calls[3])
	assert.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
}

func TestDriver_Pipeline_MergesOutputs(t *testing.T) {
	plan := driverPlan(t, core.StrategyPipeline, core.StopOnFailure, []core.StepSpec{
		stepSpec("fetch"), stepSpec("notify", "fetch"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.outputs["fetch"] = map[string]any{"status_code": 200}

	NewDriver(exec).Drive(context.Background(), run)

	require.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
	assert.Equal(t, 200, exec.contextAt("notify")["status_code"])
	assert.Equal(t, 200, run.ContextSnapshot()["status_code"])
}

func TestDriver_Sequential_DoesNotMergeOutputs(t *testing.T) {
	plan := driverPlan(t, core.StrategySequential, core.StopOnFailure, []core.StepSpec{
		stepSpec("fetch"), stepSpec("notify", "fetch"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.outputs["fetch"] = map[string]any{"status_code": 200}

	NewDriver(exec).Drive(context.Background(), run)

	require.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
	assert.NotContains(t, exec.contextAt("notify"), "status_code")
	assert.NotContains(t, run.ContextSnapshot(), "status_code")
}

func TestDriver_Conditional_FalseConditionSkips(t *testing.T) {
	plan := driverPlan(t, core.StrategyConditional, core.StopOnFailure, []core.StepSpec{
		stepSpec("check"),
		{ID: "escalate", AgentID: "sa-x", Capability: "do", DependsOn: []string{"check"}, Condition: "approved == true"},
		stepSpec("archive", "escalate"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.outputs["check"] = map[string]any{"approved": false}

	NewDriver(exec).Drive(context.Background(), run)

	assert.Equal(t, core.RunStatusCompleted, run.CurrentStatus())

	escalate := stepStatus(t, run, "escalate")
	assert.Equal(t, core.StepStatusSkipped, escalate.Status)
	assert.Equal(t, "condition evaluated to false", escalate.Error)
	assert.NotContains(t, exec.callOrder(), "escalate")

	// A skipped dependency still satisfies its dependents.
	assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, "archive").Status)
}

func TestDriver_Conditional_TrueConditionRuns(t *testing.T) {
	plan := driverPlan(t, core.StrategyConditional, core.StopOnFailure, []core.StepSpec{
		stepSpec("check"),
		{ID: "escalate", AgentID: "sa-x", Capability: "do", DependsOn: []string{"check"}, Condition: "approved == true"},
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.outputs["check"] = map[string]any{"approved": true}

	NewDriver(exec).Drive(context.Background(), run)

	assert.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
	assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, "escalate").Status)
	assert.Contains(t, exec.callOrder(), "escalate")
}

func TestDriver_Conditional_EvalErrorFailsStep(t *testing.T) {
	plan := driverPlan(t, core.StrategyConditional, core.StopOnFailure, []core.StepSpec{
		stepSpec("check"),
		{ID: "gated", AgentID: "sa-x", Capability: "do", DependsOn: []string{"check"}, Condition: "missing_var > 3"},
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()

	NewDriver(exec).Drive(context.Background(), run)

	assert.Equal(t, core.RunStatusFailed, run.CurrentStatus())
	assert.Contains(t, run.Error, "condition")

	gated := stepStatus(t, run, "gated")
	assert.Equal(t, core.StepStatusFailed, gated.Status)
	assert.NotContains(t, exec.callOrder(), "gated", "a step with a broken condition is never invoked")
}

func TestDriver_Batch_Windows(t *testing.T) {
	plan, err := core.NewPlan("drive", "", []core.StepSpec{
		stepSpec("a"), stepSpec("b"), stepSpec("c"), stepSpec("d"), stepSpec("e"),
	}, func(o *core.PlanOptions) {
		o.Strategy = core.StrategyBatch
		o.MaxParallelSteps = 2
	})
	require.NoError(t, err)

	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()

	NewDriver(exec).Drive(context.Background(), run)

	calls := exec.callOrder()
	require.Len(t, calls, 5)
	assert.ElementsMatch(t, []string{"a", "b"}, calls[0:2])
	assert.ElementsMatch(t, []string{"c", "d"}, calls[2:4])
	assert.Equal(t, "e", calls[4])
	assert.Equal(t, core.RunStatusCompleted, run.CurrentStatus())
}

func TestDriver_GlobalDeadlineFailsRun(t *testing.T) {
	plan := driverPlan(t, core.StrategySequential, core.StopOnFailure, []core.StepSpec{
		stepSpec("slow"), stepSpec("never"),
	})
	run := core.NewRun(plan, "user-1", nil)
	exec := newScriptedExecutor()
	exec.delay["slow"] = 60 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	NewDriver(exec).Drive(ctx, run)

	assert.Equal(t, core.RunStatusFailed, run.CurrentStatus())
	assert.Equal(t, "global timeout exceeded", run.Error)

	// The in-flight step finished cooperatively; the next one never started.
	assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, "slow").Status)
	assert.NotContains(t, exec.callOrder(), "never")
}

func TestDriver_CancelStopsBetweenSteps(t *testing.T) {
	plan := driverPlan(t, core.StrategySequential, core.StopOnFailure, []core.StepSpec{
		stepSpec("a"), stepSpec("b"),
	})
	run := core.NewRun(plan, "user-1", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	exec := newScriptedExecutor()
	exec.onCall = func(stepID string) {
		if stepID == "a" {
			cancel()
		}
	}

	NewDriver(exec).Drive(ctx, run)

	assert.Equal(t, core.RunStatusCancelled, run.CurrentStatus())
	assert.Equal(t, core.StepStatusCompleted, stepStatus(t, run, "a").Status)
	assert.NotContains(t, exec.callOrder(), "b")
}
