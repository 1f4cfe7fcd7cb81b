package strategy

import (
	"fmt"

	"github.com/flowmesh-io/flowmesh/core"
)

// Scheduler decides which steps of a run may start next. Implementations are
// stateless with respect to the run: every decision derives from the run's
// current step statuses, so a scheduler instance may be shared across runs.
//
// The driver calls NextBatch only when no dispatched step is still in
// flight; schedulers therefore observe steps as either pending or terminal,
// never running.
type Scheduler interface {
	// Name returns the strategy name the scheduler implements.
	Name() core.Strategy

	// NextBatch returns the IDs of the steps to execute now, in plan
	// order. An empty batch with pending steps remaining signals that no
	// step can make progress (the driver applies its stall handling); an
	// empty batch with no pending steps means the run is done.
	NextBatch(run *core.Run) []string

	// MergeOutputs reports whether a completed step's output is merged
	// into the run's execution context before the next batch starts.
	MergeOutputs() bool

	// EvaluatesConditions reports whether the driver evaluates step
	// conditions before dispatch. Only the conditional strategy enables
	// this; other strategies run every scheduled step.
	EvaluatesConditions() bool
}

// ForPlan returns the scheduler implementing the plan's strategy.
func ForPlan(plan *core.Plan) (Scheduler, error) {
	switch plan.Strategy {
	case core.StrategySequential:
		return Sequential{}, nil
	case core.StrategyParallel:
		return Parallel{}, nil
	case core.StrategyPipeline:
		return Pipeline{}, nil
	case core.StrategyConditional:
		return Conditional{}, nil
	case core.StrategyBatch:
		return Batch{Size: plan.MaxParallelSteps}, nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", plan.Strategy)
	}
}

// nextPending returns the first pending step in plan order, or "".
func nextPending(run *core.Run) string {
	statuses := run.StepStatuses()
	for _, spec := range run.Plan.Steps {
		if statuses[spec.ID] == core.StepStatusPending {
			return spec.ID
		}
	}
	return ""
}

// dependenciesSatisfied reports whether every dependency of the spec reached
// a status that unblocks dependents. Completed and skipped steps satisfy
// their dependents; failed dependencies never do, their dependents are
// skipped by the driver's failure handling instead.
func dependenciesSatisfied(spec *core.StepSpec, statuses map[string]core.StepStatus) bool {
	for _, dep := range spec.DependsOn {
		switch statuses[dep] {
		case core.StepStatusCompleted, core.StepStatusSkipped:
		default:
			return false
		}
	}
	return true
}
