package strategy

import "github.com/flowmesh-io/flowmesh/core"

// Conditional executes every step whose dependencies are settled, letting the
// driver evaluate each step's condition against the current context right
// before dispatch. Steps whose condition is false are skipped rather than
// run, and skipped steps still satisfy their dependents.
//
// Output merging is enabled so conditions on later steps can observe what
// earlier steps produced.
//
// Conditional is ideal for:
//   - Branching workflows where entire arms are switched by runtime data
//   - Approval or threshold gates expressed as step conditions
type Conditional struct{}

// Name implements Scheduler.
func (Conditional) Name() core.Strategy { return core.StrategyConditional }

// NextBatch returns all pending steps whose dependencies have completed or
// been skipped, in plan order. Steps blocked on a failed dependency are left
// pending; the driver resolves those through its failure policy.
func (Conditional) NextBatch(run *core.Run) []string {
	statuses := run.StepStatuses()

	var batch []string
	for _, spec := range run.Plan.Steps {
		if statuses[spec.ID] != core.StepStatusPending {
			continue
		}
		if dependenciesSatisfied(spec, statuses) {
			batch = append(batch, spec.ID)
		}
	}
	return batch
}

// MergeOutputs implements Scheduler. Conditions read the evolving context.
func (Conditional) MergeOutputs() bool { return true }

// EvaluatesConditions implements Scheduler. This is the strategy that turns
// step conditions on.
func (Conditional) EvaluatesConditions() bool { return true }
