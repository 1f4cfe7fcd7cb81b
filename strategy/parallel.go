package strategy

import "github.com/flowmesh-io/flowmesh/core"

// Parallel executes the plan level by level: each dependency level runs
// concurrently and is joined before the next level starts.
//
// Levels are precomputed at plan construction; steps within one level share
// no dependency relation, which makes concurrent dispatch safe without any
// runtime dependency checking. Step outputs are not merged into the shared
// context, so parallel siblings cannot observe each other.
//
// Parallel is ideal for:
//   - Fan-out workloads gathering data from independent sources
//   - I/O bound steps whose only ordering constraints are real dependencies
type Parallel struct{}

// Name implements Scheduler.
func (Parallel) Name() core.Strategy { return core.StrategyParallel }

// NextBatch returns the pending steps of the earliest level that still has
// any. Earlier levels are fully terminal by the driver's join semantics.
func (Parallel) NextBatch(run *core.Run) []string {
	statuses := run.StepStatuses()

	for _, level := range run.Plan.Levels {
		var batch []string
		for _, id := range level {
			if statuses[id] == core.StepStatusPending {
				batch = append(batch, id)
			}
		}
		if len(batch) > 0 {
			return batch
		}
	}
	return nil
}

// MergeOutputs implements Scheduler. Parallel runs keep the context fixed.
func (Parallel) MergeOutputs() bool { return false }

// EvaluatesConditions implements Scheduler.
func (Parallel) EvaluatesConditions() bool { return false }
