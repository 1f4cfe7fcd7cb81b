package strategy

import "github.com/flowmesh-io/flowmesh/core"

// Batch executes steps in fixed-size groups: up to Size pending steps are
// dispatched concurrently and joined before the next group starts. Plans
// using this strategy have no inter-step dependencies, so any grouping is
// valid and plan order is used for determinism.
//
// Batch is ideal for:
//   - Large fan-outs over homogeneous work where full parallelism would
//     exhaust rate limits or connection pools
//   - Bulk operations that need a concurrency ceiling per run
type Batch struct {
	// Size caps how many steps run concurrently in one group.
	Size int
}

// Name implements Scheduler.
func (Batch) Name() core.Strategy { return core.StrategyBatch }

// NextBatch returns the first Size pending steps in plan order.
func (b Batch) NextBatch(run *core.Run) []string {
	size := b.Size
	if size <= 0 {
		size = core.DefaultMaxParallelSteps
	}

	statuses := run.StepStatuses()

	var batch []string
	for _, spec := range run.Plan.Steps {
		if statuses[spec.ID] != core.StepStatusPending {
			continue
		}
		batch = append(batch, spec.ID)
		if len(batch) == size {
			break
		}
	}
	return batch
}

// MergeOutputs implements Scheduler. Batch members are independent.
func (Batch) MergeOutputs() bool { return false }

// EvaluatesConditions implements Scheduler.
func (Batch) EvaluatesConditions() bool { return false }
