package strategy

import "github.com/flowmesh-io/flowmesh/core"

// Sequential executes one step at a time in plan declaration order.
//
// Steps already driven to a terminal status (including steps skipped by the
// driver's failure handling) are passed over. Step outputs are not shared:
// each step sees only the run's initial context.
//
// Sequential is ideal for:
//   - Ordered workflows where each action must observe the previous one's
//     side effects in the outside world
//   - Plans whose steps are independent but rate-sensitive
type Sequential struct{}

// Name implements Scheduler.
func (Sequential) Name() core.Strategy { return core.StrategySequential }

// NextBatch returns the next pending step in plan order, one at a time.
func (Sequential) NextBatch(run *core.Run) []string {
	if id := nextPending(run); id != "" {
		return []string{id}
	}
	return nil
}

// MergeOutputs implements Scheduler. Sequential runs keep the context fixed.
func (Sequential) MergeOutputs() bool { return false }

// EvaluatesConditions implements Scheduler.
func (Sequential) EvaluatesConditions() bool { return false }
