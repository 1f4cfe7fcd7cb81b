package strategy

import "github.com/flowmesh-io/flowmesh/core"

// Pipeline executes steps one at a time in plan order and merges each
// completed step's output into the shared run context, so every step can
// template over everything produced before it.
//
// Pipeline is ideal for:
//   - Transform chains where each stage refines the previous stage's output
//   - Workflows whose step inputs are templated from upstream results
type Pipeline struct{}

// Name implements Scheduler.
func (Pipeline) Name() core.Strategy { return core.StrategyPipeline }

// NextBatch returns the single next pending step in plan order.
func (Pipeline) NextBatch(run *core.Run) []string {
	if id := nextPending(run); id != "" {
		return []string{id}
	}
	return nil
}

// MergeOutputs implements Scheduler. Completed outputs flow into the context.
func (Pipeline) MergeOutputs() bool { return true }

// EvaluatesConditions implements Scheduler.
func (Pipeline) EvaluatesConditions() bool { return false }
