package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/logging"
	"github.com/flowmesh-io/flowmesh/strategy"
)

// StepExecutor drives a single step of a run to a terminal status and
// reports the outcome. Implemented by runner.StepRunner.
type StepExecutor interface {
	Run(ctx context.Context, run *core.Run, stepID string) core.StepOutcome
}

// DriverOptions holds dependency overrides passed to NewDriver().
type DriverOptions struct {
	// Store persists the run after every state-changing event. A nil
	// store disables persistence.
	Store core.RunStore
	// Hooks receives lifecycle notifications. Defaults to an empty
	// manager.
	Hooks *HookManager
	// Logger receives structured diagnostics. Defaults to the no-op
	// logger.
	Logger logging.Logger
}

// Driver is the single execution loop shared by every strategy. Per
// iteration it gates on pause and cancellation, asks the plan's scheduler
// which steps may start, evaluates step conditions when the scheduler
// enables them, dispatches the batch to the step executor (concurrently when
// the batch exceeds one step), applies the plan's failure policy to each
// outcome, merges outputs per the scheduler's data-flow policy and persists
// the run. Retry handling lives below it in the step executor; ordering
// decisions live beside it in the schedulers.
//
// A Driver holds no per-run state and is safe for concurrent use; one
// instance drives any number of runs from independent goroutines.
type Driver struct {
	exec   StepExecutor
	store  core.RunStore
	hooks  *HookManager
	logger logging.Logger
}

// NewDriver creates a driver around the given step executor.
func NewDriver(exec StepExecutor, optFns ...func(o *DriverOptions)) *Driver {
	opts := DriverOptions{
		Hooks:  NewHookManager(),
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Hooks == nil {
		opts.Hooks = NewHookManager()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Driver{
		exec:   exec,
		store:  opts.Store,
		hooks:  opts.Hooks,
		logger: opts.Logger,
	}
}

// Drive executes the run until every step is terminal or the run is stopped
// by cancellation, a global timeout or its failure policy. The context must
// carry the run's cancel signal and global deadline; Drive observes it at
// the pause gate before every batch. Drive persists the run after every
// state-changing event and returns once the run is terminal and persisted.
func (d *Driver) Drive(ctx context.Context, run *core.Run) {
	sched, err := strategy.ForPlan(run.Plan)
	if err != nil {
		run.AddLog(core.LogLevelError, err.Error(), "", nil)
		run.MarkFailed(err.Error())
		d.persist(ctx, run)
		return
	}

	if err := run.MarkRunning(); err != nil {
		// Cancelled before the first step; the terminal state is
		// already recorded.
		d.persist(ctx, run)
		return
	}

	run.AddLog(core.LogLevelInfo, fmt.Sprintf("run started with strategy %s", run.Plan.Strategy), "", nil)
	d.logger.Debug("engine.run.start", "run_id", run.ID, "strategy", string(run.Plan.Strategy), "steps", len(run.Plan.Steps))
	d.hooks.RunStart(ctx, run)
	d.persist(ctx, run)

	d.loop(ctx, run, sched)
	d.finalize(ctx, run)

	d.hooks.RunEnd(ctx, run)
	d.persist(ctx, run)
	d.logger.Debug("engine.run.end", "run_id", run.ID, "status", string(run.CurrentStatus()))
}

func (d *Driver) loop(ctx context.Context, run *core.Run, sched strategy.Scheduler) {
	for {
		if err := run.AwaitResume(ctx); err != nil {
			return
		}
		if ctx.Err() != nil {
			return
		}
		if run.Terminal() {
			return
		}

		batch := sched.NextBatch(run)
		if len(batch) == 0 {
			d.settle(ctx, run)
			return
		}

		if sched.EvaluatesConditions() {
			batch = d.applyConditions(ctx, run, batch)
			if run.Terminal() {
				return
			}
			if len(batch) == 0 {
				// Every batch member was skipped or failed
				// without aborting; ask the scheduler again.
				d.persist(ctx, run)
				continue
			}
		}

		if d.dispatch(ctx, run, sched, batch) {
			return
		}
	}
}

// applyConditions evaluates the compiled condition of every batch member
// against the run's current context. Steps without a condition pass through;
// a false condition skips the step; an evaluation error fails the step with
// a condition error and feeds the failure policy. Returns the steps left to
// dispatch, or nil when a condition failure aborted the run.
func (d *Driver) applyConditions(ctx context.Context, run *core.Run, batch []string) []string {
	var toRun []string

	for _, id := range batch {
		expr, ok := run.Plan.CompiledCondition(id)
		if !ok {
			toRun = append(toRun, id)
			continue
		}

		pass, err := expr.Eval(run.ContextSnapshot())
		if err != nil {
			var agentID string
			if spec, ok := run.Plan.Step(id); ok {
				agentID = spec.AgentID
			}
			stepErr := &core.StepError{
				Code:    core.ErrCodeCondition,
				StepID:  id,
				AgentID: agentID,
				Message: fmt.Sprintf("condition %q: %s", expr.String(), err.Error()),
				Err:     err,
			}
			run.FailStep(id, stepErr.Message)
			run.AddLog(core.LogLevelError, fmt.Sprintf("step %s failed: %s", id, stepErr.Message), id, map[string]any{
				"code": string(core.ErrCodeCondition),
			})
			d.logger.Warn("engine.step.condition_error", "run_id", run.ID, "step_id", id, "error", err.Error())

			outcome := core.StepOutcome{StepID: id, Status: core.StepStatusFailed, Err: stepErr}
			d.hooks.StepEnd(ctx, run, outcome)
			d.hooks.Error(ctx, run, stepErr)

			if d.handleFailure(ctx, run, outcome) {
				d.persist(ctx, run)
				return nil
			}
			continue
		}

		if !pass {
			run.SkipStep(id, "condition evaluated to false")
			run.AddLog(core.LogLevelInfo, fmt.Sprintf("step %s skipped: condition evaluated to false", id), id, map[string]any{
				"condition": expr.String(),
			})
			d.logger.Debug("engine.step.condition_skip", "run_id", run.ID, "step_id", id)
			d.hooks.StepEnd(ctx, run, core.StepOutcome{StepID: id, Status: core.StepStatusSkipped})
			continue
		}

		toRun = append(toRun, id)
	}

	return toRun
}

// dispatch executes one batch. Single-step batches run inline on the driving
// goroutine; larger batches fan out to one goroutine per step and join over
// an outcome channel, processing outcomes in completion order. Returns true
// when the failure policy aborted the run.
func (d *Driver) dispatch(ctx context.Context, run *core.Run, sched strategy.Scheduler, batch []string) (abort bool) {
	d.logger.Debug("engine.batch.dispatch", "run_id", run.ID, "size", len(batch))

	if len(batch) == 1 {
		return d.collect(ctx, run, sched, d.executeStep(ctx, run, batch[0]))
	}

	outcomes := make(chan core.StepOutcome, len(batch))
	for _, id := range batch {
		go func(stepID string) {
			outcomes <- d.executeStep(ctx, run, stepID)
		}(id)
	}

	// Drain the whole batch even after an abort so in-flight steps still
	// record their outcome.
	for range batch {
		if d.collect(ctx, run, sched, <-outcomes) {
			abort = true
		}
	}
	return abort
}

func (d *Driver) executeStep(ctx context.Context, run *core.Run, stepID string) core.StepOutcome {
	d.hooks.StepStart(ctx, run, stepID)
	return d.exec.Run(ctx, run, stepID)
}

// collect folds one outcome into the run: output merging for completed
// steps, failure policy for failed ones, a persisted snapshot either way.
func (d *Driver) collect(ctx context.Context, run *core.Run, sched strategy.Scheduler, outcome core.StepOutcome) (abort bool) {
	d.hooks.StepEnd(ctx, run, outcome)

	switch {
	case outcome.Completed():
		if sched.MergeOutputs() && len(outcome.Output) > 0 {
			if err := run.MergeContext(outcome.Output); err != nil {
				d.logger.Warn("engine.context.merge_failed", "run_id", run.ID, "step_id", outcome.StepID, "error", err.Error())
			}
		}
	case outcome.Failed():
		var err error
		if outcome.Err != nil {
			err = outcome.Err
		} else {
			err = fmt.Errorf("step %s failed", outcome.StepID)
		}
		d.hooks.Error(ctx, run, err)
		abort = d.handleFailure(ctx, run, outcome)
	}

	d.persist(ctx, run)
	return abort
}

// handleFailure applies the plan's failure policy to a failed step and
// reports whether the run must abort. The retry budget is already spent by
// the time an outcome reaches this point.
func (d *Driver) handleFailure(ctx context.Context, run *core.Run, outcome core.StepOutcome) bool {
	if run.Plan.FailurePolicy == core.ContinueOnFailure {
		d.skipDependents(ctx, run, outcome.StepID)
		return false
	}

	// stop_on_failure, retry_on_failure with the budget exhausted, and
	// rollback_on_failure (reserved for compensation logic) all abort.
	message := fmt.Sprintf("step %s failed", outcome.StepID)
	if outcome.Err != nil {
		message = fmt.Sprintf("step %s failed: %s", outcome.StepID, outcome.Err.Message)
	}
	run.AddLog(core.LogLevelError, fmt.Sprintf("run failed: %s", message), outcome.StepID, nil)
	run.MarkFailed(message)
	d.logger.Warn("engine.run.failed", "run_id", run.ID, "step_id", outcome.StepID)
	return true
}

// skipDependents skips every pending step that transitively depends on the
// failed step. Condition skips do not cascade; only failures do.
func (d *Driver) skipDependents(ctx context.Context, run *core.Run, failedID string) {
	queue := append([]string(nil), run.Plan.Dependents(failedID)...)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		state, ok := run.StepSnapshot(id)
		if !ok || state.Status != core.StepStatusPending {
			continue
		}

		run.SkipStep(id, "dependency failed")
		run.AddLog(core.LogLevelWarn, fmt.Sprintf("step %s skipped: dependency failed", id), id, nil)
		d.logger.Debug("engine.step.dependency_skip", "run_id", run.ID, "step_id", id)
		d.hooks.StepEnd(ctx, run, core.StepOutcome{StepID: id, Status: core.StepStatusSkipped})
		queue = append(queue, run.Plan.Dependents(id)...)
	}
}

// settle resolves a run whose scheduler has nothing left to dispatch. Steps
// still pending at this point can never start; they are skipped before the
// run completes.
func (d *Driver) settle(ctx context.Context, run *core.Run) {
	for _, spec := range run.Plan.Steps {
		state, ok := run.StepSnapshot(spec.ID)
		if !ok || state.Status != core.StepStatusPending {
			continue
		}

		run.SkipStep(spec.ID, "dependencies never satisfied")
		run.AddLog(core.LogLevelWarn, fmt.Sprintf("step %s skipped: dependencies never satisfied", spec.ID), spec.ID, nil)
		d.hooks.StepEnd(ctx, run, core.StepOutcome{StepID: spec.ID, Status: core.StepStatusSkipped})
	}

	run.AddLog(core.LogLevelInfo, "run completed", "", map[string]any{
		"total_cost": run.CostSnapshot().Total,
	})
	run.MarkCompleted()
}

// finalize marks the run terminal when the loop was interrupted by its
// context: deadline expiry fails the run, cancellation marks it cancelled.
// Runs the loop already settled pass through untouched.
func (d *Driver) finalize(ctx context.Context, run *core.Run) {
	if run.Terminal() {
		return
	}

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			run.AddLog(core.LogLevelError, "global timeout exceeded", "", nil)
			run.MarkFailed("global timeout exceeded")
			d.hooks.Error(ctx, run, err)
		} else {
			run.AddLog(core.LogLevelInfo, "run cancelled", "", nil)
			run.MarkCancelled()
		}
		return
	}

	run.MarkCompleted()
}

// persist saves a snapshot of the run. Persistence failures are logged, not
// propagated: the authoritative state lives in memory and the next save
// writes the full snapshot again. The save context is detached from the run
// context so terminal snapshots of cancelled runs still reach the store.
func (d *Driver) persist(ctx context.Context, run *core.Run) {
	if d.store == nil {
		return
	}
	if err := d.store.Save(context.WithoutCancel(ctx), run); err != nil {
		d.logger.Error("engine.run.persist_failed", "run_id", run.ID, "error", err.Error())
	}
}
