package engine

import (
	"context"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/logging"
)

// Hook receives notifications at run and step lifecycle boundaries.
//
// Hooks provide a clean way to attach cross-cutting behavior (metrics,
// auditing, progress reporting) without touching the driver. They are invoked
// synchronously from the driving goroutine, so implementations should be:
//   - Fast: a slow hook delays the run it observes
//   - Safe: hooks must not panic, and must not mutate the run
//   - Concurrent: one hook instance may observe many runs at once
//
// Hooks are observational and cannot veto execution; a step or run that a
// hook dislikes still proceeds. Use plan validation for admission control.
type Hook interface {
	// OnRunStart fires after the run transitions to running, before the
	// first step is scheduled.
	OnRunStart(ctx context.Context, run *core.Run)

	// OnRunEnd fires after the run reaches a terminal status.
	OnRunEnd(ctx context.Context, run *core.Run)

	// OnStepStart fires before a step is handed to the step runner.
	OnStepStart(ctx context.Context, run *core.Run, stepID string)

	// OnStepEnd fires after a step reaches a terminal status, including
	// steps skipped by a false condition or by failure handling.
	OnStepEnd(ctx context.Context, run *core.Run, outcome core.StepOutcome)

	// OnError fires for every step failure surfaced after retries and for
	// run-level failures such as a global timeout.
	OnError(ctx context.Context, run *core.Run, err error)
}

// FuncHook adapts plain functions into a Hook. Nil fields are skipped, so a
// caller interested in a single lifecycle point sets just that field.
//
// Example:
//
//	hook := &engine.FuncHook{
//	    StepEnd: func(ctx context.Context, run *core.Run, outcome core.StepOutcome) {
//	        fmt.Printf("%s -> %s\n", outcome.StepID, outcome.Status)
//	    },
//	}
type FuncHook struct {
	RunStart  func(ctx context.Context, run *core.Run)
	RunEnd    func(ctx context.Context, run *core.Run)
	StepStart func(ctx context.Context, run *core.Run, stepID string)
	StepEnd   func(ctx context.Context, run *core.Run, outcome core.StepOutcome)
	Error     func(ctx context.Context, run *core.Run, err error)
}

// OnRunStart implements Hook.
func (h *FuncHook) OnRunStart(ctx context.Context, run *core.Run) {
	if h.RunStart != nil {
		h.RunStart(ctx, run)
	}
}

// OnRunEnd implements Hook.
func (h *FuncHook) OnRunEnd(ctx context.Context, run *core.Run) {
	if h.RunEnd != nil {
		h.RunEnd(ctx, run)
	}
}

// OnStepStart implements Hook.
func (h *FuncHook) OnStepStart(ctx context.Context, run *core.Run, stepID string) {
	if h.StepStart != nil {
		h.StepStart(ctx, run, stepID)
	}
}

// OnStepEnd implements Hook.
func (h *FuncHook) OnStepEnd(ctx context.Context, run *core.Run, outcome core.StepOutcome) {
	if h.StepEnd != nil {
		h.StepEnd(ctx, run, outcome)
	}
}

// OnError implements Hook.
func (h *FuncHook) OnError(ctx context.Context, run *core.Run, err error) {
	if h.Error != nil {
		h.Error(ctx, run, err)
	}
}

// HookManager fans lifecycle notifications out to every registered hook in
// registration order.
//
// Registration is not thread-safe; register all hooks before executing runs.
// Once registration is complete, notification fan-out is safe for concurrent
// use from many driving goroutines.
type HookManager struct {
	hooks []Hook
}

// NewHookManager creates a manager with the given hooks pre-registered.
func NewHookManager(hooks ...Hook) *HookManager {
	return &HookManager{hooks: hooks}
}

// Register appends a hook to the fan-out list.
func (m *HookManager) Register(h Hook) {
	m.hooks = append(m.hooks, h)
}

// RunStart notifies all hooks that a run started.
func (m *HookManager) RunStart(ctx context.Context, run *core.Run) {
	for _, h := range m.hooks {
		h.OnRunStart(ctx, run)
	}
}

// RunEnd notifies all hooks that a run reached a terminal status.
func (m *HookManager) RunEnd(ctx context.Context, run *core.Run) {
	for _, h := range m.hooks {
		h.OnRunEnd(ctx, run)
	}
}

// StepStart notifies all hooks that a step is about to execute.
func (m *HookManager) StepStart(ctx context.Context, run *core.Run, stepID string) {
	for _, h := range m.hooks {
		h.OnStepStart(ctx, run, stepID)
	}
}

// StepEnd notifies all hooks that a step reached a terminal status.
func (m *HookManager) StepEnd(ctx context.Context, run *core.Run, outcome core.StepOutcome) {
	for _, h := range m.hooks {
		h.OnStepEnd(ctx, run, outcome)
	}
}

// Error notifies all hooks of a surfaced execution error.
func (m *HookManager) Error(ctx context.Context, run *core.Run, err error) {
	for _, h := range m.hooks {
		h.OnError(ctx, run, err)
	}
}

// LoggingHook writes every lifecycle notification to a logging.Logger. It is
// the ready-made hook for tracing run progress during development.
type LoggingHook struct {
	logger logging.Logger
}

// NewLoggingHook creates a logging hook. A nil logger falls back to the no-op
// logger.
func NewLoggingHook(logger logging.Logger) *LoggingHook {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingHook{logger: logger}
}

// OnRunStart implements Hook.
func (h *LoggingHook) OnRunStart(_ context.Context, run *core.Run) {
	h.logger.Info("run started",
		"run_id", run.ID,
		"plan", run.Plan.Name,
		"strategy", string(run.Plan.Strategy),
		"steps", len(run.Plan.Steps),
	)
}

// OnRunEnd implements Hook.
func (h *LoggingHook) OnRunEnd(_ context.Context, run *core.Run) {
	h.logger.Info("run finished",
		"run_id", run.ID,
		"status", string(run.CurrentStatus()),
		"total_cost", run.CostSnapshot().Total,
	)
}

// OnStepStart implements Hook.
func (h *LoggingHook) OnStepStart(_ context.Context, run *core.Run, stepID string) {
	h.logger.Debug("step started", "run_id", run.ID, "step_id", stepID)
}

// OnStepEnd implements Hook.
func (h *LoggingHook) OnStepEnd(_ context.Context, run *core.Run, outcome core.StepOutcome) {
	h.logger.Debug("step finished",
		"run_id", run.ID,
		"step_id", outcome.StepID,
		"status", string(outcome.Status),
		"attempts", outcome.Attempts,
	)
}

// OnError implements Hook.
func (h *LoggingHook) OnError(_ context.Context, run *core.Run, err error) {
	h.logger.Warn("run error", "run_id", run.ID, "error", err.Error())
}
