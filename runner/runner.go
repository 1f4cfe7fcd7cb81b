package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/internal/util"
	"github.com/flowmesh-io/flowmesh/logging"
)

// DefaultStepTimeout bounds a single capability invocation when the step
// does not configure its own timeout.
const DefaultStepTimeout = 30 * time.Second

// Options holds dependency + configuration overrides passed to New().
type Options struct {
	// DefaultTimeout bounds invocations of steps without an own timeout.
	DefaultTimeout time.Duration
	// Credentials resolves per-user secrets for capability invocations.
	// A nil provider skips credential resolution entirely.
	Credentials core.CredentialProvider
	// Logger receives debug output for step execution.
	Logger logging.Logger
}

// StepRunner executes one step of a run at a time. All step state mutations
// go through the owning Run's methods; the runner itself is stateless and
// safe for concurrent use across steps and runs.
type StepRunner struct {
	provider       core.CapabilityProvider
	credentials    core.CredentialProvider
	defaultTimeout time.Duration
	logger         logging.Logger
}

// New constructs a StepRunner over the given capability provider.
func New(provider core.CapabilityProvider, optFns ...func(o *Options)) *StepRunner {
	opts := Options{
		DefaultTimeout: DefaultStepTimeout,
		Logger:         logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.DefaultTimeout <= 0 {
		opts.DefaultTimeout = DefaultStepTimeout
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &StepRunner{
		provider:       provider,
		credentials:    opts.Credentials,
		defaultTimeout: opts.DefaultTimeout,
		logger:         opts.Logger,
	}
}

// Run drives the identified step to a terminal status and reports the
// outcome. Retryable failures (timeouts, capability execution errors) are
// re-attempted up to the step's retry budget; configuration failures (agent
// or capability not found, credential errors) fail immediately.
//
// The passed context is the run-level context: it interrupts retry waits on
// cancellation, but the capability invocation itself is detached from it and
// bounded only by the step timeout, so pausing or cancelling a run lets the
// in-flight attempt finish.
func (r *StepRunner) Run(ctx context.Context, run *core.Run, stepID string) core.StepOutcome {
	spec, ok := run.Plan.Step(stepID)
	if !ok {
		// Unreachable through plan validation; fail the step rather than panic.
		stepErr := core.NewStepError(core.ErrCodeCapabilityExecution, stepID, "", "step not found in plan")
		run.FailStep(stepID, stepErr.Message)
		return core.StepOutcome{StepID: stepID, Status: core.StepStatusFailed, Err: stepErr}
	}

	budget := r.attemptBudget(spec, run.Plan.FailurePolicy)

	for {
		attempt := run.BeginStepAttempt(spec.ID)
		run.AddLog(core.LogLevelInfo, fmt.Sprintf("step %s started", spec.ID), spec.ID, map[string]any{
			"attempt":    attempt,
			"agent_id":   spec.AgentID,
			"capability": spec.Capability,
		})
		r.logger.Debug("runner.step.start", "step_id", spec.ID, "agent_id", spec.AgentID, "attempt", attempt)

		output, stepErr := r.invoke(ctx, run, spec)
		if stepErr == nil {
			run.CompleteStep(spec.ID, output)

			state, _ := run.StepSnapshot(spec.ID)
			run.AddLog(core.LogLevelInfo, fmt.Sprintf("step %s completed", spec.ID), spec.ID, map[string]any{
				"attempts":    state.Attempts,
				"duration_ms": state.Duration().Milliseconds(),
			})
			r.logger.Debug("runner.step.success", "step_id", spec.ID, "attempts", state.Attempts)

			return core.StepOutcome{
				StepID:   spec.ID,
				Status:   core.StepStatusCompleted,
				Output:   output,
				Attempts: state.Attempts,
			}
		}

		run.FailStep(spec.ID, stepErr.Message)
		run.AddLog(core.LogLevelError, fmt.Sprintf("step %s failed: %s", spec.ID, stepErr.Message), spec.ID, map[string]any{
			"attempt": attempt,
			"code":    string(stepErr.Code),
		})
		r.logger.Warn("runner.step.failed", "step_id", spec.ID, "code", string(stepErr.Code), "error", stepErr.Message)

		if !stepErr.Retryable() || attempt >= budget {
			return core.StepOutcome{
				StepID:   spec.ID,
				Status:   core.StepStatusFailed,
				Err:      stepErr,
				Attempts: attempt,
			}
		}

		run.MarkStepRetrying(spec.ID)
		run.AddLog(core.LogLevelWarn, fmt.Sprintf("step %s retrying", spec.ID), spec.ID, map[string]any{
			"attempt": attempt,
			"budget":  budget,
		})

		if spec.RetryDelay > 0 {
			select {
			case <-ctx.Done():
				// The run was cancelled or timed out while waiting; the
				// recorded failure stands as the final outcome.
				return core.StepOutcome{
					StepID:   spec.ID,
					Status:   core.StepStatusFailed,
					Err:      stepErr,
					Attempts: attempt,
				}
			case <-time.After(spec.RetryDelay):
			}
		} else if ctx.Err() != nil {
			return core.StepOutcome{
				StepID:   spec.ID,
				Status:   core.StepStatusFailed,
				Err:      stepErr,
				Attempts: attempt,
			}
		}
	}
}

// attemptBudget returns the total number of attempts the step may consume.
// The retry_on_failure policy guarantees at least one retry beyond the
// step's own configuration.
func (r *StepRunner) attemptBudget(spec *core.StepSpec, policy core.FailurePolicy) int {
	retries := spec.RetryCount
	if retries < 0 {
		retries = 0
	}
	if policy == core.RetryOnFailure && retries < 1 {
		retries = 1
	}
	return retries + 1
}

// invoke performs one capability invocation attempt for the step.
func (r *StepRunner) invoke(ctx context.Context, run *core.Run, spec *core.StepSpec) (map[string]any, *core.StepError) {
	info, err := r.provider.AgentInfo(ctx, spec.AgentID)
	if err != nil {
		return nil, &core.StepError{
			Code:    core.ErrCodeAgentNotFound,
			StepID:  spec.ID,
			AgentID: spec.AgentID,
			Message: fmt.Sprintf("agent %q not found", spec.AgentID),
			Err:     err,
		}
	}

	if !r.provider.HasCapability(ctx, spec.AgentID, spec.Capability) {
		return nil, core.NewStepError(
			core.ErrCodeCapabilityNotSupported,
			spec.ID,
			spec.AgentID,
			fmt.Sprintf("agent %q does not support capability %q", spec.AgentID, spec.Capability),
		)
	}

	var creds core.Credentials
	if r.credentials != nil {
		creds, err = r.credentials.Resolve(ctx, run.UserID, info.Provider, spec.CredentialID)
		if err != nil {
			// Steps without an explicit credential id run without
			// credentials when the user has no default for the provider.
			if spec.CredentialID == "" && errors.Is(err, core.ErrCredentialNotFound) {
				creds = nil
			} else {
				return nil, &core.StepError{
					Code:    core.ErrCodeCredential,
					StepID:  spec.ID,
					AgentID: spec.AgentID,
					Message: fmt.Sprintf("resolve credential for provider %q: %v", info.Provider, err),
					Err:     err,
				}
			}
		}
	}

	input := util.RenderInput(spec.Input, run.ContextSnapshot())

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	// Detached from the run context: pause and cancel let the attempt
	// finish, the step timeout still bounds the call.
	invokeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	res, err := r.provider.Invoke(invokeCtx, core.InvocationRequest{
		AgentID:      spec.AgentID,
		Capability:   spec.Capability,
		Input:        input,
		UserID:       run.UserID,
		CredentialID: spec.CredentialID,
		Credentials:  creds,
	})

	switch {
	case err != nil && errors.Is(err, context.DeadlineExceeded):
		return nil, &core.StepError{
			Code:    core.ErrCodeStepTimeout,
			StepID:  spec.ID,
			AgentID: spec.AgentID,
			Message: fmt.Sprintf("step timed out after %s", timeout),
			Err:     err,
		}
	case err != nil:
		return nil, &core.StepError{
			Code:    core.ErrCodeCapabilityExecution,
			StepID:  spec.ID,
			AgentID: spec.AgentID,
			Message: err.Error(),
			Err:     err,
		}
	case !res.Success:
		message := res.ErrorMessage
		if message == "" {
			message = "capability reported failure"
		}
		return nil, core.NewStepError(core.ErrCodeCapabilityExecution, spec.ID, spec.AgentID, message)
	}

	run.ChargeCost(spec.AgentID, spec.ID, info.CostPerCall)

	return res.Data, nil
}
