// Package runner implements single-step execution for FlowMesh.
//
// The StepRunner drives exactly one step of a run to a terminal status:
// it resolves the step's agent and capability, resolves credentials, renders
// {{variable}} placeholders from the run context into the step input,
// invokes the capability under the step's timeout and walks the
// failed -> retrying -> running cycle until the retry budget is exhausted.
//
// Everything above the single-step level (scheduling order, concurrency,
// failure policy, context merging, persistence) belongs to the engine's
// driver. Keeping the runner step-scoped means every strategy shares one
// retry and timeout implementation.
//
// # Responsibilities (abridged)
//   - Capability and credential resolution with typed configuration errors
//   - Input templating against the run's execution context
//   - Bounded invocation under the step timeout, detached from run
//     cancellation so pause and cancel let the in-flight attempt finish
//   - Retry cycle with context-aware delays
//   - Step-level execution log entries and cost charging
//
// See runner.go for the operational implementation details.
package runner
