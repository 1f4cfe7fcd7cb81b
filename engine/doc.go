// Package engine implements the execution layer of FlowMesh.
//
// The engine turns validated plans into driven runs. It bridges the gap
// between the declarative side of FlowMesh (plans, steps, strategies) and
// the imperative side (capability invocations, persistence, lifecycle
// control), providing a single place where runs are admitted, executed,
// observed and stopped.
//
// # Core Responsibilities
//
// Run Orchestration:
//   - One generic Driver loop shared by all five strategies
//   - Scheduler-decided batches dispatched to the step runner, concurrently
//     when a batch holds more than one step
//   - Failure policy application, output merging and condition evaluation
//     in exactly one place
//
// Lifecycle Management:
//   - Asynchronous and synchronous execution (Execute / ExecuteSync)
//   - Cooperative cancellation: in-flight step attempts finish, nothing new
//     starts
//   - Pause and resume between steps with immediate wake-up
//   - Ownership checks on every lifecycle and query operation
//
// Resource Control:
//   - Process-wide RunLimiter bounding concurrently executing runs
//   - Per-run global timeout as a deadline on the driving context
//   - Store persistence after every state-changing event
//
// Extensibility:
//   - Hook interface with run and step lifecycle notifications
//   - HookManager fan-out, FuncHook and LoggingHook adapters
//
// # Usage
//
// Basic setup:
//
//	registry := capability.NewRegistry()
//	// register agents and capability handlers ...
//
//	service := engine.New(registry,
//	    engine.WithStore(store.NewInMemoryStore()),
//	    engine.WithLogger(logger),
//	)
//
// Executing a plan:
//
//	run, err := service.Execute(ctx, plan, "user-1", map[string]any{"region": "eu"})
//	if err != nil {
//	    return err
//	}
//	<-run.Done()
//	fmt.Println(run.CurrentStatus())
//
// Lifecycle control:
//
//	_ = service.Pause(ctx, run.ID, "user-1")
//	_ = service.Resume(ctx, run.ID, "user-1")
//	_ = service.Cancel(ctx, run.ID, "user-1")
//
// # Error Handling
//
// The service separates admission errors from execution errors. Admission
// errors (*core.ValidationError) are returned synchronously from Execute
// before a run exists. Execution errors land on the run itself: failed
// steps carry *core.StepError detail in their state, and the run's Error
// field holds the message that terminated it. Lifecycle operations return
// core.ErrRunNotFound, core.ErrForbidden or
// *core.InvalidStateTransitionError.
package engine
