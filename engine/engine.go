package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/credential"
	"github.com/flowmesh-io/flowmesh/logging"
	"github.com/flowmesh-io/flowmesh/planspec"
	"github.com/flowmesh-io/flowmesh/runner"
	"github.com/flowmesh-io/flowmesh/store"
)

// Config defines tuning parameters for the service's operational behavior.
//
// This configuration focuses on the two knobs every deployment ends up
// setting; per-run behavior (strategy, parallelism, timeouts, retries) lives
// on the plan itself, and service dependencies are wired through functional
// options rather than this struct.
type Config struct {
	// MaxConcurrentRuns limits the number of runs executing
	// simultaneously across the process. Runs beyond the limit stay
	// pending until a slot frees. Set to 0 for unlimited (not
	// recommended).
	MaxConcurrentRuns int

	// DefaultStepTimeout bounds capability invocations for steps that do
	// not configure their own timeout.
	DefaultStepTimeout time.Duration
}

// DefaultConfig provides production-ready default configuration values.
//
// Configuration values:
//   - MaxConcurrentRuns: 10 (safe for most environments)
//   - DefaultStepTimeout: 30s (matches the step runner default)
var DefaultConfig = Config{
	MaxConcurrentRuns:  10,
	DefaultStepTimeout: runner.DefaultStepTimeout,
}

// Options configures a Service instance using the functional options
// pattern. All dependencies have in-memory defaults so a Service is usable
// for development and testing without external infrastructure; production
// deployments typically swap in a durable store.
type Options struct {
	// Config contains operational parameters for the service behavior.
	// Defaults to DefaultConfig if not specified.
	Config Config

	// Store persists runs after every state-changing event. Defaults to
	// the in-memory store.
	Store core.RunStore

	// Credentials resolves per-user connection secrets for steps that
	// reference them. Defaults to an empty in-memory provider, so steps
	// with an explicit credential selector fail until credentials are
	// registered.
	Credentials core.CredentialProvider

	// Hooks receive lifecycle notifications for every run.
	Hooks []Hook

	// Logger provides structured logging for debugging and monitoring.
	// Defaults to the no-op logger.
	Logger logging.Logger
}

// Service is the execution facade of FlowMesh. It validates plans against
// the capability provider, creates runs, drives them asynchronously through
// the Driver, and exposes the run lifecycle (cancel, pause, resume, query)
// scoped to the owning user.
//
// Core responsibilities:
//   - Plan admission: fail fast when a step references an unknown agent or
//     capability
//   - Run registry: track live runs so lifecycle operations act on the
//     executing object, not a stale snapshot
//   - Concurrency ceiling: bound simultaneously executing runs process-wide
//   - Ownership: every lifecycle and query operation verifies the caller
//     owns the run
//
// Concurrency model:
//   - One driving goroutine per run, detached from the caller's context
//   - Thread-safe registry access via RWMutex
//   - Runs queued above the concurrency limit stay pending and respect
//     cancellation while waiting
type Service struct {
	provider core.CapabilityProvider
	store    core.RunStore
	driver   *Driver
	limiter  *RunLimiter
	hooks    *HookManager
	logger   logging.Logger
	config   Config

	activeRuns map[string]*activeRun
	runsMu     sync.RWMutex
}

// activeRun pairs a live run with the cancel function of its driving
// context.
type activeRun struct {
	run    *core.Run
	cancel context.CancelFunc
}

// New creates a Service around the given capability provider.
//
// The provider is the only required dependency: it resolves the agents and
// capabilities plans bind to. Everything else defaults to in-memory
// implementations suitable for development and tests.
//
// Example:
//
//	service := engine.New(registry,
//	    engine.WithStore(badgerStore),
//	    engine.WithLogger(logger),
//	)
func New(provider core.CapabilityProvider, optFns ...func(o *Options)) *Service {
	opts := Options{
		Config:      DefaultConfig,
		Store:       store.NewInMemoryStore(),
		Credentials: credential.NewInMemoryProvider(),
		Logger:      logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Store == nil {
		opts.Store = store.NewInMemoryStore()
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	hooks := NewHookManager(opts.Hooks...)

	exec := runner.New(provider, func(o *runner.Options) {
		o.DefaultTimeout = opts.Config.DefaultStepTimeout
		o.Credentials = opts.Credentials
		o.Logger = opts.Logger
	})

	driver := NewDriver(exec, func(o *DriverOptions) {
		o.Store = opts.Store
		o.Hooks = hooks
		o.Logger = opts.Logger
	})

	return &Service{
		provider:   provider,
		store:      opts.Store,
		driver:     driver,
		limiter:    NewRunLimiter(opts.Config.MaxConcurrentRuns),
		hooks:      hooks,
		logger:     opts.Logger,
		config:     opts.Config,
		activeRuns: make(map[string]*activeRun),
	}
}

// WithStore overrides the run store.
func WithStore(s core.RunStore) func(o *Options) {
	return func(o *Options) { o.Store = s }
}

// WithCredentials overrides the credential provider.
func WithCredentials(p core.CredentialProvider) func(o *Options) {
	return func(o *Options) { o.Credentials = p }
}

// WithConfig overrides the operational configuration.
func WithConfig(cfg Config) func(o *Options) {
	return func(o *Options) { o.Config = cfg }
}

// WithHooks registers lifecycle hooks.
func WithHooks(hooks ...Hook) func(o *Options) {
	return func(o *Options) { o.Hooks = append(o.Hooks, hooks...) }
}

// WithLogger overrides the logger.
func WithLogger(l logging.Logger) func(o *Options) {
	return func(o *Options) { o.Logger = l }
}

// CreatePlan compiles a plan document into a validated, executable plan.
// Malformed documents surface as *core.ValidationError.
func (s *Service) CreatePlan(doc planspec.Document) (*core.Plan, error) {
	plan, err := doc.Plan()
	if err != nil {
		return nil, err
	}
	s.logger.Debug("engine.plan.created", "plan_id", plan.ID, "name", plan.Name, "steps", len(plan.Steps))
	return plan, nil
}

// Execute creates a run for the plan and starts driving it asynchronously.
//
// Execution fails fast with a *core.ValidationError when any step references
// an agent or capability the provider cannot resolve; nothing is persisted
// in that case. Otherwise the run is persisted pending, registered as live,
// and handed to a driving goroutine that is detached from ctx: cancelling
// the caller's context does not cancel the run. Use Cancel for that.
//
// The returned run is the live object; observe progress through its
// thread-safe accessors and wait for completion via Done.
func (s *Service) Execute(ctx context.Context, plan *core.Plan, userID string, input map[string]any) (*core.Run, error) {
	if plan == nil {
		return nil, &core.ValidationError{Field: "plan", Message: "must not be nil"}
	}

	if err := s.validateBindings(ctx, plan); err != nil {
		return nil, err
	}

	run := core.NewRun(plan, userID, input)

	if err := s.store.Save(ctx, run); err != nil {
		return nil, fmt.Errorf("persist run: %w", err)
	}

	base := context.WithoutCancel(ctx)
	var runCtx context.Context
	var cancel context.CancelFunc
	if plan.GlobalTimeout > 0 {
		runCtx, cancel = context.WithTimeout(base, plan.GlobalTimeout)
	} else {
		runCtx, cancel = context.WithCancel(base)
	}

	s.runsMu.Lock()
	s.activeRuns[run.ID] = &activeRun{run: run, cancel: cancel}
	s.runsMu.Unlock()

	s.logger.Debug("engine.run.accepted", "run_id", run.ID, "user_id", userID, "strategy", string(plan.Strategy))

	go func() {
		defer func() {
			cancel()
			s.runsMu.Lock()
			delete(s.activeRuns, run.ID)
			s.runsMu.Unlock()
		}()

		if err := s.limiter.Acquire(runCtx); err != nil {
			s.abandonQueued(runCtx, run, err)
			return
		}
		defer s.limiter.Release()

		s.driver.Drive(runCtx, run)
	}()

	return run, nil
}

// ExecuteSync executes the plan and blocks until the run reaches a terminal
// status or ctx is done. On ctx expiry the run keeps executing in the
// background and the context error is returned alongside the live run.
func (s *Service) ExecuteSync(ctx context.Context, plan *core.Plan, userID string, input map[string]any) (*core.Run, error) {
	run, err := s.Execute(ctx, plan, userID, input)
	if err != nil {
		return nil, err
	}

	select {
	case <-run.Done():
		return run, nil
	case <-ctx.Done():
		return run, ctx.Err()
	}
}

// Cancel stops a run on the caller's behalf. The transition to cancelled is
// immediate; in-flight step attempts finish cooperatively and their
// outcomes are still recorded. Cancelling a terminal run returns
// *InvalidStateTransitionError.
func (s *Service) Cancel(ctx context.Context, runID, userID string) error {
	if a, ok := s.active(runID); ok {
		if a.run.UserID != userID {
			return core.ErrForbidden
		}
		if status := a.run.CurrentStatus(); status.Terminal() {
			return &core.InvalidStateTransitionError{RunID: runID, From: status, Op: "cancel"}
		}

		a.run.AddLog(core.LogLevelInfo, "cancellation requested", "", nil)
		a.run.MarkCancelled()
		a.cancel()
		s.persist(ctx, a.run)
		s.logger.Debug("engine.run.cancel", "run_id", runID)
		return nil
	}

	run, err := s.store.FindByID(ctx, runID)
	if err != nil {
		return err
	}
	if run.UserID != userID {
		return core.ErrForbidden
	}
	if run.Status.Terminal() {
		return &core.InvalidStateTransitionError{RunID: runID, From: run.Status, Op: "cancel"}
	}

	// Recorded as live but no goroutine owns it, for example after a
	// process restart. Honor the cancellation in the store.
	run.AddLog(core.LogLevelInfo, "cancellation requested", "", nil)
	run.MarkCancelled()
	s.persist(ctx, run)
	return nil
}

// Pause suspends a running run between steps. In-flight step attempts
// finish first; the driving goroutine then blocks until Resume or Cancel.
// Pausing an already paused run is a no-op.
func (s *Service) Pause(ctx context.Context, runID, userID string) error {
	a, ok := s.active(runID)
	if !ok {
		run, err := s.store.FindByID(ctx, runID)
		if err != nil {
			return err
		}
		if run.UserID != userID {
			return core.ErrForbidden
		}
		return &core.InvalidStateTransitionError{RunID: runID, From: run.Status, Op: "pause"}
	}
	if a.run.UserID != userID {
		return core.ErrForbidden
	}

	already := a.run.CurrentStatus() == core.RunStatusPaused
	if err := a.run.Pause(); err != nil {
		return err
	}
	if !already {
		a.run.AddLog(core.LogLevelInfo, "run paused", "", nil)
		s.persist(ctx, a.run)
		s.logger.Debug("engine.run.pause", "run_id", runID)
	}
	return nil
}

// Resume wakes a paused run immediately. Resuming an already running run is
// a no-op.
func (s *Service) Resume(ctx context.Context, runID, userID string) error {
	a, ok := s.active(runID)
	if !ok {
		run, err := s.store.FindByID(ctx, runID)
		if err != nil {
			return err
		}
		if run.UserID != userID {
			return core.ErrForbidden
		}
		return &core.InvalidStateTransitionError{RunID: runID, From: run.Status, Op: "resume"}
	}
	if a.run.UserID != userID {
		return core.ErrForbidden
	}

	already := a.run.CurrentStatus() == core.RunStatusRunning
	if err := a.run.Resume(); err != nil {
		return err
	}
	if !already {
		a.run.AddLog(core.LogLevelInfo, "run resumed", "", nil)
		s.persist(ctx, a.run)
		s.logger.Debug("engine.run.resume", "run_id", runID)
	}
	return nil
}

// Get returns the caller's run. Live runs are returned directly so callers
// can watch progress through the run's thread-safe accessors and Done
// channel; finished runs come from the store as snapshots.
func (s *Service) Get(ctx context.Context, runID, userID string) (*core.Run, error) {
	if a, ok := s.active(runID); ok {
		if a.run.UserID != userID {
			return nil, core.ErrForbidden
		}
		return a.run, nil
	}

	run, err := s.store.FindByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.UserID != userID {
		return nil, core.ErrForbidden
	}
	return run, nil
}

// List returns the caller's runs, newest first, narrowed by filter.
func (s *Service) List(ctx context.Context, userID string, filter core.RunFilter) ([]*core.Run, error) {
	return s.store.FindByUser(ctx, userID, filter)
}

// CleanupOlderThan removes terminal runs whose last update is older than age
// and returns the number of removed records.
func (s *Service) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	removed, err := s.store.DeleteOlderThan(ctx, age)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		s.logger.Info("engine.retention.cleanup", "removed", removed)
	}
	return removed, nil
}

// validateBindings fails fast when any step references an agent or a
// capability the provider cannot resolve, so misconfigured plans are
// rejected before a run exists.
func (s *Service) validateBindings(ctx context.Context, plan *core.Plan) error {
	for _, spec := range plan.Steps {
		if _, err := s.provider.AgentInfo(ctx, spec.AgentID); err != nil {
			return &core.ValidationError{
				Field:   "steps",
				Value:   spec.ID,
				Message: fmt.Sprintf("agent %q not found", spec.AgentID),
			}
		}
		if !s.provider.HasCapability(ctx, spec.AgentID, spec.Capability) {
			return &core.ValidationError{
				Field:   "steps",
				Value:   spec.ID,
				Message: fmt.Sprintf("agent %q does not support capability %q", spec.AgentID, spec.Capability),
			}
		}
	}
	return nil
}

// abandonQueued resolves a run whose limiter wait ended before a slot
// freed: the run was cancelled or hit its global timeout while still
// queued.
func (s *Service) abandonQueued(ctx context.Context, run *core.Run, err error) {
	if !run.Terminal() {
		if errors.Is(err, context.DeadlineExceeded) {
			run.AddLog(core.LogLevelError, "global timeout exceeded while queued", "", nil)
			run.MarkFailed("global timeout exceeded")
		} else {
			run.AddLog(core.LogLevelInfo, "run cancelled while queued", "", nil)
			run.MarkCancelled()
		}
	}
	s.persist(ctx, run)
	s.logger.Debug("engine.run.abandoned", "run_id", run.ID, "status", string(run.CurrentStatus()))
}

func (s *Service) active(runID string) (*activeRun, bool) {
	s.runsMu.RLock()
	defer s.runsMu.RUnlock()
	a, ok := s.activeRuns[runID]
	return a, ok
}

// persist saves a snapshot of the run with the cancel signal stripped, so
// terminal snapshots of cancelled runs still reach the store. Failures are
// logged, not propagated; the in-memory state stays authoritative.
func (s *Service) persist(ctx context.Context, run *core.Run) {
	if err := s.store.Save(context.WithoutCancel(ctx), run); err != nil {
		s.logger.Error("engine.run.persist_failed", "run_id", run.ID, "error", err.Error())
	}
}
