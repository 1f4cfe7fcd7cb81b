// Package flowmesh provides a high-level façade over the execution engine and
// its service abstractions (capability registry, credentials, run stores &
// logging) enabling rapid construction of multi‑agent workflow systems. Most
// applications interact with this package by:
//  1. Creating a FlowMesh via New() (optionally overriding default in‑memory services)
//  2. Registering agents and one handler per capability
//  3. Compiling plan documents (CreatePlan, CreatePlanFromYAML) and executing
//     them asynchronously (Execute) or synchronously (ExecuteSync)
//
// The façade delegates orchestration to engine.Service while keeping setup and
// usage ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply a durable run store
// and a structured logger.
package flowmesh

import (
	"context"
	"time"

	"github.com/flowmesh-io/flowmesh/capability"
	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/credential"
	"github.com/flowmesh-io/flowmesh/engine"
	"github.com/flowmesh-io/flowmesh/logging"
	"github.com/flowmesh-io/flowmesh/planspec"
	"github.com/flowmesh-io/flowmesh/store"
)

// Options configures the FlowMesh instance.
type Options struct {
	// Engine configuration (concurrency ceiling, default step timeout)
	EngineConfig engine.Config

	// Stores (defaults to in-memory implementations if not provided)
	RunStore    core.RunStore
	Credentials core.CredentialProvider

	// Hooks receive run lifecycle notifications.
	Hooks []engine.Hook

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// FlowMesh is the high-level façade aggregating the capability registry and the
// execution service.
type FlowMesh struct {
	opts     Options
	registry *capability.Registry
	service  *engine.Service
}

// New creates a new FlowMesh instance with optional overrides. Any unset service
// is initialized with an in-memory implementation.
func New(optFns ...func(o *Options)) *FlowMesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		RunStore:     store.NewInMemoryStore(),
		Credentials:  credential.NewInMemoryProvider(),
		Logger:       logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	registry := capability.NewRegistry(func(o *capability.RegistryOptions) {
		o.Logger = opts.Logger
	})

	service := engine.New(registry,
		engine.WithConfig(opts.EngineConfig),
		engine.WithStore(opts.RunStore),
		engine.WithCredentials(opts.Credentials),
		engine.WithHooks(opts.Hooks...),
		engine.WithLogger(opts.Logger),
	)

	return &FlowMesh{opts: opts, registry: registry, service: service}
}

// RegisterAgent adds an agent to the underlying capability registry.
func (m *FlowMesh) RegisterAgent(info core.AgentInfo) error {
	return m.registry.Register(info)
}

// RegisterCapability attaches a handler for a named capability of a registered
// agent.
func (m *FlowMesh) RegisterCapability(agentID, capability string, h capability.Handler) error {
	return m.registry.RegisterCapability(agentID, capability, h)
}

// Registry exposes the underlying capability registry for advanced wiring.
func (m *FlowMesh) Registry() *capability.Registry { return m.registry }

// CreatePlan compiles a declarative plan document into a validated plan.
func (m *FlowMesh) CreatePlan(doc planspec.Document) (*core.Plan, error) {
	return m.service.CreatePlan(doc)
}

// CreatePlanFromYAML parses a YAML plan document and compiles it.
func (m *FlowMesh) CreatePlanFromYAML(data []byte) (*core.Plan, error) {
	doc, err := planspec.ParseYAML(data)
	if err != nil {
		return nil, err
	}
	return m.service.CreatePlan(doc)
}

// CreatePlanFromJSON parses a JSON plan document and compiles it.
func (m *FlowMesh) CreatePlanFromJSON(data []byte) (*core.Plan, error) {
	doc, err := planspec.ParseJSON(data)
	if err != nil {
		return nil, err
	}
	return m.service.CreatePlan(doc)
}

// Execute starts an asynchronous run of the plan on behalf of the user. The
// returned run is live; watch it through its accessors and Done channel.
func (m *FlowMesh) Execute(ctx context.Context, plan *core.Plan, userID string, input map[string]any) (*core.Run, error) {
	return m.service.Execute(ctx, plan, userID, input)
}

// ExecuteSync is a synchronous helper that executes the plan and blocks until
// the run reaches a terminal status or ctx is done.
func (m *FlowMesh) ExecuteSync(ctx context.Context, plan *core.Plan, userID string, input map[string]any) (*core.Run, error) {
	return m.service.ExecuteSync(ctx, plan, userID, input)
}

// Cancel stops the user's run.
func (m *FlowMesh) Cancel(ctx context.Context, runID, userID string) error {
	return m.service.Cancel(ctx, runID, userID)
}

// Pause suspends the user's run between steps.
func (m *FlowMesh) Pause(ctx context.Context, runID, userID string) error {
	return m.service.Pause(ctx, runID, userID)
}

// Resume wakes the user's paused run.
func (m *FlowMesh) Resume(ctx context.Context, runID, userID string) error {
	return m.service.Resume(ctx, runID, userID)
}

// Get returns the user's run.
func (m *FlowMesh) Get(ctx context.Context, runID, userID string) (*core.Run, error) {
	return m.service.Get(ctx, runID, userID)
}

// List returns the user's runs, newest first, narrowed by filter.
func (m *FlowMesh) List(ctx context.Context, userID string, filter core.RunFilter) ([]*core.Run, error) {
	return m.service.List(ctx, userID, filter)
}

// CleanupOlderThan removes terminal runs whose last update is older than age.
func (m *FlowMesh) CleanupOlderThan(ctx context.Context, age time.Duration) (int, error) {
	return m.service.CleanupOlderThan(ctx, age)
}
