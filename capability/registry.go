// Package capability implements the in-process agent capability registry that
// backs the engine's CapabilityProvider boundary. Agents register their
// identifying metadata plus one handler per capability; the engine resolves
// (agent, capability) pairs against the registry and invokes handlers with
// the rendered step input.
package capability

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowmesh-io/flowmesh/core"
	"github.com/flowmesh-io/flowmesh/logging"
)

// Handler executes one capability invocation. The input map is the rendered
// step input; resolved credentials arrive on the request and must never be
// persisted by the handler.
//
// A returned error marks the invocation failed; the engine converts it into
// a step failure carrying the error message. Handlers should respect context
// cancellation since every invocation is bounded by the step's timeout.
type Handler func(ctx context.Context, req core.InvocationRequest) (map[string]any, error)

type registeredAgent struct {
	info     core.AgentInfo
	handlers map[string]Handler
}

// Registry is an in-memory core.CapabilityProvider.
//
// Responsibilities:
//   - Holds agent metadata (provider, per-call cost) for billing and
//     credential scoping
//   - Routes (agent, capability) pairs to registered handlers
//   - Bounds every handler call with the caller's context, converting
//     deadline expiry into the uniform timeout error path
//
// Concurrency:
//
//	Registration and invocation may be interleaved freely; the registry is
//	safe for concurrent use by multiple goroutines.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*registeredAgent
	logger logging.Logger
}

// RegistryOptions holds configuration for a Registry.
type RegistryOptions struct {
	// Logger receives debug output for registration and invocation. A nil
	// logger disables output.
	Logger logging.Logger
}

// NewRegistry creates an empty capability registry.
func NewRegistry(optFns ...func(o *RegistryOptions)) *Registry {
	opts := RegistryOptions{Logger: logging.NoOpLogger{}}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &Registry{
		agents: map[string]*registeredAgent{},
		logger: opts.Logger,
	}
}

// Register adds an agent to the registry. The Capabilities field of info is
// ignored; it is derived from subsequent RegisterCapability calls.
func (r *Registry) Register(info core.AgentInfo) error {
	if info.AgentID == "" {
		return fmt.Errorf("agent id must not be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.agents[info.AgentID]; exists {
		return fmt.Errorf("agent %q already registered", info.AgentID)
	}

	info.Capabilities = nil
	r.agents[info.AgentID] = &registeredAgent{info: info, handlers: map[string]Handler{}}
	r.logger.Debug("capability.registry.agent_registered", "agent_id", info.AgentID, "provider", info.Provider)

	return nil
}

// RegisterCapability attaches a handler for a named capability of a
// previously registered agent.
func (r *Registry) RegisterCapability(agentID, capability string, h Handler) error {
	if capability == "" {
		return fmt.Errorf("capability name must not be empty")
	}
	if h == nil {
		return fmt.Errorf("handler must not be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return fmt.Errorf("agent %q not registered", agentID)
	}
	if _, exists := agent.handlers[capability]; exists {
		return fmt.Errorf("capability %q already registered for agent %q", capability, agentID)
	}

	agent.handlers[capability] = h
	agent.info.Capabilities = append(agent.info.Capabilities, capability)
	r.logger.Debug("capability.registry.capability_registered", "agent_id", agentID, "capability", capability)

	return nil
}

// HasCapability reports whether the agent exists and exposes the capability.
func (r *Registry) HasCapability(_ context.Context, agentID, capability string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return false
	}
	_, ok = agent.handlers[capability]
	return ok
}

// AgentInfo returns a copy of the agent's metadata.
func (r *Registry) AgentInfo(_ context.Context, agentID string) (*core.AgentInfo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agent, ok := r.agents[agentID]
	if !ok {
		return nil, fmt.Errorf("agent %q not registered", agentID)
	}

	info := agent.info
	info.Capabilities = append([]string(nil), agent.info.Capabilities...)
	return &info, nil
}

// Agents returns the metadata of all registered agents.
func (r *Registry) Agents() []core.AgentInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.AgentInfo, 0, len(r.agents))
	for _, agent := range r.agents {
		info := agent.info
		info.Capabilities = append([]string(nil), agent.info.Capabilities...)
		out = append(out, info)
	}
	return out
}

// Invoke runs the handler registered for the request's (agent, capability)
// pair. Handler errors become a failed InvocationResult rather than an error
// return; the error return is reserved for routing problems and context
// expiry, which the engine maps onto its timeout handling.
func (r *Registry) Invoke(ctx context.Context, req core.InvocationRequest) (*core.InvocationResult, error) {
	r.mu.RLock()
	agent, ok := r.agents[req.AgentID]
	var h Handler
	if ok {
		h = agent.handlers[req.Capability]
	}
	r.mu.RUnlock()

	if h == nil {
		return nil, fmt.Errorf("no handler for agent %q capability %q", req.AgentID, req.Capability)
	}

	r.logger.Debug("capability.invoke.start", "agent_id", req.AgentID, "capability", req.Capability)
	start := time.Now()

	type reply struct {
		data map[string]any
		err  error
	}
	done := make(chan reply, 1)

	go func() {
		data, err := h(ctx, req)
		done <- reply{data: data, err: err}
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("capability.invoke.interrupted", "agent_id", req.AgentID, "capability", req.Capability, "error", ctx.Err().Error())
		return nil, ctx.Err()

	case rep := <-done:
		elapsed := time.Since(start)
		if rep.err != nil {
			if errors.Is(rep.err, context.Canceled) || errors.Is(rep.err, context.DeadlineExceeded) {
				r.logger.Warn("capability.invoke.interrupted", "agent_id", req.AgentID, "capability", req.Capability, "error", rep.err.Error())
				return nil, rep.err
			}
			r.logger.Error("capability.invoke.failed", "agent_id", req.AgentID, "capability", req.Capability, "error", rep.err.Error())
			return &core.InvocationResult{
				Success:       false,
				ErrorMessage:  rep.err.Error(),
				ExecutionTime: elapsed,
			}, nil
		}

		r.logger.Debug("capability.invoke.success", "agent_id", req.AgentID, "capability", req.Capability, "duration_ms", elapsed.Milliseconds())
		return &core.InvocationResult{
			Success:       true,
			Data:          rep.data,
			ExecutionTime: elapsed,
		}, nil
	}
}
