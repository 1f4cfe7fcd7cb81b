package core

import (
	"context"
	"time"
)

// AgentInfo carries identifying and billing details about a registered agent.
type AgentInfo struct {
	// AgentID is the stable identifier steps bind to.
	AgentID string `json:"agent_id"`
	// Name is the human-readable agent name.
	Name string `json:"name"`
	// Provider names the upstream service the agent connects to, used to
	// scope credential resolution.
	Provider string `json:"provider"`
	// Capabilities lists the capability names the agent exposes.
	Capabilities []string `json:"capabilities,omitempty"`
	// CostPerCall is charged to the run's cost ledger for every
	// successful invocation.
	CostPerCall int `json:"cost_per_call"`
}

// InvocationRequest is the engine's call into a capability provider for one
// step attempt.
type InvocationRequest struct {
	// AgentID and Capability select the capability to invoke.
	AgentID    string `json:"agent_id"`
	Capability string `json:"capability_name"`
	// Input is the rendered step input payload.
	Input map[string]any `json:"input_data,omitempty"`
	// UserID identifies the tenant on whose behalf the call is made.
	UserID string `json:"user_id"`
	// CredentialID is the step's credential selector, when any.
	CredentialID string `json:"credential_id,omitempty"`
	// Credentials holds the resolved secrets. Never logged or persisted.
	Credentials Credentials `json:"-"`
}

// InvocationResult is a capability provider's typed success/failure report.
// A non-success result, a returned error and an invocation timeout are all
// treated uniformly as a step failure by the engine.
type InvocationResult struct {
	// Success reports whether the capability call succeeded.
	Success bool `json:"success"`
	// Data is the structured output of a successful call.
	Data map[string]any `json:"data,omitempty"`
	// ErrorMessage carries the human-readable failure description.
	ErrorMessage string `json:"error_message,omitempty"`
	// ExecutionTime is the provider-reported call duration.
	ExecutionTime time.Duration `json:"execution_time,omitempty"`
}

// CapabilityProvider resolves agent identifiers to executable capabilities.
//
// Implementations must be safe for concurrent use and should respect context
// cancellation in Invoke; the engine bounds every invocation with the step's
// timeout through the passed context.
type CapabilityProvider interface {
	// HasCapability reports whether the agent exists and exposes the
	// named capability.
	HasCapability(ctx context.Context, agentID, capability string) bool

	// Invoke executes the capability and returns its typed result. An
	// error return is treated like a failed result; a context deadline
	// becomes a step timeout.
	Invoke(ctx context.Context, req InvocationRequest) (*InvocationResult, error)

	// AgentInfo returns identifying and billing metadata for an agent.
	AgentInfo(ctx context.Context, agentID string) (*AgentInfo, error)
}
