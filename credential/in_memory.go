// Package credential provides credential resolution for capability
// invocations. Credentials are scoped per user and per provider and are
// handed to handlers at invocation time only; they never enter run state,
// the execution log, or any store.
package credential

import (
	"context"
	"sync"

	"github.com/flowmesh-io/flowmesh/core"
)

type storedCredential struct {
	provider string
	values   core.Credentials
}

// InMemoryProvider is a process-local core.CredentialProvider.
//
// Each user holds a set of credentials keyed by credential id. The first
// credential stored for a (user, provider) pair becomes the provider default,
// returned when a step names no credential id; SetDefault overrides that.
//
// Concurrency: protected by RWMutex.
type InMemoryProvider struct {
	mu       sync.RWMutex
	creds    map[string]map[string]storedCredential // userID -> credentialID -> credential
	defaults map[string]map[string]string           // userID -> provider -> credentialID
}

// NewInMemoryProvider creates an empty credential provider.
func NewInMemoryProvider() *InMemoryProvider {
	return &InMemoryProvider{
		creds:    make(map[string]map[string]storedCredential),
		defaults: make(map[string]map[string]string),
	}
}

// Put stores a credential for the user. It becomes the provider default if
// the user has none yet for that provider.
func (p *InMemoryProvider) Put(userID, credentialID, provider string, values core.Credentials) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.creds[userID]; !exists {
		p.creds[userID] = make(map[string]storedCredential)
	}

	copied := make(core.Credentials, len(values))
	for k, v := range values {
		copied[k] = v
	}
	p.creds[userID][credentialID] = storedCredential{provider: provider, values: copied}

	if _, exists := p.defaults[userID]; !exists {
		p.defaults[userID] = make(map[string]string)
	}
	if _, exists := p.defaults[userID][provider]; !exists {
		p.defaults[userID][provider] = credentialID
	}
}

// SetDefault marks an existing credential as the user's default for its
// provider.
func (p *InMemoryProvider) SetDefault(userID, credentialID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cred, ok := p.creds[userID][credentialID]
	if !ok {
		return core.ErrCredentialNotFound
	}

	if _, exists := p.defaults[userID]; !exists {
		p.defaults[userID] = make(map[string]string)
	}
	p.defaults[userID][cred.provider] = credentialID

	return nil
}

// Resolve returns a copy of the credential values for the user. An empty
// credentialID selects the user's default credential for the provider.
func (p *InMemoryProvider) Resolve(_ context.Context, userID, provider, credentialID string) (core.Credentials, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if credentialID == "" {
		credentialID = p.defaults[userID][provider]
		if credentialID == "" {
			return nil, core.ErrCredentialNotFound
		}
	}

	cred, ok := p.creds[userID][credentialID]
	if !ok || cred.provider != provider {
		return nil, core.ErrCredentialNotFound
	}

	values := make(core.Credentials, len(cred.values))
	for k, v := range cred.values {
		values[k] = v
	}
	return values, nil
}
