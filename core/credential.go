package core

import "context"

// Credentials holds resolved connection secrets as opaque key/value pairs.
// The engine passes credentials to capability providers but never persists or
// logs them; only presence/absence and resolution errors are surfaced.
type Credentials map[string]string

// CredentialProvider resolves stored credentials for a user and provider.
type CredentialProvider interface {
	// Resolve returns the credentials for the given user and provider.
	// credentialID selects a specific credential when a user holds more
	// than one for the same provider; an empty credentialID selects the
	// provider default. Returns ErrCredentialNotFound when nothing
	// matches.
	Resolve(ctx context.Context, userID, provider, credentialID string) (Credentials, error)
}
