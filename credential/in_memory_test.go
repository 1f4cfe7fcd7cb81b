package credential

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowmesh-io/flowmesh/core"
)

func TestInMemoryProvider_Resolve_ByID(t *testing.T) {
	p := NewInMemoryProvider()
	p.Put("user-1", "cred-gmail-work", "google", core.Credentials{"token": "abc"})

	got, err := p.Resolve(context.Background(), "user-1", "google", "cred-gmail-work")
	require.NoError(t, err)
	assert.Equal(t, "abc", got["token"])
}

func TestInMemoryProvider_Resolve_DefaultForProvider(t *testing.T) {
	p := NewInMemoryProvider()
	p.Put("user-1", "cred-gmail-work", "google", core.Credentials{"token": "work"})
	p.Put("user-1", "cred-gmail-home", "google", core.Credentials{"token": "home"})

	got, err := p.Resolve(context.Background(), "user-1", "google", "")
	require.NoError(t, err)
	assert.Equal(t, "work", got["token"])

	require.NoError(t, p.SetDefault("user-1", "cred-gmail-home"))

	got, err = p.Resolve(context.Background(), "user-1", "google", "")
	require.NoError(t, err)
	assert.Equal(t, "home", got["token"])
}

func TestInMemoryProvider_Resolve_NotFound(t *testing.T) {
	p := NewInMemoryProvider()
	p.Put("user-1", "cred-gmail-work", "google", core.Credentials{"token": "abc"})

	_, err := p.Resolve(context.Background(), "user-1", "meta", "")
	assert.True(t, errors.Is(err, core.ErrCredentialNotFound))

	_, err = p.Resolve(context.Background(), "user-1", "google", "cred-missing")
	assert.True(t, errors.Is(err, core.ErrCredentialNotFound))

	_, err = p.Resolve(context.Background(), "user-2", "google", "")
	assert.True(t, errors.Is(err, core.ErrCredentialNotFound))
}

func TestInMemoryProvider_Resolve_ProviderMismatch(t *testing.T) {
	p := NewInMemoryProvider()
	p.Put("user-1", "cred-gmail-work", "google", core.Credentials{"token": "abc"})

	_, err := p.Resolve(context.Background(), "user-1", "meta", "cred-gmail-work")
	assert.True(t, errors.Is(err, core.ErrCredentialNotFound))
}

func TestInMemoryProvider_Resolve_ReturnsCopy(t *testing.T) {
	p := NewInMemoryProvider()
	p.Put("user-1", "cred-gmail-work", "google", core.Credentials{"token": "abc"})

	got, err := p.Resolve(context.Background(), "user-1", "google", "")
	require.NoError(t, err)
	got["token"] = "mutated"

	again, err := p.Resolve(context.Background(), "user-1", "google", "")
	require.NoError(t, err)
	assert.Equal(t, "abc", again["token"])
}

func TestInMemoryProvider_SetDefault_Unknown(t *testing.T) {
	p := NewInMemoryProvider()

	err := p.SetDefault("user-1", "cred-missing")
	assert.True(t, errors.Is(err, core.ErrCredentialNotFound))
}
