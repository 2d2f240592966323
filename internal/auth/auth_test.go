package auth

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoginAndResolveRoundTrip(t *testing.T) {
	a := NewMemoryAuthenticator([]User{
		{Email: "alice@demo", Password: "hunter2", TenantID: "demo", UserID: "U1", UserName: "Alice"},
	})

	sess, err := a.Login("alice@demo", "hunter2", "demo")
	require.NoError(t, err)
	require.Equal(t, "U1", sess.UserID)

	got, ok := a.Resolve(sess.SessionID)
	require.True(t, ok)
	require.Equal(t, "Alice", got.UserName)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	a := NewMemoryAuthenticator([]User{
		{Email: "alice@demo", Password: "hunter2", TenantID: "demo", UserID: "U1", UserName: "Alice"},
	})
	_, err := a.Login("alice@demo", "wrong", "demo")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginIsScopedPerTenant(t *testing.T) {
	a := NewMemoryAuthenticator([]User{
		{Email: "alice@demo", Password: "hunter2", TenantID: "demo", UserID: "U1", UserName: "Alice"},
	})
	_, err := a.Login("alice@demo", "hunter2", "other-tenant")
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestResolveUnknownSessionIsNonFatal(t *testing.T) {
	a := NewMemoryAuthenticator(nil)
	_, ok := a.Resolve("does-not-exist")
	require.False(t, ok)
}
