package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSessionIssuerIssueAndValidateRoundTrip(t *testing.T) {
	issuer := NewSessionIssuer([]byte("test-key-0123456789abcdef"), time.Minute)

	token, err := issuer.Issue("agent-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	subject, err := issuer.Validate(token)
	require.NoError(t, err)
	require.Equal(t, "agent-1", subject)
}

func TestSessionIssuerRejectsExpiredToken(t *testing.T) {
	issuer := NewSessionIssuer([]byte("test-key-0123456789abcdef"), -time.Minute)

	token, err := issuer.Issue("agent-1")
	require.NoError(t, err)

	_, err = issuer.Validate(token)
	require.Error(t, err)
}

func TestSessionCacheReusesTokenUntilExpiry(t *testing.T) {
	cache := newSessionCache(NewSessionIssuer([]byte("test-key-0123456789abcdef"), time.Hour))

	first, err := cache.sessionFor("agent-1")
	require.NoError(t, err)
	second, err := cache.sessionFor("agent-1")
	require.NoError(t, err)

	require.Equal(t, first, second)
}

func TestManagerSessionForIsStableAcrossCalls(t *testing.T) {
	mgr := NewManager(DefaultPolicy(), discardLogger())
	defer mgr.Close()

	first, err := mgr.SessionFor("agent-1")
	require.NoError(t, err)
	second, err := mgr.SessionFor("agent-1")
	require.NoError(t, err)

	require.Equal(t, first, second)

	issuer := NewSessionIssuer([]byte("pinned-key-0123456789abcdef"), time.Hour)
	mgr.SetSessionIssuer(issuer)
	third, err := mgr.SessionFor("agent-1")
	require.NoError(t, err)
	require.NotEqual(t, first, third)
}
