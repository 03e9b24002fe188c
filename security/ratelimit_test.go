package security

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUnderLimit(t *testing.T) {
	rl, err := NewRateLimiter([]RateLimit{{Window: WindowMinute, Limit: 2}}, NewMemoryRateLimitStore())
	require.NoError(t, err)

	result, err := rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestRateLimiterDeniesOverLimit(t *testing.T) {
	rl, err := NewRateLimiter([]RateLimit{{Window: WindowMinute, Limit: 1}}, NewMemoryRateLimitStore())
	require.NoError(t, err)

	result, err := rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)
	require.False(t, result.Allowed)
	require.NotEmpty(t, result.Reason)
	require.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestRateLimiterScopesAreIndependent(t *testing.T) {
	rl, err := NewRateLimiter([]RateLimit{{Window: WindowMinute, Limit: 1}}, NewMemoryRateLimitStore())
	require.NoError(t, err)

	_, err = rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)

	result, err := rl.CheckAndRecord(context.Background(), ScopeTool, "agent-1")
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestRateLimiterResetClearsUsage(t *testing.T) {
	rl, err := NewRateLimiter([]RateLimit{{Window: WindowMinute, Limit: 1}}, NewMemoryRateLimitStore())
	require.NoError(t, err)

	_, err = rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)

	result, err := rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)
	require.False(t, result.Allowed)

	require.NoError(t, rl.Reset(context.Background(), ScopeAgent, "agent-1"))

	result, err = rl.CheckAndRecord(context.Background(), ScopeAgent, "agent-1")
	require.NoError(t, err)
	require.True(t, result.Allowed)
}

func TestManagerAcquireResourcePermitConsultsRateLimiter(t *testing.T) {
	policy := DefaultPolicy()
	m := NewManager(policy, discardLogger())
	defer m.Close()

	rl, err := NewRateLimiter([]RateLimit{{Window: WindowMinute, Limit: 1}}, NewMemoryRateLimitStore())
	require.NoError(t, err)
	m.SetRateLimiter(rl)

	_, guard, err := m.AcquireResourcePermit(context.Background(), "agent-1")
	require.NoError(t, err)
	guard.Release()

	_, _, err = m.AcquireResourcePermit(context.Background(), "agent-1")
	require.Error(t, err)
}
