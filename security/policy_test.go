package security

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultPolicyIsDenyByDefault(t *testing.T) {
	p := DefaultPolicy()
	_, err := p.ValidatePath("anything.txt")
	require.Error(t, err)

	err = p.ValidateDomain("example.com")
	require.Error(t, err)
}

func TestValidatePathRejectsTraversal(t *testing.T) {
	p := DefaultPolicy()
	p.FS.AllowPaths = []string{"/tmp/workspace"}

	_, err := p.ValidatePath("../../etc/passwd")
	assert.Error(t, err)

	_, err = p.ValidatePath("/etc/passwd")
	assert.Error(t, err)
}

func TestValidatePathAllowsWithinRoot(t *testing.T) {
	p := DefaultPolicy()
	p.FS.AllowPaths = []string{"/tmp/workspace"}

	resolved, err := p.ValidatePath("notes.txt")
	require.NoError(t, err)
	assert.Contains(t, resolved, "workspace")
}

func TestValidateDomainBlocksSSRFTargets(t *testing.T) {
	p := DefaultPolicy()
	p.HTTP.AllowDomains = []string{"api.example.com"}

	err := p.ValidateDomain("169.254.169.254")
	assert.Error(t, err)

	err = p.ValidateDomain("api.example.com")
	assert.NoError(t, err)

	err = p.ValidateDomain("evil.example.com")
	assert.Error(t, err)
}

func TestContainsSecretAndRedact(t *testing.T) {
	input := "token=sk-abcdefghijklmnopqrstuv rest of the string"
	assert.True(t, ContainsSecret(input))
	assert.NotContains(t, RedactSecrets(input), "sk-abcdefghijklmnopqrstuv")
}

func TestScanSuspicious(t *testing.T) {
	assert.Equal(t, SuspiciousPathTraversal, ScanSuspicious("../etc/passwd"))
	assert.Equal(t, SuspiciousCommandInjection, ScanSuspicious("ls; rm -rf /"))
	assert.Equal(t, SuspiciousSQLInjection, ScanSuspicious("1 OR 1=1"))
	assert.Equal(t, SuspiciousNone, ScanSuspicious("hello world"))
}

func TestManagerValidateInputEnforcesSizeLimit(t *testing.T) {
	policy := DefaultPolicy()
	policy.Resources.MaxInputBytes = 8
	m := NewManager(policy, discardLogger())
	defer m.Close()

	err := m.ValidateInput("this input is far too long")
	require.Error(t, err)
}

func TestManagerLockdownBlocksPermits(t *testing.T) {
	policy := DefaultPolicy()
	m := NewManager(policy, discardLogger())
	defer m.Close()

	m.SetLockdown(true)
	_, _, err := m.AcquireResourcePermit(context.Background(), "agent-1")
	require.Error(t, err)

	var kerr interface{ Error() string }
	require.ErrorAs(t, err, &kerr)
}

func TestResourceTrackerReleaseIsIdempotent(t *testing.T) {
	policy := DefaultPolicy()
	policy.Resources.MaxConcurrentOps = 1
	m := NewManager(policy, discardLogger())
	defer m.Close()

	_, guard, err := m.AcquireResourcePermit(context.Background(), "agent-1")
	require.NoError(t, err)

	guard.Release()
	guard.Release()

	_, guard2, err := m.AcquireResourcePermit(context.Background(), "agent-1")
	require.NoError(t, err)
	guard2.Release()
}

func TestAuditEventRedactsSecretsInDetail(t *testing.T) {
	policy := DefaultPolicy()
	var buf bytes.Buffer
	m := NewManager(policy, slog.New(slog.NewTextHandler(&buf, nil)))

	m.Audit(AuditEvent{
		AgentID:     "agent-1",
		Tool:        "http_get",
		InputSHA256: HashInput("https://example.com"),
		Outcome:     "denied",
		SessionID:   "sess-1",
		Detail:      "rejected request carrying sk-abcdefghijklmnopqrstuv",
	})
	m.Close()

	require.Contains(t, buf.String(), "[REDACTED]")
	require.NotContains(t, buf.String(), "sk-")
}
