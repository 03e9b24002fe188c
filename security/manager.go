package security

import (
	"context"
	"crypto/rand"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/relaykit/kernel/kernelerr"
)

// Manager is the process-singleton security manager described in spec
// §4.5: it owns the active Policy, the resource tracker, and the audit
// sink, and is the single choke point every tool dispatch passes through.
// Unlike the teacher's package-level globals, the singleton here is
// constructed once at startup and injected into the coordinator/registry
// explicitly, never reached via a package-level variable (spec §9: "global
// state is a smell; the security manager is a deliberate, singular
// exception, and even it is injected, not ambient").
type Manager struct {
	mu          sync.RWMutex
	policy      Policy
	tracker     *ResourceTracker
	sink        *AuditSink
	lockdown    atomic.Bool
	sessions    *sessionCache
	rateLimiter RateLimiter
}

// NewManager builds a Manager from a validated Policy and starts its audit
// sink. logger is typically the process-wide slog.Logger. Session tokens are
// signed with a process-generated key; call SetSessionIssuer to pin a
// specific key (e.g. one shared across a restart).
func NewManager(policy Policy, logger *slog.Logger) *Manager {
	m := &Manager{
		policy:  policy,
		tracker: NewResourceTracker(policy.Resources),
		sink:    NewAuditSink(policy.Audit.SinkDepth, logger),
	}
	m.lockdown.Store(policy.Emergency.Lockdown)
	m.sessions = newSessionCache(NewSessionIssuer(randomSessionKey(), time.Hour))
	return m
}

// SetRateLimiter wires rl into AcquireResourcePermit: every dispatch will be
// checked against rl (scoped by agent id) ahead of the concurrency permit,
// and refused with CodeRateLimited if rl reports the agent over its
// configured limits. A nil rl (the default) disables rate limiting
// entirely, matching the manager's behavior before this was wired.
func (m *Manager) SetRateLimiter(rl RateLimiter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimiter = rl
}

// SetSessionIssuer replaces the manager's session issuer, for operators that
// want session tokens verifiable across a process restart with a pinned key.
func (m *Manager) SetSessionIssuer(issuer *SessionIssuer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = newSessionCache(issuer)
}

// SessionFor returns the current session token for agentID, minting one on
// first use and reusing it until it expires. The token populates
// AuditEvent.SessionID so an operator can correlate every audit entry for
// one coordinator lifetime without trusting the caller-supplied agent ID
// alone.
func (m *Manager) SessionFor(agentID string) (string, error) {
	m.mu.RLock()
	cache := m.sessions
	m.mu.RUnlock()
	return cache.sessionFor(agentID)
}

// Policy returns the currently active policy. Safe for concurrent use with
// ReloadPolicy.
func (m *Manager) Policy() Policy {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.policy
}

// ReloadPolicy swaps in a newly loaded policy, e.g. on an fsnotify event for
// the policy file. The resource tracker keeps its existing semaphore
// capacity until the next AcquirePermit cycle; in-flight guards are
// unaffected.
func (m *Manager) ReloadPolicy(policy Policy) {
	m.mu.Lock()
	m.policy = policy
	m.tracker = NewResourceTracker(policy.Resources)
	m.mu.Unlock()
	m.lockdown.Store(policy.Emergency.Lockdown)
}

// SetLockdown toggles the emergency-lockdown flag directly, independent of
// a policy reload, for an operator-triggered kill switch.
func (m *Manager) SetLockdown(on bool) { m.lockdown.Store(on) }

// Lockdown reports whether emergency lockdown is active.
func (m *Manager) Lockdown() bool { return m.lockdown.Load() }

// ValidateInput runs the full input-validation pipeline from spec §4.3 step
// 2/3: size bound, secret-pattern scan, suspicious-pattern scan. It returns
// the first violation found; callers that need all three results should
// call the underlying scanners directly.
func (m *Manager) ValidateInput(input string) error {
	policy := m.Policy()

	if int64(len(input)) > policy.Resources.MaxInputBytes {
		return kernelerr.New(kernelerr.KindResource, kernelerr.CodeMemoryLimit, "security.manager", "ValidateInput", "input exceeds max_input_bytes", map[string]any{
			"observed": len(input),
			"limit":    policy.Resources.MaxInputBytes,
		})
	}

	if ContainsSecret(input) {
		if policy.Secrets.DenyOnDetect {
			return kernelerr.New(kernelerr.KindPolicy, kernelerr.CodeSecretDetected, "security.manager", "ValidateInput", "input contains a recognized secret pattern", nil)
		}
		// Policy chose warn over deny (spec §4.3 step 2): let the input
		// through but leave an audit trail of the detection.
		m.Audit(AuditEvent{
			Timestamp:   time.Now(),
			Tool:        "security.manager.ValidateInput",
			InputSHA256: HashInput(input),
			Outcome:     "warn:secret_detected",
			Detail:      input,
		})
	}

	if kind := ScanSuspicious(input); kind != SuspiciousNone {
		return kernelerr.New(kernelerr.KindPolicy, kernelerr.CodeSuspiciousPattern, "security.manager", "ValidateInput", "input matches a suspicious pattern", map[string]any{
			"pattern_kind": string(kind),
		})
	}

	return nil
}

// ValidatePath delegates to the active policy's path validator.
func (m *Manager) ValidatePath(path string) (string, error) {
	return m.Policy().ValidatePath(path)
}

// ValidateDomain delegates to the active policy's domain validator.
func (m *Manager) ValidateDomain(domain string) error {
	return m.Policy().ValidateDomain(domain)
}

// AcquireResourcePermit is the manager's entry point into the resource
// tracker, with the lockdown check spec §4.5 requires ahead of every
// permit grant: "when set, causes all tool dispatch to fail with
// SecurityError::Lockdown."
func (m *Manager) AcquireResourcePermit(ctx context.Context, agentID string) (context.Context, *Guard, error) {
	if m.Lockdown() {
		return nil, nil, kernelerr.New(kernelerr.KindPolicy, kernelerr.CodeLockdown, "security.manager", "AcquireResourcePermit", "emergency lockdown is active, all tool dispatch is refused", map[string]any{"agent_id": agentID})
	}

	m.mu.RLock()
	tracker := m.tracker
	limiter := m.rateLimiter
	m.mu.RUnlock()

	if limiter != nil {
		result, err := limiter.CheckAndRecord(ctx, ScopeAgent, agentID)
		if err != nil {
			return nil, nil, kernelerr.Wrap(kernelerr.KindPolicy, kernelerr.CodeRateLimited, "security.manager", "AcquireResourcePermit", "rate limit check failed", err)
		}
		if !result.Allowed {
			return nil, nil, rateLimitedErr(agentID, result.Reason, result.RetryAfter)
		}
	}

	return tracker.AcquirePermit(ctx, agentID)
}

// Audit records an audit event through the manager's sink, redacting the
// free-form detail field before it ever leaves this call when the active
// policy's secrets.redact_in_logs is set (spec §4.5: "secrets are redacted
// before an event leaves the audit subsystem"). An operator who turns
// redaction off gets the raw detail, e.g. to diagnose exactly which pattern
// a ValidateInput warning matched.
func (m *Manager) Audit(ev AuditEvent) {
	if m.Policy().Secrets.RedactInLogs {
		ev.Detail = RedactSecrets(ev.Detail)
	}
	m.sink.Emit(ev)
}

// Close stops the manager's audit sink, draining any buffered events.
func (m *Manager) Close() {
	m.sink.Close()
}

// randomSessionKey generates a fresh per-process HMAC key so session tokens
// are valid for the lifetime of one Manager and nothing verifies them after
// a restart unless the operator pins a key via SetSessionIssuer.
func randomSessionKey() []byte {
	key := make([]byte, 32)
	_, _ = rand.Read(key)
	return key
}
