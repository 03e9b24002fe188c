package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/relaykit/kernel/kernelerr"
)

// TimeWindow is one of the fixed counting windows a RateLimit tracks usage
// over, grounded on the teacher's pkg/ratelimit.TimeWindow.
type TimeWindow string

const (
	WindowMinute TimeWindow = "minute"
	WindowHour   TimeWindow = "hour"
	WindowDay    TimeWindow = "day"
)

// Duration returns the wall-clock length of the window.
func (w TimeWindow) Duration() time.Duration {
	switch w {
	case WindowMinute:
		return time.Minute
	case WindowHour:
		return time.Hour
	case WindowDay:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}

// Scope is the dimension a rate limit is tracked against: per agent or per
// tool.
type Scope string

const (
	ScopeAgent Scope = "agent"
	ScopeTool  Scope = "tool"
)

// RateLimit is one configured cap: at most Limit dispatches per Window.
type RateLimit struct {
	Window TimeWindow
	Limit  int64
}

// Usage reports current consumption against one configured RateLimit.
type Usage struct {
	Window     TimeWindow
	Current    int64
	Limit      int64
	WindowEnd  time.Time
	Remaining  int64
}

// CheckResult is the outcome of a rate-limit check against every configured
// window for one identifier.
type CheckResult struct {
	Allowed    bool
	Reason     string
	Usages     []Usage
	RetryAfter time.Duration
}

// IsExceeded reports whether any configured limit was exceeded.
func (r *CheckResult) IsExceeded() bool { return !r.Allowed }

// RateLimitStore persists per-(scope, identifier, window) usage counters,
// grounded on the teacher's pkg/ratelimit.Store interface.
type RateLimitStore interface {
	GetUsage(ctx context.Context, scope Scope, identifier string, window TimeWindow) (current int64, windowEnd time.Time, err error)
	IncrementUsage(ctx context.Context, scope Scope, identifier string, window TimeWindow, amount int64) (current int64, windowEnd time.Time, err error)
	DeleteUsage(ctx context.Context, scope Scope, identifier string) error
	DeleteExpired(ctx context.Context, before time.Time) error
	Close() error
}

// RateLimiter is the dispatch-facing contract: check a request against the
// configured limits and, if allowed, record it, grounded on the teacher's
// pkg/ratelimit.RateLimiter interface (Check/Record/CheckAndRecord).
type RateLimiter interface {
	CheckAndRecord(ctx context.Context, scope Scope, identifier string) (*CheckResult, error)
	GetUsage(ctx context.Context, scope Scope, identifier string) ([]Usage, error)
	Reset(ctx context.Context, scope Scope, identifier string) error
	ResetExpired(ctx context.Context, before time.Time) error
}

// DefaultRateLimiter implements RateLimiter over a pluggable RateLimitStore
// and a fixed set of RateLimits, the same fixed-window counting algorithm
// as the teacher's pkg/ratelimit.DefaultRateLimiter, generalized from
// separate token/count amounts to a single per-dispatch increment of 1.
type DefaultRateLimiter struct {
	limits []RateLimit
	store  RateLimitStore
	mu     sync.Mutex
}

// NewRateLimiter builds a DefaultRateLimiter enforcing every limit in
// limits against store.
func NewRateLimiter(limits []RateLimit, store RateLimitStore) (*DefaultRateLimiter, error) {
	if store == nil {
		return nil, fmt.Errorf("security: rate limiter store is required")
	}
	return &DefaultRateLimiter{limits: limits, store: store}, nil
}

// CheckAndRecord checks identifier against every configured limit and, if
// all are satisfied, records one unit of usage against each. Check and
// record happen under the same lock so two concurrent callers can't both
// observe room for the last unit.
func (rl *DefaultRateLimiter) CheckAndRecord(ctx context.Context, scope Scope, identifier string) (*CheckResult, error) {
	if identifier == "" {
		return nil, fmt.Errorf("security: rate limit identifier cannot be empty")
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	result, err := rl.check(ctx, scope, identifier)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, nil
	}

	for _, limit := range rl.limits {
		if _, _, err := rl.store.IncrementUsage(ctx, scope, identifier, limit.Window, 1); err != nil {
			return nil, fmt.Errorf("security: failed to record rate limit usage for %s: %w", limit.Window, err)
		}
	}
	return result, nil
}

func (rl *DefaultRateLimiter) check(ctx context.Context, scope Scope, identifier string) (*CheckResult, error) {
	result := &CheckResult{Allowed: true, Usages: make([]Usage, 0, len(rl.limits))}
	now := time.Now()
	var earliestRetry time.Time

	for _, limit := range rl.limits {
		current, windowEnd, err := rl.store.GetUsage(ctx, scope, identifier, limit.Window)
		if err != nil {
			return nil, fmt.Errorf("security: failed to read rate limit usage for %s: %w", limit.Window, err)
		}
		if windowEnd.Before(now) {
			current = 0
			windowEnd = now.Add(limit.Window.Duration())
		}

		remaining := limit.Limit - current
		if remaining < 0 {
			remaining = 0
		}
		result.Usages = append(result.Usages, Usage{
			Window:    limit.Window,
			Current:   current,
			Limit:     limit.Limit,
			WindowEnd: windowEnd,
			Remaining: remaining,
		})

		if current >= limit.Limit {
			result.Allowed = false
			if result.Reason == "" {
				result.Reason = fmt.Sprintf("rate limit exceeded for %s window (%d/%d)", limit.Window, current, limit.Limit)
			}
			if earliestRetry.IsZero() || windowEnd.Before(earliestRetry) {
				earliestRetry = windowEnd
			}
		}
	}

	if !result.Allowed && !earliestRetry.IsZero() {
		if d := time.Until(earliestRetry); d > 0 {
			result.RetryAfter = d
		}
	}
	return result, nil
}

// GetUsage returns current usage against every configured limit, without
// recording anything.
func (rl *DefaultRateLimiter) GetUsage(ctx context.Context, scope Scope, identifier string) ([]Usage, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	result, err := rl.check(ctx, scope, identifier)
	if err != nil {
		return nil, err
	}
	return result.Usages, nil
}

// Reset clears every recorded window for identifier.
func (rl *DefaultRateLimiter) Reset(ctx context.Context, scope Scope, identifier string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.store.DeleteUsage(ctx, scope, identifier)
}

// ResetExpired removes every usage record whose window ended before before,
// for callers that sweep the store periodically.
func (rl *DefaultRateLimiter) ResetExpired(ctx context.Context, before time.Time) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.store.DeleteExpired(ctx, before)
}

// rateLimitedErr builds the kernelerr value AcquireResourcePermit returns
// when a RateLimiter configured on the Manager refuses a dispatch.
func rateLimitedErr(agentID, reason string, retryAfter time.Duration) error {
	return kernelerr.New(kernelerr.KindPolicy, kernelerr.CodeRateLimited, "security.ratelimit", "CheckAndRecord", reason, map[string]any{
		"agent_id":       agentID,
		"retry_after_ms": retryAfter.Milliseconds(),
	})
}

// usageKey uniquely identifies one (scope, identifier, window) counter, the
// in-memory store's key shape, grounded on the teacher's
// pkg/ratelimit/store_memory.go usageKey.
type usageKey struct {
	Scope      Scope
	Identifier string
	Window     TimeWindow
}

type usageRecord struct {
	Amount    int64
	WindowEnd time.Time
}

// MemoryRateLimitStore is an in-memory RateLimitStore, directly grounded on
// the teacher's pkg/ratelimit.MemoryStore: a mutex-protected map keyed by
// (scope, identifier, window), generalized from the teacher's
// (limitType, window) key to this package's single-amount (window) key
// since dispatch records one unit per call rather than a variable token
// count.
type MemoryRateLimitStore struct {
	mu   sync.RWMutex
	data map[usageKey]*usageRecord
}

// NewMemoryRateLimitStore builds an empty in-memory store.
func NewMemoryRateLimitStore() *MemoryRateLimitStore {
	return &MemoryRateLimitStore{data: make(map[usageKey]*usageRecord)}
}

func (s *MemoryRateLimitStore) GetUsage(_ context.Context, scope Scope, identifier string, window TimeWindow) (int64, time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := usageKey{Scope: scope, Identifier: identifier, Window: window}
	record, ok := s.data[key]
	now := time.Now()
	if !ok || record.WindowEnd.Before(now) {
		return 0, now.Add(window.Duration()), nil
	}
	return record.Amount, record.WindowEnd, nil
}

func (s *MemoryRateLimitStore) IncrementUsage(_ context.Context, scope Scope, identifier string, window TimeWindow, amount int64) (int64, time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := usageKey{Scope: scope, Identifier: identifier, Window: window}
	now := time.Now()
	record, ok := s.data[key]
	if !ok || record.WindowEnd.Before(now) {
		record = &usageRecord{Amount: amount, WindowEnd: now.Add(window.Duration())}
		s.data[key] = record
		return record.Amount, record.WindowEnd, nil
	}
	record.Amount += amount
	return record.Amount, record.WindowEnd, nil
}

func (s *MemoryRateLimitStore) DeleteUsage(_ context.Context, scope Scope, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key := range s.data {
		if key.Scope == scope && key.Identifier == identifier {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *MemoryRateLimitStore) DeleteExpired(_ context.Context, before time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, record := range s.data {
		if record.WindowEnd.Before(before) {
			delete(s.data, key)
		}
	}
	return nil
}

func (s *MemoryRateLimitStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[usageKey]*usageRecord)
	return nil
}
