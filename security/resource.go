package security

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/relaykit/kernel/kernelerr"
)

// ResourceTracker enforces the resource policy's concurrency cap across all
// in-flight tool dispatches. AcquirePermit returns a Guard that must be
// released exactly once; Release is safe to call from a deferred recover
// path so a panicking tool still frees its slot (spec §4.5: "decrements on
// drop, including panic").
type ResourceTracker struct {
	policy  ResourcePolicy
	sem     chan struct{}
	inFlight int64
}

// NewResourceTracker builds a tracker with a concurrency semaphore sized to
// policy.MaxConcurrentOps.
func NewResourceTracker(policy ResourcePolicy) *ResourceTracker {
	return &ResourceTracker{
		policy: policy,
		sem:    make(chan struct{}, policy.MaxConcurrentOps),
	}
}

// Guard is a single acquired resource permit plus its deadline. Release is
// idempotent.
type Guard struct {
	tracker  *ResourceTracker
	released atomic.Bool
	deadline time.Time
	cancel   context.CancelFunc
}

// Deadline returns the wall-clock time this operation must finish by.
func (g *Guard) Deadline() time.Time { return g.deadline }

// Release frees the concurrency slot and cancels the deadline context
// returned alongside this Guard, releasing its internal timer immediately
// instead of waiting for the full policy deadline to elapse. Safe to call
// more than once and from a deferred recover() after a panic.
func (g *Guard) Release() {
	if g.released.CompareAndSwap(false, true) {
		<-g.tracker.sem
		atomic.AddInt64(&g.tracker.inFlight, -1)
		g.cancel()
	}
}

// AcquirePermit blocks until a concurrency slot is free or ctx is done,
// starts the wall-clock timer for this operation (spec §4.3 step 4's
// "acquire a concurrency permit; start a wall-clock timer"), and returns a
// Guard and a derived context carrying the policy's execution-time deadline.
func (t *ResourceTracker) AcquirePermit(ctx context.Context, agentID string) (context.Context, *Guard, error) {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, nil, kernelerr.New(kernelerr.KindResource, kernelerr.CodeConcurrencyLimit, "security.resource", "AcquirePermit", "context cancelled while waiting for a permit", map[string]any{"agent_id": agentID})
	}
	atomic.AddInt64(&t.inFlight, 1)

	deadline := time.Now().Add(time.Duration(t.policy.MaxExecutionSeconds) * time.Second)
	deadlineCtx, cancel := context.WithDeadline(ctx, deadline)

	guard := &Guard{tracker: t, deadline: deadline, cancel: cancel}
	return deadlineCtx, guard, nil
}

// InFlight returns the current number of acquired permits, useful for
// observability's concurrency gauge.
func (t *ResourceTracker) InFlight() int64 { return atomic.LoadInt64(&t.inFlight) }
