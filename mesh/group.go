package mesh

import (
	"context"
	"time"
)

// GroupMember is one agent to register into a presence group.
type GroupMember struct {
	AgentID string
	TTL     time.Duration
}

// GroupError pairs one member's registration failure with its agent ID, so
// a caller can see exactly who failed without the group bootstrap aborting.
type GroupError struct {
	AgentID string
	Err     error
}

// BootstrapGroup registers every member's presence on transport, the same
// soft-fail shape as the teacher's Team.Initialize: one unreachable member
// is recorded as an error and skipped rather than aborting registration for
// the rest of the group. It returns the agent IDs that registered
// successfully and every per-member error encountered.
func BootstrapGroup(ctx context.Context, transport Transport, members []GroupMember) ([]string, []GroupError) {
	var registered []string
	var errs []GroupError

	for _, m := range members {
		if m.AgentID == "" {
			continue
		}
		if err := transport.RegisterPresence(ctx, m.AgentID, m.TTL); err != nil {
			errs = append(errs, GroupError{AgentID: m.AgentID, Err: err})
			continue
		}
		registered = append(registered, m.AgentID)
	}

	return registered, errs
}

// TeardownGroup deregisters every agent ID's presence, collecting errors
// the same soft-fail way BootstrapGroup does rather than stopping at the
// first failure.
func TeardownGroup(ctx context.Context, transport Transport, agentIDs []string) []GroupError {
	var errs []GroupError
	for _, id := range agentIDs {
		if err := transport.DeregisterPresence(ctx, id); err != nil {
			errs = append(errs, GroupError{AgentID: id, Err: err})
		}
	}
	return errs
}
