package mesh

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/relaykit/kernel/kernelerr"
)

// RequestReply sends req to target's mailbox tagged with a fresh
// correlation id, then waits on the caller's own mailbox for a reply
// carrying the same correlation id, within timeout (spec §4.6).
func RequestReply(ctx context.Context, transport Transport, callerID, targetID string, req Message, timeout time.Duration) (Message, error) {
	correlationID := uuid.NewString()
	req = req.WithCorrelation(correlationID)

	if err := transport.Send(ctx, targetID, req); err != nil {
		return Message{}, err
	}

	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, kernelerr.New(kernelerr.KindMesh, kernelerr.CodeReplyTimeout, "mesh.patterns", "RequestReply", "no reply within deadline", map[string]any{
				"correlation_id": correlationID,
			})
		}
		msg, ok, err := transport.Receive(ctx, callerID, remaining)
		if err != nil {
			return Message{}, err
		}
		if !ok {
			continue
		}
		if msg.CorrelationID == correlationID {
			return msg, nil
		}
		// a reply for a different in-flight request arrived first; put it
		// back and keep waiting. Re-sending preserves at-least-once but
		// loses strict FIFO for the caller's own mailbox under
		// concurrent outstanding requests, a documented limitation of
		// sharing one mailbox across multiple pending RequestReply calls.
		if err := transport.Send(ctx, callerID, msg); err != nil {
			return Message{}, err
		}
	}
}

// WorkerSelector picks the next worker to assign a task to, given the
// current worker set and their load. Supervisor/Worker's round-robin and
// least-loaded strategies both implement this.
type WorkerSelector func(workers []string, load map[string]int) string

// RoundRobin returns a WorkerSelector that cycles through workers in order.
func RoundRobin() WorkerSelector {
	var next int
	return func(workers []string, load map[string]int) string {
		if len(workers) == 0 {
			return ""
		}
		w := workers[next%len(workers)]
		next++
		return w
	}
}

// LeastLoaded returns a WorkerSelector that always picks the worker with
// the smallest recorded load.
func LeastLoaded() WorkerSelector {
	return func(workers []string, load map[string]int) string {
		best := ""
		bestLoad := -1
		for _, w := range workers {
			l := load[w]
			if bestLoad == -1 || l < bestLoad {
				best, bestLoad = w, l
			}
		}
		return best
	}
}

// BroadcastGather scatters msg to every worker's mailbox and collects at
// most len(workers) replies within deadline, returning whatever arrived —
// a partial set on deadline (spec §4.6).
func BroadcastGather(ctx context.Context, transport Transport, collectorID string, workers []string, msg Message, deadline time.Duration) ([]Message, error) {
	correlationID := uuid.NewString()
	tagged := msg.WithCorrelation(correlationID)

	// scatter concurrently, the same errgroup fan-out shape the teacher uses
	// for parallel branch execution; the first Send failure cancels the rest.
	group, groupCtx := errgroup.WithContext(ctx)
	for _, w := range workers {
		worker := w
		group.Go(func() error {
			return transport.Send(groupCtx, worker, tagged)
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	end := time.Now().Add(deadline)
	replies := make([]Message, 0, len(workers))
	for len(replies) < len(workers) {
		remaining := time.Until(end)
		if remaining <= 0 {
			break
		}
		msg, ok, err := transport.Receive(ctx, collectorID, remaining)
		if err != nil {
			return replies, err
		}
		if !ok {
			break
		}
		if msg.CorrelationID == correlationID {
			replies = append(replies, msg)
		}
	}
	return replies, nil
}

// PipelineStage is one link in a Pipeline: it reads from an input mailbox
// and writes its result to the next stage's mailbox. Backpressure
// propagates upstream because Send itself rejects once the downstream
// mailbox hits its hard cap.
type PipelineStage struct {
	InputID  string
	OutputID string
	Process  func(ctx context.Context, in Message) (Message, error)
}

// RunPipelineStage services one stage until ctx is done: receive from
// InputID, run Process, send the result to OutputID.
func RunPipelineStage(ctx context.Context, transport Transport, stage PipelineStage, receiveTimeout time.Duration) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msg, ok, err := transport.Receive(ctx, stage.InputID, receiveTimeout)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		out, err := stage.Process(ctx, msg)
		if err != nil {
			return err
		}
		if err := transport.Send(ctx, stage.OutputID, out); err != nil {
			return err
		}
	}
}
