package mesh_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/relaykit/kernel/mesh"
)

var errUnreachable = errors.New("agent unreachable")

// fakeTransport is an in-memory Transport double used to exercise the
// coordination patterns and supervisor state machine without a live Redis
// connection.
type fakeTransport struct {
	mu         sync.Mutex
	mailboxes  map[string][]mesh.Message
	denyPresence map[string]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{mailboxes: make(map[string][]mesh.Message), denyPresence: make(map[string]bool)}
}

func (f *fakeTransport) Send(ctx context.Context, agentID string, msg mesh.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mailboxes[agentID] = append(f.mailboxes[agentID], msg)
	return nil
}

func (f *fakeTransport) Receive(ctx context.Context, agentID string, timeout time.Duration) (mesh.Message, bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		f.mu.Lock()
		box := f.mailboxes[agentID]
		if len(box) > 0 {
			msg := box[0]
			f.mailboxes[agentID] = box[1:]
			f.mu.Unlock()
			return msg, true, nil
		}
		f.mu.Unlock()
		if time.Now().After(deadline) {
			return mesh.Message{}, false, nil
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeTransport) Broadcast(ctx context.Context, msg mesh.Message) error {
	return f.Publish(ctx, mesh.BroadcastTopic, msg)
}

func (f *fakeTransport) Publish(ctx context.Context, topic string, msg mesh.Message) error {
	return f.Send(ctx, "topic:"+topic, msg)
}

func (f *fakeTransport) Subscribe(ctx context.Context, topic string) (mesh.Subscription, error) {
	return nil, nil
}

func (f *fakeTransport) RegisterPresence(ctx context.Context, agentID string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denyPresence[agentID] {
		return errUnreachable
	}
	return nil
}

func (f *fakeTransport) DeregisterPresence(ctx context.Context, agentID string) error { return nil }

func (f *fakeTransport) QueueDepth(ctx context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.mailboxes[key])), nil
}

func TestBackpressureThresholdsLevel(t *testing.T) {
	th := mesh.BackpressureThresholds{Warning: 10, Critical: 50, HardCap: 100}
	require.Equal(t, mesh.Normal, th.Level(0))
	require.Equal(t, mesh.Warning, th.Level(10))
	require.Equal(t, mesh.Critical, th.Level(50))
}

func TestRequestReplyRoundTrip(t *testing.T) {
	transport := newFakeTransport()

	go func() {
		msg, ok, err := transport.Receive(context.Background(), "worker-1", time.Second)
		require.NoError(t, err)
		require.True(t, ok)
		reply := mesh.NewTextMessage("pong", nil).WithCorrelation(msg.CorrelationID)
		_ = transport.Send(context.Background(), "caller-1", reply)
	}()

	reply, err := mesh.RequestReply(context.Background(), transport, "caller-1", "worker-1", mesh.NewTextMessage("ping", nil), time.Second)
	require.NoError(t, err)
	require.Equal(t, "pong", reply.Payload)
}

func TestRequestReplyTimesOut(t *testing.T) {
	transport := newFakeTransport()
	_, err := mesh.RequestReply(context.Background(), transport, "caller-2", "worker-2", mesh.NewTextMessage("ping", nil), 20*time.Millisecond)
	require.Error(t, err)
}

func TestSupervisorAssignsAndCompletes(t *testing.T) {
	transport := newFakeTransport()
	dlq := mesh.NewDeadLetterQueue(10, time.Hour)
	sup := mesh.NewSupervisor(transport, dlq, mesh.RoundRobin())
	sup.AddWorker("worker-a")

	task, err := sup.Submit(context.Background(), mesh.NewTextMessage("job", nil), 1)
	require.NoError(t, err)

	got, ok := sup.Get(task.ID)
	require.True(t, ok)
	require.Equal(t, mesh.TaskAssigned, got.State)

	require.NoError(t, sup.Complete(task.ID))
	got, _ = sup.Get(task.ID)
	require.Equal(t, mesh.TaskCompleted, got.State)
}

func TestSupervisorDeadLettersAfterRetriesExhausted(t *testing.T) {
	transport := newFakeTransport()
	dlq := mesh.NewDeadLetterQueue(10, time.Hour)
	sup := mesh.NewSupervisor(transport, dlq, mesh.RoundRobin())
	sup.AddWorker("worker-a")

	task, err := sup.Submit(context.Background(), mesh.NewTextMessage("job", nil), 1)
	require.NoError(t, err)

	require.NoError(t, sup.Fail(context.Background(), task.ID, "boom"))
	got, _ := sup.Get(task.ID)
	require.Equal(t, mesh.TaskDeadLettered, got.State)
	require.Equal(t, 1, dlq.Size("supervisor"))
}

func TestDeadLetterQueueEvictsOldestAtCapacity(t *testing.T) {
	dropped := 0
	dlq := mesh.NewDeadLetterQueue(2, time.Hour)
	dlq.DropHook = func(topic string, entry mesh.DeadLetterEntry) { dropped++ }

	dlq.Push("t", mesh.NewTextMessage("1", nil), "r")
	dlq.Push("t", mesh.NewTextMessage("2", nil), "r")
	dlq.Push("t", mesh.NewTextMessage("3", nil), "r")

	require.Equal(t, 2, dlq.Size("t"))
	require.Equal(t, 1, dropped)
}

func TestDeadLetterQueueEvictsOnTotalVolumeCap(t *testing.T) {
	dropped := 0
	payload := string(make([]byte, 100))
	dlq := mesh.NewDeadLetterQueueWithVolume(1000, 250, time.Hour)
	dlq.DropHook = func(topic string, entry mesh.DeadLetterEntry) { dropped++ }

	dlq.Push("a", mesh.NewTextMessage(payload, nil), "r")
	dlq.Push("b", mesh.NewTextMessage(payload, nil), "r")
	dlq.Push("c", mesh.NewTextMessage(payload, nil), "r")

	require.Positive(t, dropped)
	require.LessOrEqual(t, dlq.Volume(), int64(250))
}

func TestMessageEncodeDecodeRoundTrip(t *testing.T) {
	msg := mesh.NewTextMessage("hello", map[string]string{"k": "v"})
	data, err := mesh.Encode(msg)
	require.NoError(t, err)

	decoded, err := mesh.Decode(data)
	require.NoError(t, err)
	require.Equal(t, msg.Payload, decoded.Payload)
	require.Equal(t, msg.ID, decoded.ID)
}

func TestBootstrapGroupSoftFailsUnreachableMembers(t *testing.T) {
	transport := newFakeTransport()
	transport.denyPresence["agent-bad"] = true

	registered, errs := mesh.BootstrapGroup(context.Background(), transport, []mesh.GroupMember{
		{AgentID: "agent-good-1", TTL: time.Minute},
		{AgentID: "agent-bad", TTL: time.Minute},
		{AgentID: "agent-good-2", TTL: time.Minute},
	})

	require.ElementsMatch(t, []string{"agent-good-1", "agent-good-2"}, registered)
	require.Len(t, errs, 1)
	require.Equal(t, "agent-bad", errs[0].AgentID)
}

func TestCorrelationLedgerTrimsAtCapacity(t *testing.T) {
	ledger := mesh.NewCorrelationLedger(8)
	for i := 0; i < 10; i++ {
		ledger.Record("corr-1", "topic", "step", time.Now())
	}
	require.LessOrEqual(t, ledger.Len(), 8)
}

func TestSupervisorHistoryRecordsTransitions(t *testing.T) {
	transport := newFakeTransport()
	dlq := mesh.NewDeadLetterQueue(10, time.Hour)
	sup := mesh.NewSupervisor(transport, dlq, mesh.RoundRobin())
	sup.AddWorker("worker-a")

	task, err := sup.Submit(context.Background(), mesh.NewTextMessage("job", nil), 1)
	require.NoError(t, err)
	require.NoError(t, sup.Complete(task.ID))

	history := sup.History(task.ID)
	require.Len(t, history, 2)
	require.Equal(t, "assigned", history[0].Action)
	require.Equal(t, "completed", history[1].Action)
}
