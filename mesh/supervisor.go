package mesh

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relaykit/kernel/kernelerr"
)

// TaskState is one node of the supervisor task state machine (spec §4.6):
// Queued -> Assigned(worker) -> Completed | Failed(reason) -> Requeued (up
// to max retries) -> DeadLettered. Completed and DeadLettered are
// terminal.
type TaskState string

const (
	TaskQueued       TaskState = "queued"
	TaskAssigned     TaskState = "assigned"
	TaskCompleted    TaskState = "completed"
	TaskFailed       TaskState = "failed"
	TaskRequeued     TaskState = "requeued"
	TaskDeadLettered TaskState = "dead_lettered"
)

// Task tracks one unit of supervisor-assigned work.
type Task struct {
	ID         string
	Payload    Message
	State      TaskState
	Worker     string
	FailReason string
	Attempts   int
	MaxRetries int
}

func (t *Task) terminal() bool {
	return t.State == TaskCompleted || t.State == TaskDeadLettered
}

// Supervisor implements the Supervisor/Worker coordination pattern: it
// maintains a worker set, assigns queued tasks via a pluggable
// WorkerSelector, and resubmits a task the caller reports through Fail
// (including on worker liveness loss, which it does not detect itself), up
// to a task's MaxRetries.
type Supervisor struct {
	mu       sync.Mutex
	transport Transport
	dlq      *DeadLetterQueue
	selector WorkerSelector
	workers  []string
	load     map[string]int
	tasks    map[string]*Task
	ledger   *CorrelationLedger
}

// NewSupervisor builds a Supervisor over transport, dead-lettering
// exhausted tasks into dlq using selector to pick workers. Every state
// transition is recorded on an internal CorrelationLedger, retrievable via
// History, for diagnosing a task that gets stuck mid-retry.
func NewSupervisor(transport Transport, dlq *DeadLetterQueue, selector WorkerSelector) *Supervisor {
	return &Supervisor{
		transport: transport,
		dlq:       dlq,
		selector:  selector,
		load:      make(map[string]int),
		tasks:     make(map[string]*Task),
		ledger:    NewCorrelationLedger(0),
	}
}

// History returns every recorded state transition for taskID, oldest first.
func (s *Supervisor) History(taskID string) []CorrelationEvent {
	return s.ledger.For(taskID)
}

// AddWorker registers a worker as available for assignment.
func (s *Supervisor) AddWorker(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = append(s.workers, workerID)
}

// RemoveWorker drops workerID from the selectable set; any task currently
// Assigned to it is left for the caller to Fail explicitly (liveness loss
// is detected externally, e.g. via presence TTL expiry).
func (s *Supervisor) RemoveWorker(workerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.workers[:0]
	for _, w := range s.workers {
		if w != workerID {
			out = append(out, w)
		}
	}
	s.workers = out
	delete(s.load, workerID)
}

// Submit creates a Queued task for payload and immediately attempts
// assignment.
func (s *Supervisor) Submit(ctx context.Context, payload Message, maxRetries int) (*Task, error) {
	task := &Task{ID: uuid.NewString(), Payload: payload, State: TaskQueued, MaxRetries: maxRetries}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	if err := s.assign(ctx, task); err != nil {
		return task, err
	}
	return task, nil
}

func (s *Supervisor) assign(ctx context.Context, task *Task) error {
	s.mu.Lock()
	worker := s.selector(s.workers, s.load)
	s.mu.Unlock()

	if worker == "" {
		return kernelerr.New(kernelerr.KindMesh, kernelerr.CodePublishFailed, "mesh.supervisor", "assign", "no workers available", map[string]any{"task_id": task.ID})
	}

	tagged := task.Payload.WithCorrelation(task.ID)
	if err := s.transport.Send(ctx, worker, tagged); err != nil {
		return err
	}

	s.mu.Lock()
	task.State = TaskAssigned
	task.Worker = worker
	task.Attempts++
	s.load[worker]++
	s.mu.Unlock()
	s.ledger.Record(task.ID, worker, "assigned", time.Now())
	return nil
}

// Complete transitions taskID to Completed, a terminal state.
func (s *Supervisor) Complete(taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return kernelerr.New(kernelerr.KindMesh, kernelerr.CodeDeadLettered, "mesh.supervisor", "Complete", "unknown task id", map[string]any{"task_id": taskID})
	}
	if task.terminal() {
		return nil
	}
	if task.Worker != "" {
		s.load[task.Worker]--
	}
	task.State = TaskCompleted
	s.ledger.Record(task.ID, task.Worker, "completed", time.Now())
	return nil
}

// Fail transitions taskID to Failed, then either Requeues it (assigning a
// new worker) or moves it to the DLQ if MaxRetries is exhausted.
func (s *Supervisor) Fail(ctx context.Context, taskID, reason string) error {
	s.mu.Lock()
	task, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return kernelerr.New(kernelerr.KindMesh, kernelerr.CodeDeadLettered, "mesh.supervisor", "Fail", "unknown task id", map[string]any{"task_id": taskID})
	}
	if task.terminal() {
		s.mu.Unlock()
		return nil
	}
	if task.Worker != "" {
		s.load[task.Worker]--
	}
	task.State = TaskFailed
	task.FailReason = reason
	worker := task.Worker
	exhausted := task.Attempts >= task.MaxRetries
	s.mu.Unlock()
	s.ledger.Record(task.ID, worker, "failed:"+reason, time.Now())

	if exhausted {
		s.mu.Lock()
		task.State = TaskDeadLettered
		s.mu.Unlock()
		s.ledger.Record(task.ID, worker, "dead_lettered", time.Now())
		s.dlq.Push("supervisor", task.Payload, reason)
		return nil
	}

	s.mu.Lock()
	task.State = TaskRequeued
	s.mu.Unlock()
	s.ledger.Record(task.ID, worker, "requeued", time.Now())
	return s.assign(ctx, task)
}

// Get returns a snapshot of taskID's current state.
func (s *Supervisor) Get(taskID string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task, ok := s.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// PollAndDispatch runs one Supervisor/Worker servicing pass: wait up to
// timeout for the next reply on collectorID's mailbox, and route it to
// Complete or Fail based on the reply's "error" metadata entry (empty or
// absent means success).
func PollAndDispatch(ctx context.Context, transport Transport, collectorID string, sup *Supervisor, timeout time.Duration) error {
	msg, ok, err := transport.Receive(ctx, collectorID, timeout)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if msg.Metadata["error"] != "" {
		return sup.Fail(ctx, msg.CorrelationID, msg.Metadata["error"])
	}
	return sup.Complete(msg.CorrelationID)
}
