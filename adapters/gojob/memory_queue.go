package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

// MemoryQueue is an in-process go-job queue backend for single-node
// deployments. A message with the drop dedup policy is ignored while another
// with the same idempotency key is waiting or in flight.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       []*job.ExecutionMessage
	delayed     []delayedMessage
	pending     map[string]struct{}
	deadLetters []DeadLetter
	now         func() time.Time
	logger      job.Logger
}

type delayedMessage struct {
	msg       *job.ExecutionMessage
	visibleAt time.Time
}

type DeadLetter struct {
	Message *job.ExecutionMessage
	Reason  string
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		pending: map[string]struct{}{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithLogger reports dropped duplicates and dead letters to logger.
func (q *MemoryQueue) WithLogger(logger job.Logger) *MemoryQueue {
	q.logger = logger
	return q
}

func (q *MemoryQueue) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	if q == nil {
		return fmt.Errorf("gojob: memory queue is nil")
	}
	if msg == nil || strings.TrimSpace(msg.JobID) == "" {
		return fmt.Errorf("gojob: job id is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" && string(msg.DedupPolicy) == dedupPolicyDrop {
		if _, waiting := q.pending[key]; waiting {
			q.log("reconcile job already queued", "idempotency_key", key)
			return nil
		}
		q.pending[key] = struct{}{}
	}
	q.ready = append(q.ready, cloneExecutionMessage(msg))
	return nil
}

// Dequeue returns the next visible message, or a nil delivery when none is
// ready. It never blocks.
func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	waiting := q.delayed[:0]
	for _, entry := range q.delayed {
		if entry.visibleAt.After(now) {
			waiting = append(waiting, entry)
			continue
		}
		q.ready = append(q.ready, entry.msg)
	}
	q.delayed = waiting

	if len(q.ready) == 0 {
		return nil, nil
	}
	msg := q.ready[0]
	q.ready = q.ready[1:]
	return &memoryDelivery{queue: q, msg: msg}, nil
}

// Len reports ready plus delayed messages.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.ready) + len(q.delayed)
}

func (q *MemoryQueue) DeadLetters() []DeadLetter {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]DeadLetter(nil), q.deadLetters...)
}

func (q *MemoryQueue) log(msg string, args ...any) {
	if q.logger != nil {
		q.logger.Info(msg, args...)
	}
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *job.ExecutionMessage
	done  bool
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if !d.done {
		d.done = true
		delete(d.queue.pending, strings.TrimSpace(d.msg.IdempotencyKey))
	}
	return nil
}

// Nack requeues a copy with the attempt parameter incremented, keeping its
// idempotency key claimed, or dead-letters the message and releases the key.
func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	if d.done {
		return nil
	}
	d.done = true
	if opts.DeadLetter || !opts.Requeue {
		delete(d.queue.pending, strings.TrimSpace(d.msg.IdempotencyKey))
		d.queue.deadLetters = append(d.queue.deadLetters, DeadLetter{Message: d.msg, Reason: opts.Reason})
		d.queue.log("reconcile job dead-lettered",
			"idempotency_key", d.msg.IdempotencyKey,
			"attempt", MessageAttempt(d.msg.Parameters),
			"reason", opts.Reason,
		)
		return nil
	}
	next := cloneExecutionMessage(d.msg)
	next.Parameters["attempt"] = MessageAttempt(d.msg.Parameters) + 1
	d.queue.delayed = append(d.queue.delayed, delayedMessage{
		msg:       next,
		visibleAt: d.queue.now().Add(max(opts.Delay, 0)),
	})
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
