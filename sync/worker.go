package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/adapters/gojob"
	"github.com/goliatone/go-deliveries/core"
)

const (
	defaultWorkerPollInterval = time.Second
	defaultWorkerRetryDelay   = time.Minute
)

// Worker consumes queued reconciliation jobs and runs them through the ledger.
type Worker struct {
	Queue        core.JobDequeuer
	Ledger       *RunLedger
	Hook         core.JobWorkerHook
	PollInterval time.Duration
	RetryDelay   time.Duration
	Now          func() time.Time
}

func NewWorker(queue core.JobDequeuer, ledger *RunLedger, hook core.JobWorkerHook) *Worker {
	return &Worker{
		Queue:        queue,
		Ledger:       ledger,
		Hook:         hook,
		PollInterval: defaultWorkerPollInterval,
		RetryDelay:   defaultWorkerRetryDelay,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Run processes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.ProcessNext(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil || !processed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollInterval()):
			}
		}
	}
}

// ProcessNext handles at most one job. It reports false when the queue was empty.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	if w == nil || w.Queue == nil || w.Ledger == nil {
		return false, fmt.Errorf("sync: worker requires a queue and a run ledger")
	}
	delivery, err := w.Queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if delivery == nil || delivery.Message() == nil {
		return false, nil
	}
	msg := delivery.Message()
	attempt := gojob.MessageAttempt(msg.Parameters)
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: w.now()}

	if strings.TrimSpace(msg.JobID) != core.JobIDReconcile {
		event.Err = fmt.Errorf("sync: unsupported job %q", msg.JobID)
		w.hook(ctx, event, "failure")
		return true, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: event.Err.Error()})
	}

	w.hook(ctx, event, "start")
	metadata := map[string]any{
		"job_id":          msg.JobID,
		"idempotency_key": msg.IdempotencyKey,
		"attempt":         attempt,
	}
	for _, key := range []string{"source", "topic"} {
		if value, ok := msg.Parameters[key]; ok {
			metadata[key] = value
		}
	}
	_, runErr := w.Ledger.Run(ctx, core.SyncRunTriggerJob, metadata)
	event.Duration = w.now().Sub(event.StartedAt)
	if runErr == nil {
		w.hook(ctx, event, "success")
		return true, delivery.Ack(ctx)
	}

	event.Err = runErr
	if core.IsReconcileInProgress(runErr) {
		// another run already covers this job
		w.hook(ctx, event, "success")
		return true, delivery.Ack(ctx)
	}
	if core.IsNoCredential(runErr) {
		w.hook(ctx, event, "failure")
		return true, delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: runErr.Error()})
	}
	event.Delay = w.retryDelay(attempt)
	w.hook(ctx, event, "retry")
	return true, delivery.Nack(ctx, core.JobNackOptions{
		Delay:   event.Delay,
		Requeue: true,
		Reason:  runErr.Error(),
	})
}

func (w *Worker) hook(ctx context.Context, event core.JobWorkerEvent, stage string) {
	if w.Hook == nil {
		return
	}
	switch stage {
	case "start":
		w.Hook.OnStart(ctx, event)
	case "success":
		w.Hook.OnSuccess(ctx, event)
	case "retry":
		w.Hook.OnRetry(ctx, event)
	default:
		w.Hook.OnFailure(ctx, event)
	}
}

func (w *Worker) retryDelay(attempt int) time.Duration {
	delay := w.RetryDelay
	if delay <= 0 {
		delay = defaultWorkerRetryDelay
	}
	for i := 1; i < attempt && delay < time.Hour; i++ {
		delay *= 2
	}
	return min(delay, time.Hour)
}

func (w *Worker) pollInterval() time.Duration {
	if w.PollInterval > 0 {
		return w.PollInterval
	}
	return defaultWorkerPollInterval
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}
