package adapters_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-deliveries/adapters/gocommand"
	"github.com/goliatone/go-deliveries/adapters/gojob"
	"github.com/goliatone/go-deliveries/adapters/gologger"
	deliverycommand "github.com/goliatone/go-deliveries/command"
	"github.com/goliatone/go-deliveries/core"
	deliverysync "github.com/goliatone/go-deliveries/sync"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
)

// A notification job travels through the go-job queue, is dispatched as a
// go-command reconcile and the duplicate is logged through go-logger.
func TestQueuedReconcileDispatchesThroughCommandRegistry(t *testing.T) {
	ctx := context.Background()

	var logs bytes.Buffer
	provider := gologger.NewSlogProvider(gologger.SlogOptions{Output: &logs})
	_, _, _, queueLogger := gologger.ResolveForJob("deliveries.queue", provider, nil)

	backend := gojob.NewMemoryQueue().WithLogger(queueLogger)
	jobs := gojob.NewEnqueuerAdapter(backend)
	slot := time.Date(2026, 10, 19, 12, 30, 0, 0, time.UTC)
	for range 2 {
		if err := jobs.Enqueue(ctx, gojob.NewReconcileMessage("default", slot, 1)); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	if backend.Len() != 1 {
		t.Fatalf("expected duplicate slot to be dropped, queue holds %d", backend.Len())
	}
	if !strings.Contains(logs.String(), "already queued") {
		t.Fatalf("expected duplicate to be logged, got %q", logs.String())
	}

	mirror := jobqueuecommand.NewRegistry()
	registry := gocommand.NewRegistryAdapter(gocmd.NewRegistry())
	if err := registry.AddQueueResolver("queue", mirror); err != nil {
		t.Fatalf("add queue resolver: %v", err)
	}
	runs := &recordingRuns{}
	subs, err := gocommand.RegisterDeliveries(registry, gocommand.Handlers{
		Reconcile: deliverycommand.NewReconcileCommand(runs),
	})
	if err != nil {
		t.Fatalf("register deliveries: %v", err)
	}
	defer subs.Unsubscribe()
	if err := registry.Initialize(); err != nil {
		t.Fatalf("initialize registry: %v", err)
	}
	if _, ok := mirror.Get(deliverycommand.TypeReconcile); !ok {
		t.Fatalf("expected reconcile command mirrored into the go-job registry")
	}

	delivery, err := gojob.NewDequeuerAdapter(backend, gojob.DefaultRetryPolicy()).Dequeue(ctx)
	if err != nil || delivery == nil {
		t.Fatalf("dequeue: %v (delivery=%v)", err, delivery)
	}
	msg := delivery.Message()
	if msg.JobID != gojob.JobIDReconcile {
		t.Fatalf("unexpected job %+v", msg)
	}

	outcome, err := gocommand.Reconcile(ctx, deliverycommand.ReconcileMessage{
		Trigger:     core.SyncRunTriggerJob,
		RequestedBy: msg.IdempotencyKey,
	})
	if err != nil {
		t.Fatalf("dispatch reconcile: %v", err)
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if runs.calls != 1 || outcome.Run.Trigger != core.SyncRunTriggerJob {
		t.Fatalf("expected one job-triggered run, calls=%d outcome=%+v", runs.calls, outcome)
	}
	if runs.metadata["requested_by"] != msg.IdempotencyKey {
		t.Fatalf("expected job key as requester, got %+v", runs.metadata)
	}
	if backend.Len() != 0 || len(backend.DeadLetters()) != 0 {
		t.Fatalf("expected drained queue, len=%d dead=%d", backend.Len(), len(backend.DeadLetters()))
	}
}

type recordingRuns struct {
	calls    int
	metadata map[string]any
}

func (r *recordingRuns) Run(_ context.Context, trigger core.SyncRunTrigger, metadata map[string]any) (deliverysync.RunOutcome, error) {
	r.calls++
	r.metadata = metadata
	return deliverysync.RunOutcome{Run: core.SyncRun{ID: "run_queued", Trigger: trigger, Status: core.SyncRunStatusSucceeded}}, nil
}
