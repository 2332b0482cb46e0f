package sync

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

func TestNewScheduler_RejectsInvalidSpec(t *testing.T) {
	ledger := NewRunLedger(newMemoryRunStore(), &stubReconciler{}, "default")
	if _, err := NewScheduler(ledger, SchedulerConfig{Spec: "every half hour"}, nil); err == nil {
		t.Fatalf("expected invalid spec error")
	}
	if _, err := NewScheduler(nil, SchedulerConfig{}, nil); err == nil {
		t.Fatalf("expected missing ledger error")
	}
}

func TestScheduler_TickSkipsWhenFresh(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-5 * time.Minute)
	runs := newMemoryRunStore(core.SyncRun{
		ID:         "run_prev",
		AccountKey: "default",
		Status:     core.SyncRunStatusSucceeded,
		StartedAt:  finished,
		FinishedAt: &finished,
	})
	reconciler := &stubReconciler{}
	ledger := NewRunLedger(runs, reconciler, "default")
	ledger.Now = fixedNow(now)

	scheduler, err := NewScheduler(ledger, SchedulerConfig{MinInterval: 30 * time.Minute}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	outcome, err := scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if reconciler.callCount() != 0 {
		t.Fatalf("expected no reconcile while fresh")
	}
	if outcome.Run.Status != core.SyncRunStatusSkipped || outcome.Run.Metadata["skip_reason"] != "fresh" {
		t.Fatalf("expected skipped run, got %+v", outcome.Run)
	}
}

func TestScheduler_TickRunsWhenStale(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	finished := now.Add(-2 * time.Hour)
	runs := newMemoryRunStore(core.SyncRun{
		ID:         "run_prev",
		AccountKey: "default",
		Status:     core.SyncRunStatusSucceeded,
		StartedAt:  finished,
		FinishedAt: &finished,
	})
	reconciler := &stubReconciler{result: core.ReconcileResult{Deliveries: []core.Delivery{{OrderID: 9}}}}
	ledger := NewRunLedger(runs, reconciler, "default")
	ledger.Now = fixedNow(now)

	scheduler, err := NewScheduler(ledger, SchedulerConfig{Spec: "*/30 * * * *", MinInterval: 30 * time.Minute}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	outcome, err := scheduler.Tick(context.Background())
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if reconciler.callCount() != 1 {
		t.Fatalf("expected one reconcile, got %d", reconciler.callCount())
	}
	if outcome.Run.Status != core.SyncRunStatusSucceeded || outcome.Run.Trigger != core.SyncRunTriggerSchedule {
		t.Fatalf("unexpected run %+v", outcome.Run)
	}
	if len(runs.byStatus(core.SyncRunStatusSucceeded)) != 2 {
		t.Fatalf("expected two succeeded runs in the ledger")
	}
}

func TestScheduler_StartReportsNextTick(t *testing.T) {
	ledger := NewRunLedger(newMemoryRunStore(), &stubReconciler{}, "default")
	scheduler, err := NewScheduler(ledger, SchedulerConfig{Spec: "0 3 * * *"}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	scheduler.Start()
	defer func() { <-scheduler.Stop().Done() }()

	next := scheduler.Next()
	if next.IsZero() {
		t.Fatalf("expected next tick after start")
	}
	if next.Hour() != 3 || next.Minute() != 0 {
		t.Fatalf("expected 03:00 tick, got %s", next)
	}
}

func TestScheduler_StopCancelsInFlightTick(t *testing.T) {
	reconciler := newBlockingReconciler()
	ledger := NewRunLedger(newMemoryRunStore(), reconciler, "default")
	scheduler, err := NewScheduler(ledger, SchedulerConfig{Spec: "@every 1s"}, nil)
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	scheduler.Start()

	select {
	case <-reconciler.started:
	case <-time.After(3 * time.Second):
		<-scheduler.Stop().Done()
		t.Fatalf("timed out waiting for a scheduled tick")
	}

	select {
	case <-scheduler.Stop().Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected stop to cancel the in-flight tick")
	}
}
