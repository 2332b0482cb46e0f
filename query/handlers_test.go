package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

type stubLister struct {
	deliveries []core.Delivery
	view       core.DeliveryView
	called     bool
}

func (s *stubLister) ListDeliveries(_ context.Context, view core.DeliveryView) ([]core.Delivery, error) {
	s.called = true
	s.view = view
	return s.deliveries, nil
}

type stubRunReader struct {
	runs       map[string]core.SyncRun
	latest     map[core.SyncRunStatus]core.SyncRun
	accountKey string
}

func (s *stubRunReader) Get(_ context.Context, id string) (core.SyncRun, error) {
	run, ok := s.runs[id]
	if !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return run, nil
}

func (s *stubRunReader) LatestByStatus(_ context.Context, accountKey string, status core.SyncRunStatus) (core.SyncRun, error) {
	s.accountKey = accountKey
	run, ok := s.latest[status]
	if !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return run, nil
}

func TestListDeliveriesQuery_ParsesViewAndNeverReturnsNil(t *testing.T) {
	lister := &stubLister{}
	out, err := NewListDeliveriesQuery(lister).Query(context.Background(), ListDeliveriesMessage{View: " Triage "})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if lister.view != core.DeliveryViewTriage {
		t.Fatalf("expected triage view, got %q", lister.view)
	}
	if out == nil || len(out) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", out)
	}
}

func TestListDeliveriesQuery_UnknownViewIsValidationError(t *testing.T) {
	lister := &stubLister{}
	_, err := NewListDeliveriesQuery(lister).Query(context.Background(), ListDeliveriesMessage{View: "archived"})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ServiceErrorBadInput {
		t.Fatalf("expected %q, got %q", core.ServiceErrorBadInput, rich.TextCode)
	}
	if lister.called {
		t.Fatalf("expected lister not to be called")
	}
}

func TestLatestSyncRunQuery_DefaultsAccountAndStatus(t *testing.T) {
	reader := &stubRunReader{latest: map[core.SyncRunStatus]core.SyncRun{
		core.SyncRunStatusSucceeded: {ID: "run_9", Status: core.SyncRunStatusSucceeded},
	}}
	run, err := NewLatestSyncRunQuery(reader, "shop").Query(context.Background(), LatestSyncRunMessage{})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if run.ID != "run_9" {
		t.Fatalf("expected run_9, got %q", run.ID)
	}
	if reader.accountKey != "shop" {
		t.Fatalf("expected default account key, got %q", reader.accountKey)
	}
}

func TestLatestSyncRunQuery_MissingRunIsNotFound(t *testing.T) {
	reader := &stubRunReader{}
	_, err := NewLatestSyncRunQuery(reader, "").Query(context.Background(), LatestSyncRunMessage{Status: core.SyncRunStatusFailed})

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryNotFound || rich.TextCode != core.ServiceErrorNotFound {
		t.Fatalf("expected not found envelope, got %q/%q", rich.Category, rich.TextCode)
	}
	if reader.accountKey != core.DefaultAccountKey {
		t.Fatalf("expected fallback account key, got %q", reader.accountKey)
	}
}

func TestGetSyncRunQuery(t *testing.T) {
	reader := &stubRunReader{runs: map[string]core.SyncRun{"run_1": {ID: "run_1"}}}
	q := NewGetSyncRunQuery(reader)

	run, err := q.Query(context.Background(), GetSyncRunMessage{ID: " run_1 "})
	if err != nil || run.ID != "run_1" {
		t.Fatalf("expected run_1, got %+v (%v)", run, err)
	}
	if _, err := q.Query(context.Background(), GetSyncRunMessage{}); err == nil {
		t.Fatalf("expected empty id to fail")
	}
	if _, err := q.Query(context.Background(), GetSyncRunMessage{ID: "missing"}); err == nil {
		t.Fatalf("expected missing run to fail")
	}
}
