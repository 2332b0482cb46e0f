package sync

import (
	"context"
	"fmt"
	"sort"
	stdsync "sync"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

type memoryRunStore struct {
	mu   stdsync.Mutex
	runs map[string]core.SyncRun
	seq  int
}

func newMemoryRunStore(initial ...core.SyncRun) *memoryRunStore {
	store := &memoryRunStore{runs: map[string]core.SyncRun{}}
	for _, run := range initial {
		store.runs[run.ID] = run
	}
	return store
}

func (s *memoryRunStore) Create(_ context.Context, run core.SyncRun) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	run.ID = fmt.Sprintf("run_%d", s.seq)
	s.runs[run.ID] = run
	return run, nil
}

func (s *memoryRunStore) Update(_ context.Context, run core.SyncRun) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.runs[run.ID]; !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	s.runs[run.ID] = run
	return run, nil
}

func (s *memoryRunStore) Get(_ context.Context, id string) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	return run, nil
}

func (s *memoryRunStore) LatestByStatus(_ context.Context, accountKey string, status core.SyncRunStatus) (core.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	matches := make([]core.SyncRun, 0)
	for _, run := range s.runs {
		if run.AccountKey == accountKey && run.Status == status {
			matches = append(matches, run)
		}
	}
	if len(matches) == 0 {
		return core.SyncRun{}, core.ErrSyncRunNotFound
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].StartedAt.After(matches[j].StartedAt) })
	return matches[0], nil
}

func (s *memoryRunStore) byStatus(status core.SyncRunStatus) []core.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.SyncRun, 0)
	for _, run := range s.runs {
		if run.Status == status {
			out = append(out, run)
		}
	}
	return out
}

type stubReconciler struct {
	mu     stdsync.Mutex
	result core.ReconcileResult
	err    error
	calls  int
}

func (r *stubReconciler) Reconcile(ctx context.Context) ([]core.Delivery, error) {
	result, err := r.ReconcileDetailed(ctx)
	return result.Deliveries, err
}

func (r *stubReconciler) ReconcileDetailed(context.Context) (core.ReconcileResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.result, r.err
}

func (r *stubReconciler) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// blockingReconciler holds every call until its context is cancelled.
type blockingReconciler struct {
	started chan struct{}
	once    stdsync.Once
}

func newBlockingReconciler() *blockingReconciler {
	return &blockingReconciler{started: make(chan struct{})}
}

func (r *blockingReconciler) Reconcile(ctx context.Context) ([]core.Delivery, error) {
	result, err := r.ReconcileDetailed(ctx)
	return result.Deliveries, err
}

func (r *blockingReconciler) ReconcileDetailed(ctx context.Context) (core.ReconcileResult, error) {
	r.once.Do(func() { close(r.started) })
	<-ctx.Done()
	return core.ReconcileResult{}, ctx.Err()
}

type stubQueue struct {
	deliveries []*stubDelivery
}

func (q *stubQueue) Dequeue(context.Context) (core.JobDelivery, error) {
	if len(q.deliveries) == 0 {
		return nil, nil
	}
	next := q.deliveries[0]
	q.deliveries = q.deliveries[1:]
	return next, nil
}

type stubDelivery struct {
	msg    *core.JobExecutionMessage
	acked  bool
	nacked bool
	nack   core.JobNackOptions
}

func (d *stubDelivery) Message() *core.JobExecutionMessage { return d.msg }

func (d *stubDelivery) Ack(context.Context) error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(_ context.Context, opts core.JobNackOptions) error {
	d.nacked = true
	d.nack = opts
	return nil
}

type recordingHook struct {
	stages []string
	last   core.JobWorkerEvent
}

func (h *recordingHook) OnStart(_ context.Context, e core.JobWorkerEvent) {
	h.stages = append(h.stages, "start")
	h.last = e
}

func (h *recordingHook) OnSuccess(_ context.Context, e core.JobWorkerEvent) {
	h.stages = append(h.stages, "success")
	h.last = e
}

func (h *recordingHook) OnFailure(_ context.Context, e core.JobWorkerEvent) {
	h.stages = append(h.stages, "failure")
	h.last = e
}

func (h *recordingHook) OnRetry(_ context.Context, e core.JobWorkerEvent) {
	h.stages = append(h.stages, "retry")
	h.last = e
}

func fixedNow(now time.Time) func() time.Time {
	return func() time.Time { return now }
}
