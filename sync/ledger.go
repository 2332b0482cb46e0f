// Package sync triggers reconciliation runs and records them in the run ledger.
package sync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

// RunLedger wraps every reconciliation in a SyncRun entry.
type RunLedger struct {
	Runs       core.SyncRunStore
	Reconciler core.Reconciler
	AccountKey string
	Now        func() time.Time
	Logger     core.Logger
}

func NewRunLedger(runs core.SyncRunStore, reconciler core.Reconciler, accountKey string) *RunLedger {
	return &RunLedger{
		Runs:       runs,
		Reconciler: reconciler,
		AccountKey: strings.TrimSpace(accountKey),
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// RunOutcome is what a ledger run produced.
type RunOutcome struct {
	Run    core.SyncRun
	Result core.ReconcileResult
}

// Run reconciles once and records the outcome. A run rejected because another
// one is in flight is recorded as skipped and still returns the error.
func (l *RunLedger) Run(ctx context.Context, trigger core.SyncRunTrigger, metadata map[string]any) (RunOutcome, error) {
	if l == nil || l.Reconciler == nil {
		return RunOutcome{}, fmt.Errorf("sync: run ledger requires a reconciler")
	}
	run, err := l.begin(ctx, trigger, metadata)
	if err != nil {
		return RunOutcome{}, err
	}

	result, runErr := l.Reconciler.ReconcileDetailed(ctx)
	run.OrdersSeen = result.OrdersSeen
	run.DeliveriesOut = len(result.Deliveries)
	run.Metadata = mergeMetadata(run.Metadata, map[string]any{
		"duplicates":       result.Duplicates,
		"image_searches":   result.ImageSearches,
		"forecast_lookups": result.ForecastLookups,
	})

	status := core.SyncRunStatusSucceeded
	if runErr != nil {
		status = core.SyncRunStatusFailed
		if core.IsReconcileInProgress(runErr) {
			status = core.SyncRunStatusSkipped
		}
		run.Error = runErr.Error()
	}
	recorded, finishErr := l.finish(context.WithoutCancel(ctx), run, status)
	if finishErr != nil {
		l.log(ctx, "warn", "sync run ledger update failed", map[string]any{
			"run_id": run.ID,
			"error":  finishErr.Error(),
		})
	}
	return RunOutcome{Run: recorded, Result: result}, runErr
}

// Skip records a run that was not attempted.
func (l *RunLedger) Skip(ctx context.Context, trigger core.SyncRunTrigger, reason string) (core.SyncRun, error) {
	run, err := l.begin(ctx, trigger, map[string]any{"skip_reason": strings.TrimSpace(reason)})
	if err != nil {
		return core.SyncRun{}, err
	}
	return l.finish(ctx, run, core.SyncRunStatusSkipped)
}

// LastSuccess returns the most recent successful run, or false when there is none.
func (l *RunLedger) LastSuccess(ctx context.Context) (core.SyncRun, bool, error) {
	if l == nil || l.Runs == nil {
		return core.SyncRun{}, false, nil
	}
	run, err := l.Runs.LatestByStatus(ctx, l.AccountKey, core.SyncRunStatusSucceeded)
	if err != nil {
		if errors.Is(err, core.ErrSyncRunNotFound) {
			return core.SyncRun{}, false, nil
		}
		return core.SyncRun{}, false, err
	}
	return run, true, nil
}

// IsFresh reports whether the last successful run finished within minInterval.
func (l *RunLedger) IsFresh(ctx context.Context, minInterval time.Duration) (bool, error) {
	if minInterval <= 0 {
		return false, nil
	}
	run, ok, err := l.LastSuccess(ctx)
	if err != nil || !ok {
		return false, err
	}
	finished := run.StartedAt
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	return l.now().Sub(finished) < minInterval, nil
}

func (l *RunLedger) begin(ctx context.Context, trigger core.SyncRunTrigger, metadata map[string]any) (core.SyncRun, error) {
	run := core.SyncRun{
		AccountKey: l.AccountKey,
		Trigger:    trigger,
		Status:     core.SyncRunStatusRunning,
		StartedAt:  l.now(),
		Metadata:   mergeMetadata(nil, metadata),
	}
	if l.Runs == nil {
		return run, nil
	}
	created, err := l.Runs.Create(ctx, run)
	if err != nil {
		return core.SyncRun{}, fmt.Errorf("sync: create run: %w", err)
	}
	return created, nil
}

func (l *RunLedger) finish(ctx context.Context, run core.SyncRun, status core.SyncRunStatus) (core.SyncRun, error) {
	if err := run.TransitionTo(status, l.now()); err != nil {
		return run, err
	}
	if l.Runs == nil {
		return run, nil
	}
	return l.Runs.Update(ctx, run)
}

func (l *RunLedger) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *RunLedger) log(ctx context.Context, level string, message string, fields map[string]any) {
	if l == nil || l.Logger == nil {
		return
	}
	args := make([]any, 0, len(fields)*2)
	for key, value := range fields {
		args = append(args, key, value)
	}
	logger := l.Logger.WithContext(ctx)
	switch level {
	case "warn":
		logger.Warn(message, args...)
	case "error":
		logger.Error(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func mergeMetadata(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for key, value := range base {
		out[key] = value
	}
	for key, value := range extra {
		if strings.TrimSpace(key) == "" {
			continue
		}
		out[key] = value
	}
	return out
}
