package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	"github.com/robfig/cron/v3"
)

type SchedulerConfig struct {
	Spec        string
	MinInterval time.Duration
	Location    *time.Location
}

// Scheduler runs the ledger on a cron spec. A tick is recorded as skipped
// when the last successful run is younger than MinInterval.
type Scheduler struct {
	ledger *RunLedger
	cfg    SchedulerConfig
	cron   *cron.Cron
	entry  cron.EntryID
	logger core.Logger

	// ctx scopes scheduled ticks and is cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(ledger *RunLedger, cfg SchedulerConfig, logger core.Logger) (*Scheduler, error) {
	if ledger == nil {
		return nil, fmt.Errorf("sync: scheduler requires a run ledger")
	}
	cfg.Spec = strings.TrimSpace(cfg.Spec)
	if cfg.Spec == "" {
		cfg.Spec = core.DefaultScheduleSpec
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("sync: invalid schedule %q: %w", cfg.Spec, err)
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	cronLogger := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	scheduler := &Scheduler{
		ledger: ledger,
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
	}
	entry, err := scheduler.cron.AddFunc(cfg.Spec, func() {
		_, _ = scheduler.Tick(scheduler.ctx)
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("sync: register schedule: %w", err)
	}
	scheduler.entry = entry
	return scheduler, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels any in-flight tick and returns a context
// that is done once that tick returned.
func (s *Scheduler) Stop() context.Context {
	s.cancel()
	return s.cron.Stop()
}

// Next reports when the next tick fires. Zero until Start was called.
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entry).Next
}

// Tick runs one scheduled reconciliation, honoring the freshness window.
func (s *Scheduler) Tick(ctx context.Context) (RunOutcome, error) {
	fresh, err := s.ledger.IsFresh(ctx, s.cfg.MinInterval)
	if err != nil {
		s.ledger.log(ctx, "warn", "sync freshness check failed", map[string]any{"error": err.Error()})
	}
	if fresh {
		run, skipErr := s.ledger.Skip(ctx, core.SyncRunTriggerSchedule, "fresh")
		return RunOutcome{Run: run}, skipErr
	}
	outcome, err := s.ledger.Run(ctx, core.SyncRunTriggerSchedule, map[string]any{"schedule": s.cfg.Spec})
	if err != nil {
		s.ledger.log(ctx, "error", "scheduled sync failed", map[string]any{
			"run_id": outcome.Run.ID,
			"error":  err.Error(),
		})
		return outcome, err
	}
	s.ledger.log(ctx, "info", "scheduled sync succeeded", map[string]any{
		"run_id":         outcome.Run.ID,
		"deliveries_out": outcome.Run.DeliveriesOut,
	})
	return outcome, nil
}

type cronLogger struct {
	logger core.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Debug("cron: "+msg, keysAndValues...)
	}
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	if l.logger != nil {
		l.logger.Error("cron: "+msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

var _ cron.Logger = cronLogger{}
