package gojob

import (
	"context"

	"github.com/goliatone/go-deliveries/core"

	"github.com/goliatone/go-job/queue/worker"
)

// WorkerHookAdapter lets a go-job worker report into engine hooks.
type WorkerHookAdapter struct {
	hook core.JobWorkerHook
}

func NewWorkerHookAdapter(hook core.JobWorkerHook) *WorkerHookAdapter {
	return &WorkerHookAdapter{hook: hook}
}

func (a *WorkerHookAdapter) OnStart(ctx context.Context, event worker.Event) {
	a.forward(event, func(e core.JobWorkerEvent) { a.hook.OnStart(ctx, e) })
}

func (a *WorkerHookAdapter) OnSuccess(ctx context.Context, event worker.Event) {
	a.forward(event, func(e core.JobWorkerEvent) { a.hook.OnSuccess(ctx, e) })
}

func (a *WorkerHookAdapter) OnFailure(ctx context.Context, event worker.Event) {
	a.forward(event, func(e core.JobWorkerEvent) { a.hook.OnFailure(ctx, e) })
}

func (a *WorkerHookAdapter) OnRetry(ctx context.Context, event worker.Event) {
	a.forward(event, func(e core.JobWorkerEvent) { a.hook.OnRetry(ctx, e) })
}

func (a *WorkerHookAdapter) forward(event worker.Event, emit func(core.JobWorkerEvent)) {
	if a == nil || a.hook == nil {
		return
	}
	msg := event.Message
	if msg == nil && event.Delivery != nil {
		msg = event.Delivery.Message()
	}
	emit(core.JobWorkerEvent{
		Message:   FromExecutionMessage(msg),
		Attempt:   event.Attempt,
		Delay:     event.Delay,
		Err:       event.Err,
		StartedAt: event.StartedAt,
		Duration:  event.Duration,
	})
}

// LoggingHook writes reconcile job lifecycle events to a logger.
type LoggingHook struct {
	logger core.Logger
}

func NewLoggingHook(logger core.Logger) *LoggingHook {
	return &LoggingHook{logger: logger}
}

func (h *LoggingHook) OnStart(ctx context.Context, event core.JobWorkerEvent) {
	if logger := h.scoped(ctx); logger != nil {
		logger.Debug("reconcile job started", eventFields(event)...)
	}
}

func (h *LoggingHook) OnSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if logger := h.scoped(ctx); logger != nil {
		logger.Info("reconcile job succeeded", eventFields(event)...)
	}
}

func (h *LoggingHook) OnFailure(ctx context.Context, event core.JobWorkerEvent) {
	if logger := h.scoped(ctx); logger != nil {
		logger.Error("reconcile job failed", eventFields(event)...)
	}
}

func (h *LoggingHook) OnRetry(ctx context.Context, event core.JobWorkerEvent) {
	if logger := h.scoped(ctx); logger != nil {
		logger.Warn("reconcile job scheduled for retry", eventFields(event)...)
	}
}

func (h *LoggingHook) scoped(ctx context.Context) core.Logger {
	if h == nil || h.logger == nil {
		return nil
	}
	return h.logger.WithContext(ctx)
}

func eventFields(event core.JobWorkerEvent) []any {
	fields := []any{"attempt", event.Attempt, "duration_ms", event.Duration.Milliseconds()}
	if msg := event.Message; msg != nil {
		fields = append(fields, "job_id", msg.JobID, "idempotency_key", msg.IdempotencyKey)
		if source, ok := msg.Parameters["source"]; ok {
			fields = append(fields, "source", source)
		}
	}
	if event.Delay > 0 {
		fields = append(fields, "delay", event.Delay.String())
	}
	if event.Err != nil {
		fields = append(fields, "error", event.Err.Error())
	}
	return fields
}

var (
	_ worker.Hook        = (*WorkerHookAdapter)(nil)
	_ core.JobWorkerHook = (*LoggingHook)(nil)
)
