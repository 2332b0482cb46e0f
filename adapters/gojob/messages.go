package gojob

import (
	"fmt"
	"maps"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const (
	JobIDReconcile  = core.JobIDReconcile
	ScriptReconcile = "deliveries/reconcile"

	dedupPolicyDrop = "drop"
)

// NewReconcileMessage builds a queued reconciliation for accountKey. Messages
// for the same account and time slot share an idempotency key, so a queue that
// honors the drop policy keeps only the first.
func NewReconcileMessage(accountKey string, slot time.Time, attempt int) *core.JobExecutionMessage {
	accountKey = strings.TrimSpace(accountKey)
	return &core.JobExecutionMessage{
		JobID:      JobIDReconcile,
		ScriptPath: ScriptReconcile,
		Parameters: map[string]any{
			"account_key": accountKey,
			"attempt":     max(attempt, 1),
		},
		IdempotencyKey: fmt.Sprintf("reconcile:%s:%d", accountKey, slot.UTC().Unix()),
		DedupPolicy:    dedupPolicyDrop,
	}
}

// MessageAttempt reads the 1-based attempt parameter, tolerating the numeric
// types JSON and in-process producers use.
func MessageAttempt(parameters map[string]any) int {
	switch value := parameters["attempt"].(type) {
	case int:
		return max(value, 1)
	case int64:
		return max(int(value), 1)
	case float64:
		return max(int(value), 1)
	default:
		return 1
	}
}

func ToExecutionMessage(msg *core.JobExecutionMessage) *job.ExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &job.ExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    job.DeduplicationPolicy(strings.TrimSpace(msg.DedupPolicy)),
	}
	out.Parameters = parametersOf(msg.Parameters)
	return out
}

func FromExecutionMessage(msg *job.ExecutionMessage) *core.JobExecutionMessage {
	if msg == nil {
		return nil
	}
	out := &core.JobExecutionMessage{
		JobID:          strings.TrimSpace(msg.JobID),
		ScriptPath:     strings.TrimSpace(msg.ScriptPath),
		IdempotencyKey: strings.TrimSpace(msg.IdempotencyKey),
		DedupPolicy:    strings.TrimSpace(string(msg.DedupPolicy)),
	}
	out.Parameters = parametersOf(msg.Parameters)
	return out
}

func ToNackOptions(opts core.JobNackOptions) queue.NackOptions {
	var out queue.NackOptions
	out.Delay, out.Requeue = opts.Delay, opts.Requeue
	out.DeadLetter, out.Reason = opts.DeadLetter, opts.Reason
	return out
}

func cloneExecutionMessage(msg *job.ExecutionMessage) *job.ExecutionMessage {
	out := *msg
	out.Parameters = parametersOf(msg.Parameters)
	return &out
}

// parametersOf always returns a writable map.
func parametersOf(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}
