package gojob

import (
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

// RetryPolicy bounds how long and how often a failed reconcile is retried.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// DefaultRetryPolicy dead-letters a reconcile after five attempts and caps
// the backoff at one hour.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 5, MaxDelay: time.Hour, DeadLetterOnMax: true}
}

// NormalizeAttempt clamps opts for the given attempt. The result always
// either requeues or dead-letters; without DeadLetterOnMax an exhausted job
// keeps requeueing at MaxDelay.
func (p RetryPolicy) NormalizeAttempt(opts core.JobNackOptions, attempt int) core.JobNackOptions {
	opts.Reason = strings.TrimSpace(opts.Reason)
	opts.Delay = max(opts.Delay, 0)
	if p.MaxDelay > 0 {
		opts.Delay = min(opts.Delay, p.MaxDelay)
	}

	exhausted := p.MaxAttempts > 0 && attempt >= p.MaxAttempts
	switch {
	case opts.DeadLetter:
		opts.Requeue = false
	case exhausted && p.DeadLetterOnMax:
		opts.Requeue, opts.DeadLetter = false, true
	}
	if !opts.Requeue && !opts.DeadLetter {
		opts.Requeue = true
	}
	return opts
}
