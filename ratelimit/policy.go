package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"time"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultInitialBackoff = time.Minute
	DefaultMaxBackoff     = time.Hour
)

// ThrottledError is returned by BeforeCall while a bucket is closed.
type ThrottledError struct {
	ProviderID string
	BucketKey  string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: %s/%s throttled for %s", e.ProviderID, e.BucketKey, e.RetryAfter)
}

// ToServiceError exposes the wait as retry_after_ms so callers can schedule
// the next attempt.
func (e ThrottledError) ToServiceError() *goerrors.Error {
	meta := map[string]any{"provider_id": e.ProviderID, "bucket_key": e.BucketKey}
	if e.RetryAfter > 0 {
		meta["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	throttled := goerrors.New(e.Error(), goerrors.CategoryRateLimit).WithMetadata(meta)
	return throttled.WithCode(http.StatusTooManyRequests).WithTextCode(core.ServiceErrorRateLimited)
}

// AdaptivePolicy remembers throttling signals per provider bucket. A 429 or an
// exhausted quota blocks further calls until Retry-After, the quota reset, or
// an exponential backoff elapses.
type AdaptivePolicy struct {
	Store          StateStore
	Now            func() time.Time
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewAdaptivePolicy(store StateStore) *AdaptivePolicy {
	return &AdaptivePolicy{
		Store:          store,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// BeforeCall refuses a call while the bucket is throttled.
func (p *AdaptivePolicy) BeforeCall(ctx context.Context, key core.RateLimitKey) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, NormalizeKey(key))
	if errors.Is(err, ErrStateNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if wait := state.blockedFor(p.now()); wait > 0 {
		return ThrottledError{ProviderID: state.Key.ProviderID, BucketKey: state.Key.BucketKey, RetryAfter: wait}
	}
	return nil
}

// AfterCall folds the response quota into the bucket state. An exhausted
// bucket stays closed for Retry-After when given, then until the quota reset,
// or for the next backoff step otherwise. Any other response reopens it.
func (p *AdaptivePolicy) AfterCall(ctx context.Context, key core.RateLimitKey, res core.ProviderResponseMeta) error {
	if p == nil || p.Store == nil {
		return nil
	}
	key = NormalizeKey(key)
	state, err := p.Store.Get(ctx, key)
	if errors.Is(err, ErrStateNotFound) {
		state, err = State{Key: key}, nil
	}
	if err != nil {
		return err
	}

	now := p.now()
	q := readQuota(res, now)
	state.LastStatus, state.UpdatedAt = res.StatusCode, now
	state.Metadata = cloneMetadata(state.Metadata)
	maps.Copy(state.Metadata, res.Metadata)
	if q.hasLimit {
		state.Limit = q.limit
	}
	if q.hasRemaining {
		state.Remaining = q.remaining
	}
	if q.hasResetAt {
		state.ResetAt = &q.resetAt
	}
	state.RetryAfter = nil
	if q.hasRetryAfter {
		state.RetryAfter = &q.retryAfter
	}

	if !q.exhausted(res.StatusCode, state.Remaining) {
		state.Attempts, state.ThrottledUntil = 0, nil
		return p.Store.Upsert(ctx, state)
	}
	state.Attempts++
	wait, known := q.retryAfter, q.hasRetryAfter
	if !known && q.hasResetAt && q.resetAt.After(now) {
		wait, known = q.resetAt.Sub(now), true
	}
	if !known {
		wait = p.nextBackoff(state.Attempts)
	}
	until := now.Add(wait)
	state.ThrottledUntil = &until
	return p.Store.Upsert(ctx, state)
}

func (p *AdaptivePolicy) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

// nextBackoff doubles from InitialBackoff per consecutive throttle, capped
// at MaxBackoff.
func (p *AdaptivePolicy) nextBackoff(attempt int) time.Duration {
	delay, ceiling := p.InitialBackoff, p.MaxBackoff
	if delay <= 0 {
		delay = DefaultInitialBackoff
	}
	if ceiling <= 0 {
		ceiling = DefaultMaxBackoff
	}
	for step := 1; step < attempt && delay < ceiling; step++ {
		delay *= 2
	}
	return min(delay, ceiling)
}

var _ core.RateLimitPolicy = (*AdaptivePolicy)(nil)
