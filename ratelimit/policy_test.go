package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

type policyHarness struct {
	policy *AdaptivePolicy
	store  *MemoryStateStore
	now    time.Time
}

func newPolicyHarness() *policyHarness {
	h := &policyHarness{store: NewMemoryStateStore(), now: time.Unix(1_700_000_000, 0).UTC()}
	h.policy = NewAdaptivePolicy(h.store)
	h.policy.Now = func() time.Time { return h.now }
	return h
}

func (h *policyHarness) respond(t *testing.T, key core.RateLimitKey, status int, headers map[string]string) State {
	t.Helper()
	meta := core.ProviderResponseMeta{StatusCode: status, Headers: headers}
	if err := h.policy.AfterCall(context.Background(), key, meta); err != nil {
		t.Fatalf("after call (%d): %v", status, err)
	}
	state, err := h.store.Get(context.Background(), NormalizeKey(key))
	if err != nil {
		t.Fatalf("get state: %v", err)
	}
	return state
}

func ordersKey() core.RateLimitKey {
	return core.RateLimitKey{ProviderID: "mercadolivre", AccountKey: "loja", BucketKey: "orders_search"}
}

func TestAdaptivePolicy_UnknownBucketIsOpen(t *testing.T) {
	h := newPolicyHarness()
	if err := h.policy.BeforeCall(context.Background(), ordersKey()); err != nil {
		t.Fatalf("expected open bucket, got %v", err)
	}
	var nilPolicy *AdaptivePolicy
	if err := nilPolicy.BeforeCall(context.Background(), ordersKey()); err != nil {
		t.Fatalf("expected nil policy to allow calls, got %v", err)
	}
}

func TestAdaptivePolicy_RecordsQuotaHeaders(t *testing.T) {
	h := newPolicyHarness()
	state := h.respond(t, ordersKey(), http.StatusOK, map[string]string{
		"x-ratelimit-limit":     " 50 ",
		"X-RateLimit-Remaining": "12",
		"X-RateLimit-Reset":     "1700000030",
	})
	if state.Limit != 50 || state.Remaining != 12 {
		t.Fatalf("expected 12 of 50 remaining, got %d/%d", state.Remaining, state.Limit)
	}
	if state.ResetAt == nil || !state.ResetAt.Equal(h.now.Add(30*time.Second)) {
		t.Fatalf("unexpected reset %+v", state.ResetAt)
	}
	if state.ThrottledUntil != nil || state.Attempts != 0 {
		t.Fatalf("expected an open bucket, got %+v", state)
	}
}

func TestAdaptivePolicy_ThrottleLifecycle(t *testing.T) {
	h := newPolicyHarness()
	key := ordersKey()

	state := h.respond(t, key, http.StatusTooManyRequests, map[string]string{"Retry-After": "15"})
	if state.Attempts != 1 || state.RetryAfter == nil || *state.RetryAfter != 15*time.Second {
		t.Fatalf("expected first throttle with retry-after, got %+v", state)
	}

	err := h.policy.BeforeCall(context.Background(), key)
	var throttled ThrottledError
	if !errors.As(err, &throttled) || throttled.RetryAfter != 15*time.Second {
		t.Fatalf("expected 15s throttle, got %v", err)
	}

	h.now = h.now.Add(16 * time.Second)
	if err := h.policy.BeforeCall(context.Background(), key); err != nil {
		t.Fatalf("expected bucket to reopen, got %v", err)
	}
	state = h.respond(t, key, http.StatusOK, nil)
	if state.Attempts != 0 || state.ThrottledUntil != nil || state.RetryAfter != nil {
		t.Fatalf("expected success to clear throttle, got %+v", state)
	}
}

func TestAdaptivePolicy_BackoffDoublesUpToMax(t *testing.T) {
	h := newPolicyHarness()
	h.policy.InitialBackoff = 3 * time.Second
	h.policy.MaxBackoff = 10 * time.Second

	for i, want := range []time.Duration{3 * time.Second, 6 * time.Second, 10 * time.Second, 10 * time.Second} {
		state := h.respond(t, ordersKey(), http.StatusTooManyRequests, nil)
		if state.Attempts != i+1 {
			t.Fatalf("call %d: attempts %d", i+1, state.Attempts)
		}
		if got := state.ThrottledUntil.Sub(h.now); got != want {
			t.Fatalf("call %d: expected %s backoff, got %s", i+1, want, got)
		}
	}
}

func TestAdaptivePolicy_ExhaustedQuotaWaitsForReset(t *testing.T) {
	h := newPolicyHarness()
	key := ordersKey()
	h.respond(t, key, http.StatusOK, map[string]string{
		"X-RateLimit-Limit":     "50",
		"X-RateLimit-Remaining": "0",
		"X-RateLimit-Reset":     "1700000040",
	})
	err := h.policy.BeforeCall(context.Background(), key)
	var throttled ThrottledError
	if !errors.As(err, &throttled) {
		t.Fatalf("expected exhausted quota to throttle, got %v", err)
	}
	if throttled.RetryAfter != 40*time.Second {
		t.Fatalf("expected to wait for the reset, got %s", throttled.RetryAfter)
	}
}

func TestAdaptivePolicy_IgnoresServerErrors(t *testing.T) {
	h := newPolicyHarness()
	state := h.respond(t, ordersKey(), http.StatusServiceUnavailable, map[string]string{"X-RateLimit-Remaining": "0"})
	if state.ThrottledUntil != nil {
		t.Fatalf("expected 5xx to leave bucket open, got %+v", state)
	}
	if err := h.policy.BeforeCall(context.Background(), ordersKey()); err != nil {
		t.Fatalf("expected call allowed, got %v", err)
	}
}

func TestAdaptivePolicy_SharesStateAcrossKeySpellings(t *testing.T) {
	h := newPolicyHarness()
	spelled := core.RateLimitKey{ProviderID: " MercadoLivre ", AccountKey: " loja ", BucketKey: "Orders_Search"}
	h.respond(t, spelled, http.StatusTooManyRequests, nil)
	if err := h.policy.BeforeCall(context.Background(), ordersKey()); err == nil {
		t.Fatalf("expected canonical key to see the throttle")
	}
}

func TestThrottledError_ServiceEnvelope(t *testing.T) {
	serviceErr := ThrottledError{ProviderID: "serpapi", BucketKey: "image_search", RetryAfter: 1500 * time.Millisecond}.ToServiceError()
	if serviceErr.Category != goerrors.CategoryRateLimit || serviceErr.Code != http.StatusTooManyRequests {
		t.Fatalf("unexpected envelope %+v", serviceErr)
	}
	if serviceErr.TextCode != core.ServiceErrorRateLimited || serviceErr.Metadata["retry_after_ms"] != int64(1500) {
		t.Fatalf("unexpected text code or metadata %+v", serviceErr)
	}
}
