package sqlstore

import (
	"context"
	"fmt"
	"net/url"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/ratelimit"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const rateLimitStateCacheKeyPrefix = "go-deliveries::ratelimit_state::v1"

var errCachedRateLimitsUnset = fmt.Errorf("sqlstore: cached rate-limit state store is not configured")

// CachedRateLimitStateStore reads bucket state through the repository cache.
// Writes go to the base store first and then invalidate the cached entry.
type CachedRateLimitStateStore struct {
	base  ratelimit.StateStore
	cache repositorycache.CacheService
}

func NewCachedRateLimitStateStore(base ratelimit.StateStore, cacheService repositorycache.CacheService) (*CachedRateLimitStateStore, error) {
	switch {
	case base == nil:
		return nil, fmt.Errorf("sqlstore: base rate-limit state store is required")
	case cacheService == nil:
		return nil, fmt.Errorf("sqlstore: rate-limit cache service is required")
	}
	return &CachedRateLimitStateStore{base: base, cache: cacheService}, nil
}

// RateLimitStateCacheKey builds the cache key for a bucket:
// <prefix>::<provider>::<account_key>::<bucket_key>, segments normalized and
// path-escaped.
func RateLimitStateCacheKey(key core.RateLimitKey) (string, error) {
	key = ratelimit.NormalizeKey(key)
	if err := ratelimit.ValidateKey(key); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s::%s::%s::%s",
		rateLimitStateCacheKeyPrefix,
		url.PathEscape(key.ProviderID),
		url.PathEscape(key.AccountKey),
		url.PathEscape(key.BucketKey),
	), nil
}

func (s *CachedRateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return ratelimit.State{}, errCachedRateLimitsUnset
	}
	key = ratelimit.NormalizeKey(key)
	cacheKey, err := RateLimitStateCacheKey(key)
	if err != nil {
		return ratelimit.State{}, err
	}
	load := func(ctx context.Context) (ratelimit.State, error) {
		state, err := s.base.Get(ctx, key)
		return cloneRateLimitState(state), err
	}
	state, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, load)
	if err != nil {
		return ratelimit.State{}, err
	}
	return cloneRateLimitState(state), nil
}

func (s *CachedRateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.base == nil || s.cache == nil {
		return errCachedRateLimitsUnset
	}
	state = cloneRateLimitState(state)
	cacheKey, err := RateLimitStateCacheKey(state.Key)
	if err != nil {
		return err
	}
	if err := s.base.Upsert(ctx, state); err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

// cloneRateLimitState deep copies pointers and metadata so cached values are
// never shared with callers.
func cloneRateLimitState(state ratelimit.State) ratelimit.State {
	state.Key = ratelimit.NormalizeKey(state.Key)
	state.Metadata = copyAnyMap(state.Metadata)
	state.ResetAt = utcPointer(state.ResetAt)
	state.ThrottledUntil = utcPointer(state.ThrottledUntil)
	if state.RetryAfter != nil {
		wait := *state.RetryAfter
		state.RetryAfter = &wait
	}
	return state
}
