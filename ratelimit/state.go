package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// State is the throttle memory kept for one provider bucket.
type State struct {
	Key            core.RateLimitKey
	Limit          int
	Remaining      int
	ResetAt        *time.Time
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
	Metadata       map[string]any
}

// blockedFor returns how long calls must wait at now, or zero when the
// bucket is open.
func (s State) blockedFor(now time.Time) time.Duration {
	if s.ThrottledUntil != nil && now.Before(*s.ThrottledUntil) {
		return s.ThrottledUntil.Sub(now)
	}
	if s.Remaining == 0 && s.ResetAt != nil && now.Before(*s.ResetAt) {
		return s.ResetAt.Sub(now)
	}
	return 0
}

type StateStore interface {
	Get(ctx context.Context, key core.RateLimitKey) (State, error)
	Upsert(ctx context.Context, state State) error
}

// NormalizeKey trims every segment and lowercases provider and bucket.
// Account keys stay case sensitive.
func NormalizeKey(key core.RateLimitKey) core.RateLimitKey {
	key.ProviderID = strings.ToLower(strings.TrimSpace(key.ProviderID))
	key.AccountKey = strings.TrimSpace(key.AccountKey)
	key.BucketKey = strings.ToLower(strings.TrimSpace(key.BucketKey))
	return key
}

func ValidateKey(key core.RateLimitKey) error {
	for _, part := range []struct{ name, value string }{
		{"provider id", key.ProviderID},
		{"account key", key.AccountKey},
		{"bucket key", key.BucketKey},
	} {
		if strings.TrimSpace(part.value) == "" {
			return fmt.Errorf("ratelimit: %s is required", part.name)
		}
	}
	return nil
}

// MemoryStateStore keeps bucket state in process, for tests and for
// deployments without a database.
type MemoryStateStore struct {
	mu     sync.RWMutex
	states map[core.RateLimitKey]State
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{states: map[core.RateLimitKey]State{}}
}

func (s *MemoryStateStore) Get(_ context.Context, key core.RateLimitKey) (State, error) {
	if s == nil {
		return State{}, fmt.Errorf("ratelimit: state store is nil")
	}
	s.mu.RLock()
	state, ok := s.states[NormalizeKey(key)]
	s.mu.RUnlock()
	if !ok {
		return State{}, ErrStateNotFound
	}
	state.Metadata = cloneMetadata(state.Metadata)
	return state, nil
}

func (s *MemoryStateStore) Upsert(_ context.Context, state State) error {
	if s == nil {
		return fmt.Errorf("ratelimit: state store is nil")
	}
	state.Key = NormalizeKey(state.Key)
	state.Metadata = cloneMetadata(state.Metadata)
	s.mu.Lock()
	s.states[state.Key] = state
	s.mu.Unlock()
	return nil
}

func cloneMetadata(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}

var _ StateStore = (*MemoryStateStore)(nil)
