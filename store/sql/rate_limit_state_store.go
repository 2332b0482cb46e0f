package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/ratelimit"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

var errRateLimitsUnset = errors.New("sqlstore: rate-limit state store is not configured")

// rateLimitUpdates are the columns refreshed when a bucket row already exists.
var rateLimitUpdates = []string{
	"request_limit", "remaining", "reset_at", "retry_after_seconds",
	"throttled_until", "last_status", "attempts", "metadata", "updated_at",
}

// RateLimitStateStore persists provider throttle memory so it survives
// restarts between scheduled runs. One row per normalized bucket key.
type RateLimitStateStore struct {
	db *bun.DB
}

func NewRateLimitStateStore(db *bun.DB) (*RateLimitStateStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	return &RateLimitStateStore{db: db}, nil
}

func (s *RateLimitStateStore) Get(ctx context.Context, key core.RateLimitKey) (ratelimit.State, error) {
	if s == nil || s.db == nil {
		return ratelimit.State{}, errRateLimitsUnset
	}
	key = ratelimit.NormalizeKey(key)
	if err := ratelimit.ValidateKey(key); err != nil {
		return ratelimit.State{}, err
	}

	record := &rateLimitStateRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.provider_id = ?", key.ProviderID).
		Where("?TableAlias.account_key = ?", key.AccountKey).
		Where("?TableAlias.bucket_key = ?", key.BucketKey).
		Limit(1).
		Scan(ctx)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ratelimit.State{}, ratelimit.ErrStateNotFound
	case err != nil:
		return ratelimit.State{}, err
	}
	return record.toDomain(), nil
}

// Upsert writes the bucket in one statement, keyed on the unique
// (provider_id, account_key, bucket_key) constraint.
func (s *RateLimitStateStore) Upsert(ctx context.Context, state ratelimit.State) error {
	if s == nil || s.db == nil {
		return errRateLimitsUnset
	}
	state.Key = ratelimit.NormalizeKey(state.Key)
	if err := ratelimit.ValidateKey(state.Key); err != nil {
		return err
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	query := s.db.NewInsert().
		Model(newRateLimitStateRecord(state)).
		On("CONFLICT (provider_id, account_key, bucket_key) DO UPDATE")
	for _, column := range rateLimitUpdates {
		query = query.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
	}
	_, err := query.Exec(ctx)
	return err
}

func newRateLimitStateRecord(state ratelimit.State) *rateLimitStateRecord {
	updated := state.UpdatedAt.UTC()
	record := &rateLimitStateRecord{
		ID:             uuid.NewString(),
		ProviderID:     state.Key.ProviderID,
		AccountKey:     state.Key.AccountKey,
		BucketKey:      state.Key.BucketKey,
		Limit:          state.Limit,
		Remaining:      state.Remaining,
		ResetAt:        utcPointer(state.ResetAt),
		ThrottledUntil: utcPointer(state.ThrottledUntil),
		LastStatus:     state.LastStatus,
		Attempts:       state.Attempts,
		Metadata:       copyAnyMap(state.Metadata),
		CreatedAt:      updated,
		UpdatedAt:      updated,
	}
	if state.RetryAfter != nil && *state.RetryAfter > 0 {
		seconds := int(state.RetryAfter.Round(time.Second) / time.Second)
		record.RetryAfterSeconds = &seconds
	}
	return record
}

func (r *rateLimitStateRecord) toDomain() ratelimit.State {
	state := ratelimit.State{
		Key:            core.RateLimitKey{ProviderID: r.ProviderID, AccountKey: r.AccountKey, BucketKey: r.BucketKey},
		Limit:          r.Limit,
		Remaining:      r.Remaining,
		ResetAt:        utcPointer(r.ResetAt),
		ThrottledUntil: utcPointer(r.ThrottledUntil),
		LastStatus:     r.LastStatus,
		Attempts:       r.Attempts,
		UpdatedAt:      r.UpdatedAt.UTC(),
		Metadata:       copyAnyMap(r.Metadata),
	}
	if r.RetryAfterSeconds != nil && *r.RetryAfterSeconds > 0 {
		wait := time.Duration(*r.RetryAfterSeconds) * time.Second
		state.RetryAfter = &wait
	}
	return state
}

// copyAnyMap never returns nil so jsonb columns stay notnull.
func copyAnyMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	maps.Copy(out, in)
	return out
}
