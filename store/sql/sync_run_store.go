package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SyncRunStore is the reconciliation run ledger.
type SyncRunStore struct {
	db   *bun.DB
	repo repository.Repository[*syncRunRecord]
}

func NewSyncRunStore(db *bun.DB) (*SyncRunStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*syncRunRecord](db, syncRunHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid sync run repository wiring: %w", err)
		}
	}
	return &SyncRunStore{db: db, repo: repo}, nil
}

func (s *SyncRunStore) Create(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	if strings.TrimSpace(run.AccountKey) == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run account key is required")
	}
	if strings.TrimSpace(run.ID) == "" {
		run.ID = uuid.NewString()
	}
	if run.Status == "" {
		run.Status = core.SyncRunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	record := newSyncRunRecord(run)
	record.CreatedAt = record.StartedAt
	record.UpdatedAt = record.StartedAt
	created, err := s.repo.Create(ctx, record)
	if err != nil {
		return core.SyncRun{}, err
	}
	return created.toDomain(), nil
}

func (s *SyncRunStore) Update(ctx context.Context, run core.SyncRun) (core.SyncRun, error) {
	if s == nil || s.repo == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	id := strings.TrimSpace(run.ID)
	if id == "" {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run id is required")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return core.SyncRun{}, err
	}
	record := newSyncRunRecord(run)
	record.StartedAt = current.StartedAt
	record.CreatedAt = current.StartedAt
	record.UpdatedAt = time.Now().UTC()
	if _, err := s.repo.Update(ctx, record, repository.UpdateByID(id)); err != nil {
		return core.SyncRun{}, err
	}
	return s.Get(ctx, id)
}

func (s *SyncRunStore) Get(ctx context.Context, id string) (core.SyncRun, error) {
	if s == nil || s.db == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	record := &syncRunRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", strings.TrimSpace(id)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SyncRun{}, core.ErrSyncRunNotFound
		}
		return core.SyncRun{}, err
	}
	return record.toDomain(), nil
}

// LatestByStatus returns the most recently started run of the account with
// the given status, or core.ErrSyncRunNotFound.
func (s *SyncRunStore) LatestByStatus(
	ctx context.Context,
	accountKey string,
	status core.SyncRunStatus,
) (core.SyncRun, error) {
	if s == nil || s.db == nil {
		return core.SyncRun{}, fmt.Errorf("sqlstore: sync run store is not configured")
	}
	record := &syncRunRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.account_key = ?", strings.TrimSpace(accountKey)).
		Where("?TableAlias.status = ?", string(status)).
		OrderExpr("?TableAlias.started_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.SyncRun{}, core.ErrSyncRunNotFound
		}
		return core.SyncRun{}, err
	}
	return record.toDomain(), nil
}

func newSyncRunRecord(run core.SyncRun) *syncRunRecord {
	return &syncRunRecord{
		ID:            strings.TrimSpace(run.ID),
		AccountKey:    strings.TrimSpace(run.AccountKey),
		Trigger:       string(run.Trigger),
		Status:        string(run.Status),
		OrdersSeen:    run.OrdersSeen,
		DeliveriesOut: run.DeliveriesOut,
		Error:         RedactText(run.Error),
		Metadata:      RedactMetadata(run.Metadata),
		StartedAt:     run.StartedAt.UTC(),
		FinishedAt:    utcPointer(run.FinishedAt),
	}
}

func (r *syncRunRecord) toDomain() core.SyncRun {
	if r == nil {
		return core.SyncRun{}
	}
	return core.SyncRun{
		ID:            r.ID,
		AccountKey:    r.AccountKey,
		Trigger:       core.SyncRunTrigger(r.Trigger),
		Status:        core.SyncRunStatus(r.Status),
		OrdersSeen:    r.OrdersSeen,
		DeliveriesOut: r.DeliveriesOut,
		Error:         r.Error,
		StartedAt:     r.StartedAt.UTC(),
		FinishedAt:    utcPointer(r.FinishedAt),
		Metadata:      copyAnyMap(r.Metadata),
	}
}
