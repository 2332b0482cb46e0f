package query

import (
	"context"
	"errors"
	"strings"

	"github.com/goliatone/go-deliveries/core"
)

type DeliveryLister interface {
	ListDeliveries(ctx context.Context, view core.DeliveryView) ([]core.Delivery, error)
}

type SyncRunReader interface {
	Get(ctx context.Context, id string) (core.SyncRun, error)
	LatestByStatus(ctx context.Context, accountKey string, status core.SyncRunStatus) (core.SyncRun, error)
}

type ListDeliveriesQuery struct {
	lister DeliveryLister
}

func NewListDeliveriesQuery(lister DeliveryLister) *ListDeliveriesQuery {
	return &ListDeliveriesQuery{lister: lister}
}

func (q *ListDeliveriesQuery) Query(ctx context.Context, msg ListDeliveriesMessage) ([]core.Delivery, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: delivery lister is required")
	}
	view, err := msg.view()
	if err != nil {
		return nil, err
	}
	deliveries, err := q.lister.ListDeliveries(ctx, view)
	if err != nil {
		return nil, err
	}
	if deliveries == nil {
		deliveries = []core.Delivery{}
	}
	return deliveries, nil
}

type LatestSyncRunQuery struct {
	reader     SyncRunReader
	accountKey string
}

// NewLatestSyncRunQuery answers for accountKey when the message leaves the
// account key empty.
func NewLatestSyncRunQuery(reader SyncRunReader, accountKey string) *LatestSyncRunQuery {
	return &LatestSyncRunQuery{reader: reader, accountKey: strings.TrimSpace(accountKey)}
}

func (q *LatestSyncRunQuery) Query(ctx context.Context, msg LatestSyncRunMessage) (core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return core.SyncRun{}, queryDependencyError("query: sync run reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.SyncRun{}, err
	}
	accountKey := strings.TrimSpace(msg.AccountKey)
	if accountKey == "" {
		accountKey = q.accountKey
	}
	if accountKey == "" {
		accountKey = core.DefaultAccountKey
	}
	run, err := q.reader.LatestByStatus(ctx, accountKey, msg.status())
	if errors.Is(err, core.ErrSyncRunNotFound) {
		return core.SyncRun{}, queryNotFoundError(err, "query: no sync run recorded")
	}
	return run, err
}

type GetSyncRunQuery struct {
	reader SyncRunReader
}

func NewGetSyncRunQuery(reader SyncRunReader) *GetSyncRunQuery {
	return &GetSyncRunQuery{reader: reader}
}

func (q *GetSyncRunQuery) Query(ctx context.Context, msg GetSyncRunMessage) (core.SyncRun, error) {
	if q == nil || q.reader == nil {
		return core.SyncRun{}, queryDependencyError("query: sync run reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.SyncRun{}, err
	}
	run, err := q.reader.Get(ctx, strings.TrimSpace(msg.ID))
	if errors.Is(err, core.ErrSyncRunNotFound) {
		return core.SyncRun{}, queryNotFoundError(err, "query: sync run not found")
	}
	return run, err
}
