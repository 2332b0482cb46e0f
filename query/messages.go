package query

import (
	"strings"

	"github.com/goliatone/go-deliveries/core"
)

const (
	TypeListDeliveries = "deliveries.query.deliveries.list"
	TypeLatestSyncRun  = "deliveries.query.sync_runs.latest"
	TypeGetSyncRun     = "deliveries.query.sync_runs.get"
)

// ListDeliveriesMessage carries the raw view name so transports can pass the
// request value through untouched.
type ListDeliveriesMessage struct {
	View string
}

func (ListDeliveriesMessage) Type() string { return TypeListDeliveries }

func (m ListDeliveriesMessage) Validate() error {
	_, err := m.view()
	return err
}

func (m ListDeliveriesMessage) view() (core.DeliveryView, error) {
	view, err := core.ParseDeliveryView(m.View)
	if err != nil {
		return "", queryWrapValidation(err, "query: unknown delivery view")
	}
	return view, nil
}

type LatestSyncRunMessage struct {
	AccountKey string
	Status     core.SyncRunStatus
}

func (LatestSyncRunMessage) Type() string { return TypeLatestSyncRun }

func (m LatestSyncRunMessage) Validate() error {
	switch m.Status {
	case "", core.SyncRunStatusRunning, core.SyncRunStatusSucceeded, core.SyncRunStatusFailed, core.SyncRunStatusSkipped:
		return nil
	default:
		return queryValidationError("status", "must be one of running, succeeded, failed or skipped")
	}
}

func (m LatestSyncRunMessage) status() core.SyncRunStatus {
	if m.Status == "" {
		return core.SyncRunStatusSucceeded
	}
	return m.Status
}

type GetSyncRunMessage struct {
	ID string
}

func (GetSyncRunMessage) Type() string { return TypeGetSyncRun }

func (m GetSyncRunMessage) Validate() error {
	if strings.TrimSpace(m.ID) == "" {
		return queryInvalidInputError("query: sync run id is required")
	}
	return nil
}
