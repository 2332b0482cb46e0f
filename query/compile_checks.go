package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-deliveries/core"
)

var (
	_ gocmd.Querier[ListDeliveriesMessage, []core.Delivery] = (*ListDeliveriesQuery)(nil)
	_ gocmd.Querier[LatestSyncRunMessage, core.SyncRun]     = (*LatestSyncRunQuery)(nil)
	_ gocmd.Querier[GetSyncRunMessage, core.SyncRun]        = (*GetSyncRunQuery)(nil)
	_ DeliveryLister                                        = (*core.Service)(nil)
	_ SyncRunReader                                         = (core.SyncRunStore)(nil)
)
