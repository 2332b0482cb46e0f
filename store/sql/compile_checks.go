package sqlstore

import (
	"github.com/goliatone/go-deliveries/core"
	"github.com/goliatone/go-deliveries/ratelimit"
)

var (
	_ core.CredentialStore        = (*CredentialStore)(nil)
	_ core.DeliveryStore          = (*DeliveryStore)(nil)
	_ core.DeliveryStore          = (*CachedDeliveryStore)(nil)
	_ core.SyncRunStore           = (*SyncRunStore)(nil)
	_ ratelimit.StateStore        = (*RateLimitStateStore)(nil)
	_ ratelimit.StateStore        = (*CachedRateLimitStateStore)(nil)
	_ core.StoreProvider          = (*RepositoryFactory)(nil)
	_ core.RepositoryStoreFactory = (*RepositoryFactory)(nil)
)
