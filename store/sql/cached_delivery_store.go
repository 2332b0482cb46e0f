package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/goliatone/go-deliveries/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const deliveryCacheKeyPrefix = "go-deliveries::deliveries::v1"

// CachedDeliveryStore serves FindAll through a read-through cache and drops
// the cached set after every write.
type CachedDeliveryStore struct {
	base     core.DeliveryStore
	cache    repositorycache.CacheService
	cacheKey string
}

func NewCachedDeliveryStore(
	base core.DeliveryStore,
	cacheService repositorycache.CacheService,
	accountKey string,
) (*CachedDeliveryStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base delivery store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: delivery cache service is required")
	}
	return &CachedDeliveryStore{
		base:     base,
		cache:    cacheService,
		cacheKey: DeliveryCacheKey(accountKey),
	}, nil
}

// DeliveryCacheKey returns go-deliveries::deliveries::v1::<account_key>.
func DeliveryCacheKey(accountKey string) string {
	accountKey = strings.TrimSpace(accountKey)
	if accountKey == "" {
		accountKey = DefaultAccountKey
	}
	return deliveryCacheKeyPrefix + "::" + url.PathEscape(accountKey)
}

func (s *CachedDeliveryStore) FindAll(ctx context.Context) ([]core.Delivery, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return nil, fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	deliveries, err := repositorycache.GetOrFetch(ctx, s.cache, s.cacheKey, func(ctx context.Context) ([]core.Delivery, error) {
		fetched, fetchErr := s.base.FindAll(ctx)
		if fetchErr != nil {
			return nil, fetchErr
		}
		return cloneDeliveries(fetched), nil
	})
	if err != nil {
		return nil, err
	}
	return cloneDeliveries(deliveries), nil
}

func (s *CachedDeliveryStore) UpsertMany(ctx context.Context, deliveries []core.Delivery) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached delivery store is not configured")
	}
	upsertErr := s.base.UpsertMany(ctx, deliveries)
	if err := s.cache.Delete(ctx, s.cacheKey); err != nil && upsertErr == nil {
		return err
	}
	return upsertErr
}

func cloneDeliveries(deliveries []core.Delivery) []core.Delivery {
	if deliveries == nil {
		return nil
	}
	out := make([]core.Delivery, len(deliveries))
	for i, delivery := range deliveries {
		delivery.DeliveryForecast = utcPointer(delivery.DeliveryForecast)
		delivery.ReceivedAt = utcPointer(delivery.ReceivedAt)
		out[i] = delivery
	}
	return out
}
