package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ReconcileResult is the outcome of one reconciliation run.
type ReconcileResult struct {
	Deliveries      []Delivery
	OrdersSeen      int
	Duplicates      int
	ImageSearches   int
	ForecastLookups int
}

// Reconcile merges the live order list into the delivery cache and returns the
// merged set in upstream order. Orders missing upstream stay in the cache.
func (s *Service) Reconcile(ctx context.Context) ([]Delivery, error) {
	result, err := s.ReconcileDetailed(ctx)
	if err != nil {
		return nil, err
	}
	return result.Deliveries, nil
}

func (s *Service) ReconcileDetailed(ctx context.Context) (result ReconcileResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"account_key": s.Config().AccountKey}
	defer func() {
		fields["orders_seen"] = result.OrdersSeen
		fields["deliveries_out"] = len(result.Deliveries)
		fields["duplicates"] = result.Duplicates
		fields["image_searches"] = result.ImageSearches
		s.observeOperation(ctx, startedAt, "reconcile", err, fields)
	}()

	if s == nil || s.deliveryStore == nil {
		return ReconcileResult{}, s.mapError(fmt.Errorf("core: delivery store is required"))
	}
	if s.marketplace == nil {
		return ReconcileResult{}, s.mapError(fmt.Errorf("core: marketplace client is required"))
	}

	lockKey := "reconcile:" + s.config.AccountKey
	handle, err := s.runLocker.Acquire(ctx, lockKey, s.config.ReconcileLockTTL())
	if err != nil {
		return ReconcileResult{}, s.mapError(NewReconcileInProgressError(err, s.config.AccountKey))
	}
	defer func() {
		if unlockErr := handle.Unlock(context.WithoutCancel(ctx)); unlockErr != nil {
			s.logWarn(ctx, "reconcile lock release failed", map[string]any{
				"lock_key": lockKey,
				"error":    unlockErr.Error(),
			})
		}
	}()

	stored, err := s.deliveryStore.FindAll(ctx)
	if err != nil {
		return ReconcileResult{}, s.mapError(NewPersistenceError(err, "find_all"))
	}
	cached := make(map[int64]Delivery, len(stored))
	for _, delivery := range stored {
		cached[delivery.OrderID] = delivery
	}

	token, err := s.GetValidAccessToken(ctx)
	if err != nil {
		return ReconcileResult{}, err
	}
	accountID, err := s.marketplace.GetAccountIdentity(ctx, token)
	if err != nil {
		return ReconcileResult{}, s.mapError(NewUpstreamFetchError(err, "get_account_identity"))
	}
	accountID = strings.TrimSpace(accountID)
	if accountID == "" {
		return ReconcileResult{}, s.mapError(NewUpstreamFetchError(
			fmt.Errorf("core: account identity is empty"),
			"get_account_identity",
		))
	}
	fields["account_id"] = accountID

	orders, err := s.marketplace.ListOrders(ctx, token, accountID)
	if err != nil {
		return ReconcileResult{}, s.mapError(NewUpstreamFetchError(err, "list_orders"))
	}

	result = s.mergeOrders(ctx, token, orders, cached)
	if len(result.Deliveries) > 0 {
		if err = s.deliveryStore.UpsertMany(ctx, result.Deliveries); err != nil {
			return ReconcileResult{OrdersSeen: result.OrdersSeen}, s.mapError(NewPersistenceError(err, "upsert_many"))
		}
	}
	return result, nil
}

// mergeOrders walks orders in the given order. The first occurrence of an
// order id wins; later duplicates are dropped.
func (s *Service) mergeOrders(
	ctx context.Context,
	token string,
	orders []Order,
	cached map[int64]Delivery,
) ReconcileResult {
	result := ReconcileResult{
		Deliveries: make([]Delivery, 0, len(orders)),
		OrdersSeen: len(orders),
	}
	seen := make(map[int64]struct{}, len(orders))
	now := s.now()
	for _, order := range orders {
		if _, dup := seen[order.ID]; dup {
			result.Duplicates++
			continue
		}
		seen[order.ID] = struct{}{}

		var previous *Delivery
		if entry, ok := cached[order.ID]; ok {
			previous = &entry
		}
		merged, searched, forecasted := s.mergeOrder(ctx, token, order, previous, now)
		if searched {
			result.ImageSearches++
		}
		if forecasted {
			result.ForecastLookups++
		}
		result.Deliveries = append(result.Deliveries, merged)
	}
	return result
}

func (s *Service) mergeOrder(
	ctx context.Context,
	token string,
	order Order,
	cached *Delivery,
	now time.Time,
) (merged Delivery, searched bool, forecasted bool) {
	item, _ := order.FirstItem()

	merged = Delivery{
		OrderID:     order.ID,
		ProductName: firstNonEmptyTrimmed(item.Title, UnidentifiedProduct),
		Quantity:    item.Quantity,
		OrderStatus: strings.TrimSpace(order.Status),
		TotalAmount: order.TotalAmount,
		ShipmentID:  strings.TrimSpace(order.ShippingID),
	}
	if merged.Quantity < 1 {
		merged.Quantity = 1
	}
	merged.PurchaseDate = order.CreatedAt.UTC()
	if cached != nil {
		if order.CreatedAt.IsZero() {
			merged.PurchaseDate = cached.PurchaseDate
		}
		merged.ShipmentID = firstNonEmptyTrimmed(merged.ShipmentID, cached.ShipmentID)
		merged.CreatedAt = cached.CreatedAt
		merged.UpdatedAt = cached.UpdatedAt
		cached.Annotations().applyTo(&merged)
	}

	merged.SellerName = firstNonEmptyTrimmed(
		firstSeller(s.sellerExtractors, order, cached),
		UnidentifiedSeller,
	)

	merged.Image = firstImage(s.imageExtractors, order, cached)
	if s.enrichment.ShouldSearchImage(merged.PurchaseDate, merged.Image, now) {
		searched = true
		merged.Image = s.enrichment.ResolveImage(ctx, merged.ProductName, "")
	}

	if cached != nil && cached.DeliveryForecast != nil {
		merged.DeliveryForecast = cloneTimePointer(cached.DeliveryForecast)
	} else if s.config.Enrichment.ForecastEnabled && merged.ShipmentID != "" {
		forecasted = true
		merged.DeliveryForecast = s.enrichment.ResolveDeliveryForecast(ctx, token, merged.ShipmentID)
	}
	return merged, searched, forecasted
}
