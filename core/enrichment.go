package core

import (
	"context"
	"net/http"
	"strings"
	"time"
)

const imageSearchBucket = "image_search"

// EnrichmentResolver performs the best-effort lookups used to fill fields the
// order listing does not carry. Failures are logged and turned into "no value".
type EnrichmentResolver struct {
	providers   []ImageSearchProvider
	marketplace MarketplaceClient
	rateLimit   RateLimitPolicy
	forecast    []ForecastExtractor
	accountKey  string
	timeout     time.Duration
	window      time.Duration
	logger      Logger
}

// ShouldSearchImage reports whether an image search may be spent on an order
// purchased at purchaseDate whose best known image is knownImage.
func (r *EnrichmentResolver) ShouldSearchImage(purchaseDate time.Time, knownImage string, now time.Time) bool {
	if r == nil || len(r.providers) == 0 {
		return false
	}
	if strings.TrimSpace(knownImage) != "" || purchaseDate.IsZero() {
		return false
	}
	return now.Sub(purchaseDate) <= r.window
}

// ResolveImage returns existingThumbnail when present, otherwise the first URL
// found by the image search chain. It returns "" when nothing was found.
func (r *EnrichmentResolver) ResolveImage(ctx context.Context, productName string, existingThumbnail string) string {
	if thumbnail := strings.TrimSpace(existingThumbnail); thumbnail != "" {
		return thumbnail
	}
	productName = strings.TrimSpace(productName)
	if r == nil || productName == "" || productName == UnidentifiedProduct {
		return ""
	}

	for _, provider := range r.providers {
		if provider == nil {
			continue
		}
		if url := r.searchWith(ctx, provider, productName); url != "" {
			return url
		}
	}
	return ""
}

func (r *EnrichmentResolver) searchWith(ctx context.Context, provider ImageSearchProvider, query string) string {
	key := RateLimitKey{
		ProviderID: strings.TrimSpace(provider.ID()),
		AccountKey: r.accountKey,
		BucketKey:  imageSearchBucket,
	}
	if r.rateLimit != nil {
		if err := r.rateLimit.BeforeCall(ctx, key); err != nil {
			writeLog(ctx, r.logger, "debug", "image search skipped", map[string]any{
				"provider_id": key.ProviderID,
				"reason":      err.Error(),
			})
			return ""
		}
	}

	callCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	result, err := provider.SearchImage(callCtx, query)
	if r.rateLimit != nil {
		meta := result.Response
		if meta.StatusCode == 0 && err == nil {
			meta.StatusCode = http.StatusOK
		}
		if afterErr := r.rateLimit.AfterCall(ctx, key, meta); afterErr != nil {
			writeLog(ctx, r.logger, "warn", "image search rate limit update failed", map[string]any{
				"provider_id": key.ProviderID,
				"error":       afterErr.Error(),
			})
		}
	}
	if err != nil {
		failure := NewEnrichmentFailure(err, "image", map[string]any{"provider_id": key.ProviderID})
		writeLog(ctx, r.logger, "warn", "image search failed", map[string]any{
			"provider_id": key.ProviderID,
			"text_code":   failure.TextCode,
			"error":       failure.Error(),
		})
		return ""
	}
	if result.Response.StatusCode == http.StatusTooManyRequests {
		writeLog(ctx, r.logger, "warn", "image search throttled", map[string]any{
			"provider_id": key.ProviderID,
		})
		return ""
	}
	return strings.TrimSpace(result.URL)
}

// ResolveDeliveryForecast fetches the shipment and returns the first known
// delivery estimate, or nil.
func (r *EnrichmentResolver) ResolveDeliveryForecast(ctx context.Context, accessToken string, shipmentID string) *time.Time {
	shipmentID = strings.TrimSpace(shipmentID)
	if r == nil || shipmentID == "" || r.marketplace == nil {
		return nil
	}
	shipment, err := r.marketplace.GetShipment(ctx, accessToken, shipmentID)
	if err != nil {
		failure := NewEnrichmentFailure(err, "forecast", map[string]any{"shipment_id": shipmentID})
		writeLog(ctx, r.logger, "warn", "delivery forecast lookup failed", map[string]any{
			"shipment_id": shipmentID,
			"text_code":   failure.TextCode,
			"error":       failure.Error(),
		})
		return nil
	}
	return firstForecast(r.forecast, shipment)
}
