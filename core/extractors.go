package core

import (
	"strings"
	"time"
)

// SellerExtractor yields a seller name candidate, or "" when its source has none.
type SellerExtractor func(order Order, cached *Delivery) string

// ImageExtractor yields an image URL candidate, or "" when its source has none.
type ImageExtractor func(order Order, cached *Delivery) string

// ForecastExtractor yields a delivery forecast candidate from shipment detail.
type ForecastExtractor func(shipment Shipment) *time.Time

// DefaultSellerExtractors: line item seller, order seller, cached value.
func DefaultSellerExtractors() []SellerExtractor {
	return []SellerExtractor{
		ItemSellerNickname,
		OrderSellerNickname,
		CachedSellerName,
	}
}

// DefaultImageExtractors: cached value, then the line item thumbnail.
func DefaultImageExtractors() []ImageExtractor {
	return []ImageExtractor{
		CachedImage,
		ItemThumbnail,
	}
}

// DefaultForecastExtractors: promised date, estimated date, estimated window end.
func DefaultForecastExtractors() []ForecastExtractor {
	return []ForecastExtractor{
		func(shipment Shipment) *time.Time { return shipment.PromisedDeliveryDate },
		func(shipment Shipment) *time.Time { return shipment.EstimatedDeliveryDate },
		func(shipment Shipment) *time.Time { return shipment.EstimatedDeliveryWindowEnd },
	}
}

func ItemSellerNickname(order Order, _ *Delivery) string {
	item, ok := order.FirstItem()
	if !ok || item.Seller == nil {
		return ""
	}
	return strings.TrimSpace(item.Seller.Nickname)
}

func OrderSellerNickname(order Order, _ *Delivery) string {
	if order.Seller == nil {
		return ""
	}
	return strings.TrimSpace(order.Seller.Nickname)
}

func CachedSellerName(_ Order, cached *Delivery) string {
	if cached == nil {
		return ""
	}
	name := strings.TrimSpace(cached.SellerName)
	if name == UnidentifiedSeller {
		return ""
	}
	return name
}

func CachedImage(_ Order, cached *Delivery) string {
	if cached == nil {
		return ""
	}
	return strings.TrimSpace(cached.Image)
}

func ItemThumbnail(order Order, _ *Delivery) string {
	item, ok := order.FirstItem()
	if !ok {
		return ""
	}
	return strings.TrimSpace(item.Thumbnail)
}

func firstSeller(extractors []SellerExtractor, order Order, cached *Delivery) string {
	for _, extract := range extractors {
		if extract == nil {
			continue
		}
		if value := strings.TrimSpace(extract(order, cached)); value != "" {
			return value
		}
	}
	return ""
}

func firstImage(extractors []ImageExtractor, order Order, cached *Delivery) string {
	for _, extract := range extractors {
		if extract == nil {
			continue
		}
		if value := strings.TrimSpace(extract(order, cached)); value != "" {
			return value
		}
	}
	return ""
}

func firstForecast(extractors []ForecastExtractor, shipment Shipment) *time.Time {
	for _, extract := range extractors {
		if extract == nil {
			continue
		}
		if value := extract(shipment); value != nil && !value.IsZero() {
			return cloneTimePointer(value)
		}
	}
	return nil
}
