package mercadolivre

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

type userPayload struct {
	ID       json.Number `json:"id"`
	Nickname string      `json:"nickname"`
}

type orderSearchPayload struct {
	Results []orderPayload `json:"results"`
}

type partyPayload struct {
	ID       json.Number `json:"id"`
	Nickname string      `json:"nickname"`
}

type orderPayload struct {
	ID          int64              `json:"id"`
	Status      string             `json:"status"`
	DateCreated string             `json:"date_created"`
	TotalAmount float64            `json:"total_amount"`
	OrderItems  []orderItemPayload `json:"order_items"`
	Seller      *partyPayload      `json:"seller"`
	Shipping    *struct {
		ID json.Number `json:"id"`
	} `json:"shipping"`
}

type orderItemPayload struct {
	Item struct {
		ID        string `json:"id"`
		Title     string `json:"title"`
		Thumbnail string `json:"thumbnail"`
	} `json:"item"`
	Quantity int           `json:"quantity"`
	Seller   *partyPayload `json:"seller"`
}

type datePayload struct {
	Date string `json:"date"`
}

type shipmentPayload struct {
	ID             json.Number `json:"id"`
	Status         string      `json:"status"`
	TrackingNumber string      `json:"tracking_number"`
	StatusHistory  struct {
		DateDelivered string `json:"date_delivered"`
	} `json:"status_history"`
	DeliveredAt    string `json:"delivered_at"`
	ShippingOption struct {
		Name                   string       `json:"name"`
		EstimatedDeliveryTime  *datePayload `json:"estimated_delivery_time"`
		EstimatedDeliveryLimit *datePayload `json:"estimated_delivery_limit"`
		EstimatedDeliveryFinal *datePayload `json:"estimated_delivery_final"`
	} `json:"shipping_option"`
	LeadTime struct {
		EstimatedDeliveryTime *datePayload `json:"estimated_delivery_time"`
	} `json:"lead_time"`
}

const defaultCarrierName = "Mercado Envios"

func (p orderPayload) toOrder() core.Order {
	order := core.Order{
		ID:          p.ID,
		Status:      strings.TrimSpace(p.Status),
		CreatedAt:   parseTimestamp(p.DateCreated),
		TotalAmount: p.TotalAmount,
		Seller:      p.Seller.toParty(),
	}
	if p.Shipping != nil {
		order.ShippingID = p.Shipping.ID.String()
	}
	order.Items = make([]core.OrderItem, 0, len(p.OrderItems))
	for _, item := range p.OrderItems {
		order.Items = append(order.Items, core.OrderItem{
			Title:     strings.TrimSpace(item.Item.Title),
			Quantity:  item.Quantity,
			Thumbnail: strings.TrimSpace(item.Item.Thumbnail),
			Seller:    item.Seller.toParty(),
		})
	}
	return order
}

func (p *partyPayload) toParty() *core.Party {
	if p == nil {
		return nil
	}
	return &core.Party{ID: p.ID.String(), Nickname: strings.TrimSpace(p.Nickname)}
}

func (p shipmentPayload) toShipment(requestedID string) core.Shipment {
	shipment := core.Shipment{
		ID:             firstNonEmpty(p.ID.String(), requestedID),
		Status:         strings.TrimSpace(p.Status),
		TrackingNumber: strings.TrimSpace(p.TrackingNumber),
		CarrierName:    firstNonEmpty(p.ShippingOption.Name, defaultCarrierName),
		DeliveredAt:    parseTimestampPointer(firstNonEmpty(p.DeliveredAt, p.StatusHistory.DateDelivered)),
	}
	shipment.PromisedDeliveryDate = parseDatePayload(p.ShippingOption.EstimatedDeliveryLimit)
	shipment.EstimatedDeliveryDate = parseDatePayload(p.ShippingOption.EstimatedDeliveryTime)
	if shipment.EstimatedDeliveryDate == nil {
		shipment.EstimatedDeliveryDate = parseDatePayload(p.LeadTime.EstimatedDeliveryTime)
	}
	shipment.EstimatedDeliveryWindowEnd = parseDatePayload(p.ShippingOption.EstimatedDeliveryFinal)
	return shipment
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.000-0700",
	"2006-01-02T15:04:05.000Z07:00",
	"2006-01-02",
}

func parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC()
		}
	}
	return time.Time{}
}

func parseTimestampPointer(value string) *time.Time {
	parsed := parseTimestamp(value)
	if parsed.IsZero() {
		return nil
	}
	return &parsed
}

func parseDatePayload(payload *datePayload) *time.Time {
	if payload == nil {
		return nil
	}
	return parseTimestampPointer(payload.Date)
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
