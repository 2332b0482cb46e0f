package webhooks

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

const (
	TopicOrders    = "orders_v2"
	TopicShipments = "shipments"
)

// Notification is the payload Mercado Livre posts to the callback URL.
type Notification struct {
	ID            string    `json:"_id"`
	Resource      string    `json:"resource"`
	UserID        int64     `json:"user_id"`
	Topic         string    `json:"topic"`
	ApplicationID int64     `json:"application_id"`
	Attempts      int       `json:"attempts"`
	Sent          time.Time `json:"sent"`
	Received      time.Time `json:"received"`
}

// ParseNotification decodes and validates a notification body.
func ParseNotification(body []byte) (Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return Notification{}, badNotification.wrap(err, "webhooks: notification body is not valid json", nil)
	}
	n.Topic = strings.ToLower(strings.TrimSpace(n.Topic))
	n.Resource = strings.TrimSpace(n.Resource)
	if n.Topic == "" || n.Resource == "" {
		return Notification{}, badNotification.new("webhooks: notification topic and resource are required", map[string]any{
			"topic":    n.Topic,
			"resource": n.Resource,
		})
	}
	return n, nil
}

// ResourceID returns the trailing id of the resource path, "/orders/123" -> "123".
func (n Notification) ResourceID() string {
	resource := strings.TrimRight(n.Resource, "/")
	if idx := strings.LastIndex(resource, "/"); idx >= 0 {
		return resource[idx+1:]
	}
	return resource
}

// BurstKey groups notifications that would trigger the same reconciliation.
func (n Notification) BurstKey() string {
	return n.Topic + ":" + strconv.FormatInt(n.UserID, 10)
}
