package core

import "sort"

// FilterDeliveries returns the deliveries matching view, newest purchase first.
// Ties keep the higher order id first so the listing is stable.
func FilterDeliveries(deliveries []Delivery, view DeliveryView) []Delivery {
	out := make([]Delivery, 0, len(deliveries))
	for _, delivery := range deliveries {
		if view.Matches(delivery) {
			out = append(out, delivery)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].PurchaseDate.Equal(out[j].PurchaseDate) {
			return out[i].PurchaseDate.After(out[j].PurchaseDate)
		}
		return out[i].OrderID > out[j].OrderID
	})
	return out
}
