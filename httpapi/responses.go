package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/goliatone/go-deliveries/core"
	deliverysync "github.com/goliatone/go-deliveries/sync"
	goerrors "github.com/goliatone/go-errors"
)

type deliveryResponse struct {
	OrderID          int64      `json:"order_id"`
	ProductName      string     `json:"product_name"`
	Quantity         int        `json:"quantity"`
	SellerName       string     `json:"seller_name"`
	Image            string     `json:"image,omitempty"`
	PurchaseDate     time.Time  `json:"purchase_date"`
	OrderStatus      string     `json:"order_status"`
	TotalAmount      float64    `json:"total_amount"`
	ShipmentID       string     `json:"shipment_id,omitempty"`
	DeliveryForecast *time.Time `json:"delivery_forecast,omitempty"`
	CostCenter       string     `json:"cost_center,omitempty"`
	Keyword          string     `json:"keyword,omitempty"`
	ReceivingClerk   string     `json:"receiving_clerk,omitempty"`
	ReceivedAt       *time.Time `json:"received_at,omitempty"`
	Issued           bool       `json:"issued"`
}

type deliveryListResponse struct {
	Deliveries []deliveryResponse `json:"deliveries"`
	Count      int                `json:"count"`
}

type syncRunResponse struct {
	ID            string         `json:"id"`
	AccountKey    string         `json:"account_key"`
	Trigger       string         `json:"trigger"`
	Status        string         `json:"status"`
	OrdersSeen    int            `json:"orders_seen"`
	DeliveriesOut int            `json:"deliveries_out"`
	Error         string         `json:"error,omitempty"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type syncResponse struct {
	Run             syncRunResponse `json:"run"`
	Duplicates      int             `json:"duplicates"`
	ImageSearches   int             `json:"image_searches"`
	ForecastLookups int             `json:"forecast_lookups"`
}

type notificationResponse struct {
	Accepted bool   `json:"accepted"`
	Enqueued bool   `json:"enqueued"`
	JobKey   string `json:"job_key,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Message  string         `json:"message"`
	Category string         `json:"category"`
	TextCode string         `json:"text_code,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

func newDeliveryList(deliveries []core.Delivery) deliveryListResponse {
	out := deliveryListResponse{Deliveries: make([]deliveryResponse, 0, len(deliveries))}
	for _, d := range deliveries {
		out.Deliveries = append(out.Deliveries, deliveryResponse{
			OrderID:          d.OrderID,
			ProductName:      d.ProductName,
			Quantity:         d.Quantity,
			SellerName:       d.SellerName,
			Image:            d.Image,
			PurchaseDate:     d.PurchaseDate,
			OrderStatus:      d.OrderStatus,
			TotalAmount:      d.TotalAmount,
			ShipmentID:       d.ShipmentID,
			DeliveryForecast: d.DeliveryForecast,
			CostCenter:       d.CostCenter,
			Keyword:          d.Keyword,
			ReceivingClerk:   d.ReceivingClerk,
			ReceivedAt:       d.ReceivedAt,
			Issued:           d.Issued,
		})
	}
	out.Count = len(out.Deliveries)
	return out
}

func newSyncRunResponse(run core.SyncRun) syncRunResponse {
	return syncRunResponse{
		ID:            run.ID,
		AccountKey:    run.AccountKey,
		Trigger:       string(run.Trigger),
		Status:        string(run.Status),
		OrdersSeen:    run.OrdersSeen,
		DeliveriesOut: run.DeliveriesOut,
		Error:         run.Error,
		StartedAt:     run.StartedAt,
		FinishedAt:    run.FinishedAt,
		Metadata:      run.Metadata,
	}
}

func newSyncResponse(outcome deliverysync.RunOutcome) syncResponse {
	return syncResponse{
		Run:             newSyncRunResponse(outcome.Run),
		Duplicates:      outcome.Result.Duplicates,
		ImageSearches:   outcome.Result.ImageSearches,
		ForecastLookups: outcome.Result.ForecastLookups,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError renders the go-errors envelope. Errors without one are reported
// as internal failures without leaking their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = goerrors.New("An unexpected error occurred", goerrors.CategoryInternal).
			WithCode(http.StatusInternalServerError).
			WithTextCode(core.ServiceErrorInternal)
	}
	status := rich.Code
	if status < 400 || status > 599 {
		status = core.ServiceHTTPStatus(rich.Category)
	}
	if status >= http.StatusInternalServerError {
		s.logger.WithContext(r.Context()).Error("request failed",
			"path", r.URL.Path,
			"text_code", rich.TextCode,
			"error", err.Error(),
		)
	}
	writeJSON(w, status, errorResponse{Error: errorBody{
		Message:  rich.Message,
		Category: string(rich.Category),
		TextCode: rich.TextCode,
		Metadata: rich.Metadata,
	}})
}
