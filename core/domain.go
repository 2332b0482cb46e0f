package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrCredentialNotFound                = errors.New("core: credential not found")
	ErrInvalidCredentialStatusTransition = errors.New("core: invalid credential status transition")
	ErrInvalidSyncRunStatusTransition    = errors.New("core: invalid sync run status transition")
	ErrSyncRunNotFound                   = errors.New("core: sync run not found")
	ErrInvalidDeliveryView               = errors.New("core: invalid delivery view")
)

const (
	UnidentifiedProduct = "Produto não identificado"
	UnidentifiedSeller  = "Vendedor não identificado"
)

type CredentialStatus string

const (
	CredentialStatusActive  CredentialStatus = "active"
	CredentialStatusRevoked CredentialStatus = "revoked"
)

// Credential is the marketplace access/refresh token pair. At most one
// credential is active at a time.
type Credential struct {
	ID           string
	AccountID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Version      int
	Status       CredentialStatus
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (c Credential) ExpiresAtEpochMs() int64 {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.UnixMilli()
}

// IsValidAt reports whether the access token can be used at now without a refresh.
func (c Credential) IsValidAt(now time.Time) bool {
	if strings.TrimSpace(c.AccessToken) == "" || c.ExpiresAt.IsZero() {
		return false
	}
	return now.Before(c.ExpiresAt)
}

func (c *Credential) TransitionTo(status CredentialStatus, now time.Time) error {
	if c == nil {
		return nil
	}
	if c.Status == status {
		c.UpdatedAt = now
		return nil
	}
	if c.Status == CredentialStatusRevoked {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidCredentialStatusTransition, c.Status, status)
	}
	c.Status = status
	c.UpdatedAt = now
	return nil
}

// TokenGrant is a successful token endpoint response.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
	AccountID    string
}

// Delivery is one marketplace order plus the back-office annotations kept for it.
// Empty strings and nil pointers mean "not known".
type Delivery struct {
	OrderID          int64
	ProductName      string
	Quantity         int
	SellerName       string
	Image            string
	PurchaseDate     time.Time
	OrderStatus      string
	TotalAmount      float64
	ShipmentID       string
	DeliveryForecast *time.Time

	CostCenter     string
	Keyword        string
	ReceivingClerk string
	ReceivedAt     *time.Time
	Issued         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Annotations returns a copy holding only the user-owned fields.
func (d Delivery) Annotations() DeliveryAnnotations {
	return DeliveryAnnotations{
		CostCenter:     d.CostCenter,
		Keyword:        d.Keyword,
		ReceivingClerk: d.ReceivingClerk,
		ReceivedAt:     cloneTimePointer(d.ReceivedAt),
		Issued:         d.Issued,
	}
}

type DeliveryAnnotations struct {
	CostCenter     string
	Keyword        string
	ReceivingClerk string
	ReceivedAt     *time.Time
	Issued         bool
}

func (a DeliveryAnnotations) applyTo(d *Delivery) {
	if d == nil {
		return
	}
	d.CostCenter = a.CostCenter
	d.Keyword = a.Keyword
	d.ReceivingClerk = a.ReceivingClerk
	d.ReceivedAt = cloneTimePointer(a.ReceivedAt)
	d.Issued = a.Issued
}

// DeliveryView is a review-state filter over the delivery set.
type DeliveryView string

const (
	DeliveryViewAll        DeliveryView = ""
	DeliveryViewTriage     DeliveryView = "triage"
	DeliveryViewClassified DeliveryView = "classified"
	DeliveryViewReceived   DeliveryView = "received"
	DeliveryViewIssued     DeliveryView = "issued"
)

func ParseDeliveryView(value string) (DeliveryView, error) {
	switch view := DeliveryView(strings.TrimSpace(strings.ToLower(value))); view {
	case DeliveryViewAll, DeliveryViewTriage, DeliveryViewClassified, DeliveryViewReceived, DeliveryViewIssued:
		return view, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDeliveryView, value)
	}
}

// Matches reports whether d belongs to the view.
func (v DeliveryView) Matches(d Delivery) bool {
	switch v {
	case DeliveryViewTriage:
		return strings.TrimSpace(d.CostCenter) == ""
	case DeliveryViewClassified:
		return strings.TrimSpace(d.CostCenter) != "" && strings.TrimSpace(d.ReceivingClerk) == ""
	case DeliveryViewReceived:
		return strings.TrimSpace(d.ReceivingClerk) != "" && !d.Issued
	case DeliveryViewIssued:
		return d.Issued
	default:
		return true
	}
}

// Party is a buyer or seller as exposed by the marketplace.
type Party struct {
	ID       string
	Nickname string
}

type OrderItem struct {
	Title     string
	Quantity  int
	Thumbnail string
	Seller    *Party
}

type Order struct {
	ID          int64
	Status      string
	CreatedAt   time.Time
	TotalAmount float64
	Items       []OrderItem
	Seller      *Party
	ShippingID  string
}

// FirstItem returns the first line item, if any.
func (o Order) FirstItem() (OrderItem, bool) {
	if len(o.Items) == 0 {
		return OrderItem{}, false
	}
	return o.Items[0], true
}

type Shipment struct {
	ID                         string
	Status                     string
	DeliveredAt                *time.Time
	TrackingNumber             string
	CarrierName                string
	PromisedDeliveryDate       *time.Time
	EstimatedDeliveryDate      *time.Time
	EstimatedDeliveryWindowEnd *time.Time
}

type ImageSearchResult struct {
	URL      string
	Response ProviderResponseMeta
}

type SyncRunStatus string

const (
	SyncRunStatusRunning   SyncRunStatus = "running"
	SyncRunStatusSucceeded SyncRunStatus = "succeeded"
	SyncRunStatusFailed    SyncRunStatus = "failed"
	SyncRunStatusSkipped   SyncRunStatus = "skipped"
)

type SyncRunTrigger string

const (
	SyncRunTriggerSchedule SyncRunTrigger = "schedule"
	SyncRunTriggerManual   SyncRunTrigger = "manual"
	SyncRunTriggerJob      SyncRunTrigger = "job"
)

// SyncRun is one entry of the reconciliation run ledger.
type SyncRun struct {
	ID            string
	AccountKey    string
	Trigger       SyncRunTrigger
	Status        SyncRunStatus
	OrdersSeen    int
	DeliveriesOut int
	Error         string
	StartedAt     time.Time
	FinishedAt    *time.Time
	Metadata      map[string]any
}

func (r *SyncRun) TransitionTo(status SyncRunStatus, now time.Time) error {
	if r == nil {
		return nil
	}
	if r.Status == status {
		return nil
	}
	if r.Status != SyncRunStatusRunning && r.Status != "" {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidSyncRunStatusTransition, r.Status, status)
	}
	r.Status = status
	if status != SyncRunStatusRunning {
		finished := now.UTC()
		r.FinishedAt = &finished
	}
	return nil
}

func cloneTimePointer(value *time.Time) *time.Time {
	if value == nil {
		return nil
	}
	copied := value.UTC()
	return &copied
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmptyTrimmed(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
