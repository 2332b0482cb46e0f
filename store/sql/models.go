package sqlstore

import (
	"time"

	"github.com/uptrace/bun"
)

type credentialRecord struct {
	bun.BaseModel `bun:"table:delivery_credentials,alias:dc"`

	ID               string     `bun:"id,pk"`
	AccountKey       string     `bun:"account_key,notnull"`
	AccountID        string     `bun:"account_id,notnull"`
	Version          int        `bun:"version,notnull"`
	EncryptedPayload []byte     `bun:"encrypted_payload,notnull"`
	PayloadFormat    string     `bun:"payload_format,notnull"`
	PayloadVersion   int        `bun:"payload_version,notnull"`
	Encrypted        bool       `bun:"encrypted,notnull"`
	ExpiresAt        *time.Time `bun:"expires_at,nullzero"`
	Status           string     `bun:"status,notnull"`
	RevocationReason string     `bun:"revocation_reason,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// deliveryRecord nullable text columns map "" to NULL.
type deliveryRecord struct {
	bun.BaseModel `bun:"table:delivery_records,alias:dr"`

	ID               string     `bun:"id,pk"`
	OrderID          int64      `bun:"order_id,notnull"`
	ProductName      string     `bun:"product_name,notnull"`
	Quantity         int        `bun:"quantity,notnull"`
	SellerName       string     `bun:"seller_name,notnull"`
	Image            *string    `bun:"image"`
	PurchaseDate     *time.Time `bun:"purchase_date,nullzero"`
	OrderStatus      string     `bun:"order_status,notnull"`
	TotalAmount      float64    `bun:"total_amount,notnull"`
	ShipmentID       string     `bun:"shipment_id,notnull"`
	DeliveryForecast *time.Time `bun:"delivery_forecast,nullzero"`
	CostCenter       *string    `bun:"cost_center"`
	Keyword          *string    `bun:"keyword"`
	ReceivingClerk   *string    `bun:"receiving_clerk"`
	ReceivedAt       *time.Time `bun:"received_at,nullzero"`
	Issued           bool       `bun:"issued,notnull"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type syncRunRecord struct {
	bun.BaseModel `bun:"table:sync_runs,alias:sr"`

	ID            string         `bun:"id,pk"`
	AccountKey    string         `bun:"account_key,notnull"`
	Trigger       string         `bun:"trigger_kind,notnull"`
	Status        string         `bun:"status,notnull"`
	OrdersSeen    int            `bun:"orders_seen,notnull"`
	DeliveriesOut int            `bun:"deliveries_out,notnull"`
	Error         string         `bun:"error,notnull"`
	Metadata      map[string]any `bun:"metadata,type:jsonb,notnull"`
	StartedAt     time.Time      `bun:"started_at,notnull"`
	FinishedAt    *time.Time     `bun:"finished_at,nullzero"`
	CreatedAt     time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt     time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type rateLimitStateRecord struct {
	bun.BaseModel `bun:"table:rate_limit_states,alias:rls"`

	ID                string         `bun:"id,pk"`
	ProviderID        string         `bun:"provider_id,notnull"`
	AccountKey        string         `bun:"account_key,notnull"`
	BucketKey         string         `bun:"bucket_key,notnull"`
	Limit             int            `bun:"request_limit,notnull"`
	Remaining         int            `bun:"remaining,notnull"`
	ResetAt           *time.Time     `bun:"reset_at,nullzero"`
	RetryAfterSeconds *int           `bun:"retry_after_seconds"`
	ThrottledUntil    *time.Time     `bun:"throttled_until,nullzero"`
	LastStatus        int            `bun:"last_status,notnull"`
	Attempts          int            `bun:"attempts,notnull"`
	Metadata          map[string]any `bun:"metadata,type:jsonb,notnull"`
	CreatedAt         time.Time      `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time      `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}
