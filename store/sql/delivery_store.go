package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const upsertLookupChunk = 500

// DeliveryStore is the persistent delivery cache keyed by marketplace order id.
type DeliveryStore struct {
	db   *bun.DB
	repo repository.Repository[*deliveryRecord]
	now  func() time.Time
}

func NewDeliveryStore(db *bun.DB) (*DeliveryStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*deliveryRecord](db, deliveryHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid delivery repository wiring: %w", err)
		}
	}
	return &DeliveryStore{
		db:   db,
		repo: repo,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *DeliveryStore) FindAll(ctx context.Context) ([]core.Delivery, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlstore: delivery store is not configured")
	}
	records := []*deliveryRecord{}
	if err := s.db.NewSelect().
		Model(&records).
		OrderExpr("?TableAlias.order_id ASC").
		Scan(ctx); err != nil {
		return nil, err
	}
	out := make([]core.Delivery, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

// deliveryDerivedColumns are the only columns a reconcile run rewrites on an
// existing row. Annotation columns belong to the operator.
var deliveryDerivedColumns = []string{
	"product_name",
	"quantity",
	"seller_name",
	"image",
	"purchase_date",
	"order_status",
	"total_amount",
	"shipment_id",
	"delivery_forecast",
	"updated_at",
}

// UpsertMany writes all deliveries in one transaction. Existing rows only have
// their derived columns rewritten, and only when one of them changed. A stored
// image or seller name is never replaced by an empty value.
func (s *DeliveryStore) UpsertMany(ctx context.Context, deliveries []core.Delivery) error {
	if s == nil || s.db == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: delivery store is not configured")
	}
	if len(deliveries) == 0 {
		return nil
	}
	now := s.now().UTC()

	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		existing, err := s.loadByOrderIDs(ctx, tx, deliveries)
		if err != nil {
			return err
		}
		for _, delivery := range deliveries {
			next := newDeliveryRecord(delivery)
			if current, ok := existing[delivery.OrderID]; ok {
				mergeStoredDelivery(next, current)
				if sameDerivedColumns(next, current) {
					continue
				}
				next.UpdatedAt = now
				if _, updateErr := tx.NewUpdate().
					Model(next).
					Column(deliveryDerivedColumns...).
					WherePK().
					Exec(ctx); updateErr != nil {
					return fmt.Errorf("sqlstore: update delivery %d: %w", delivery.OrderID, updateErr)
				}
				existing[delivery.OrderID] = next
				continue
			}

			next.ID = uuid.NewString()
			next.CreatedAt = now
			next.UpdatedAt = now
			inserted, createErr := s.repo.CreateTx(ctx, tx, next)
			if createErr != nil {
				return fmt.Errorf("sqlstore: insert delivery %d: %w", delivery.OrderID, createErr)
			}
			existing[delivery.OrderID] = inserted
		}
		return nil
	})
}

func (s *DeliveryStore) loadByOrderIDs(
	ctx context.Context,
	tx bun.Tx,
	deliveries []core.Delivery,
) (map[int64]*deliveryRecord, error) {
	ids := make([]int64, 0, len(deliveries))
	for _, delivery := range deliveries {
		ids = append(ids, delivery.OrderID)
	}
	out := make(map[int64]*deliveryRecord, len(ids))
	for start := 0; start < len(ids); start += upsertLookupChunk {
		end := min(start+upsertLookupChunk, len(ids))
		records := []*deliveryRecord{}
		if err := tx.NewSelect().
			Model(&records).
			Where("?TableAlias.order_id IN (?)", bun.In(ids[start:end])).
			Scan(ctx); err != nil {
			return nil, err
		}
		for _, record := range records {
			out[record.OrderID] = record
		}
	}
	return out, nil
}

// mergeStoredDelivery fills next from the row read inside the transaction.
// Annotations always come from current so the in-memory view matches the row.
func mergeStoredDelivery(next *deliveryRecord, current *deliveryRecord) {
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = current.UpdatedAt
	if next.Image == nil {
		next.Image = current.Image
	}
	if strings.TrimSpace(next.SellerName) == "" {
		next.SellerName = current.SellerName
	}
	if next.PurchaseDate == nil {
		next.PurchaseDate = current.PurchaseDate
	}
	if next.DeliveryForecast == nil {
		next.DeliveryForecast = current.DeliveryForecast
	}
	next.CostCenter = current.CostCenter
	next.Keyword = current.Keyword
	next.ReceivingClerk = current.ReceivingClerk
	next.ReceivedAt = current.ReceivedAt
	next.Issued = current.Issued
}

func sameDerivedColumns(next *deliveryRecord, current *deliveryRecord) bool {
	return next.ProductName == current.ProductName &&
		next.Quantity == current.Quantity &&
		next.SellerName == current.SellerName &&
		stringValue(next.Image) == stringValue(current.Image) &&
		sameInstant(next.PurchaseDate, current.PurchaseDate) &&
		next.OrderStatus == current.OrderStatus &&
		next.TotalAmount == current.TotalAmount &&
		next.ShipmentID == current.ShipmentID &&
		sameInstant(next.DeliveryForecast, current.DeliveryForecast)
}

func sameInstant(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func newDeliveryRecord(delivery core.Delivery) *deliveryRecord {
	quantity := delivery.Quantity
	if quantity < 1 {
		quantity = 1
	}
	record := &deliveryRecord{
		OrderID:          delivery.OrderID,
		ProductName:      strings.TrimSpace(delivery.ProductName),
		Quantity:         quantity,
		SellerName:       strings.TrimSpace(delivery.SellerName),
		Image:            nullableString(delivery.Image),
		OrderStatus:      strings.TrimSpace(delivery.OrderStatus),
		TotalAmount:      delivery.TotalAmount,
		ShipmentID:       strings.TrimSpace(delivery.ShipmentID),
		DeliveryForecast: utcPointer(delivery.DeliveryForecast),
		CostCenter:       nullableString(delivery.CostCenter),
		Keyword:          nullableString(delivery.Keyword),
		ReceivingClerk:   nullableString(delivery.ReceivingClerk),
		ReceivedAt:       utcPointer(delivery.ReceivedAt),
		Issued:           delivery.Issued,
	}
	if !delivery.PurchaseDate.IsZero() {
		purchased := delivery.PurchaseDate.UTC()
		record.PurchaseDate = &purchased
	}
	return record
}

func (r *deliveryRecord) toDomain() core.Delivery {
	if r == nil {
		return core.Delivery{}
	}
	delivery := core.Delivery{
		OrderID:          r.OrderID,
		ProductName:      r.ProductName,
		Quantity:         r.Quantity,
		SellerName:       r.SellerName,
		Image:            stringValue(r.Image),
		OrderStatus:      r.OrderStatus,
		TotalAmount:      r.TotalAmount,
		ShipmentID:       r.ShipmentID,
		DeliveryForecast: utcPointer(r.DeliveryForecast),
		CostCenter:       stringValue(r.CostCenter),
		Keyword:          stringValue(r.Keyword),
		ReceivingClerk:   stringValue(r.ReceivingClerk),
		ReceivedAt:       utcPointer(r.ReceivedAt),
		Issued:           r.Issued,
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
	if r.PurchaseDate != nil {
		delivery.PurchaseDate = r.PurchaseDate.UTC()
	}
	return delivery
}

func nullableString(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func utcPointer(value *time.Time) *time.Time {
	if value == nil || value.IsZero() {
		return nil
	}
	copied := value.UTC()
	return &copied
}
