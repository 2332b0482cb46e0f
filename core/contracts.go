package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type CredentialStore interface {
	// GetCurrent returns ErrCredentialNotFound when nothing was ever stored.
	GetCurrent(ctx context.Context) (Credential, error)
	// Replace retires every active credential and stores cred as the current one.
	Replace(ctx context.Context, cred Credential) (Credential, error)
}

type DeliveryStore interface {
	FindAll(ctx context.Context) ([]Delivery, error)
	UpsertMany(ctx context.Context, deliveries []Delivery) error
}

type SyncRunStore interface {
	Create(ctx context.Context, run SyncRun) (SyncRun, error)
	Update(ctx context.Context, run SyncRun) (SyncRun, error)
	Get(ctx context.Context, id string) (SyncRun, error)
	LatestByStatus(ctx context.Context, accountKey string, status SyncRunStatus) (SyncRun, error)
}

// MarketplaceClient wraps the marketplace token, account, order and shipment endpoints.
type MarketplaceClient interface {
	ExchangeAuthorizationCode(ctx context.Context, code string) (TokenGrant, error)
	RefreshCredential(ctx context.Context, refreshToken string) (TokenGrant, error)
	GetAccountIdentity(ctx context.Context, accessToken string) (string, error)
	// ListOrders returns the account's orders newest first.
	ListOrders(ctx context.Context, accessToken string, accountID string) ([]Order, error)
	GetShipment(ctx context.Context, accessToken string, shipmentID string) (Shipment, error)
}

// ImageSearchProvider looks up a product image. A zero URL means no result.
type ImageSearchProvider interface {
	ID() string
	SearchImage(ctx context.Context, query string) (ImageSearchResult, error)
}

type RateLimitKey struct {
	ProviderID string
	AccountKey string
	BucketKey  string
}

type ProviderResponseMeta struct {
	StatusCode int
	Headers    map[string]string
	RetryAfter *time.Duration
	Metadata   map[string]any
}

type RateLimitPolicy interface {
	BeforeCall(ctx context.Context, key RateLimitKey) error
	AfterCall(ctx context.Context, key RateLimitKey, res ProviderResponseMeta) error
}

type LockHandle interface {
	Unlock(ctx context.Context) error
}

type RunLocker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (LockHandle, error)
}

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Kind() string
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// JobIDReconcile identifies queued reconciliation runs.
const JobIDReconcile = "deliveries.reconcile"

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type StoreProvider interface {
	CredentialStore() CredentialStore
	DeliveryStore() DeliveryStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// Reconciler is the engine contract used by schedulers, workers and handlers.
type Reconciler interface {
	Reconcile(ctx context.Context) ([]Delivery, error)
	ReconcileDetailed(ctx context.Context) (ReconcileResult, error)
}
