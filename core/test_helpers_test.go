package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"
)

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return []byte{}, nil
	}
	encoded := base64.StdEncoding.EncodeToString(plaintext)
	return []byte("enc:" + encoded), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return []byte{}, nil
	}
	raw := string(ciphertext)
	if !strings.HasPrefix(raw, "enc:") {
		return nil, fmt.Errorf("invalid ciphertext")
	}
	return base64.StdEncoding.DecodeString(strings.TrimPrefix(raw, "enc:"))
}

type memoryCredentialStore struct {
	mu       sync.Mutex
	current  *Credential
	replaced []Credential
	getErr   error
	putErr   error
}

func newMemoryCredentialStore(initial *Credential) *memoryCredentialStore {
	store := &memoryCredentialStore{}
	if initial != nil {
		copied := *initial
		store.current = &copied
	}
	return store
}

func (s *memoryCredentialStore) GetCurrent(context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Credential{}, s.getErr
	}
	if s.current == nil {
		return Credential{}, ErrCredentialNotFound
	}
	return *s.current, nil
}

func (s *memoryCredentialStore) Replace(_ context.Context, cred Credential) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.putErr != nil {
		return Credential{}, s.putErr
	}
	version := 1
	if s.current != nil {
		version = s.current.Version + 1
	}
	cred.ID = fmt.Sprintf("cred_%d", version)
	cred.Version = version
	cred.Status = CredentialStatusActive
	s.current = &cred
	s.replaced = append(s.replaced, cred)
	return cred, nil
}

func (s *memoryCredentialStore) snapshot() (Credential, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return Credential{}, len(s.replaced)
	}
	return *s.current, len(s.replaced)
}

// memoryDeliveryStore keeps deliveries by order id and mirrors the SQL store's
// rules of never clearing a known image or seller name and never writing
// annotations on an existing record.
type memoryDeliveryStore struct {
	mu        sync.Mutex
	records   map[int64]Delivery
	order     []int64
	findErr   error
	upsertErr error
	upserts   int
}

func newMemoryDeliveryStore(initial ...Delivery) *memoryDeliveryStore {
	store := &memoryDeliveryStore{records: map[int64]Delivery{}}
	for _, delivery := range initial {
		store.put(delivery)
	}
	return store
}

func (s *memoryDeliveryStore) put(delivery Delivery) {
	if _, ok := s.records[delivery.OrderID]; !ok {
		s.order = append(s.order, delivery.OrderID)
	}
	s.records[delivery.OrderID] = delivery
}

func (s *memoryDeliveryStore) FindAll(context.Context) ([]Delivery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	out := make([]Delivery, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.records[id])
	}
	return out, nil
}

func (s *memoryDeliveryStore) UpsertMany(_ context.Context, deliveries []Delivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.upsertErr != nil {
		return s.upsertErr
	}
	s.upserts++
	for _, delivery := range deliveries {
		if existing, ok := s.records[delivery.OrderID]; ok {
			if delivery.Image == "" {
				delivery.Image = existing.Image
			}
			if delivery.SellerName == "" {
				delivery.SellerName = existing.SellerName
			}
			existing.Annotations().applyTo(&delivery)
		}
		s.put(delivery)
	}
	return nil
}

func (s *memoryDeliveryStore) get(orderID int64) (Delivery, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delivery, ok := s.records[orderID]
	return delivery, ok
}

type fakeMarketplace struct {
	mu sync.Mutex

	accountID   string
	orders      []Order
	shipments   map[string]Shipment
	identityErr error
	listErr     error
	shipmentErr error

	refreshGrant TokenGrant
	refreshErr   error
	refreshDelay time.Duration
	refreshGate  chan struct{}
	exchange     TokenGrant
	exchangeErr  error

	refreshCalls  int
	identityCalls int
	listCalls     int
	shipmentCalls int
	tokensSeen    []string
}

func (m *fakeMarketplace) ExchangeAuthorizationCode(_ context.Context, code string) (TokenGrant, error) {
	if m.exchangeErr != nil {
		return TokenGrant{}, m.exchangeErr
	}
	if code == "" {
		return TokenGrant{}, fmt.Errorf("code required")
	}
	return m.exchange, nil
}

func (m *fakeMarketplace) RefreshCredential(ctx context.Context, refreshToken string) (TokenGrant, error) {
	m.mu.Lock()
	m.refreshCalls++
	delay := m.refreshDelay
	gate := m.refreshGate
	m.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return TokenGrant{}, ctx.Err()
		}
	}
	if m.refreshErr != nil {
		return TokenGrant{}, m.refreshErr
	}
	if refreshToken == "" {
		return TokenGrant{}, fmt.Errorf("refresh token required")
	}
	return m.refreshGrant, nil
}

func (m *fakeMarketplace) GetAccountIdentity(_ context.Context, token string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identityCalls++
	m.tokensSeen = append(m.tokensSeen, token)
	if m.identityErr != nil {
		return "", m.identityErr
	}
	return m.accountID, nil
}

func (m *fakeMarketplace) ListOrders(context.Context, string, string) ([]Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]Order(nil), m.orders...), nil
}

func (m *fakeMarketplace) GetShipment(_ context.Context, _ string, shipmentID string) (Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipmentCalls++
	if m.shipmentErr != nil {
		return Shipment{}, m.shipmentErr
	}
	shipment, ok := m.shipments[shipmentID]
	if !ok {
		return Shipment{}, fmt.Errorf("shipment %s not found", shipmentID)
	}
	return shipment, nil
}

func (m *fakeMarketplace) calls() (refresh int, shipments int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.refreshCalls, m.shipmentCalls
}

type fakeImageProvider struct {
	mu      sync.Mutex
	id      string
	url     string
	status  int
	err     error
	queries []string
}

func (p *fakeImageProvider) ID() string { return p.id }

func (p *fakeImageProvider) SearchImage(_ context.Context, query string) (ImageSearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queries = append(p.queries, query)
	if p.err != nil {
		return ImageSearchResult{}, p.err
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusTooManyRequests {
		return ImageSearchResult{Response: ProviderResponseMeta{StatusCode: status}}, nil
	}
	return ImageSearchResult{URL: p.url, Response: ProviderResponseMeta{StatusCode: status}}, nil
}

func (p *fakeImageProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queries)
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
	err    error
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.values, nil
}

func fixedClock(now time.Time) func() time.Time {
	return func() time.Time { return now }
}

func timePointer(value time.Time) *time.Time {
	return &value
}
