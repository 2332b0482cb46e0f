package core

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"
)

type reconcileFixture struct {
	now        time.Time
	credential *memoryCredentialStore
	deliveries *memoryDeliveryStore
	market     *fakeMarketplace
	images     *fakeImageProvider
	svc        *Service
}

func newReconcileFixture(t *testing.T, orders []Order, cached ...Delivery) *reconcileFixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := &reconcileFixture{
		now: now,
		credential: newMemoryCredentialStore(&Credential{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			AccountID:    "42",
			ExpiresAt:    now.Add(time.Hour),
		}),
		deliveries: newMemoryDeliveryStore(cached...),
		market: &fakeMarketplace{
			accountID: "42",
			orders:    orders,
			shipments: map[string]Shipment{},
		},
		images: &fakeImageProvider{id: "search", url: "http://img/search.png"},
	}
	svc, err := NewService(DefaultConfig(),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
		WithClock(fixedClock(now)),
		WithCredentialStore(fixture.credential),
		WithDeliveryStore(fixture.deliveries),
		WithMarketplaceClient(fixture.market),
		WithImageSearchProviders(fixture.images),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	fixture.svc = svc
	return fixture
}

func testOrder(id int64, title string, createdAt time.Time) Order {
	return Order{
		ID:        id,
		Status:    "paid",
		CreatedAt: createdAt,
		Items:     []OrderItem{{Title: title, Quantity: 1}},
	}
}

func TestReconcile_NewOrderScenario(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{{
		ID:        501,
		Status:    "paid",
		CreatedAt: now,
		Items: []OrderItem{{
			Title:    "Mouse",
			Quantity: 2,
			Seller:   &Party{Nickname: "LojaX"},
		}},
	}})

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected one delivery, got %d", len(out))
	}
	got := out[0]
	if got.OrderID != 501 || got.ProductName != "Mouse" || got.Quantity != 2 || got.SellerName != "LojaX" {
		t.Fatalf("unexpected delivery %#v", got)
	}
	if got.CostCenter != "" {
		t.Fatalf("expected no cost center, got %q", got.CostCenter)
	}
	if got.Image != "http://img/search.png" {
		t.Fatalf("expected searched image for a recent order, got %q", got.Image)
	}
	if _, ok := fixture.deliveries.get(501); !ok {
		t.Fatalf("expected delivery to be persisted")
	}
}

func TestReconcile_CachedImageAndAnnotationsSurvive(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	received := now.Add(-time.Hour)
	cached := Delivery{
		OrderID:        501,
		ProductName:    "Mouse",
		Quantity:       1,
		SellerName:     "LojaX",
		Image:          "http://img/a.png",
		PurchaseDate:   now.Add(-48 * time.Hour),
		CostCenter:     "OBRA",
		Keyword:        "perifericos",
		ReceivingClerk: "Ana",
		ReceivedAt:     &received,
		Issued:         true,
	}
	fixture := newReconcileFixture(t, []Order{testOrder(501, "Mouse", now.Add(-48*time.Hour))}, cached)

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got := out[0]
	if got.Image != "http://img/a.png" {
		t.Fatalf("expected cached image to survive, got %q", got.Image)
	}
	if got.SellerName != "LojaX" {
		t.Fatalf("expected cached seller to survive, got %q", got.SellerName)
	}
	if got.CostCenter != "OBRA" || got.Keyword != "perifericos" || got.ReceivingClerk != "Ana" || !got.Issued {
		t.Fatalf("expected annotations to be carried, got %#v", got)
	}
	if got.ReceivedAt == nil || !got.ReceivedAt.Equal(received) {
		t.Fatalf("expected received_at to be carried")
	}
	if fixture.images.calls() != 0 {
		t.Fatalf("expected no image search when an image is cached")
	}
}

func TestReconcile_IsIdempotent(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{
		testOrder(3, "Cabo", now),
		testOrder(2, "Fonte", now.Add(-time.Hour)),
		testOrder(1, "Placa", now.Add(-40*24*time.Hour)),
	})

	first, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	second, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical delivery sets\nfirst:  %#v\nsecond: %#v", first, second)
	}
}

func TestReconcile_FirstOccurrenceWins(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{
		testOrder(7, "Primeiro", now),
		testOrder(8, "Outro", now),
		testOrder(7, "Segundo", now.Add(-time.Hour)),
	})

	result, err := fixture.svc.ReconcileDetailed(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if len(result.Deliveries) != 2 || result.Duplicates != 1 {
		t.Fatalf("expected two deliveries and one duplicate, got %d/%d", len(result.Deliveries), result.Duplicates)
	}
	if result.Deliveries[0].OrderID != 7 || result.Deliveries[0].ProductName != "Primeiro" {
		t.Fatalf("expected first occurrence to win, got %#v", result.Deliveries[0])
	}
	if result.Deliveries[1].OrderID != 8 {
		t.Fatalf("expected upstream order to be kept")
	}
}

func TestReconcile_RetainsOrdersMissingUpstream(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	old := Delivery{OrderID: 99, ProductName: "Antigo", Quantity: 1, SellerName: "LojaY", CostCenter: "ADM", PurchaseDate: now.Add(-90 * 24 * time.Hour)}
	fixture := newReconcileFixture(t, []Order{testOrder(100, "Novo", now)}, old)

	if _, err := fixture.svc.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	got, ok := fixture.deliveries.get(99)
	if !ok {
		t.Fatalf("expected order 99 to be retained")
	}
	if !reflect.DeepEqual(got, old) {
		t.Fatalf("expected retained delivery to be unchanged, got %#v", got)
	}
}

func TestReconcile_RecencyGateBlocksOldOrders(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{
		testOrder(1, "Velho", now.Add(-30*24*time.Hour)),
		testOrder(2, "Recente", now.Add(-2*24*time.Hour)),
	})

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if fixture.images.calls() != 1 {
		t.Fatalf("expected exactly one image search, got %d", fixture.images.calls())
	}
	if fixture.images.queries[0] != "Recente" {
		t.Fatalf("expected search for the recent order, got %q", fixture.images.queries[0])
	}
	if out[0].Image != "" {
		t.Fatalf("expected no image for the old order, got %q", out[0].Image)
	}
}

func TestReconcile_SellerAndImageFallbackChains(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{
		{ID: 1, CreatedAt: now, Seller: &Party{Nickname: "OrderSeller"}, Items: []OrderItem{{Title: "A", Thumbnail: "http://img/thumb.jpg"}}},
		{ID: 2, CreatedAt: now.Add(-60 * 24 * time.Hour)},
		{ID: 3, CreatedAt: now.Add(-60 * 24 * time.Hour), Items: []OrderItem{{Title: "C"}}},
	}, Delivery{OrderID: 3, SellerName: "CachedSeller", Image: "http://img/cached.png"})

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out[0].SellerName != "OrderSeller" || out[0].Image != "http://img/thumb.jpg" {
		t.Fatalf("expected order seller and thumbnail, got %#v", out[0])
	}
	if out[0].Quantity != 1 {
		t.Fatalf("expected quantity to default to 1, got %d", out[0].Quantity)
	}
	if out[1].SellerName != UnidentifiedSeller || out[1].ProductName != UnidentifiedProduct {
		t.Fatalf("expected placeholders, got %#v", out[1])
	}
	if out[2].SellerName != "CachedSeller" || out[2].Image != "http://img/cached.png" {
		t.Fatalf("expected cached seller and image, got %#v", out[2])
	}
	if fixture.images.calls() != 0 {
		t.Fatalf("expected no image search, got %d", fixture.images.calls())
	}
}

func TestReconcile_UpstreamNicknameOutranksCachedSeller(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	renamed := testOrder(1, "Mesa", now)
	renamed.Items[0].Seller = &Party{Nickname: "LojaNova"}
	silent := testOrder(2, "Cadeira", now)
	fixture := newReconcileFixture(t, []Order{renamed, silent},
		Delivery{OrderID: 1, SellerName: "LojaAntiga", Image: "http://img/1.png"},
		Delivery{OrderID: 2, SellerName: "LojaAntiga", Image: "http://img/2.png"},
	)

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out[0].SellerName != "LojaNova" {
		t.Fatalf("expected upstream nickname to win, got %q", out[0].SellerName)
	}
	if out[1].SellerName != "LojaAntiga" {
		t.Fatalf("expected cached seller kept when upstream has none, got %q", out[1].SellerName)
	}
	stored, _ := fixture.deliveries.get(2)
	if stored.SellerName != "LojaAntiga" {
		t.Fatalf("expected stored seller kept, got %q", stored.SellerName)
	}
}

func TestReconcile_ForecastIsSetOnce(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	promised := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	cachedForecast := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)

	withShipment := testOrder(1, "Com envio", now)
	withShipment.ShippingID = "sh-1"
	alreadyKnown := testOrder(2, "Conhecido", now)
	alreadyKnown.ShippingID = "sh-2"

	fixture := newReconcileFixture(t, []Order{withShipment, alreadyKnown},
		Delivery{OrderID: 2, Image: "http://img/2.png", DeliveryForecast: &cachedForecast},
	)
	fixture.market.shipments["sh-1"] = Shipment{ID: "sh-1", PromisedDeliveryDate: &promised}
	fixture.market.shipments["sh-2"] = Shipment{ID: "sh-2", PromisedDeliveryDate: &promised}

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if out[0].DeliveryForecast == nil || !out[0].DeliveryForecast.Equal(promised) {
		t.Fatalf("expected resolved forecast, got %v", out[0].DeliveryForecast)
	}
	if out[1].DeliveryForecast == nil || !out[1].DeliveryForecast.Equal(cachedForecast) {
		t.Fatalf("expected cached forecast to be kept, got %v", out[1].DeliveryForecast)
	}
	if _, shipments := fixture.market.calls(); shipments != 1 {
		t.Fatalf("expected one shipment lookup, got %d", shipments)
	}
}

func TestReconcile_EnrichmentFailuresAreAbsorbed(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	withShipment := testOrder(1, "Mesa", now)
	withShipment.ShippingID = "sh-1"
	fixture := newReconcileFixture(t, []Order{withShipment})
	fixture.images.err = errors.New("search timeout")
	fixture.market.shipmentErr = errors.New("shipment 500")

	out, err := fixture.svc.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("expected enrichment failures to be absorbed, got %v", err)
	}
	if out[0].Image != "" || out[0].DeliveryForecast != nil {
		t.Fatalf("expected unresolved enrichment, got %#v", out[0])
	}
}

func TestReconcile_CredentialRefreshFailure(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{testOrder(1, "Mesa", now)})
	fixture.credential = newMemoryCredentialStore(&Credential{
		AccessToken:  "access-old",
		RefreshToken: "refresh-old",
		ExpiresAt:    now.Add(-time.Minute),
	})
	fixture.market.refreshErr = errors.New("network unreachable")
	svc, err := NewService(DefaultConfig(),
		WithLogger(stubLogger{}),
		WithClock(fixedClock(now)),
		WithCredentialStore(fixture.credential),
		WithDeliveryStore(fixture.deliveries),
		WithMarketplaceClient(fixture.market),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Reconcile(context.Background()); !IsCredentialRefreshFailure(err) {
		t.Fatalf("expected credential refresh error, got %v", err)
	}
	current, _ := fixture.credential.snapshot()
	if current.RefreshToken != "refresh-old" {
		t.Fatalf("expected refresh token unchanged, got %q", current.RefreshToken)
	}
	if fixture.deliveries.upserts != 0 {
		t.Fatalf("expected no cache writes")
	}
}

func TestReconcile_UpstreamFailureLeavesCache(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	cached := Delivery{OrderID: 5, ProductName: "Cadeira", SellerName: "LojaZ"}
	fixture := newReconcileFixture(t, []Order{testOrder(5, "Cadeira", now)}, cached)
	fixture.market.listErr = errors.New("502 bad gateway")

	if _, err := fixture.svc.Reconcile(context.Background()); !IsUpstreamFetchFailure(err) {
		t.Fatalf("expected upstream fetch error, got %v", err)
	}
	if fixture.deliveries.upserts != 0 {
		t.Fatalf("expected no cache writes")
	}
	got, _ := fixture.deliveries.get(5)
	if !reflect.DeepEqual(got, cached) {
		t.Fatalf("expected cache untouched, got %#v", got)
	}
}

func TestReconcile_PersistenceFailureFailsRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{testOrder(1, "Mesa", now)})
	fixture.deliveries.upsertErr = errors.New("database is locked")

	if _, err := fixture.svc.Reconcile(context.Background()); !IsPersistenceFailure(err) {
		t.Fatalf("expected persistence error, got %v", err)
	}
}

func TestReconcile_RejectsConcurrentRun(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, []Order{testOrder(1, "Mesa", now)})
	locker := fixture.svc.Dependencies().RunLocker

	handle, err := locker.Acquire(context.Background(), "reconcile:default", time.Minute)
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if _, err := fixture.svc.Reconcile(context.Background()); !IsReconcileInProgress(err) {
		t.Fatalf("expected reconcile in progress error, got %v", err)
	}
	if err := handle.Unlock(context.Background()); err != nil {
		t.Fatalf("unlock: %v", err)
	}
	if _, err := fixture.svc.Reconcile(context.Background()); err != nil {
		t.Fatalf("expected reconcile after unlock, got %v", err)
	}
}

func TestListDeliveries_FiltersByView(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	fixture := newReconcileFixture(t, nil,
		Delivery{OrderID: 1, PurchaseDate: now.Add(-3 * time.Hour)},
		Delivery{OrderID: 2, PurchaseDate: now.Add(-2 * time.Hour), CostCenter: "OBRA"},
		Delivery{OrderID: 3, PurchaseDate: now.Add(-time.Hour), CostCenter: "OBRA", ReceivingClerk: "Ana"},
		Delivery{OrderID: 4, PurchaseDate: now, CostCenter: "OBRA", ReceivingClerk: "Ana", Issued: true},
		Delivery{OrderID: 5, PurchaseDate: now.Add(-4 * time.Hour)},
	)

	cases := map[DeliveryView][]int64{
		DeliveryViewAll:        {4, 3, 2, 1, 5},
		DeliveryViewTriage:     {1, 5},
		DeliveryViewClassified: {2},
		DeliveryViewReceived:   {3},
		DeliveryViewIssued:     {4},
	}
	for view, want := range cases {
		got, err := fixture.svc.ListDeliveries(context.Background(), view)
		if err != nil {
			t.Fatalf("list %q: %v", view, err)
		}
		ids := make([]int64, 0, len(got))
		for _, delivery := range got {
			ids = append(ids, delivery.OrderID)
		}
		if !reflect.DeepEqual(ids, want) {
			t.Fatalf("view %q: expected %v, got %v", view, want, ids)
		}
	}
	if _, err := ParseDeliveryView("archived"); err == nil {
		t.Fatalf("expected unknown view to be rejected")
	}
}
