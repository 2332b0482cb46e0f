package core

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"
)

type recordingRateLimitPolicy struct {
	blocked map[string]bool
	after   []ProviderResponseMeta
}

func (p *recordingRateLimitPolicy) BeforeCall(_ context.Context, key RateLimitKey) error {
	if p.blocked[key.ProviderID] {
		return fmt.Errorf("rate limit: %s throttled", key.ProviderID)
	}
	return nil
}

func (p *recordingRateLimitPolicy) AfterCall(_ context.Context, key RateLimitKey, res ProviderResponseMeta) error {
	p.after = append(p.after, res)
	if res.StatusCode == http.StatusTooManyRequests {
		if p.blocked == nil {
			p.blocked = map[string]bool{}
		}
		p.blocked[key.ProviderID] = true
	}
	return nil
}

func newTestResolver(providers ...ImageSearchProvider) *EnrichmentResolver {
	return &EnrichmentResolver{
		providers: providers,
		forecast:  DefaultForecastExtractors(),
		timeout:   time.Second,
		window:    20 * 24 * time.Hour,
		logger:    stubLogger{},
	}
}

func TestResolveImage_ReturnsExistingThumbnailWithoutSearch(t *testing.T) {
	provider := &fakeImageProvider{id: "search", url: "http://img/found.png"}
	resolver := newTestResolver(provider)

	got := resolver.ResolveImage(context.Background(), "Mouse", "http://img/thumb.jpg")
	if got != "http://img/thumb.jpg" {
		t.Fatalf("expected thumbnail, got %q", got)
	}
	if provider.calls() != 0 {
		t.Fatalf("expected no search call")
	}
}

func TestResolveImage_FallsThroughProviderChain(t *testing.T) {
	failing := &fakeImageProvider{id: "serpapi", err: errors.New("timeout")}
	empty := &fakeImageProvider{id: "empty"}
	found := &fakeImageProvider{id: "site", url: "http://img/site-O.jpg"}
	resolver := newTestResolver(failing, empty, found)

	got := resolver.ResolveImage(context.Background(), "Teclado", "")
	if got != "http://img/site-O.jpg" {
		t.Fatalf("expected third provider result, got %q", got)
	}
	if failing.calls() != 1 || empty.calls() != 1 || found.calls() != 1 {
		t.Fatalf("expected each provider to be tried once")
	}
}

func TestResolveImage_ThrottledProviderIsSkippedAfter429(t *testing.T) {
	throttled := &fakeImageProvider{id: "serpapi", status: http.StatusTooManyRequests}
	policy := &recordingRateLimitPolicy{}
	resolver := newTestResolver(throttled)
	resolver.rateLimit = policy

	if got := resolver.ResolveImage(context.Background(), "Monitor", ""); got != "" {
		t.Fatalf("expected no image on 429, got %q", got)
	}
	if got := resolver.ResolveImage(context.Background(), "Monitor", ""); got != "" {
		t.Fatalf("expected no image while throttled, got %q", got)
	}
	if throttled.calls() != 1 {
		t.Fatalf("expected the throttled provider to be called once, got %d", throttled.calls())
	}
	if len(policy.after) != 1 || policy.after[0].StatusCode != http.StatusTooManyRequests {
		t.Fatalf("expected one 429 observation, got %#v", policy.after)
	}
}

func TestResolveImage_SkipsUnidentifiedProduct(t *testing.T) {
	provider := &fakeImageProvider{id: "search", url: "http://img/x.png"}
	resolver := newTestResolver(provider)
	if got := resolver.ResolveImage(context.Background(), UnidentifiedProduct, ""); got != "" {
		t.Fatalf("expected no lookup for the placeholder name, got %q", got)
	}
	if provider.calls() != 0 {
		t.Fatalf("expected no search call")
	}
}

func TestShouldSearchImage_RecencyWindow(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolver := newTestResolver(&fakeImageProvider{id: "search"})

	if !resolver.ShouldSearchImage(now.Add(-19*24*time.Hour), "", now) {
		t.Fatalf("expected search inside the window")
	}
	if resolver.ShouldSearchImage(now.Add(-21*24*time.Hour), "", now) {
		t.Fatalf("expected no search outside the window")
	}
	if resolver.ShouldSearchImage(now, "http://img/known.png", now) {
		t.Fatalf("expected no search when an image is known")
	}
	if newTestResolver().ShouldSearchImage(now, "", now) {
		t.Fatalf("expected no search without providers")
	}
}

func TestResolveDeliveryForecast_FirstKnownEstimate(t *testing.T) {
	estimated := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	windowEnd := time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)
	market := &fakeMarketplace{shipments: map[string]Shipment{
		"sh-1": {ID: "sh-1", EstimatedDeliveryDate: &estimated, EstimatedDeliveryWindowEnd: &windowEnd},
		"sh-2": {ID: "sh-2", EstimatedDeliveryWindowEnd: &windowEnd},
		"sh-3": {ID: "sh-3"},
	}}
	resolver := newTestResolver()
	resolver.marketplace = market

	if got := resolver.ResolveDeliveryForecast(context.Background(), "token", "sh-1"); got == nil || !got.Equal(estimated) {
		t.Fatalf("expected estimated date, got %v", got)
	}
	if got := resolver.ResolveDeliveryForecast(context.Background(), "token", "sh-2"); got == nil || !got.Equal(windowEnd) {
		t.Fatalf("expected window end, got %v", got)
	}
	if got := resolver.ResolveDeliveryForecast(context.Background(), "token", "sh-3"); got != nil {
		t.Fatalf("expected nil without estimates, got %v", got)
	}
	if got := resolver.ResolveDeliveryForecast(context.Background(), "token", "missing"); got != nil {
		t.Fatalf("expected nil on lookup error, got %v", got)
	}
	before := market.shipmentCalls
	if got := resolver.ResolveDeliveryForecast(context.Background(), "token", ""); got != nil {
		t.Fatalf("expected nil without shipment id")
	}
	if market.shipmentCalls != before {
		t.Fatalf("expected no shipment call without shipment id")
	}
}
