package mercadolivre

import (
	"context"
	"net/http"
	"testing"
)

func TestSiteSearch_UpgradesThumbnail(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sites/MLB/search" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("q") != "Mouse sem fio" || r.URL.Query().Get("limit") != "1" {
			t.Fatalf("unexpected query %v", r.URL.Query())
		}
		_, _ = w.Write([]byte(`{"results":[{"thumbnail":"http://http2.mlstatic.com/D_123-I.jpg"}]}`))
	})

	result, err := NewSiteSearch(client).SearchImage(context.Background(), "Mouse sem fio")
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if result.URL != "http://http2.mlstatic.com/D_123-O.jpg" {
		t.Fatalf("unexpected url %q", result.URL)
	}
	if result.Response.StatusCode != http.StatusOK {
		t.Fatalf("expected status to be reported, got %d", result.Response.StatusCode)
	}
}

func TestSiteSearch_EmptyResultsAndThrottle(t *testing.T) {
	status := http.StatusOK
	client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"results":[]}`))
	})
	search := NewSiteSearch(client)

	result, err := search.SearchImage(context.Background(), "nada")
	if err != nil || result.URL != "" {
		t.Fatalf("expected empty result, got %+v (%v)", result, err)
	}

	status = http.StatusTooManyRequests
	result, err = search.SearchImage(context.Background(), "nada")
	if err != nil {
		t.Fatalf("expected 429 to be reported without error, got %v", err)
	}
	if result.URL != "" || result.Response.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("unexpected throttled result %+v", result)
	}
}
