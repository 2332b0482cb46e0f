package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

func TestRESTAdapter_DoSendsMethodHeadersAndQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Fatalf("expected GET method, got %s", r.Method)
		}
		if got := r.URL.Query().Get("buyer"); got != "42" {
			t.Fatalf("expected buyer query, got %q", got)
		}
		if got := r.URL.Query().Get("sort"); got != "date_desc" {
			t.Fatalf("expected sort query preserved, got %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer APP_USR-1" {
			t.Fatalf("expected bearer header, got %q", got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Fatalf("expected default accept header, got %q", got)
		}
		w.Header().Set("X-RateLimit-Remaining", "7")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	res, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:     server.URL + "/orders/search?sort=date_desc",
		Query:   map[string]string{"buyer": "42"},
		Headers: BearerHeaders("APP_USR-1"),
	})
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != `{"results":[]}` {
		t.Fatalf("unexpected response %d %q", res.StatusCode, res.Body)
	}
	meta := ResponseMeta(res)
	if meta.Headers["x-ratelimit-remaining"] != "7" {
		t.Fatalf("expected lower-cased rate limit header, got %+v", meta.Headers)
	}
}

func TestRESTAdapter_FormRequestEncodesBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("Content-Type"); got != "application/x-www-form-urlencoded" {
			t.Fatalf("expected form content type, got %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		values, err := url.ParseQuery(string(raw))
		if err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if values.Get("grant_type") != "refresh_token" {
			t.Fatalf("unexpected form %v", values)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	if _, err := adapter.Do(context.Background(), FormRequest(server.URL, url.Values{"grant_type": {"refresh_token"}})); err != nil {
		t.Fatalf("do form request: %v", err)
	}
}

func TestNewRESTAdapter_DefaultClientTimeout(t *testing.T) {
	adapter := NewRESTAdapter(nil)
	client, ok := adapter.Client.(*http.Client)
	if !ok {
		t.Fatalf("expected default *http.Client, got %T", adapter.Client)
	}
	if client.Timeout != defaultRESTClientTimeout {
		t.Fatalf("expected default timeout %s, got %s", defaultRESTClientTimeout, client.Timeout)
	}
}

func TestRESTAdapter_RequestBodyLimitOverridesAdapterLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("123456"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 100

	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL, MaxResponseBodyBytes: 3}); err == nil {
		t.Fatalf("expected request-level limit to apply")
	}
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL}); err != nil {
		t.Fatalf("expected adapter limit to allow body: %v", err)
	}
}

func TestRESTAdapter_RequestTimeoutCancelsCall(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	adapter := NewRESTAdapter(server.Client())
	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: server.URL, Timeout: 20 * time.Millisecond})
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}
