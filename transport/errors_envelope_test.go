package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestRESTAdapter_ResponseLimitReturnsRichError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("12345"))
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client())
	adapter.MaxResponseBodyBytes = 4

	_, err := adapter.Do(context.Background(), core.TransportRequest{Method: http.MethodGet, URL: server.URL})
	if err == nil {
		t.Fatalf("expected response body limit error")
	}

	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.Category != goerrors.CategoryExternal {
		t.Fatalf("expected external category, got %q", rich.Category)
	}
	if rich.TextCode != core.ServiceErrorExternalFailure {
		t.Fatalf("expected %q text code, got %q", core.ServiceErrorExternalFailure, rich.TextCode)
	}
	if rich.Code != http.StatusBadGateway {
		t.Fatalf("expected %d code, got %d", http.StatusBadGateway, rich.Code)
	}
}

func TestRESTAdapter_NilReturnsRichError(t *testing.T) {
	var adapter *RESTAdapter
	_, err := adapter.Do(context.Background(), core.TransportRequest{URL: "http://example.test"})
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected go-errors envelope, got %T", err)
	}
	if rich.TextCode != core.ServiceErrorInternal || rich.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected envelope %q %d", rich.TextCode, rich.Code)
	}
}

func TestStatusError_MapsStatusToCategory(t *testing.T) {
	cases := []struct {
		status   int
		category goerrors.Category
		textCode string
		code     int
	}{
		{http.StatusUnauthorized, goerrors.CategoryAuth, core.ServiceErrorUnauthorized, http.StatusUnauthorized},
		{http.StatusNotFound, goerrors.CategoryNotFound, core.ServiceErrorNotFound, http.StatusNotFound},
		{http.StatusTooManyRequests, goerrors.CategoryRateLimit, core.ServiceErrorRateLimited, http.StatusTooManyRequests},
		{http.StatusBadRequest, goerrors.CategoryBadInput, core.ServiceErrorBadInput, http.StatusBadRequest},
		{http.StatusServiceUnavailable, goerrors.CategoryExternal, core.ServiceErrorExternalFailure, http.StatusBadGateway},
	}
	for _, tc := range cases {
		err := StatusError(core.TransportResponse{StatusCode: tc.status, Body: []byte("nope")}, "list_orders")
		var rich *goerrors.Error
		if !goerrors.As(err, &rich) {
			t.Fatalf("status %d: expected envelope, got %T", tc.status, err)
		}
		if rich.Category != tc.category || rich.TextCode != tc.textCode || rich.Code != tc.code {
			t.Fatalf("status %d: unexpected envelope %q %q %d", tc.status, rich.Category, rich.TextCode, rich.Code)
		}
	}
	if err := StatusError(core.TransportResponse{StatusCode: http.StatusOK}, "list_orders"); err != nil {
		t.Fatalf("expected nil for 2xx, got %v", err)
	}
}
