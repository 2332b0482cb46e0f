package sqlstore

import (
	"strings"
	"testing"
)

func TestRedactText_MasksTokensInUpstreamErrors(t *testing.T) {
	input := `get "https://serpapi.com/search.json?api_key=abc123&q=mouse": Authorization: Bearer APP_USR-1234 refresh_token=TG-99`
	got := RedactText(input)
	for _, secret := range []string{"abc123", "APP_USR-1234", "TG-99"} {
		if strings.Contains(got, secret) {
			t.Fatalf("expected %q to be redacted, got %q", secret, got)
		}
	}
	if !strings.Contains(got, "q=mouse") {
		t.Fatalf("expected non-secret query kept, got %q", got)
	}
}

func TestRedactMetadata_MasksSensitiveKeys(t *testing.T) {
	got := RedactMetadata(map[string]any{
		"access_token": "secret",
		"orders":       3,
		"nested":       map[string]any{"client_secret": "x"},
	})
	if got["access_token"] != redactedValue {
		t.Fatalf("expected access token masked")
	}
	if got["orders"] != 3 {
		t.Fatalf("expected orders kept")
	}
	nested, _ := got["nested"].(map[string]any)
	if nested["client_secret"] != redactedValue {
		t.Fatalf("expected nested secret masked")
	}
}

func TestRedactText_LeavesPlainTextAlone(t *testing.T) {
	for _, input := range []string{"", "marketplace returned 502", "decode=ok postcode=12345"} {
		if got := RedactText(input); got != input {
			t.Fatalf("expected %q unchanged, got %q", input, got)
		}
	}
}

func TestRedactMetadata_WalksLists(t *testing.T) {
	got := RedactMetadata(map[string]any{
		"errors": []any{"callback?code=TG-1", map[string]any{"api_key": "k"}},
	})
	items, _ := got["errors"].([]any)
	if len(items) != 2 || items[0] != "callback?code="+redactedValue {
		t.Fatalf("unexpected list %+v", items)
	}
	if nested, _ := items[1].(map[string]any); nested["api_key"] != redactedValue {
		t.Fatalf("expected nested api key masked, got %+v", items[1])
	}
}
