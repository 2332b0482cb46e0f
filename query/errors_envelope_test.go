package query

import (
	"context"
	"testing"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

func TestQueryErrors_CarryServiceEnvelope(t *testing.T) {
	_, listErr := (*ListDeliveriesQuery)(nil).Query(context.Background(), ListDeliveriesMessage{})
	cases := []struct {
		name     string
		err      error
		category goerrors.Category
		textCode string
	}{
		{"nil lister", listErr, goerrors.CategoryInternal, core.ServiceErrorInternal},
		{"unknown status", LatestSyncRunMessage{Status: "paused"}.Validate(), goerrors.CategoryValidation, core.ServiceErrorBadInput},
		{"missing run id", GetSyncRunMessage{}.Validate(), goerrors.CategoryBadInput, core.ServiceErrorBadInput},
		{"unknown view", ListDeliveriesMessage{View: "bogus"}.Validate(), goerrors.CategoryValidation, core.ServiceErrorBadInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var rich *goerrors.Error
			if !goerrors.As(tc.err, &rich) {
				t.Fatalf("expected go-errors envelope, got %T (%v)", tc.err, tc.err)
			}
			if rich.Category != tc.category || rich.TextCode != tc.textCode {
				t.Fatalf("unexpected envelope %q %q", rich.Category, rich.TextCode)
			}
		})
	}
}
