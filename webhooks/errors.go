package webhooks

import (
	"net/http"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

// failure pairs a go-errors category with the HTTP status and text code the
// notification endpoint answers with.
type failure struct {
	category goerrors.Category
	status   int
	textCode string
}

var (
	badNotification = failure{goerrors.CategoryBadInput, http.StatusBadRequest, core.ServiceErrorBadInput}
	foreignApp      = failure{goerrors.CategoryAuth, http.StatusUnauthorized, core.ServiceErrorUnauthorized}
	enqueueFailed   = failure{goerrors.CategoryInternal, http.StatusInternalServerError, core.ServiceErrorInternal}
)

func (f failure) annotate(err *goerrors.Error, metadata map[string]any) *goerrors.Error {
	err = err.WithCode(f.status).WithTextCode(f.textCode)
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func (f failure) new(message string, metadata map[string]any) *goerrors.Error {
	return f.annotate(goerrors.New(message, f.category), metadata)
}

// wrap keeps errors that already carry a text code.
func (f failure) wrap(err error, message string, metadata map[string]any) *goerrors.Error {
	if err == nil {
		return f.new(message, metadata)
	}
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich != nil && rich.TextCode != "" {
		return rich
	}
	return f.annotate(goerrors.Wrap(err, f.category, message), metadata)
}
