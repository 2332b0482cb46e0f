package query

import (
	"net/http"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

func withStatus(err *goerrors.Error, status int, textCode string) error {
	return err.WithCode(status).WithTextCode(textCode)
}

func queryDependencyError(message string) error {
	return withStatus(goerrors.New(message, goerrors.CategoryInternal), http.StatusInternalServerError, core.ServiceErrorInternal)
}

func queryValidationError(field string, message string) error {
	invalid := goerrors.NewValidation("query: invalid filter", goerrors.FieldError{Field: field, Message: message})
	return withStatus(invalid.WithSeverity(goerrors.SeverityError), http.StatusBadRequest, core.ServiceErrorBadInput)
}

func queryInvalidInputError(message string) error {
	return withStatus(goerrors.New(message, goerrors.CategoryBadInput), http.StatusBadRequest, core.ServiceErrorBadInput)
}

// queryWrapValidation keeps nil as nil.
func queryWrapValidation(err error, message string) error {
	if err == nil {
		return nil
	}
	return withStatus(goerrors.Wrap(err, goerrors.CategoryValidation, message), http.StatusBadRequest, core.ServiceErrorBadInput)
}

func queryNotFoundError(err error, message string) error {
	return withStatus(goerrors.Wrap(err, goerrors.CategoryNotFound, message), http.StatusNotFound, core.ServiceErrorNotFound)
}
