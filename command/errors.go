package command

import (
	"net/http"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

// commandDependencyError reports a handler built without a collaborator.
func commandDependencyError(message string) error {
	missing := goerrors.New(message, goerrors.CategoryInternal)
	return missing.WithCode(http.StatusInternalServerError).WithTextCode(core.ServiceErrorInternal)
}

func commandValidationError(field string, message string) error {
	invalid := goerrors.NewValidation("command: invalid message", goerrors.FieldError{Field: field, Message: message})
	return invalid.WithSeverity(goerrors.SeverityError).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}
