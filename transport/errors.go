package transport

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

// StatusError converts a non-2xx response into an error envelope. It returns
// nil for successful responses.
func StatusError(res core.TransportResponse, operation string) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	operation = strings.TrimSpace(operation)
	code := res.StatusCode
	if code == 0 || code >= http.StatusInternalServerError {
		// upstream failures surface as a bad gateway
		code = http.StatusBadGateway
	}
	meta := restMeta("operation", operation, "status_code", res.StatusCode, "body", truncateBody(res.Body))
	return transportError(fmt.Sprintf("transport: %s returned status %d", operation, res.StatusCode),
		statusCategory(res.StatusCode), code, meta)
}

func statusCategory(status int) goerrors.Category {
	switch {
	case status == http.StatusUnauthorized:
		return goerrors.CategoryAuth
	case status == http.StatusForbidden:
		return goerrors.CategoryAuthz
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusTooManyRequests:
		return goerrors.CategoryRateLimit
	case status >= 400 && status < 500:
		return goerrors.CategoryBadInput
	default:
		return goerrors.CategoryExternal
	}
}

// truncateBody keeps error metadata small; upstream bodies can be large HTML.
func truncateBody(body []byte) string {
	return string(body[:min(len(body), 256)])
}

func transportError(message string, category goerrors.Category, code int, metadata map[string]any) error {
	return transportWrapError(nil, category, message, code, metadata)
}

// transportWrapError tags source with a status and text code derived from
// category. A nil source yields a new error.
func transportWrapError(source error, category goerrors.Category, message string, code int, metadata map[string]any) error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithCode(code).WithTextCode(transportTextCode(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func transportTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return core.ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return core.ServiceErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return core.ServiceErrorUnauthorized
	case goerrors.CategoryRateLimit:
		return core.ServiceErrorRateLimited
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return core.ServiceErrorExternalFailure
	default:
		return core.ServiceErrorInternal
	}
}
