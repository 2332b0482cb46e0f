package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput                = "DELIVERIES_BAD_INPUT"
	ServiceErrorNotFound                = "DELIVERIES_NOT_FOUND"
	ServiceErrorNoCredential            = "DELIVERIES_NO_CREDENTIAL"
	ServiceErrorCredentialRefreshFailed = "DELIVERIES_CREDENTIAL_REFRESH_FAILED"
	ServiceErrorUpstreamFetchFailed     = "DELIVERIES_UPSTREAM_FETCH_FAILED"
	ServiceErrorEnrichmentFailed        = "DELIVERIES_ENRICHMENT_FAILED"
	ServiceErrorPersistenceFailed       = "DELIVERIES_PERSISTENCE_FAILED"
	ServiceErrorReconcileInProgress     = "DELIVERIES_RECONCILE_IN_PROGRESS"
	ServiceErrorUnauthorized            = "DELIVERIES_UNAUTHORIZED"
	ServiceErrorRateLimited             = "DELIVERIES_RATE_LIMITED"
	ServiceErrorExternalFailure         = "DELIVERIES_EXTERNAL_FAILURE"
	ServiceErrorInternal                = "DELIVERIES_INTERNAL_ERROR"
)

// NewNoCredentialError reports that no credential was ever stored and the
// authorization flow must be restarted.
func NewNoCredentialError(source error) *goerrors.Error {
	return wrapServiceError(
		source,
		"core: no marketplace credential stored, re-authorization required",
		goerrors.CategoryAuth,
		ServiceErrorNoCredential,
		nil,
	)
}

// NewCredentialRefreshError reports a failed refresh exchange. The stored
// credential is left untouched.
func NewCredentialRefreshError(source error, accountID string) *goerrors.Error {
	return wrapServiceError(
		source,
		"core: credential refresh failed, re-authorization required",
		goerrors.CategoryAuth,
		ServiceErrorCredentialRefreshFailed,
		map[string]any{"account_id": strings.TrimSpace(accountID)},
	)
}

func NewUpstreamFetchError(source error, operation string) *goerrors.Error {
	return wrapServiceError(
		source,
		"core: marketplace fetch failed",
		goerrors.CategoryExternal,
		ServiceErrorUpstreamFetchFailed,
		map[string]any{"operation": strings.TrimSpace(operation)},
	)
}

// NewEnrichmentFailure describes an absorbed enrichment error. It is logged,
// never returned from a reconciliation run.
func NewEnrichmentFailure(source error, kind string, metadata map[string]any) *goerrors.Error {
	fields := copyAnyMap(metadata)
	fields["enrichment"] = strings.TrimSpace(kind)
	return wrapServiceError(
		source,
		"core: enrichment lookup failed",
		goerrors.CategoryExternal,
		ServiceErrorEnrichmentFailed,
		fields,
	)
}

func NewPersistenceError(source error, operation string) *goerrors.Error {
	return wrapServiceError(
		source,
		"core: delivery cache persistence failed",
		goerrors.CategoryInternal,
		ServiceErrorPersistenceFailed,
		map[string]any{"operation": strings.TrimSpace(operation)},
	)
}

func NewReconcileInProgressError(source error, accountKey string) *goerrors.Error {
	return wrapServiceError(
		source,
		"core: reconciliation already in progress",
		goerrors.CategoryConflict,
		ServiceErrorReconcileInProgress,
		map[string]any{"account_key": strings.TrimSpace(accountKey)},
	)
}

func IsNoCredential(err error) bool { return HasTextCode(err, ServiceErrorNoCredential) }

func IsCredentialRefreshFailure(err error) bool {
	return HasTextCode(err, ServiceErrorCredentialRefreshFailed)
}

func IsUpstreamFetchFailure(err error) bool { return HasTextCode(err, ServiceErrorUpstreamFetchFailed) }

func IsPersistenceFailure(err error) bool { return HasTextCode(err, ServiceErrorPersistenceFailed) }

func IsReconcileInProgress(err error) bool { return HasTextCode(err, ServiceErrorReconcileInProgress) }

// HasTextCode reports whether err carries a go-errors envelope with textCode.
func HasTextCode(err error, textCode string) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr == nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(richErr.TextCode), strings.TrimSpace(textCode))
}

func wrapServiceError(
	source error,
	message string,
	category goerrors.Category,
	textCode string,
	metadata map[string]any,
) *goerrors.Error {
	var err *goerrors.Error
	if source == nil {
		err = goerrors.New(message, category)
	} else {
		err = goerrors.Wrap(source, category, message)
	}
	err = err.WithTextCode(textCode).WithCode(serviceHTTPStatus(category))
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}
	if errors.Is(err, ErrCredentialNotFound) {
		return NewNoCredentialError(err)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "lock already held"), strings.Contains(msg, "in progress"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorReconcileInProgress)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorUnauthorized
	case goerrors.CategoryConflict:
		return ServiceErrorReconcileInProgress
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	default:
		return ServiceErrorInternal
	}
}

// ServiceHTTPStatus maps an error category to the status code used by the HTTP surface.
func ServiceHTTPStatus(category goerrors.Category) int {
	return serviceHTTPStatus(category)
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
