package transport

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
	goerrors "github.com/goliatone/go-errors"
)

const KindREST = "rest"

const (
	defaultRESTClientTimeout     = 30 * time.Second
	defaultRESTResponseBodyLimit = int64(10 << 20)
	defaultRESTUserAgent         = "go-deliveries/1"
	headerAuthorization          = "Authorization"
	headerContentType            = "Content-Type"
	contentTypeForm              = "application/x-www-form-urlencoded"
	contentTypeJSON              = "application/json"
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter executes marketplace and image search calls over HTTP.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
}

func NewRESTAdapter(client HTTPDoer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRESTClientTimeout}
	}
	return &RESTAdapter{
		Client: client,
		DefaultHeaders: map[string]string{
			"Accept":     contentTypeJSON,
			"User-Agent": defaultRESTUserAgent,
		},
		MaxResponseBodyBytes: defaultRESTResponseBodyLimit,
	}
}

func (*RESTAdapter) Kind() string {
	return KindREST
}

// BearerHeaders returns request headers carrying an access token.
func BearerHeaders(token string) map[string]string {
	token = strings.TrimSpace(token)
	if token == "" {
		return map[string]string{}
	}
	return map[string]string{headerAuthorization: "Bearer " + token}
}

// FormRequest builds a form-encoded POST request.
func FormRequest(endpoint string, form url.Values) core.TransportRequest {
	return core.TransportRequest{
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: map[string]string{headerContentType: contentTypeForm},
		Body:    []byte(form.Encode()),
	}
}

// Do runs req and reads at most the configured body limit. Non-2xx
// responses are returned as is; callers decide with StatusError.
func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, transportError("transport: rest adapter requires an http client",
			goerrors.CategoryInternal, http.StatusInternalServerError, restMeta())
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	httpReq, err := a.newRequest(ctx, req)
	if err != nil {
		return core.TransportResponse{}, err
	}
	started := time.Now()
	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		// a deadline or cancellation is ours, not the upstream's
		category := goerrors.CategoryExternal
		if ctx.Err() != nil {
			category = goerrors.CategoryOperation
		}
		return core.TransportResponse{}, transportWrapError(err, category, "transport: execute http request",
			http.StatusBadGateway, restMeta("method", httpReq.Method, "path", httpReq.URL.Path))
	}
	defer httpRes.Body.Close()

	limit := cmp.Or(max(req.MaxResponseBodyBytes, 0), max(a.MaxResponseBodyBytes, 0), defaultRESTResponseBodyLimit)
	body, err := readBody(httpRes, limit)
	if err != nil {
		return core.TransportResponse{}, err
	}
	headers := make(map[string]string, len(httpRes.Header))
	for name, values := range httpRes.Header {
		headers[strings.ToLower(name)] = strings.Join(values, ",")
	}
	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    headers,
		Body:       body,
		Metadata:   map[string]any{"kind": KindREST, "duration_ms": time.Since(started).Milliseconds()},
	}, nil
}

func (a *RESTAdapter) newRequest(ctx context.Context, req core.TransportRequest) (*http.Request, error) {
	method := cmp.Or(strings.ToUpper(strings.TrimSpace(req.Method)), http.MethodGet)
	target, err := url.Parse(strings.TrimSpace(req.URL))
	switch {
	case err != nil:
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: invalid request url",
			http.StatusBadRequest, restMeta())
	case target.String() == "":
		return nil, transportError("transport: request url is required",
			goerrors.CategoryBadInput, http.StatusBadRequest, restMeta())
	}
	if len(req.Query) > 0 {
		values := target.Query()
		for name, value := range req.Query {
			if name = strings.TrimSpace(name); name != "" {
				values.Set(name, strings.TrimSpace(value))
			}
		}
		target.RawQuery = values.Encode()
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryBadInput, "transport: create http request",
			http.StatusBadRequest, restMeta("method", method, "path", target.Path))
	}
	for _, headers := range []map[string]string{a.DefaultHeaders, req.Headers} {
		for name, value := range headers {
			if name = strings.TrimSpace(name); name != "" {
				httpReq.Header.Set(name, strings.TrimSpace(value))
			}
		}
	}
	return httpReq, nil
}

// readBody fails instead of truncating when the body is larger than limit.
func readBody(res *http.Response, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(res.Body, limit+1))
	if err != nil {
		return nil, transportWrapError(err, goerrors.CategoryExternal, "transport: read response body",
			http.StatusBadGateway, restMeta("status_code", res.StatusCode))
	}
	if int64(len(body)) > limit {
		return nil, transportError(fmt.Sprintf("transport: response body exceeds limit of %d bytes", limit),
			goerrors.CategoryExternal, http.StatusBadGateway,
			restMeta("status_code", res.StatusCode, "response_limit_b", limit))
	}
	return body, nil
}

// restMeta builds error metadata tagged with the adapter kind from key/value
// pairs.
func restMeta(pairs ...any) map[string]any {
	meta := map[string]any{"adapter": KindREST}
	for i := 0; i+1 < len(pairs); i += 2 {
		if key, ok := pairs[i].(string); ok {
			meta[key] = pairs[i+1]
		}
	}
	return meta
}

// ResponseMeta extracts the status and headers a rate-limit policy needs.
func ResponseMeta(res core.TransportResponse) core.ProviderResponseMeta {
	headers := make(map[string]string, len(res.Headers))
	for key, value := range res.Headers {
		headers[strings.ToLower(key)] = value
	}
	return core.ProviderResponseMeta{
		StatusCode: res.StatusCode,
		Headers:    headers,
		Metadata:   res.Metadata,
	}
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
