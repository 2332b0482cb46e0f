package ratelimit

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-deliveries/core"
)

// quota is what one provider response says about the bucket. Each has* flag
// records whether the provider reported that value at all.
type quota struct {
	limit         int
	remaining     int
	resetAt       time.Time
	retryAfter    time.Duration
	hasLimit      bool
	hasRemaining  bool
	hasResetAt    bool
	hasRetryAfter bool
}

func readQuota(res core.ProviderResponseMeta, now time.Time) quota {
	header := make(http.Header, len(res.Headers))
	for name, value := range res.Headers {
		header.Set(strings.TrimSpace(name), strings.TrimSpace(value))
	}

	var q quota
	q.limit, q.hasLimit = headerInt(header, "X-RateLimit-Limit")
	q.remaining, q.hasRemaining = headerInt(header, "X-RateLimit-Remaining")
	if unix, ok := headerInt(header, "X-RateLimit-Reset"); ok && unix > 0 {
		q.resetAt, q.hasResetAt = time.Unix(int64(unix), 0).UTC(), true
	}
	q.retryAfter, q.hasRetryAfter = retryAfter(res.RetryAfter, header.Get("Retry-After"), now)
	return q
}

// reported is true when the response carried any quota header.
func (q quota) reported() bool {
	return q.hasLimit || q.hasRemaining || q.hasResetAt || q.hasRetryAfter
}

// exhausted reports a response that should close the bucket, given the
// remaining count after this response. Server errors never close it.
func (q quota) exhausted(status int, remaining int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status >= http.StatusInternalServerError:
		return false
	default:
		return q.reported() && remaining == 0
	}
}

// retryAfter prefers a value the transport already parsed, then the header in
// delta-seconds or HTTP-date form.
func retryAfter(parsed *time.Duration, raw string, now time.Time) (time.Duration, bool) {
	if parsed != nil && *parsed > 0 {
		return *parsed, true
	}
	if raw == "" {
		return 0, false
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		return time.Duration(seconds) * time.Second, seconds > 0
	}
	if at, err := http.ParseTime(raw); err == nil && at.After(now) {
		return at.Sub(now), true
	}
	return 0, false
}

func headerInt(header http.Header, name string) (int, bool) {
	value, err := strconv.Atoi(header.Get(name))
	return value, err == nil
}
