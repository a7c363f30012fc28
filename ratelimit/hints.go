package ratelimit

import (
	"net/http"
	"strconv"
	"time"
)

// hints are the throttle signals a wallet agent attaches to a response.
type hints struct {
	limit      *int
	remaining  *int
	resetAt    *time.Time
	retryAfter *time.Duration
}

func readHints(res ResponseMeta, now time.Time) hints {
	header := http.Header{}
	for name, value := range res.Headers {
		header.Set(name, value)
	}

	var h hints
	h.limit = headerInt(header, "X-RateLimit-Limit")
	h.remaining = headerInt(header, "X-RateLimit-Remaining")
	if reset := headerInt(header, "X-RateLimit-Reset"); reset != nil && *reset > 0 {
		at := time.Unix(int64(*reset), 0).UTC()
		h.resetAt = &at
	}
	switch {
	case res.RetryAfter != nil && *res.RetryAfter > 0:
		wait := *res.RetryAfter
		h.retryAfter = &wait
	default:
		h.retryAfter = retryAfter(header.Get("Retry-After"), now)
	}
	return h
}

func (h hints) any() bool {
	return h.limit != nil || h.remaining != nil || h.resetAt != nil || h.retryAfter != nil
}

// throttles reports whether a response closes the bucket. An exhausted quota
// or a 429 always does. A 503 does only when the agent names a retry window,
// which is how it announces maintenance.
func (h hints) throttles(status, remaining int) bool {
	switch {
	case status == http.StatusTooManyRequests:
		return true
	case status == http.StatusServiceUnavailable:
		return h.retryAfter != nil
	case status >= http.StatusInternalServerError:
		return false
	}
	return remaining == 0 && h.any()
}

// retryAfter parses delta-seconds or an HTTP date.
func retryAfter(raw string, now time.Time) *time.Duration {
	if raw == "" {
		return nil
	}
	if seconds, err := strconv.Atoi(raw); err == nil {
		if seconds <= 0 {
			return nil
		}
		wait := time.Duration(seconds) * time.Second
		return &wait
	}
	at, err := http.ParseTime(raw)
	if err != nil || !at.After(now) {
		return nil
	}
	wait := at.Sub(now)
	return &wait
}

func headerInt(header http.Header, name string) *int {
	raw := header.Get(name)
	if raw == "" {
		return nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &value
}
