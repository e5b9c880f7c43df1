package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Kind is a stable, machine-readable classification of a backend call
// failure. Callers branch on Kind instead of inspecting raw transport
// errors, so the distinction between "wait and retry" (rate limits,
// outages) and "this will never succeed" (bad target, revoked access)
// survives all the way to the UI.
type Kind string

const (
	// KindTimeout means a single attempt exceeded its deadline.
	KindTimeout Kind = "timeout"

	// KindNetwork covers connection-level failures: DNS, refused
	// connections, resets. The request may never have reached the backend.
	KindNetwork Kind = "network"

	// KindRateLimited is an HTTP 429. Retryable; RetryAfter carries the
	// server's hint when one was sent.
	KindRateLimited Kind = "rate_limited"

	// KindNotFound is an HTTP 404: unknown job id or unknown target.
	KindNotFound Kind = "not_found"

	// KindForbidden is an HTTP 401/403: bad or insufficient token.
	KindForbidden Kind = "forbidden"

	// KindClient covers the remaining 4xx statuses. Never retried.
	KindClient Kind = "client"

	// KindServer covers 5xx statuses. Retryable.
	KindServer Kind = "server"
)

// Error is the classified form of any failure crossing the backend
// boundary. It is always one of the Kinds above, never a bare transport
// error.
type Error struct {
	Kind       Kind
	StatusCode int           // zero when no HTTP response was received
	Message    string        // human-readable detail, backend message when available
	RetryAfter time.Duration // optional server hint, rate-limit responses only
	Attempts   int           // set by the executor once the attempt budget is spent
	Cause      error         // wrapped underlying error, may be nil
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.StatusCode > 0 {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.StatusCode)
	}
	if e.Attempts > 1 {
		msg = fmt.Sprintf("%s after %d attempts", msg, e.Attempts)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure is transient: timeouts, network
// errors, 5xx responses and rate limits. All other 4xx are permanent.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindServer, KindRateLimited:
		return true
	default:
		return false
	}
}

// AsError extracts a classified *Error from err's chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, k Kind) bool {
	e, ok := AsError(err)
	return ok && e.Kind == k
}

// Classify wraps an arbitrary call failure into a classified Error.
// Errors that are already classified pass through unchanged.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := AsError(err); ok {
		return e
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Message: "request timed out", Cause: err}
	}
	if errors.Is(err, context.Canceled) {
		// Caller gave up; never worth retrying.
		return &Error{Kind: KindClient, Message: "request cancelled", Cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Message: "request timed out", Cause: err}
	}
	return &Error{Kind: KindNetwork, Message: err.Error(), Cause: err}
}

// classifyResponse maps a non-2xx HTTP response to an Error. The body is
// the already-read response body, used for the backend's message field.
func classifyResponse(resp *http.Response, message string) *Error {
	if message == "" {
		message = fmt.Sprintf("%s %s", resp.Request.Method, http.StatusText(resp.StatusCode))
	}

	e := &Error{StatusCode: resp.StatusCode, Message: message}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		e.Kind = KindRateLimited
		e.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusNotFound:
		e.Kind = KindNotFound
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		e.Kind = KindForbidden
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		e.Kind = KindClient
	default:
		e.Kind = KindServer
	}
	return e
}

func parseRetryAfter(raw string) time.Duration {
	if raw == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(raw); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	// HTTP-date form is rare from this backend; ignore rather than guess.
	return 0
}
