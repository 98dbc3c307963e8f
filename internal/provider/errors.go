package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

// ProviderError is a failed job trigger. Transient failures are worth
// re-issuing by the operator; the console never re-issues on its own, since
// a second trigger would start a second backend job.
type ProviderError struct {
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *ProviderError) Error() string {
	if e == nil {
		return "<nil>"
	}

	var b strings.Builder
	b.WriteString("job trigger failed")
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// deliveryError wraps a failure to hand the request to the backend at all.
// Only a cancelled request is permanent.
func deliveryError(message string, cause error) *ProviderError {
	return &ProviderError{
		Message:   message,
		Transient: !errors.Is(cause, context.Canceled),
		Cause:     cause,
	}
}

// statusError wraps a non-2xx answer. Throttling and server errors are
// transient, everything else is the request's fault.
func statusError(statusCode int, body string) *ProviderError {
	message := fmt.Sprintf("function returned status %d", statusCode)
	if body != "" {
		message += ": " + body
	}
	return &ProviderError{
		StatusCode: statusCode,
		Message:    message,
		Transient:  statusCode == http.StatusTooManyRequests || (statusCode >= http.StatusInternalServerError && statusCode <= 599),
	}
}

// IsTransient reports whether re-issuing the trigger may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return true
	case errors.Is(err, context.Canceled):
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
