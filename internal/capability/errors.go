package capability

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// Error is a normalized capability failure. Retryable covers transient
// classes (timeouts, transport errors, 5xx, 429); everything else is
// permanent. Clients never retry themselves; retry policy belongs to the
// orchestrator.
type Error struct {
	Capability string
	Reason     string
	Retryable  bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Capability, e.Reason)
}

// IsRetryable reports whether err is a capability failure worth one retry.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

func statusError(capability string, status int) *Error {
	retryable := status >= 500 || status == http.StatusTooManyRequests
	return &Error{
		Capability: capability,
		Reason:     fmt.Sprintf("status %d", status),
		Retryable:  retryable,
	}
}

func transportError(capability string, err error) *Error {
	retryable := true
	var ne net.Error
	if errors.As(err, &ne) || errors.Is(err, context.DeadlineExceeded) {
		retryable = true
	}
	// Caller cancellation is not a transient failure.
	if errors.Is(err, context.Canceled) {
		retryable = false
	}
	return &Error{
		Capability: capability,
		Reason:     err.Error(),
		Retryable:  retryable,
	}
}

func permanentError(capability, reason string) *Error {
	return &Error{Capability: capability, Reason: reason, Retryable: false}
}
