package dispatch

import (
	"errors"
	"fmt"
	"time"
)

// DeliveryError is one recipient's failed delivery.
type DeliveryError struct {
	Recipient string
	Attempts  int
	Err       error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %s after %d attempt(s): %v", e.Recipient, e.Attempts, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Permanent marks a send error that retrying cannot fix, such as a deleted
// chat.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// RetryAfter attaches a server supplied delay (flood control) to err.
func RetryAfter(err error, after time.Duration) error {
	if err == nil {
		return nil
	}
	return retryAfterError{err: err, after: max(after, 0)}
}

type retryAfterError struct {
	err   error
	after time.Duration
}

func (e retryAfterError) Error() string { return fmt.Sprintf("retry after %s: %v", e.after, e.err) }
func (e retryAfterError) Unwrap() error { return e.err }

func retryAfterHint(err error) (time.Duration, bool) {
	var ra retryAfterError
	if errors.As(err, &ra) {
		return ra.after, true
	}
	return 0, false
}
