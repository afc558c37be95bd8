package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrTimeout matches, via errors.Is, any TransportError caused by a timeout.
var ErrTimeout = errors.New("request timed out")

// TransportError is a network-level failure: the request never produced a
// complete response.
type TransportError struct {
	Method string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a deadline or I/O timeout.
func (e *TransportError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

func (e *TransportError) Is(target error) bool {
	return target == ErrTimeout && e.Timeout()
}

// StatusError reports a response with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}
