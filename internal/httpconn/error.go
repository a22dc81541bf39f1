package httpconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"syscall"
)

// Kind classifies a download failure.
type Kind int

const (
	// KindDNS is a name resolution failure. Transient.
	KindDNS Kind = iota + 1
	// KindConnectRefused is a refused TCP connection. Transient.
	KindConnectRefused
	// KindConnectTimeout is a timeout while connecting. Transient.
	KindConnectTimeout
	// KindInactivityTimeout fires when no bytes are received for the
	// configured duration. Transient, surfaced as a peer-disconnected event.
	KindInactivityTimeout
	// KindClientError is a 4xx response other than the fatal-for-file set.
	// Retried once, then fatal.
	KindClientError
	// KindServerError is a 5xx or 408 response. Transient.
	KindServerError
	// KindFileUnavailable is 401/403/404/410. Fatal for the file.
	KindFileUnavailable
	// KindRangeMismatch is a 416 or a Content-Range that does not cover the
	// requested range. Fatal for the range.
	KindRangeMismatch
	// KindMalformed is an unparseable response. Fatal, backed off long.
	KindMalformed
)

func (k Kind) String() string {
	switch k {
	case KindDNS:
		return "dns failure"
	case KindConnectRefused:
		return "connection refused"
	case KindConnectTimeout:
		return "connect timeout"
	case KindInactivityTimeout:
		return "timed out inactivity"
	case KindClientError:
		return "http client error"
	case KindServerError:
		return "http server error"
	case KindFileUnavailable:
		return "file unavailable"
	case KindRangeMismatch:
		return "range mismatch"
	case KindMalformed:
		return "malformed response"
	default:
		return "unknown"
	}
}

// Error is a classified download failure.
type Error struct {
	Kind   Kind
	Status int // HTTP status code when the failure came from a response
	Err    error
}

func (e *Error) Error() string {
	switch {
	case e.Status != 0:
		return fmt.Sprintf("%s: status %d", e.Kind, e.Status)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Err)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Temporary returns true if the operation may be retried with back-off.
func (e *Error) Temporary() bool {
	switch e.Kind {
	case KindDNS, KindConnectRefused, KindConnectTimeout, KindInactivityTimeout, KindServerError:
		return true
	}
	return false
}

// ConnectClass returns true for failures that count against the connect
// attempt cap.
func (e *Error) ConnectClass() bool {
	switch e.Kind {
	case KindDNS, KindConnectRefused, KindConnectTimeout:
		return true
	}
	return false
}

// RedirectError is a control-plane event, not a failure: the server asked to
// fetch the file from Location. Redirects are never followed by the
// connection; the owning entry decides what to do with them.
type RedirectError struct {
	FileIndex int
	Location  *url.URL
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("redirected to %s", e.Location)
}

// classify maps a transport-level error into the taxonomy. timedOut is true
// when the inactivity timer expired before err was observed.
func classify(err error, timedOut bool) *Error {
	if timedOut {
		return &Error{Kind: KindInactivityTimeout, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &Error{Kind: KindDNS, Err: err}
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return &Error{Kind: KindConnectRefused, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindConnectTimeout, Err: err}
	}
	if os.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindConnectTimeout, Err: err}
	}
	return &Error{Kind: KindMalformed, Err: err}
}
