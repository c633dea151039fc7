package fetch

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a fetch failure. The controller only uses it for display.
type Kind int

const (
	KindUnknown Kind = iota
	KindTimeout
	KindHTTPStatus
	KindTransport
	KindDecode
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindHTTPStatus:
		return "http_status"
	case KindTransport:
		return "transport"
	case KindDecode:
		return "decode"
	default:
		return "unknown"
	}
}

func (k Kind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Sentinels for errors.Is against an *Error of the matching kind.
var (
	ErrTimeout    = errors.New("fetch: timeout")
	ErrHTTPStatus = errors.New("fetch: unexpected http status")
	ErrTransport  = errors.New("fetch: transport failure")
	ErrDecode     = errors.New("fetch: decode failure")
)

// Error is returned by the HTTP fetcher for every failed fetch.
type Error struct {
	Kind       Kind
	ID         int
	StatusCode int           // KindHTTPStatus only
	Timeout    time.Duration // KindTimeout only
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindTimeout:
		return fmt.Sprintf("request for #%d timed out after %s", e.ID, e.Timeout)
	case KindHTTPStatus:
		return fmt.Sprintf("server returned %d %s for #%d", e.StatusCode, http.StatusText(e.StatusCode), e.ID)
	case KindTransport:
		return fmt.Sprintf("network error fetching #%d: %v", e.ID, e.Err)
	case KindDecode:
		return fmt.Sprintf("could not decode #%d: %v", e.ID, e.Err)
	default:
		return fmt.Sprintf("fetch #%d failed: %v", e.ID, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout
	case ErrHTTPStatus:
		return e.Kind == KindHTTPStatus
	case ErrTransport:
		return e.Kind == KindTransport
	case ErrDecode:
		return e.Kind == KindDecode
	}
	return false
}

// KindOf returns the kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var fe *Error
	if errors.As(err, &fe) && fe.Kind == KindHTTPStatus {
		return fe.StatusCode
	}
	return 0
}
