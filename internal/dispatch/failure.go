package dispatch

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
)

// Kind classifies how a request reached its final handler.
type Kind int

const (
	KindMatched         Kind = iota // a candidate claimed and answered
	KindHardReject                  // a candidate rejected with a non-miss status and answered
	KindExhausted                   // no candidate claimed the request
	KindDispatchFailure             // the selected candidate failed to produce a response
	KindCancelled                   // the request context ended during resolution
	KindPanic                       // a candidate panicked
)

func (k Kind) String() string {
	switch k {
	case KindMatched:
		return "matched"
	case KindHardReject:
		return "hard_reject"
	case KindExhausted:
		return "exhausted"
	case KindDispatchFailure:
		return "dispatch_failure"
	case KindCancelled:
		return "cancelled"
	case KindPanic:
		return "panic"
	default:
		return "unknown"
	}
}

// Text codes carried by dispatch errors.
const (
	TextCodeDispatchFailed      = "DISPATCH_FAILED"
	TextCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	TextCodeUpstreamFailed      = "UPSTREAM_FAILED"
	TextCodeCircuitOpen         = "CIRCUIT_OPEN"
	TextCodeStaticReadFailed    = "STATIC_READ_FAILED"
)

// Failure is the context handed to the Fallback.
type Failure struct {
	Request *http.Request
	Kind    Kind
	Status  int
	Message string
	Handler string
	Err     error
}

func (f *Failure) String() string {
	if f.Handler == "" {
		return fmt.Sprintf("%s: %d %s", f.Kind, f.Status, f.Message)
	}
	return fmt.Sprintf("%s at %s: %d %s", f.Kind, f.Handler, f.Status, f.Message)
}

// NewError builds a dispatch failure carrying the HTTP status the fallback
// should render.
func NewError(status int, textCode, message string) *goerrors.Error {
	return goerrors.New(message, categoryFor(status)).
		WithCode(status).
		WithTextCode(textCode)
}

// WrapError wraps source as a dispatch failure with the given status.
func WrapError(source error, status int, textCode, message string) *goerrors.Error {
	if source == nil {
		return NewError(status, textCode, message)
	}
	return goerrors.Wrap(source, categoryFor(status), message).
		WithCode(status).
		WithTextCode(textCode)
}

// ErrorStatus extracts the HTTP status carried by err, or def when it has none.
func ErrorStatus(err error, def int) int {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code >= 400 && richErr.Code <= 599 {
		return richErr.Code
	}
	return def
}

func categoryFor(status int) goerrors.Category {
	switch {
	case status == http.StatusNotFound:
		return goerrors.CategoryNotFound
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable, status == http.StatusGatewayTimeout:
		return goerrors.CategoryExternal
	case status >= 500:
		return goerrors.CategoryInternal
	default:
		return goerrors.CategoryOperation
	}
}
