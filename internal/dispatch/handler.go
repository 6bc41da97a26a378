package dispatch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// Handler is a candidate that may claim and answer a request.
//
// Probe must not consume the request body. Dispatch is called at most once per
// request, only for the candidate the Resolver selected, and must not retain
// req after it returns.
type Handler interface {
	Probe(ctx context.Context, req *http.Request) Outcome
	Dispatch(ctx context.Context, req *http.Request, status int) (*Response, error)
}

// Fallback renders the response when no candidate can. It must not fail.
type Fallback interface {
	Dispatch(ctx context.Context, failure *Failure) *Response
}

// Named is implemented by handlers that want a stable name in logs and metrics.
type Named interface {
	Name() string
}

// FallbackFunc adapts a function to the Fallback interface.
type FallbackFunc func(ctx context.Context, failure *Failure) *Response

func (f FallbackFunc) Dispatch(ctx context.Context, failure *Failure) *Response {
	return f(ctx, failure)
}

// Response is what a handler produces. Body may be nil; if it implements
// io.Closer the transport closes it once written.
type Response struct {
	Status int
	Header http.Header
	Body   io.Reader
}

// NewResponse builds a response with a string body and the given content type.
func NewResponse(status int, contentType, body string) *Response {
	header := make(http.Header)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	header.Set("Content-Length", strconv.Itoa(len(body)))

	return &Response{
		Status: status,
		Header: header,
		Body:   strings.NewReader(body),
	}
}

// StatusResponse renders the numeric status as a plain text body.
func StatusResponse(status int) *Response {
	return NewResponse(status, "text/plain; charset=utf-8", strconv.Itoa(status))
}

func handlerName(h Handler, index int) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("candidate[%d]", index)
}
