package routes

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strconv"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

// Fallback formats.
const (
	FormatText = "text"
	FormatHTML = "html"
)

const errorPageTemplate = `<!DOCTYPE html>
<html>
<head><title>%[1]d %[2]s</title></head>
<body>
<h1>%[1]d</h1>
<p>%[2]s</p>
</body>
</html>
`

// ErrorPage is the fallback: it renders the failure status either as the bare
// number or as a minimal HTML page.
type ErrorPage struct {
	format string
}

// NewErrorPage creates the fallback. Anything other than FormatHTML renders
// text.
func NewErrorPage(format string) *ErrorPage {
	return &ErrorPage{format: format}
}

func (e *ErrorPage) Dispatch(_ context.Context, failure *dispatch.Failure) *dispatch.Response {
	status := failure.Status
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	var resp *dispatch.Response
	if e.format == FormatHTML {
		body := fmt.Sprintf(errorPageTemplate, status, html.EscapeString(http.StatusText(status)))
		resp = dispatch.NewResponse(status, "text/html; charset=utf-8", body)
	} else {
		resp = dispatch.StatusResponse(status)
	}

	resp.Header.Set("Cache-Control", "no-store")
	if failure.Request != nil && failure.Request.Method == http.MethodHead {
		resp.Body = nil
	}
	return resp
}

func errorBody(status int) *dispatch.Response {
	return dispatch.NewResponse(status, "text/plain; charset=utf-8",
		strconv.Itoa(status)+" "+http.StatusText(status)+"\n")
}
