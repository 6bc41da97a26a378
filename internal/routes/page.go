package routes

import (
	"context"
	"net/http"
	"slices"
	"strings"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

// PageRouter serves fixed content for one exact path.
type PageRouter struct {
	name        string
	path        string
	content     string
	contentType string
	methods     []string
}

// NewPageRouter creates a page candidate. Methods default to GET and HEAD;
// contentType defaults to text/html.
func NewPageRouter(name, path, content, contentType string, methods []string) *PageRouter {
	if len(methods) == 0 {
		methods = []string{http.MethodGet, http.MethodHead}
	}
	if contentType == "" {
		contentType = "text/html; charset=utf-8"
	}

	upper := make([]string, len(methods))
	for i, m := range methods {
		upper[i] = strings.ToUpper(m)
	}

	return &PageRouter{
		name:        name,
		path:        path,
		content:     content,
		contentType: contentType,
		methods:     upper,
	}
}

func (p *PageRouter) Name() string { return p.name }

func (p *PageRouter) Probe(_ context.Context, req *http.Request) dispatch.Outcome {
	if req.URL.Path != p.path {
		return dispatch.Rejected(http.StatusNotFound)
	}
	if !slices.Contains(p.methods, req.Method) {
		return dispatch.Rejected(http.StatusMethodNotAllowed)
	}
	return dispatch.Matched(http.StatusOK)
}

func (p *PageRouter) Dispatch(_ context.Context, req *http.Request, status int) (*dispatch.Response, error) {
	if status == http.StatusMethodNotAllowed {
		resp := errorBody(status)
		resp.Header.Set("Allow", strings.Join(p.methods, ", "))
		return resp, nil
	}

	resp := dispatch.NewResponse(status, p.contentType, p.content)
	if req.Method == http.MethodHead {
		resp.Body = nil
	}
	return resp, nil
}
