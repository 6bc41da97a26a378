package routes

import (
	"context"
	"net/http"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

// DenyRouter refuses every request under a prefix with a fixed status.
type DenyRouter struct {
	name   string
	prefix string
	status int
}

// NewDenyRouter creates a deny candidate. A zero status means 403.
func NewDenyRouter(name, prefix string, status int) *DenyRouter {
	if status == 0 {
		status = http.StatusForbidden
	}
	return &DenyRouter{name: name, prefix: prefix, status: status}
}

func (d *DenyRouter) Name() string { return d.name }

func (d *DenyRouter) Probe(_ context.Context, req *http.Request) dispatch.Outcome {
	if !underPrefix(req.URL.Path, d.prefix) {
		return dispatch.Rejected(http.StatusNotFound)
	}
	return dispatch.Rejected(d.status)
}

func (d *DenyRouter) Dispatch(_ context.Context, _ *http.Request, status int) (*dispatch.Response, error) {
	return errorBody(status), nil
}
