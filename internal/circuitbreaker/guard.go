package circuitbreaker

import (
	"context"
	"net/http"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

// Guard wraps a candidate with a breaker. While the breaker is open a request
// the inner candidate would claim is hard rejected with 503, and its dispatch
// fails into the fallback. Inner dispatch errors, 5xx responses and hard
// rejects with a 5xx status count as failures.
type Guard struct {
	inner   dispatch.Handler
	breaker *CircuitBreaker
	name    string
}

// NewGuard wraps inner with breaker.
func NewGuard(inner dispatch.Handler, breaker *CircuitBreaker) *Guard {
	name := "guarded"
	if n, ok := inner.(dispatch.Named); ok {
		name = n.Name()
	}
	return &Guard{inner: inner, breaker: breaker, name: name}
}

// Name returns the inner candidate's name.
func (g *Guard) Name() string {
	return g.name
}

// Breaker exposes the wrapped breaker.
func (g *Guard) Breaker() *CircuitBreaker {
	return g.breaker
}

func (g *Guard) Probe(ctx context.Context, req *http.Request) dispatch.Outcome {
	out := g.inner.Probe(ctx, req)
	if out.Miss() {
		return out
	}

	if !g.breaker.Allow() {
		return dispatch.Rejected(http.StatusServiceUnavailable)
	}

	return out
}

// Dispatch refuses a 503 while the breaker is not closed. A request rejected
// during the open window can arrive here after another request has moved the
// breaker to half-open, and it must not reach the inner candidate.
func (g *Guard) Dispatch(ctx context.Context, req *http.Request, status int) (*dispatch.Response, error) {
	if status == http.StatusServiceUnavailable && g.breaker.State() != StateClosed {
		return nil, dispatch.NewError(http.StatusServiceUnavailable, dispatch.TextCodeCircuitOpen, "circuit open").
			WithMetadata(map[string]any{"route": g.name})
	}

	resp, err := g.inner.Dispatch(ctx, req, status)

	switch {
	case ctx.Err() != nil:
	case err != nil:
		g.breaker.RecordFailure()
	case resp != nil && resp.Status >= http.StatusInternalServerError:
		g.breaker.RecordFailure()
	default:
		g.breaker.RecordSuccess()
	}

	return resp, err
}
