// Package loadbalancer reserves a healthy upstream from a fixed pool using a
// selection strategy.
package loadbalancer

import (
	"errors"
	"sync"
	"time"

	"github.com/angeloszaimis/dispatch-server/internal/strategy"
	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

var (
	ErrNoHealthyUpstream = errors.New("no healthy upstreams")
	ErrNoSelection       = errors.New("strategy returned nil upstream")
)

type LoadBalancer struct {
	strategy  strategy.Strategy
	upstreams []*upstream.Upstream
	mutex     sync.Mutex
}

// NewLoadBalancer copies upstreams; the pool is fixed for the lifetime of the
// balancer.
func NewLoadBalancer(strat strategy.Strategy, upstreams []*upstream.Upstream) *LoadBalancer {
	return &LoadBalancer{
		strategy:  strat,
		upstreams: append([]*upstream.Upstream(nil), upstreams...),
	}
}

// Upstreams returns the pool.
func (lb *LoadBalancer) Upstreams() []*upstream.Upstream {
	return lb.upstreams
}

// HasHealthy reports whether at least one upstream is currently healthy.
func (lb *LoadBalancer) HasHealthy() bool {
	for _, u := range lb.upstreams {
		if u.IsHealthy() {
			return true
		}
	}
	return false
}

// Reserve selects a healthy upstream and counts a request against it. Callers
// must pair it with Release.
func (lb *LoadBalancer) Reserve() (*upstream.Upstream, error) {
	return lb.ReserveWithKey("")
}

// ReserveWithKey is Reserve for keyed strategies: key, usually the client IP,
// is handed to the strategy under the same lock as the selection. Other
// strategies ignore it.
func (lb *LoadBalancer) ReserveWithKey(key string) (*upstream.Upstream, error) {
	lb.mutex.Lock()

	healthy := lb.filterHealthy()
	if len(healthy) == 0 {
		lb.mutex.Unlock()
		return nil, ErrNoHealthyUpstream
	}

	if keyed, ok := lb.strategy.(strategy.Keyed); ok {
		keyed.SetKey(key)
	}
	chosen := lb.strategy.Select(healthy)
	lb.mutex.Unlock()

	if chosen == nil {
		return nil, ErrNoSelection
	}

	chosen.IncrementConn()
	return chosen, nil
}

// Release ends a reservation and records its duration.
func (lb *LoadBalancer) Release(u *upstream.Upstream, elapsed time.Duration) {
	u.DecrementConn()
	u.RecordResponse(elapsed)
}

func (lb *LoadBalancer) filterHealthy() []*upstream.Upstream {
	healthy := make([]*upstream.Upstream, 0, len(lb.upstreams))

	for _, u := range lb.upstreams {
		if u.IsHealthy() {
			healthy = append(healthy, u)
		}
	}

	return healthy
}
