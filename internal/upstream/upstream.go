package upstream

import (
	"net/url"
	"path"
	"strings"
	"sync"
	"time"
)

// Upstream is a server a proxy route may forward to.
type Upstream struct {
	url               *url.URL
	weight            int
	mutex             sync.Mutex
	isHealthy         bool
	activeConnections int
	ewmaResponseTime  time.Duration
	hasEWMA           bool
}

const ewmaAlpha = 0.2

// New creates an Upstream for u. It starts healthy until a health check says
// otherwise.
func New(u *url.URL) *Upstream {
	return NewWeighted(u, 1)
}

// NewWeighted creates an Upstream with a selection weight. Weights below 1
// become 1.
func NewWeighted(u *url.URL, weight int) *Upstream {
	if weight < 1 {
		weight = 1
	}
	return &Upstream{
		url:       u,
		weight:    weight,
		isHealthy: true,
	}
}

// URL returns the upstream base URL.
func (u *Upstream) URL() *url.URL {
	return u.url
}

// Weight returns the share of traffic weighted strategies give this upstream.
func (u *Upstream) Weight() int {
	return u.weight
}

// Target resolves an inbound path and query against the upstream base URL.
func (u *Upstream) Target(requestPath, rawQuery string) *url.URL {
	target := *u.url
	target.Path = joinPath(u.url.Path, requestPath)
	target.RawPath = ""
	target.RawQuery = rawQuery
	return &target
}

// IncrementConn increments the active connection count.
func (u *Upstream) IncrementConn() {
	u.mutex.Lock()
	u.activeConnections++
	u.mutex.Unlock()
}

// DecrementConn decrements the active connection count.
func (u *Upstream) DecrementConn() {
	u.mutex.Lock()
	if u.activeConnections > 0 {
		u.activeConnections--
	}
	u.mutex.Unlock()
}

// ActiveConnections returns the current number of in-flight requests.
func (u *Upstream) ActiveConnections() int {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.activeConnections
}

// IsHealthy returns true if the upstream is currently healthy.
func (u *Upstream) IsHealthy() bool {
	u.mutex.Lock()
	defer u.mutex.Unlock()
	return u.isHealthy
}

// SetHealthy updates the health status and reports whether it changed.
func (u *Upstream) SetHealthy(healthy bool) (changed bool) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if u.isHealthy == healthy {
		return false
	}

	u.isHealthy = healthy
	return true
}

// RecordResponse folds the latest request duration into the EWMA.
func (u *Upstream) RecordResponse(duration time.Duration) {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		u.ewmaResponseTime = duration
		u.hasEWMA = true
		return
	}
	//ewma = (1 - α) * ewma + α * latest
	u.ewmaResponseTime = time.Duration((1-ewmaAlpha)*float64(u.ewmaResponseTime) + ewmaAlpha*float64(duration))
}

// EWMATime returns the moving average response time, or 0 before the first
// response.
func (u *Upstream) EWMATime() time.Duration {
	u.mutex.Lock()
	defer u.mutex.Unlock()

	if !u.hasEWMA {
		return 0
	}

	return u.ewmaResponseTime
}

func joinPath(base, requestPath string) string {
	if base == "" || base == "/" {
		return requestPath
	}
	joined := path.Join(base, requestPath)
	if strings.HasSuffix(requestPath, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}
