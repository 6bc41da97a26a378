package strategy

import (
	"time"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

type leastResponseStrategy struct{}

// Select prefers upstreams with no samples yet, then the lowest
// ewma * (active + 1).
func (l *leastResponseStrategy) Select(upstreams []*upstream.Upstream) *upstream.Upstream {
	if len(upstreams) == 0 {
		return nil
	}

	var chosen *upstream.Upstream
	var best time.Duration

	for _, u := range upstreams {
		ewma := u.EWMATime()
		if ewma == 0 {
			return u
		}

		score := ewma * (time.Duration(u.ActiveConnections()) + 1)
		if chosen == nil || score < best {
			chosen = u
			best = score
		}
	}

	return chosen
}

func NewLeastResponseStrategy() Strategy {
	return &leastResponseStrategy{}
}
