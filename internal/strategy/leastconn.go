package strategy

import (
	"math"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

type leastConnStrategy struct{}

func (l *leastConnStrategy) Select(upstreams []*upstream.Upstream) *upstream.Upstream {
	if len(upstreams) == 0 {
		return nil
	}

	var best *upstream.Upstream
	bestConns := math.MaxInt

	for _, u := range upstreams {
		if conns := u.ActiveConnections(); conns < bestConns {
			bestConns = conns
			best = u
		}
	}

	return best
}

func NewLeastConnStrategy() Strategy {
	return &leastConnStrategy{}
}
