package strategy

import (
	"sync"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

// weightedRoundRobinStrategy is smooth weighted round robin: every upstream
// gains its weight each round, the highest total wins and pays back the sum
// of all weights.
type weightedRoundRobinStrategy struct {
	mutex   sync.Mutex
	current map[*upstream.Upstream]int
}

func NewWeightedRoundRobinStrategy() Strategy {
	return &weightedRoundRobinStrategy{
		current: make(map[*upstream.Upstream]int),
	}
}

func (w *weightedRoundRobinStrategy) Select(upstreams []*upstream.Upstream) *upstream.Upstream {
	if len(upstreams) == 0 {
		return nil
	}

	w.mutex.Lock()
	defer w.mutex.Unlock()

	w.cleanup(upstreams)

	totalWeight := 0
	var chosen *upstream.Upstream

	for _, u := range upstreams {
		weight := u.Weight()
		w.current[u] += weight
		totalWeight += weight

		if chosen == nil || w.current[u] > w.current[chosen] {
			chosen = u
		}
	}

	w.current[chosen] -= totalWeight
	return chosen
}

// cleanup drops upstreams that left the candidate set, e.g. on going
// unhealthy, so they rejoin from zero.
func (w *weightedRoundRobinStrategy) cleanup(upstreams []*upstream.Upstream) {
	alive := make(map[*upstream.Upstream]struct{}, len(upstreams))
	for _, u := range upstreams {
		alive[u] = struct{}{}
	}

	for u := range w.current {
		if _, ok := alive[u]; !ok {
			delete(w.current, u)
		}
	}
}
