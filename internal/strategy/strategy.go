package strategy

import (
	"fmt"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

// Names of the available strategies as used in configuration.
const (
	RoundRobin         = "round_robin"
	WeightedRoundRobin = "weighted_round_robin"
	Random             = "random"
	LeastConn          = "least_conn"
	LeastResponse      = "least_response"
	ConsistentHash     = "consistent_hash"
)

// Names lists every strategy name accepted by FromName.
var Names = []string{RoundRobin, WeightedRoundRobin, Random, LeastConn, LeastResponse, ConsistentHash}

type Strategy interface {
	Select(upstreams []*upstream.Upstream) *upstream.Upstream
}

// Keyed strategies select by a request key such as the client IP. Callers
// must hold one lock across SetKey and Select.
type Keyed interface {
	Strategy
	SetKey(key string)
}

// FromName builds the strategy registered under name. An empty name selects
// round robin. virtualNodes only applies to consistent hashing.
func FromName(name string, virtualNodes int) (Strategy, error) {
	switch name {
	case "", RoundRobin:
		return NewRoundRobinStrategy(), nil
	case WeightedRoundRobin:
		return NewWeightedRoundRobinStrategy(), nil
	case Random:
		return NewRandomStrategy(), nil
	case LeastConn:
		return NewLeastConnStrategy(), nil
	case LeastResponse:
		return NewLeastResponseStrategy(), nil
	case ConsistentHash:
		return NewConsistentHashStrategy(virtualNodes), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
