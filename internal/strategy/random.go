package strategy

import (
	"math/rand/v2"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

type randomStrategy struct{}

func (r *randomStrategy) Select(upstreams []*upstream.Upstream) *upstream.Upstream {
	if len(upstreams) == 0 {
		return nil
	}

	return upstreams[rand.IntN(len(upstreams))]
}

func NewRandomStrategy() Strategy {
	return &randomStrategy{}
}
