package strategy

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

// DefaultVirtualNodes is the ring size per upstream when none is configured.
const DefaultVirtualNodes = 100

type consistentHashStrategy struct {
	virtualNodes int
	ring         atomic.Pointer[ringSnapshot]
	mutex        sync.Mutex
	hashKey      atomic.Uint32
}

type ringSnapshot struct {
	members   []*upstream.Upstream
	positions []uint32
	owners    map[uint32]*upstream.Upstream
}

func buildRing(upstreams []*upstream.Upstream, vnodes int) *ringSnapshot {
	rs := &ringSnapshot{
		members:   slices.Clone(upstreams),
		positions: make([]uint32, 0, len(upstreams)*vnodes),
		owners:    make(map[uint32]*upstream.Upstream, len(upstreams)*vnodes),
	}

	for _, u := range upstreams {
		for i := 0; i < vnodes; i++ {
			hash := crc32.ChecksumIEEE([]byte(u.URL().String() + "#" + strconv.Itoa(i)))
			if _, taken := rs.owners[hash]; taken {
				continue
			}
			rs.positions = append(rs.positions, hash)
			rs.owners[hash] = u
		}
	}

	sort.Slice(rs.positions, func(i, j int) bool { return rs.positions[i] < rs.positions[j] })
	return rs
}

func (r *ringSnapshot) lookup(hash uint32) *upstream.Upstream {
	if r == nil || len(r.positions) == 0 {
		return nil
	}

	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})
	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]]
}

// Select walks the ring from the current key's hash. The ring is rebuilt when
// the set of upstreams passed in changes, so a key only moves when its owner
// leaves or a new owner takes its arc.
func (s *consistentHashStrategy) Select(upstreams []*upstream.Upstream) *upstream.Upstream {
	if len(upstreams) == 0 {
		return nil
	}

	rs := s.ring.Load()
	if rs == nil || !slices.Equal(rs.members, upstreams) {
		s.mutex.Lock()
		rs = s.ring.Load()
		if rs == nil || !slices.Equal(rs.members, upstreams) {
			rs = buildRing(upstreams, s.virtualNodes)
			s.ring.Store(rs)
		}
		s.mutex.Unlock()
	}

	return rs.lookup(s.hashKey.Load())
}

// SetKey hashes the key used by the next Select.
func (s *consistentHashStrategy) SetKey(key string) {
	s.hashKey.Store(crc32.ChecksumIEEE([]byte(key)))
}

// NewConsistentHashStrategy creates a hash ring strategy. A non-positive
// virtualNodes means DefaultVirtualNodes.
func NewConsistentHashStrategy(virtualNodes int) Keyed {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &consistentHashStrategy{virtualNodes: virtualNodes}
}
