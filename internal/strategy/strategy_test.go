package strategy_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/dispatch-server/internal/strategy"
	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

var _ = Describe("Strategies", func() {
	var upstreams []*upstream.Upstream

	BeforeEach(func() {
		upstreams = newUpstreams(
			"http://localhost:8081",
			"http://localhost:8082",
			"http://localhost:8083",
		)
	})

	DescribeTable("FromName",
		func(name string, succeeds bool) {
			strat, err := strategy.FromName(name, 0)
			if !succeeds {
				Expect(err).To(MatchError(ContainSubstring("unknown strategy")))
				return
			}
			Expect(err).NotTo(HaveOccurred())
			Expect(strat).NotTo(BeNil())
		},
		Entry("default", "", true),
		Entry("round robin", strategy.RoundRobin, true),
		Entry("random", strategy.Random, true),
		Entry("least connections", strategy.LeastConn, true),
		Entry("least response", strategy.LeastResponse, true),
		Entry("weighted round robin", strategy.WeightedRoundRobin, true),
		Entry("consistent hash", strategy.ConsistentHash, true),
		Entry("unknown", "ip_hash", false),
	)

	DescribeTable("every strategy selects a member and handles empty input",
		func(name string) {
			strat, err := strategy.FromName(name, 0)
			Expect(err).NotTo(HaveOccurred())

			Expect(upstreams).To(ContainElement(strat.Select(upstreams)))
			Expect(strat.Select(nil)).To(BeNil())
		},
		Entry("round robin", strategy.RoundRobin),
		Entry("random", strategy.Random),
		Entry("least connections", strategy.LeastConn),
		Entry("least response", strategy.LeastResponse),
		Entry("weighted round robin", strategy.WeightedRoundRobin),
		Entry("consistent hash", strategy.ConsistentHash),
	)

	Describe("round robin", func() {
		It("should cycle through upstreams in order", func() {
			strat := strategy.NewRoundRobinStrategy()
			Expect(strat.Select(upstreams)).To(Equal(upstreams[0]))
			Expect(strat.Select(upstreams)).To(Equal(upstreams[1]))
			Expect(strat.Select(upstreams)).To(Equal(upstreams[2]))
			Expect(strat.Select(upstreams)).To(Equal(upstreams[0]))
		})

		It("should distribute load evenly", func() {
			strat := strategy.NewRoundRobinStrategy()
			counts := make(map[string]int)
			for i := 0; i < 300; i++ {
				counts[strat.Select(upstreams).URL().String()]++
			}
			Expect(counts).To(HaveLen(3))
			for _, n := range counts {
				Expect(n).To(Equal(100))
			}
		})
	})

	Describe("random", func() {
		It("should spread over more than one upstream", func() {
			strat := strategy.NewRandomStrategy()
			seen := make(map[*upstream.Upstream]bool)
			for i := 0; i < 100; i++ {
				seen[strat.Select(upstreams)] = true
			}
			Expect(len(seen)).To(BeNumerically(">=", 2))
		})
	})

	Describe("least connections", func() {
		It("should select the upstream with fewest active requests", func() {
			upstreams[0].IncrementConn()
			upstreams[0].IncrementConn()
			upstreams[1].IncrementConn()

			Expect(strategy.NewLeastConnStrategy().Select(upstreams)).To(Equal(upstreams[2]))
		})
	})

	Describe("least response", func() {
		It("should select the lowest EWMA", func() {
			upstreams[0].RecordResponse(100 * time.Millisecond)
			upstreams[1].RecordResponse(50 * time.Millisecond)
			upstreams[2].RecordResponse(200 * time.Millisecond)

			Expect(strategy.NewLeastResponseStrategy().Select(upstreams)).To(Equal(upstreams[1]))
		})

		It("should prefer an upstream without samples", func() {
			upstreams[0].RecordResponse(10 * time.Millisecond)

			Expect(strategy.NewLeastResponseStrategy().Select(upstreams)).To(Equal(upstreams[1]))
		})

		It("should weigh active requests", func() {
			upstreams[0].RecordResponse(50 * time.Millisecond)
			upstreams[1].RecordResponse(80 * time.Millisecond)
			upstreams[2].RecordResponse(200 * time.Millisecond)
			upstreams[0].IncrementConn()
			upstreams[0].IncrementConn()

			Expect(strategy.NewLeastResponseStrategy().Select(upstreams)).To(Equal(upstreams[1]))
		})
	})
})
