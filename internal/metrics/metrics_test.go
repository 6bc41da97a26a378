package metrics_test

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/dispatch-server/internal/metrics"
)

var _ = Describe("Metrics", func() {
	var m *metrics.Metrics

	BeforeEach(func() {
		m = metrics.NewMetrics()
	})

	Describe("RecordDispatch", func() {
		It("should count requests per handler", func() {
			m.RecordDispatch("page1", 1, 10*time.Millisecond, 200)
			m.RecordDispatch("page1", 1, 10*time.Millisecond, 200)
			m.RecordDispatch("fallback", 3, 10*time.Millisecond, 404)

			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(3)))
			Expect(snap.TotalProbes).To(Equal(int64(5)))
			Expect(snap.Handlers["page1"].Requests).To(Equal(int64(2)))
			Expect(snap.Handlers["fallback"].Requests).To(Equal(int64(1)))
		})

		It("should record response time and status code", func() {
			m.RecordDispatch("page1", 1, 100*time.Millisecond, 200)
			m.RecordDispatch("page1", 1, 200*time.Millisecond, 200)

			handler := m.Snapshot().Handlers["page1"]
			Expect(handler.AvgResponse).To(Equal(150 * time.Millisecond))
			Expect(handler.StatusCodes[200]).To(Equal(int64(2)))
		})

		It("should track different status codes", func() {
			m.RecordDispatch("static", 1, 100*time.Millisecond, 200)
			m.RecordDispatch("static", 1, 150*time.Millisecond, 403)
			m.RecordDispatch("static", 1, 200*time.Millisecond, 500)

			handler := m.Snapshot().Handlers["static"]
			Expect(handler.StatusCodes[200]).To(Equal(int64(1)))
			Expect(handler.StatusCodes[403]).To(Equal(int64(1)))
			Expect(handler.StatusCodes[500]).To(Equal(int64(1)))
		})

		It("should calculate percentiles correctly", func() {
			for i := 1; i <= 100; i++ {
				m.RecordDispatch("page1", 1, time.Duration(i)*time.Millisecond, 200)
			}

			handler := m.Snapshot().Handlers["page1"]
			Expect(handler.P50Response).To(BeNumerically("~", 50*time.Millisecond, 1*time.Millisecond))
			Expect(handler.P95Response).To(BeNumerically("~", 95*time.Millisecond, 1*time.Millisecond))
			Expect(handler.P99Response).To(BeNumerically("~", 99*time.Millisecond, 1*time.Millisecond))
		})

		It("should limit stored response times to 1000", func() {
			for i := 1; i <= 1500; i++ {
				m.RecordDispatch("page1", 1, time.Duration(i)*time.Millisecond, 200)
			}

			handler := m.Snapshot().Handlers["page1"]
			Expect(handler.AvgResponse).To(BeNumerically(">", 500*time.Millisecond))
			Expect(handler.Requests).To(Equal(int64(1500)))
		})
	})

	Describe("RecordFallback", func() {
		It("should count fallbacks by reason", func() {
			m.RecordFallback("exhausted")
			m.RecordFallback("exhausted")
			m.RecordFallback("dispatch_failure")

			snap := m.Snapshot()
			Expect(snap.Fallbacks).To(HaveKeyWithValue("exhausted", int64(2)))
			Expect(snap.Fallbacks).To(HaveKeyWithValue("dispatch_failure", int64(1)))
		})
	})

	Describe("UpdateHealthStatus", func() {
		It("should track upstream health changes", func() {
			m.UpdateHealthStatus("http://localhost:8081", true)
			Expect(m.Snapshot().Upstreams["http://localhost:8081"]).To(BeTrue())

			m.UpdateHealthStatus("http://localhost:8081", false)
			Expect(m.Snapshot().Upstreams["http://localhost:8081"]).To(BeFalse())
		})
	})

	Describe("Snapshot", func() {
		It("should include uptime", func() {
			time.Sleep(10 * time.Millisecond)
			Expect(m.Snapshot().Uptime).To(BeNumerically(">", 0))
		})

		It("should handle empty metrics", func() {
			snap := m.Snapshot()
			Expect(snap.TotalRequests).To(Equal(int64(0)))
			Expect(snap.Handlers).To(BeEmpty())
			Expect(snap.Fallbacks).To(BeEmpty())
		})

		It("should return independent snapshots", func() {
			m.RecordDispatch("page1", 1, time.Millisecond, 200)
			snap1 := m.Snapshot()

			m.RecordDispatch("page1", 1, time.Millisecond, 200)
			snap2 := m.Snapshot()

			Expect(snap1.TotalRequests).To(Equal(int64(1)))
			Expect(snap2.TotalRequests).To(Equal(int64(2)))
			Expect(snap1.Handlers["page1"].StatusCodes[200]).To(Equal(int64(1)))
		})

		It("should count refused requests", func() {
			m.RecordRefused()
			Expect(m.Snapshot().Refused).To(Equal(int64(1)))
		})
	})
})
