package metrics

import (
	"sort"
	"sync"
	"time"
)

const maxSamples = 1000

type Metrics struct {
	mutex         sync.RWMutex
	requests      map[string]int64
	probes        int64
	responseTimes map[string][]time.Duration
	statusCodes   map[string]map[int]int64
	fallbacks     map[string]int64
	refused       int64
	healthStatus  map[string]bool
	startTime     time.Time
}

type Snapshot struct {
	TotalRequests int64                     `json:"total_requests"`
	TotalProbes   int64                     `json:"total_probes"`
	Refused       int64                     `json:"refused"`
	DroppedEvents int64                     `json:"dropped_events"`
	Uptime        time.Duration             `json:"uptime"`
	Handlers      map[string]HandlerMetrics `json:"handlers"`
	Fallbacks     map[string]int64          `json:"fallbacks"`
	Upstreams     map[string]bool           `json:"upstreams"`
	Breakers      map[string]string         `json:"breakers,omitempty"`
}

type HandlerMetrics struct {
	Requests    int64         `json:"requests"`
	AvgResponse time.Duration `json:"avg_response"`
	P50Response time.Duration `json:"p50_response"`
	P95Response time.Duration `json:"p95_response"`
	P99Response time.Duration `json:"p99_response"`
	StatusCodes map[int]int64 `json:"status_codes"`
}

func (m *Metrics) RecordDispatch(handler string, probes int, duration time.Duration, statusCode int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.requests[handler]++
	m.probes += int64(probes)

	m.responseTimes[handler] = append(m.responseTimes[handler], duration)
	if len(m.responseTimes[handler]) > maxSamples {
		m.responseTimes[handler] = m.responseTimes[handler][1:]
	}

	if m.statusCodes[handler] == nil {
		m.statusCodes[handler] = make(map[int]int64)
	}
	m.statusCodes[handler][statusCode]++
}

func (m *Metrics) RecordFallback(reason string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.fallbacks[reason]++
}

func (m *Metrics) RecordRefused() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.refused++
}

func (m *Metrics) UpdateHealthStatus(upstream string, healthy bool) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.healthStatus[upstream] = healthy
}

func (m *Metrics) Snapshot() Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snap := Snapshot{
		TotalProbes: m.probes,
		Refused:     m.refused,
		Uptime:      time.Since(m.startTime),
		Handlers:    make(map[string]HandlerMetrics, len(m.requests)),
		Fallbacks:   make(map[string]int64, len(m.fallbacks)),
		Upstreams:   make(map[string]bool, len(m.healthStatus)),
	}

	for handler, count := range m.requests {
		snap.TotalRequests += count

		codes := make(map[int]int64, len(m.statusCodes[handler]))
		for code, n := range m.statusCodes[handler] {
			codes[code] = n
		}

		hm := HandlerMetrics{
			Requests:    count,
			StatusCodes: codes,
		}

		durations := m.responseTimes[handler]
		if len(durations) > 0 {
			sorted := make([]time.Duration, len(durations))
			copy(sorted, durations)
			sort.Slice(sorted, func(i, j int) bool {
				return sorted[i] < sorted[j]
			})

			hm.AvgResponse = average(sorted)
			hm.P50Response = percentile(sorted, 0.50)
			hm.P95Response = percentile(sorted, 0.95)
			hm.P99Response = percentile(sorted, 0.99)
		}

		snap.Handlers[handler] = hm
	}

	for reason, count := range m.fallbacks {
		snap.Fallbacks[reason] = count
	}
	for upstream, healthy := range m.healthStatus {
		snap.Upstreams[upstream] = healthy
	}

	return snap
}

func NewMetrics() *Metrics {
	return &Metrics{
		requests:      make(map[string]int64),
		responseTimes: make(map[string][]time.Duration),
		statusCodes:   make(map[string]map[int]int64),
		fallbacks:     make(map[string]int64),
		healthStatus:  make(map[string]bool),
		startTime:     time.Now(),
	}
}

func average(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return sum / time.Duration(len(durations))
}

func percentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}

	index := int(float64(len(sorted)) * p)
	if index >= len(sorted) {
		index = len(sorted) - 1
	}

	return sorted[index]
}
