package metrics

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

type EventType string

const (
	EventDispatched    EventType = "dispatched"
	EventRefused       EventType = "refused"
	EventHealthChanged EventType = "health_changed"
)

type MetricEvent struct {
	Type      EventType
	Timestamp time.Time
	Handler   string
	Kind      dispatch.Kind
	Fallback  bool
	Probes    int
	Duration  time.Duration
	Status    int
	Upstream  string
	Healthy   bool
}

type Collector struct {
	eventCh chan MetricEvent
	metrics *Metrics
	logger  *slog.Logger
	dropped atomic.Int64
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan MetricEvent, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- MetricEvent {
	return c.eventCh
}

// Emit queues an event without blocking.
func (c *Collector) Emit(event MetricEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	select {
	case c.eventCh <- event:
	default:
		c.dropped.Add(1)
	}
}

// ObserveDispatch implements dispatch.Observer.
func (c *Collector) ObserveDispatch(trace dispatch.Trace) {
	c.Emit(MetricEvent{
		Type:     EventDispatched,
		Handler:  trace.Handler,
		Kind:     trace.Kind,
		Fallback: trace.Fallback,
		Probes:   trace.Probes,
		Duration: trace.Duration,
		Status:   trace.Status,
	})
}

// Refused records a request turned away before dispatch.
func (c *Collector) Refused() {
	c.Emit(MetricEvent{Type: EventRefused})
}

// HealthChanged records an upstream health transition.
func (c *Collector) HealthChanged(upstream string, healthy bool) {
	c.Emit(MetricEvent{
		Type:     EventHealthChanged,
		Upstream: upstream,
		Healthy:  healthy,
	})
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event MetricEvent) {
	switch event.Type {
	case EventDispatched:
		c.metrics.RecordDispatch(event.Handler, event.Probes, event.Duration, event.Status)
		if event.Fallback {
			c.metrics.RecordFallback(event.Kind.String())
		}

	case EventRefused:
		c.metrics.RecordRefused()

	case EventHealthChanged:
		c.metrics.UpdateHealthStatus(event.Upstream, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	snap := c.metrics.Snapshot()
	snap.DroppedEvents = c.dropped.Load()
	return snap
}
