// Package metrics provides real-time metrics collection for the dispatch server.
//
// It uses a channel-based event pipeline to asynchronously collect:
//   - Requests answered per handler, including the fallback
//   - Response times with percentile calculations (P50, P95, P99)
//   - HTTP status code distribution per handler
//   - Fallback reasons (exhausted, dispatch_failure, cancelled, ...)
//   - Upstream health status and requests refused at admission
//
// The Collector implements dispatch.Observer, so the engine reports every
// resolved request without knowing about metrics. Events are sent with
// non-blocking semantics; when the buffer is full the event is dropped and
// counted rather than slowing the request path.
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	collector.Start(ctx)
//	engine := dispatch.New(logger, candidates, fallback, dispatch.WithObserver(collector))
//
//	snapshot := collector.Snapshot()
//
// Storage is guarded by sync.RWMutex and pending events are drained on
// shutdown.
package metrics
