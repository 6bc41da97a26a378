// Package circuitbreaker implements the circuit breaker pattern for dispatch
// candidates.
//
// A circuit breaker prevents cascading failures by temporarily refusing
// requests for a route whose handler keeps failing. It has three states:
//
//   - CLOSED: Normal operation, requests pass through
//   - OPEN: Route failing, requests refused with 503
//   - HALF-OPEN: Testing if the route recovered
//
// Usage:
//
//	registry := circuitbreaker.NewRegistry(5, 30*time.Second)
//	candidate = circuitbreaker.NewGuard(candidate, registry.GetBreaker("api"))
package circuitbreaker
