// Package dispatch implements the sequential, fallback-driven request dispatch
// engine.
//
// An Engine owns an ordered list of candidate Handlers and a single Fallback.
// For every request it walks the candidates in order with a Resolver:
//
//   - Matched(status) claims the request for that candidate.
//   - Rejected(404) is a miss and moves on to the next candidate.
//   - Rejected(any other status) is a hard reject, terminal at that candidate.
//
// The selected candidate dispatches the response. When nothing claims the
// request, or the selected dispatch fails, the Fallback renders it instead.
// Handle never returns an error: the Fallback contract forbids failure and the
// engine substitutes a minimal body if the Fallback misbehaves.
//
// The candidate list and fallback are fixed at construction and shared
// read-only between concurrent requests, so Handle takes no locks.
package dispatch
