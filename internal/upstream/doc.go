// Package upstream tracks the servers a proxy route forwards to: health
// status, active request count and an exponentially weighted moving average
// of response times.
package upstream
