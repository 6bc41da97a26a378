// Package handler adapts the dispatch engine to net/http. It assigns request
// ids, applies admission control and writes the engine's response to the
// client.
package handler
