// Package routes holds the dispatch candidates built from configuration and
// the error page used as the fallback.
//
// Every candidate answers Probe without touching the request body. A probe
// that does not apply returns dispatch.Rejected(404) so the next candidate is
// tried; any other rejection stops resolution and the same candidate renders
// it.
package routes
