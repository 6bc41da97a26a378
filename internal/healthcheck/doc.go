// Package healthcheck polls the /health endpoint of proxy upstreams and flips
// their health status, reporting every change.
package healthcheck
