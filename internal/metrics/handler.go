package metrics

import (
	"net/http"

	json "github.com/goccy/go-json"
)

// Handler serves the current snapshot as JSON. breakers, when non-nil, adds
// the circuit breaker states keyed by handler name.
func (c *Collector) Handler(breakers func() map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := c.Snapshot()
		if breakers != nil {
			snap.Breakers = breakers()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(snap); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
