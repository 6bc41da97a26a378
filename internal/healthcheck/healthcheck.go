package healthcheck

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

// Path is polled on every upstream.
const Path = "/health"

const requestTimeout = 5 * time.Second

// Reporter is told about every health transition.
type Reporter interface {
	HealthChanged(upstream string, healthy bool)
}

// Run starts one HealthCheck per upstream and blocks until ctx is done and
// every checker has returned.
func Run(
	ctx context.Context,
	upstreams []*upstream.Upstream,
	interval time.Duration,
	logger *slog.Logger,
	reporter Reporter,
) {
	var wg sync.WaitGroup
	for _, u := range upstreams {
		wg.Add(1)
		go func() {
			defer wg.Done()
			HealthCheck(ctx, u, interval, logger, reporter)
		}()
	}
	wg.Wait()
}

// HealthCheck periodically sends GET /health to the upstream and marks it
// healthy on 200 OK, unhealthy otherwise. reporter may be nil.
func HealthCheck(
	ctx context.Context,
	up *upstream.Upstream,
	interval time.Duration,
	logger *slog.Logger,
	reporter Reporter,
) {
	client := &http.Client{
		Timeout: requestTimeout,
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	server := up.URL().String()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Health check stopped",
				slog.String("upstream", server))
			return

		case <-ticker.C:
			healthy := Check(ctx, client, up.URL())
			if !up.SetHealthy(healthy) {
				continue
			}

			if healthy {
				logger.Info("Upstream is back up",
					slog.String("upstream", server))
			} else {
				logger.Warn("Upstream is down",
					slog.String("upstream", server))
			}

			if reporter != nil {
				reporter.HealthChanged(server, healthy)
			}
		}
	}
}

// Check performs a single health probe against base.
func Check(ctx context.Context, client *http.Client, base *url.URL) bool {
	healthURL := base.ResolveReference(&url.URL{Path: Path})

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, healthURL.String(), nil)
	if err != nil {
		return false
	}

	res, err := client.Do(req)
	if err != nil {
		return false
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	return res.StatusCode == http.StatusOK
}
