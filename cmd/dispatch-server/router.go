package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"

	"github.com/angeloszaimis/dispatch-server/config"
	"github.com/angeloszaimis/dispatch-server/internal/circuitbreaker"
	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
	"github.com/angeloszaimis/dispatch-server/internal/handler"
	"github.com/angeloszaimis/dispatch-server/internal/loadbalancer"
	"github.com/angeloszaimis/dispatch-server/internal/metrics"
	"github.com/angeloszaimis/dispatch-server/internal/routes"
	"github.com/angeloszaimis/dispatch-server/internal/strategy"
	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

// setupRouter mounts the dispatch handler at the root and, when a collector
// is given, the metrics snapshot at metricsPath.
func setupRouter(dh *handler.DispatchHandler, collector *metrics.Collector, breakers *circuitbreaker.Registry, metricsPath string) *http.ServeMux {
	mux := http.NewServeMux()

	mux.Handle("/", dh)
	if collector != nil {
		var states func() map[string]string
		if breakers != nil {
			states = breakers.Snapshot
		}
		mux.HandleFunc(metricsPath, collector.Handler(states))
	}

	return mux
}

// buildCandidates turns the route list into dispatch candidates in
// configuration order. Proxy routes are also returned so their upstreams can
// be health checked. With a breaker registry every candidate is guarded.
func buildCandidates(cfgs []config.RouteConfig, breakers *circuitbreaker.Registry, client *http.Client) ([]dispatch.Handler, []*routes.ProxyRouter, error) {
	candidates := make([]dispatch.Handler, 0, len(cfgs))
	var proxies []*routes.ProxyRouter

	for _, rc := range cfgs {
		var h dispatch.Handler

		switch rc.Kind {
		case config.KindPage:
			h = routes.NewPageRouter(rc.Name, rc.Path, rc.Content, rc.ContentType, rc.Methods)
		case config.KindStatic:
			h = routes.NewStaticRouter(rc.Name, rc.Prefix, os.DirFS(rc.Root))
		case config.KindDeny:
			h = routes.NewDenyRouter(rc.Name, rc.Prefix, rc.Status)
		case config.KindProxy:
			p, err := newProxy(rc, client)
			if err != nil {
				return nil, nil, err
			}
			proxies = append(proxies, p)
			h = p
		default:
			return nil, nil, fmt.Errorf("route %q: unknown kind %q", rc.Name, rc.Kind)
		}

		if breakers != nil {
			h = circuitbreaker.NewGuard(h, breakers.GetBreaker(rc.Name))
		}
		candidates = append(candidates, h)
	}

	return candidates, proxies, nil
}

func newProxy(rc config.RouteConfig, client *http.Client) (*routes.ProxyRouter, error) {
	strat, err := strategy.FromName(rc.Strategy, rc.VirtualNodes)
	if err != nil {
		return nil, fmt.Errorf("route %q: %w", rc.Name, err)
	}

	upstreams := make([]*upstream.Upstream, 0, len(rc.Upstreams))
	for i, raw := range rc.Upstreams {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("route %q: upstream %q: %w", rc.Name, raw, err)
		}
		weight := 1
		if i < len(rc.Weights) {
			weight = rc.Weights[i]
		}
		upstreams = append(upstreams, upstream.NewWeighted(u, weight))
	}
	if len(upstreams) == 0 {
		return nil, fmt.Errorf("route %q: no upstreams", rc.Name)
	}

	lb := loadbalancer.NewLoadBalancer(strat, upstreams)
	return routes.NewProxyRouter(rc.Name, rc.Prefix, lb, client), nil
}
