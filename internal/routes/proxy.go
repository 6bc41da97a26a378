package routes

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
	"github.com/angeloszaimis/dispatch-server/internal/loadbalancer"
	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

var hopHeaders = []string{
	"Connection",
	"Proxy-Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ProxyRouter forwards requests under a prefix to an upstream picked by a
// load balancer. With no healthy upstream it hard rejects with 503 and its
// dispatch fails, so the fallback renders the response.
type ProxyRouter struct {
	name   string
	prefix string
	lb     *loadbalancer.LoadBalancer
	client *http.Client
}

// NewProxyRouter creates a proxy candidate. A nil client means
// http.DefaultClient.
func NewProxyRouter(name, prefix string, lb *loadbalancer.LoadBalancer, client *http.Client) *ProxyRouter {
	if client == nil {
		client = http.DefaultClient
	}
	return &ProxyRouter{name: name, prefix: prefix, lb: lb, client: client}
}

func (p *ProxyRouter) Name() string { return p.name }

// Upstreams returns the pool behind this route, for health checking.
func (p *ProxyRouter) Upstreams() []*upstream.Upstream {
	return p.lb.Upstreams()
}

func (p *ProxyRouter) Probe(_ context.Context, req *http.Request) dispatch.Outcome {
	if !underPrefix(req.URL.Path, p.prefix) {
		return dispatch.Rejected(http.StatusNotFound)
	}
	if !p.lb.HasHealthy() {
		return dispatch.Rejected(http.StatusServiceUnavailable)
	}
	return dispatch.Matched(http.StatusOK)
}

func (p *ProxyRouter) Dispatch(ctx context.Context, req *http.Request, status int) (*dispatch.Response, error) {
	if status == http.StatusServiceUnavailable {
		return nil, p.unavailable(nil)
	}

	up, err := p.lb.ReserveWithKey(clientIP(req))
	if err != nil {
		return nil, p.unavailable(err)
	}
	start := time.Now()

	out, err := http.NewRequestWithContext(ctx, req.Method, up.Target(req.URL.Path, req.URL.RawQuery).String(), req.Body)
	if err != nil {
		p.lb.Release(up, time.Since(start))
		return nil, dispatch.WrapError(err, http.StatusBadGateway, dispatch.TextCodeUpstreamFailed, "build upstream request")
	}
	out.ContentLength = req.ContentLength
	out.Header = req.Header.Clone()
	removeHopHeaders(out.Header)
	setForwarded(out.Header, req)

	res, err := p.client.Do(out)
	if err != nil {
		p.lb.Release(up, time.Since(start))
		return nil, dispatch.WrapError(err, http.StatusBadGateway, dispatch.TextCodeUpstreamFailed, "upstream request failed").
			WithMetadata(map[string]any{"upstream": up.URL().String(), "route": p.name})
	}

	header := res.Header.Clone()
	removeHopHeaders(header)

	return &dispatch.Response{
		Status: res.StatusCode,
		Header: header,
		Body: &releasingBody{
			ReadCloser: res.Body,
			release:    func() { p.lb.Release(up, time.Since(start)) },
		},
	}, nil
}

func (p *ProxyRouter) unavailable(cause error) error {
	return dispatch.WrapError(cause, http.StatusServiceUnavailable, dispatch.TextCodeUpstreamUnavailable, "no healthy upstream").
		WithMetadata(map[string]any{"route": p.name})
}

// releasingBody ends the upstream reservation once the body is closed.
type releasingBody struct {
	io.ReadCloser
	once    sync.Once
	release func()
}

func (b *releasingBody) Close() error {
	err := b.ReadCloser.Close()
	b.once.Do(b.release)
	return err
}

func removeHopHeaders(h http.Header) {
	for _, field := range h.Values("Connection") {
		for _, name := range strings.Split(field, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, name := range hopHeaders {
		h.Del(name)
	}
}

// clientIP is the first X-Forwarded-For hop when present, else the peer
// address. It keys sticky strategies.
func clientIP(req *http.Request) string {
	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	host, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		return req.RemoteAddr
	}
	return host
}

func setForwarded(h http.Header, req *http.Request) {
	if ip, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		if prior := h.Get("X-Forwarded-For"); prior != "" {
			ip = prior + ", " + ip
		}
		h.Set("X-Forwarded-For", ip)
	}
	h.Set("X-Forwarded-Host", req.Host)
	proto := "http"
	if req.TLS != nil {
		proto = "https"
	}
	h.Set("X-Forwarded-Proto", proto)
}
