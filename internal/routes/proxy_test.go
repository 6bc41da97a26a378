package routes_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
	"github.com/angeloszaimis/dispatch-server/internal/loadbalancer"
	"github.com/angeloszaimis/dispatch-server/internal/routes"
	"github.com/angeloszaimis/dispatch-server/internal/strategy"
	"github.com/angeloszaimis/dispatch-server/internal/upstream"
)

var _ = Describe("ProxyRouter", func() {
	var (
		server *httptest.Server
		up     *upstream.Upstream
		proxy  *routes.ProxyRouter
		seen   chan *http.Request
	)

	BeforeEach(func() {
		seen = make(chan *http.Request, 1)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			seen <- r
			w.Header().Set("X-Upstream", "yes")
			w.Header().Set("Keep-Alive", "timeout=5")
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(r.Method + " " + r.URL.RequestURI() + " " + string(body)))
		}))

		u, err := url.Parse(server.URL)
		Expect(err).NotTo(HaveOccurred())
		up = upstream.New(u)
		lb := loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy(), []*upstream.Upstream{up})
		proxy = routes.NewProxyRouter("api", "/api/", lb, server.Client())
	})

	AfterEach(func() {
		server.Close()
	})

	It("should expose its upstream pool", func() {
		Expect(proxy.Upstreams()).To(ConsistOf(up))
	})

	It("should miss outside its prefix", func() {
		req := httptest.NewRequest(http.MethodGet, "/web", nil)
		Expect(proxy.Probe(context.Background(), req).Miss()).To(BeTrue())
	})

	It("should miss paths that only share the prefix text", func() {
		req := httptest.NewRequest(http.MethodGet, "/apix/users", nil)
		Expect(proxy.Probe(context.Background(), req).Miss()).To(BeTrue())

		req = httptest.NewRequest(http.MethodGet, "/api", nil)
		Expect(proxy.Probe(context.Background(), req)).To(Equal(dispatch.Matched(http.StatusOK)))
	})

	It("should forward method, path, query, body and headers", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/users?page=2", strings.NewReader("payload"))
		req.Header.Set("Connection", "X-Drop")
		req.Header.Set("X-Drop", "1")
		req.Header.Set("X-Keep", "1")

		Expect(proxy.Probe(context.Background(), req)).To(Equal(dispatch.Matched(http.StatusOK)))

		resp, err := proxy.Dispatch(context.Background(), req, http.StatusOK)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.Status).To(Equal(http.StatusAccepted))
		Expect(resp.Header.Get("X-Upstream")).To(Equal("yes"))
		Expect(resp.Header.Get("Keep-Alive")).To(BeEmpty())
		Expect(up.ActiveConnections()).To(Equal(1))

		Expect(bodyOf(resp)).To(Equal("POST /api/users?page=2 payload"))
		Expect(up.ActiveConnections()).To(Equal(0))
		Expect(up.EWMATime()).To(BeNumerically(">", 0))

		var forwarded *http.Request
		Eventually(seen).Should(Receive(&forwarded))
		Expect(forwarded.Header.Get("X-Keep")).To(Equal("1"))
		Expect(forwarded.Header.Get("X-Drop")).To(BeEmpty())
		Expect(forwarded.Header.Get("X-Forwarded-For")).To(Equal("192.0.2.1"))
		Expect(forwarded.Header.Get("X-Forwarded-Host")).To(Equal("example.com"))
		Expect(forwarded.Header.Get("X-Forwarded-Proto")).To(Equal("http"))
	})

	It("should hard reject with 503 when no upstream is healthy", func() {
		up.SetHealthy(false)
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)

		out := proxy.Probe(context.Background(), req)
		Expect(out).To(Equal(dispatch.Rejected(http.StatusServiceUnavailable)))

		resp, err := proxy.Dispatch(context.Background(), req, out.Status)
		Expect(resp).To(BeNil())
		var richErr *goerrors.Error
		Expect(goerrors.As(err, &richErr)).To(BeTrue())
		Expect(richErr.TextCode).To(Equal(dispatch.TextCodeUpstreamUnavailable))
		Expect(richErr.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("should fail with 502 when the upstream is unreachable", func() {
		server.Close()
		req := httptest.NewRequest(http.MethodGet, "/api/users", nil)

		resp, err := proxy.Dispatch(context.Background(), req, http.StatusOK)
		Expect(resp).To(BeNil())
		Expect(dispatch.ErrorStatus(err, 0)).To(Equal(http.StatusBadGateway))
		var richErr *goerrors.Error
		Expect(goerrors.As(err, &richErr)).To(BeTrue())
		Expect(richErr.TextCode).To(Equal(dispatch.TextCodeUpstreamFailed))
		Expect(up.ActiveConnections()).To(Equal(0))
	})

	It("should keep a client on one upstream under consistent hashing", func() {
		named := func(name string) *httptest.Server {
			return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.Write([]byte(name))
			}))
		}
		first, second := named("first"), named("second")
		defer first.Close()
		defer second.Close()

		pool := make([]*upstream.Upstream, 0, 2)
		for _, s := range []*httptest.Server{first, second} {
			u, err := url.Parse(s.URL)
			Expect(err).NotTo(HaveOccurred())
			pool = append(pool, upstream.New(u))
		}
		lb := loadbalancer.NewLoadBalancer(strategy.NewConsistentHashStrategy(0), pool)
		sticky := routes.NewProxyRouter("api", "/api/", lb, http.DefaultClient)

		fetch := func(remoteAddr, forwardedFor string) string {
			req := httptest.NewRequest(http.MethodGet, "/api/x", nil)
			req.RemoteAddr = remoteAddr
			if forwardedFor != "" {
				req.Header.Set("X-Forwarded-For", forwardedFor)
			}
			resp, err := sticky.Dispatch(context.Background(), req, http.StatusOK)
			Expect(err).NotTo(HaveOccurred())
			return bodyOf(resp)
		}

		owner := fetch("198.51.100.9:40000", "")
		Expect(owner).To(BeElementOf("first", "second"))
		for i := 0; i < 5; i++ {
			Expect(fetch("198.51.100.9:40001", "")).To(Equal(owner))
		}
		Expect(fetch("10.0.0.1:5000", "198.51.100.9, 10.0.0.2")).To(Equal(owner))
	})

	It("should route an unavailable pool through the fallback", func() {
		up.SetHealthy(false)
		engine := dispatch.New(nil, []dispatch.Handler{proxy}, routes.NewErrorPage(routes.FormatText))

		resp := engine.Handle(context.Background(), httptest.NewRequest(http.MethodGet, "/api/x", nil))
		Expect(resp.Status).To(Equal(http.StatusServiceUnavailable))
		Expect(bodyOf(resp)).To(Equal("503"))
	})
})
