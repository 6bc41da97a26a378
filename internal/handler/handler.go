package handler

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/angeloszaimis/dispatch-server/internal/dispatch"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// Engine resolves a request to a response.
type Engine interface {
	Handle(ctx context.Context, req *http.Request) *dispatch.Response
}

// RefusalRecorder is told about requests turned away by admission control.
type RefusalRecorder interface {
	Refused()
}

type DispatchHandler struct {
	logger   *slog.Logger
	engine   Engine
	limiter  *semaphore.Weighted
	refusals RefusalRecorder
}

// NewDispatchHandler creates the transport adapter. maxInFlight bounds the
// number of requests resolving at once; zero or less disables the bound.
// refusals may be nil.
func NewDispatchHandler(logger *slog.Logger, engine Engine, maxInFlight int64, refusals RefusalRecorder) *DispatchHandler {
	h := &DispatchHandler{
		logger:   logger,
		engine:   engine,
		refusals: refusals,
	}
	if maxInFlight > 0 {
		h.limiter = semaphore.NewWeighted(maxInFlight)
	}
	return h
}

func (h *DispatchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	requestID := r.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, requestID)

	logger := h.logger.With(slog.String("request_id", requestID))
	logger.Info("Received request",
		slog.String("from", extractClientIP(r)),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("proto", r.Proto),
		slog.String("host", r.Host),
		slog.String("user_agent", r.UserAgent()))

	if h.limiter != nil {
		if err := h.limiter.Acquire(r.Context(), 1); err != nil {
			logger.Warn("Request not admitted", slog.Any("err", err))
			if h.refusals != nil {
				h.refusals.Refused()
			}
			h.write(w, r, dispatch.StatusResponse(http.StatusServiceUnavailable), logger)
			return
		}
		defer h.limiter.Release(1)
	}

	resp := h.engine.Handle(r.Context(), r)
	h.write(w, r, resp, logger)

	logger.Info("Completed request",
		slog.Int("status", resp.Status),
		slog.Duration("duration", time.Since(start)))
}

func (h *DispatchHandler) write(w http.ResponseWriter, r *http.Request, resp *dispatch.Response, logger *slog.Logger) {
	if closer, ok := resp.Body.(io.Closer); ok {
		defer closer.Close()
	}

	header := w.Header()
	for key, values := range resp.Header {
		header[key] = values
	}
	w.WriteHeader(resp.Status)

	if resp.Body == nil || r.Method == http.MethodHead {
		return
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		logger.Warn("Writing response body failed", slog.Any("err", err))
	}
}

func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	host, _, _ := net.SplitHostPort(r.RemoteAddr)
	return host
}
