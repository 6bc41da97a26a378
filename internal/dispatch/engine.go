package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Trace summarises how one request was resolved.
type Trace struct {
	Method   string
	Path     string
	Probes   int
	Handler  string
	Kind     Kind
	Fallback bool
	Status   int
	Duration time.Duration
}

// Observer receives a Trace for every handled request. ObserveDispatch runs on
// the request goroutine and must not block.
type Observer interface {
	ObserveDispatch(trace Trace)
}

// Option configures an Engine at construction.
type Option func(*Engine)

// WithObserver registers an observer for resolved requests.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observer = o
	}
}

// FallbackName is the handler name reported when the fallback answers.
const FallbackName = "fallback"

// Engine dispatches requests over a fixed candidate list.
type Engine struct {
	logger     *slog.Logger
	candidates []Handler
	names      []string
	fallback   Fallback
	observer   Observer
}

// New builds an Engine. The candidate slice is copied; a nil fallback renders
// the numeric status.
func New(logger *slog.Logger, candidates []Handler, fallback Fallback, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if fallback == nil {
		fallback = FallbackFunc(func(_ context.Context, f *Failure) *Response {
			return StatusResponse(f.Status)
		})
	}

	list := make([]Handler, len(candidates))
	copy(list, candidates)

	names := make([]string, len(list))
	for i, h := range list {
		names[i] = handlerName(h, i)
	}

	e := &Engine{
		logger:     logger,
		candidates: list,
		names:      names,
		fallback:   fallback,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Len returns the number of candidates.
func (e *Engine) Len() int {
	return len(e.candidates)
}

// Names returns the candidate names in probe order.
func (e *Engine) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// Handle resolves req to exactly one handler and returns its response. It
// always returns a non-nil Response.
func (e *Engine) Handle(ctx context.Context, req *http.Request) *Response {
	start := time.Now()
	trace := Trace{
		Method: req.Method,
		Path:   req.URL.Path,
	}

	resolver := NewResolver(e.candidates)
	failure := e.resolve(ctx, req, &resolver, &trace)

	var resp *Response
	if failure == nil {
		state := resolver.State()
		switch state.Kind {
		case Found:
			resp, failure = e.dispatchCandidate(ctx, req, state, &trace)
		default:
			failure = &Failure{
				Request: req,
				Kind:    KindExhausted,
				Status:  StatusMiss,
				Message: "no handler claimed the request",
			}
		}
	}

	if failure != nil {
		resp = e.dispatchFallback(ctx, failure, &trace)
	}

	trace.Status = resp.Status
	trace.Duration = time.Since(start)
	if e.observer != nil {
		e.observer.ObserveDispatch(trace)
	}

	return resp
}

func (e *Engine) resolve(ctx context.Context, req *http.Request, r *Resolver, trace *Trace) *Failure {
	for !r.Done() {
		h, i, _ := r.Current()

		if err := ctx.Err(); err != nil {
			return cancelledFailure(req, e.names[i], err)
		}

		out, err := probe(ctx, h, req)
		trace.Probes++
		if err != nil {
			e.logger.Error("Candidate probe panicked",
				slog.String("handler", e.names[i]),
				slog.String("path", req.URL.Path),
				slog.Any("err", err))
			return &Failure{
				Request: req,
				Kind:    KindPanic,
				Status:  http.StatusInternalServerError,
				Message: "probe panicked",
				Handler: e.names[i],
				Err:     err,
			}
		}

		state := r.Advance(out)
		e.logger.Debug("Probed candidate",
			slog.String("handler", e.names[i]),
			slog.String("path", req.URL.Path),
			slog.String("outcome", out.String()),
			slog.String("state", state.String()))
	}

	return nil
}

func (e *Engine) dispatchCandidate(ctx context.Context, req *http.Request, state State, trace *Trace) (*Response, *Failure) {
	name := e.names[state.Index]
	trace.Handler = name
	trace.Kind = KindMatched
	if !state.Matched {
		trace.Kind = KindHardReject
	}

	if err := ctx.Err(); err != nil {
		return nil, cancelledFailure(req, name, err)
	}

	resp, err := dispatch(ctx, e.candidates[state.Index], req, state.Status)
	if err != nil {
		discard(resp)

		var panicked *panicError
		if errors.As(err, &panicked) {
			e.logger.Error("Candidate dispatch panicked",
				slog.String("handler", name),
				slog.String("path", req.URL.Path),
				slog.Any("err", err))
			return nil, &Failure{
				Request: req,
				Kind:    KindPanic,
				Status:  http.StatusInternalServerError,
				Message: "dispatch panicked",
				Handler: name,
				Err:     err,
			}
		}

		status := ErrorStatus(err, http.StatusInternalServerError)
		if ctx.Err() != nil {
			return nil, cancelledFailure(req, name, err)
		}
		e.logger.Warn("Candidate dispatch failed",
			slog.String("handler", name),
			slog.String("path", req.URL.Path),
			slog.Int("status", status),
			slog.Any("err", err))
		return nil, &Failure{
			Request: req,
			Kind:    KindDispatchFailure,
			Status:  status,
			Message: err.Error(),
			Handler: name,
			Err:     err,
		}
	}

	if resp == nil {
		return nil, &Failure{
			Request: req,
			Kind:    KindDispatchFailure,
			Status:  http.StatusInternalServerError,
			Message: "handler returned no response",
			Handler: name,
		}
	}

	normalize(resp, state.Status)
	return resp, nil
}

func (e *Engine) dispatchFallback(ctx context.Context, failure *Failure, trace *Trace) *Response {
	trace.Fallback = true
	trace.Kind = failure.Kind
	trace.Handler = FallbackName

	if failure.Kind != KindExhausted {
		e.logger.Warn("Routing request to fallback",
			slog.String("reason", failure.Kind.String()),
			slog.String("handler", failure.Handler),
			slog.Int("status", failure.Status))
	}

	resp, err := fallback(ctx, e.fallback, failure)
	if err != nil {
		e.logger.Error("Fallback panicked", slog.Any("err", err))
	}
	if resp == nil {
		return StatusResponse(failure.Status)
	}

	normalize(resp, failure.Status)
	return resp
}

func cancelledFailure(req *http.Request, handler string, err error) *Failure {
	return &Failure{
		Request: req,
		Kind:    KindCancelled,
		Status:  http.StatusServiceUnavailable,
		Message: "request cancelled",
		Handler: handler,
		Err:     err,
	}
}

func normalize(resp *Response, status int) {
	if resp.Status == 0 {
		resp.Status = status
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
}

type panicError struct {
	value any
}

func (p *panicError) Error() string {
	return fmt.Sprintf("panic: %v", p.value)
}

func probe(ctx context.Context, h Handler, req *http.Request) (out Outcome, err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &panicError{value: v}
		}
	}()
	return h.Probe(ctx, req), nil
}

// discard closes the body of a response that will not be written.
func discard(resp *Response) {
	if resp == nil {
		return
	}
	if closer, ok := resp.Body.(io.Closer); ok {
		closer.Close()
	}
}

func dispatch(ctx context.Context, h Handler, req *http.Request, status int) (resp *Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			resp, err = nil, &panicError{value: v}
		}
	}()
	return h.Dispatch(ctx, req, status)
}

func fallback(ctx context.Context, f Fallback, failure *Failure) (resp *Response, err error) {
	defer func() {
		if v := recover(); v != nil {
			resp, err = nil, &panicError{value: v}
		}
	}()
	return f.Dispatch(ctx, failure), nil
}
