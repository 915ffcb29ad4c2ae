package mediate

import (
	"context"
	"iter"
)

// Handler processes a request and returns a typed response.
// Exactly one handler may be bound per request type.
//
// The type parameters are: Req for the request, Res for the response.
//
// Example:
//
//	type PingHandler struct{}
//
//	func (PingHandler) Handle(ctx context.Context, req Ping) (Pong, error) {
//	    return Pong{Reply: "Pong: " + req.Message}, nil
//	}
type Handler[Req, Res any] interface {
	Handle(ctx context.Context, req Req) (Res, error)
}

// HandlerFunc is a function adapter for Handler. Use for simple handlers
// that don't need a struct:
//
//	mediate.RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
//	    return Pong{Reply: "Pong: " + req.Message}, nil
//	})
type HandlerFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

// Handle implements the Handler interface.
func (f HandlerFunc[Req, Res]) Handle(ctx context.Context, req Req) (Res, error) {
	return f(ctx, req)
}

// NotificationHandler processes a notification without returning a result.
// Zero or more notification handlers may be bound per notification type;
// Publish fans the notification out to all of them.
type NotificationHandler[N any] interface {
	Handle(ctx context.Context, notification N) error
}

// NotificationHandlerFunc is a function adapter for NotificationHandler.
type NotificationHandlerFunc[N any] func(ctx context.Context, notification N) error

// Handle implements the NotificationHandler interface.
func (f NotificationHandlerFunc[N]) Handle(ctx context.Context, notification N) error {
	return f(ctx, notification)
}

// StreamHandler processes a request and produces a lazy sequence of elements.
// The sequence is driven by the consumer; each element is paired with an
// error slot so producers can surface mid-stream failures.
//
// Example:
//
//	func (h CountHandler) Handle(ctx context.Context, req CountTo) iter.Seq2[int, error] {
//	    return func(yield func(int, error) bool) {
//	        for i := 1; i <= req.Limit; i++ {
//	            if !yield(i, nil) {
//	                return
//	            }
//	        }
//	    }
//	}
type StreamHandler[Req, Elem any] interface {
	Handle(ctx context.Context, req Req) iter.Seq2[Elem, error]
}

// StreamHandlerFunc is a function adapter for StreamHandler.
type StreamHandlerFunc[Req, Elem any] func(ctx context.Context, req Req) iter.Seq2[Elem, error]

// Handle implements the StreamHandler interface.
func (f StreamHandlerFunc[Req, Elem]) Handle(ctx context.Context, req Req) iter.Seq2[Elem, error] {
	return f(ctx, req)
}

// Next continues the pipeline from inside a behavior. A behavior decides
// whether, when, and how to call it; skipping the call short-circuits the
// rest of the pipeline.
type Next[Res any] func(ctx context.Context) (Res, error)

// Behavior wraps the pipeline around a handler with arbitrary logic. The
// first-registered behavior executes outermost. A behavior may transform
// the response, replace it entirely, or skip next to short-circuit.
type Behavior[Req, Res any] interface {
	Handle(ctx context.Context, req Req, next Next[Res]) (Res, error)
}

// BehaviorFunc is a function adapter for Behavior.
type BehaviorFunc[Req, Res any] func(ctx context.Context, req Req, next Next[Res]) (Res, error)

// Handle implements the Behavior interface.
func (f BehaviorFunc[Req, Res]) Handle(ctx context.Context, req Req, next Next[Res]) (Res, error) {
	return f(ctx, req, next)
}

// PreProcessor runs before the handler and all behaviors. It observes the
// request and cannot short-circuit; a returned error aborts the dispatch.
type PreProcessor[Req any] interface {
	Process(ctx context.Context, req Req) error
}

// PreProcessorFunc is a function adapter for PreProcessor.
type PreProcessorFunc[Req any] func(ctx context.Context, req Req) error

// Process implements the PreProcessor interface.
func (f PreProcessorFunc[Req]) Process(ctx context.Context, req Req) error {
	return f(ctx, req)
}

// PostProcessor runs after the handler and all behaviors have produced a
// response. It receives the request and the response and cannot modify
// the response; a returned error aborts the dispatch.
type PostProcessor[Req, Res any] interface {
	Process(ctx context.Context, req Req, res Res) error
}

// PostProcessorFunc is a function adapter for PostProcessor.
type PostProcessorFunc[Req, Res any] func(ctx context.Context, req Req, res Res) error

// Process implements the PostProcessor interface.
func (f PostProcessorFunc[Req, Res]) Process(ctx context.Context, req Req, res Res) error {
	return f(ctx, req, res)
}

// Recovery carries the outcome of exception handling. An exception handler
// that can recover calls SetHandled with a substitute response; iteration
// over the remaining handlers stops at the first recovery.
type Recovery[Res any] struct {
	handled  bool
	response Res
}

// SetHandled marks the error as recovered and records the substitute response.
func (r *Recovery[Res]) SetHandled(res Res) {
	r.handled = true
	r.response = res
}

// Handled reports whether a handler has recovered the error.
func (r *Recovery[Res]) Handled() bool { return r.handled }

// Response returns the substitute response recorded by SetHandled.
func (r *Recovery[Res]) Response() Res { return r.response }

// ExceptionHandler intercepts errors raised by the handler or any pipeline
// stage. Handlers run in registration order until one marks the state
// handled; if none do, the original error surfaces to the caller unchanged.
// A non-nil return aborts the chain and replaces the surfaced error.
type ExceptionHandler[Req, Res any] interface {
	Handle(ctx context.Context, req Req, err error, state *Recovery[Res]) error
}

// ExceptionHandlerFunc is a function adapter for ExceptionHandler.
type ExceptionHandlerFunc[Req, Res any] func(ctx context.Context, req Req, err error, state *Recovery[Res]) error

// Handle implements the ExceptionHandler interface.
func (f ExceptionHandlerFunc[Req, Res]) Handle(ctx context.Context, req Req, err error, state *Recovery[Res]) error {
	return f(ctx, req, err, state)
}

// StreamNext continues a stream pipeline from inside a stream behavior.
type StreamNext[Elem any] func(ctx context.Context) iter.Seq2[Elem, error]

// StreamBehavior wraps a stream pipeline. As with Behavior, the
// first-registered stream behavior executes outermost. Pre/post processors
// and exception handlers do not participate in stream pipelines.
type StreamBehavior[Req, Elem any] interface {
	Handle(ctx context.Context, req Req, next StreamNext[Elem]) iter.Seq2[Elem, error]
}

// StreamBehaviorFunc is a function adapter for StreamBehavior.
type StreamBehaviorFunc[Req, Elem any] func(ctx context.Context, req Req, next StreamNext[Elem]) iter.Seq2[Elem, error]

// Handle implements the StreamBehavior interface.
func (f StreamBehaviorFunc[Req, Elem]) Handle(ctx context.Context, req Req, next StreamNext[Elem]) iter.Seq2[Elem, error] {
	return f(ctx, req, next)
}

// Unit is the response type for requests that conceptually return nothing.
// Handlers return it explicitly so the response-typed contract stays uniform
// through the pipeline.
type Unit struct{}
