package mediate

import (
	"context"
	"iter"
	"reflect"
)

// AnyBehavior is the open form of Behavior: it wraps requests of any type.
// Open behaviors are registered through a BehaviorFactory and materialized
// once per request type on first dispatch.
type AnyBehavior interface {
	Handle(ctx context.Context, req any, next Next[any]) (any, error)
}

// AnyBehaviorFunc is a function adapter for AnyBehavior.
type AnyBehaviorFunc func(ctx context.Context, req any, next Next[any]) (any, error)

// Handle implements the AnyBehavior interface.
func (f AnyBehaviorFunc) Handle(ctx context.Context, req any, next Next[any]) (any, error) {
	return f(ctx, req, next)
}

// AnyPreProcessor is the open form of PreProcessor.
type AnyPreProcessor interface {
	Process(ctx context.Context, req any) error
}

// AnyPreProcessorFunc is a function adapter for AnyPreProcessor.
type AnyPreProcessorFunc func(ctx context.Context, req any) error

// Process implements the AnyPreProcessor interface.
func (f AnyPreProcessorFunc) Process(ctx context.Context, req any) error {
	return f(ctx, req)
}

// AnyPostProcessor is the open form of PostProcessor.
type AnyPostProcessor interface {
	Process(ctx context.Context, req, res any) error
}

// AnyPostProcessorFunc is a function adapter for AnyPostProcessor.
type AnyPostProcessorFunc func(ctx context.Context, req, res any) error

// Process implements the AnyPostProcessor interface.
func (f AnyPostProcessorFunc) Process(ctx context.Context, req, res any) error {
	return f(ctx, req, res)
}

// AnyExceptionHandler is the open form of ExceptionHandler.
type AnyExceptionHandler interface {
	Handle(ctx context.Context, req any, err error, state *Recovery[any]) error
}

// AnyExceptionHandlerFunc is a function adapter for AnyExceptionHandler.
type AnyExceptionHandlerFunc func(ctx context.Context, req any, err error, state *Recovery[any]) error

// Handle implements the AnyExceptionHandler interface.
func (f AnyExceptionHandlerFunc) Handle(ctx context.Context, req any, err error, state *Recovery[any]) error {
	return f(ctx, req, err, state)
}

// AnyStreamBehavior is the open form of StreamBehavior.
type AnyStreamBehavior interface {
	Handle(ctx context.Context, req any, next StreamNext[any]) iter.Seq2[any, error]
}

// AnyStreamBehaviorFunc is a function adapter for AnyStreamBehavior.
type AnyStreamBehaviorFunc func(ctx context.Context, req any, next StreamNext[any]) iter.Seq2[any, error]

// Handle implements the AnyStreamBehavior interface.
func (f AnyStreamBehaviorFunc) Handle(ctx context.Context, req any, next StreamNext[any]) iter.Seq2[any, error] {
	return f(ctx, req, next)
}

// BehaviorFactory builds an open behavior for a concrete request/response
// pair. It runs once per request type, on that type's first dispatch, and
// the result is cached with the type's pipeline. Returning nil opts the
// behavior out for that pair.
type BehaviorFactory func(requestType, responseType reflect.Type) AnyBehavior

// PreProcessorFactory builds an open pre-processor for a request type.
// Returning nil opts out.
type PreProcessorFactory func(requestType reflect.Type) AnyPreProcessor

// PostProcessorFactory builds an open post-processor for a request/response
// pair. Returning nil opts out.
type PostProcessorFactory func(requestType, responseType reflect.Type) AnyPostProcessor

// ExceptionHandlerFactory builds an open exception handler for a
// request/response pair. Returning nil opts out.
type ExceptionHandlerFactory func(requestType, responseType reflect.Type) AnyExceptionHandler

// StreamBehaviorFactory builds an open stream behavior for a
// request/element pair. Returning nil opts out.
type StreamBehaviorFactory func(requestType, elementType reflect.Type) AnyStreamBehavior

// RegisterHandler binds a request type to its handler. Exactly one handler
// is expected per request type; binding the same type again replaces the
// earlier binding (a property of the built-in registry's last-write-wins
// buckets, not a dispatcher guarantee).
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
//
// Example:
//
//	mediate.RegisterHandler(m, PingHandler{})
func RegisterHandler[Req, Res any](m *Mediator, h Handler[Req, Res]) {
	RegisterHandlerFactory(m, func() Handler[Req, Res] { return h })
}

// RegisterHandlerFunc binds a request type to a handler function.
func RegisterHandlerFunc[Req, Res any](m *Mediator, fn func(ctx context.Context, req Req) (Res, error)) {
	RegisterHandler(m, HandlerFunc[Req, Res](fn))
}

// RegisterHandlerFactory binds a request type to a handler factory. The
// factory runs on every dispatch, so it decides the handler's lifetime:
// return a shared instance for singleton semantics or construct fresh for
// transient semantics. Hosts with a DI container bridge it here by closing
// over the container.
func RegisterHandlerFactory[Req, Res any](m *Mediator, factory func() Handler[Req, Res]) {
	binding := handlerBinding{
		requestType:  typeOf[Req](),
		responseType: typeOf[Res](),
		invoke: func(ctx context.Context, req any) (any, error) {
			return factory().Handle(ctx, req.(Req))
		},
	}
	m.registry.add(entryKey{kind: kindHandler, typ: binding.requestType}, binding)
}

// RegisterNotificationHandler adds a handler for a notification type.
// Multiple handlers per type are allowed; Publish delivers to each in
// registration order (or concurrently, per the configured publisher).
func RegisterNotificationHandler[N any](m *Mediator, h NotificationHandler[N]) {
	RegisterNotificationHandlerFactory(m, func() NotificationHandler[N] { return h })
}

// RegisterNotificationHandlerFunc adds a handler function for a notification type.
func RegisterNotificationHandlerFunc[N any](m *Mediator, fn func(ctx context.Context, notification N) error) {
	RegisterNotificationHandler(m, NotificationHandlerFunc[N](fn))
}

// RegisterNotificationHandlerFactory adds a handler factory for a
// notification type. The factory runs once per delivery.
func RegisterNotificationHandlerFactory[N any](m *Mediator, factory func() NotificationHandler[N]) {
	invoker := NotificationInvoker(func(ctx context.Context, notification any) error {
		return factory().Handle(ctx, notification.(N))
	})
	m.registry.add(entryKey{kind: kindNotification, typ: typeOf[N]()}, invoker)
}

// RegisterStreamHandler binds a stream request type to its handler.
func RegisterStreamHandler[Req, Elem any](m *Mediator, h StreamHandler[Req, Elem]) {
	RegisterStreamHandlerFactory(m, func() StreamHandler[Req, Elem] { return h })
}

// RegisterStreamHandlerFunc binds a stream request type to a handler function.
func RegisterStreamHandlerFunc[Req, Elem any](m *Mediator, fn func(ctx context.Context, req Req) iter.Seq2[Elem, error]) {
	RegisterStreamHandler(m, StreamHandlerFunc[Req, Elem](fn))
}

// RegisterStreamHandlerFactory binds a stream request type to a handler
// factory invoked on every dispatch.
func RegisterStreamHandlerFactory[Req, Elem any](m *Mediator, factory func() StreamHandler[Req, Elem]) {
	binding := streamBinding{
		requestType: typeOf[Req](),
		elementType: typeOf[Elem](),
		invoke: func(ctx context.Context, req any) iter.Seq2[any, error] {
			return seqToAny(factory().Handle(ctx, req.(Req)))
		},
	}
	m.registry.add(entryKey{kind: kindStream, typ: binding.requestType}, binding)
}

// RegisterBehavior adds a behavior for one request/response pair. Behaviors
// execute with the first-registered outermost.
func RegisterBehavior[Req, Res any](m *Mediator, b Behavior[Req, Res]) {
	m.registry.add(entryKey{kind: kindBehavior, typ: typeOf[Req]()}, AnyBehavior(typedBehavior[Req, Res]{b}))
}

// RegisterBehaviorFunc adds a behavior function for one request/response pair.
func RegisterBehaviorFunc[Req, Res any](m *Mediator, fn func(ctx context.Context, req Req, next Next[Res]) (Res, error)) {
	RegisterBehavior(m, BehaviorFunc[Req, Res](fn))
}

// RegisterPreProcessor adds a pre-processor for one request type.
func RegisterPreProcessor[Req any](m *Mediator, p PreProcessor[Req]) {
	m.registry.add(entryKey{kind: kindPreProcessor, typ: typeOf[Req]()}, AnyPreProcessor(typedPreProcessor[Req]{p}))
}

// RegisterPostProcessor adds a post-processor for one request/response pair.
func RegisterPostProcessor[Req, Res any](m *Mediator, p PostProcessor[Req, Res]) {
	m.registry.add(entryKey{kind: kindPostProcessor, typ: typeOf[Req]()}, AnyPostProcessor(typedPostProcessor[Req, Res]{p}))
}

// RegisterExceptionHandler adds an exception handler for one
// request/response pair.
func RegisterExceptionHandler[Req, Res any](m *Mediator, h ExceptionHandler[Req, Res]) {
	m.registry.add(entryKey{kind: kindExceptionHandler, typ: typeOf[Req]()}, AnyExceptionHandler(typedExceptionHandler[Req, Res]{h}))
}

// RegisterStreamBehavior adds a stream behavior for one request/element pair.
func RegisterStreamBehavior[Req, Elem any](m *Mediator, b StreamBehavior[Req, Elem]) {
	m.registry.add(entryKey{kind: kindStreamBehavior, typ: typeOf[Req]()}, AnyStreamBehavior(typedStreamBehavior[Req, Elem]{b}))
}

// RegisterBehaviorForAll adds an open behavior applicable to every request
// type. A nil factory fails with ErrContract.
func RegisterBehaviorForAll(m *Mediator, f BehaviorFactory) error {
	if f == nil {
		return contractErr("nil behavior factory")
	}
	m.registry.add(entryKey{kind: kindBehavior}, f)
	return nil
}

// RegisterPreProcessorForAll adds an open pre-processor applicable to every
// request type. A nil factory fails with ErrContract.
func RegisterPreProcessorForAll(m *Mediator, f PreProcessorFactory) error {
	if f == nil {
		return contractErr("nil pre-processor factory")
	}
	m.registry.add(entryKey{kind: kindPreProcessor}, f)
	return nil
}

// RegisterPostProcessorForAll adds an open post-processor applicable to
// every request type. A nil factory fails with ErrContract.
func RegisterPostProcessorForAll(m *Mediator, f PostProcessorFactory) error {
	if f == nil {
		return contractErr("nil post-processor factory")
	}
	m.registry.add(entryKey{kind: kindPostProcessor}, f)
	return nil
}

// RegisterExceptionHandlerForAll adds an open exception handler applicable
// to every request type. A nil factory fails with ErrContract.
func RegisterExceptionHandlerForAll(m *Mediator, f ExceptionHandlerFactory) error {
	if f == nil {
		return contractErr("nil exception handler factory")
	}
	m.registry.add(entryKey{kind: kindExceptionHandler}, f)
	return nil
}

// RegisterStreamBehaviorForAll adds an open stream behavior applicable to
// every stream request type. A nil factory fails with ErrContract.
func RegisterStreamBehaviorForAll(m *Mediator, f StreamBehaviorFactory) error {
	if f == nil {
		return contractErr("nil stream behavior factory")
	}
	m.registry.add(entryKey{kind: kindStreamBehavior}, f)
	return nil
}

// typedBehavior adapts a closed Behavior to the open calling convention the
// pipeline composes with. The request assertion cannot fail on the dispatch
// path because pipelines are keyed by concrete request type; the response
// assertion guards behaviors bound with a response type that differs from
// the handler's.
type typedBehavior[Req, Res any] struct {
	b Behavior[Req, Res]
}

func (a typedBehavior[Req, Res]) Handle(ctx context.Context, req any, next Next[any]) (any, error) {
	tr, ok := req.(Req)
	if !ok {
		return nil, contractErr("behavior for %v received %T", typeOf[Req](), req)
	}
	return a.b.Handle(ctx, tr, func(ctx context.Context) (Res, error) {
		v, err := next(ctx)
		if err != nil {
			var zero Res
			return zero, err
		}
		return assertResponse[Res](v)
	})
}

type typedPreProcessor[Req any] struct {
	p PreProcessor[Req]
}

func (a typedPreProcessor[Req]) Process(ctx context.Context, req any) error {
	tr, ok := req.(Req)
	if !ok {
		return contractErr("pre-processor for %v received %T", typeOf[Req](), req)
	}
	return a.p.Process(ctx, tr)
}

type typedPostProcessor[Req, Res any] struct {
	p PostProcessor[Req, Res]
}

func (a typedPostProcessor[Req, Res]) Process(ctx context.Context, req, res any) error {
	tr, ok := req.(Req)
	if !ok {
		return contractErr("post-processor for %v received %T", typeOf[Req](), req)
	}
	tres, err := assertResponse[Res](res)
	if err != nil {
		return err
	}
	return a.p.Process(ctx, tr, tres)
}

type typedExceptionHandler[Req, Res any] struct {
	h ExceptionHandler[Req, Res]
}

func (a typedExceptionHandler[Req, Res]) Handle(ctx context.Context, req any, cause error, state *Recovery[any]) error {
	tr, ok := req.(Req)
	if !ok {
		return contractErr("exception handler for %v received %T", typeOf[Req](), req)
	}
	typed := &Recovery[Res]{}
	if err := a.h.Handle(ctx, tr, cause, typed); err != nil {
		return err
	}
	if typed.Handled() {
		state.SetHandled(typed.Response())
	}
	return nil
}

type typedStreamBehavior[Req, Elem any] struct {
	b StreamBehavior[Req, Elem]
}

func (a typedStreamBehavior[Req, Elem]) Handle(ctx context.Context, req any, next StreamNext[any]) iter.Seq2[any, error] {
	tr, ok := req.(Req)
	if !ok {
		err := contractErr("stream behavior for %v received %T", typeOf[Req](), req)
		return errSeq(err)
	}
	return seqToAny(a.b.Handle(ctx, tr, func(ctx context.Context) iter.Seq2[Elem, error] {
		return seqFromAny[Elem](next(ctx))
	}))
}

// assertResponse narrows a boxed response to Res. A nil box yields the zero
// value so Unit-style and pointer responses pass through cleanly.
func assertResponse[Res any](v any) (Res, error) {
	if v == nil {
		var zero Res
		return zero, nil
	}
	out, ok := v.(Res)
	if !ok {
		var zero Res
		return zero, contractErr("response is %T, want %v", v, typeOf[Res]())
	}
	return out, nil
}

// seqToAny boxes a typed sequence.
func seqToAny[Elem any](s iter.Seq2[Elem, error]) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for v, err := range s {
			if !yield(v, err) {
				return
			}
		}
	}
}

// seqFromAny narrows a boxed sequence. An element that fails the assertion
// surfaces as an ErrContract in the error slot and ends the sequence.
func seqFromAny[Elem any](s iter.Seq2[any, error]) iter.Seq2[Elem, error] {
	return func(yield func(Elem, error) bool) {
		for v, err := range s {
			var elem Elem
			if v != nil {
				var ok bool
				elem, ok = v.(Elem)
				if !ok {
					var zero Elem
					yield(zero, contractErr("stream element is %T, want %v", v, typeOf[Elem]()))
					return
				}
			}
			if !yield(elem, err) {
				return
			}
		}
	}
}

// errSeq is a sequence that yields a single error.
func errSeq(err error) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(nil, err)
	}
}
