package mediate

import (
	"context"
	"fmt"
	"iter"
	"reflect"
	"sync"
)

// Mediator routes requests, notifications, and stream requests to their
// registered handlers through per-type pipelines. A Mediator is stateless
// after configuration and safe for concurrent use; construct one per process
// and share it.
//
// Example:
//
//	m := mediate.New()
//	mediate.RegisterHandler(m, PingHandler{})
//	pong, err := mediate.Send[Pong](ctx, m, Ping{Message: "Hello"})
type Mediator struct {
	registry *Registry
	pub      Publisher
	logger   Logger

	contextEnabled bool
	causality      bool
	logDispatches  bool

	requestCache sync.Map // reflect.Type -> requestInvoker
	streamCache  sync.Map // reflect.Type -> streamInvoker
}

type requestInvoker func(ctx context.Context, req any) (any, error)

type streamInvoker func(ctx context.Context, req any) iter.Seq2[any, error]

// Option configures a Mediator.
type Option func(*Mediator)

// WithRegistry swaps the built-in registry for one the host prepared, for
// example one shared across several mediators.
func WithRegistry(r *Registry) Option {
	return func(m *Mediator) {
		if r != nil {
			m.registry = r
		}
	}
}

// WithPublisher selects the notification delivery strategy. The default is
// NewSequentialPublisher.
func WithPublisher(p Publisher) Option {
	return func(m *Mediator) {
		if p != nil {
			m.pub = p
		}
	}
}

// WithLogger sets the logger used by the dispatch logging behavior. The
// default logger discards everything.
func WithLogger(l Logger) Option {
	return func(m *Mediator) {
		if l != nil {
			m.logger = l
		}
	}
}

// DisablePipelineContext turns off per-scope pipeline contexts, which are
// enabled by default. Causality tracking needs a context and silently stops
// recording without one.
func DisablePipelineContext() Option {
	return func(m *Mediator) { m.contextEnabled = false }
}

// WithCausalityTracking records a causality chain entry for every dispatch
// that runs inside a scope with a pipeline context. Disabled by default.
func WithCausalityTracking(enabled bool) Option {
	return func(m *Mediator) { m.causality = enabled }
}

// WithDispatchLogging registers a behavior that logs every request dispatch
// with its outcome and duration, using the configured logger.
func WithDispatchLogging() Option {
	return func(m *Mediator) { m.logDispatches = true }
}

// New creates a Mediator. Register handlers and stages before the first
// dispatch; the pipeline for a request type is built and cached on that
// type's first use.
func New(opts ...Option) *Mediator {
	m := &Mediator{
		registry:       NewRegistry(),
		pub:            NewSequentialPublisher(),
		logger:         NewNoopLogger(),
		contextEnabled: true,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logDispatches {
		m.registry.add(entryKey{kind: kindBehavior}, loggingBehaviorFactory(m.logger))
	}
	if m.causality {
		m.registry.add(entryKey{kind: kindBehavior}, causalityBehaviorFactory())
	}
	return m
}

// Registry exposes the mediator's service locator.
func (m *Mediator) Registry() *Registry { return m.registry }

// NewScope opens a scope for a unit of work. When pipeline contexts are
// enabled the scope carries a fresh one; use Scope.Attach to flow it through
// ctx so nested dispatches share it. Close the scope when the unit of work
// ends.
func (m *Mediator) NewScope() *Scope {
	s := m.registry.CreateScope()
	if m.contextEnabled {
		s.pc = NewPipelineContext()
	}
	return s
}

// Send dispatches a request through its pipeline and returns the untyped
// response. The request's dynamic type selects the handler; a nil request
// fails with ErrNilRequest and an unregistered type with ErrNoHandler.
func (m *Mediator) Send(ctx context.Context, req any) (any, error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	invoke, err := m.requestPipeline(reflect.TypeOf(req))
	if err != nil {
		return nil, err
	}
	return invoke(ctx, req)
}

// Send dispatches a request and narrows the response to Res. A response that
// does not match fails with ErrContract.
//
// This is a package-level function (not a method) due to Go generics
// limitations: methods cannot have type parameters independent of the
// receiver.
func Send[Res any](ctx context.Context, m *Mediator, req any) (Res, error) {
	res, err := m.Send(ctx, req)
	if err != nil {
		var zero Res
		return zero, err
	}
	return assertResponse[Res](res)
}

// Publish delivers a notification to every handler registered for its type,
// using the configured publisher. Publishing with no handlers registered is
// a no-op. A nil notification fails with ErrNilRequest.
func (m *Mediator) Publish(ctx context.Context, notification any) error {
	if notification == nil {
		return ErrNilRequest
	}
	invokers := m.registry.notificationInvokers(reflect.TypeOf(notification))
	if len(invokers) == 0 {
		return nil
	}
	return m.pub.Publish(ctx, invokers, notification)
}

// CreateStream resolves the stream pipeline for the request and returns its
// lazy sequence. Resolution errors (nil request, no handler) surface here;
// errors raised while producing elements surface through the sequence's
// error slot.
func (m *Mediator) CreateStream(ctx context.Context, req any) (iter.Seq2[any, error], error) {
	if req == nil {
		return nil, ErrNilRequest
	}
	invoke, err := m.streamPipeline(reflect.TypeOf(req))
	if err != nil {
		return nil, err
	}
	return invoke(ctx, req), nil
}

// CreateStream resolves a stream pipeline and narrows its elements to Elem.
// An element that does not match surfaces as ErrContract in the error slot.
func CreateStream[Elem any](ctx context.Context, m *Mediator, req any) (iter.Seq2[Elem, error], error) {
	s, err := m.CreateStream(ctx, req)
	if err != nil {
		return nil, err
	}
	return seqFromAny[Elem](s), nil
}

func noHandlerErr(t reflect.Type) error {
	return fmt.Errorf("%w for %s", ErrNoHandler, t)
}
