// Package mediate provides an in-process mediator for request/response,
// notification, and streaming dispatch.
//
// The mediate package routes typed requests to typed handlers through a
// composable pipeline of behaviors, pre/post processors, and exception
// handlers. Senders depend only on the mediator; handlers depend only on
// their request types. The pipeline carries cross-cutting concerns such as
// logging, metrics, and recovery, letting handlers focus on business logic.
//
// # Quick Start
//
// Define a request, a response, and a handler:
//
//	type Ping struct {
//	    Message string
//	}
//
//	type Pong struct {
//	    Reply string
//	}
//
//	type PingHandler struct{}
//
//	func (PingHandler) Handle(ctx context.Context, req Ping) (Pong, error) {
//	    return Pong{Reply: "Pong: " + req.Message}, nil
//	}
//
// Create a mediator, register, and send:
//
//	m := mediate.New()
//	mediate.RegisterHandler(m, PingHandler{})
//
//	pong, err := mediate.Send[Pong](ctx, m, Ping{Message: "Hello"})
//
// # Design Philosophy
//
// The package separates concerns into three layers:
//
//   - Contracts: typed Handler, NotificationHandler, and StreamHandler
//     interfaces plus the pipeline stage interfaces
//   - Mediator: resolves the handler for a request's type and runs its
//     pipeline, built once per type and cached
//   - Stages: cross-cutting logic wrapped around handlers without the
//     handlers knowing
//
// This separation allows:
//   - Senders decoupled from handler identities
//   - Cross-cutting concerns shared across every request type
//   - Transport-agnostic handler code
//   - Easy testing with handler functions
//
// # Pipeline
//
// A request dispatch flows through the stages registered for its type:
//
//	exception handlers
//	  pre-processors
//	    behaviors (first registered runs outermost)
//	      handler
//	    post-processors
//
// Behaviors wrap the handler and decide whether and when to call next;
// skipping next short-circuits the rest of the pipeline. Pre-processors
// observe the request before the behaviors run; post-processors observe
// the request and response after they complete. Exception handlers see
// every error and may substitute a recovery response; unrecovered errors
// surface to the caller unchanged.
//
// Stages register either closed (for one request type) or open (for all,
// through a factory that may opt out per type):
//
//	mediate.RegisterBehavior(m, AuditBehavior{})
//	mediate.RegisterBehaviorForAll(m, func(req, res reflect.Type) mediate.AnyBehavior {
//	    return TimingBehavior{}
//	})
//
// # Notifications
//
// Zero or more handlers receive each notification. Delivery strategy is
// pluggable: the default SequentialPublisher stops at the first failure,
// the ParallelPublisher runs all handlers concurrently and aggregates
// failures into a *PublishError.
//
//	mediate.RegisterNotificationHandler(m, OrderPlacedAuditor{})
//	err := m.Publish(ctx, OrderPlaced{ID: id})
//
// # Streams
//
// Stream handlers produce lazy sequences consumed with range-over-func:
//
//	seq, err := mediate.CreateStream[int](ctx, m, CountTo{Limit: 5})
//	for v, err := range seq {
//	    ...
//	}
//
// Elements are produced on demand; breaking out of the loop stops the
// producer. Stream behaviors wrap stream pipelines the way behaviors wrap
// request pipelines.
//
// # Scopes and the Pipeline Context
//
// A Scope bounds a unit of work. When pipeline contexts are enabled, the
// scope carries one: a concurrency-safe bag of timers, metric aggregates,
// items, and baggage shared by every dispatch in the scope.
//
//	scope := m.NewScope()
//	defer scope.Close()
//	ctx = scope.Attach(ctx)
//
// With causality tracking enabled, every dispatch in the scope records a
// chain entry linking nested dispatches to their parents.
//
// # Envelope Ingress
//
// The Ingress feeds raw JSON from queues or webhooks into the mediator.
// Matchers claim documents with cheap field checks before decoding:
//
//	in := mediate.NewIngress(m)
//	mediate.BindRequest[PlaceOrder](in,
//	    mediate.FieldEquals("type", "order/place"),
//	    mediate.WithPayloadPath("payload"),
//	)
//	res, err := in.Process(ctx, raw)
//
// # Thread Safety
//
// Mediator is safe for concurrent use after configuration is complete. Do
// not register handlers or stages after the first dispatch.
package mediate
