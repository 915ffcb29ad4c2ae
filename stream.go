package mediate

import (
	"context"
	"iter"
	"reflect"
)

// streamPipeline returns the cached invoker for a stream request type,
// building it on first use. Caching follows the same LoadOrStore discipline
// as request pipelines.
func (m *Mediator) streamPipeline(t reflect.Type) (streamInvoker, error) {
	if v, ok := m.streamCache.Load(t); ok {
		return v.(streamInvoker), nil
	}
	built, err := m.buildStreamPipeline(t)
	if err != nil {
		return nil, err
	}
	actual, _ := m.streamCache.LoadOrStore(t, built)
	return actual.(streamInvoker), nil
}

// buildStreamPipeline composes the stream behaviors registered for t around
// its terminal binding, first registered outermost. Pre and post processors
// and exception handlers do not participate in stream pipelines.
func (m *Mediator) buildStreamPipeline(t reflect.Type) (streamInvoker, error) {
	binding, ok := m.registry.streamBinding(t)
	if !ok {
		return nil, noHandlerErr(t)
	}

	core := binding.invoke
	behaviors := m.registry.streamBehaviors(t, binding.elementType)
	for i := len(behaviors) - 1; i >= 0; i-- {
		b, next := behaviors[i], core
		core = func(ctx context.Context, req any) iter.Seq2[any, error] {
			return b.Handle(ctx, req, func(ctx context.Context) iter.Seq2[any, error] {
				return next(ctx, req)
			})
		}
	}

	return func(ctx context.Context, req any) iter.Seq2[any, error] {
		return guardCancel(ctx, core(ctx, req))
	}, nil
}

// guardCancel stops a sequence once ctx is done. The context's error is
// yielded as the final element so consumers ranging without a select still
// observe the cancellation.
func guardCancel(ctx context.Context, s iter.Seq2[any, error]) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		for v, err := range s {
			if cerr := ctx.Err(); cerr != nil {
				yield(nil, cerr)
				return
			}
			if !yield(v, err) {
				return
			}
		}
	}
}
