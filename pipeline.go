package mediate

import (
	"context"
	"reflect"
)

// requestPipeline returns the cached invoker for a request type, building it
// on first use. Concurrent first dispatches may each build a pipeline; the
// LoadOrStore winner becomes the permanent entry and the losers' copies are
// discarded. Failed builds are not cached, so a type registered after a
// failed dispatch resolves normally.
func (m *Mediator) requestPipeline(t reflect.Type) (requestInvoker, error) {
	if v, ok := m.requestCache.Load(t); ok {
		return v.(requestInvoker), nil
	}
	built, err := m.buildRequestPipeline(t)
	if err != nil {
		return nil, err
	}
	actual, _ := m.requestCache.LoadOrStore(t, built)
	return actual.(requestInvoker), nil
}

// buildRequestPipeline composes the stages registered for t around its
// terminal handler binding. From the handler outward: behaviors (first
// registered runs outermost), then pre and post processors bracketing the
// behavior chain, then the exception layer, then context instrumentation.
func (m *Mediator) buildRequestPipeline(t reflect.Type) (requestInvoker, error) {
	binding, ok := m.registry.handlerBinding(t)
	if !ok {
		return nil, noHandlerErr(t)
	}

	core := binding.invoke
	behaviors := m.registry.behaviors(t, binding.responseType)
	for i := len(behaviors) - 1; i >= 0; i-- {
		b, next := behaviors[i], core
		core = func(ctx context.Context, req any) (any, error) {
			return b.Handle(ctx, req, func(ctx context.Context) (any, error) {
				return next(ctx, req)
			})
		}
	}

	chain := core
	pres := m.registry.preProcessors(t)
	posts := m.registry.postProcessors(t, binding.responseType)
	if len(pres) > 0 || len(posts) > 0 {
		chain = func(ctx context.Context, req any) (any, error) {
			for _, p := range pres {
				if err := p.Process(ctx, req); err != nil {
					return nil, err
				}
			}
			res, err := core(ctx, req)
			if err != nil {
				return nil, err
			}
			for _, p := range posts {
				if err := p.Process(ctx, req, res); err != nil {
					return nil, err
				}
			}
			return res, nil
		}
	}

	guarded := chain
	excs := m.registry.exceptionHandlers(t, binding.responseType)
	if len(excs) > 0 {
		guarded = func(ctx context.Context, req any) (any, error) {
			res, err := chain(ctx, req)
			if err == nil {
				return res, nil
			}
			state := &Recovery[any]{}
			for _, h := range excs {
				if herr := h.Handle(ctx, req, err, state); herr != nil {
					return nil, herr
				}
				if state.Handled() {
					return state.Response(), nil
				}
			}
			return nil, err
		}
	}

	name := t.String()
	return func(ctx context.Context, req any) (any, error) {
		if pc := PipelineContextFrom(ctx); pc != nil {
			timer := pc.StartTimer(name)
			defer timer.Stop()
			pc.Increment(MetricDispatchCount, 1)
		}
		return guarded(ctx, req)
	}, nil
}
