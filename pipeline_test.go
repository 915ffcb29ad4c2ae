package mediate

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type GetValue struct {
	Input int
}

type FlakyRequest struct {
	Fail bool
}

func TestPipeline_StageOrdering(t *testing.T) {
	m := New()
	var trace []string

	RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
		trace = append(trace, "H")
		return Pong{Reply: "ok"}, nil
	})
	RegisterPreProcessor(m, PreProcessorFunc[Ping](func(ctx context.Context, req Ping) error {
		trace = append(trace, "P")
		return nil
	}))
	RegisterBehaviorFunc(m, func(ctx context.Context, req Ping, next Next[Pong]) (Pong, error) {
		trace = append(trace, "B.before")
		res, err := next(ctx)
		trace = append(trace, "B.after")
		return res, err
	})
	RegisterPostProcessor(m, PostProcessorFunc[Ping, Pong](func(ctx context.Context, req Ping, res Pong) error {
		trace = append(trace, "Q")
		return nil
	}))

	_, err := m.Send(context.Background(), Ping{})
	require.NoError(t, err)
	assert.Equal(t, []string{"P", "B.before", "H", "B.after", "Q"}, trace)
}

func TestPipeline_FirstRegisteredBehaviorOutermost(t *testing.T) {
	m := New()
	var trace []string

	RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
		trace = append(trace, "H")
		return Pong{}, nil
	})
	for _, name := range []string{"B1", "B2"} {
		RegisterBehaviorFunc(m, func(ctx context.Context, req Ping, next Next[Pong]) (Pong, error) {
			trace = append(trace, name+".before")
			res, err := next(ctx)
			trace = append(trace, name+".after")
			return res, err
		})
	}

	_, err := m.Send(context.Background(), Ping{})
	require.NoError(t, err)
	assert.Equal(t, []string{"B1.before", "B2.before", "H", "B2.after", "B1.after"}, trace)
}

func TestPipeline_BehaviorTransformsResponse(t *testing.T) {
	m := New()
	RegisterHandlerFunc(m, func(ctx context.Context, req GetValue) (int, error) {
		return req.Input, nil
	})

	// DoubleIt wraps AddTen so the handler's value gains ten first, then
	// doubles on the way out: 5 -> 15 -> 30.
	RegisterBehaviorFunc(m, func(ctx context.Context, req GetValue, next Next[int]) (int, error) {
		v, err := next(ctx)
		if err != nil {
			return 0, err
		}
		return v * 2, nil
	})
	RegisterBehaviorFunc(m, func(ctx context.Context, req GetValue, next Next[int]) (int, error) {
		v, err := next(ctx)
		if err != nil {
			return 0, err
		}
		return v + 10, nil
	})

	got, err := Send[int](context.Background(), m, GetValue{Input: 5})
	require.NoError(t, err)
	assert.Equal(t, 30, got)
}

func TestPipeline_BehaviorShortCircuit(t *testing.T) {
	m := New()
	handlerRan := false
	RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
		handlerRan = true
		return Pong{Reply: "handler"}, nil
	})
	RegisterBehaviorFunc(m, func(ctx context.Context, req Ping, next Next[Pong]) (Pong, error) {
		return Pong{Reply: "short"}, nil
	})

	pong, err := Send[Pong](context.Background(), m, Ping{})
	require.NoError(t, err)
	assert.Equal(t, "short", pong.Reply)
	assert.False(t, handlerRan)
}

func TestPipeline_PreProcessorAborts(t *testing.T) {
	m := New()
	handlerRan := false
	wantErr := errors.New("rejected")

	RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
		handlerRan = true
		return Pong{}, nil
	})
	RegisterPreProcessor(m, PreProcessorFunc[Ping](func(ctx context.Context, req Ping) error {
		return wantErr
	}))

	_, err := m.Send(context.Background(), Ping{})
	require.ErrorIs(t, err, wantErr)
	assert.False(t, handlerRan)
}

func TestPipeline_PostProcessorAborts(t *testing.T) {
	m := New()
	handlerRan := false
	wantErr := errors.New("post failed")

	RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
		handlerRan = true
		return Pong{}, nil
	})
	RegisterPostProcessor(m, PostProcessorFunc[Ping, Pong](func(ctx context.Context, req Ping, res Pong) error {
		return wantErr
	}))

	_, err := m.Send(context.Background(), Ping{})
	require.ErrorIs(t, err, wantErr)
	assert.True(t, handlerRan)
}

func TestPipeline_ExceptionRecovery(t *testing.T) {
	m := New()
	RegisterHandlerFunc(m, func(ctx context.Context, req FlakyRequest) (string, error) {
		if req.Fail {
			return "", errors.New("This is fine")
		}
		return "ok", nil
	})
	RegisterExceptionHandler(m, ExceptionHandlerFunc[FlakyRequest, string](
		func(ctx context.Context, req FlakyRequest, err error, state *Recovery[string]) error {
			state.SetHandled("Recovered from: " + err.Error())
			return nil
		},
	))

	got, err := Send[string](context.Background(), m, FlakyRequest{Fail: true})
	require.NoError(t, err)
	assert.Equal(t, "Recovered from: This is fine", got)
}

func TestPipeline_ExceptionHandlersStopAtFirstRecovery(t *testing.T) {
	m := New()
	RegisterHandlerFunc(m, func(ctx context.Context, req FlakyRequest) (string, error) {
		return "", errors.New("boom")
	})

	secondRan := false
	RegisterExceptionHandler(m, ExceptionHandlerFunc[FlakyRequest, string](
		func(ctx context.Context, req FlakyRequest, err error, state *Recovery[string]) error {
			state.SetHandled("first")
			return nil
		},
	))
	RegisterExceptionHandler(m, ExceptionHandlerFunc[FlakyRequest, string](
		func(ctx context.Context, req FlakyRequest, err error, state *Recovery[string]) error {
			secondRan = true
			return nil
		},
	))

	got, err := Send[string](context.Background(), m, FlakyRequest{})
	require.NoError(t, err)
	assert.Equal(t, "first", got)
	assert.False(t, secondRan)
}

func TestPipeline_ExceptionHandlerReplacesError(t *testing.T) {
	m := New()
	RegisterHandlerFunc(m, func(ctx context.Context, req FlakyRequest) (string, error) {
		return "", errors.New("inner")
	})
	replacement := errors.New("replacement")
	RegisterExceptionHandler(m, ExceptionHandlerFunc[FlakyRequest, string](
		func(ctx context.Context, req FlakyRequest, err error, state *Recovery[string]) error {
			return replacement
		},
	))

	_, err := m.Send(context.Background(), FlakyRequest{})
	require.ErrorIs(t, err, replacement)
}

func TestPipeline_UnhandledErrorSurfacesUnchanged(t *testing.T) {
	m := New()
	wantErr := errors.New("unrecoverable")
	RegisterHandlerFunc(m, func(ctx context.Context, req FlakyRequest) (string, error) {
		return "", wantErr
	})
	RegisterExceptionHandler(m, ExceptionHandlerFunc[FlakyRequest, string](
		func(ctx context.Context, req FlakyRequest, err error, state *Recovery[string]) error {
			return nil
		},
	))

	_, err := m.Send(context.Background(), FlakyRequest{})
	require.ErrorIs(t, err, wantErr)
}

func TestPipeline_OpenBehaviors(t *testing.T) {
	t.Run("applies to every request type", func(t *testing.T) {
		m := New()
		RegisterHandler(m, PingHandler{})
		RegisterHandlerFunc(m, func(ctx context.Context, req GetValue) (int, error) {
			return req.Input, nil
		})

		var seen []string
		err := RegisterBehaviorForAll(m, func(requestType, responseType reflect.Type) AnyBehavior {
			return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
				seen = append(seen, fmt.Sprintf("%T", req))
				return next(ctx)
			})
		})
		require.NoError(t, err)

		_, err = m.Send(context.Background(), Ping{})
		require.NoError(t, err)
		_, err = m.Send(context.Background(), GetValue{Input: 1})
		require.NoError(t, err)
		assert.Equal(t, []string{"mediate.Ping", "mediate.GetValue"}, seen)
	})

	t.Run("factory may opt out per type", func(t *testing.T) {
		m := New()
		RegisterHandler(m, PingHandler{})

		err := RegisterBehaviorForAll(m, func(requestType, responseType reflect.Type) AnyBehavior {
			return nil
		})
		require.NoError(t, err)

		pong, err := Send[Pong](context.Background(), m, Ping{Message: "x"})
		require.NoError(t, err)
		assert.Equal(t, "Pong: x", pong.Reply)
	})

	t.Run("open and closed interleave by registration order", func(t *testing.T) {
		m := New()
		var trace []string
		RegisterHandlerFunc(m, func(ctx context.Context, req Ping) (Pong, error) {
			trace = append(trace, "H")
			return Pong{}, nil
		})
		RegisterBehaviorFunc(m, func(ctx context.Context, req Ping, next Next[Pong]) (Pong, error) {
			trace = append(trace, "closed")
			return next(ctx)
		})
		err := RegisterBehaviorForAll(m, func(requestType, responseType reflect.Type) AnyBehavior {
			return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
				trace = append(trace, "open")
				return next(ctx)
			})
		})
		require.NoError(t, err)

		_, err = m.Send(context.Background(), Ping{})
		require.NoError(t, err)
		assert.Equal(t, []string{"closed", "open", "H"}, trace)
	})

	t.Run("nil factory is a contract violation", func(t *testing.T) {
		m := New()
		assert.ErrorIs(t, RegisterBehaviorForAll(m, nil), ErrContract)
		assert.ErrorIs(t, RegisterPreProcessorForAll(m, nil), ErrContract)
		assert.ErrorIs(t, RegisterPostProcessorForAll(m, nil), ErrContract)
		assert.ErrorIs(t, RegisterExceptionHandlerForAll(m, nil), ErrContract)
		assert.ErrorIs(t, RegisterStreamBehaviorForAll(m, nil), ErrContract)
	})
}

func TestPipeline_CachedAcrossDispatches(t *testing.T) {
	m := New()
	var materialized int
	RegisterHandler(m, PingHandler{})
	err := RegisterBehaviorForAll(m, func(requestType, responseType reflect.Type) AnyBehavior {
		materialized++
		return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
			return next(ctx)
		})
	})
	require.NoError(t, err)

	for range 5 {
		_, err := m.Send(context.Background(), Ping{})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, materialized)
}
