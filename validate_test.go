package mediate

import (
	"context"
	"iter"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type CreateInvoice struct{ Amount int }

type VoidInvoice struct{ ID string }

type invoicesModule struct{}

func (invoicesModule) Register(m *Mediator) {
	RegisterHandlerFunc(m, func(ctx context.Context, req CreateInvoice) (string, error) {
		return "created", nil
	})
	RegisterBehaviorFunc(m, func(ctx context.Context, req CreateInvoice, next Next[string]) (string, error) {
		return next(ctx)
	})
}

type danglingStagesModule struct{}

func (danglingStagesModule) Register(m *Mediator) {
	RegisterBehaviorFunc(m, func(ctx context.Context, req VoidInvoice, next Next[string]) (string, error) {
		return next(ctx)
	})
	RegisterPreProcessor(m, PreProcessorFunc[Ping](func(ctx context.Context, req Ping) error {
		return nil
	}))
}

func TestValidateRegistrations(t *testing.T) {
	t.Run("complete modules pass", func(t *testing.T) {
		assert.NoError(t, ValidateRegistrations(invoicesModule{}))
	})

	t.Run("reports every stage without a handler", func(t *testing.T) {
		err := ValidateRegistrations(invoicesModule{}, danglingStagesModule{})
		require.Error(t, err)

		var cfgErr *InvalidConfigurationError
		require.ErrorAs(t, err, &cfgErr)
		assert.Equal(t, []string{"mediate.Ping", "mediate.VoidInvoice"}, cfgErr.Missing)
		assert.Contains(t, err.Error(), "mediate.VoidInvoice")
	})

	t.Run("open stages do not require handlers", func(t *testing.T) {
		m := New()
		require.NoError(t, RegisterBehaviorForAll(m, func(requestType, responseType reflect.Type) AnyBehavior {
			return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
				return next(ctx)
			})
		}))

		assert.NoError(t, m.Validate())
	})

	t.Run("stream handlers satisfy stream stages", func(t *testing.T) {
		m := New()
		RegisterStreamHandler(m, countHandler{})
		RegisterStreamBehavior(m, StreamBehaviorFunc[CountTo, int](
			func(ctx context.Context, req CountTo, next StreamNext[int]) iter.Seq2[int, error] {
				return next(ctx)
			},
		))

		assert.NoError(t, m.Validate())
	})
}

func TestRegisterModules_Order(t *testing.T) {
	m := New()
	RegisterModules(m, danglingStagesModule{}, invoicesModule{})

	// invoicesModule supplied the CreateInvoice handler, so only the
	// stages left dangling by the first module remain missing.
	err := m.Validate()
	var cfgErr *InvalidConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, []string{"mediate.Ping", "mediate.VoidInvoice"}, cfgErr.Missing)
}
