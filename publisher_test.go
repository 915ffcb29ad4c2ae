package mediate

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type UserCreated struct {
	Username string
}

func TestPublish_Sequential(t *testing.T) {
	t.Run("delivers to every handler in order", func(t *testing.T) {
		m := New()
		var audit, welcome []string

		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			audit = append(audit, n.Username)
			return nil
		})
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			welcome = append(welcome, n.Username)
			return nil
		})

		err := m.Publish(context.Background(), UserCreated{Username: "jin_yang"})
		require.NoError(t, err)
		assert.Equal(t, []string{"jin_yang"}, audit)
		assert.Equal(t, []string{"jin_yang"}, welcome)
	})

	t.Run("first error aborts", func(t *testing.T) {
		m := New()
		wantErr := errors.New("first failed")
		secondRan := false

		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			return wantErr
		})
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			secondRan = true
			return nil
		})

		err := m.Publish(context.Background(), UserCreated{})
		require.ErrorIs(t, err, wantErr)
		assert.False(t, secondRan)
	})

	t.Run("zero handlers is a no-op", func(t *testing.T) {
		m := New()
		assert.NoError(t, m.Publish(context.Background(), UserCreated{}))
	})

	t.Run("nil notification", func(t *testing.T) {
		m := New()
		assert.ErrorIs(t, m.Publish(context.Background(), nil), ErrNilRequest)
	})

	t.Run("cancelled context stops delivery", func(t *testing.T) {
		m := New()
		ran := false
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			ran = true
			return nil
		})

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := m.Publish(ctx, UserCreated{})
		require.ErrorIs(t, err, context.Canceled)
		assert.False(t, ran)
	})
}

func TestPublish_Parallel(t *testing.T) {
	t.Run("delivers to every handler", func(t *testing.T) {
		m := New(WithPublisher(NewParallelPublisher()))

		var mu sync.Mutex
		var seen []string
		for range 4 {
			RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
				mu.Lock()
				seen = append(seen, n.Username)
				mu.Unlock()
				return nil
			})
		}

		err := m.Publish(context.Background(), UserCreated{Username: "jin_yang"})
		require.NoError(t, err)
		assert.Len(t, seen, 4)
	})

	t.Run("aggregates every failure", func(t *testing.T) {
		m := New(WithPublisher(NewParallelPublisher()))

		errA := errors.New("handler a")
		errB := errors.New("handler b")
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			return errA
		})
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			return nil
		})
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			return errB
		})

		err := m.Publish(context.Background(), UserCreated{})
		require.Error(t, err)

		var pubErr *PublishError
		require.ErrorAs(t, err, &pubErr)
		assert.Len(t, pubErr.Errors, 2)
		assert.ErrorIs(t, err, errA)
		assert.ErrorIs(t, err, errB)
	})

	t.Run("failures do not interrupt the others", func(t *testing.T) {
		m := New(WithPublisher(NewParallelPublisher(WithMaxConcurrency(1))))

		ran := 0
		var mu sync.Mutex
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			return errors.New("boom")
		})
		for range 3 {
			RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
				mu.Lock()
				ran++
				mu.Unlock()
				return nil
			})
		}

		err := m.Publish(context.Background(), UserCreated{})
		require.Error(t, err)
		assert.Equal(t, 3, ran)
	})
}

func TestPublish_HandlerFactoryPerDelivery(t *testing.T) {
	m := New()
	built := 0
	RegisterNotificationHandlerFactory(m, func() NotificationHandler[UserCreated] {
		built++
		return NotificationHandlerFunc[UserCreated](func(ctx context.Context, n UserCreated) error {
			return nil
		})
	})

	for range 2 {
		require.NoError(t, m.Publish(context.Background(), UserCreated{}))
	}
	assert.Equal(t, 2, built)
}
