package mediate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		s, err := SettingsFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "sequential", s.NotificationPublisher)
		assert.Equal(t, 0, s.MaxPublishConcurrency)
		assert.True(t, s.EnablePipelineContext)
		assert.False(t, s.EnableCausality)
		assert.False(t, s.LogDispatches)
		assert.Equal(t, "json", s.LogFormat)
		assert.Equal(t, "info", s.LogLevel)
	})

	t.Run("reads prefixed variables", func(t *testing.T) {
		t.Setenv("MEDIATE_NOTIFICATION_PUBLISHER", "parallel")
		t.Setenv("MEDIATE_MAX_PUBLISH_CONCURRENCY", "8")
		t.Setenv("MEDIATE_ENABLE_PIPELINE_CONTEXT", "false")
		t.Setenv("MEDIATE_ENABLE_CAUSALITY", "true")

		s, err := SettingsFromEnv()
		require.NoError(t, err)

		assert.Equal(t, "parallel", s.NotificationPublisher)
		assert.Equal(t, 8, s.MaxPublishConcurrency)
		assert.False(t, s.EnablePipelineContext)
		assert.True(t, s.EnableCausality)
	})

	t.Run("malformed value", func(t *testing.T) {
		t.Setenv("MEDIATE_MAX_PUBLISH_CONCURRENCY", "lots")

		_, err := SettingsFromEnv()
		assert.Error(t, err)
	})
}

func TestSettings_Options(t *testing.T) {
	t.Run("unknown publisher", func(t *testing.T) {
		_, err := Settings{NotificationPublisher: "carrier-pigeon"}.Options()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "carrier-pigeon")
	})

	t.Run("unknown log level", func(t *testing.T) {
		_, err := Settings{LogDispatches: true, LogFormat: "json", LogLevel: "shouty"}.Options()
		assert.Error(t, err)
	})
}

func TestNewFromSettings(t *testing.T) {
	t.Run("parallel publisher delivers", func(t *testing.T) {
		m, err := NewFromSettings(Settings{
			NotificationPublisher: "parallel",
			MaxPublishConcurrency: 2,
			EnablePipelineContext: true,
		})
		require.NoError(t, err)

		delivered := 0
		RegisterNotificationHandlerFunc(m, func(ctx context.Context, n UserCreated) error {
			delivered++
			return nil
		})
		require.NoError(t, m.Publish(context.Background(), UserCreated{}))
		assert.Equal(t, 1, delivered)
	})

	t.Run("disabled pipeline context", func(t *testing.T) {
		m, err := NewFromSettings(Settings{NotificationPublisher: "sequential"})
		require.NoError(t, err)

		scope := m.NewScope()
		defer scope.Close()
		assert.Nil(t, scope.PipelineContext())
	})

	t.Run("extra options are applied", func(t *testing.T) {
		var captured *Mediator
		m, err := NewFromSettings(
			Settings{NotificationPublisher: "sequential", EnablePipelineContext: true},
			func(m *Mediator) { captured = m },
		)
		require.NoError(t, err)
		assert.Same(t, m, captured)
	})

	t.Run("settings error propagates", func(t *testing.T) {
		_, err := NewFromSettings(Settings{NotificationPublisher: "smoke-signals"})
		assert.Error(t, err)
	})
}
