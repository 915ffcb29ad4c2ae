package mediate

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Settings is the environment-driven configuration surface. Hosts that
// configure in code use Options directly; hosts that configure by
// environment load a Settings and hand it to NewFromSettings.
type Settings struct {
	// NotificationPublisher selects the Publish strategy: "sequential"
	// or "parallel".
	NotificationPublisher string `envconfig:"NOTIFICATION_PUBLISHER" default:"sequential"`

	// MaxPublishConcurrency caps parallel notification delivery. Zero
	// means no cap. Ignored by the sequential publisher.
	MaxPublishConcurrency int `envconfig:"MAX_PUBLISH_CONCURRENCY"`

	// EnablePipelineContext controls per-scope pipeline contexts.
	EnablePipelineContext bool `envconfig:"ENABLE_PIPELINE_CONTEXT" default:"true"`

	// EnableCausality turns on causality chain recording. Needs the
	// pipeline context.
	EnableCausality bool `envconfig:"ENABLE_CAUSALITY"`

	// LogDispatches turns on the dispatch logging behavior.
	LogDispatches bool `envconfig:"LOG_DISPATCHES"`

	// LogFormat is "json" or "console".
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// LogLevel is any zap level name.
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// SettingsFromEnv loads Settings from MEDIATE_-prefixed environment
// variables.
func SettingsFromEnv() (Settings, error) {
	var s Settings
	if err := envconfig.Process("mediate", &s); err != nil {
		return Settings{}, fmt.Errorf("mediate: load settings: %w", err)
	}
	return s, nil
}

// Options translates the settings into mediator options.
func (s Settings) Options() ([]Option, error) {
	var opts []Option

	switch s.NotificationPublisher {
	case "", "sequential":
	case "parallel":
		opts = append(opts, WithPublisher(NewParallelPublisher(WithMaxConcurrency(s.MaxPublishConcurrency))))
	default:
		return nil, fmt.Errorf("mediate: unknown notification publisher %q", s.NotificationPublisher)
	}

	if !s.EnablePipelineContext {
		opts = append(opts, DisablePipelineContext())
	}
	if s.EnableCausality {
		opts = append(opts, WithCausalityTracking(true))
	}
	if s.LogDispatches {
		logger, err := NewLogger(s.LogFormat, s.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithLogger(logger), WithDispatchLogging())
	}
	return opts, nil
}

// NewFromSettings builds a mediator from settings. Extra options apply
// after the settings-derived ones, so they win on conflict.
func NewFromSettings(s Settings, extra ...Option) (*Mediator, error) {
	opts, err := s.Options()
	if err != nil {
		return nil, err
	}
	return New(append(opts, extra...)...), nil
}
