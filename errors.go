package mediate

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNilRequest is returned when a nil request or notification is dispatched.
var ErrNilRequest = errors.New("mediate: nil request")

// ErrNoHandler is returned when no handler is bound for a request or stream
// request type. Use errors.Is to test for it; the surfaced error names the
// offending type.
var ErrNoHandler = errors.New("mediate: no handler registered")

// ErrContract is returned when a value crosses the untyped API without
// satisfying its declared shape: a typed Send whose response does not match
// the bound response type, an open registration given a nil factory, or a
// stage whose result cannot flow back into the typed pipeline.
var ErrContract = errors.New("mediate: contract violation")

// PublishError aggregates the failures of a parallel publish. Every inner
// failure is preserved; errors.Is and errors.As see through to each of them.
type PublishError struct {
	Errors []error
}

func (e *PublishError) Error() string {
	msgs := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		msgs[i] = err.Error()
	}
	return fmt.Sprintf("mediate: %d notification handler(s) failed: %s", len(e.Errors), strings.Join(msgs, "; "))
}

// Unwrap exposes the inner failures to errors.Is and errors.As.
func (e *PublishError) Unwrap() []error { return e.Errors }

// InvalidConfigurationError is returned by ValidateRegistrations when one or
// more request types have no bound handler. Missing lists every offending
// type name.
type InvalidConfigurationError struct {
	Missing []string
}

func (e *InvalidConfigurationError) Error() string {
	return fmt.Sprintf("mediate: invalid configuration: missing handlers for %s", strings.Join(e.Missing, ", "))
}
