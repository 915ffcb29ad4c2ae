package mediate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/tidwall/gjson"
)

// ErrInvalidJSON is returned when ingress input is not valid JSON.
var ErrInvalidJSON = errors.New("mediate: invalid JSON")

// ErrNoBinding is returned when no ingress binding matches a document.
var ErrNoBinding = errors.New("mediate: no binding matched")

// Document provides field access over a raw message for matcher evaluation
// and payload extraction.
type Document interface {
	// Has reports whether the path exists.
	Has(path string) bool

	// String returns the string value at path, or false when the path is
	// missing or not a string.
	String(path string) (string, bool)

	// Raw returns the raw encoded value at path, or false when missing.
	Raw(path string) ([]byte, bool)
}

// Inspector turns raw bytes into a Document. The default ingress inspector
// reads JSON through gjson; bring another Inspector for other envelope
// encodings.
type Inspector interface {
	Inspect(raw []byte) (Document, error)
}

// JSONInspector returns the gjson-backed Inspector.
func JSONInspector() Inspector { return jsonInspector{} }

type jsonInspector struct{}

func (jsonInspector) Inspect(raw []byte) (Document, error) {
	if !gjson.ValidBytes(raw) {
		return nil, ErrInvalidJSON
	}
	return jsonDocument{raw: raw}, nil
}

type jsonDocument struct {
	raw []byte
}

func (d jsonDocument) Has(path string) bool {
	return gjson.GetBytes(d.raw, path).Exists()
}

func (d jsonDocument) String(path string) (string, bool) {
	r := gjson.GetBytes(d.raw, path)
	if !r.Exists() || r.Type != gjson.String {
		return "", false
	}
	return r.String(), true
}

func (d jsonDocument) Raw(path string) ([]byte, bool) {
	r := gjson.GetBytes(d.raw, path)
	if !r.Exists() {
		return nil, false
	}
	return []byte(r.Raw), true
}

// Matcher decides whether a binding should claim a document. Matchers are
// cheap to evaluate compared to full decoding.
type Matcher interface {
	Match(doc Document) bool
}

// MatcherFunc is a function adapter for Matcher.
type MatcherFunc func(doc Document) bool

// Match implements the Matcher interface.
func (f MatcherFunc) Match(doc Document) bool { return f(doc) }

// HasFields matches when every path exists.
func HasFields(paths ...string) Matcher {
	return MatcherFunc(func(doc Document) bool {
		for _, p := range paths {
			if !doc.Has(p) {
				return false
			}
		}
		return true
	})
}

// FieldEquals matches when the path holds exactly the given string.
func FieldEquals(path, value string) Matcher {
	return MatcherFunc(func(doc Document) bool {
		s, ok := doc.String(path)
		return ok && s == value
	})
}

// AllOf matches when every matcher matches.
func AllOf(ms ...Matcher) Matcher {
	return MatcherFunc(func(doc Document) bool {
		for _, m := range ms {
			if !m.Match(doc) {
				return false
			}
		}
		return true
	})
}

// AnyOf matches when at least one matcher matches.
func AnyOf(ms ...Matcher) Matcher {
	return MatcherFunc(func(doc Document) bool {
		for _, m := range ms {
			if m.Match(doc) {
				return true
			}
		}
		return false
	})
}

// validatable is the interface for payload validation after decoding.
// Compatible with github.com/go-ozzo/ozzo-validation/v4.
type validatable interface {
	Validate() error
}

// OnMatchFunc is called after a binding claims a document. Use it to enrich
// the context with logging fields or trace spans; the returned context is
// used for the dispatch.
type OnMatchFunc func(ctx context.Context, binding string) context.Context

// OnDoneFunc is called after the dispatch completes, success or failure.
type OnDoneFunc func(ctx context.Context, binding string, duration time.Duration, err error)

// OnNoBindingFunc is called when no binding matches. Return nil to skip the
// message, return an error to fail. Multiple hooks run in order; the first
// error wins.
type OnNoBindingFunc func(ctx context.Context, raw []byte) error

// OnDecodeErrorFunc is called when payload decoding or validation fails.
// Return nil to skip the message, return an error to fail. Multiple hooks
// run in order; the first error wins.
type OnDecodeErrorFunc func(ctx context.Context, binding string, err error) error

type ingressHooks struct {
	onMatch       []OnMatchFunc
	onDone        []OnDoneFunc
	onNoBinding   []OnNoBindingFunc
	onDecodeError []OnDecodeErrorFunc
}

// Ingress maps raw envelope bytes onto mediator dispatches. Bindings pair a
// matcher with a registered request or notification type. The binding that
// matched the previous document is tried first, then the bindings in order;
// the first that matches claims the document, its payload is decoded, and
// the result goes through Send or Publish. When matchers overlap, the
// binding that claims a document can therefore depend on earlier documents.
//
// Usage:
//  1. Create an ingress with NewIngress
//  2. Add bindings with BindRequest and BindNotification
//  3. Feed raw messages to Process
//
// Ingress is safe for concurrent use after configuration. Do not add
// bindings after the first Process call.
type Ingress struct {
	m         *Mediator
	inspector Inspector
	bindings  []envelopeBinding
	hooks     ingressHooks

	// Adaptive ordering: try the last matched binding first.
	lastMatch atomic.Int64
}

type envelopeBinding struct {
	name     string
	match    Matcher
	dispatch func(ctx context.Context, doc Document, raw []byte) (any, error)
}

// IngressOption configures an Ingress.
type IngressOption func(*Ingress)

// WithInspector swaps the ingress inspector. The default reads JSON.
func WithInspector(i Inspector) IngressOption {
	return func(in *Ingress) {
		if i != nil {
			in.inspector = i
		}
	}
}

// WithOnMatch adds a hook called after a binding claims a document.
// Multiple hooks run in order, with the context chaining through each.
func WithOnMatch(fn OnMatchFunc) IngressOption {
	return func(in *Ingress) { in.hooks.onMatch = append(in.hooks.onMatch, fn) }
}

// WithOnDone adds a hook called after the dispatch completes.
func WithOnDone(fn OnDoneFunc) IngressOption {
	return func(in *Ingress) { in.hooks.onDone = append(in.hooks.onDone, fn) }
}

// WithOnNoBinding adds a hook called when no binding matches. Without any,
// an unmatched message fails with ErrNoBinding.
func WithOnNoBinding(fn OnNoBindingFunc) IngressOption {
	return func(in *Ingress) { in.hooks.onNoBinding = append(in.hooks.onNoBinding, fn) }
}

// WithOnDecodeError adds a hook called when decoding or validation fails.
// Without any, the decode error fails the message.
func WithOnDecodeError(fn OnDecodeErrorFunc) IngressOption {
	return func(in *Ingress) { in.hooks.onDecodeError = append(in.hooks.onDecodeError, fn) }
}

// NewIngress creates an ingress over a mediator.
func NewIngress(m *Mediator, opts ...IngressOption) *Ingress {
	in := &Ingress{m: m, inspector: JSONInspector()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// BindOption configures one binding.
type BindOption func(*bindConfig)

type bindConfig struct {
	name        string
	payloadPath string
}

// WithPayloadPath decodes the payload from a sub-document instead of the
// whole message, for envelopes that wrap their body under a field.
func WithPayloadPath(path string) BindOption {
	return func(c *bindConfig) { c.payloadPath = path }
}

// WithBindingName names the binding for error messages. The default is the
// bound Go type's name.
func WithBindingName(name string) BindOption {
	return func(c *bindConfig) { c.name = name }
}

// BindRequest routes matching documents to the handler registered for Req.
// Process returns the handler's response.
func BindRequest[Req any](in *Ingress, match Matcher, opts ...BindOption) {
	c := newBindConfig[Req](opts)
	in.bindings = append(in.bindings, envelopeBinding{
		name:  c.name,
		match: match,
		dispatch: func(ctx context.Context, doc Document, raw []byte) (any, error) {
			req, err := decodePayload[Req](c, doc, raw)
			if err != nil {
				return nil, err
			}
			return in.m.Send(ctx, req)
		},
	})
}

// BindNotification publishes matching documents to the handlers registered
// for N. Process returns a nil response.
func BindNotification[N any](in *Ingress, match Matcher, opts ...BindOption) {
	c := newBindConfig[N](opts)
	in.bindings = append(in.bindings, envelopeBinding{
		name:  c.name,
		match: match,
		dispatch: func(ctx context.Context, doc Document, raw []byte) (any, error) {
			n, err := decodePayload[N](c, doc, raw)
			if err != nil {
				return nil, err
			}
			return nil, in.m.Publish(ctx, n)
		},
	})
}

func newBindConfig[T any](opts []BindOption) bindConfig {
	c := bindConfig{name: typeOf[T]().String()}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// bindingError wraps decode and validation failures so Process can identify
// them for the decode-error hooks.
type bindingError struct {
	binding string
	stage   string
	err     error
}

func (e *bindingError) Error() string {
	return fmt.Sprintf("mediate: binding %s: %s: %v", e.binding, e.stage, e.err)
}

func (e *bindingError) Unwrap() error { return e.err }

func decodePayload[T any](c bindConfig, doc Document, raw []byte) (T, error) {
	var payload T
	body := raw
	if c.payloadPath != "" {
		b, ok := doc.Raw(c.payloadPath)
		if !ok {
			return payload, &bindingError{binding: c.name, stage: "decode", err: fmt.Errorf("payload path %q not found", c.payloadPath)}
		}
		body = b
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return payload, &bindingError{binding: c.name, stage: "decode", err: err}
	}

	if v, ok := any(payload).(validatable); ok {
		if err := v.Validate(); err != nil {
			return payload, &bindingError{binding: c.name, stage: "validate", err: err}
		}
	} else if v, ok := any(&payload).(validatable); ok {
		if err := v.Validate(); err != nil {
			return payload, &bindingError{binding: c.name, stage: "validate", err: err}
		}
	}
	return payload, nil
}

// Process inspects the raw message, finds a matching binding (the last
// matched binding first, then binding order), and dispatches through the
// mediator. Request bindings return the handler's
// response; notification bindings return nil. No matching binding fails
// with ErrNoBinding unless an OnNoBinding hook decides otherwise.
func (in *Ingress) Process(ctx context.Context, raw []byte) (any, error) {
	doc, err := in.inspector.Inspect(raw)
	if err != nil {
		return nil, err
	}

	b := in.matchBinding(doc)
	if b == nil {
		return nil, in.handleNoBinding(ctx, raw)
	}

	for _, fn := range in.hooks.onMatch {
		ctx = fn(ctx, b.name)
	}

	start := time.Now()
	res, err := b.dispatch(ctx, doc, raw)
	duration := time.Since(start)

	var berr *bindingError
	if errors.As(err, &berr) && len(in.hooks.onDecodeError) > 0 {
		err = nil
		for _, fn := range in.hooks.onDecodeError {
			if herr := fn(ctx, b.name, berr); herr != nil {
				err = herr
				break
			}
		}
		res = nil
	}

	for _, fn := range in.hooks.onDone {
		fn(ctx, b.name, duration, err)
	}
	return res, err
}

// handleNoBinding runs the no-binding hooks; the first error wins. Without
// hooks the message fails.
func (in *Ingress) handleNoBinding(ctx context.Context, raw []byte) error {
	for _, fn := range in.hooks.onNoBinding {
		if err := fn(ctx, raw); err != nil {
			return err
		}
	}
	if len(in.hooks.onNoBinding) > 0 {
		return nil
	}
	return ErrNoBinding
}

// matchBinding tries the last matched binding first, then scans in binding
// order.
func (in *Ingress) matchBinding(doc Document) *envelopeBinding {
	if li := in.lastMatch.Load(); li > 0 && int(li) <= len(in.bindings) {
		if b := &in.bindings[li-1]; b.match.Match(doc) {
			return b
		}
	}
	for i := range in.bindings {
		if in.bindings[i].match.Match(doc) {
			in.lastMatch.Store(int64(i + 1))
			return &in.bindings[i]
		}
	}
	return nil
}
