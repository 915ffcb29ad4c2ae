package mediate

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Reserved item and metric keys. Every item and metric key the library
// writes in a pipeline context lives under the "mediate." prefix; user keys
// outside that prefix are never touched. Timings recorded by the request
// pipeline are named after the request type.
const (
	// MetricDispatchCount counts every request dispatched while the
	// context was in scope.
	MetricDispatchCount = "mediate.dispatch.count"

	baggageItemKey   = "mediate.baggage"
	causalityItemKey = "mediate.causality.chain"
	currentIDItemKey = "mediate.causality.current"
)

// pcContextKey carries a *PipelineContext through a context.Context.
type pcContextKey struct{}

// WithPipelineContext embeds a pipeline context into ctx.
func WithPipelineContext(ctx context.Context, pc *PipelineContext) context.Context {
	return context.WithValue(ctx, pcContextKey{}, pc)
}

// PipelineContextFrom extracts the pipeline context from ctx, or nil when
// none is embedded.
func PipelineContextFrom(ctx context.Context) *PipelineContext {
	pc, _ := ctx.Value(pcContextKey{}).(*PipelineContext)
	return pc
}

// Timing is one completed timer measurement.
type Timing struct {
	Name     string
	Duration time.Duration
	Start    time.Time
}

// Metric is the running aggregate of one named series.
type Metric struct {
	Count int64
	Total float64
	Min   float64
	Max   float64
}

// Average returns Total/Count, or zero for an empty series.
func (m Metric) Average() float64 {
	if m.Count == 0 {
		return 0
	}
	return m.Total / float64(m.Count)
}

// PipelineContext is a per-scope bag of diagnostics shared by every dispatch
// in the scope: timers, metric aggregates, arbitrary items, and string
// baggage. All methods are safe for concurrent use; values stored in the
// items bag are the caller's to synchronize.
type PipelineContext struct {
	id string

	mu      sync.Mutex
	timings []Timing
	metrics map[string]Metric
	items   map[string]any
}

// NewPipelineContext creates an empty pipeline context with a fresh id.
func NewPipelineContext() *PipelineContext {
	return &PipelineContext{
		id:      uuid.NewString(),
		metrics: make(map[string]Metric),
		items:   make(map[string]any),
	}
}

// ID returns the context's unique id.
func (pc *PipelineContext) ID() string { return pc.id }

// Timer measures one interval. Stop is idempotent: the first call records
// the measurement, later calls are no-ops.
type Timer struct {
	pc    *PipelineContext
	name  string
	start time.Time

	mu      sync.Mutex
	stopped bool
	final   time.Duration
}

// StartTimer begins a named measurement. Each started timer contributes at
// most one timing entry, when stopped.
func (pc *PipelineContext) StartTimer(name string) *Timer {
	return &Timer{pc: pc, name: name, start: time.Now()}
}

// Stop ends the measurement and records it. Only the first call records.
func (t *Timer) Stop() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return t.final
	}
	t.stopped = true
	t.final = time.Since(t.start)

	t.pc.mu.Lock()
	t.pc.timings = append(t.pc.timings, Timing{Name: t.name, Duration: t.final, Start: t.start})
	t.pc.mu.Unlock()
	return t.final
}

// Elapsed returns the time since the timer started, or the recorded duration
// once stopped.
func (t *Timer) Elapsed() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return t.final
	}
	return time.Since(t.start)
}

// Timings returns a snapshot of every recorded measurement, in completion
// order.
func (pc *PipelineContext) Timings() []Timing {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	out := make([]Timing, len(pc.timings))
	copy(out, pc.timings)
	return out
}

// Record folds a sample into the named aggregate.
func (pc *PipelineContext) Record(name string, value float64) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	m, ok := pc.metrics[name]
	if !ok {
		pc.metrics[name] = Metric{Count: 1, Total: value, Min: value, Max: value}
		return
	}
	m.Count++
	m.Total += value
	if value < m.Min {
		m.Min = value
	}
	if value > m.Max {
		m.Max = value
	}
	pc.metrics[name] = m
}

// Increment adds delta to both the count and the total of the named
// aggregate, so Count doubles as a plain counter.
func (pc *PipelineContext) Increment(name string, delta int64) {
	v := float64(delta)
	pc.mu.Lock()
	defer pc.mu.Unlock()
	m, ok := pc.metrics[name]
	if !ok {
		pc.metrics[name] = Metric{Count: delta, Total: v, Min: v, Max: v}
		return
	}
	m.Count += delta
	m.Total += v
	if v < m.Min {
		m.Min = v
	}
	if v > m.Max {
		m.Max = v
	}
	pc.metrics[name] = m
}

// Metrics returns a snapshot of every aggregate keyed by name.
func (pc *PipelineContext) Metrics() map[string]Metric {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	return maps.Clone(pc.metrics)
}

// SetItem stores a value in the items bag.
func (pc *PipelineContext) SetItem(key string, value any) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	pc.items[key] = value
}

// Item reads a value from the items bag.
func (pc *PipelineContext) Item(key string) (any, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	v, ok := pc.items[key]
	return v, ok
}

// RemoveItem deletes a value from the items bag.
func (pc *PipelineContext) RemoveItem(key string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	delete(pc.items, key)
}

// SetBaggage stores a string pair that travels with the scope. Baggage lives
// in the items bag under a reserved key.
func (pc *PipelineContext) SetBaggage(key, value string) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	bag, _ := pc.items[baggageItemKey].(map[string]string)
	if bag == nil {
		bag = make(map[string]string)
		pc.items[baggageItemKey] = bag
	}
	bag[key] = value
}

// Baggage reads one baggage value.
func (pc *PipelineContext) Baggage(key string) (string, bool) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	bag, _ := pc.items[baggageItemKey].(map[string]string)
	v, ok := bag[key]
	return v, ok
}

// BaggageMap returns a snapshot of all baggage pairs.
func (pc *PipelineContext) BaggageMap() map[string]string {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	bag, _ := pc.items[baggageItemKey].(map[string]string)
	return maps.Clone(bag)
}
