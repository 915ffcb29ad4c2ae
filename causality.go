package mediate

import (
	"context"
	"crypto/rand"
	"reflect"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// BaggageRequestID is the baggage key a host sets to name the root request
// id of a scope, for example an id carried in from an upstream system. When
// absent, the causality behavior mints a fresh ULID.
const BaggageRequestID = "request_id"

// CausalityEntry is one edge in a scope's dispatch chain. ParentID is empty
// for top-level dispatches.
type CausalityEntry struct {
	ID       string
	ParentID string
	Request  string
	At       time.Time
}

// CausalityChain returns a snapshot of the dispatch chain recorded in this
// context, in dispatch order.
func (pc *PipelineContext) CausalityChain() []CausalityEntry {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	chain, _ := pc.items[causalityItemKey].([]CausalityEntry)
	out := make([]CausalityEntry, len(chain))
	copy(out, chain)
	return out
}

func (pc *PipelineContext) appendCausality(e CausalityEntry) {
	pc.mu.Lock()
	defer pc.mu.Unlock()
	chain, _ := pc.items[causalityItemKey].([]CausalityEntry)
	pc.items[causalityItemKey] = append(chain, e)
}

var ulidEntropy = sync.Pool{
	New: func() any { return ulid.Monotonic(rand.Reader, 0) },
}

func newCausalityID() string {
	entropy := ulidEntropy.Get().(*ulid.MonotonicEntropy)
	defer ulidEntropy.Put(entropy)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// causalityBehaviorFactory records a chain entry per dispatch. A top-level
// dispatch takes its id from the request_id baggage when set, otherwise a
// fresh ULID; nested dispatches always mint fresh ids with the enclosing
// dispatch as parent. Without a pipeline context in scope the behavior is
// a passthrough.
func causalityBehaviorFactory() BehaviorFactory {
	return func(requestType, responseType reflect.Type) AnyBehavior {
		name := requestType.String()
		return AnyBehaviorFunc(func(ctx context.Context, req any, next Next[any]) (any, error) {
			pc := PipelineContextFrom(ctx)
			if pc == nil {
				return next(ctx)
			}

			parent := ""
			if v, ok := pc.Item(currentIDItemKey); ok {
				parent, _ = v.(string)
			}
			id := ""
			if parent == "" {
				if v, ok := pc.Baggage(BaggageRequestID); ok {
					id = v
				}
			}
			if id == "" {
				id = newCausalityID()
			}

			pc.appendCausality(CausalityEntry{ID: id, ParentID: parent, Request: name, At: time.Now()})
			pc.SetItem(currentIDItemKey, id)
			defer func() {
				if parent == "" {
					pc.RemoveItem(currentIDItemKey)
				} else {
					pc.SetItem(currentIDItemKey, parent)
				}
			}()

			return next(ctx)
		})
	}
}
