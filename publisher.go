package mediate

import (
	"context"
	"sync"

	"github.com/sourcegraph/conc/pool"
)

// Publisher delivers one notification to a set of handler invokers. The
// invokers arrive in registration order; the strategy decides sequencing
// and error aggregation.
type Publisher interface {
	Publish(ctx context.Context, invokers []NotificationInvoker, notification any) error
}

// SequentialPublisher delivers to each handler in registration order and
// stops at the first failure, which surfaces to the caller unchanged. This
// is the default strategy.
type SequentialPublisher struct{}

// NewSequentialPublisher creates the default in-order publisher.
func NewSequentialPublisher() *SequentialPublisher { return &SequentialPublisher{} }

// Publish implements the Publisher interface.
func (*SequentialPublisher) Publish(ctx context.Context, invokers []NotificationInvoker, notification any) error {
	for _, invoke := range invokers {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := invoke(ctx, notification); err != nil {
			return err
		}
	}
	return nil
}

// ParallelPublisher delivers to every handler concurrently and waits for all
// of them. Failures do not interrupt the other handlers; when one or more
// fail the collected failures surface as a *PublishError.
type ParallelPublisher struct {
	limit int
}

// ParallelOption configures a ParallelPublisher.
type ParallelOption func(*ParallelPublisher)

// WithMaxConcurrency caps how many handlers run at once. Zero or negative
// means no cap.
func WithMaxConcurrency(n int) ParallelOption {
	return func(p *ParallelPublisher) { p.limit = n }
}

// NewParallelPublisher creates a concurrent publisher.
func NewParallelPublisher(opts ...ParallelOption) *ParallelPublisher {
	p := &ParallelPublisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Publish implements the Publisher interface.
func (p *ParallelPublisher) Publish(ctx context.Context, invokers []NotificationInvoker, notification any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	workers := pool.New()
	if p.limit > 0 {
		workers = workers.WithMaxGoroutines(p.limit)
	}
	for _, invoke := range invokers {
		workers.Go(func() {
			if err := invoke(ctx, notification); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		})
	}
	workers.Wait()

	if len(errs) > 0 {
		return &PublishError{Errors: errs}
	}
	return nil
}
