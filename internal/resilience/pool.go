package resilience

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent executions of expensive external work with a
// weighted semaphore. The validation backend routes every stage command
// through a shared Pool so parallel PR validations cannot exhaust the host.
type Pool struct {
	sem *semaphore.Weighted
}

// NewPool creates a Pool allowing at most limit concurrent executions.
// Limits below 1 are clamped to 1.
func NewPool(limit int) *Pool {
	if limit < 1 {
		limit = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(limit))}
}

// Run acquires a slot, runs fn, and releases the slot. It blocks while all
// slots are busy and returns ctx.Err() if the context ends while waiting.
// A nil Pool runs fn directly.
func (p *Pool) Run(ctx context.Context, fn func() error) error {
	if p == nil || p.sem == nil {
		return fn()
	}
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
