package remote

import (
	"context"
	"sync"
	"time"
)

// slidingLimiter bounds requests to at most limit per rolling window of
// length period. The window is a list of request timestamps pruned to one
// period; it is mutated on every attempt, successful or not.
type slidingLimiter struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	stamps []time.Time
	now    func() time.Time
}

func newSlidingLimiter(limit int, period time.Duration) *slidingLimiter {
	return &slidingLimiter{
		limit:  limit,
		period: period,
		now:    time.Now,
	}
}

// Wait blocks until a request slot is free, then claims it. Returns the
// context error if ctx is cancelled while waiting.
func (l *slidingLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		l.prune(now)

		if len(l.stamps) < l.limit {
			l.stamps = append(l.stamps, now)
			l.mu.Unlock()
			return nil
		}

		// Oldest stamp leaving the window frees the next slot.
		wait := l.stamps[0].Add(l.period).Sub(now)
		l.mu.Unlock()

		if err := sleepCtx(ctx, wait); err != nil {
			return err
		}
	}
}

// WouldBlock reports the delay the next Wait would incur; zero when a slot
// is free. For metrics and tests.
func (l *slidingLimiter) WouldBlock() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.prune(now)
	if len(l.stamps) < l.limit {
		return 0
	}
	return l.stamps[0].Add(l.period).Sub(now)
}

// prune drops timestamps older than one period. Caller holds l.mu.
func (l *slidingLimiter) prune(now time.Time) {
	cutoff := now.Add(-l.period)
	i := 0
	for i < len(l.stamps) && !l.stamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[i:]...)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
