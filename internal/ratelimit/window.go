// Package ratelimit provides admission control for a throttled external
// resource: a sliding token window plus fixed soft-pacing delays.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/diagramd/internal/logging"
)

// entry is one recorded call: when it happened and what it cost.
type entry struct {
	at   time.Time
	cost int
}

// Limiter tracks cost consumed against a capacity inside a trailing
// time window. Callers must Admit before calling the throttled resource
// and Consume the actual cost afterwards.
//
// A single Limiter is shared by every call site that draws on the same
// resource; the mutex serializes them.
type Limiter struct {
	mu       sync.Mutex
	capacity int
	window   time.Duration
	history  []entry

	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
	onWait func()

	log *logging.Logger
}

// LimiterOption configures a Limiter.
type LimiterOption func(*Limiter)

// WithClock overrides the time source and sleeper, for tests.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) LimiterOption {
	return func(l *Limiter) {
		l.now = now
		l.sleep = sleep
	}
}

// WithLimiterLogger sets the logger. Defaults to a no-op logger.
func WithLimiterLogger(log *logging.Logger) LimiterOption {
	return func(l *Limiter) { l.log = log }
}

// WithWaitHook registers a callback invoked each time Admit has to
// wait for window capacity. Used for instrumentation.
func WithWaitHook(fn func()) LimiterOption {
	return func(l *Limiter) { l.onWait = fn }
}

// NewLimiter creates a limiter with the given capacity and window.
func NewLimiter(capacity int, window time.Duration, opts ...LimiterOption) *Limiter {
	l := &Limiter{
		capacity: capacity,
		window:   window,
		now:      time.Now,
		sleep:    sleepCtx,
		log:      logging.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// prune drops entries older than the window. Callers hold the mutex.
func (l *Limiter) prune() {
	cutoff := l.now().Add(-l.window)
	kept := l.history[:0]
	for _, e := range l.history {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	l.history = kept
}

// usage returns the cost sum inside the window. Callers hold the mutex.
func (l *Limiter) usage() int {
	l.prune()
	total := 0
	for _, e := range l.history {
		total += e.cost
	}
	return total
}

// Usage returns the current cost sum inside the window and the capacity.
func (l *Limiter) Usage() (used, capacity int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.usage(), l.capacity
}

// Consume records cost spent by a completed call.
func (l *Limiter) Consume(cost int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, entry{at: l.now(), cost: cost})
	l.prune()
}

// Admit blocks until estimated cost fits under capacity.
//
// If current usage plus the estimate would exceed capacity, Admit waits
// for a full reset: it blocks until the oldest entry falls outside the
// window, so the window is empty before the caller proceeds. Waiting is
// interruptible through ctx.
func (l *Limiter) Admit(ctx context.Context, estimated int) error {
	for {
		l.mu.Lock()
		used := l.usage()
		if used+estimated <= l.capacity || len(l.history) == 0 {
			l.mu.Unlock()
			return nil
		}

		oldest := l.history[0].at
		for _, e := range l.history[1:] {
			if e.at.Before(oldest) {
				oldest = e.at
			}
		}
		wait := l.window - l.now().Sub(oldest)
		l.mu.Unlock()

		if wait <= 0 {
			continue
		}

		if l.onWait != nil {
			l.onWait()
		}
		l.log.Info(ctx, "window at capacity, waiting for full reset",
			zap.Int("used", used),
			zap.Int("capacity", l.capacity),
			zap.Duration("wait", wait))

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}

		// The oldest entry has now expired; prune and clear what is
		// left of the drained window before re-checking.
		l.mu.Lock()
		l.prune()
		l.mu.Unlock()
	}
}
