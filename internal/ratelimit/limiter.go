// Package ratelimit throttles calls to external APIs with a rolling
// one-second window and exponential backoff after HTTP 429 responses.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const (
	window         = time.Second
	initialBackoff = 2 * time.Second
	maxBackoff     = 300 * time.Second
)

// Observer receives limiter events. The metrics package implements it.
type Observer interface {
	ObserveWait(limiter string, wait time.Duration)
	ObserveRateLimited(limiter string)
}

// Budget is a point-in-time view of a limiter.
type Budget struct {
	Name                string    `json:"name"`
	RequestsPerSecond   int       `json:"requests_per_second"`
	InWindow            int       `json:"in_window"`
	BackoffUntil        time.Time `json:"backoff_until,omitzero"`
	Consecutive429Count int       `json:"consecutive_429_count"`
}

// Limiter admits at most RequestsPerSecond calls in any trailing second.
// Each instance owns its state; limiters never share accounting.
type Limiter struct {
	name string
	rps  int

	mu           sync.Mutex
	stamps       []time.Time
	backoffUntil time.Time
	consecutive  int

	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
	observer Observer
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithSleeper overrides how the limiter waits.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(l *Limiter) {
		if sleep != nil {
			l.sleep = sleep
		}
	}
}

// WithObserver reports waits and 429s.
func WithObserver(observer Observer) Option {
	return func(l *Limiter) {
		l.observer = observer
	}
}

// New constructs a limiter. Non-positive rps is treated as 1.
func New(name string, rps int, opts ...Option) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	l := &Limiter{
		name:  name,
		rps:   rps,
		now:   time.Now,
		sleep: SleepWithContext,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Name returns the limiter label used in logs and metrics.
func (l *Limiter) Name() string { return l.name }

// Acquire blocks until a request slot is free or ctx is done.
func (l *Limiter) Acquire(ctx context.Context) error {
	var waited time.Duration
	defer func() {
		if l.observer != nil {
			l.observer.ObserveWait(l.name, waited)
		}
	}()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		wait, admitted := l.reserve()
		if admitted {
			return nil
		}
		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
		waited += wait
	}
}

// reserve records a request when the window has room, otherwise it returns
// how long to wait before trying again.
func (l *Limiter) reserve() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Before(l.backoffUntil) {
		return l.backoffUntil.Sub(now), false
	}
	l.purge(now)
	if len(l.stamps) < l.rps {
		l.stamps = append(l.stamps, now)
		return 0, true
	}
	return l.stamps[0].Add(window).Sub(now), false
}

func (l *Limiter) purge(now time.Time) {
	keep := 0
	for keep < len(l.stamps) && now.Sub(l.stamps[keep]) >= window {
		keep++
	}
	if keep > 0 {
		l.stamps = append(l.stamps[:0], l.stamps[keep:]...)
	}
}

// OnSuccess clears any backoff accumulated by earlier 429 responses.
func (l *Limiter) OnSuccess() {
	l.mu.Lock()
	l.consecutive = 0
	l.backoffUntil = time.Time{}
	l.mu.Unlock()
}

// OnRateLimited registers a 429 and returns the backoff the caller must honor.
func (l *Limiter) OnRateLimited() time.Duration {
	l.mu.Lock()
	l.consecutive++
	backoff := BackoffFor(l.consecutive)
	l.backoffUntil = l.now().Add(backoff)
	l.mu.Unlock()

	if l.observer != nil {
		l.observer.ObserveRateLimited(l.name)
	}
	return backoff
}

// Snapshot reports the limiter's current budget.
func (l *Limiter) Snapshot() Budget {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purge(l.now())
	return Budget{
		Name:                l.name,
		RequestsPerSecond:   l.rps,
		InWindow:            len(l.stamps),
		BackoffUntil:        l.backoffUntil,
		Consecutive429Count: l.consecutive,
	}
}

// BackoffFor returns min(2s * 2^(n-1), 300s) for the nth consecutive 429.
func BackoffFor(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	backoff := initialBackoff
	for i := 1; i < n; i++ {
		backoff *= 2
		if backoff >= maxBackoff {
			return maxBackoff
		}
	}
	return min(backoff, maxBackoff)
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
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
