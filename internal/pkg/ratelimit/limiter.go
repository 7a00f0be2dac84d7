// Package ratelimit provides an in-process sliding-window rate limiter with
// a concurrency cap and FIFO queued acquisition. Backpressure is applied by
// delaying completion, never by rejecting the caller.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/ignite/mailflow/internal/pkg/logger"
)

// Config bounds outbound calls to one external platform profile: at most
// MaxStarts operations may begin within any rolling Window, and at most
// MaxConcurrent may be in flight at once, independent of the window.
type Config struct {
	Window        time.Duration
	MaxStarts     int
	MaxConcurrent int
}

// ListPlatform is the profile for the external list-management platform.
var ListPlatform = Config{Window: time.Second, MaxStarts: 10, MaxConcurrent: 3}

// Limiter enforces a Config. Construct one per external profile with New;
// the zero value is not usable. Instances are independent, so tests can
// build isolated limiters with tight windows.
type Limiter struct {
	cfg Config

	mu       sync.Mutex
	starts   []time.Time     // start times still inside the window, oldest first
	inFlight int
	queue    []chan struct{} // FIFO waiters
	timerSet bool
	lastWarn time.Time
}

// New creates a Limiter. Non-positive fields fall back to the ListPlatform
// profile values.
func New(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = ListPlatform.Window
	}
	if cfg.MaxStarts <= 0 {
		cfg.MaxStarts = ListPlatform.MaxStarts
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = ListPlatform.MaxConcurrent
	}
	return &Limiter{cfg: cfg}
}

// Do runs op once a window slot and a concurrency slot are available,
// releasing the concurrency slot when op returns. Waiters are served in
// arrival order.
func (l *Limiter) Do(ctx context.Context, op func(ctx context.Context) error) error {
	if err := l.acquire(ctx); err != nil {
		return err
	}
	defer l.release()
	return op(ctx)
}

func (l *Limiter) acquire(ctx context.Context) error {
	l.mu.Lock()
	if len(l.queue) == 0 && l.readyLocked(time.Now()) {
		l.admitLocked(time.Now())
		l.mu.Unlock()
		return nil
	}

	w := make(chan struct{})
	l.queue = append(l.queue, w)
	if depth := len(l.queue); depth > l.cfg.MaxStarts {
		// Over-budget queues are a capacity signal, not an error.
		if now := time.Now(); now.Sub(l.lastWarn) >= l.cfg.Window {
			l.lastWarn = now
			logger.Warn("rate limiter queue exceeds window budget",
				"depth", depth, "budget", l.cfg.MaxStarts)
		}
	}
	l.scheduleWakeLocked()
	l.mu.Unlock()

	select {
	case <-w:
		return nil
	case <-ctx.Done():
		l.abandon(w)
		return ctx.Err()
	}
}

func (l *Limiter) release() {
	l.mu.Lock()
	l.inFlight--
	l.dispatchLocked(time.Now())
	l.mu.Unlock()
}

// readyLocked prunes expired starts and reports whether a new operation may
// begin right now.
func (l *Limiter) readyLocked(now time.Time) bool {
	cutoff := now.Add(-l.cfg.Window)
	i := 0
	for i < len(l.starts) && !l.starts[i].After(cutoff) {
		i++
	}
	l.starts = l.starts[i:]
	return l.inFlight < l.cfg.MaxConcurrent && len(l.starts) < l.cfg.MaxStarts
}

func (l *Limiter) admitLocked(now time.Time) {
	l.starts = append(l.starts, now)
	l.inFlight++
}

// dispatchLocked releases queued waiters in FIFO order while slots remain.
func (l *Limiter) dispatchLocked(now time.Time) {
	for len(l.queue) > 0 && l.readyLocked(now) {
		w := l.queue[0]
		l.queue = l.queue[1:]
		if w == nil { // abandoned
			continue
		}
		l.admitLocked(now)
		close(w)
	}
	if len(l.queue) > 0 {
		l.scheduleWakeLocked()
	}
}

// scheduleWakeLocked arms a timer for the moment the oldest windowed start
// expires, so queued waiters blocked only on the window get released.
func (l *Limiter) scheduleWakeLocked() {
	if l.timerSet || len(l.starts) == 0 {
		return
	}
	l.timerSet = true
	wait := time.Until(l.starts[0].Add(l.cfg.Window))
	if wait < 0 {
		wait = 0
	}
	time.AfterFunc(wait, func() {
		l.mu.Lock()
		l.timerSet = false
		l.dispatchLocked(time.Now())
		l.mu.Unlock()
	})
}

// abandon nils out a waiter slot so dispatch skips it. Slots are compacted
// lazily by dispatchLocked.
func (l *Limiter) abandon(w chan struct{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, q := range l.queue {
		if q == w {
			l.queue[i] = nil
			return
		}
	}
	// Not found: the waiter was released concurrently with cancellation and
	// holds a slot it will never use.
	l.inFlight--
	l.dispatchLocked(time.Now())
}
