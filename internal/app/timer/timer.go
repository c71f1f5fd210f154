// Package timer provides the pausable progress countdown that drives page advance.
package timer

import (
	"context"
	"sync"
	"time"
)

// DefaultTickInterval is how often progress is reported.
const DefaultTickInterval = 50 * time.Millisecond

// Clock abstracts time so the countdown can be driven deterministically.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// Ticker delivers periodic ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock returns a Clock backed by the wall clock.
func SystemClock() Clock {
	return systemClock{}
}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return toWallTime(time.Now())
}

func (systemClock) NewTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}

type systemTicker struct {
	t *time.Ticker
}

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// Listener receives the callbacks of one countdown run.
// Callbacks are invoked from the timer goroutine without any timer lock held.
type Listener struct {
	OnProgress func(progress float64) // progress in [0, 1)
	OnComplete func()                 // fired once when progress reaches 1
}

// ProgressTimer counts down a duration, reporting progress at a fixed interval.
// Paused intervals are excluded from elapsed time.
type ProgressTimer struct {
	mu sync.Mutex

	clock    Clock
	interval time.Duration

	// Current run
	listener      Listener
	duration      time.Duration
	startTime     time.Time
	pausedAt      time.Time
	pausedElapsed time.Duration
	paused        bool
	completed     bool
	stopped       bool

	run    uint64             // Incremented for every ticking goroutine
	cancel context.CancelFunc // Cancels the ticking goroutine
}

// New creates a new progress timer.
// A nil clock uses the wall clock; a non-positive interval uses DefaultTickInterval.
func New(clock Clock, interval time.Duration) *ProgressTimer {
	if clock == nil {
		clock = SystemClock()
	}
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	return &ProgressTimer{
		clock:    clock,
		interval: interval,
	}
}

// Start cancels any running countdown and starts a new one.
func (t *ProgressTimer) Start(duration time.Duration, l Listener) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTickingLocked()

	t.listener = l
	t.duration = duration
	t.startTime = t.clock.Now()
	t.pausedAt = time.Time{}
	t.pausedElapsed = 0
	t.paused = false
	t.completed = false
	t.stopped = false

	t.startTickingLocked()
}

// Pause stops ticking and records the pause instant.
// No-op if already paused, not started, stopped or completed.
func (t *ProgressTimer) Pause() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.paused || t.startTime.IsZero() || t.completed || t.stopped {
		return
	}

	t.stopTickingLocked()
	t.paused = true
	t.pausedAt = t.clock.Now()
}

// Resume continues a paused countdown with the same start instant.
// The paused interval is added to the accumulated pause time.
// A positive duration replaces the countdown duration. No-op if not paused.
func (t *ProgressTimer) Resume(duration time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.paused {
		return
	}

	t.pausedElapsed += t.clock.Now().Sub(t.pausedAt)
	t.pausedAt = time.Time{}
	t.paused = false
	if duration > 0 {
		t.duration = duration
	}

	t.startTickingLocked()
}

// Stop cancels ticking. Pause and Resume are no-ops until the next Start.
func (t *ProgressTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTickingLocked()
	t.paused = false
	t.stopped = true
}

// Reset cancels ticking and clears the start instant and accumulated pause time.
func (t *ProgressTimer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopTickingLocked()
	t.paused = false
	t.completed = false
	t.stopped = false
	t.startTime = time.Time{}
	t.pausedAt = time.Time{}
	t.pausedElapsed = 0
	t.duration = 0
}

// Paused reports whether the countdown is paused.
func (t *ProgressTimer) Paused() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.paused
}

// Progress returns the current progress in [0, 1].
func (t *ProgressTimer) Progress() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.startTime.IsZero() {
		return 0
	}
	if t.completed {
		return 1
	}

	now := t.clock.Now()
	if t.paused {
		now = t.pausedAt
	}
	return clamp(t.progressAtLocked(now))
}

func (t *ProgressTimer) progressAtLocked(now time.Time) float64 {
	if t.duration <= 0 {
		return 1
	}
	elapsed := now.Sub(t.startTime) - t.pausedElapsed
	return float64(elapsed) / float64(t.duration)
}

// startTickingLocked spawns the ticking goroutine for a new run.
// Must be called with lock held.
func (t *ProgressTimer) startTickingLocked() {
	t.run++
	run := t.run

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	ticker := t.clock.NewTicker(t.interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C():
				if !t.tick(run) {
					return
				}
			}
		}
	}()
}

// stopTickingLocked cancels the ticking goroutine.
// Must be called with lock held.
func (t *ProgressTimer) stopTickingLocked() {
	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	// Invalidate ticks that were already received by the old goroutine.
	t.run++
}

// tick computes progress for one tick and reports whether ticking continues.
func (t *ProgressTimer) tick(run uint64) bool {
	t.mu.Lock()
	if run != t.run || t.paused || t.completed {
		t.mu.Unlock()
		return false
	}

	progress := t.progressAtLocked(t.clock.Now())
	l := t.listener

	if progress >= 1.0 {
		t.completed = true
		t.stopTickingLocked()
		t.mu.Unlock()

		if l.OnComplete != nil {
			l.OnComplete()
		}
		return false
	}
	t.mu.Unlock()

	if l.OnProgress != nil {
		l.OnProgress(clamp(progress))
	}
	return true
}

func clamp(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	default:
		return p
	}
}

// toWallTime returns the time with monotonic clock stripped.
// Elapsed time is then measured on the wall clock, matching what the viewer sees.
func toWallTime(t time.Time) time.Time {
	return time.Unix(t.Unix(), int64(t.Nanosecond()))
}
