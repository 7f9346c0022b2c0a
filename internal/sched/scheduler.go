// Package sched abstracts frame scheduling and delayed callbacks so the
// engine can run over a real timer or simulated time in tests.
package sched

import (
	"sync"
	"time"
)

// Handle identifies a pending tick or delayed callback.
type Handle int64

// Scheduler schedules cooperative callbacks. Implementations must not run
// callbacks concurrently with each other; everything happens on one loop.
type Scheduler interface {
	// RequestTick schedules fn for the next frame boundary.
	RequestTick(fn func(now time.Time)) Handle
	// CancelTick drops a pending tick request.
	CancelTick(h Handle)
	// After runs fn once after d has elapsed.
	After(d time.Duration, fn func()) Handle
	// Cancel drops a pending delayed callback.
	Cancel(h Handle)
}

// Timers is the production Scheduler. Tick requests are served by the owner
// calling Drain from its frame loop; delayed callbacks are funneled through
// the same channel so they execute on the loop, never on a timer goroutine.
type Timers struct {
	mu      sync.Mutex
	next    Handle
	ticks   map[Handle]func(time.Time)
	pending chan func(time.Time)
	timers  map[Handle]*time.Timer
}

// NewTimers creates a timer-backed scheduler.
func NewTimers() *Timers {
	return &Timers{
		ticks:   make(map[Handle]func(time.Time)),
		pending: make(chan func(time.Time), 64),
		timers:  make(map[Handle]*time.Timer),
	}
}

func (t *Timers) RequestTick(fn func(time.Time)) Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.next++
	h := t.next
	t.ticks[h] = fn
	return h
}

func (t *Timers) CancelTick(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.ticks, h)
}

func (t *Timers) After(d time.Duration, fn func()) Handle {
	t.mu.Lock()
	t.next++
	h := t.next
	t.mu.Unlock()

	timer := time.AfterFunc(d, func() {
		t.mu.Lock()
		_, live := t.timers[h]
		delete(t.timers, h)
		t.mu.Unlock()
		if !live {
			return
		}
		select {
		case t.pending <- func(time.Time) { fn() }:
		default:
			// loop stalled beyond channel capacity; run inline rather than drop
			fn()
		}
	})

	t.mu.Lock()
	t.timers[h] = timer
	t.mu.Unlock()
	return h
}

func (t *Timers) Cancel(h Handle) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if timer, ok := t.timers[h]; ok {
		timer.Stop()
		delete(t.timers, h)
	}
}

// Drain runs all queued tick requests and matured delayed callbacks. The
// engine calls it once per frame from its loop goroutine.
func (t *Timers) Drain(now time.Time) {
	t.mu.Lock()
	ticks := t.ticks
	t.ticks = make(map[Handle]func(time.Time))
	t.mu.Unlock()

	for _, fn := range ticks {
		fn(now)
	}

	for {
		select {
		case fn := <-t.pending:
			fn(now)
		default:
			return
		}
	}
}

// Close cancels every outstanding timer.
func (t *Timers) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for h, timer := range t.timers {
		timer.Stop()
		delete(t.timers, h)
	}
	t.ticks = make(map[Handle]func(time.Time))
}
