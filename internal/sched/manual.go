package sched

import (
	"sort"
	"time"
)

// Manual is a Scheduler driven entirely by the caller, for tests. Time only
// moves when Advance is called; tick requests fire on the next Tick.
type Manual struct {
	now     time.Time
	next    Handle
	ticks   map[Handle]func(time.Time)
	delayed map[Handle]manualTimer
}

type manualTimer struct {
	at time.Time
	fn func()
}

// NewManual creates a manual scheduler anchored at start.
func NewManual(start time.Time) *Manual {
	return &Manual{
		now:     start,
		ticks:   make(map[Handle]func(time.Time)),
		delayed: make(map[Handle]manualTimer),
	}
}

func (m *Manual) RequestTick(fn func(time.Time)) Handle {
	m.next++
	m.ticks[m.next] = fn
	return m.next
}

func (m *Manual) CancelTick(h Handle) { delete(m.ticks, h) }

func (m *Manual) After(d time.Duration, fn func()) Handle {
	m.next++
	m.delayed[m.next] = manualTimer{at: m.now.Add(d), fn: fn}
	return m.next
}

func (m *Manual) Cancel(h Handle) { delete(m.delayed, h) }

// Now returns the simulated clock, suitable for injecting into managers.
func (m *Manual) Now() time.Time { return m.now }

// Tick fires all pending tick requests at the current simulated time.
func (m *Manual) Tick() {
	ticks := m.ticks
	m.ticks = make(map[Handle]func(time.Time))
	for _, h := range sortedHandles(ticks) {
		ticks[h](m.now)
	}
}

// Advance moves simulated time forward, firing matured delayed callbacks in
// deadline order.
func (m *Manual) Advance(d time.Duration) {
	target := m.now.Add(d)
	for {
		var (
			best   Handle
			bestAt time.Time
			found  bool
		)
		for h, t := range m.delayed {
			if t.at.After(target) {
				continue
			}
			if !found || t.at.Before(bestAt) || (t.at.Equal(bestAt) && h < best) {
				best, bestAt, found = h, t.at, true
			}
		}
		if !found {
			break
		}
		timer := m.delayed[best]
		delete(m.delayed, best)
		m.now = timer.at
		timer.fn()
	}
	m.now = target
}

func sortedHandles(set map[Handle]func(time.Time)) []Handle {
	out := make([]Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
