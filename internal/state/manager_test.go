package state

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *time.Time) {
	m := NewManager(zerolog.Nop())
	now := time.Unix(1000, 0)
	m.SetClock(func() time.Time { return now })
	return m, &now
}

func TestTransitionDurationFloor(t *testing.T) {
	m, now := newTestManager()

	require.True(t, m.TransitionTo(Listening, 10*time.Millisecond, EasingLinear))

	snap := m.Update(now.Add(300 * time.Millisecond))
	assert.True(t, snap.Transitioning, "a 10ms request must still be in flight at 300ms")
	assert.Equal(t, Idle, m.Current())
	assert.Equal(t, Listening, m.Target())

	snap = m.Update(now.Add(499 * time.Millisecond))
	assert.True(t, snap.Transitioning)

	snap = m.Update(now.Add(500 * time.Millisecond))
	assert.False(t, snap.Transitioning)
	assert.Equal(t, Listening, m.Current())
}

func TestStateChangeFiresExactlyOnce(t *testing.T) {
	m, now := newTestManager()

	changes := 0
	m.OnStateChange(func(s State) {
		changes++
		assert.Equal(t, Listening, s)
	})

	require.True(t, m.TransitionTo(Listening, 600*time.Millisecond, EasingInOut))

	for ms := 0; ms <= 2000; ms += 50 {
		m.Update(now.Add(time.Duration(ms) * time.Millisecond))
	}
	assert.Equal(t, 1, changes)
}

func TestSupersedeStartsFromInterpolatedValues(t *testing.T) {
	m, now := newTestManager()

	require.True(t, m.TransitionTo(Listening, time.Second, EasingLinear))
	mid := m.Update(now.Add(500 * time.Millisecond))
	require.True(t, mid.Transitioning)
	assert.InDelta(t, 0.45, mid.Preset.Amplitude, 1e-9) // halfway Idle 0.30 -> Listening 0.60

	at := now.Add(500 * time.Millisecond)
	m.SetClock(func() time.Time { return at })
	require.True(t, m.TransitionTo(Processing, time.Second, EasingLinear))

	start := m.Update(at)
	assert.True(t, start.Transitioning)
	assert.InDelta(t, mid.Preset.Amplitude, start.Preset.Amplitude, 1e-9,
		"superseding must continue from the interpolated value, not snap")
}

func TestColorRoleSwitchesAtEasedMidpoint(t *testing.T) {
	m, now := newTestManager()

	require.True(t, m.TransitionTo(Listening, time.Second, EasingLinear))

	early := m.Update(now.Add(400 * time.Millisecond))
	assert.Equal(t, RoleBaseline, early.Preset.ColorRole)
	assert.Equal(t, RoleBaseline, early.FromRole)
	assert.Equal(t, RoleUserInput, early.ToRole)

	late := m.Update(now.Add(600 * time.Millisecond))
	assert.Equal(t, RoleUserInput, late.Preset.ColorRole)
}

func TestTransitionRejections(t *testing.T) {
	m, _ := newTestManager()

	assert.False(t, m.TransitionTo(Idle, time.Second, EasingLinear), "settled same-state request")
	assert.False(t, m.TransitionTo(State(42), time.Second, EasingLinear), "unknown state")
	assert.True(t, m.TransitionTo(Speaking, time.Second, EasingLinear))
}

func TestForceState(t *testing.T) {
	m, now := newTestManager()

	changes := 0
	m.OnStateChange(func(State) { changes++ })

	require.True(t, m.TransitionTo(Listening, time.Second, EasingLinear))
	m.ForceState(Error)

	assert.Equal(t, Error, m.Current())
	assert.False(t, m.IsTransitioning())
	assert.Equal(t, 1, changes)

	snap := m.Update(now.Add(5 * time.Second))
	assert.Equal(t, Error, snap.State)
	assert.Equal(t, 1, changes, "abandoned transition must not commit later")
}

func TestUpdatePreset(t *testing.T) {
	m, now := newTestManager()

	m.UpdatePreset(Idle, func(p *Preset) { p.Amplitude = 0.9 })
	snap := m.Update(*now)
	assert.InDelta(t, 0.9, snap.Preset.Amplitude, 1e-9)
	assert.InDelta(t, 0.3, DefaultPresets()[Idle].Amplitude, 1e-9, "defaults stay untouched")
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []State{Idle, Listening, Processing, Speaking, Error} {
		got, ok := Parse(s.String())
		require.True(t, ok, s.String())
		assert.Equal(t, s, got)
	}
	_, ok := Parse("daydreaming")
	assert.False(t, ok)
}
