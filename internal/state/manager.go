// Package state implements the animation lifecycle state machine. Progress is
// pull-based: nothing advances unless Update is called, so interpolation can
// never drift relative to the render loop.
package state

import (
	"time"

	"github.com/rs/zerolog"
)

// State is one of the five lifecycle states.
type State int

const (
	Idle State = iota
	Listening
	Processing
	Speaking
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// Parse maps a state name onto a State.
func Parse(name string) (State, bool) {
	switch name {
	case "idle":
		return Idle, true
	case "listening":
		return Listening, true
	case "processing":
		return Processing, true
	case "speaking":
		return Speaking, true
	case "error":
		return Error, true
	default:
		return Idle, false
	}
}

// ColorRole names which theme color a state draws with.
type ColorRole int

const (
	RoleBaseline ColorRole = iota
	RoleUserInput
	RoleBotOutput
	RoleProcessing
	RoleError
)

func (r ColorRole) String() string {
	switch r {
	case RoleUserInput:
		return "userInput"
	case RoleBotOutput:
		return "botOutput"
	case RoleProcessing:
		return "processing"
	case RoleError:
		return "error"
	default:
		return "baseline"
	}
}

// Preset is the declarative visual configuration bound to one state. Presets
// are mutable at runtime and owned by the Manager.
type Preset struct {
	Amplitude float64   // [0,1]
	Frequency float64   // cycles per unit width, > 0
	Speed     float64   // phase advance multiplier, > 0
	ColorRole ColorRole
	Smoothing float64 // [0,1], exponential smoothing factor for live targets
}

// Snapshot is the interpolated per-frame output consumed by the renderer.
type Snapshot struct {
	State         State     // committed state
	Target        State     // transition target (== State when settled)
	Preset        Preset    // interpolated numeric fields, discrete color role
	FromRole      ColorRole // role blending endpoints for the renderer
	ToRole        ColorRole
	Transitioning bool
	EasedProgress float64 // 0 when settled, else eased t
}

// MinTransition is the floor applied to every requested duration so state
// changes stay non-jarring.
const MinTransition = 500 * time.Millisecond

type transitionCtx struct {
	from     State
	to       State
	fromP    Preset
	toP      Preset
	start    time.Time
	duration time.Duration
	easing   Easing
}

// Manager is the finite-state machine with eased, continuous interpolation.
type Manager struct {
	log     zerolog.Logger
	now     func() time.Time
	presets map[State]Preset
	current State
	trans   *transitionCtx
	last    Snapshot

	onTransitionStart func(from, to State)
	onStateChange     func(State)
	onTransitionEnd   func(State)
}

// DefaultPresets returns the built-in per-state configuration.
func DefaultPresets() map[State]Preset {
	return map[State]Preset{
		Idle:       {Amplitude: 0.30, Frequency: 0.020, Speed: 0.50, ColorRole: RoleBaseline, Smoothing: 0.05},
		Listening:  {Amplitude: 0.60, Frequency: 0.030, Speed: 1.00, ColorRole: RoleUserInput, Smoothing: 0.65},
		Processing: {Amplitude: 0.45, Frequency: 0.025, Speed: 0.75, ColorRole: RoleProcessing, Smoothing: 0.30},
		Speaking:   {Amplitude: 0.70, Frequency: 0.035, Speed: 1.20, ColorRole: RoleBotOutput, Smoothing: 0.60},
		Error:      {Amplitude: 0.20, Frequency: 0.015, Speed: 0.40, ColorRole: RoleError, Smoothing: 0.80},
	}
}

// NewManager starts settled in Idle.
func NewManager(log zerolog.Logger) *Manager {
	m := &Manager{
		log:     log.With().Str("component", "state").Logger(),
		now:     time.Now,
		presets: DefaultPresets(),
		current: Idle,
	}
	m.last = m.settledSnapshot()
	return m
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// OnTransitionStart registers the transition-accepted callback.
func (m *Manager) OnTransitionStart(fn func(from, to State)) { m.onTransitionStart = fn }

// OnStateChange registers the commit callback, fired exactly once per
// completed transition.
func (m *Manager) OnStateChange(fn func(State)) { m.onStateChange = fn }

// OnTransitionEnd registers the completion callback.
func (m *Manager) OnTransitionEnd(fn func(State)) { m.onTransitionEnd = fn }

// Current returns the committed state.
func (m *Manager) Current() State { return m.current }

// Target returns the in-flight transition target, or the committed state when
// settled.
func (m *Manager) Target() State {
	if m.trans != nil {
		return m.trans.to
	}
	return m.current
}

// IsTransitioning reports whether an interpolation is in flight.
func (m *Manager) IsTransitioning() bool { return m.trans != nil }

// Preset returns a copy of the preset bound to s.
func (m *Manager) Preset(s State) Preset { return m.presets[s] }

// UpdatePreset mutates a state's preset in place.
func (m *Manager) UpdatePreset(s State, mutate func(*Preset)) {
	p := m.presets[s]
	mutate(&p)
	m.presets[s] = p
}

// TransitionTo begins an eased transition. Same-state requests while settled
// are no-ops; both cases return false with a logged warning rather than an
// error, since callers treat them as advisory.
func (m *Manager) TransitionTo(target State, duration time.Duration, easingName string) bool {
	if target < Idle || target > Error {
		m.log.Warn().Int("state", int(target)).Msg("transition rejected: unknown state")
		return false
	}
	if target == m.current && m.trans == nil {
		m.log.Warn().Stringer("state", target).Msg("transition rejected: already in state")
		return false
	}
	if duration < MinTransition {
		duration = MinTransition
	}

	// Superseding an in-flight transition starts from the current
	// interpolated values so the wave never snaps.
	fromPreset := m.presets[m.current]
	fromState := m.current
	if m.trans != nil {
		fromPreset = m.last.Preset
		fromState = m.last.State
	}

	m.trans = &transitionCtx{
		from:     fromState,
		to:       target,
		fromP:    fromPreset,
		toP:      m.presets[target],
		start:    m.now(),
		duration: duration,
		easing:   EasingByName(easingName),
	}
	m.log.Debug().
		Stringer("from", fromState).
		Stringer("to", target).
		Dur("duration", duration).
		Msg("transition started")
	if m.onTransitionStart != nil {
		m.onTransitionStart(fromState, target)
	}
	return true
}

// ForceState snaps to a state with no interpolation. Error and init paths only.
func (m *Manager) ForceState(s State) {
	if s < Idle || s > Error {
		m.log.Warn().Int("state", int(s)).Msg("force-set rejected: unknown state")
		return
	}
	m.trans = nil
	changed := s != m.current
	m.current = s
	m.last = m.settledSnapshot()
	if changed && m.onStateChange != nil {
		m.onStateChange(s)
	}
}

// Update advances any in-flight transition and returns the interpolated
// snapshot. It must be called once per frame; it is the only way progress
// moves.
func (m *Manager) Update(now time.Time) Snapshot {
	tr := m.trans
	if tr == nil {
		m.last = m.settledSnapshot()
		return m.last
	}

	t := float64(now.Sub(tr.start)) / float64(tr.duration)
	if t >= 1 {
		m.current = tr.to
		m.trans = nil
		m.last = m.settledSnapshot()
		m.log.Debug().Stringer("state", tr.to).Msg("transition complete")
		if m.onStateChange != nil {
			m.onStateChange(tr.to)
		}
		if m.onTransitionEnd != nil {
			m.onTransitionEnd(tr.to)
		}
		return m.last
	}
	if t < 0 {
		t = 0
	}
	eased := tr.easing(t)

	p := Preset{
		Amplitude: lerp(tr.fromP.Amplitude, tr.toP.Amplitude, eased),
		Frequency: lerp(tr.fromP.Frequency, tr.toP.Frequency, eased),
		Speed:     lerp(tr.fromP.Speed, tr.toP.Speed, eased),
		Smoothing: lerp(tr.fromP.Smoothing, tr.toP.Smoothing, eased),
	}
	// Categorical field switches discretely at the eased midpoint; any color
	// blending happens downstream in the renderer.
	if eased < 0.5 {
		p.ColorRole = tr.fromP.ColorRole
	} else {
		p.ColorRole = tr.toP.ColorRole
	}

	m.last = Snapshot{
		State:         m.current,
		Target:        tr.to,
		Preset:        p,
		FromRole:      tr.fromP.ColorRole,
		ToRole:        tr.toP.ColorRole,
		Transitioning: true,
		EasedProgress: eased,
	}
	return m.last
}

func (m *Manager) settledSnapshot() Snapshot {
	p := m.presets[m.current]
	return Snapshot{
		State:    m.current,
		Target:   m.current,
		Preset:   p,
		FromRole: p.ColorRole,
		ToRole:   p.ColorRole,
	}
}

func lerp(a, b, t float64) float64 {
	return a*(1-t) + b*t
}
