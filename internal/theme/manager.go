package theme

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// DefaultTransition is used when SetTheme is called with a zero duration.
const DefaultTransition = 1000 * time.Millisecond

type transition struct {
	from     Theme
	to       Theme
	start    time.Time
	duration time.Duration
}

// Manager holds the fixed registry of predefined themes plus runtime-added
// custom themes and animates transitions between them.
type Manager struct {
	log        zerolog.Logger
	now        func() time.Time
	themes     map[string]Theme
	order      []string
	defined    map[string]bool // predefined, cannot be removed
	current    Theme
	active     string
	transition *transition
	onChange   func(Theme)
}

// NewManager builds a manager seeded with the predefined registry; the first
// predefined theme is active.
func NewManager(log zerolog.Logger) *Manager {
	m := &Manager{
		log:     log.With().Str("component", "theme").Logger(),
		now:     time.Now,
		themes:  make(map[string]Theme),
		defined: make(map[string]bool),
	}
	for _, t := range predefined() {
		m.themes[t.ID] = t
		m.order = append(m.order, t.ID)
		m.defined[t.ID] = true
	}
	m.active = m.order[0]
	m.current = m.themes[m.active]
	return m
}

// SetClock overrides the time source, for tests.
func (m *Manager) SetClock(now func() time.Time) { m.now = now }

// OnChange registers a callback invoked with the blended theme on every
// interpolation frame, and once at transition completion.
func (m *Manager) OnChange(fn func(Theme)) { m.onChange = fn }

// Current returns the theme as currently displayed, mid-blend included.
func (m *Manager) Current() Theme { return m.current }

// ActiveID returns the id of the theme being displayed or transitioned to.
func (m *Manager) ActiveID() string { return m.active }

// IsTransitioning reports whether a palette blend is in flight.
func (m *Manager) IsTransitioning() bool { return m.transition != nil }

// IDs returns all registered theme ids, predefined first.
func (m *Manager) IDs() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Get looks up a theme by id.
func (m *Manager) Get(id string) (Theme, bool) {
	t, ok := m.themes[id]
	return t, ok
}

// SetTheme starts a timed interpolation toward the named theme. It is
// rejected while another transition is in flight, or for unknown ids.
func (m *Manager) SetTheme(id string, duration time.Duration) error {
	if m.transition != nil {
		return fmt.Errorf("theme transition already in progress (to %q)", m.transition.to.ID)
	}
	target, ok := m.themes[id]
	if !ok {
		return fmt.Errorf("unknown theme %q", id)
	}
	if duration <= 0 {
		duration = DefaultTransition
	}
	if id == m.active && m.current.ID == id {
		return nil
	}
	m.transition = &transition{
		from:     m.current,
		to:       target,
		start:    m.now(),
		duration: duration,
	}
	m.active = id
	m.log.Debug().Str("theme", id).Dur("duration", duration).Msg("theme transition started")
	return nil
}

// SetThemeImmediate applies a theme with no blend. Used by the error handler
// to snap back on recovery.
func (m *Manager) SetThemeImmediate(id string) error {
	target, ok := m.themes[id]
	if !ok {
		return fmt.Errorf("unknown theme %q", id)
	}
	m.transition = nil
	m.active = id
	m.current = target
	m.notify()
	return nil
}

// ApplyOverride displays an ad-hoc palette (error tinting) without touching
// the registry or the active id.
func (m *Manager) ApplyOverride(t Theme) {
	m.transition = nil
	m.current = t
	m.notify()
}

// Update advances any in-flight transition. Call once per frame.
func (m *Manager) Update(now time.Time) {
	tr := m.transition
	if tr == nil {
		return
	}
	progress := float64(now.Sub(tr.start)) / float64(tr.duration)
	if progress >= 1 {
		m.current = tr.to
		m.transition = nil
		m.notify()
		m.log.Debug().Str("theme", tr.to.ID).Msg("theme transition complete")
		return
	}
	if progress < 0 {
		progress = 0
	}
	m.current = blend(tr.from, tr.to, easeInOutCubic(progress))
	m.notify()
}

// AddCustom registers a runtime theme. Required fields must be set; ids may
// not collide with predefined themes.
func (m *Manager) AddCustom(t Theme) error {
	if t.ID == "" || t.Name == "" {
		return fmt.Errorf("custom theme requires id and name")
	}
	if m.defined[t.ID] {
		return fmt.Errorf("theme id %q is predefined", t.ID)
	}
	if t.Opacity <= 0 || t.Opacity > 1 {
		return fmt.Errorf("custom theme %q: opacity must be in (0,1]", t.ID)
	}
	if len(t.Gradient) > 1 && !sort.SliceIsSorted(t.Gradient, func(i, j int) bool {
		return t.Gradient[i].Offset < t.Gradient[j].Offset
	}) {
		return fmt.Errorf("custom theme %q: gradient stops must be ordered by offset", t.ID)
	}
	if _, exists := m.themes[t.ID]; !exists {
		m.order = append(m.order, t.ID)
	}
	m.themes[t.ID] = t
	m.log.Info().Str("theme", t.ID).Msg("custom theme added")
	return nil
}

// RemoveCustom deletes a runtime theme. Predefined themes cannot be removed.
// Deleting the active theme falls back to the first predefined theme.
func (m *Manager) RemoveCustom(id string) error {
	if m.defined[id] {
		return fmt.Errorf("theme %q is predefined and cannot be removed", id)
	}
	if _, ok := m.themes[id]; !ok {
		return fmt.Errorf("unknown theme %q", id)
	}
	delete(m.themes, id)
	for i, o := range m.order {
		if o == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	if m.active == id {
		fallback := m.order[0]
		m.log.Warn().Str("removed", id).Str("fallback", fallback).Msg("active theme removed")
		return m.SetThemeImmediate(fallback)
	}
	return nil
}

func (m *Manager) notify() {
	if m.onChange != nil {
		m.onChange(m.current)
	}
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}
