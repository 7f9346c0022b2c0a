package engine

import (
	"fmt"
	"time"

	"github.com/wavecalm/wavecalm/internal/guard"
	"github.com/wavecalm/wavecalm/internal/state"
	"github.com/wavecalm/wavecalm/internal/theme"
)

// Status is the diagnostics snapshot served to embedding hosts and the web
// control surface.
type Status struct {
	State              string        `json:"state"`
	TargetState        string        `json:"targetState"`
	Transitioning      bool          `json:"transitioning"`
	Theme              string        `json:"theme"`
	ThemeName          string        `json:"themeName"`
	ThemeTransitioning bool          `json:"themeTransitioning"`
	InError            bool          `json:"inError"`
	ErrorKind          string        `json:"errorKind,omitempty"`
	ErrorDetails       string        `json:"errorDetails,omitempty"`
	WaveCount          int           `json:"waveCount"`
	Amplitude          float64       `json:"amplitude"`
	Themes             []string      `json:"themes"`
	Metrics            guard.Metrics `json:"metrics"`
}

// Status returns the current engine snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.themes.ActiveID()
	name := active
	if t, ok := e.themes.Get(active); ok {
		name = t.Name
	}
	s := Status{
		State:              e.states.Current().String(),
		TargetState:        e.states.Target().String(),
		Transitioning:      e.states.IsTransitioning(),
		Theme:              active,
		ThemeName:          name,
		ThemeTransitioning: e.themes.IsTransitioning(),
		InError:            e.handler.IsInError(),
		WaveCount:          e.renderer.WaveCount(),
		Amplitude:          e.renderer.Amplitude(),
		Themes:             e.themes.IDs(),
		Metrics:            e.governor.Metrics(),
	}
	if ev := e.handler.Current(); ev != nil {
		s.ErrorKind = ev.Kind.String()
		s.ErrorDetails = ev.Details
	}
	return s
}

// SetTheme starts a timed transition to the named theme.
func (e *Engine) SetTheme(id string, duration time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.handler.IsInError() {
		return fmt.Errorf("theme change refused while error treatment is active")
	}
	return e.themes.SetTheme(id, duration)
}

// AddTheme registers a custom theme at runtime.
func (e *Engine) AddTheme(t theme.Theme) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.themes.AddCustom(t)
}

// RemoveTheme deletes a custom theme.
func (e *Engine) RemoveTheme(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.themes.RemoveCustom(id)
}

// RaiseError triggers the visual error treatment for a named kind.
func (e *Engine) RaiseError(kindName, details string) error {
	kind, ok := guard.ParseKind(kindName)
	if !ok {
		return fmt.Errorf("unknown error kind %q", kindName)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler.HandleError(kind, details)
	return nil
}

// Recover ends any active error treatment immediately.
func (e *Engine) Recover() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler.ForceRecovery()
}

// SetState requests a transition to the named lifecycle state.
func (e *Engine) SetState(name string, duration time.Duration, easing string) error {
	target, ok := state.Parse(name)
	if !ok {
		return fmt.Errorf("unknown state %q", name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if target == state.Error {
		e.handler.HandleError(guard.KindGeneral, "requested via control api")
		return nil
	}
	if e.handler.IsInError() {
		return fmt.Errorf("state change refused while error treatment is active")
	}
	e.states.TransitionTo(target, duration, easing)
	return nil
}
