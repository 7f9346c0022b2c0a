package guard

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wavecalm/wavecalm/internal/sched"
	"github.com/wavecalm/wavecalm/internal/state"
	"github.com/wavecalm/wavecalm/internal/theme"
	"github.com/wavecalm/wavecalm/internal/wave"
)

// colorShiftAmount is how far error tinting pulls each palette color toward
// the kind's hue.
const colorShiftAmount = 0.30

// Event is one in-flight error treatment. At most one exists at a time; a
// new HandleError call unconditionally replaces it.
type Event struct {
	Kind       Kind
	Details    string
	Config     ErrorConfig
	Start      time.Time
	PriorState state.State // recorded for a future recovery policy; unused today
	PriorTheme string
}

// Handler converts domain errors into a temporary themed visual state with
// automatic timed recovery.
type Handler struct {
	log       zerolog.Logger
	scheduler sched.Scheduler
	now       func() time.Time

	states   *state.Manager
	themes   *theme.Manager
	renderer *wave.Renderer

	current       *Event
	recovery      sched.Handle
	errorFallback bool // fallback mode active only because of the error
	waveTweaked   bool
}

// NewHandler wires the handler to the components it drives.
func NewHandler(log zerolog.Logger, scheduler sched.Scheduler, states *state.Manager, themes *theme.Manager, renderer *wave.Renderer) *Handler {
	return &Handler{
		log:       log.With().Str("component", "errors").Logger(),
		scheduler: scheduler,
		now:       time.Now,
		states:    states,
		themes:    themes,
		renderer:  renderer,
	}
}

// SetClock overrides the time source, for tests.
func (h *Handler) SetClock(now func() time.Time) { h.now = now }

// IsInError reports whether an error treatment is active.
func (h *Handler) IsInError() bool { return h.current != nil }

// Current returns the active event, if any.
func (h *Handler) Current() *Event { return h.current }

// HandleAudioError reports a fault in the audio analysis path.
func (h *Handler) HandleAudioError(details string) { h.HandleError(KindAudioProcessing, details) }

// HandleRenderError reports a failed frame draw.
func (h *Handler) HandleRenderError(err error) {
	details := ""
	if err != nil {
		details = err.Error()
	}
	h.HandleError(KindRenderFailure, details)
}

// HandleNetworkError reports a transport fault.
func (h *Handler) HandleNetworkError(details string) { h.HandleError(KindNetworkConnection, details) }

// HandleError applies the kind's visual treatment and schedules automatic
// recovery. Any in-flight error is replaced, timer included; simultaneous
// distinct faults are not queued or merged.
func (h *Handler) HandleError(kind Kind, details string) {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error().Interface("panic", p).Msg("error treatment failed, using minimal feedback")
			h.minimalFeedback()
		}
	}()

	cfg := configFor(kind)

	priorTheme := h.themes.ActiveID()
	priorState := h.states.Current()
	if h.current != nil {
		h.log.Warn().
			Stringer("replaced", h.current.Kind).
			Stringer("with", kind).
			Msg("in-flight error replaced")
		// Keep the original pre-error context so recovery lands where the
		// user actually was.
		priorTheme = h.current.PriorTheme
		priorState = h.current.PriorState
		h.scheduler.Cancel(h.recovery)
		h.undoWaveTweaks()
	}

	h.current = &Event{
		Kind:       kind,
		Details:    details,
		Config:     cfg,
		Start:      h.now(),
		PriorState: priorState,
		PriorTheme: priorTheme,
	}

	h.log.Info().Stringer("kind", kind).Str("details", details).Msg("error visual treatment started")

	h.applyTint(cfg)
	h.applyWavePattern(cfg)

	// Gentle state shift: soft amplitude/frequency reduction with heavy
	// smoothing comes from the Error preset.
	h.states.UpdatePreset(state.Error, func(p *state.Preset) {
		p.Amplitude = cfg.Amplitude / 100.0
		p.Frequency = cfg.Frequency
		p.Smoothing = 0.8
	})
	if !h.states.TransitionTo(state.Error, 600*time.Millisecond, state.EasingGentle) {
		h.states.ForceState(state.Error)
	}
	h.renderer.SetTargetAmplitude(cfg.Amplitude)

	h.recovery = h.scheduler.After(cfg.Duration+cfg.RecoveryDelay, h.recover)
}

// ForceRecovery ends the active treatment immediately.
func (h *Handler) ForceRecovery() {
	if h.current == nil {
		return
	}
	h.scheduler.Cancel(h.recovery)
	h.recover()
}

func (h *Handler) recover() {
	defer func() {
		if p := recover(); p != nil {
			h.log.Error().Interface("panic", p).Msg("recovery failed, using minimal feedback")
			h.current = nil
			h.minimalFeedback()
		}
	}()

	ev := h.current
	if ev == nil {
		return
	}
	h.current = nil

	if err := h.themes.SetThemeImmediate(ev.PriorTheme); err != nil {
		h.log.Warn().Err(err).Str("theme", ev.PriorTheme).Msg("could not restore pre-error theme")
	}
	h.undoWaveTweaks()
	h.renderer.TransitionToBaseline()
	h.states.UpdatePreset(state.Error, func(p *state.Preset) {
		*p = state.DefaultPresets()[state.Error]
	})

	target := h.recoveryState(ev)
	if !h.states.TransitionTo(target, 800*time.Millisecond, state.EasingGentle) {
		h.states.ForceState(target)
	}

	h.log.Info().Stringer("kind", ev.Kind).Stringer("state", target).Msg("recovered from error")
}

// recoveryState decides where to land after an error. Always Idle for now:
// recovering into Listening would re-open the microphone path without the
// user asking. The pre-error state is kept on the event for a future policy.
func (h *Handler) recoveryState(*Event) state.State {
	return state.Idle
}

// applyTint pulls every palette color 30% toward the error hue.
func (h *Handler) applyTint(cfg ErrorConfig) {
	t := h.themes.Current()
	t.Background = theme.Shift(t.Background, theme.Scale(cfg.ColorShift, 0.25), colorShiftAmount)
	t.Baseline = theme.Shift(t.Baseline, cfg.ColorShift, colorShiftAmount)
	t.UserInput = theme.Shift(t.UserInput, cfg.ColorShift, colorShiftAmount)
	t.BotOutput = theme.Shift(t.BotOutput, cfg.ColorShift, colorShiftAmount)
	t.Accent = theme.Shift(t.Accent, cfg.ColorShift, colorShiftAmount)
	for i := range t.Gradient {
		t.Gradient[i].Color = theme.Shift(t.Gradient[i].Color, theme.Scale(cfg.ColorShift, 0.25), colorShiftAmount)
	}
	h.themes.ApplyOverride(t)
	h.renderer.UpdateTheme(t)
}

// applyWavePattern maps the treatment's pattern name onto renderer
// configuration; only "simplified" reaches for a fallback mode.
func (h *Handler) applyWavePattern(cfg ErrorConfig) {
	switch cfg.WavePattern {
	case "minimal":
		h.renderer.UpdateConfig(wave.Config{WaveCount: 2})
		h.waveTweaked = true
	case "interrupted":
		h.renderer.UpdateConfig(wave.Config{WaveCount: 3})
		h.waveTweaked = true
	case "simplified":
		if h.renderer.ActiveFallback() == "" {
			mode, _ := fallbackFor(LevelModerate)
			h.renderer.ApplyFallback(mode.Fallback)
			h.errorFallback = true
		}
	case "gentle", "calm":
		// amplitude/frequency reduction via the Error preset is enough
	}
}

func (h *Handler) undoWaveTweaks() {
	if h.waveTweaked {
		h.renderer.UpdateConfig(wave.Config{WaveCount: DefaultWaveCount()})
		h.waveTweaked = false
	}
	if h.errorFallback {
		h.renderer.ClearFallback()
		h.errorFallback = false
	}
}

// minimalFeedback is the last resort when the primary visual-feedback path
// itself fails: a brief background flash, then back to the current theme.
func (h *Handler) minimalFeedback() {
	defer func() { _ = recover() }()
	before := h.themes.Current()
	flash := before
	flash.Background = theme.Shift(before.Background, theme.MustHex("#5a4a3a"), 0.5)
	h.themes.ApplyOverride(flash)
	h.renderer.UpdateTheme(flash)
	h.scheduler.After(300*time.Millisecond, func() {
		h.themes.ApplyOverride(before)
		h.renderer.UpdateTheme(before)
	})
}

// DefaultWaveCount exposes the renderer default so recovery can restore it.
func DefaultWaveCount() int { return wave.DefaultWaveCount }
