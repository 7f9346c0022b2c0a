package guard

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecalm/wavecalm/internal/sched"
	"github.com/wavecalm/wavecalm/internal/state"
	"github.com/wavecalm/wavecalm/internal/theme"
	"github.com/wavecalm/wavecalm/internal/wave"
)

type handlerFixture struct {
	manual   *sched.Manual
	states   *state.Manager
	themes   *theme.Manager
	renderer *wave.Renderer
	handler  *Handler
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	manual := sched.NewManual(time.Unix(5000, 0))

	states := state.NewManager(zerolog.Nop())
	states.SetClock(manual.Now)
	themes := theme.NewManager(zerolog.Nop())
	themes.SetClock(manual.Now)

	renderer, err := wave.NewRenderer(zerolog.Nop(), &fakeSurface{w: 20, h: 10}, themes.Current(), wave.Config{})
	require.NoError(t, err)

	h := NewHandler(zerolog.Nop(), manual, states, themes, renderer)
	h.SetClock(manual.Now)

	return &handlerFixture{
		manual:   manual,
		states:   states,
		themes:   themes,
		renderer: renderer,
		handler:  h,
	}
}

func TestAudioErrorAutoRecovery(t *testing.T) {
	f := newHandlerFixture(t)
	require.NoError(t, f.themes.SetThemeImmediate("ocean-depth"))
	registry, _ := f.themes.Get("ocean-depth")

	f.handler.HandleError(KindAudioProcessing, "fft underrun")

	require.True(t, f.handler.IsInError())
	ev := f.handler.Current()
	require.NotNil(t, ev)
	assert.Equal(t, KindAudioProcessing, ev.Kind)
	assert.Equal(t, "ocean-depth", ev.PriorTheme)
	assert.NotEqual(t, registry, f.themes.Current(), "palette is tinted while in error")

	f.manual.Advance(700 * time.Millisecond)
	f.states.Update(f.manual.Now())
	assert.Equal(t, state.Error, f.states.Current())

	// Audio treatment runs 3s, then a 1s recovery delay.
	f.manual.Advance(3400 * time.Millisecond)

	assert.False(t, f.handler.IsInError())
	assert.Equal(t, registry, f.themes.Current(), "pre-error palette restored exactly")
	assert.Equal(t, "ocean-depth", f.themes.ActiveID())

	f.manual.Advance(time.Second)
	f.states.Update(f.manual.Now())
	assert.Equal(t, state.Idle, f.states.Current())
}

func TestRecoveryAlwaysLandsInIdle(t *testing.T) {
	f := newHandlerFixture(t)
	f.states.ForceState(state.Speaking)

	f.handler.HandleError(KindGeneral, "synthesis stalled")
	f.manual.Advance(700 * time.Millisecond)
	f.states.Update(f.manual.Now())
	require.Equal(t, state.Error, f.states.Current())

	// General treatment: 3s + 1.5s recovery delay.
	f.manual.Advance(4 * time.Second)
	require.False(t, f.handler.IsInError())

	f.manual.Advance(time.Second)
	f.states.Update(f.manual.Now())
	assert.Equal(t, state.Idle, f.states.Current(), "recovery does not resume speaking on its own")
}

func TestReplacementKeepsOriginalPriorContext(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.HandleError(KindAudioProcessing, "first")
	f.manual.Advance(time.Second)
	f.handler.HandleError(KindNetworkConnection, "second")

	ev := f.handler.Current()
	require.NotNil(t, ev)
	assert.Equal(t, KindNetworkConnection, ev.Kind)
	assert.Equal(t, "midnight-calm", ev.PriorTheme, "replacement keeps the pre-error theme, not the tinted one")

	// The first error's recovery timer (at +4s) must be gone.
	f.manual.Advance(4 * time.Second)
	assert.True(t, f.handler.IsInError())

	// Network treatment: 5s + 2s from the second error's start.
	f.manual.Advance(3 * time.Second)
	assert.False(t, f.handler.IsInError())

	registry, _ := f.themes.Get("midnight-calm")
	assert.Equal(t, registry, f.themes.Current())
}

func TestForceRecovery(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.HandleError(KindGeneral, "stuck")
	require.True(t, f.handler.IsInError())

	f.handler.ForceRecovery()
	assert.False(t, f.handler.IsInError())

	// The canceled timer must not fire a second recovery later.
	f.handler.ForceRecovery()
	f.manual.Advance(10 * time.Second)
	assert.False(t, f.handler.IsInError())
}

func TestWavePatternTweaksAreUndone(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.HandleError(KindRenderFailure, "draw failed")
	assert.Equal(t, 2, f.renderer.WaveCount(), "minimal pattern narrows the stack")

	f.handler.ForceRecovery()
	assert.Equal(t, wave.DefaultWaveCount, f.renderer.WaveCount())
}

func TestPerformanceErrorUsesFallbackMode(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.HandleError(KindPerformanceDegradation, "frame budget blown")
	assert.Equal(t, "simplified", f.renderer.ActiveFallback())

	f.handler.ForceRecovery()
	assert.Equal(t, "", f.renderer.ActiveFallback())
}

func TestErrorPresetRestoredAfterRecovery(t *testing.T) {
	f := newHandlerFixture(t)

	f.handler.HandleError(KindRenderFailure, "draw failed")
	tuned := f.states.Preset(state.Error)
	assert.InDelta(t, 0.12, tuned.Amplitude, 1e-9)
	assert.InDelta(t, 0.012, tuned.Frequency, 1e-9)

	f.handler.ForceRecovery()
	assert.Equal(t, state.DefaultPresets()[state.Error], f.states.Preset(state.Error))
}

func TestParseKind(t *testing.T) {
	for name, want := range map[string]Kind{
		"audio-processing":        KindAudioProcessing,
		"CANVAS_RENDERING":        KindRenderFailure,
		"NETWORK_CONNECTION":      KindNetworkConnection,
		"performance-degradation": KindPerformanceDegradation,
		"general":                 KindGeneral,
	} {
		got, ok := ParseKind(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := ParseKind("cosmic-rays")
	assert.False(t, ok, "unknown kinds are reported, not silently downgraded")
}

func TestConfigForCoversEveryKind(t *testing.T) {
	for _, k := range []Kind{KindAudioProcessing, KindRenderFailure, KindNetworkConnection, KindPerformanceDegradation, KindGeneral} {
		cfg := configFor(k)
		assert.Greater(t, cfg.Duration, time.Duration(0), k.String())
		assert.Greater(t, cfg.RecoveryDelay, time.Duration(0), k.String())
		assert.Greater(t, cfg.Amplitude, 0.0, k.String())
		assert.LessOrEqual(t, cfg.Amplitude, 25.0, "error amplitudes stay calm: %s", k)
		assert.NotEmpty(t, cfg.WavePattern, k.String())
	}
}
