package wave

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wavecalm/wavecalm/internal/analyzer"
	"github.com/wavecalm/wavecalm/internal/sched"
	"github.com/wavecalm/wavecalm/internal/state"
	"github.com/wavecalm/wavecalm/internal/theme"
)

type fakeSurface struct {
	w, h     int
	blits    int
	failNext error
	lastW    int
	lastH    int
	last     []theme.Color
}

func (f *fakeSurface) Size() (int, int) { return f.w, f.h }

func (f *fakeSurface) Blit(pixels []theme.Color, width, height int, status string) error {
	f.blits++
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return err
	}
	f.lastW, f.lastH = width, height
	f.last = append(f.last[:0], pixels...)
	return nil
}

func (f *fakeSurface) Close() error { return nil }

func testTheme() theme.Theme {
	return theme.Theme{
		ID: "t", Name: "T", Opacity: 0.85,
		Background: theme.MustHex("#101020"),
		Baseline:   theme.MustHex("#4050a0"),
		UserInput:  theme.MustHex("#60b0d0"),
		BotOutput:  theme.MustHex("#9070d0"),
		Accent:     theme.MustHex("#d0a050"),
		Gradient: []theme.GradientStop{
			{Offset: 0, Color: theme.MustHex("#101020")},
			{Offset: 1, Color: theme.MustHex("#202040")},
		},
	}
}

func newTestRenderer(t *testing.T, surface Surface) *Renderer {
	t.Helper()
	r, err := NewRenderer(zerolog.Nop(), surface, testTheme(), Config{})
	require.NoError(t, err)
	return r
}

func TestNewRendererRequiresSurface(t *testing.T) {
	_, err := NewRenderer(zerolog.Nop(), nil, testTheme(), Config{})
	assert.Error(t, err)
}

func TestSetTargetAmplitudeClamps(t *testing.T) {
	r := newTestRenderer(t, &fakeSurface{w: 20, h: 10})

	r.SetTargetAmplitude(math.NaN())
	assert.Equal(t, 0.0, r.targetAmplitude)

	r.SetTargetAmplitude(-5)
	assert.Equal(t, 0.0, r.targetAmplitude)

	r.SetTargetAmplitude(250)
	assert.Equal(t, 100.0, r.targetAmplitude)

	r.SetTargetAmplitude(42)
	assert.Equal(t, 42.0, r.targetAmplitude)
}

func TestUpdateSmoothsTowardTarget(t *testing.T) {
	r := newTestRenderer(t, &fakeSurface{w: 20, h: 10})
	snap := state.Snapshot{Preset: state.Preset{Amplitude: 0.5, Frequency: 0.02, Speed: 1, Smoothing: 0.5}}
	r.snap = snap
	r.targetAmplitude = 100

	r.Update(1.0 / 60)
	assert.InDelta(t, 50, r.amplitude, 1e-9)
	r.Update(1.0 / 60)
	assert.InDelta(t, 75, r.amplitude, 1e-9)

	prev := r.amplitude
	for i := 0; i < 50; i++ {
		r.Update(1.0 / 60)
		assert.GreaterOrEqual(t, r.amplitude, prev)
		prev = r.amplitude
	}
	assert.InDelta(t, 100, r.amplitude, 0.01)
}

func TestResponseVariantThresholds(t *testing.T) {
	r := newTestRenderer(t, &fakeSurface{w: 20, h: 10})

	r.amplitude = 29.9
	assert.Equal(t, variantGentle, r.responseVariant())
	r.amplitude = 30
	assert.Equal(t, variantFlowing, r.responseVariant())
	r.amplitude = 69.9
	assert.Equal(t, variantFlowing, r.responseVariant())
	r.amplitude = 70
	assert.Equal(t, variantPulsing, r.responseVariant())
}

func TestApplyStateSetsBaselineTargets(t *testing.T) {
	r := newTestRenderer(t, &fakeSurface{w: 20, h: 10})

	snap := state.Snapshot{Preset: state.DefaultPresets()[state.Listening]}
	r.ApplyState(snap)
	assert.InDelta(t, 0.6*100*0.5, r.targetAmplitude, 1e-9)

	// A live response keeps ownership of the targets.
	r.responseActive = true
	r.targetAmplitude = 80
	r.ApplyState(snap)
	assert.InDelta(t, 80, r.targetAmplitude, 1e-9)
}

func TestLiveFramesRequestTransitions(t *testing.T) {
	r := newTestRenderer(t, &fakeSurface{w: 20, h: 10})

	var requested []state.State
	r.SetTransitionRequester(func(s state.State) { requested = append(requested, s) })

	frame := analyzer.FeatureFrame{SmoothedAmplitude: 0.5, Frequency: 200}
	r.UpdateWithUserInput(frame)
	require.Equal(t, []state.State{state.Listening}, requested)

	r.snap.Target = state.Listening
	r.UpdateWithUserInput(frame)
	assert.Len(t, requested, 1, "no re-request while already targeting listening")

	r.UpdateWithBotResponse(frame)
	assert.Equal(t, []state.State{state.Listening, state.Speaking}, requested)
	assert.True(t, r.responseActive)

	r.TransitionToBaseline()
	assert.False(t, r.responseActive)
	assert.Equal(t, 0.0, r.targetFrequency)
}

func TestFallbackWaveCount(t *testing.T) {
	r := newTestRenderer(t, &fakeSurface{w: 20, h: 10})
	assert.Equal(t, DefaultWaveCount, r.WaveCount())

	r.ApplyFallback(Fallback{ID: "simplified", WaveCount: 3, Complexity: 0.5, AmplitudeScale: 0.6})
	assert.Equal(t, 3, r.WaveCount())
	assert.Equal(t, "simplified", r.ActiveFallback())

	r.ClearFallback()
	assert.Equal(t, DefaultWaveCount, r.WaveCount())
	assert.Equal(t, "", r.ActiveFallback())

	// A fallback wider than the configured stack grows the layer table.
	r.ApplyFallback(Fallback{ID: "wide", WaveCount: 9, Complexity: 1, AmplitudeScale: 1})
	assert.GreaterOrEqual(t, len(r.layers), 9)
}

func TestRenderFillsSurface(t *testing.T) {
	fake := &fakeSurface{w: 40, h: 12}
	r := newTestRenderer(t, fake)

	r.Render()
	require.Equal(t, 1, fake.blits)
	assert.Equal(t, 40, fake.lastW)
	assert.Equal(t, 12, fake.lastH)
	require.Len(t, fake.last, 40*12)
	assert.Equal(t, testTheme().Gradient[0].Color, fake.last[0], "top row carries the first gradient stop")
}

func TestRenderErrorTriggersFallbackDraw(t *testing.T) {
	fake := &fakeSurface{w: 40, h: 12, failNext: errors.New("device lost")}
	r := newTestRenderer(t, fake)

	var reported []error
	r.OnRenderError(func(err error) { reported = append(reported, err) })

	r.Render()
	require.Len(t, reported, 1)
	assert.Contains(t, reported[0].Error(), "device lost")
	assert.Equal(t, 2, fake.blits, "failed frame is answered with a fallback draw")
}

func TestRenderNeverPanics(t *testing.T) {
	fake := &fakeSurface{w: 0, h: 0}
	r := newTestRenderer(t, fake)

	var reported []error
	r.OnRenderError(func(err error) { reported = append(reported, err) })

	assert.NotPanics(t, func() { r.Render() })
	assert.Len(t, reported, 1)
}

func TestSchedulerDrivenLoop(t *testing.T) {
	fake := &fakeSurface{w: 20, h: 10}
	r := newTestRenderer(t, fake)
	manual := sched.NewManual(time.Unix(0, 0))

	r.Start(manual)
	manual.Tick()
	assert.Equal(t, 1, fake.blits)
	manual.Tick()
	assert.Equal(t, 2, fake.blits)

	r.Stop()
	manual.Tick()
	assert.Equal(t, 2, fake.blits, "no frames after stop")
}

func TestGradientAt(t *testing.T) {
	stops := []theme.GradientStop{
		{Offset: 0.2, Color: theme.MustHex("#000000")},
		{Offset: 0.8, Color: theme.MustHex("#ffffff")},
	}
	assert.Equal(t, stops[0].Color, gradientAt(stops, 0.0))
	assert.Equal(t, stops[0].Color, gradientAt(stops, 0.2))
	assert.Equal(t, stops[1].Color, gradientAt(stops, 0.95))
	mid := gradientAt(stops, 0.5)
	assert.InDelta(t, 128, int(mid.R), 2)
}

func TestDeriveLayers(t *testing.T) {
	layers := deriveLayers(7)
	require.Len(t, layers, 7)
	for i := 1; i < len(layers); i++ {
		assert.Less(t, layers[i].Amplitude, layers[i-1].Amplitude, "deeper layers are shallower")
		assert.Less(t, layers[i].Opacity, layers[i-1].Opacity, "deeper layers are fainter")
		assert.Greater(t, layers[i].Speed, layers[i-1].Speed)
	}
	assert.Len(t, deriveLayers(0), 1)
}
