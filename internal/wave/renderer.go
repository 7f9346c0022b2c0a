// Package wave owns the per-frame procedural synthesis of the layered
// waveform and draws it onto a Surface. Live audio-driven targets blend with
// the state-machine baseline; rendering never panics out of this package.
package wave

import (
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/wavecalm/wavecalm/internal/analyzer"
	"github.com/wavecalm/wavecalm/internal/sched"
	"github.com/wavecalm/wavecalm/internal/state"
	"github.com/wavecalm/wavecalm/internal/theme"
)

// Config controls renderer construction. Zero fields fall back to defaults.
type Config struct {
	WaveCount         int     // layers, default 7
	MaxAmplitude      float64 // ceiling of the live amplitude scale, default 100
	BaselineSmoothing float64 // slow smoothing factor while idle, default 0.05
}

func (c Config) withDefaults() Config {
	if c.WaveCount <= 0 {
		c.WaveCount = DefaultWaveCount
	}
	if c.MaxAmplitude <= 0 {
		c.MaxAmplitude = 100
	}
	if c.BaselineSmoothing <= 0 {
		c.BaselineSmoothing = 0.05
	}
	return c
}

// Fallback is a rendering-complexity preset pushed in by the performance
// governor or the error handler.
type Fallback struct {
	ID             string
	WaveCount      int
	Complexity     float64 // (0,1], scales harmonic term count
	AmplitudeScale float64
}

// response synthesis variants, selected by live response amplitude.
const (
	variantGentle  = "gentle"
	variantFlowing = "flowing"
	variantPulsing = "pulsing"

	gentleBelow  = 30.0
	flowingBelow = 70.0
)

type opacityTable struct {
	Base         float64
	BotPrimary   float64
	BotSecondary float64
	BotTertiary  float64
}

// opacityFromScalar reconstructs the full table when a theme only carries the
// single opacity scalar.
func opacityFromScalar(o float64) opacityTable {
	if o <= 0 || o > 1 {
		o = 0.85
	}
	return opacityTable{
		Base:         o,
		BotPrimary:   math.Min(1, o*1.05),
		BotSecondary: o * 0.65,
		BotTertiary:  o * 0.38,
	}
}

// Renderer synthesizes and draws the wave stack.
type Renderer struct {
	log     zerolog.Logger
	surface Surface
	cfg     Config
	layers  []LayerParams
	th      theme.Theme
	opacity opacityTable

	snap state.Snapshot

	// continuous live values, eased toward targets each update
	amplitude float64 // 0..MaxAmplitude
	frequency float64 // Hz
	phase     float64
	influence [analyzer.HarmonicCount]float64

	targetAmplitude float64
	targetFrequency float64
	targetInfluence [analyzer.HarmonicCount]float64

	responseActive bool
	fallback       *Fallback

	buffer []theme.Color
	bw, bh int
	status string

	onRenderError     func(error)
	requestTransition func(state.State)

	scheduler sched.Scheduler
	tick      sched.Handle
	running   bool
	lastTick  time.Time
}

// NewRenderer builds a renderer over the given surface. A nil surface is a
// construction-time failure: there is nothing to draw on.
func NewRenderer(log zerolog.Logger, surface Surface, th theme.Theme, cfg Config) (*Renderer, error) {
	if surface == nil {
		return nil, fmt.Errorf("wave: no drawable surface")
	}
	cfg = cfg.withDefaults()
	r := &Renderer{
		log:     log.With().Str("component", "wave").Logger(),
		surface: surface,
		cfg:     cfg,
		layers:  deriveLayers(cfg.WaveCount),
		th:      th,
		opacity: opacityFromScalar(th.Opacity),
	}
	r.snap = state.Snapshot{Preset: state.DefaultPresets()[state.Idle]}
	return r, nil
}

// OnRenderError registers the callback invoked when a frame draw fails.
func (r *Renderer) OnRenderError(fn func(error)) { r.onRenderError = fn }

// SetTransitionRequester wires the callback used to ask the state machine for
// a live-activity transition.
func (r *Renderer) SetTransitionRequester(fn func(state.State)) { r.requestTransition = fn }

// SetStatus sets the status line drawn under the frame.
func (r *Renderer) SetStatus(s string) { r.status = s }

// WaveCount returns the layer count currently drawn (fallback included).
func (r *Renderer) WaveCount() int {
	if r.fallback != nil {
		return r.fallback.WaveCount
	}
	return r.cfg.WaveCount
}

// Amplitude returns the current smoothed live amplitude.
func (r *Renderer) Amplitude() float64 { return r.amplitude }

// Start begins the cooperative render loop on the scheduler.
func (r *Renderer) Start(s sched.Scheduler) {
	if r.running {
		return
	}
	r.scheduler = s
	r.running = true
	r.lastTick = time.Time{}
	r.tick = s.RequestTick(r.step)
}

// Stop cancels the pending frame request.
func (r *Renderer) Stop() {
	if !r.running {
		return
	}
	r.running = false
	if r.scheduler != nil {
		r.scheduler.CancelTick(r.tick)
	}
}

func (r *Renderer) step(now time.Time) {
	if !r.running {
		return
	}
	dt := 1.0 / 60.0
	if !r.lastTick.IsZero() {
		if d := now.Sub(r.lastTick).Seconds(); d > 0 {
			dt = d
		}
	}
	r.lastTick = now

	r.Update(dt)
	r.Render()

	if r.running {
		r.tick = r.scheduler.RequestTick(r.step)
	}
}

// ApplyState feeds the interpolated state snapshot for this frame.
func (r *Renderer) ApplyState(snap state.Snapshot) {
	r.snap = snap
	if !r.responseActive {
		// Baseline targets follow the preset when no live source is active.
		r.targetAmplitude = snap.Preset.Amplitude * r.cfg.MaxAmplitude * 0.5
		r.targetFrequency = 0
	}
}

// UpdateTheme swaps the palette. The opacity table is rebuilt from the
// theme's scalar so nested opacity structure survives partial themes.
func (r *Renderer) UpdateTheme(th theme.Theme) {
	r.th = th
	r.opacity = opacityFromScalar(th.Opacity)
}

// UpdateConfig merges non-zero fields into the active configuration. A wave
// count change recomputes every layer.
func (r *Renderer) UpdateConfig(cfg Config) {
	if cfg.MaxAmplitude > 0 {
		r.cfg.MaxAmplitude = cfg.MaxAmplitude
	}
	if cfg.BaselineSmoothing > 0 {
		r.cfg.BaselineSmoothing = cfg.BaselineSmoothing
	}
	if cfg.WaveCount > 0 && cfg.WaveCount != r.cfg.WaveCount {
		r.cfg.WaveCount = cfg.WaveCount
		r.layers = deriveLayers(cfg.WaveCount)
	}
}

// ApplyFallback activates a degraded rendering mode.
func (r *Renderer) ApplyFallback(f Fallback) {
	if f.WaveCount > len(r.layers) {
		r.layers = deriveLayers(f.WaveCount)
	}
	r.fallback = &f
	r.log.Info().Str("mode", f.ID).Int("waves", f.WaveCount).Msg("fallback mode enabled")
}

// ClearFallback restores normal rendering complexity.
func (r *Renderer) ClearFallback() {
	if r.fallback == nil {
		return
	}
	r.log.Info().Str("mode", r.fallback.ID).Msg("fallback mode disabled")
	r.fallback = nil
	r.layers = deriveLayers(r.cfg.WaveCount)
}

// ActiveFallback returns the current fallback mode id, or "".
func (r *Renderer) ActiveFallback() string {
	if r.fallback == nil {
		return ""
	}
	return r.fallback.ID
}

// SetTargetAmplitude clamps any input into [0, MaxAmplitude].
func (r *Renderer) SetTargetAmplitude(v float64) {
	if math.IsNaN(v) || v < 0 {
		v = 0
	}
	if v > r.cfg.MaxAmplitude {
		v = r.cfg.MaxAmplitude
	}
	r.targetAmplitude = v
}

// UpdateWithUserInput applies a live feature frame from the microphone path
// and requests a Listening transition when not already there.
func (r *Renderer) UpdateWithUserInput(f analyzer.FeatureFrame) {
	r.applyFrame(f)
	r.responseActive = false
	if r.requestTransition != nil && r.snap.Target != state.Listening {
		r.requestTransition(state.Listening)
	}
}

// UpdateWithBotResponse applies a live feature frame from the speech output
// path and requests a Speaking transition when not already there.
func (r *Renderer) UpdateWithBotResponse(f analyzer.FeatureFrame) {
	r.applyFrame(f)
	r.responseActive = true
	if r.requestTransition != nil && r.snap.Target != state.Speaking {
		r.requestTransition(state.Speaking)
	}
}

// TransitionToBaseline resets the live targets to the baseline preset.
func (r *Renderer) TransitionToBaseline() {
	r.responseActive = false
	for i := range r.targetInfluence {
		r.targetInfluence[i] = 0
	}
	r.targetFrequency = 0
	r.targetAmplitude = r.snap.Preset.Amplitude * r.cfg.MaxAmplitude * 0.5
}

func (r *Renderer) applyFrame(f analyzer.FeatureFrame) {
	r.SetTargetAmplitude(f.SmoothedAmplitude * r.cfg.MaxAmplitude)
	if f.Frequency > 0 {
		r.targetFrequency = f.Frequency
	}
	r.targetInfluence = f.Harmonics
}

// Update advances the continuous values toward their targets using
// exponential smoothing, with the factor taken from the active state so
// speech states react fast and idle drifts slowly.
func (r *Renderer) Update(dt float64) {
	factor := r.snap.Preset.Smoothing
	if factor <= 0 {
		factor = r.cfg.BaselineSmoothing
	}
	if factor > 1 {
		factor = 1
	}

	r.amplitude += (r.targetAmplitude - r.amplitude) * factor
	r.frequency += (r.targetFrequency - r.frequency) * factor
	for i := range r.influence {
		r.influence[i] += (r.targetInfluence[i] - r.influence[i]) * factor
	}

	r.phase += dt * 2.4 * r.snap.Preset.Speed
	if r.phase > 2*math.Pi*1e6 {
		r.phase = math.Mod(r.phase, 2*math.Pi)
	}
}

// Render draws one frame. Draw failures are reported through the render-error
// callback and answered with a minimal fallback draw; nothing propagates.
func (r *Renderer) Render() {
	if err := r.renderFrame(); err != nil {
		r.log.Error().Err(err).Msg("render failed, drawing fallback")
		if r.onRenderError != nil {
			r.onRenderError(err)
		}
		if err := r.renderFallback(); err != nil {
			// Last resort: flat background, swallow everything.
			r.flatFill()
		}
	}
}

func (r *Renderer) renderFrame() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("render panic: %v", p)
		}
	}()

	w, h := r.surface.Size()
	r.ensureBuffer(w, h)
	r.paintBackground(w, h)

	waveCount := r.cfg.WaveCount
	ampScale := 1.0
	complexity := 1.0
	if r.fallback != nil {
		waveCount = r.fallback.WaveCount
		ampScale = r.fallback.AmplitudeScale
		complexity = r.fallback.Complexity
	}
	if waveCount > len(r.layers) {
		waveCount = len(r.layers)
	}

	useResponse := r.responseActive && (r.snap.Preset.ColorRole == state.RoleBotOutput ||
		r.snap.Target == state.Speaking)

	for i := 0; i < waveCount; i++ {
		lp := r.layers[i]
		col, opacity := r.layerColor(i, useResponse, lp)
		r.drawLayer(w, h, lp, col, opacity, ampScale, complexity, useResponse)
	}

	return r.surface.Blit(r.buffer, w, h, r.status)
}

// renderFallback draws a flat background with one static sine line so the
// surface is never left in an undefined visual state.
func (r *Renderer) renderFallback() (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("fallback draw panic: %v", p)
		}
	}()

	w, h := r.surface.Size()
	r.ensureBuffer(w, h)
	for i := range r.buffer {
		r.buffer[i] = r.th.Background
	}
	mid := float64(h) / 2
	for x := 0; x < w; x++ {
		y := int(mid + math.Sin(float64(x)*0.08)*mid*0.25)
		r.blendPixel(x, y, w, h, r.th.Baseline, 0.8)
	}
	return r.surface.Blit(r.buffer, w, h, "")
}

func (r *Renderer) flatFill() {
	defer func() { _ = recover() }()
	w, h := r.surface.Size()
	r.ensureBuffer(w, h)
	for i := range r.buffer {
		r.buffer[i] = r.th.Background
	}
	_ = r.surface.Blit(r.buffer, w, h, "")
}

func (r *Renderer) ensureBuffer(w, h int) {
	if w <= 0 || h <= 0 {
		panic(fmt.Sprintf("surface reported invalid size %dx%d", w, h))
	}
	if r.bw != w || r.bh != h || len(r.buffer) != w*h {
		r.buffer = make([]theme.Color, w*h)
		r.bw, r.bh = w, h
	}
}

// paintBackground fills the buffer from the theme gradient, top to bottom.
func (r *Renderer) paintBackground(w, h int) {
	stops := r.th.Gradient
	if len(stops) == 0 {
		for i := range r.buffer {
			r.buffer[i] = r.th.Background
		}
		return
	}
	for y := 0; y < h; y++ {
		pos := 0.0
		if h > 1 {
			pos = float64(y) / float64(h-1)
		}
		col := gradientAt(stops, pos)
		row := r.buffer[y*w : (y+1)*w]
		for x := range row {
			row[x] = col
		}
	}
}

func gradientAt(stops []theme.GradientStop, pos float64) theme.Color {
	if pos <= stops[0].Offset {
		return stops[0].Color
	}
	for i := 1; i < len(stops); i++ {
		if pos <= stops[i].Offset {
			span := stops[i].Offset - stops[i-1].Offset
			t := 1.0
			if span > 0 {
				t = (pos - stops[i-1].Offset) / span
			}
			return theme.Interpolate(stops[i-1].Color, stops[i].Color, t)
		}
	}
	return stops[len(stops)-1].Color
}

// layerColor resolves a layer's color and opacity from the current role and
// theme, blending by eased progress while a state transition is in flight.
func (r *Renderer) layerColor(index int, useResponse bool, lp LayerParams) (theme.Color, float64) {
	if useResponse {
		// Response layers alternate between two theme colors for depth and
		// use the dedicated response opacity table.
		col := r.th.BotOutput
		if index%2 == 1 {
			col = r.th.Accent
		}
		opacity := r.opacity.BotTertiary
		switch index {
		case 0:
			opacity = r.opacity.BotPrimary
		case 1:
			opacity = r.opacity.BotSecondary
		}
		return col, opacity
	}

	col := r.roleColor(r.snap.Preset.ColorRole)
	if r.snap.Transitioning {
		from := r.roleColor(r.snap.FromRole)
		to := r.roleColor(r.snap.ToRole)
		col = theme.Interpolate(from, to, r.snap.EasedProgress)
	}
	return col, r.opacity.Base * lp.Opacity
}

func (r *Renderer) roleColor(role state.ColorRole) theme.Color {
	switch role {
	case state.RoleUserInput:
		return r.th.UserInput
	case state.RoleBotOutput:
		return r.th.BotOutput
	case state.RoleProcessing:
		return r.th.Accent
	case state.RoleError:
		// Error tinting shifts the baseline rather than introducing a new
		// palette slot; the error handler owns the stronger treatment.
		return theme.Shift(r.th.Baseline, theme.MustHex("#d28a6f"), 0.5)
	default:
		return r.th.Baseline
	}
}

func (r *Renderer) drawLayer(w, h int, lp LayerParams, col theme.Color, opacity, ampScale, complexity float64, useResponse bool) {
	if opacity <= 0.01 {
		return
	}
	center := float64(h)/2 + lp.VerticalOffset*float64(h)
	halfSpan := float64(h) / 2 * 0.85

	baseAmp := r.blendedAmplitude() * lp.Amplitude * ampScale
	freq := r.spatialFrequency() * lp.Frequency
	phase := r.phase*lp.Speed + lp.PhaseOffset

	prevY := -1
	for x := 0; x < w; x++ {
		xf := float64(x)
		var v float64
		if useResponse {
			v = r.responseSample(xf, freq, phase)
		} else {
			v = r.baselineSample(xf, freq, phase, complexity)
		}
		y := int(center + v*baseAmp*halfSpan)

		if prevY >= 0 && absInt(y-prevY) > 1 {
			step := 1
			if y < prevY {
				step = -1
			}
			for yy := prevY + step; yy != y; yy += step {
				r.blendPixel(x, yy, w, h, col, opacity*0.7)
			}
		}
		r.blendPixel(x, y, w, h, col, opacity)
		prevY = y
	}
}

// baselineSample is the primary sine plus up to four harmonic-influence
// terms; live harmonic content makes the shape visibly busier.
func (r *Renderer) baselineSample(x, freq, phase, complexity float64) float64 {
	v := math.Sin(x*freq + phase)
	terms := int(math.Round(4 * complexity))
	for k := 0; k < terms && k < 4; k++ {
		infl := r.influence[k]
		if infl < 0.01 {
			continue
		}
		v += math.Sin(x*freq*(1.6+float64(k)*0.9)+phase*(1.0+float64(k)*0.35)) * infl * 0.3
	}
	return v / 1.8
}

// responseSample picks a synthesis variant by live amplitude. The frequency
// and phase ratios are a tuned design constant; changing them breaks visual
// regression baselines.
func (r *Renderer) responseSample(x, freq, phase float64) float64 {
	switch r.responseVariant() {
	case variantGentle:
		return (math.Sin(x*freq+phase)*0.6 +
			math.Sin(x*freq*0.5+phase*1.3)*0.4)
	case variantPulsing:
		pulse := 0.65 + 0.35*math.Sin(phase*2.1)
		return (math.Sin(x*freq+phase)*0.5 +
			math.Sin(x*freq*2.0+phase*1.45)*0.25 +
			math.Sin(x*freq*2.9-phase*0.8)*0.15 +
			math.Sin(x*freq*0.5+phase*0.6)*0.10) * pulse
	default: // flowing
		return (math.Sin(x*freq+phase)*0.55 +
			math.Sin(x*freq*1.7+phase*0.75)*0.30 +
			math.Sin(x*freq*2.3-phase*1.1)*0.15)
	}
}

func (r *Renderer) responseVariant() string {
	switch {
	case r.amplitude < gentleBelow:
		return variantGentle
	case r.amplitude < flowingBelow:
		return variantFlowing
	default:
		return variantPulsing
	}
}

// blendedAmplitude mixes the state baseline with the normalized live level.
func (r *Renderer) blendedAmplitude() float64 {
	live := r.amplitude / r.cfg.MaxAmplitude
	v := r.snap.Preset.Amplitude*0.5 + live*0.7
	if v > 1 {
		return 1
	}
	return v
}

// spatialFrequency derives radians-per-pixel from the preset, modulated by
// the live pitch so higher voices visibly tighten the wave.
func (r *Renderer) spatialFrequency() float64 {
	base := r.snap.Preset.Frequency
	if base <= 0 {
		base = 0.02
	}
	mod := 1.0
	if r.frequency > 0 {
		mod += clampF(r.frequency/1200.0, 0, 1) * 0.6
	}
	return base * 2 * math.Pi * mod / 4
}

func (r *Renderer) blendPixel(x, y, w, h int, col theme.Color, alpha float64) {
	if x < 0 || x >= w || y < 0 || y >= h {
		return
	}
	idx := y*w + x
	r.buffer[idx] = theme.Interpolate(r.buffer[idx], col, alpha)
}

// Close stops the loop and releases the surface.
func (r *Renderer) Close() error {
	r.Stop()
	return r.surface.Close()
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
