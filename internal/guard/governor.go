// Package guard holds the closed-loop performance governor and the
// error-to-visual-feedback mapper. Both watch the renderer; neither ever
// propagates a failure to its caller.
package guard

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/wavecalm/wavecalm/internal/wave"
)

// Degradation levels.
const (
	LevelNormal = iota
	LevelMild
	LevelModerate
	LevelSevere
)

const (
	sampleWindow  = 60
	evalInterval  = 2000 * time.Millisecond
	severeBelow   = 0.5
	moderateBelow = 0.7
	mildBelow     = 0.85
	recoverAbove  = 1.0
)

// fallbackMode pairs a renderer fallback with the frame-rate target the
// governor judges itself against while the mode is active. Lowering the
// target after degrading is what gives the loop hysteresis: the bar to be
// judged recovered drops along with the output quality.
type fallbackMode struct {
	wave.Fallback
	TargetFPS float64
}

func fallbackFor(level int) (fallbackMode, bool) {
	switch level {
	case LevelMild:
		return fallbackMode{
			Fallback:  wave.Fallback{ID: "basic", WaveCount: 5, Complexity: 0.7, AmplitudeScale: 0.8},
			TargetFPS: 45,
		}, true
	case LevelModerate:
		return fallbackMode{
			Fallback:  wave.Fallback{ID: "simplified", WaveCount: 3, Complexity: 0.5, AmplitudeScale: 0.6},
			TargetFPS: 30,
		}, true
	case LevelSevere:
		return fallbackMode{
			Fallback:  wave.Fallback{ID: "minimal", WaveCount: 1, Complexity: 0.3, AmplitudeScale: 0.4},
			TargetFPS: 24,
		}, true
	default:
		return fallbackMode{}, false
	}
}

// Metrics is the diagnostics snapshot polled by the host.
type Metrics struct {
	FrameRate        float64 `json:"frameRate"`
	TargetFrameRate  float64 `json:"targetFrameRate"`
	DegradationLevel int     `json:"degradationLevel"`
	FallbackMode     string  `json:"fallbackMode,omitempty"`
}

// Governor measures frame rate and adapts rendering complexity to hold the
// target quality of service.
type Governor struct {
	log      zerolog.Logger
	renderer *wave.Renderer

	defaultTarget float64
	target        float64

	samples [sampleWindow]float64
	idx     int
	filled  int

	lastFrame time.Time
	lastEval  time.Time
	level     int
	mode      string

	onSevere       func()
	onTargetChange func(fps float64)
}

// NewGovernor creates a governor judging against targetFPS.
func NewGovernor(log zerolog.Logger, renderer *wave.Renderer, targetFPS float64) *Governor {
	if targetFPS <= 0 {
		targetFPS = 60
	}
	return &Governor{
		log:           log.With().Str("component", "governor").Logger(),
		renderer:      renderer,
		defaultTarget: targetFPS,
		target:        targetFPS,
	}
}

// OnSevere registers the callback fired when the governor enters the severe
// level; the engine wires it to raise a performance-degradation error.
func (g *Governor) OnSevere(fn func()) { g.onSevere = fn }

// OnTargetChange registers the callback fired whenever the governed frame
// rate target changes, so the frame loop can retime itself.
func (g *Governor) OnTargetChange(fn func(fps float64)) { g.onTargetChange = fn }

// Target returns the current frame-rate target.
func (g *Governor) Target() float64 { return g.target }

// Level returns the current degradation level.
func (g *Governor) Level() int { return g.level }

// Sample records one frame boundary. Classification runs on a debounced
// 2-second schedule, not every frame.
func (g *Governor) Sample(now time.Time) {
	if !g.lastFrame.IsZero() {
		delta := now.Sub(g.lastFrame).Seconds()
		if delta > 0 {
			g.push(1.0 / delta)
		}
	}
	g.lastFrame = now

	if g.lastEval.IsZero() {
		g.lastEval = now
		return
	}
	if now.Sub(g.lastEval) < evalInterval {
		return
	}
	g.lastEval = now
	g.evaluate()
}

func (g *Governor) push(fps float64) {
	g.samples[g.idx] = fps
	g.idx = (g.idx + 1) % sampleWindow
	if g.filled < sampleWindow {
		g.filled++
	}
}

// Average returns the rolling mean FPS.
func (g *Governor) Average() float64 {
	if g.filled == 0 {
		return 0
	}
	sum := 0.0
	for i := 0; i < g.filled; i++ {
		sum += g.samples[i]
	}
	return sum / float64(g.filled)
}

// evaluate escalates as far as the measured ratio demands, but steps down one
// level at a time and only when the frame rate would also satisfy the next
// level's own target. That asymmetry keeps a machine pinned at its sustainable
// level instead of flapping between two modes.
func (g *Governor) evaluate() {
	if g.filled == 0 {
		return
	}
	avg := g.Average()
	ratio := avg / g.target

	desired := LevelNormal
	switch {
	case ratio < severeBelow:
		desired = LevelSevere
	case ratio < moderateBelow:
		desired = LevelModerate
	case ratio < mildBelow:
		desired = LevelMild
	}

	if desired > g.level {
		g.apply(desired)
		return
	}
	if g.level > LevelNormal && ratio >= recoverAbove {
		next := g.level - 1
		if avg/g.targetFor(next) >= mildBelow {
			g.apply(next)
		}
	}
}

func (g *Governor) targetFor(level int) float64 {
	if mode, ok := fallbackFor(level); ok {
		return mode.TargetFPS
	}
	return g.defaultTarget
}

func (g *Governor) apply(level int) {
	prev := g.level
	g.level = level
	g.log.Info().Int("from", prev).Int("to", level).Float64("avgFPS", g.Average()).Msg("degradation level changed")

	if level == LevelNormal {
		g.mode = ""
		g.renderer.ClearFallback()
		g.setTarget(g.defaultTarget)
		return
	}

	mode, _ := fallbackFor(level)
	g.mode = mode.ID
	g.renderer.ApplyFallback(mode.Fallback)
	g.setTarget(mode.TargetFPS)

	if level == LevelSevere && g.onSevere != nil {
		g.onSevere()
	}
}

func (g *Governor) setTarget(fps float64) {
	if fps == g.target {
		return
	}
	g.target = fps
	if g.onTargetChange != nil {
		g.onTargetChange(fps)
	}
}

// Metrics returns the current governor snapshot.
func (g *Governor) Metrics() Metrics {
	return Metrics{
		FrameRate:        g.Average(),
		TargetFrameRate:  g.target,
		DegradationLevel: g.level,
		FallbackMode:     g.mode,
	}
}
