package engine

import (
	"math"
	"math/rand"
	"time"

	"github.com/wavecalm/wavecalm/internal/analyzer"
)

// speechGenerator synthesizes speech-shaped feature frames so the engine can
// run without a microphone. It alternates user and bot "turns": a few seconds
// of syllabic activity, then a pause long enough for the wave to settle.
type speechGenerator struct {
	rng *rand.Rand

	speaking  bool
	botTurn   bool
	remaining float64 // seconds left in the current phase

	syllable float64 // syllable envelope phase
	pitch    float64 // wandering fundamental, Hz
	phase    float64
}

func newSpeechGenerator() *speechGenerator {
	g := &speechGenerator{
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
		pitch: 180,
	}
	g.remaining = 1.5 // initial silence before the first utterance
	return g
}

// Next advances the generator by delta seconds and returns a feature frame
// plus whether it models bot speech (as opposed to user speech).
func (g *speechGenerator) Next(delta float64) (analyzer.FeatureFrame, bool) {
	g.remaining -= delta
	if g.remaining <= 0 {
		g.speaking = !g.speaking
		if g.speaking {
			g.botTurn = !g.botTurn
			g.remaining = 2.0 + g.rng.Float64()*3.0
			g.pitch = basePitch(g.botTurn) + g.rng.Float64()*40
		} else {
			g.remaining = 1.2 + g.rng.Float64()*2.0
		}
	}

	if !g.speaking {
		return analyzer.FeatureFrame{}, g.botTurn
	}

	// Roughly four syllables per second with inter-syllable dips.
	g.syllable += delta * 4.2
	g.phase += delta
	envelope := 0.45 + 0.55*math.Abs(math.Sin(g.syllable*math.Pi))
	envelope *= 0.85 + g.rng.Float64()*0.15

	g.pitch += (basePitch(g.botTurn) - g.pitch) * 0.02
	g.pitch += (g.rng.Float64() - 0.5) * 6

	var harmonics [analyzer.HarmonicCount]float64
	for k := range harmonics {
		rolloff := 1.0 / (1.0 + 0.9*float64(k))
		harmonics[k] = clamp01(envelope*rolloff + (g.rng.Float64()-0.5)*0.05)
	}

	return analyzer.FeatureFrame{
		SmoothedAmplitude: clamp01(envelope * 0.9),
		Frequency:         g.pitch,
		Harmonics:         harmonics,
	}, g.botTurn
}

func basePitch(bot bool) float64 {
	if bot {
		return 140
	}
	return 200
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
