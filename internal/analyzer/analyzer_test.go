package analyzer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 44_100

// sine generates n samples of a pure tone at freq Hz.
func sine(freq float64, amp float64, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(amp * math.Sin(2*math.Pi*freq*float64(i)/testSampleRate))
	}
	return out
}

func TestAnalyzeTracksDominantPitch(t *testing.T) {
	a := New(Config{SampleRate: testSampleRate})

	// Bin-aligned tone so the peak lands cleanly: 10 * (44100/2048).
	freq := 10.0 * testSampleRate / 2048.0
	samples := sine(freq, 0.5, 2048)

	var f FeatureFrame
	for i := 0; i < 10; i++ {
		f = a.Analyze(samples)
	}

	assert.InDelta(t, freq, f.Frequency, 25)
	assert.Greater(t, f.SmoothedAmplitude, 0.3)
	assert.LessOrEqual(t, f.SmoothedAmplitude, 1.0)
	assert.Greater(t, f.Harmonics[0], 0.2, "fundamental band carries the peak")
	assert.False(t, f.IsSilent())
}

func TestAnalyzeDecaysToSilence(t *testing.T) {
	a := New(Config{SampleRate: testSampleRate})

	freq := 10.0 * testSampleRate / 2048.0
	for i := 0; i < 10; i++ {
		a.Analyze(sine(freq, 0.5, 2048))
	}

	var f FeatureFrame
	for i := 0; i < 200; i++ {
		f = a.Analyze(nil)
	}
	assert.True(t, f.IsSilent(), "envelopes decay between voiced stretches")
}

func TestAnalyzeZeroSignalIsSilentPath(t *testing.T) {
	a := New(Config{SampleRate: testSampleRate})
	f := a.Analyze(make([]float32, 2048))
	assert.Equal(t, 0.0, f.SmoothedAmplitude)
	assert.True(t, f.IsSilent())
}

func TestAnalyzeEnvelopeRisesFasterThanItFalls(t *testing.T) {
	a := New(Config{SampleRate: testSampleRate})
	freq := 10.0 * testSampleRate / 2048.0

	rise := a.Analyze(sine(freq, 0.8, 2048)).SmoothedAmplitude
	require.Greater(t, rise, 0.0)

	after := a.Analyze(nil).SmoothedAmplitude
	assert.Greater(t, after, rise*0.8, "release is slower than attack")
	assert.Less(t, after, rise)
}

func TestGate(t *testing.T) {
	quiet := FeatureFrame{SmoothedAmplitude: 0.3, Frequency: 200}
	gated := Gate(quiet, 0.5)
	assert.Equal(t, 0.0, gated.SmoothedAmplitude)
	assert.Equal(t, 0.0, gated.Frequency, "frequency is meaningless without amplitude")

	loud := FeatureFrame{SmoothedAmplitude: 0.8, Frequency: 200}
	gated = Gate(loud, 0.5)
	assert.InDelta(t, 0.6, gated.SmoothedAmplitude, 1e-9)
	assert.Equal(t, 200.0, gated.Frequency)

	assert.Equal(t, loud, Gate(loud, 0), "zero floor is a passthrough")
}

func TestFeatureFrameIsSilent(t *testing.T) {
	assert.True(t, FeatureFrame{}.IsSilent())
	assert.False(t, FeatureFrame{SmoothedAmplitude: 0.1}.IsSilent())

	var f FeatureFrame
	f.Harmonics[3] = 0.2
	assert.False(t, f.IsSilent())
}
