package analyzer

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

// Analyzer performs FFT-based analysis and reduces the spectrum to the
// amplitude / dominant-pitch / harmonic-profile triple the engine consumes.
type Analyzer struct {
	sampleRate float64

	ampEnvelope float64
	freqSmooth  float64
	harmonics   [HarmonicCount]float64

	buffer []complex128
	window []float64
}

// Config controls Analyzer behavior.
type Config struct {
	SampleRate float64
}

// Pitch search range for speech.
const (
	minPitchHz = 70.0
	maxPitchHz = 1200.0
)

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44_100
	}
	return &Analyzer{sampleRate: cfg.SampleRate}
}

// Analyze returns a feature frame for the provided mono samples.
func (a *Analyzer) Analyze(samples []float32) FeatureFrame {
	if len(samples) == 0 {
		return a.decay()
	}

	size := nextPow2(min(len(samples), 2048))
	if size < 256 {
		size = 256
	}
	a.ensureWorkspace(size)

	buffer := a.buffer[:size]
	window := a.window[:size]
	for i := 0; i < size; i++ {
		if i < len(samples) {
			buffer[i] = complex(float64(samples[i])*window[i], 0)
			continue
		}
		buffer[i] = 0
	}

	spectrum := fft.FFT(buffer)
	resolution := a.sampleRate / float64(size)

	fundamental, peak := a.dominantBin(spectrum, resolution)
	if peak < 1e-5 {
		return a.decay()
	}

	rms := rms(samples)
	a.ampEnvelope = envelope(a.ampEnvelope, math.Min(1, rms*3.2), 0.55, 0.92)

	if a.freqSmooth == 0 {
		a.freqSmooth = fundamental
	} else {
		a.freqSmooth += (fundamental - a.freqSmooth) * 0.35
	}

	for k := 0; k < HarmonicCount; k++ {
		center := fundamental * float64(k+1)
		energy := a.bandEnergy(spectrum, resolution, center*0.9, center*1.1)
		norm := math.Min(1, energy/math.Max(peak, 1e-9))
		a.harmonics[k] = envelope(a.harmonics[k], norm, 0.5, 0.85)
	}

	return FeatureFrame{
		SmoothedAmplitude: a.ampEnvelope,
		Frequency:         a.freqSmooth,
		Harmonics:         a.harmonics,
	}
}

// decay fades the envelopes toward silence between voiced stretches.
func (a *Analyzer) decay() FeatureFrame {
	a.ampEnvelope *= 0.88
	for i := range a.harmonics {
		a.harmonics[i] *= 0.85
	}
	if a.ampEnvelope < 0.002 {
		a.ampEnvelope = 0
	}
	return FeatureFrame{
		SmoothedAmplitude: a.ampEnvelope,
		Frequency:         a.freqSmooth,
		Harmonics:         a.harmonics,
	}
}

func (a *Analyzer) dominantBin(spectrum []complex128, resolution float64) (hz, magnitude float64) {
	lo := int(math.Floor(minPitchHz / resolution))
	hi := int(math.Ceil(maxPitchHz / resolution))
	if lo < 1 {
		lo = 1
	}
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}
	best := lo
	bestMag := 0.0
	for i := lo; i < hi; i++ {
		m := cmag(spectrum[i])
		if m > bestMag {
			bestMag = m
			best = i
		}
	}
	return float64(best) * resolution, bestMag
}

func (a *Analyzer) bandEnergy(spectrum []complex128, resolution, minHz, maxHz float64) float64 {
	if minHz >= maxHz {
		return 0
	}
	lo := int(math.Floor(minHz / resolution))
	hi := int(math.Ceil(maxHz/resolution)) + 1
	if lo < 0 {
		lo = 0
	}
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}
	if lo >= hi {
		return 0
	}
	peak := 0.0
	for _, v := range spectrum[lo:hi] {
		if m := cmag(v); m > peak {
			peak = m
		}
	}
	return peak
}

func (a *Analyzer) ensureWorkspace(size int) {
	if len(a.buffer) != size {
		a.buffer = make([]complex128, size)
	}
	if len(a.window) != size {
		a.window = make([]float64, size)
		sizeF := float64(size)
		for i := range a.window {
			a.window[i] = hann(float64(i), sizeF)
		}
	}
}

func hann(i, size float64) float64 {
	return 0.5 * (1.0 - math.Cos(2.0*math.Pi*i/size))
}

func rms(samples []float32) float64 {
	sum := 0.0
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

func cmag(c complex128) float64 {
	return math.Sqrt(real(c)*real(c) + imag(c)*imag(c))
}

func envelope(current, input, attack, release float64) float64 {
	if input > current {
		return current*attack + input*(1-attack)
	}
	return current * release
}

func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
