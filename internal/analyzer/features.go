package analyzer

// HarmonicCount is the number of harmonic bands extracted per frame.
const HarmonicCount = 8

// FeatureFrame carries the per-tick audio features the engine consumes. The
// engine only reads these; production is fully external to the visualization
// core.
type FeatureFrame struct {
	SmoothedAmplitude float64                `json:"smoothedAmplitude"` // >= 0
	Frequency         float64                `json:"frequency"`         // dominant pitch, Hz
	Harmonics         [HarmonicCount]float64 `json:"harmonics"`         // per-harmonic energy in [0,1]
}

// IsSilent reports whether the frame carries no usable signal.
func (f FeatureFrame) IsSilent() bool {
	if f.SmoothedAmplitude > 0.001 {
		return false
	}
	for _, h := range f.Harmonics {
		if h > 0.001 {
			return false
		}
	}
	return true
}

// Gate zeroes features below a noise floor so idle rooms stay visually calm.
func Gate(f FeatureFrame, floor float64) FeatureFrame {
	if floor <= 0 {
		return f
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clamp((v-floor)/(1.0-floor), 0, 1)
	}
	f.SmoothedAmplitude = gate(f.SmoothedAmplitude)
	for i := range f.Harmonics {
		f.Harmonics[i] = gate(f.Harmonics[i])
	}
	if f.SmoothedAmplitude == 0 {
		f.Frequency = 0
	}
	return f
}

func clamp(v, minVal, maxVal float64) float64 {
	if v < minVal {
		return minVal
	}
	if v > maxVal {
		return maxVal
	}
	return v
}
