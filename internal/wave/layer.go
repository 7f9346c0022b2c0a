package wave

import "math"

// DefaultWaveCount is the number of layers synthesized when no fallback mode
// is active.
const DefaultWaveCount = 7

// LayerParams are the static per-layer multipliers derived once at
// configuration time. They stay fixed until the wave count changes, at which
// point every layer is recomputed.
type LayerParams struct {
	Amplitude      float64 // decreasing with layer index
	Frequency      float64
	PhaseOffset    float64
	Opacity        float64
	VerticalOffset float64 // fraction of height, centered on 0
	Speed          float64
}

// deriveLayers computes multipliers for count layers. Front layers are tall
// and slow, back layers shallow, faster and more transparent, which is what
// gives the stack its depth.
func deriveLayers(count int) []LayerParams {
	if count < 1 {
		count = 1
	}
	layers := make([]LayerParams, count)
	for i := range layers {
		depth := float64(i) / float64(maxInt(count-1, 1))
		layers[i] = LayerParams{
			Amplitude:      1.0 - depth*0.65,
			Frequency:      1.0 + depth*0.8,
			PhaseOffset:    float64(i) * math.Pi / 3.5,
			Opacity:        1.0 - depth*0.7,
			VerticalOffset: (depth - 0.5) * 0.18,
			Speed:          1.0 + depth*0.5,
		}
	}
	return layers
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
