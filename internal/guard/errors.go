package guard

import (
	"time"

	"github.com/wavecalm/wavecalm/internal/theme"
)

// Kind is the closed set of fault categories the engine reacts to. External
// entry points map onto it at the boundary; there is no string-keyed dispatch
// and no silent generic fallback.
type Kind int

const (
	KindAudioProcessing Kind = iota
	KindRenderFailure
	KindNetworkConnection
	KindPerformanceDegradation
	KindGeneral
)

func (k Kind) String() string {
	switch k {
	case KindAudioProcessing:
		return "audio-processing"
	case KindRenderFailure:
		return "render-failure"
	case KindNetworkConnection:
		return "network-connection"
	case KindPerformanceDegradation:
		return "performance-degradation"
	case KindGeneral:
		return "general"
	default:
		return "general"
	}
}

// ParseKind maps an external type name onto a Kind. Unknown names report
// false so callers decide how to treat them instead of being silently
// downgraded to the generic config.
func ParseKind(name string) (Kind, bool) {
	switch name {
	case "audio-processing", "AUDIO_PROCESSING":
		return KindAudioProcessing, true
	case "render-failure", "CANVAS_RENDERING":
		return KindRenderFailure, true
	case "network-connection", "NETWORK_CONNECTION":
		return KindNetworkConnection, true
	case "performance-degradation", "PERFORMANCE_DEGRADATION":
		return KindPerformanceDegradation, true
	case "general", "GENERAL":
		return KindGeneral, true
	default:
		return KindGeneral, false
	}
}

// ErrorConfig is the declarative visual treatment for one error kind. Every
// treatment is calming by design: reduced motion, a soft hue shift, heavy
// smoothing, and a bounded duration followed by unannounced recovery.
type ErrorConfig struct {
	ColorShift    theme.Color   // hue the palette is pulled 30% toward
	WavePattern   string        // gentle | minimal | interrupted | simplified | calm
	Amplitude     float64       // live amplitude ceiling while in error, 0-100 scale
	Frequency     float64       // spatial frequency override (rad/px base)
	Duration      time.Duration // themed treatment duration
	RecoveryDelay time.Duration // pause before restoring normal rendering
}

// configFor is the exhaustive kind-to-treatment mapping.
func configFor(k Kind) ErrorConfig {
	switch k {
	case KindAudioProcessing:
		return ErrorConfig{
			ColorShift:    theme.MustHex("#caa35f"), // muted amber
			WavePattern:   "gentle",
			Amplitude:     20,
			Frequency:     0.015,
			Duration:      3 * time.Second,
			RecoveryDelay: 1 * time.Second,
		}
	case KindRenderFailure:
		return ErrorConfig{
			ColorShift:    theme.MustHex("#8a8f9a"), // desaturated slate
			WavePattern:   "minimal",
			Amplitude:     12,
			Frequency:     0.012,
			Duration:      2 * time.Second,
			RecoveryDelay: 1 * time.Second,
		}
	case KindNetworkConnection:
		return ErrorConfig{
			ColorShift:    theme.MustHex("#6f8ad2"), // cool blue
			WavePattern:   "interrupted",
			Amplitude:     18,
			Frequency:     0.014,
			Duration:      5 * time.Second,
			RecoveryDelay: 2 * time.Second,
		}
	case KindPerformanceDegradation:
		return ErrorConfig{
			ColorShift:    theme.MustHex("#9a8fd1"), // soft violet
			WavePattern:   "simplified",
			Amplitude:     15,
			Frequency:     0.013,
			Duration:      4 * time.Second,
			RecoveryDelay: 2 * time.Second,
		}
	case KindGeneral:
		return ErrorConfig{
			ColorShift:    theme.MustHex("#b08f7a"), // warm neutral
			WavePattern:   "calm",
			Amplitude:     16,
			Frequency:     0.014,
			Duration:      3 * time.Second,
			RecoveryDelay: 1500 * time.Millisecond,
		}
	default:
		return configFor(KindGeneral)
	}
}
