package state

import "math"

// Easing maps linear progress in [0,1] to eased progress in [0,1].
type Easing func(t float64) float64

// Named easings selectable per transition.
const (
	EasingLinear    = "linear"
	EasingIn        = "ease-in"
	EasingOut       = "ease-out"
	EasingInOut     = "ease-in-out"
	EasingGentle    = "gentle"
	defaultEasingID = EasingInOut
)

// EasingByName resolves a named easing; unknown names get ease-in-out.
func EasingByName(name string) Easing {
	switch name {
	case EasingLinear:
		return easeLinear
	case EasingIn:
		return easeInCubic
	case EasingOut:
		return easeOutCubic
	case EasingGentle:
		return easeGentle
	case EasingInOut, "":
		return easeInOutCubic
	default:
		return easeInOutCubic
	}
}

func easeLinear(t float64) float64 { return t }

func easeInCubic(t float64) float64 { return t * t * t }

func easeOutCubic(t float64) float64 {
	return 1 - math.Pow(1-t, 3)
}

func easeInOutCubic(t float64) float64 {
	if t < 0.5 {
		return 4 * t * t * t
	}
	return 1 - math.Pow(-2*t+2, 3)/2
}

// easeGentle has no acceleration spike at either end, for motion-sensitive
// viewers.
func easeGentle(t float64) float64 {
	return math.Sin(t * math.Pi / 2)
}
