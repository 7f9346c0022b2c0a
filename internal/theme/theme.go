// Package theme owns the active color palette and animates palette-to-palette
// transitions independently of the animation state machine.
package theme

// Theme is a complete palette consumed by the wave renderer.
type Theme struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Background Color          `json:"background"`
	Baseline   Color          `json:"baseline"`
	UserInput  Color          `json:"userInput"`
	BotOutput  Color          `json:"botOutput"`
	Accent     Color          `json:"accent"`
	Gradient   []GradientStop `json:"gradient"`
	Opacity    float64        `json:"opacity"`
}

// blend interpolates every color-valued field and every gradient stop.
func blend(from, to Theme, t float64) Theme {
	return Theme{
		ID:         to.ID,
		Name:       to.Name,
		Background: Interpolate(from.Background, to.Background, t),
		Baseline:   Interpolate(from.Baseline, to.Baseline, t),
		UserInput:  Interpolate(from.UserInput, to.UserInput, t),
		BotOutput:  Interpolate(from.BotOutput, to.BotOutput, t),
		Accent:     Interpolate(from.Accent, to.Accent, t),
		Gradient:   interpolateStops(from.Gradient, to.Gradient, t),
		Opacity:    from.Opacity + (to.Opacity-from.Opacity)*clamp01(t),
	}
}

func predefined() []Theme {
	return []Theme{
		{
			ID:         "midnight-calm",
			Name:       "Midnight Calm",
			Background: MustHex("#0b1020"),
			Baseline:   MustHex("#4a5a8a"),
			UserInput:  MustHex("#6fb3d2"),
			BotOutput:  MustHex("#9a7fd1"),
			Accent:     MustHex("#d4a657"),
			Gradient: []GradientStop{
				{Offset: 0.0, Color: MustHex("#0b1020")},
				{Offset: 0.6, Color: MustHex("#141a33")},
				{Offset: 1.0, Color: MustHex("#1c2447")},
			},
			Opacity: 0.85,
		},
		{
			ID:         "forest-peace",
			Name:       "Forest Peace",
			Background: MustHex("#0d1a12"),
			Baseline:   MustHex("#4f7a5a"),
			UserInput:  MustHex("#8fcf9f"),
			BotOutput:  MustHex("#c9d98a"),
			Accent:     MustHex("#e0b35a"),
			Gradient: []GradientStop{
				{Offset: 0.0, Color: MustHex("#0d1a12")},
				{Offset: 0.5, Color: MustHex("#12241a")},
				{Offset: 1.0, Color: MustHex("#1a3323")},
			},
			Opacity: 0.85,
		},
		{
			ID:         "ocean-depth",
			Name:       "Ocean Depth",
			Background: MustHex("#03121f"),
			Baseline:   MustHex("#2d6a8a"),
			UserInput:  MustHex("#5fd0c7"),
			BotOutput:  MustHex("#3f8fd1"),
			Accent:     MustHex("#e8e3c0"),
			Gradient: []GradientStop{
				{Offset: 0.0, Color: MustHex("#03121f")},
				{Offset: 0.7, Color: MustHex("#072338")},
				{Offset: 1.0, Color: MustHex("#0c3350")},
			},
			Opacity: 0.9,
		},
		{
			ID:         "warm-dusk",
			Name:       "Warm Dusk",
			Background: MustHex("#1f130b"),
			Baseline:   MustHex("#8a5e3a"),
			UserInput:  MustHex("#d2a46f"),
			BotOutput:  MustHex("#d17f9a"),
			Accent:     MustHex("#f0d9a8"),
			Gradient: []GradientStop{
				{Offset: 0.0, Color: MustHex("#1f130b")},
				{Offset: 0.5, Color: MustHex("#331f12")},
				{Offset: 1.0, Color: MustHex("#47301c")},
			},
			Opacity: 0.85,
		},
	}
}
