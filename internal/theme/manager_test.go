package theme

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager() (*Manager, *time.Time) {
	m := NewManager(zerolog.Nop())
	now := time.Unix(2000, 0)
	m.SetClock(func() time.Time { return now })
	return m, &now
}

func TestDefaultsToFirstPredefined(t *testing.T) {
	m, _ := newTestManager()
	assert.Equal(t, "midnight-calm", m.ActiveID())
	assert.False(t, m.IsTransitioning())
	assert.Equal(t, []string{"midnight-calm", "forest-peace", "ocean-depth", "warm-dusk"}, m.IDs())
}

func TestSetThemeCompletesExactly(t *testing.T) {
	m, now := newTestManager()

	require.NoError(t, m.SetTheme("forest-peace", 0))
	assert.True(t, m.IsTransitioning())

	m.Update(now.Add(500 * time.Millisecond))
	assert.True(t, m.IsTransitioning())
	mid := m.Current()
	assert.Equal(t, "forest-peace", mid.ID)

	m.Update(now.Add(DefaultTransition))
	assert.False(t, m.IsTransitioning())

	target, _ := m.Get("forest-peace")
	assert.Equal(t, target, m.Current(), "completion lands on the registry palette exactly")
	assert.Equal(t, "Forest Peace", m.Current().Name)
}

func TestSetThemeRejectedMidTransition(t *testing.T) {
	m, now := newTestManager()

	require.NoError(t, m.SetTheme("ocean-depth", time.Second))
	err := m.SetTheme("warm-dusk", time.Second)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ocean-depth")

	m.Update(now.Add(time.Second))
	require.NoError(t, m.SetTheme("warm-dusk", time.Second))
}

func TestSetThemeUnknown(t *testing.T) {
	m, _ := newTestManager()
	assert.Error(t, m.SetTheme("neon-rave", 0))
}

func TestOnChangeFiresDuringBlendAndAtCompletion(t *testing.T) {
	m, now := newTestManager()

	var seen []Theme
	m.OnChange(func(th Theme) { seen = append(seen, th) })

	require.NoError(t, m.SetTheme("warm-dusk", time.Second))
	m.Update(now.Add(250 * time.Millisecond))
	m.Update(now.Add(750 * time.Millisecond))
	m.Update(now.Add(1100 * time.Millisecond))

	require.Len(t, seen, 3)
	target, _ := m.Get("warm-dusk")
	assert.Equal(t, target, seen[2])
}

func TestApplyOverrideDoesNotTouchRegistry(t *testing.T) {
	m, _ := newTestManager()

	tinted := m.Current()
	tinted.Baseline = MustHex("#ff0000")
	m.ApplyOverride(tinted)

	assert.Equal(t, MustHex("#ff0000"), m.Current().Baseline)
	assert.Equal(t, "midnight-calm", m.ActiveID())

	registry, _ := m.Get("midnight-calm")
	assert.NotEqual(t, MustHex("#ff0000"), registry.Baseline)

	require.NoError(t, m.SetThemeImmediate("midnight-calm"))
	assert.Equal(t, registry, m.Current())
}

func TestAddCustomValidation(t *testing.T) {
	m, _ := newTestManager()

	assert.Error(t, m.AddCustom(Theme{Name: "no id", Opacity: 0.5}))
	assert.Error(t, m.AddCustom(Theme{ID: "forest-peace", Name: "collision", Opacity: 0.5}))
	assert.Error(t, m.AddCustom(Theme{ID: "x", Name: "x", Opacity: 1.5}))
	assert.Error(t, m.AddCustom(Theme{
		ID: "x", Name: "x", Opacity: 0.5,
		Gradient: []GradientStop{{Offset: 0.9}, {Offset: 0.1}},
	}))

	custom := Theme{
		ID: "studio-gray", Name: "Studio Gray", Opacity: 0.8,
		Background: MustHex("#181818"), Baseline: MustHex("#666666"),
		UserInput: MustHex("#88aacc"), BotOutput: MustHex("#cc88aa"), Accent: MustHex("#cccc88"),
	}
	require.NoError(t, m.AddCustom(custom))
	got, ok := m.Get("studio-gray")
	require.True(t, ok)
	assert.Equal(t, custom, got)
	assert.Contains(t, m.IDs(), "studio-gray")
}

func TestRemoveCustom(t *testing.T) {
	m, _ := newTestManager()

	assert.Error(t, m.RemoveCustom("midnight-calm"), "predefined themes are fixed")
	assert.Error(t, m.RemoveCustom("never-was"))

	require.NoError(t, m.AddCustom(Theme{
		ID: "temp", Name: "Temp", Opacity: 0.8,
		Background: MustHex("#000000"), Baseline: MustHex("#444444"),
		UserInput: MustHex("#888888"), BotOutput: MustHex("#aaaaaa"), Accent: MustHex("#cccccc"),
	}))
	require.NoError(t, m.SetThemeImmediate("temp"))

	require.NoError(t, m.RemoveCustom("temp"))
	assert.Equal(t, "midnight-calm", m.ActiveID(), "removing the active theme falls back")
	_, ok := m.Get("temp")
	assert.False(t, ok)
}
