// Package engine ties the state machine, theme manager, wave renderer,
// performance governor, and error handler into one frame loop.
package engine

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/wavecalm/wavecalm/internal/analyzer"
	"github.com/wavecalm/wavecalm/internal/audio"
	"github.com/wavecalm/wavecalm/internal/guard"
	"github.com/wavecalm/wavecalm/internal/sched"
	"github.com/wavecalm/wavecalm/internal/state"
	"github.com/wavecalm/wavecalm/internal/theme"
	"github.com/wavecalm/wavecalm/internal/wave"
)

// Config configures the engine runtime.
type Config struct {
	DeviceName   string
	Width        int
	Height       int
	TargetFPS    float64
	BufferSize   int
	DisableAudio bool
	ShowStatus   bool
	Theme        string
	WaveCount    int
	UseSDL       bool
	UseANSI      bool
	ProfilePath  string
}

type inputEvent int

const (
	inputEventQuit inputEvent = iota
	inputEventNextTheme
	inputEventRaiseError
	inputEventRecover
	inputEventStateBase // +offset 0..4 selects a lifecycle state
)

// silenceHold is how long the live signal must stay silent before the engine
// lets the wave settle back to the idle baseline.
const silenceHold = 900 * time.Millisecond

// Engine owns the frame loop and every animation subsystem.
type Engine struct {
	mu  sync.Mutex
	log zerolog.Logger
	cfg Config

	timers   *sched.Timers
	states   *state.Manager
	themes   *theme.Manager
	renderer *wave.Renderer
	governor *guard.Governor
	handler  *guard.Handler

	termSurface *wave.TermSurface // nil when rendering through SDL

	capture  *audio.Capture
	analyzer *analyzer.Analyzer
	speech   *speechGenerator

	frameDur    time.Duration
	last        time.Time
	silence     time.Duration
	deviceLabel string
	prof        *profiler

	inputEvents chan inputEvent
}

// New constructs and wires the engine. The caller owns PortAudio lifecycle
// (audio.Initialize / audio.Terminate) when live capture is enabled.
func New(log zerolog.Logger, cfg Config) (*Engine, error) {
	if cfg.TargetFPS <= 0 {
		cfg.TargetFPS = 60
	}
	if cfg.Width <= 0 {
		cfg.Width = 80
	}
	if cfg.Height <= 0 {
		cfg.Height = 24
	}

	e := &Engine{
		log:      log.With().Str("component", "engine").Logger(),
		cfg:      cfg,
		timers:   sched.NewTimers(),
		frameDur: fpsDuration(cfg.TargetFPS),
	}

	e.states = state.NewManager(log)
	e.themes = theme.NewManager(log)
	if cfg.Theme != "" {
		if err := e.themes.SetThemeImmediate(cfg.Theme); err != nil {
			return nil, fmt.Errorf("startup theme: %w", err)
		}
	}

	surface, err := e.openSurface(cfg)
	if err != nil {
		return nil, err
	}
	renderer, err := wave.NewRenderer(log, surface, e.themes.Current(), wave.Config{
		WaveCount: cfg.WaveCount,
	})
	if err != nil {
		_ = surface.Close()
		return nil, err
	}
	e.renderer = renderer

	e.governor = guard.NewGovernor(log, renderer, cfg.TargetFPS)
	e.handler = guard.NewHandler(log, e.timers, e.states, e.themes, renderer)

	e.themes.OnChange(renderer.UpdateTheme)
	renderer.OnRenderError(e.handler.HandleRenderError)
	renderer.SetTransitionRequester(func(s state.State) {
		if e.handler.IsInError() {
			return
		}
		e.states.TransitionTo(s, 600*time.Millisecond, state.EasingInOut)
	})
	e.governor.OnSevere(func() {
		e.handler.HandleError(guard.KindPerformanceDegradation,
			fmt.Sprintf("avg %.1f fps against target %.0f", e.governor.Average(), e.governor.Target()))
	})
	e.governor.OnTargetChange(func(fps float64) {
		e.frameDur = fpsDuration(fps)
	})

	if cfg.DisableAudio {
		e.speech = newSpeechGenerator()
		e.log.Info().Msg("audio disabled, using synthetic speech generator")
	} else {
		capture, err := audio.NewCapture(audio.Config{
			DeviceName: cfg.DeviceName,
			BufferSize: cfg.BufferSize,
		})
		if err != nil {
			_ = renderer.Close()
			return nil, fmt.Errorf("audio capture: %w", err)
		}
		e.capture = capture
		e.analyzer = analyzer.New(analyzer.Config{SampleRate: capture.SampleRate()})
		if info := capture.Device(); info != nil {
			e.deviceLabel = info.Name
		}
		e.log.Info().Str("device", e.deviceLabel).Float64("rate", capture.SampleRate()).Msg("audio capture started")
	}

	e.prof = newProfiler(cfg.ProfilePath, e.log)
	return e, nil
}

func (e *Engine) openSurface(cfg Config) (wave.Surface, error) {
	if cfg.UseSDL {
		return wave.NewSDLSurface("wavecalm", cfg.Width*8, cfg.Height*16)
	}
	s, err := wave.NewTermSurface(os.Stdout, cfg.Width, cfg.Height, cfg.UseANSI)
	if err != nil {
		return nil, err
	}
	e.termSurface = s
	return s, nil
}

// States exposes the state machine for hosts embedding the engine.
func (e *Engine) States() *state.Manager { return e.states }

// Themes exposes the theme manager.
func (e *Engine) Themes() *theme.Manager { return e.themes }

// Run drives the frame loop until ctx is done or the user quits.
func (e *Engine) Run(ctx context.Context) error {
	enterAltScreen()
	hideCursor()
	defer func() {
		showCursor()
		exitAltScreen()
	}()

	inputCtx, cancelInput := context.WithCancel(ctx)
	defer cancelInput()
	e.startInputListener(inputCtx)

	e.mu.Lock()
	e.renderer.Start(e.timers)
	e.last = time.Now()
	e.mu.Unlock()
	defer e.stop()

	timer := time.NewTimer(e.currentFrameDur())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-e.inputEvents:
			if !ok {
				e.inputEvents = nil
				continue
			}
			if quit := e.handleInput(evt); quit {
				return nil
			}
		case now := <-timer.C:
			if err := e.step(now); err != nil {
				return err
			}
			timer.Reset(e.currentFrameDur())
		}
	}
}

func (e *Engine) currentFrameDur() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frameDur
}

func (e *Engine) stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderer.Stop()
	e.timers.Close()
}

// step runs one frame: state and theme interpolation first, then the live
// feature feed, then the scheduled render tick, then governor bookkeeping.
func (e *Engine) step(now time.Time) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.prof.beginFrame()

	delta := now.Sub(e.last)
	if delta <= 0 {
		delta = e.frameDur
	}
	e.last = now

	e.ensureDimensions()

	snap := e.states.Update(now)
	e.themes.Update(now)
	e.renderer.ApplyState(snap)
	e.prof.markSection("interpolate")

	e.feedFeatures(delta)
	e.prof.markSection("features")

	if e.cfg.ShowStatus {
		e.renderer.SetStatus(e.statusLine(snap))
	}

	e.timers.Drain(now)
	e.prof.markSection("render")

	e.governor.Sample(now)
	e.prof.endFrame()
	return nil
}

// feedFeatures pushes the current live feature frame into the renderer, or
// eases back to the idle baseline after sustained silence.
func (e *Engine) feedFeatures(delta time.Duration) {
	var f analyzer.FeatureFrame
	fromBot := false
	switch {
	case e.capture != nil && e.analyzer != nil:
		f = e.analyzer.Analyze(e.capture.Samples())
	case e.speech != nil:
		f, fromBot = e.speech.Next(delta.Seconds())
	default:
		return
	}

	if !f.IsSilent() {
		e.silence = 0
		if fromBot {
			e.renderer.UpdateWithBotResponse(f)
		} else {
			e.renderer.UpdateWithUserInput(f)
		}
		return
	}

	e.silence += delta
	if e.silence < silenceHold || e.handler.IsInError() {
		return
	}
	cur := e.states.Current()
	if cur == state.Listening || cur == state.Speaking {
		e.renderer.TransitionToBaseline()
		e.states.TransitionTo(state.Idle, time.Second, state.EasingGentle)
	}
}

func (e *Engine) statusLine(snap state.Snapshot) string {
	m := e.governor.Metrics()
	line := fmt.Sprintf("state=%s theme=%s fps=%.0f/%.0f waves=%d",
		snap.Target, e.themes.ActiveID(), m.FrameRate, m.TargetFrameRate, e.renderer.WaveCount())
	if m.FallbackMode != "" {
		line += " mode=" + m.FallbackMode
	}
	if e.handler.IsInError() {
		line += " error=" + e.handler.Current().Kind.String()
	}
	if e.deviceLabel != "" {
		line += " mic=" + e.deviceLabel
	}
	return line
}

// ensureDimensions tracks terminal resizes; SDL windows are fixed-size.
func (e *Engine) ensureDimensions() {
	if e.termSurface == nil {
		return
	}
	fd := int(os.Stdout.Fd())
	w, h, err := term.GetSize(fd)
	if err != nil || w <= 0 || h <= 0 {
		return
	}
	if e.cfg.ShowStatus && h > 1 {
		h--
	}
	cw, ch := e.termSurface.Size()
	if w != cw || h != ch {
		e.termSurface.Resize(w, h)
	}
}

func (e *Engine) handleInput(evt inputEvent) (quit bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case evt == inputEventQuit:
		return true
	case evt == inputEventNextTheme:
		e.cycleTheme()
	case evt == inputEventRaiseError:
		e.handler.HandleError(guard.KindGeneral, "raised from keyboard")
	case evt == inputEventRecover:
		e.handler.ForceRecovery()
	case evt >= inputEventStateBase:
		target := state.State(evt - inputEventStateBase)
		if target == state.Error {
			e.handler.HandleError(guard.KindGeneral, "raised from keyboard")
			return false
		}
		if e.handler.IsInError() {
			return false
		}
		e.states.TransitionTo(target, 0, state.EasingInOut)
	}
	return false
}

func (e *Engine) cycleTheme() {
	ids := e.themes.IDs()
	if len(ids) < 2 || e.themes.IsTransitioning() {
		return
	}
	active := e.themes.ActiveID()
	for i, id := range ids {
		if id == active {
			next := ids[(i+1)%len(ids)]
			if err := e.themes.SetTheme(next, 0); err != nil {
				e.log.Warn().Err(err).Msg("theme cycle rejected")
			}
			return
		}
	}
}

func (e *Engine) startInputListener(ctx context.Context) {
	if err := keyboard.Open(); err != nil {
		e.log.Warn().Err(err).Msg("keyboard input disabled")
		e.inputEvents = nil
		return
	}

	events := make(chan inputEvent, 16)
	e.inputEvents = events

	closeOnce := &sync.Once{}
	go func() {
		<-ctx.Done()
		closeOnce.Do(func() { _ = keyboard.Close() })
	}()

	go func() {
		defer close(events)
		defer closeOnce.Do(func() { _ = keyboard.Close() })
		for {
			char, key, err := keyboard.GetKey()
			if err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			switch {
			case key == keyboard.KeyEsc || key == keyboard.KeyCtrlC:
				events <- inputEventQuit
				return
			case char == 'q' || char == 'Q':
				events <- inputEventQuit
				return
			case char >= '1' && char <= '5':
				send(events, inputEventStateBase+inputEvent(char-'1'))
			case char == 't' || char == 'T':
				send(events, inputEventNextTheme)
			case char == 'e' || char == 'E':
				send(events, inputEventRaiseError)
			case char == 'r' || char == 'R':
				send(events, inputEventRecover)
			}
		}
	}()
}

func send(events chan inputEvent, evt inputEvent) {
	select {
	case events <- evt:
	default:
	}
}

// Close releases capture and rendering resources.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	var first error
	if e.capture != nil {
		first = e.capture.Close()
	}
	if err := e.renderer.Close(); err != nil && first == nil {
		first = err
	}
	if err := e.prof.Close(); err != nil && first == nil {
		first = err
	}
	return first
}

func fpsDuration(fps float64) time.Duration {
	if fps <= 0 {
		fps = 60
	}
	return time.Duration(float64(time.Second) / fps)
}

func enterAltScreen() { fmt.Print("\x1b[?1049h\x1b[2J\x1b[H") }
func exitAltScreen()  { fmt.Print("\x1b[?1049l\x1b[0m") }
func hideCursor()     { fmt.Print("\x1b[?25l") }
func showCursor()     { fmt.Print("\x1b[?25h") }
