package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/wavecalm/wavecalm/internal/audio"
	"github.com/wavecalm/wavecalm/internal/engine"
	"github.com/wavecalm/wavecalm/internal/web"
)

func main() {
	var (
		configPath = flag.String("config", "", "Optional config file (yaml)")
		deviceName = flag.String("audio-device", "", "PortAudio input device name (substring match)")
		width      = flag.Int("width", 0, "Frame width in cells (0 = autodetect)")
		height     = flag.Int("height", 0, "Frame height in cells (0 = autodetect)")
		targetFPS  = flag.Float64("fps", 60, "Target frames per second")
		bufferSize = flag.Int("buffer-size", 2048, "Analysis window size (power of two recommended)")
		noAudio    = flag.Bool("no-audio", false, "Run with the synthetic speech generator")
		themeID    = flag.String("theme", "", "Startup theme id")
		waveCount  = flag.Int("waves", 0, "Wave layer count (0 = default)")
		showStatus = flag.Bool("status", true, "Display the status line")
		useSDL     = flag.Bool("sdl", false, "Render into an SDL window (requires -tags sdl build)")
		noColor    = flag.Bool("no-color", false, "Disable ANSI color output")
		webPort    = flag.Int("web-port", 0, "Control server port (0 = disabled)")
		profile    = flag.String("profile", "", "Write per-frame timing CSV to this path")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		listDevs   = flag.Bool("list-audio-devices", false, "List audio input devices and exit")
	)
	flag.Parse()

	log := newLogger(*debug)

	v := viper.New()
	v.SetDefault("fps", *targetFPS)
	v.SetDefault("bufferSize", *bufferSize)
	v.SetDefault("theme", *themeID)
	v.SetDefault("waves", *waveCount)
	v.SetDefault("webPort", *webPort)
	if *configPath != "" {
		v.SetConfigFile(*configPath)
		if err := v.ReadInConfig(); err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("config file unreadable")
		}
	}
	// Explicit flags win over file values.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "fps":
			v.Set("fps", *targetFPS)
		case "buffer-size":
			v.Set("bufferSize", *bufferSize)
		case "theme":
			v.Set("theme", *themeID)
		case "waves":
			v.Set("waves", *waveCount)
		case "web-port":
			v.Set("webPort", *webPort)
		}
	})

	if *width <= 0 || *height <= 0 {
		if fd := int(os.Stdout.Fd()); fd >= 0 {
			if w, h, err := term.GetSize(fd); err == nil {
				if *width <= 0 {
					*width = w
				}
				if *height <= 0 {
					*height = h
				}
			}
		}
	}

	needAudio := !*noAudio || *listDevs
	if needAudio {
		if err := audio.Initialize(); err != nil {
			log.Fatal().Err(err).Msg("portaudio init failed")
		}
		defer audio.Terminate()
	}

	if *listDevs {
		devices, err := audio.ListInputDevices()
		if err != nil {
			log.Fatal().Err(err).Msg("list devices")
		}
		fmt.Printf("\n=== Audio Input Devices ===\n\n")
		for _, dev := range devices {
			marker := ""
			if dev.IsDefaultInput {
				marker = " (default)"
			}
			fmt.Printf("- %s [%s]%s\n    inputs:%d sample:%.0f Hz\n",
				dev.Name, dev.HostAPI, marker, dev.MaxInput, dev.DefaultSampleHz)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	eng, err := engine.New(log, engine.Config{
		DeviceName:   *deviceName,
		Width:        *width,
		Height:       *height,
		TargetFPS:    v.GetFloat64("fps"),
		BufferSize:   v.GetInt("bufferSize"),
		DisableAudio: *noAudio,
		ShowStatus:   *showStatus,
		Theme:        v.GetString("theme"),
		WaveCount:    v.GetInt("waves"),
		UseSDL:       *useSDL,
		UseANSI:      !*noColor,
		ProfilePath:  *profile,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine setup failed")
	}
	defer func() {
		if err := eng.Close(); err != nil {
			log.Warn().Err(err).Msg("cleanup error")
		}
	}()

	if port := v.GetInt("webPort"); port > 0 {
		server := web.NewServer(log, eng)
		go func() {
			if err := server.Start(ctx, port); err != nil {
				log.Error().Err(err).Msg("control server stopped")
			}
		}()
	}

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("runtime error")
	}
}

// newLogger writes human-readable logs to stderr; stdout belongs to the
// rendered frames.
func newLogger(debug bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}
