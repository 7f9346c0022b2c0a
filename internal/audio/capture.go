// Package audio wraps PortAudio microphone capture for the live feature
// driver. The visualization core itself never touches this package.
package audio

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// Capture owns a PortAudio input stream and exposes thread-safe access to
// the most recent window of mono samples.
type Capture struct {
	stream     *portaudio.Stream
	sampleRate float64
	device     *portaudio.DeviceInfo

	mu     sync.RWMutex
	buffer []float32
	index  int
}

// Config controls how a Capture instance is created.
type Config struct {
	DeviceName string // substring match; empty picks the best microphone
	BufferSize int    // analysis window, default 2048
}

const defaultBufferSize = 2048

// NewCapture opens a mono PortAudio stream on the selected microphone.
func NewCapture(cfg Config) (*Capture, error) {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = defaultBufferSize
	}

	device, err := findMicrophone(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		sampleRate: device.DefaultSampleRate,
		buffer:     make([]float32, cfg.BufferSize),
		device:     device,
	}

	framesPerBuffer := len(c.buffer)
	if framesPerBuffer < 64 {
		framesPerBuffer = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: 1,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      c.sampleRate,
		FramesPerBuffer: framesPerBuffer,
	}, c.process)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	c.stream = stream

	if err := c.stream.Start(); err != nil {
		_ = c.stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return c, nil
}

// Close stops and closes the underlying stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	if err := c.stream.Stop(); err != nil && !isAlreadyStopped(err) {
		return err
	}
	return c.stream.Close()
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// Device returns the PortAudio device behind the stream.
func (c *Capture) Device() *portaudio.DeviceInfo { return c.device }

// Samples copies the most recent window out of the internal ring buffer in
// chronological order.
func (c *Capture) Samples() []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	cp := make([]float32, len(c.buffer))
	copy(cp, c.buffer[c.index:])
	copy(cp[len(c.buffer)-c.index:], c.buffer[:c.index])
	return cp
}

func (c *Capture) process(in []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(in) == 0 {
		return
	}
	if len(in) >= len(c.buffer) {
		copy(c.buffer, in[len(in)-len(c.buffer):])
		c.index = 0
		return
	}
	if c.index+len(in) <= len(c.buffer) {
		copy(c.buffer[c.index:], in)
		c.index = (c.index + len(in)) % len(c.buffer)
		return
	}
	remaining := len(c.buffer) - c.index
	copy(c.buffer[c.index:], in[:remaining])
	copy(c.buffer, in[remaining:])
	c.index = len(in) - remaining
}

// findMicrophone selects an input device. Speech is the signal of interest,
// so real microphones score above loopback/monitor devices.
func findMicrophone(name string) (*portaudio.DeviceInfo, error) {
	if name != "" {
		return findDeviceByName(name)
	}

	if dev, err := portaudio.DefaultInputDevice(); err == nil && dev != nil && dev.MaxInputChannels > 0 {
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}

	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}
	loopback := []string{"monitor", "loopback", "stereo mix", "what u hear"}

	var results []scored
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		score := d.MaxInputChannels
		lower := strings.ToLower(d.Name)
		for _, kw := range loopback {
			if strings.Contains(lower, kw) {
				score -= 30
				break
			}
		}
		if strings.Contains(lower, "mic") {
			score += 20
		}
		if strings.Contains(lower, "default") {
			score += 10
		}
		results = append(results, scored{dev: d, score: score})
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no suitable audio input device found")
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})
	return results[0].dev, nil
}

func findDeviceByName(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	name = strings.ToLower(name)
	for _, device := range devices {
		if device.MaxInputChannels == 0 {
			continue
		}
		if strings.Contains(strings.ToLower(device.Name), name) {
			return device, nil
		}
	}
	return nil, fmt.Errorf("audio device %q not found", name)
}

// isAlreadyStopped checks for the PortAudio error raised when stopping a
// stream that is not running.
func isAlreadyStopped(err error) bool {
	return err != nil && strings.Contains(err.Error(), "PaErrorCode -9986")
}
