package engine

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// profiler appends per-frame section timings as CSV for offline inspection of
// where frame time goes when the governor starts degrading. A nil profiler is
// a no-op so call sites stay unconditional.
type profiler struct {
	file  *os.File
	start time.Time
	last  time.Time
}

func newProfiler(path string, log zerolog.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Warn().Err(err).Msg("frame profiler disabled")
		return nil
	}
	fmt.Fprintln(f, "timestamp,section,delta_ms")
	return &profiler{file: f}
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	now := time.Now()
	p.start = now
	p.last = now
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := time.Now()
	p.write(name, now.Sub(p.last).Seconds()*1000)
	p.last = now
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	p.write("frame_total", time.Since(p.start).Seconds()*1000)
}

func (p *profiler) write(section string, deltaMs float64) {
	fmt.Fprintf(p.file, "%s,%s,%.3f\n", time.Now().Format(time.RFC3339Nano), section, deltaMs)
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	return p.file.Close()
}
