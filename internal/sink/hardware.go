package sink

import (
	"sync"

	"github.com/rs/zerolog"

	"urchin/internal/control"
	"urchin/internal/frame"
	"urchin/internal/metrics"
)

// strip is the WS281x chain as the sink drives it: packed RGB pixels,
// 3 bytes per LED, spines concatenated in wiring order. The device
// driver owns the NRZ encoding and the strip's on-wire channel order.
// Satisfied by *nrzled.Dev.
type strip interface {
	Write(pixels []byte) (int, error)
	Halt() error
}

// Hardware writes each frame to the LED strip over SPI. Write failures
// are logged and counted; the render loop never sees them.
type Hardware struct {
	log      zerolog.Logger
	metrics  *metrics.Metrics
	controls *control.Controls

	dev     strip
	release func() error

	buf []byte // reused flatten buffer; Accept is single-caller

	mu        sync.Mutex
	writes    uint64
	writeErrs uint64
	lastErr   string
}

// HardwareSnapshot is the sink's status for the web server.
type HardwareSnapshot struct {
	Writes      uint64 `json:"writes"`
	WriteErrors uint64 `json:"write_errors"`
	LastError   string `json:"last_error,omitempty"`
}

// NewHardware wraps an opened strip. release, if non-nil, is called on
// Close after the strip halts (the platform open path uses it to close
// the SPI port and drop the power-enable line).
func NewHardware(dev strip, release func() error, controls *control.Controls, log zerolog.Logger, m *metrics.Metrics) *Hardware {
	return &Hardware{
		log:      log,
		metrics:  m,
		controls: controls,
		dev:      dev,
		release:  release,
	}
}

// Accept scales the frame by the current brightness, flattens it to the
// strip's pixel stream, and writes the whole chain once.
func (h *Hardware) Accept(f *frame.Frame) {
	pct := 100
	if h.controls != nil {
		pct = h.controls.Brightness()
	}

	need := 0
	for _, spine := range f.Spines {
		need += len(spine) * 3
	}
	if cap(h.buf) < need {
		h.buf = make([]byte, need)
	}
	buf := h.buf[:need]

	i := 0
	for _, spine := range f.Spines {
		for _, c := range spine {
			if pct < 100 {
				c = c.Scaled(pct)
			}
			buf[i] = c.R
			buf[i+1] = c.G
			buf[i+2] = c.B
			i += 3
		}
	}

	_, err := h.dev.Write(buf)

	h.mu.Lock()
	h.writes++
	if err != nil {
		h.writeErrs++
		h.lastErr = err.Error()
	}
	h.mu.Unlock()

	if err != nil {
		h.metrics.SinkError("hardware")
		h.log.Warn().Err(err).Msg("strip write failed")
	}
}

// Snapshot returns the sink's counters.
func (h *Hardware) Snapshot() HardwareSnapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	return HardwareSnapshot{
		Writes:      h.writes,
		WriteErrors: h.writeErrs,
		LastError:   h.lastErr,
	}
}

// Close blanks the strip, then releases the SPI port and power line.
func (h *Hardware) Close() error {
	if err := h.dev.Halt(); err != nil {
		h.log.Warn().Err(err).Msg("strip halt failed")
	}
	if h.release == nil {
		return nil
	}
	return h.release()
}
