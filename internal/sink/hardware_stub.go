//go:build !linux

package sink

import (
	"errors"

	"github.com/rs/zerolog"

	"urchin/internal/config"
	"urchin/internal/control"
	"urchin/internal/metrics"
)

// OpenHardware needs the Linux SPI and GPIO character devices. On other
// platforms the daemon runs with the broadcast sink only.
func OpenHardware(config.LEDConfig, *control.Controls, zerolog.Logger, *metrics.Metrics) (*Hardware, error) {
	return nil, errors.New("led strip output is only supported on linux")
}
