package sink

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/host/v3"

	"urchin/internal/config"
	"urchin/internal/control"
	"urchin/internal/metrics"
)

// OpenHardware powers the strip and opens the SPI device. The caller
// owns the returned sink; Close blanks the LEDs, closes the port and
// drops the power line.
func OpenHardware(cfg config.LEDConfig, controls *control.Controls, log zerolog.Logger, m *metrics.Metrics) (*Hardware, error) {
	var power *powerLine
	if cfg.PowerGPIO >= 0 {
		var err error
		power, err = openPowerLine(cfg.PowerGPIO)
		if err != nil {
			return nil, fmt.Errorf("led power gpio: %w", err)
		}
	}
	fail := func(err error) (*Hardware, error) {
		if power != nil {
			power.Close()
		}
		return nil, err
	}

	if _, err := host.Init(); err != nil {
		return fail(fmt.Errorf("periph host init: %w", err))
	}
	port, err := spireg.Open(cfg.SPIPort)
	if err != nil {
		return fail(fmt.Errorf("open spi port %q: %w", cfg.SPIPort, err))
	}

	opts := nrzled.Opts{
		NumPixels: cfg.Spines * cfg.LEDsPerSpine,
		Channels:  3,
		Freq:      physic.Frequency(cfg.SPIHz) * physic.Hertz,
	}
	dev, err := nrzled.NewSPI(port, &opts)
	if err != nil {
		port.Close()
		return fail(fmt.Errorf("open led strip: %w", err))
	}

	release := func() error {
		err := port.Close()
		if power != nil {
			if perr := power.Close(); err == nil {
				err = perr
			}
		}
		return err
	}
	log.Info().Int("pixels", opts.NumPixels).Int("spi_hz", cfg.SPIHz).Msg("led strip opened")
	return NewHardware(dev, release, controls, log, m), nil
}

// openPowerLine requests the BCM line as an output driven high, which
// enables the strip's power MOSFET. Header GPIOs usually sit on
// gpiochip0, but Pi 5 kernels have moved them around, so every chip
// under /dev gets a try.
func openPowerLine(pin int) (*powerLine, error) {
	lineName := fmt.Sprintf("GPIO%d", pin)
	for _, chipPath := range gpioChips() {
		if p := requestOn(chipPath, lineName); p != nil {
			return p, nil
		}
	}
	return nil, fmt.Errorf("gpio line %q not found (or busy)", lineName)
}

func gpioChips() []string {
	chips, _ := filepath.Glob("/dev/gpiochip*")
	sort.Strings(chips)
	return chips
}

func requestOn(chipPath, lineName string) *powerLine {
	chip, err := gpiocdev.NewChip(chipPath)
	if err != nil {
		return nil
	}
	offset, err := chip.FindLine(lineName)
	if err != nil {
		_ = chip.Close()
		return nil
	}
	line, err := chip.RequestLine(offset, gpiocdev.AsOutput(1), gpiocdev.WithConsumer("urchin-led-power"))
	if err != nil {
		_ = chip.Close()
		return nil
	}
	return &powerLine{chip: chip, line: line}
}

type powerLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// Close cuts strip power before releasing the line.
func (p *powerLine) Close() error {
	if p == nil || p.line == nil {
		return nil
	}
	_ = p.line.SetValue(0)
	err := p.line.Close()
	p.line = nil
	if p.chip != nil {
		_ = p.chip.Close()
		p.chip = nil
	}
	return err
}
