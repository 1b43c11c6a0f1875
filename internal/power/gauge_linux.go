package power

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ina219"
	"periph.io/x/host/v3"
)

// openGauge opens the INA219 on the named bus. periph registers Linux
// buses under their /dev/i2c-N paths, so the configured path is usable
// as the registry name directly.
func openGauge(busPath string, addr int) (gauge, io.Closer, error) {
	if _, err := host.Init(); err != nil {
		return nil, nil, fmt.Errorf("periph host init: %w", err)
	}
	bus, err := i2creg.Open(busPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open i2c bus %q: %w", busPath, err)
	}
	opts := ina219.DefaultOpts
	if addr != 0 {
		opts.Address = addr
	}
	dev, err := ina219.New(bus, &opts)
	if err != nil {
		bus.Close()
		return nil, nil, fmt.Errorf("open ina219: %w", err)
	}
	return dev, bus, nil
}
