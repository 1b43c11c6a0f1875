//go:build !linux

package power

import (
	"errors"
	"io"
)

// openGauge needs the Linux I2C character device.
func openGauge(string, int) (gauge, io.Closer, error) {
	return nil, nil, errors.New("battery monitor is only supported on linux")
}
