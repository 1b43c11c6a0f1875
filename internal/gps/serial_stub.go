//go:build !linux

package gps

import (
	"errors"
	"os"
)

// openSerial needs Linux termios. Elsewhere the serial source fails on
// open and the service keeps retrying; use gpsd or -sim instead.
func openSerial(string, int) (*os.File, error) {
	return nil, errors.New("serial gps is only supported on linux")
}
