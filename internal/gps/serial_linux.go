//go:build linux

package gps

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// serialSpeeds are the line rates GPS modules commonly ship with. The
// receiver on the sculpture talks 9600 unless reflashed.
var serialSpeeds = map[int]uint32{
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
}

// openSerial opens the UART in raw 8N1 mode. VMIN/VTIME are set so a
// read returns as soon as one byte arrives but never hangs more than a
// second once data stops.
func openSerial(path string, baud int) (*os.File, error) {
	speed, ok := serialSpeeds[baud]
	if !ok {
		return nil, fmt.Errorf("unsupported baud %d", baud)
	}

	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, err
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("get termios: %w", err)
	}
	configureRaw(t, speed)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, fmt.Errorf("set termios: %w", err)
	}
	return f, nil
}

// configureRaw strips all line-discipline processing and forces 8N1 at
// the given speed. NMEA is plain ASCII lines; the scanner does its own
// framing.
func configureRaw(t *unix.Termios, speed uint32) {
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CBAUD
	t.Cflag |= unix.CS8 | speed
	t.Ispeed = speed
	t.Ospeed = speed

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 10
}
