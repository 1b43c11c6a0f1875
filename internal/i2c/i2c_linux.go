//go:build linux

// Package i2c is a thin wrapper over the Linux /dev/i2c-* character
// device. Transfers go through the I2C_RDWR ioctl so a register read is
// a single combined write+read with a repeated start, which the IMU
// requires.
package i2c

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"golang.org/x/sys/unix"
)

const (
	ioctlRdwr = 0x0707
	flagRead  = 0x0001
)

// Kernel ABI structs for I2C_RDWR (struct i2c_msg / i2c_rdwr_ioctl_data).
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	buf   uintptr
}

type i2cRdwrData struct {
	msgs  uintptr
	nmsgs uint32
}

// Bus is an opened I2C adapter. Multiple Dev handles may share a Bus,
// but transfers are not serialized here; each device must be owned by a
// single goroutine.
type Bus struct {
	f    *os.File
	path string
}

func Open(path string) (*Bus, error) {
	path = filepath.Clean(path)
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus: %w", err)
	}
	return &Bus{f: f, path: path}, nil
}

func (b *Bus) Path() string {
	if b == nil {
		return ""
	}
	return b.path
}

func (b *Bus) Close() error {
	if b == nil || b.f == nil {
		return nil
	}
	err := b.f.Close()
	b.f = nil
	return err
}

// Dev binds a 7-bit address on the bus.
func (b *Bus) Dev(addr uint16) (*Dev, error) {
	if b == nil || b.f == nil {
		return nil, errors.New("i2c: bus is not open")
	}
	if addr == 0 || addr > 0x7F {
		return nil, fmt.Errorf("i2c: invalid 7-bit address %#x", addr)
	}
	return &Dev{bus: b, addr: addr}, nil
}

type Dev struct {
	bus  *Bus
	addr uint16
}

// Tx performs one combined transfer: write w (if any), then read into r
// (if any) under a repeated start.
func (d *Dev) Tx(w, r []byte) error {
	if d == nil || d.bus == nil || d.bus.f == nil {
		return errors.New("i2c: device is nil")
	}

	msgs := make([]i2cMsg, 0, 2)
	if len(w) > 0 {
		msgs = append(msgs, i2cMsg{addr: d.addr, len: uint16(len(w)), buf: uintptr(unsafe.Pointer(&w[0]))})
	}
	if len(r) > 0 {
		msgs = append(msgs, i2cMsg{addr: d.addr, flags: flagRead, len: uint16(len(r)), buf: uintptr(unsafe.Pointer(&r[0]))})
	}
	if len(msgs) == 0 {
		return nil
	}

	data := i2cRdwrData{msgs: uintptr(unsafe.Pointer(&msgs[0])), nmsgs: uint32(len(msgs))}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, d.bus.f.Fd(), uintptr(ioctlRdwr), uintptr(unsafe.Pointer(&data)))
	if errno != 0 {
		return fmt.Errorf("i2c %s addr %#x: %w", d.bus.path, d.addr, errno)
	}
	return nil
}

func (d *Dev) ReadReg(reg byte, dst []byte) error {
	return d.Tx([]byte{reg}, dst)
}

func (d *Dev) ReadRegU8(reg byte) (byte, error) {
	var b [1]byte
	if err := d.ReadReg(reg, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Dev) WriteReg(reg, value byte) error {
	return d.Tx([]byte{reg, value}, nil)
}
