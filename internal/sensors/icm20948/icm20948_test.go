package icm20948

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeI2C struct {
	regs   map[byte][]byte
	writes []writeOp

	readErrFor map[byte]error
}

type writeOp struct {
	reg byte
	val byte
}

func (f *fakeI2C) ReadRegU8(reg byte) (byte, error) {
	if err := f.readErrFor[reg]; err != nil {
		return 0, err
	}
	b := f.regs[reg]
	if len(b) < 1 {
		return 0, errors.New("no reg")
	}
	return b[0], nil
}

func (f *fakeI2C) ReadReg(reg byte, dst []byte) error {
	if err := f.readErrFor[reg]; err != nil {
		return err
	}
	b := f.regs[reg]
	if len(b) < len(dst) {
		return errors.New("short reg")
	}
	copy(dst, b[:len(dst)])
	return nil
}

func (f *fakeI2C) WriteReg(reg, value byte) error {
	f.writes = append(f.writes, writeOp{reg: reg, val: value})
	return nil
}

func noSleep(t *testing.T) {
	t.Helper()
	old := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = old })
}

func TestNewRejectsWrongWhoAmI(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {0x71}}}
	if _, err := newWithIO(f); err == nil {
		t.Fatal("expected whoami mismatch error")
	}
}

func TestNewSurfacesBusError(t *testing.T) {
	noSleep(t)

	busErr := errors.New("i2c: remote I/O error")
	f := &fakeI2C{readErrFor: map[byte]error{regWhoAmI: busErr}}
	if _, err := newWithIO(f); !errors.Is(err, busErr) {
		t.Fatalf("err = %v, want wrapped bus error", err)
	}
}

func TestNewConfiguresSensor(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	if _, err := newWithIO(f); err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	var sawReset, sawWake, sawBank2, sawGyroFS, sawAccelFS bool
	for _, w := range f.writes {
		switch {
		case w.reg == regPwrMgmt1 && w.val == bitReset:
			sawReset = true
		case w.reg == regPwrMgmt1 && w.val == clkPLL:
			sawWake = true
		case w.reg == regBankSel && w.val == bank2<<4:
			sawBank2 = true
		case w.reg == regGyroConfig && w.val == fsGyro500dps:
			sawGyroFS = true
		case w.reg == regAccelConfig && w.val == fsAccel4g:
			sawAccelFS = true
		}
	}
	if !sawReset || !sawWake {
		t.Fatalf("missing reset/wake writes: %+v", f.writes)
	}
	if !sawBank2 {
		t.Fatal("bank 2 never selected")
	}
	if !sawGyroFS || !sawAccelFS {
		t.Fatal("full-scale configuration missing")
	}
}

func TestReadScalesToSIUnits(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	// Half of positive full scale on ax and gx, negative on az and gz.
	f.regs[regAccelXoutH] = []byte{
		0x40, 0x00, // ax = 16384 -> 2g
		0x00, 0x00, // ay
		0xC0, 0x00, // az = -16384 -> -2g
		0x40, 0x00, // gx = 16384 -> 250 dps at ±500 full scale
		0x00, 0x00, // gy
		0xC0, 0x00, // gz -> -250 dps
	}

	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}
	s, err := d.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}

	if want := 2 * standardGravity; math.Abs(s.Accel[0]-want) > 0.01 {
		t.Fatalf("accel x = %v, want ~%v", s.Accel[0], want)
	}
	if want := -2 * standardGravity; math.Abs(s.Accel[2]-want) > 0.01 {
		t.Fatalf("accel z = %v, want ~%v", s.Accel[2], want)
	}
	if math.Abs(s.Gyro[0]-250) > 0.1 {
		t.Fatalf("gyro x = %v, want ~250", s.Gyro[0])
	}
	if math.Abs(s.Gyro[2]+250) > 0.1 {
		t.Fatalf("gyro z = %v, want ~-250", s.Gyro[2])
	}
	if s.Accel[1] != 0 || s.Gyro[1] != 0 {
		t.Fatalf("y axes = %v %v, want 0", s.Accel[1], s.Gyro[1])
	}
}

func TestReadSurfacesBlockReadError(t *testing.T) {
	noSleep(t)

	f := &fakeI2C{regs: map[byte][]byte{regWhoAmI: {whoAmIVal}}}
	d, err := newWithIO(f)
	if err != nil {
		t.Fatalf("newWithIO: %v", err)
	}

	f.readErrFor = map[byte]error{regAccelXoutH: errors.New("i2c: timeout")}
	if _, err := d.Read(); err == nil {
		t.Fatal("expected read error")
	}
}
