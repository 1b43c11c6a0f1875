// Package icm20948 drives the ICM-20948 IMU over I2C: probe, wake, and
// raw accel/gyro block reads. The register map is bank-switched; the
// driver tracks the selected bank to avoid redundant writes. Full scale
// is fixed at ±4g / ±500dps, plenty for a sculpture being carried
// around.
package icm20948

import (
	"fmt"
	"time"

	"urchin/internal/i2c"
)

var sleep = time.Sleep

// DefaultAddress is the address with AD0 pulled high, as wired on the
// sculpture's hat.
const DefaultAddress = 0x69

const (
	regWhoAmI  = 0x00
	whoAmIVal  = 0xEA
	regBankSel = 0x7F

	// Bank 0.
	regPwrMgmt1   = 0x06
	bitReset      = 0x80
	clkPLL        = 0x01
	regIntEnable  = 0x38
	regAccelXoutH = 0x2D // 12-byte contiguous accel+gyro block

	// Bank 2.
	bank2           = 2
	regGyroSmplrt   = 0x00
	regGyroConfig   = 0x01
	regAccelSmplrt2 = 0x11
	regAccelConfig  = 0x14

	fsGyro500dps = 0x02
	fsAccel4g    = 0x02

	// Internal sample rate divider: ODR = 1125Hz / (div+1). 100Hz keeps
	// the registers fresher than the daemon's 50Hz poll.
	rateDiv = 1125/100 - 1

	standardGravity = 9.80665
)

// Sample is one raw reading. Accel in m/s², gyro in deg/s, in the
// sensor's own axes.
type Sample struct {
	Time  time.Time
	Accel [3]float64
	Gyro  [3]float64
}

type regIO interface {
	ReadRegU8(reg byte) (byte, error)
	ReadReg(reg byte, dst []byte) error
	WriteReg(reg, value byte) error
}

type Device struct {
	dev     regIO
	curBank byte

	scaleAccel float64
	scaleGyro  float64
}

// New probes WHO_AM_I and configures the sensor. A mismatch or bus
// error fails loudly so the caller can back off and retry.
func New(dev *i2c.Dev) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	return newWithIO(dev)
}

func newWithIO(dev regIO) (*Device, error) {
	if dev == nil {
		return nil, fmt.Errorf("icm20948: dev is nil")
	}
	d := &Device{dev: dev, curBank: 0xFF}

	who, err := d.dev.ReadRegU8(regWhoAmI)
	if err != nil {
		return nil, fmt.Errorf("icm20948: whoami read: %w", err)
	}
	if who != whoAmIVal {
		return nil, fmt.Errorf("icm20948: whoami = %#02x, want %#02x", who, whoAmIVal)
	}

	if err := d.init(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) init() error {
	if err := d.setBank(0); err != nil {
		return err
	}

	_ = d.dev.WriteReg(regIntEnable, 0x00)

	if err := d.dev.WriteReg(regPwrMgmt1, bitReset); err != nil {
		return fmt.Errorf("icm20948: reset: %w", err)
	}
	sleep(100 * time.Millisecond)

	// Reset clears the bank cache with everything else.
	d.curBank = 0xFF
	if err := d.setBank(0); err != nil {
		return err
	}
	if err := d.dev.WriteReg(regPwrMgmt1, clkPLL); err != nil {
		return fmt.Errorf("icm20948: wake: %w", err)
	}
	sleep(10 * time.Millisecond)

	if err := d.setBank(bank2); err != nil {
		return err
	}
	_ = d.dev.WriteReg(regGyroSmplrt, rateDiv)
	_ = d.dev.WriteReg(regAccelSmplrt2, rateDiv)
	if err := d.dev.WriteReg(regGyroConfig, fsGyro500dps); err != nil {
		return fmt.Errorf("icm20948: gyro config: %w", err)
	}
	if err := d.dev.WriteReg(regAccelConfig, fsAccel4g); err != nil {
		return fmt.Errorf("icm20948: accel config: %w", err)
	}

	if err := d.setBank(0); err != nil {
		return err
	}

	d.scaleAccel = 4.0 / 32768.0 * standardGravity
	d.scaleGyro = 500.0 / 32768.0
	return nil
}

func (d *Device) setBank(bank byte) error {
	if d.curBank == bank {
		return nil
	}
	if err := d.dev.WriteReg(regBankSel, bank<<4); err != nil {
		return fmt.Errorf("icm20948: select bank %d: %w", bank, err)
	}
	d.curBank = bank
	return nil
}

// Read fetches one accel+gyro sample in a single block transfer.
func (d *Device) Read() (Sample, error) {
	if d == nil {
		return Sample{}, fmt.Errorf("icm20948: device is nil")
	}
	if err := d.setBank(0); err != nil {
		return Sample{}, err
	}

	var buf [12]byte
	if err := d.dev.ReadReg(regAccelXoutH, buf[:]); err != nil {
		return Sample{}, fmt.Errorf("icm20948: read sample: %w", err)
	}

	s := Sample{Time: time.Now()}
	for i := 0; i < 3; i++ {
		raw := int16(buf[2*i])<<8 | int16(buf[2*i+1])
		s.Accel[i] = float64(raw) * d.scaleAccel
	}
	for i := 0; i < 3; i++ {
		raw := int16(buf[6+2*i])<<8 | int16(buf[6+2*i+1])
		s.Gyro[i] = float64(raw) * d.scaleGyro
	}
	return s, nil
}
