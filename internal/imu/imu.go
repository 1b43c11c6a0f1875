// Package imu owns the ICM-20948 and turns its raw samples into the
// environment's attitude: tilt azimuth, rotation rate, and a motion
// verdict. The sensor is polled on a fixed interval; a missing or
// failing sensor is retried forever and only ever costs staleness.
package imu

import (
	"context"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/envstate"
	"urchin/internal/i2c"
	"urchin/internal/metrics"
	"urchin/internal/sensors/icm20948"
)

const (
	filterWindow = 15

	// accelShockThreshold flags motion from a jolt even when rotation
	// stays slow, in m/s² of deviation from standard gravity.
	accelShockThreshold = 0.5
	standardGravity     = 9.80665

	// A sustained failure streak means the device fell off the bus;
	// reopen instead of hammering a dead handle.
	reopenAfterFailures = 25

	backoffMin = 250 * time.Millisecond
	backoffMax = 10 * time.Second
)

type device interface {
	Read() (icm20948.Sample, error)
}

var openDeviceFn = openDevice

func openDevice(busPath string, addr uint16) (device, io.Closer, error) {
	bus, err := i2c.Open(busPath)
	if err != nil {
		return nil, nil, err
	}
	dev, err := bus.Dev(addr)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	d, err := icm20948.New(dev)
	if err != nil {
		bus.Close()
		return nil, nil, err
	}
	return d, bus, nil
}

// Probe opens the sensor once and closes it, for startup self-tests.
func Probe(busPath string, addr uint16) error {
	_, closer, err := openDeviceFn(busPath, addr)
	if err != nil {
		return err
	}
	return closer.Close()
}

type Config struct {
	Bus                    string
	Address                uint16
	SampleInterval         time.Duration
	MotionRateThresholdDPS float64
}

// Snapshot is the motion source's status for the web server.
type Snapshot struct {
	Connected      bool      `json:"connected"`
	OrientationDeg float64   `json:"orientation_deg"`
	RateDPS        float64   `json:"rate_dps"`
	Moving         bool      `json:"moving"`
	Samples        uint64    `json:"samples"`
	LastUpdateAt   time.Time `json:"last_update_utc,omitempty"`
	LastError      string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	env *envstate.Environment
	log zerolog.Logger
	m   *metrics.Metrics

	mu   sync.RWMutex
	snap Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, env *envstate.Environment, m *metrics.Metrics, log zerolog.Logger) *Service {
	if cfg.Bus == "" {
		cfg.Bus = "/dev/i2c-1"
	}
	if cfg.Address == 0 {
		cfg.Address = icm20948.DefaultAddress
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 20 * time.Millisecond
	}
	if cfg.MotionRateThresholdDPS <= 0 {
		cfg.MotionRateThresholdDPS = 20
	}
	return &Service{cfg: cfg, env: env, log: log, m: m, stopCh: make(chan struct{})}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start launches the sampling goroutine. A missing sensor is not an
// error: the goroutine keeps retrying and the attitude stays stale.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("imu: service is nil")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context) {
	backoff := backoffMin
	for {
		dev, closer, err := openDeviceFn(s.cfg.Bus, s.cfg.Address)
		if err != nil {
			s.setErr(err.Error())
			s.m.SensorError("imu")
			s.log.Warn().Err(err).Str("bus", s.cfg.Bus).Dur("retry_in", backoff).Msg("imu open failed")
			if !s.sleep(ctx, backoff) {
				return
			}
			if backoff *= 2; backoff > backoffMax {
				backoff = backoffMax
			}
			continue
		}
		backoff = backoffMin

		s.setState(func(sn *Snapshot) { sn.Connected = true })
		s.log.Info().Str("bus", s.cfg.Bus).Uint16("addr", s.cfg.Address).Msg("imu connected")

		again := s.sample(ctx, dev)
		closer.Close()
		s.setState(func(sn *Snapshot) { sn.Connected = false })
		if !again {
			return
		}
	}
}

// sample polls until the service stops (returns false) or the device
// needs reopening (returns true).
func (s *Service) sample(ctx context.Context, dev device) bool {
	t := time.NewTicker(s.cfg.SampleInterval)
	defer t.Stop()

	accelF := newVecFilter(filterWindow)
	gyroF := newVecFilter(filterWindow)
	failures := 0

	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		case <-t.C:
			raw, err := dev.Read()
			if err != nil {
				failures++
				s.m.SensorError("imu")
				s.setErr(err.Error())
				if failures >= reopenAfterFailures {
					s.log.Warn().Err(err).Int("failures", failures).Msg("imu read failing, reopening")
					return true
				}
				continue
			}
			failures = 0

			accel := accelF.Add(raw.Accel)
			gyro := gyroF.Add(raw.Gyro)

			att := envstate.Attitude{
				OrientationDeg: tiltAzimuthDeg(accel),
				RateDPS:        mag3(gyro),
				Accel:          accel,
			}
			moving := att.RateDPS > s.cfg.MotionRateThresholdDPS ||
				math.Abs(mag3(accel)-standardGravity) > accelShockThreshold
			s.env.PublishAttitude(att, moving)

			s.setState(func(sn *Snapshot) {
				sn.Connected = true
				sn.OrientationDeg = att.OrientationDeg
				sn.RateDPS = att.RateDPS
				sn.Moving = moving
				sn.Samples++
				sn.LastError = ""
			})
		}
	}
}

// sleep waits for d unless the service is stopping first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
	s.snap.LastUpdateAt = time.Now().UTC()
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
	s.snap.LastUpdateAt = time.Now().UTC()
}
