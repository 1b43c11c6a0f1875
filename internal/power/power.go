// Package power owns the INA219 pack monitor and turns bus voltage
// into the environment's battery record. State of charge is estimated
// from a 3S li-ion discharge table; good enough to decide "plenty" vs
// "go home", which is all the engine asks of it.
package power

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"

	"urchin/internal/envstate"
	"urchin/internal/metrics"
)

const (
	// A sustained failure streak means the monitor fell off the bus;
	// reopen instead of hammering a dead handle.
	reopenAfterFailures = 10

	backoffMin = 250 * time.Millisecond
	backoffMax = 10 * time.Second
)

type gauge interface {
	Sense() (ina219.PowerMonitor, error)
}

var openGaugeFn = openGauge

// Probe opens the monitor, takes one reading and closes it, for
// startup self-tests.
func Probe(busPath string, addr int) error {
	g, closer, err := openGaugeFn(busPath, addr)
	if err != nil {
		return err
	}
	defer closer.Close()
	if _, err := g.Sense(); err != nil {
		return fmt.Errorf("sense: %w", err)
	}
	return nil
}

type Config struct {
	Bus            string
	Address        int
	SampleInterval time.Duration
}

// Snapshot is the battery monitor's status for the web server.
type Snapshot struct {
	Connected bool    `json:"connected"`
	Voltage   float64 `json:"voltage"`
	Current   float64 `json:"current"`
	Fraction  float64 `json:"fraction"`
	Samples   uint64  `json:"samples"`
	LastError string  `json:"last_error,omitempty"`
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
		cfg.Address = 0x40
	}
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = time.Second
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

// Start launches the sampling goroutine. A missing monitor is not an
// error: the goroutine keeps retrying and the battery stays stale,
// which the engine treats as low.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("power: service is nil")
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
		g, closer, err := openGaugeFn(s.cfg.Bus, s.cfg.Address)
		if err != nil {
			s.setErr(err.Error())
			s.m.SensorError("power")
			s.log.Warn().Err(err).Str("bus", s.cfg.Bus).Dur("retry_in", backoff).Msg("battery monitor open failed")
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
		s.log.Info().Str("bus", s.cfg.Bus).Int("addr", s.cfg.Address).Msg("battery monitor connected")

		again := s.sample(ctx, g)
		closer.Close()
		s.setState(func(sn *Snapshot) { sn.Connected = false })
		if !again {
			return
		}
	}
}

// sample polls until the service stops (returns false) or the monitor
// needs reopening (returns true).
func (s *Service) sample(ctx context.Context, g gauge) bool {
	t := time.NewTicker(s.cfg.SampleInterval)
	defer t.Stop()

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return false
		case <-s.stopCh:
			return false
		case <-t.C:
			pm, err := g.Sense()
			if err != nil {
				failures++
				s.m.SensorError("power")
				s.setErr(err.Error())
				if failures >= reopenAfterFailures {
					s.log.Warn().Err(err).Int("failures", failures).Msg("battery monitor failing, reopening")
					return true
				}
				continue
			}
			failures = 0

			voltage := float64(pm.Voltage) / float64(physic.Volt)
			bat := envstate.Battery{
				Voltage:  voltage,
				Current:  float64(pm.Current) / float64(physic.Ampere),
				Fraction: socFromVoltage(voltage),
			}
			s.env.PublishBattery(bat)
			s.m.SetBatteryFraction(bat.Fraction)

			s.setState(func(sn *Snapshot) {
				sn.Connected = true
				sn.Voltage = bat.Voltage
				sn.Current = bat.Current
				sn.Fraction = bat.Fraction
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
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
}
