package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/envstate"
)

// Attitude updates mimic the real sensor cadence; position and battery
// arrive about once a second like their hardware counterparts.
const (
	fastInterval = 50 * time.Millisecond
	slowInterval = time.Second
)

// Service publishes the profile into the environment on sensor-like
// cadences. It stands in for all three hardware services at once.
type Service struct {
	profile Profile
	env     *envstate.Environment
	log     zerolog.Logger

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(profile Profile, env *envstate.Environment, log zerolog.Logger) *Service {
	return &Service{
		profile: profile.withDefaults(),
		env:     env,
		log:     log,
		stopCh:  make(chan struct{}),
	}
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("sim: service is nil")
	}
	s.log.Info().
		Dur("motion_every", s.profile.MotionEvery).
		Dur("motion_burst", s.profile.MotionBurst).
		Dur("drain_cycle", s.profile.DrainCycle).
		Msg("sensor simulation running")
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
	t := time.NewTicker(fastInterval)
	defer t.Stop()

	var lastSlow time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-t.C:
			r := s.profile.At(now)
			s.env.PublishAttitude(r.Attitude, r.Moving)
			if now.Sub(lastSlow) >= slowInterval {
				lastSlow = now
				s.env.PublishPosition(r.Position)
				s.env.PublishBattery(r.Battery)
			}
		}
	}
}
