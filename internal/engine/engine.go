// Package engine runs the render loop: each tick takes one environment
// snapshot, classifies the sculpture's mood, renders one frame, and
// hands it to every sink. The loop is fixed-rate; a tick that runs long
// is skipped, never queued.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/control"
	"urchin/internal/envstate"
	"urchin/internal/frame"
	"urchin/internal/metrics"
	"urchin/internal/pattern"
	"urchin/internal/sink"
)

var nowFn = time.Now

type Config struct {
	TickRateHz             int
	MotionRateThresholdDPS float64
	StationaryWindow       time.Duration
	LowBatteryFraction     float64
}

// Snapshot is the engine's status for the web server.
type Snapshot struct {
	State      string    `json:"state"`
	Override   string    `json:"override,omitempty"`
	Ticks      uint64    `json:"ticks"`
	Overruns   uint64    `json:"overruns"`
	TickRateHz int       `json:"tick_rate_hz"`
	LastTickMs float64   `json:"last_tick_ms"`
	LastTickAt time.Time `json:"last_tick_utc,omitempty"`
}

type Service struct {
	cfg      Config
	period   time.Duration
	env      *envstate.Environment
	geom     *frame.Geometry
	sinks    []sink.Sink
	controls *control.Controls
	metrics  *metrics.Metrics
	log      zerolog.Logger

	mu   sync.RWMutex
	snap Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New builds the engine. The sinks are borrowed: the engine delivers to
// them but the caller owns their lifecycle.
func New(cfg Config, env *envstate.Environment, geom *frame.Geometry, sinks []sink.Sink, controls *control.Controls, m *metrics.Metrics, log zerolog.Logger) *Service {
	if cfg.TickRateHz <= 0 {
		cfg.TickRateHz = 30
	}
	if cfg.MotionRateThresholdDPS <= 0 {
		cfg.MotionRateThresholdDPS = 20
	}
	if cfg.StationaryWindow <= 0 {
		cfg.StationaryWindow = 3 * time.Minute
	}
	if cfg.LowBatteryFraction <= 0 {
		cfg.LowBatteryFraction = 0.15
	}

	return &Service{
		cfg:      cfg,
		period:   time.Second / time.Duration(cfg.TickRateHz),
		env:      env,
		geom:     geom,
		sinks:    sinks,
		controls: controls,
		metrics:  m,
		log:      log,
		snap:     Snapshot{TickRateHz: cfg.TickRateHz},
		stopCh:   make(chan struct{}),
	}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("engine: service is nil")
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
	t := time.NewTicker(s.period)
	defer t.Stop()

	s.log.Info().Int("hz", s.cfg.TickRateHz).Int("sinks", len(s.sinks)).Msg("render loop started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case now := <-t.C:
			// The ticker's channel holds at most one pending tick, so a
			// slow pass drops the ticks it missed instead of replaying
			// them in a burst.
			if d := s.tick(now); d > s.period {
				s.metrics.Overrun()
				s.mu.Lock()
				s.snap.Overruns++
				s.mu.Unlock()
			}
		}
	}
}

// tick renders one frame and delivers it. Returns how long the pass
// took so the loop can count overruns.
func (s *Service) tick(now time.Time) time.Duration {
	start := nowFn()

	snap := s.env.Snapshot(now)
	st := pattern.Classify(snap, pattern.Params{
		LowBatteryFraction:     s.cfg.LowBatteryFraction,
		MotionRateThresholdDPS: s.cfg.MotionRateThresholdDPS,
		StationaryWindow:       s.cfg.StationaryWindow,
	})

	// A pattern override replaces the calm states only. Low battery and
	// motion keep their patterns no matter what the operator picked.
	override := ""
	if s.controls != nil {
		if name, ok := s.controls.PatternOverride(); ok {
			if st == pattern.StateRecentlyStationary || st == pattern.StateIdle {
				override = name
			}
		}
	}

	var f *frame.Frame
	if override != "" {
		f = pattern.RenderCandidate(override, s.geom, now)
	} else {
		f = pattern.Render(snap, st, s.geom, now)
	}

	for _, sk := range s.sinks {
		sk.Accept(f)
	}

	d := nowFn().Sub(start)
	s.metrics.ObserveTick(d, st)

	s.mu.Lock()
	prev := s.snap.State
	s.snap.State = st.String()
	s.snap.Override = override
	s.snap.Ticks++
	s.snap.LastTickMs = float64(d.Microseconds()) / 1000
	s.snap.LastTickAt = nowFn().UTC()
	s.mu.Unlock()

	if cur := st.String(); prev != "" && prev != cur {
		s.log.Info().Str("from", prev).Str("to", cur).Msg("pattern state changed")
	}
	return d
}
