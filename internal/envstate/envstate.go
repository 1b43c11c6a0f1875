// Package envstate holds the shared sensor state: each sensor service
// publishes its latest reading here on its own schedule, and the render
// engine snapshots the lot once per tick. It is the only mutable state
// shared between goroutines.
package envstate

import (
	"sync"
	"time"
)

var nowFn = time.Now

// Position is the latest accepted position fix.
type Position struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AltitudeM  float64   `json:"altitude_m"`
	Satellites int       `json:"satellites"`
	FixTime    time.Time `json:"fix_time,omitempty"`
	Valid      bool      `json:"valid"`
}

// Attitude is the latest filtered inertial reading. OrientationDeg is
// the tilt azimuth of the gravity vector in [0,360); RateDPS is the
// rotation rate magnitude in degrees per second; Accel is the filtered
// accelerometer vector in m/s².
type Attitude struct {
	OrientationDeg float64    `json:"orientation_deg"`
	RateDPS        float64    `json:"rate_dps"`
	Accel          [3]float64 `json:"accel_mss"`
}

// Battery is the latest pack reading. Current is negative while
// discharging. Fraction is the estimated state of charge in [0,1].
type Battery struct {
	Voltage  float64 `json:"voltage"`
	Current  float64 `json:"current"`
	Fraction float64 `json:"fraction"`
}

// Snapshot is an internally consistent point-in-time copy of the shared
// state. A field is stale when its producer has never published or has
// not published within its timeout; the engine degrades rather than
// animating on stale data.
type Snapshot struct {
	Position      Position `json:"position"`
	PositionStale bool     `json:"position_stale"`

	Attitude      Attitude `json:"attitude"`
	AttitudeStale bool     `json:"attitude_stale"`

	Battery      Battery `json:"battery"`
	BatteryStale bool    `json:"battery_stale"`

	// LastMotionAt is the time of the most recent attitude publish that
	// crossed the motion threshold. Zero until motion is first seen.
	LastMotionAt time.Time `json:"last_motion_at,omitempty"`

	// At is the time the snapshot was taken.
	At time.Time `json:"at"`
}

// Timeouts are the per-producer staleness deadlines.
type Timeouts struct {
	Position time.Duration
	Attitude time.Duration
	Battery  time.Duration
}

// Environment is the shared state itself. Each Publish method is called
// by exactly one producer goroutine; Snapshot may be called by any
// reader. Locks are internal and held only for the field copy, never
// across I/O.
type Environment struct {
	timeouts Timeouts

	posMu sync.Mutex
	pos   Position
	posAt time.Time

	attMu        sync.Mutex
	att          Attitude
	attAt        time.Time
	lastMotionAt time.Time

	batMu sync.Mutex
	bat   Battery
	batAt time.Time
}

func New(t Timeouts) *Environment {
	if t.Position <= 0 {
		t.Position = 2 * time.Second
	}
	if t.Attitude <= 0 {
		t.Attitude = 2 * time.Second
	}
	if t.Battery <= 0 {
		t.Battery = 10 * time.Second
	}
	return &Environment{timeouts: t}
}

// PublishPosition replaces the position field. Never blocks beyond the
// copy itself.
func (e *Environment) PublishPosition(p Position) {
	now := nowFn()
	e.posMu.Lock()
	e.pos = p
	e.posAt = now
	e.posMu.Unlock()
}

// PublishAttitude replaces the attitude field. When moving is true the
// motion timestamp advances as well, feeding the recently-stationary
// window.
func (e *Environment) PublishAttitude(a Attitude, moving bool) {
	now := nowFn()
	e.attMu.Lock()
	e.att = a
	e.attAt = now
	if moving {
		e.lastMotionAt = now
	}
	e.attMu.Unlock()
}

// PublishBattery replaces the battery field.
func (e *Environment) PublishBattery(b Battery) {
	now := nowFn()
	e.batMu.Lock()
	e.bat = b
	e.batAt = now
	e.batMu.Unlock()
}

// Snapshot returns a self-consistent copy of all fields with staleness
// evaluated at now. Field groups are copied under their own locks, so a
// snapshot never observes a half-written field; skew between different
// sensors is expected and surfaced via the staleness flags.
func (e *Environment) Snapshot(now time.Time) Snapshot {
	var s Snapshot
	s.At = now

	e.posMu.Lock()
	s.Position = e.pos
	posAt := e.posAt
	e.posMu.Unlock()

	e.attMu.Lock()
	s.Attitude = e.att
	attAt := e.attAt
	s.LastMotionAt = e.lastMotionAt
	e.attMu.Unlock()

	e.batMu.Lock()
	s.Battery = e.bat
	batAt := e.batAt
	e.batMu.Unlock()

	s.PositionStale = stale(now, posAt, e.timeouts.Position)
	s.AttitudeStale = stale(now, attAt, e.timeouts.Attitude)
	s.BatteryStale = stale(now, batAt, e.timeouts.Battery)
	return s
}

func stale(now, publishedAt time.Time, timeout time.Duration) bool {
	if publishedAt.IsZero() {
		return true
	}
	return now.Sub(publishedAt) > timeout
}
