// Package sim feeds the environment synthetic sensor data so the whole
// pipeline, web server and visualizer included, runs on a desk with no
// hardware attached. Every value is a pure function of wall-clock time:
// restarting the daemon mid-burst resumes the same scene.
package sim

import (
	"math"
	"time"

	"urchin/internal/envstate"
)

// Profile describes the synthetic day: a sculpture parked on the playa
// that gets picked up and carried for a few seconds every so often
// while its battery slowly drains.
type Profile struct {
	// CenterLat/CenterLon anchor the wandering fix.
	CenterLat float64
	CenterLon float64
	// WanderM is the fix wander radius in meters.
	WanderM float64

	// MotionEvery is the carry-burst cadence and MotionBurst its
	// length. During a burst the rotation rate is SpinRateDPS.
	MotionEvery time.Duration
	MotionBurst time.Duration
	SpinRateDPS float64

	// The pack drains linearly from FullVolts to EmptyVolts over
	// DrainCycle, then snaps back to full.
	FullVolts  float64
	EmptyVolts float64
	DrainCycle time.Duration
}

// DefaultProfile parks the sculpture at Black Rock City and drains a
// 3S pack over four hours, long enough to watch every mood appear.
func DefaultProfile() Profile {
	return Profile{
		CenterLat:   40.7864,
		CenterLon:   -119.2065,
		WanderM:     20,
		MotionEvery: 45 * time.Second,
		MotionBurst: 5 * time.Second,
		SpinRateDPS: 60,
		FullVolts:   12.5,
		EmptyVolts:  10.3,
		DrainCycle:  4 * time.Hour,
	}
}

// Reading is the full synthetic sensor state at one instant.
type Reading struct {
	Position envstate.Position
	Attitude envstate.Attitude
	Moving   bool
	Battery  envstate.Battery
}

const (
	metersPerDegLat = 111_320.0
	gravity         = 9.80665
)

// At evaluates the profile at now.
func (p Profile) At(now time.Time) Reading {
	p = p.withDefaults()
	return Reading{
		Position: p.position(now),
		Attitude: p.attitude(now),
		Moving:   p.moving(now),
		Battery:  p.battery(now),
	}
}

func (p Profile) withDefaults() Profile {
	d := DefaultProfile()
	if p.CenterLat == 0 && p.CenterLon == 0 {
		p.CenterLat, p.CenterLon = d.CenterLat, d.CenterLon
	}
	if p.WanderM <= 0 {
		p.WanderM = d.WanderM
	}
	if p.MotionEvery <= 0 {
		p.MotionEvery = d.MotionEvery
	}
	if p.MotionBurst <= 0 || p.MotionBurst >= p.MotionEvery {
		p.MotionBurst = d.MotionBurst
	}
	if p.SpinRateDPS <= 0 {
		p.SpinRateDPS = d.SpinRateDPS
	}
	if p.FullVolts <= 0 {
		p.FullVolts = d.FullVolts
	}
	if p.EmptyVolts <= 0 || p.EmptyVolts >= p.FullVolts {
		p.EmptyVolts = d.EmptyVolts
	}
	if p.DrainCycle <= 0 {
		p.DrainCycle = d.DrainCycle
	}
	return p
}

func phase(now time.Time, period time.Duration) float64 {
	return float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())
}

// position wanders a figure-eight inside the configured radius, the
// kind of scatter a parked receiver produces on its own.
func (p Profile) position(now time.Time) envstate.Position {
	w := 2 * math.Pi * phase(now, 10*time.Minute)
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	radiusDeg := p.WanderM / metersPerDegLat
	return envstate.Position{
		Lat:        p.CenterLat + radiusDeg*y,
		Lon:        p.CenterLon + (radiusDeg*x)/math.Cos(p.CenterLat*math.Pi/180),
		AltitudeM:  1191 + 2*math.Sin(w),
		Satellites: 9 + int(3*(1+math.Sin(w))/2),
		FixTime:    now.UTC(),
		Valid:      true,
	}
}

// moving reports whether now falls inside a carry burst.
func (p Profile) moving(now time.Time) bool {
	into := time.Duration(float64(p.MotionEvery) * phase(now, p.MotionEvery))
	return into < p.MotionBurst
}

func (p Profile) attitude(now time.Time) envstate.Attitude {
	// The tilt direction sweeps a full turn every ten minutes so the
	// stationary pattern choice keeps changing.
	azDeg := 360 * phase(now, 10*time.Minute)
	azRad := azDeg * math.Pi / 180

	rate := 1.5 // settled jitter, deg/s
	tilt := 8 * math.Pi / 180
	if p.moving(now) {
		rate = p.SpinRateDPS
		tilt = 25 * math.Pi / 180
	}

	return envstate.Attitude{
		OrientationDeg: azDeg,
		RateDPS:        rate,
		Accel: [3]float64{
			gravity * math.Sin(tilt) * math.Cos(azRad),
			gravity * math.Sin(tilt) * math.Sin(azRad),
			gravity * math.Cos(tilt),
		},
	}
}

// battery is a sawtooth: full to empty over one cycle, then reset.
func (p Profile) battery(now time.Time) envstate.Battery {
	volts := p.FullVolts - (p.FullVolts-p.EmptyVolts)*phase(now, p.DrainCycle)
	frac := (volts - 9.0) / (12.6 - 9.0)
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	return envstate.Battery{
		Voltage:  volts,
		Current:  -1.8,
		Fraction: frac,
	}
}
