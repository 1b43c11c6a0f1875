package pattern

import (
	"math"
	"time"

	"urchin/internal/envstate"
	"urchin/internal/frame"
)

const (
	lowBatteryPeriod = 3 * time.Second
	lowBatteryFlash  = 150 * time.Millisecond

	// Moving maps rotation rate onto brightness: full scale at a brisk
	// spin, with a floor so slow motion is still clearly visible.
	movingFullScaleDPS = 180.0
	movingMinValue     = 0.25

	idlePeriod     = time.Second
	idlePulseWidth = 0.15
)

// phase returns where now falls inside period, in [0,1). It depends
// only on the wall clock, so the same instant always yields the same
// phase across restarts.
func phase(now time.Time, period time.Duration) float64 {
	p := now.UnixNano() % period.Nanoseconds()
	if p < 0 {
		p += period.Nanoseconds()
	}
	return float64(p) / float64(period.Nanoseconds())
}

// Render produces the frame for one tick.
func Render(s envstate.Snapshot, st State, g *frame.Geometry, now time.Time) *frame.Frame {
	switch st {
	case StateLowBattery:
		return renderLowBattery(g, now)
	case StateMoving:
		return renderMoving(s, g)
	case StateRecentlyStationary:
		return RenderCandidate(SelectCandidate(s.Attitude.Accel), g, now)
	default:
		return renderIdle(g, now)
	}
}

// renderLowBattery keeps the sculpture dark except for a short solid
// red flash every three seconds. Orientation and motion are ignored
// entirely: this state is about conserving and signaling power.
func renderLowBattery(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	if phase(now, lowBatteryPeriod) < lowBatteryFlash.Seconds()/lowBatteryPeriod.Seconds() {
		f.Fill(frame.Color{R: 255})
	}
	return f
}

// renderMoving paints the whole sculpture one color: hue follows the
// orientation (one full rotation sweeps the hue wheel exactly once) and
// brightness follows the rotation rate.
func renderMoving(s envstate.Snapshot, g *frame.Geometry) *frame.Frame {
	hue := s.Attitude.OrientationDeg // HSV wraps, so any angle is safe
	v := s.Attitude.RateDPS / movingFullScaleDPS
	if v < movingMinValue {
		v = movingMinValue
	}
	if v > 1 {
		v = 1
	}
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	f.Fill(frame.HSV(hue, 1, v))
	return f
}

// renderIdle sends a red pulse from the core to the tips once per
// second. Brightness is a triangle packet around the pulse position,
// which is itself just the phase, so Frame(t) == Frame(t+1s) exactly.
func renderIdle(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	center := phase(now, idlePeriod)
	for spine := range f.Spines {
		for led := range f.Spines[spine] {
			d := math.Abs(g.RadialPosition(led) - center)
			if d >= idlePulseWidth {
				continue
			}
			v := 1 - d/idlePulseWidth
			f.Spines[spine][led] = frame.Color{R: uint8(math.Round(255 * v))}
		}
	}
	return f
}
