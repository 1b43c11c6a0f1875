package pattern

import (
	"math"
	"time"

	"urchin/internal/frame"
)

// The recently-stationary animations. Which one plays depends only on
// which way up the sculpture settled, so a given resting pose always
// shows the same animation.
const (
	CandidateRainbow   = "rainbow"
	CandidateSparkles  = "sparkles"
	CandidateStarfield = "starfield"
	CandidateWipes     = "wipes"
	CandidateZoom      = "zoom"
)

// octantCandidates maps the sign octant of the gravity vector to an
// animation. Eight octants over five animations, so three repeat.
var octantCandidates = [8]string{
	CandidateZoom,      // -x -y -z
	CandidateStarfield, // -x -y +z
	CandidateRainbow,   // -x +y -z
	CandidateSparkles,  // -x +y +z
	CandidateWipes,     // +x -y -z
	CandidateRainbow,   // +x -y +z
	CandidateSparkles,  // +x +y -z
	CandidateWipes,     // +x +y +z
}

// CandidateNames lists the valid animation names, for the control
// endpoint's allow-list.
func CandidateNames() []string {
	return []string{CandidateRainbow, CandidateSparkles, CandidateStarfield, CandidateWipes, CandidateZoom}
}

func IsCandidate(name string) bool {
	for _, n := range CandidateNames() {
		if n == name {
			return true
		}
	}
	return false
}

// SelectCandidate segments orientation into eight solid-angle zones by
// the signs of the accelerometer axes and picks the zone's animation.
// A zero vector (no reading yet) falls back to the rainbow swirl.
func SelectCandidate(accel [3]float64) string {
	if accel == [3]float64{} {
		return CandidateRainbow
	}
	idx := 0
	if accel[0] >= 0 {
		idx |= 4
	}
	if accel[1] >= 0 {
		idx |= 2
	}
	if accel[2] >= 0 {
		idx |= 1
	}
	return octantCandidates[idx]
}

// RenderCandidate renders one named stationary animation. Unknown
// names render the rainbow swirl.
func RenderCandidate(name string, g *frame.Geometry, now time.Time) *frame.Frame {
	switch name {
	case CandidateSparkles:
		return renderSparkles(g, now)
	case CandidateStarfield:
		return renderStarfield(g, now)
	case CandidateWipes:
		return renderWipes(g, now)
	case CandidateZoom:
		return renderZoom(g, now)
	default:
		return renderRainbow(g, now)
	}
}

const rainbowSweepPeriod = 4 * time.Second

// renderRainbow sweeps the hue wheel along each spine, offset by the
// spine's azimuth so the pattern rotates around the sculpture.
func renderRainbow(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	sweep := phase(now, rainbowSweepPeriod) * 360
	for spine := range f.Spines {
		az := g.Azimuth(spine)
		for led := range f.Spines[spine] {
			hue := 360*g.RadialPosition(led) + az + sweep
			f.Spines[spine][led] = frame.HSV(hue, 1, 1)
		}
	}
	return f
}

const (
	sparkleCell = 100 * time.Millisecond
	sparkleProb = 0.02
)

// renderSparkles lights a scattering of white LEDs, re-rolled every
// cell, with a dimmer echo on each sparkle's tipward neighbor.
func renderSparkles(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	cell := uint64(now.UnixNano() / int64(sparkleCell))
	for spine := range f.Spines {
		for led := range f.Spines[spine] {
			if hashUnit(cell, uint64(spine), uint64(led)) < sparkleProb {
				f.Spines[spine][led] = frame.Color{R: 255, G: 255, B: 255}
				continue
			}
			if led > 0 && hashUnit(cell, uint64(spine), uint64(led-1)) < sparkleProb {
				f.Spines[spine][led] = frame.Color{R: 90, G: 90, B: 90}
			}
		}
	}
	return f
}

const (
	rainSpeedLEDs = 20.0 // LEDs per second, core to tip
	rainDensity   = 0.083
	rainColorProb = 0.2
)

// renderStarfield rains drops from the core to the tips. Each drop is
// keyed by the slot it occupies in the scroll, so the field is a pure
// function of time: mostly white drops, one in five colored.
func renderStarfield(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	offset := int64(float64(now.UnixNano()) / 1e9 * rainSpeedLEDs)
	for spine := range f.Spines {
		for led := range f.Spines[spine] {
			slot := uint64(offset - int64(led))
			if hashUnit(slot, uint64(spine), 1) >= rainDensity {
				continue
			}
			if hashUnit(slot, uint64(spine), 2) < rainColorProb {
				f.Spines[spine][led] = frame.HSV(hashUnit(slot, uint64(spine), 3)*360, 1, 1)
			} else {
				f.Spines[spine][led] = frame.Color{R: 255, G: 255, B: 255}
			}
		}
	}
	return f
}

const (
	wipePeriod    = 3 * time.Second
	wipeBand      = 2.0 // half-width in LEDs
	wipeTrailLEDs = 8.0
)

// renderWipes sweeps a short white band from core to tip on every
// spine, staggered around the sculpture, with a fading trail behind.
func renderWipes(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	n := float64(g.LEDsPerSpine())
	for spine := range f.Spines {
		stagger := time.Duration(spine) * wipePeriod / time.Duration(g.Spines())
		ph := phase(now.Add(stagger), wipePeriod)
		center := ph*(n+2*wipeBand) - wipeBand
		for led := range f.Spines[spine] {
			d := float64(led) - center
			switch {
			case math.Abs(d) <= wipeBand:
				f.Spines[spine][led] = frame.Color{R: 255, G: 255, B: 255}
			case d < -wipeBand && d > -wipeBand-wipeTrailLEDs:
				v := 1 + (d+wipeBand)/wipeTrailLEDs
				f.Spines[spine][led] = frame.Color{R: 255, G: 255, B: 255}.Scaled(int(v * 100))
			}
		}
	}
	return f
}

// renderZoom lights every tenth LED and marches them toward the core
// once per second.
func renderZoom(g *frame.Geometry, now time.Time) *frame.Frame {
	f := frame.New(g.Spines(), g.LEDsPerSpine())
	offset := int(phase(now, time.Second) * 10)
	for spine := range f.Spines {
		for led := range f.Spines[spine] {
			if (led+offset)%10 == 0 {
				f.Spines[spine][led] = frame.Color{R: 255, G: 255, B: 255}
			}
		}
	}
	return f
}

// hashUnit is a splitmix64-style mix of the three keys, mapped into
// [0,1). It stands in for randomness while staying a pure function of
// its inputs, which keeps every animation replayable.
func hashUnit(a, b, c uint64) float64 {
	x := a*0x9e3779b97f4a7c15 ^ b*0xbf58476d1ce4e5b9 ^ c*0x94d049bb133111eb
	x ^= x >> 30
	x *= 0xbf58476d1ce4e5b9
	x ^= x >> 27
	x *= 0x94d049bb133111eb
	x ^= x >> 31
	return float64(x>>11) / (1 << 53)
}
