package imu

import "math"

// vecFilter is a fixed-window moving average over 3-vectors. Used to
// smooth jittery accel/gyro readings before they drive pattern
// decisions; roughly 0.3s of history at the default sample rate.
type vecFilter struct {
	buf   [][3]float64
	next  int
	count int
	sum   [3]float64
}

func newVecFilter(window int) *vecFilter {
	if window < 1 {
		window = 1
	}
	return &vecFilter{buf: make([][3]float64, window)}
}

// Add pushes v and returns the mean of the samples currently in the
// window.
func (f *vecFilter) Add(v [3]float64) [3]float64 {
	if f.count == len(f.buf) {
		old := f.buf[f.next]
		f.sum[0] -= old[0]
		f.sum[1] -= old[1]
		f.sum[2] -= old[2]
	} else {
		f.count++
	}
	f.buf[f.next] = v
	f.next = (f.next + 1) % len(f.buf)
	f.sum[0] += v[0]
	f.sum[1] += v[1]
	f.sum[2] += v[2]

	n := float64(f.count)
	return [3]float64{f.sum[0] / n, f.sum[1] / n, f.sum[2] / n}
}

func mag3(v [3]float64) float64 {
	return math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
}

// tiltAzimuthDeg maps the gravity vector's X/Y footprint to a heading
// in [0,360). A perfectly upright sculpture has no defined azimuth; the
// atan2 zero convention (0°) is fine there since the value only picks
// hues.
func tiltAzimuthDeg(accel [3]float64) float64 {
	deg := math.Atan2(accel[1], accel[0]) * 180 / math.Pi
	if deg < 0 {
		deg += 360
	}
	return deg
}
