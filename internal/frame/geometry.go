package frame

import "math"

// The sculpture's 12 spines sit on the vertices of an icosahedron:
// cyclic permutations of (0, ±1, ±phi) with phi the golden ratio.
var spineDirections = normalizeAll([][3]float64{
	{0, 1, 1.618},
	{0, 1, -1.618},
	{0, -1, 1.618},
	{0, -1, -1.618},
	{1, 1.618, 0},
	{1, -1.618, 0},
	{-1, 1.618, 0},
	{-1, -1.618, 0},
	{1.618, 0, 1},
	{1.618, 0, -1},
	{-1.618, 0, 1},
	{-1.618, 0, -1},
})

func normalizeAll(vs [][3]float64) [][3]float64 {
	out := make([][3]float64, len(vs))
	for i, v := range vs {
		m := math.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
		out[i] = [3]float64{v[0] / m, v[1] / m, v[2] / m}
	}
	return out
}

// SpineCount is fixed by the sculpture's physical construction.
const SpineCount = 12

// Geometry maps (spine, led) indices onto the sculpture's physical
// layout. LEDs are evenly spaced from the core (led 0) to the tip.
type Geometry struct {
	ledsPerSpine int
}

func NewGeometry(ledsPerSpine int) *Geometry {
	if ledsPerSpine < 1 {
		ledsPerSpine = 1
	}
	return &Geometry{ledsPerSpine: ledsPerSpine}
}

func (g *Geometry) Spines() int       { return SpineCount }
func (g *Geometry) LEDsPerSpine() int { return g.ledsPerSpine }

// Direction returns the unit vector from the core along the spine.
func (g *Geometry) Direction(spine int) [3]float64 {
	return spineDirections[spine%SpineCount]
}

// RadialPosition returns the LED's normalized distance from the core
// along its spine, 0 at the core and 1 at the tip.
func (g *Geometry) RadialPosition(led int) float64 {
	if g.ledsPerSpine <= 1 {
		return 0
	}
	return float64(led) / float64(g.ledsPerSpine-1)
}

// Azimuth returns the spine direction's angle in the horizontal plane,
// in degrees [0,360).
func (g *Geometry) Azimuth(spine int) float64 {
	d := g.Direction(spine)
	a := math.Atan2(d[1], d[0]) * 180 / math.Pi
	if a < 0 {
		a += 360
	}
	return a
}
