package frame

import "math"

// Color is one LED's color, 8 bits per channel.
type Color struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// Scaled returns the color with every channel scaled to pct percent.
// pct is clamped to [0,100].
func (c Color) Scaled(pct int) Color {
	if pct >= 100 {
		return c
	}
	if pct <= 0 {
		return Color{}
	}
	return Color{
		R: uint8(int(c.R) * pct / 100),
		G: uint8(int(c.G) * pct / 100),
		B: uint8(int(c.B) * pct / 100),
	}
}

// HSV converts hue in degrees and saturation/value in [0,1] to a Color.
// Hue wraps, so HSV(370, s, v) == HSV(10, s, v) and negative hues are
// valid. Saturation and value are clamped.
func HSV(hueDeg, s, v float64) Color {
	h := math.Mod(hueDeg, 360)
	if h < 0 {
		h += 360
	}
	s = clamp01(s)
	v = clamp01(v)

	i := int(h / 60)
	f := h/60 - float64(i)
	p := v * (1 - s)
	q := v * (1 - f*s)
	t := v * (1 - (1-f)*s)

	var r, g, b float64
	switch i % 6 {
	case 0:
		r, g, b = v, t, p
	case 1:
		r, g, b = q, v, p
	case 2:
		r, g, b = p, v, t
	case 3:
		r, g, b = p, q, v
	case 4:
		r, g, b = t, p, v
	default:
		r, g, b = v, p, q
	}
	return Color{
		R: uint8(math.Round(r * 255)),
		G: uint8(math.Round(g * 255)),
		B: uint8(math.Round(b * 255)),
	}
}

func clamp01(x float64) float64 {
	if x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}

// Frame is one fully rendered set of LED colors for the whole sculpture:
// Spines[spine][led], with led 0 at the core. A Frame is built by the
// engine, handed to the sinks, and never mutated afterwards; a sink that
// needs to retain one past the tick must Clone it.
type Frame struct {
	Spines [][]Color
}

// New returns an all-off frame with the given dimensions.
func New(spines, ledsPerSpine int) *Frame {
	f := &Frame{Spines: make([][]Color, spines)}
	for i := range f.Spines {
		f.Spines[i] = make([]Color, ledsPerSpine)
	}
	return f
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := &Frame{Spines: make([][]Color, len(f.Spines))}
	for i, spine := range f.Spines {
		c.Spines[i] = append([]Color(nil), spine...)
	}
	return c
}

// Fill sets every LED to c.
func (f *Frame) Fill(c Color) {
	for _, spine := range f.Spines {
		for i := range spine {
			spine[i] = c
		}
	}
}
