package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHSVPrimaries(t *testing.T) {
	cases := []struct {
		name string
		hue  float64
		want Color
	}{
		{"red", 0, Color{255, 0, 0}},
		{"green", 120, Color{0, 255, 0}},
		{"blue", 240, Color{0, 0, 255}},
		{"wrap to red", 360, Color{255, 0, 0}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HSV(tc.hue, 1, 1))
		})
	}
}

func TestHSVWraparound(t *testing.T) {
	for _, hue := range []float64{0, 10, 123.4, 270, 359.9} {
		assert.Equal(t, HSV(hue, 1, 1), HSV(hue+360, 1, 1), "hue %v", hue)
		assert.Equal(t, HSV(hue, 1, 1), HSV(hue-360, 1, 1), "hue %v", hue)
	}
}

func TestHSVValueZeroIsOff(t *testing.T) {
	assert.Equal(t, Color{}, HSV(200, 1, 0))
}

func TestHSVZeroSaturationIsGrey(t *testing.T) {
	c := HSV(77, 0, 1)
	assert.Equal(t, Color{255, 255, 255}, c)
}

func TestColorScaled(t *testing.T) {
	c := Color{200, 100, 50}
	assert.Equal(t, c, c.Scaled(100))
	assert.Equal(t, c, c.Scaled(150))
	assert.Equal(t, Color{}, c.Scaled(0))
	assert.Equal(t, Color{}, c.Scaled(-5))
	assert.Equal(t, Color{100, 50, 25}, c.Scaled(50))
}

func TestNewFrameAllOff(t *testing.T) {
	f := New(12, 59)
	require.Len(t, f.Spines, 12)
	for _, spine := range f.Spines {
		require.Len(t, spine, 59)
		for _, c := range spine {
			assert.Equal(t, Color{}, c)
		}
	}
}

func TestCloneIsIndependent(t *testing.T) {
	f := New(2, 3)
	f.Spines[1][2] = Color{1, 2, 3}
	c := f.Clone()
	require.Equal(t, f.Spines, c.Spines)

	c.Spines[0][0] = Color{9, 9, 9}
	assert.Equal(t, Color{}, f.Spines[0][0])
}

func TestFill(t *testing.T) {
	f := New(3, 4)
	f.Fill(Color{10, 20, 30})
	for _, spine := range f.Spines {
		for _, c := range spine {
			assert.Equal(t, Color{10, 20, 30}, c)
		}
	}
}
