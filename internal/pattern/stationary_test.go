package pattern

import (
	"reflect"
	"testing"
	"time"

	"urchin/internal/frame"
)

func TestSelectCandidateByOctant(t *testing.T) {
	cases := []struct {
		accel [3]float64
		want  string
	}{
		{[3]float64{-1, -1, -9.8}, CandidateZoom},
		{[3]float64{-1, -1, 9.8}, CandidateStarfield},
		{[3]float64{-1, 1, -9.8}, CandidateRainbow},
		{[3]float64{-1, 1, 9.8}, CandidateSparkles},
		{[3]float64{1, -1, -9.8}, CandidateWipes},
		{[3]float64{1, -1, 9.8}, CandidateRainbow},
		{[3]float64{1, 1, -9.8}, CandidateSparkles},
		{[3]float64{1, 1, 9.8}, CandidateWipes},
	}
	for _, tc := range cases {
		if got := SelectCandidate(tc.accel); got != tc.want {
			t.Errorf("SelectCandidate(%v) = %q, want %q", tc.accel, got, tc.want)
		}
		// Magnitude must not matter, only the signs.
		scaled := [3]float64{tc.accel[0] * 3, tc.accel[1] * 3, tc.accel[2] * 3}
		if got := SelectCandidate(scaled); got != tc.want {
			t.Errorf("SelectCandidate(%v) = %q, want %q (scaled)", scaled, got, tc.want)
		}
	}
}

func TestSelectCandidateZeroVectorFallsBack(t *testing.T) {
	if got := SelectCandidate([3]float64{}); got != CandidateRainbow {
		t.Fatalf("SelectCandidate(zero) = %q, want rainbow", got)
	}
}

func TestCandidateNamesAreValid(t *testing.T) {
	names := CandidateNames()
	if len(names) != 5 {
		t.Fatalf("expected 5 candidates, got %d", len(names))
	}
	for _, n := range names {
		if !IsCandidate(n) {
			t.Errorf("IsCandidate(%q) = false", n)
		}
	}
	if IsCandidate("strobe") {
		t.Errorf("IsCandidate accepted an unknown name")
	}
	for _, o := range octantCandidates {
		if !IsCandidate(o) {
			t.Errorf("octant table references unknown candidate %q", o)
		}
	}
}

func TestCandidatesRenderDeterministically(t *testing.T) {
	g := frame.NewGeometry(59)
	now := time.Unix(98765, 432_100_000)
	for _, name := range CandidateNames() {
		f1 := RenderCandidate(name, g, now)
		f2 := RenderCandidate(name, g, now)
		if !reflect.DeepEqual(f1, f2) {
			t.Errorf("%s renders differently for the same instant", name)
		}
		if len(f1.Spines) != 12 || len(f1.Spines[0]) != 59 {
			t.Errorf("%s rendered wrong dimensions", name)
		}
	}
}

func TestUnknownCandidateRendersRainbow(t *testing.T) {
	g := frame.NewGeometry(59)
	now := time.Unix(98765, 0)
	if !reflect.DeepEqual(RenderCandidate("nope", g, now), renderRainbow(g, now)) {
		t.Fatalf("unknown candidate did not fall back to rainbow")
	}
}

func TestRainbowFullySaturated(t *testing.T) {
	g := frame.NewGeometry(59)
	f := renderRainbow(g, time.Unix(1234, 0))
	for spine := range f.Spines {
		for led, c := range f.Spines[spine] {
			if c.R == 0 && c.G == 0 && c.B == 0 {
				t.Fatalf("spine %d led %d dark in rainbow", spine, led)
			}
			min := c.R
			if c.G < min {
				min = c.G
			}
			if c.B < min {
				min = c.B
			}
			if min != 0 {
				t.Fatalf("spine %d led %d not fully saturated: %+v", spine, led, c)
			}
		}
	}
}

func TestZoomMarchesCoreward(t *testing.T) {
	g := frame.NewGeometry(59)
	base := time.Unix(777, 0) // phase 0: offset 0, LEDs 0,10,20... lit
	f0 := renderZoom(g, base)
	if f0.Spines[0][10] == (frame.Color{}) {
		t.Fatalf("expected led 10 lit at phase 0")
	}
	f1 := renderZoom(g, base.Add(100*time.Millisecond)) // offset 1: 9,19,29...
	if f1.Spines[0][9] == (frame.Color{}) {
		t.Fatalf("expected led 9 lit one step later")
	}
	if f1.Spines[0][10] != (frame.Color{}) {
		t.Fatalf("led 10 still lit one step later")
	}
}

func TestHashUnitRangeAndSpread(t *testing.T) {
	var below int
	const n = 10000
	for i := 0; i < n; i++ {
		v := hashUnit(uint64(i), 3, 7)
		if v < 0 || v >= 1 {
			t.Fatalf("hashUnit out of range: %v", v)
		}
		if v < 0.1 {
			below++
		}
	}
	// Roughly uniform: about 10% should land below 0.1.
	if below < n/20 || below > n/5 {
		t.Fatalf("hashUnit badly skewed: %d/%d below 0.1", below, n)
	}
}
