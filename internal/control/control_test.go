package control

import "testing"

func TestDefaults(t *testing.T) {
	c := New()
	if c.Brightness() != 100 {
		t.Fatalf("default brightness = %d, want 100", c.Brightness())
	}
	if _, ok := c.PatternOverride(); ok {
		t.Fatalf("expected no default override")
	}
}

func TestSetBrightness(t *testing.T) {
	c := New()
	if err := c.SetBrightness(40); err != nil {
		t.Fatalf("SetBrightness(40) error: %v", err)
	}
	if c.Brightness() != 40 {
		t.Fatalf("brightness = %d, want 40", c.Brightness())
	}
	for _, bad := range []int{-1, 101} {
		if err := c.SetBrightness(bad); err == nil {
			t.Errorf("SetBrightness(%d) accepted", bad)
		}
	}
	if c.Brightness() != 40 {
		t.Fatalf("rejected set changed brightness to %d", c.Brightness())
	}
}

func TestPatternOverrideAllowList(t *testing.T) {
	c := New()
	if err := c.SetPatternOverride("sparkles"); err != nil {
		t.Fatalf("SetPatternOverride(sparkles) error: %v", err)
	}
	name, ok := c.PatternOverride()
	if !ok || name != "sparkles" {
		t.Fatalf("override = %q/%v, want sparkles", name, ok)
	}

	if err := c.SetPatternOverride("lasers"); err == nil {
		t.Fatalf("unknown pattern accepted")
	}

	if err := c.SetPatternOverride(""); err != nil {
		t.Fatalf("clearing override: %v", err)
	}
	if _, ok := c.PatternOverride(); ok {
		t.Fatalf("override not cleared")
	}
}
