// Package control holds the runtime-adjustable knobs: soft brightness
// and a pattern override. The web server writes them, the engine and
// hardware sink read them every tick.
package control

import (
	"fmt"
	"sync"

	"urchin/internal/pattern"
)

type Controls struct {
	mu         sync.RWMutex
	brightness int
	override   string
}

// New returns controls at full brightness with no override.
func New() *Controls {
	return &Controls{brightness: 100}
}

// Brightness is the soft brightness in percent, applied on top of the
// configured hardware cap.
func (c *Controls) Brightness() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.brightness
}

func (c *Controls) SetBrightness(pct int) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("brightness must be in 0..100, got %d", pct)
	}
	c.mu.Lock()
	c.brightness = pct
	c.mu.Unlock()
	return nil
}

// PatternOverride returns the forced stationary animation, if any.
func (c *Controls) PatternOverride() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.override, c.override != ""
}

// SetPatternOverride forces one of the stationary animations by name;
// the empty string clears the override. Low-battery and moving states
// still take precedence over an override.
func (c *Controls) SetPatternOverride(name string) error {
	if name != "" && !pattern.IsCandidate(name) {
		return fmt.Errorf("unknown pattern %q (valid: %v)", name, pattern.CandidateNames())
	}
	c.mu.Lock()
	c.override = name
	c.mu.Unlock()
	return nil
}

// Snapshot reports both knobs for the status endpoint.
type Snapshot struct {
	Brightness      int    `json:"brightness"`
	PatternOverride string `json:"pattern_override,omitempty"`
}

func (c *Controls) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Snapshot{Brightness: c.brightness, PatternOverride: c.override}
}
