// Package pattern holds the mood state machine and the renderers that
// turn an environment snapshot into a frame. Every renderer is a pure
// function of wall-clock time and the snapshot: no per-tick state, so
// rendering is restart-safe and replays deterministically.
package pattern

import (
	"time"

	"urchin/internal/envstate"
)

// State is the mood classification for one tick.
type State int

const (
	StateLowBattery State = iota
	StateMoving
	StateRecentlyStationary
	StateIdle
)

func (s State) String() string {
	switch s {
	case StateLowBattery:
		return "low_battery"
	case StateMoving:
		return "moving"
	case StateRecentlyStationary:
		return "recently_stationary"
	case StateIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// States lists all states, for metrics labeling.
func States() []State {
	return []State{StateLowBattery, StateMoving, StateRecentlyStationary, StateIdle}
}

// Params are the classification thresholds from configuration.
type Params struct {
	LowBatteryFraction     float64
	MotionRateThresholdDPS float64
	StationaryWindow       time.Duration
}

// Classify evaluates the mood state machine top to bottom; the first
// match wins. Battery protection outranks every visual preference, and
// a stale field always degrades rather than animating on garbage.
func Classify(s envstate.Snapshot, p Params) State {
	if s.BatteryStale || s.Battery.Fraction < p.LowBatteryFraction {
		return StateLowBattery
	}
	if s.AttitudeStale {
		return StateIdle
	}
	if s.Attitude.RateDPS > p.MotionRateThresholdDPS {
		return StateMoving
	}
	if s.At.Sub(s.LastMotionAt) < p.StationaryWindow {
		return StateRecentlyStationary
	}
	return StateIdle
}
