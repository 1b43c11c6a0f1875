// Package sink delivers rendered frames to their consumers: the LED
// strip hardware and any connected visualizer peers. Every sink handles
// its own failures; a broken sink degrades output but never stops the
// render loop.
package sink

import "urchin/internal/frame"

// Sink accepts one frame per tick. Accept must not block on peripheral
// or network I/O and must not retain the frame after returning unless
// it copies it first.
type Sink interface {
	Accept(*frame.Frame)
	Close() error
}
