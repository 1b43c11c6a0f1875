package sink

import (
	"bytes"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"urchin/internal/control"
	"urchin/internal/frame"
)

type fakeStrip struct {
	mu     sync.Mutex
	writes [][]byte
	err    error
	halted bool
}

func (s *fakeStrip) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return 0, s.err
	}
	s.writes = append(s.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (s *fakeStrip) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	return nil
}

func (s *fakeStrip) lastWrite() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		return nil
	}
	return s.writes[len(s.writes)-1]
}

func testFrame() *frame.Frame {
	f := frame.New(2, 2)
	f.Spines[0][0] = frame.Color{R: 1, G: 2, B: 3}
	f.Spines[0][1] = frame.Color{R: 4, G: 5, B: 6}
	f.Spines[1][0] = frame.Color{R: 7, G: 8, B: 9}
	f.Spines[1][1] = frame.Color{R: 10, G: 11, B: 12}
	return f
}

func TestAcceptFlattensSpinesInWiringOrder(t *testing.T) {
	dev := &fakeStrip{}
	h := NewHardware(dev, nil, nil, zerolog.Nop(), nil)

	h.Accept(testFrame())

	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	if got := dev.lastWrite(); !bytes.Equal(got, want) {
		t.Fatalf("pixel stream = %v, want %v", got, want)
	}
}

func TestAcceptAppliesBrightness(t *testing.T) {
	dev := &fakeStrip{}
	controls := control.New()
	if err := controls.SetBrightness(50); err != nil {
		t.Fatal(err)
	}
	h := NewHardware(dev, nil, controls, zerolog.Nop(), nil)

	f := frame.New(1, 1)
	f.Spines[0][0] = frame.Color{R: 200, G: 100, B: 51}
	h.Accept(f)

	want := []byte{100, 50, 25}
	if got := dev.lastWrite(); !bytes.Equal(got, want) {
		t.Fatalf("pixel stream at 50%% = %v, want %v", got, want)
	}
}

func TestAcceptReusesBufferAcrossTicks(t *testing.T) {
	dev := &fakeStrip{}
	h := NewHardware(dev, nil, nil, zerolog.Nop(), nil)

	h.Accept(testFrame())

	f := frame.New(2, 2)
	f.Fill(frame.Color{R: 9, G: 9, B: 9})
	h.Accept(f)

	want := bytes.Repeat([]byte{9}, 12)
	if got := dev.lastWrite(); !bytes.Equal(got, want) {
		t.Fatalf("second pixel stream = %v, want %v", got, want)
	}
	if got := h.Snapshot().Writes; got != 2 {
		t.Fatalf("writes = %d, want 2", got)
	}
}

func TestWriteFailureDoesNotPropagate(t *testing.T) {
	dev := &fakeStrip{err: errors.New("spi: transfer failed")}
	h := NewHardware(dev, nil, nil, zerolog.Nop(), nil)

	h.Accept(testFrame())
	h.Accept(testFrame())

	snap := h.Snapshot()
	if snap.WriteErrors != 2 {
		t.Fatalf("write errors = %d, want 2", snap.WriteErrors)
	}
	if snap.LastError != "spi: transfer failed" {
		t.Fatalf("last error = %q", snap.LastError)
	}
}

func TestCloseHaltsThenReleases(t *testing.T) {
	dev := &fakeStrip{}
	released := false
	h := NewHardware(dev, func() error {
		if !dev.halted {
			t.Error("release ran before the strip halted")
		}
		released = true
		return nil
	}, nil, zerolog.Nop(), nil)

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	if !dev.halted {
		t.Fatal("strip not halted")
	}
	if !released {
		t.Fatal("release not called")
	}
}
