package power

import (
	"context"
	"errors"
	"io"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/devices/v3/ina219"

	"urchin/internal/envstate"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

type fakeGauge struct {
	pm  ina219.PowerMonitor
	err error
}

func (f *fakeGauge) Sense() (ina219.PowerMonitor, error) {
	return f.pm, f.err
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func withGauge(t *testing.T, open func(string, int) (gauge, io.Closer, error)) {
	t.Helper()
	old := openGaugeFn
	openGaugeFn = open
	t.Cleanup(func() { openGaugeFn = old })
}

func TestSOCFromVoltage(t *testing.T) {
	cases := []struct {
		volts float64
		want  float64
	}{
		{8.0, 0},
		{9.0, 0},
		{10.8, 0.20},
		{11.1, 0.40},
		{11.325, 0.525},
		{12.6, 1},
		{13.2, 1},
	}
	for _, tc := range cases {
		if got := socFromVoltage(tc.volts); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("socFromVoltage(%v)=%v want %v", tc.volts, got, tc.want)
		}
	}

	// The curve never decreases as the pack charges.
	prev := -1.0
	for v := 8.5; v <= 13.0; v += 0.05 {
		got := socFromVoltage(v)
		if got < prev {
			t.Fatalf("soc not monotonic at %v: %v < %v", v, got, prev)
		}
		prev = got
	}
}

func TestService_PublishesBattery(t *testing.T) {
	g := &fakeGauge{pm: ina219.PowerMonitor{
		Voltage: 11100 * physic.MilliVolt,
		Current: -1500 * physic.MilliAmpere,
	}}
	withGauge(t, func(string, int) (gauge, io.Closer, error) {
		return g, nopCloser{}, nil
	})

	env := envstate.New(envstate.Timeouts{})
	s := New(Config{SampleInterval: 2 * time.Millisecond}, env, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	waitFor(t, "battery publish", func() bool {
		return !env.Snapshot(time.Now()).BatteryStale
	})

	bat := env.Snapshot(time.Now()).Battery
	if math.Abs(bat.Voltage-11.1) > 1e-6 {
		t.Fatalf("voltage=%v", bat.Voltage)
	}
	if math.Abs(bat.Current-(-1.5)) > 1e-6 {
		t.Fatalf("current=%v", bat.Current)
	}
	if math.Abs(bat.Fraction-0.40) > 1e-6 {
		t.Fatalf("fraction=%v", bat.Fraction)
	}

	snap := s.Snapshot()
	if !snap.Connected || snap.Samples == 0 {
		t.Fatalf("snapshot=%+v", snap)
	}
}

func TestService_ReopensAfterFailures(t *testing.T) {
	var opens atomic.Int32
	withGauge(t, func(string, int) (gauge, io.Closer, error) {
		opens.Add(1)
		return &fakeGauge{err: errors.New("i2c: remote I/O error")}, nopCloser{}, nil
	})

	env := envstate.New(envstate.Timeouts{})
	s := New(Config{SampleInterval: time.Millisecond}, env, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	waitFor(t, "reopen after failure streak", func() bool {
		return opens.Load() >= 2
	})
	if s.Snapshot().LastError == "" {
		t.Fatalf("expected recorded error")
	}
	if !env.Snapshot(time.Now()).BatteryStale {
		t.Fatalf("failing monitor should leave battery stale")
	}
}

func TestService_RetriesOpenFailure(t *testing.T) {
	var opens atomic.Int32
	withGauge(t, func(string, int) (gauge, io.Closer, error) {
		opens.Add(1)
		return nil, nil, errors.New("no such device")
	})

	env := envstate.New(envstate.Timeouts{})
	s := New(Config{}, env, nil, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	waitFor(t, "open retries", func() bool { return opens.Load() >= 2 })
}

func TestProbe(t *testing.T) {
	withGauge(t, func(string, int) (gauge, io.Closer, error) {
		return &fakeGauge{pm: ina219.PowerMonitor{Voltage: 12 * physic.Volt}}, nopCloser{}, nil
	})
	if err := Probe("/dev/i2c-1", 0x40); err != nil {
		t.Fatalf("probe: %v", err)
	}

	withGauge(t, func(string, int) (gauge, io.Closer, error) {
		return &fakeGauge{err: errors.New("nak")}, nopCloser{}, nil
	})
	if err := Probe("/dev/i2c-1", 0x40); err == nil {
		t.Fatalf("expected probe failure")
	}
}
