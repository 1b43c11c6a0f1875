package sim

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/envstate"
)

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestService_PublishesAllProducers(t *testing.T) {
	env := envstate.New(envstate.Timeouts{})
	s := New(Profile{}, env, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Close()

	waitFor(t, "all producers fresh", func() bool {
		snap := env.Snapshot(time.Now())
		return !snap.PositionStale && !snap.AttitudeStale && !snap.BatteryStale
	})

	snap := env.Snapshot(time.Now())
	if !snap.Position.Valid {
		t.Fatalf("position=%+v", snap.Position)
	}
	if snap.Battery.Voltage <= 0 {
		t.Fatalf("battery=%+v", snap.Battery)
	}
	if snap.Attitude.RateDPS <= 0 {
		t.Fatalf("attitude=%+v", snap.Attitude)
	}
}

func TestService_CloseStops(t *testing.T) {
	env := envstate.New(envstate.Timeouts{})
	s := New(Profile{}, env, zerolog.Nop())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatalf("Close did not return")
	}

	// Idempotent.
	s.Close()
}
