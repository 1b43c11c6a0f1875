package gps

import (
	"fmt"
	"math"
	"testing"
	"time"
)

func nmeaLine(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X", payload, ck)
}

func TestParseNMEASentence_ChecksumOK(t *testing.T) {
	line := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := parseNMEASentence(line)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if s.Type != "RMC" {
		t.Fatalf("expected type RMC, got %q", s.Type)
	}
}

func TestParseNMEASentence_ChecksumMismatch(t *testing.T) {
	good := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	bad := good[:len(good)-2] + "00"
	_, err := parseNMEASentence(bad)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestNMEAState_RMCUpdatesFix(t *testing.T) {
	var st nmeaState
	line := nmeaLine("GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := parseNMEASentence(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.apply(now, s) {
		t.Fatalf("expected updated")
	}

	pos, ok := st.position()
	if !ok {
		t.Fatalf("expected valid position")
	}
	if math.Abs(pos.Lat-48.1173) > 1e-3 {
		t.Fatalf("lat=%v", pos.Lat)
	}
	if math.Abs(pos.Lon-11.516666) > 1e-3 {
		t.Fatalf("lon=%v", pos.Lon)
	}
	// Time and date come from the sentence, not the wall clock.
	want := time.Date(1994, 3, 23, 12, 35, 19, 0, time.UTC)
	if !pos.FixTime.Equal(want) {
		t.Fatalf("fix_time=%v want %v", pos.FixTime, want)
	}
}

func TestNMEAState_VoidRMCIgnored(t *testing.T) {
	var st nmeaState
	line := nmeaLine("GPRMC,123519,V,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W")
	s, err := parseNMEASentence(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st.apply(time.Now().UTC(), s) {
		t.Fatalf("void fix should not update")
	}
	if _, ok := st.position(); ok {
		t.Fatalf("void fix should not validate")
	}
}

func TestNMEAState_GGAUpdatesAltitudeSatsHDOP(t *testing.T) {
	var st nmeaState
	line := nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,")
	s, err := parseNMEASentence(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	if !st.apply(now, s) {
		t.Fatalf("expected updated")
	}

	pos, ok := st.position()
	if !ok {
		t.Fatalf("expected valid position")
	}
	if math.Abs(pos.AltitudeM-545.4) > 1e-6 {
		t.Fatalf("altitude_m=%v", pos.AltitudeM)
	}
	if pos.Satellites != 8 {
		t.Fatalf("satellites=%d", pos.Satellites)
	}
	if !st.hdopOK || math.Abs(st.hdop-0.9) > 1e-6 {
		t.Fatalf("hdop=%v ok=%v", st.hdop, st.hdopOK)
	}
	// GGA alone carries no date; the wall clock stands in.
	if !pos.FixTime.Equal(now) {
		t.Fatalf("fix_time=%v want %v", pos.FixTime, now)
	}
}

func TestNMEAState_GGAZeroQualityIgnored(t *testing.T) {
	var st nmeaState
	line := nmeaLine("GNGGA,123519,4807.038,N,01131.000,E,0,00,99.9,545.4,M,46.9,M,,")
	s, err := parseNMEASentence(line)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st.apply(time.Now().UTC(), s) {
		t.Fatalf("quality 0 should not update")
	}
}

func TestParseNMEATime(t *testing.T) {
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	got := parseNMEATime(now, "123519.50", "230394")
	want := time.Date(1994, 3, 23, 12, 35, 19, 500000000, time.UTC)
	if !got.Equal(want) {
		t.Fatalf("got %v want %v", got, want)
	}

	// Missing date falls back to the wall clock.
	if got := parseNMEATime(now, "123519", ""); !got.Equal(now) {
		t.Fatalf("expected wall clock, got %v", got)
	}
	if got := parseNMEATime(now, "", "230394"); !got.Equal(now) {
		t.Fatalf("expected wall clock, got %v", got)
	}
}
