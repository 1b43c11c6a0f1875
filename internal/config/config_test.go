package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "cfg.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireErrEq(t *testing.T, err error, want string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error %q, got nil", want)
	}
	if err.Error() != want {
		t.Fatalf("error=%q want %q", err.Error(), want)
	}
}

func TestLoad_EmptyFileGetsDefaults(t *testing.T) {
	path := writeTempConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LEDs.Spines != 12 || cfg.LEDs.LEDsPerSpine != 59 {
		t.Fatalf("led defaults not applied: %+v", cfg.LEDs)
	}
	if cfg.Engine.TickRateHz != 30 {
		t.Fatalf("tick_rate_hz=%d want 30", cfg.Engine.TickRateHz)
	}
	if cfg.GPS.Source != "serial" || cfg.GPS.Device != "/dev/ttyS0" {
		t.Fatalf("gps defaults not applied: %+v", cfg.GPS)
	}
	if cfg.IMU.Address != 0x69 || cfg.Power.Address != 0x40 {
		t.Fatalf("i2c address defaults not applied: imu=%#x power=%#x", cfg.IMU.Address, cfg.Power.Address)
	}
	if cfg.Power.LowBatteryFraction != 0.15 {
		t.Fatalf("low_battery_fraction=%v want 0.15", cfg.Power.LowBatteryFraction)
	}
	if cfg.Reporter.Enable {
		t.Fatalf("reporter should default to disabled")
	}
}

func TestLoad_OverridesMergeOverDefaults(t *testing.T) {
	path := writeTempConfig(t, "engine:\n  tick_rate_hz: 60\nleds:\n  leds_per_spine: 30\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Engine.TickRateHz != 60 {
		t.Fatalf("tick_rate_hz=%d want 60", cfg.Engine.TickRateHz)
	}
	if cfg.LEDs.LEDsPerSpine != 30 {
		t.Fatalf("leds_per_spine=%d want 30", cfg.LEDs.LEDsPerSpine)
	}
	// Untouched sections keep their defaults.
	if cfg.Engine.StationaryWindow != 3*time.Minute {
		t.Fatalf("stationary_window=%v want 3m", cfg.Engine.StationaryWindow)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{
			name: "WrongSpineCount",
			body: "leds:\n  spines: 6\n",
			want: "leds.spines must be 12 (the sculpture is fixed), got 6",
		},
		{
			name: "LEDCountTooHigh",
			body: "leds:\n  leds_per_spine: 301\n",
			want: "leds.leds_per_spine must be in 1..300, got 301",
		},
		{
			name: "BadBrightness",
			body: "leds:\n  brightness: 150\n",
			want: "leds.brightness must be in 1..100, got 150",
		},
		{
			name: "BadGPSSource",
			body: "gps:\n  source: tcp\n",
			want: "gps.source must be \"serial\" or \"gpsd\", got \"tcp\"",
		},
		{
			name: "BadIMUAddress",
			body: "imu:\n  address: 0x99\n",
			want: "imu.address must be a 7-bit I2C address, got 0x99",
		},
		{
			name: "ZeroTickRate",
			body: "engine:\n  tick_rate_hz: 0\n",
			want: "engine.tick_rate_hz must be in 1..120, got 0",
		},
		{
			name: "TickRateTooHigh",
			body: "engine:\n  tick_rate_hz: 144\n",
			want: "engine.tick_rate_hz must be in 1..120, got 144",
		},
		{
			name: "BadMotionThreshold",
			body: "engine:\n  motion_rate_threshold_dps: -1\n",
			want: "engine.motion_rate_threshold_dps must be > 0, got -1",
		},
		{
			name: "BadLowBatteryFraction",
			body: "power:\n  low_battery_fraction: 1.5\n",
			want: "power.low_battery_fraction must be in (0,1), got 1.5",
		},
		{
			name: "ReporterNeedsURL",
			body: "reporter:\n  enable: true\n",
			want: "reporter.url must be an absolute http(s) URL, got \"\"",
		},
		{
			name: "ReporterRejectsRelativeURL",
			body: "reporter:\n  enable: true\n  url: /report\n",
			want: "reporter.url must be an absolute http(s) URL, got \"/report\"",
		},
		{
			name: "BadLogLevel",
			body: "log_level: loud\n",
			want: "log_level \"loud\" is not a zerolog level",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeTempConfig(t, tc.body)
			_, err := Load(path)
			requireErrEq(t, err, tc.want)
		})
	}
}

func TestLoad_ReporterEnabled(t *testing.T) {
	path := writeTempConfig(t, "reporter:\n  enable: true\n  url: https://example.net/urchin\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.Reporter.Enable || cfg.Reporter.Interval != 60*time.Second {
		t.Fatalf("reporter config wrong: %+v", cfg.Reporter)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "cfg.yaml")
	want := Default()
	want.Engine.TickRateHz = 45
	if err := Save(tmp, want); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	got, err := Load(tmp)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got.Engine.TickRateHz != 45 {
		t.Fatalf("tick_rate_hz=%d want 45", got.Engine.TickRateHz)
	}
}
