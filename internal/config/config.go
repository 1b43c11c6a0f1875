package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full startup configuration. Invalid configuration is
// the one fatal error class: Load fails before any goroutine starts or
// any LED is energized.
type Config struct {
	LogLevel string `yaml:"log_level"`

	LEDs       LEDConfig        `yaml:"leds"`
	GPS        GPSConfig        `yaml:"gps"`
	IMU        IMUConfig        `yaml:"imu"`
	Power      PowerConfig      `yaml:"power"`
	Engine     EngineConfig     `yaml:"engine"`
	Visualizer VisualizerConfig `yaml:"visualizer"`
	Web        WebConfig        `yaml:"web"`
	Reporter   ReporterConfig   `yaml:"reporter"`

	// StartupTests probes each peripheral and flashes the strip once
	// before the worker goroutines start.
	StartupTests bool `yaml:"startup_tests"`
}

type LEDConfig struct {
	Spines       int    `yaml:"spines"`
	LEDsPerSpine int    `yaml:"leds_per_spine"`
	SPIPort      string `yaml:"spi_port"`
	SPIHz        int    `yaml:"spi_hz"`
	// PowerGPIO is the BCM line gating strip power. -1 disables the
	// power switch; 0 selects the default.
	PowerGPIO  int `yaml:"power_gpio"`
	Brightness int `yaml:"brightness"`
}

type GPSConfig struct {
	// Source selects "serial" (NMEA on a UART) or "gpsd".
	Source     string        `yaml:"source"`
	Device     string        `yaml:"device"`
	Baud       int           `yaml:"baud"`
	GpsdAddr   string        `yaml:"gpsd_addr"`
	StaleAfter time.Duration `yaml:"stale_after"`
}

type IMUConfig struct {
	I2CBus         string        `yaml:"i2c_bus"`
	Address        int           `yaml:"address"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
}

type PowerConfig struct {
	I2CBus         string        `yaml:"i2c_bus"`
	Address        int           `yaml:"address"`
	SampleInterval time.Duration `yaml:"sample_interval"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	// LowBatteryFraction is the state-of-charge below which the engine
	// switches to the low-battery pattern.
	LowBatteryFraction float64 `yaml:"low_battery_fraction"`
}

type EngineConfig struct {
	TickRateHz             int           `yaml:"tick_rate_hz"`
	MotionRateThresholdDPS float64       `yaml:"motion_rate_threshold_dps"`
	StationaryWindow       time.Duration `yaml:"stationary_window"`
}

type VisualizerConfig struct {
	Enable bool `yaml:"enable"`
}

type WebConfig struct {
	Listen string `yaml:"listen"`
}

type ReporterConfig struct {
	Enable   bool          `yaml:"enable"`
	URL      string        `yaml:"url"`
	Interval time.Duration `yaml:"interval"`
}

// spineCount is fixed by the sculpture: 12 light pipes on the
// icosahedron vertices.
const spineCount = 12

// Default returns the configuration used when keys are omitted.
func Default() Config {
	return Config{
		LogLevel: "info",
		LEDs: LEDConfig{
			Spines:       spineCount,
			LEDsPerSpine: 59,
			SPIHz:        2_400_000,
			PowerGPIO:    23,
			Brightness:   100,
		},
		GPS: GPSConfig{
			Source:     "serial",
			Device:     "/dev/ttyS0",
			Baud:       9600,
			GpsdAddr:   "127.0.0.1:2947",
			StaleAfter: 2 * time.Second,
		},
		IMU: IMUConfig{
			I2CBus:         "/dev/i2c-1",
			Address:        0x69,
			SampleInterval: 20 * time.Millisecond,
			StaleAfter:     2 * time.Second,
		},
		Power: PowerConfig{
			I2CBus:             "/dev/i2c-1",
			Address:            0x40,
			SampleInterval:     time.Second,
			StaleAfter:         10 * time.Second,
			LowBatteryFraction: 0.15,
		},
		Engine: EngineConfig{
			TickRateHz:             30,
			MotionRateThresholdDPS: 20,
			StationaryWindow:       3 * time.Minute,
		},
		Visualizer: VisualizerConfig{Enable: true},
		Web:        WebConfig{Listen: ":8080"},
		Reporter: ReporterConfig{
			Interval: 60 * time.Second,
		},
	}
}

// Load reads path, overlays it on the defaults, and validates. Any
// validation failure is fatal to startup.
func Load(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Save writes the configuration as yaml.
func Save(path string, cfg Config) error {
	b, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// Validate normalizes zero values to defaults and rejects anything the
// daemon cannot safely run with.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level %q is not a zerolog level", c.LogLevel)
	}

	if c.LEDs.Spines == 0 {
		c.LEDs.Spines = spineCount
	}
	if c.LEDs.Spines != spineCount {
		return fmt.Errorf("leds.spines must be %d (the sculpture is fixed), got %d", spineCount, c.LEDs.Spines)
	}
	if c.LEDs.LEDsPerSpine < 1 || c.LEDs.LEDsPerSpine > 300 {
		return fmt.Errorf("leds.leds_per_spine must be in 1..300, got %d", c.LEDs.LEDsPerSpine)
	}
	if c.LEDs.SPIHz <= 0 {
		return fmt.Errorf("leds.spi_hz must be > 0, got %d", c.LEDs.SPIHz)
	}
	if c.LEDs.PowerGPIO == 0 {
		c.LEDs.PowerGPIO = 23
	}
	if c.LEDs.Brightness == 0 {
		c.LEDs.Brightness = 100
	}
	if c.LEDs.Brightness < 0 || c.LEDs.Brightness > 100 {
		return fmt.Errorf("leds.brightness must be in 1..100, got %d", c.LEDs.Brightness)
	}

	switch c.GPS.Source {
	case "serial", "gpsd":
	default:
		return fmt.Errorf("gps.source must be \"serial\" or \"gpsd\", got %q", c.GPS.Source)
	}
	if c.GPS.Source == "serial" && c.GPS.Device == "" {
		return fmt.Errorf("gps.device is required when gps.source is serial")
	}
	if c.GPS.Source == "gpsd" && c.GPS.GpsdAddr == "" {
		return fmt.Errorf("gps.gpsd_addr is required when gps.source is gpsd")
	}
	if c.GPS.Baud <= 0 {
		return fmt.Errorf("gps.baud must be > 0, got %d", c.GPS.Baud)
	}
	if c.GPS.StaleAfter <= 0 {
		return fmt.Errorf("gps.stale_after must be > 0, got %v", c.GPS.StaleAfter)
	}

	if c.IMU.I2CBus == "" {
		return fmt.Errorf("imu.i2c_bus is required")
	}
	if c.IMU.Address <= 0 || c.IMU.Address > 0x7f {
		return fmt.Errorf("imu.address must be a 7-bit I2C address, got %#x", c.IMU.Address)
	}
	if c.IMU.SampleInterval <= 0 {
		return fmt.Errorf("imu.sample_interval must be > 0, got %v", c.IMU.SampleInterval)
	}
	if c.IMU.StaleAfter <= 0 {
		return fmt.Errorf("imu.stale_after must be > 0, got %v", c.IMU.StaleAfter)
	}

	if c.Power.I2CBus == "" {
		return fmt.Errorf("power.i2c_bus is required")
	}
	if c.Power.Address <= 0 || c.Power.Address > 0x7f {
		return fmt.Errorf("power.address must be a 7-bit I2C address, got %#x", c.Power.Address)
	}
	if c.Power.SampleInterval <= 0 {
		return fmt.Errorf("power.sample_interval must be > 0, got %v", c.Power.SampleInterval)
	}
	if c.Power.StaleAfter <= 0 {
		return fmt.Errorf("power.stale_after must be > 0, got %v", c.Power.StaleAfter)
	}
	if c.Power.LowBatteryFraction <= 0 || c.Power.LowBatteryFraction >= 1 {
		return fmt.Errorf("power.low_battery_fraction must be in (0,1), got %v", c.Power.LowBatteryFraction)
	}

	if c.Engine.TickRateHz < 1 || c.Engine.TickRateHz > 120 {
		return fmt.Errorf("engine.tick_rate_hz must be in 1..120, got %d", c.Engine.TickRateHz)
	}
	if c.Engine.MotionRateThresholdDPS <= 0 {
		return fmt.Errorf("engine.motion_rate_threshold_dps must be > 0, got %v", c.Engine.MotionRateThresholdDPS)
	}
	if c.Engine.StationaryWindow <= 0 {
		return fmt.Errorf("engine.stationary_window must be > 0, got %v", c.Engine.StationaryWindow)
	}

	if c.Web.Listen == "" {
		return fmt.Errorf("web.listen is required")
	}

	if c.Reporter.Enable {
		u, err := url.Parse(c.Reporter.URL)
		if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("reporter.url must be an absolute http(s) URL, got %q", c.Reporter.URL)
		}
		if c.Reporter.Interval <= 0 {
			return fmt.Errorf("reporter.interval must be > 0, got %v", c.Reporter.Interval)
		}
	}

	return nil
}
