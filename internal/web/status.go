package web

import (
	"runtime"
	"runtime/debug"
	"time"

	"urchin/internal/control"
	"urchin/internal/engine"
	"urchin/internal/envstate"
	"urchin/internal/gps"
	"urchin/internal/imu"
	"urchin/internal/power"
	"urchin/internal/reporter"
	"urchin/internal/sink"
)

// Sources aggregates the snapshot providers shown by GET /status. Nil
// fields simply drop out of the response, so a sim run without real
// sensors still serves a useful document.
type Sources struct {
	Env      *envstate.Environment
	Engine   func() engine.Snapshot
	GPS      func() gps.Snapshot
	IMU      func() imu.Snapshot
	Power    func() power.Snapshot
	Strip    func() sink.HardwareSnapshot
	Reporter func() reporter.Snapshot
	Controls *control.Controls
	Peers    func() int
}

type Status struct {
	start   time.Time
	sources Sources
}

func NewStatus(src Sources) *Status {
	return &Status{start: time.Now().UTC(), sources: src}
}

type SensorsSnapshot struct {
	GPS   *gps.Snapshot   `json:"gps,omitempty"`
	IMU   *imu.Snapshot   `json:"imu,omitempty"`
	Power *power.Snapshot `json:"power,omitempty"`
}

type SystemSnapshot struct {
	CPUTempC   *float64 `json:"cpu_temp_c,omitempty"`
	LocalAddrs []string `json:"local_addrs,omitempty"`
}

type StatusSnapshot struct {
	Service   string `json:"service"`
	Version   string `json:"version,omitempty"`
	GoVersion string `json:"go_version"`
	NowUTC    string `json:"now_utc"`
	UptimeSec int64  `json:"uptime_sec"`

	Engine      *engine.Snapshot       `json:"engine,omitempty"`
	Controls    *control.Snapshot      `json:"controls,omitempty"`
	Environment *envstate.Snapshot     `json:"environment,omitempty"`
	Sensors     SensorsSnapshot        `json:"sensors"`
	Strip       *sink.HardwareSnapshot `json:"strip,omitempty"`
	Reporter    *reporter.Snapshot     `json:"reporter,omitempty"`
	Peers       int                    `json:"peers"`
	System      SystemSnapshot         `json:"system"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   "urchin",
		GoVersion: runtime.Version(),
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
		System:    systemSnapshot(),
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi != nil {
		snap.Version = bi.Main.Version
	}

	src := s.sources
	if src.Engine != nil {
		v := src.Engine()
		snap.Engine = &v
	}
	if src.Controls != nil {
		v := src.Controls.Snapshot()
		snap.Controls = &v
	}
	if src.Env != nil {
		v := src.Env.Snapshot(nowUTC)
		snap.Environment = &v
	}
	if src.GPS != nil {
		v := src.GPS()
		snap.Sensors.GPS = &v
	}
	if src.IMU != nil {
		v := src.IMU()
		snap.Sensors.IMU = &v
	}
	if src.Power != nil {
		v := src.Power()
		snap.Sensors.Power = &v
	}
	if src.Strip != nil {
		v := src.Strip()
		snap.Strip = &v
	}
	if src.Reporter != nil {
		v := src.Reporter()
		snap.Reporter = &v
	}
	if src.Peers != nil {
		snap.Peers = src.Peers()
	}
	return snap
}
