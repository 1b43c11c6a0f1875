// Package metrics bundles the Prometheus instrumentation for the
// render loop, sinks, and sensors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"urchin/internal/pattern"
)

type Metrics struct {
	registry *prometheus.Registry

	Ticks           prometheus.Counter
	TickOverruns    prometheus.Counter
	TickDuration    prometheus.Histogram
	PatternState    *prometheus.GaugeVec
	SinkErrors      *prometheus.CounterVec
	FramesDropped   prometheus.Counter
	BroadcastPeers  prometheus.Gauge
	SensorErrors    *prometheus.CounterVec
	BatteryFraction prometheus.Gauge
	Reports         prometheus.Counter
	ReportErrors    prometheus.Counter
}

// New registers all collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urchin_ticks_total",
			Help: "Render ticks completed.",
		}),
		TickOverruns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urchin_tick_overruns_total",
			Help: "Ticks that ran longer than the tick period and caused skips.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "urchin_tick_duration_seconds",
			Help:    "Time spent in snapshot, classify, render, and sink delivery.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		PatternState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "urchin_pattern_state",
			Help: "One-hot gauge of the active mood state.",
		}, []string{"state"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urchin_sink_errors_total",
			Help: "Frame deliveries that failed, by sink.",
		}, []string{"sink"}),
		FramesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urchin_frames_dropped_total",
			Help: "Broadcast frames dropped because a peer queue was full.",
		}),
		BroadcastPeers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "urchin_broadcast_peers",
			Help: "Connected visualizer peers.",
		}),
		SensorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "urchin_sensor_errors_total",
			Help: "Sensor read or open failures, by sensor.",
		}, []string{"sensor"}),
		BatteryFraction: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "urchin_battery_fraction",
			Help: "Latest estimated battery state of charge, 0 to 1.",
		}),
		Reports: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urchin_reports_total",
			Help: "Telemetry reports accepted by the remote endpoint.",
		}),
		ReportErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "urchin_report_errors_total",
			Help: "Telemetry reports that failed to send.",
		}),
	}
	reg.MustRegister(
		m.Ticks, m.TickOverruns, m.TickDuration, m.PatternState,
		m.SinkErrors, m.FramesDropped, m.BroadcastPeers,
		m.SensorErrors, m.BatteryFraction, m.Reports, m.ReportErrors,
	)
	return m
}

// Handler serves the private registry.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records one completed tick and the state it rendered.
func (m *Metrics) ObserveTick(d time.Duration, st pattern.State) {
	if m == nil {
		return
	}
	m.Ticks.Inc()
	m.TickDuration.Observe(d.Seconds())
	for _, s := range pattern.States() {
		v := 0.0
		if s == st {
			v = 1
		}
		m.PatternState.WithLabelValues(s.String()).Set(v)
	}
}

// SinkError counts one failed delivery for the named sink.
func (m *Metrics) SinkError(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

// SensorError counts one failed read for the named sensor.
func (m *Metrics) SensorError(sensor string) {
	if m == nil {
		return
	}
	m.SensorErrors.WithLabelValues(sensor).Inc()
}

func (m *Metrics) Overrun() {
	if m == nil {
		return
	}
	m.TickOverruns.Inc()
}

func (m *Metrics) DropFrames(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.FramesDropped.Add(float64(n))
}

func (m *Metrics) SetPeers(n int) {
	if m == nil {
		return
	}
	m.BroadcastPeers.Set(float64(n))
}

func (m *Metrics) SetBatteryFraction(f float64) {
	if m == nil {
		return
	}
	m.BatteryFraction.Set(f)
}

// ReportSent counts one telemetry upload, success or failure.
func (m *Metrics) ReportSent(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Reports.Inc()
	} else {
		m.ReportErrors.Inc()
	}
}
