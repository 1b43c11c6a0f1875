package main

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/config"
	"urchin/internal/control"
	"urchin/internal/engine"
	"urchin/internal/envstate"
	"urchin/internal/frame"
	"urchin/internal/gps"
	"urchin/internal/imu"
	"urchin/internal/logging"
	"urchin/internal/metrics"
	"urchin/internal/power"
	"urchin/internal/reporter"
	"urchin/internal/sim"
	"urchin/internal/sink"
	"urchin/internal/web"
)

// runtime owns every service goroutine. Construction never fails: a
// missing peripheral costs that sensor (or the hardware sink), never
// the process. Close stops the render loop first so nothing writes to
// a sink that is shutting down.
type runtime struct {
	log zerolog.Logger
	cfg config.Config

	env      *envstate.Environment
	metrics  *metrics.Metrics
	controls *control.Controls
	status   *web.Status

	hardware *sink.Hardware
	visual   *sink.Broadcast
	engine   *engine.Service

	gpsSvc   *gps.Service
	imuSvc   *imu.Service
	powerSvc *power.Service
	simSvc   *sim.Service
	repSvc   *reporter.Service
}

func newRuntime(ctx context.Context, cfg config.Config, simMode bool, logger zerolog.Logger) *runtime {
	r := &runtime{
		log: logger,
		cfg: cfg,
		env: envstate.New(envstate.Timeouts{
			Position: cfg.GPS.StaleAfter,
			Attitude: cfg.IMU.StaleAfter,
			Battery:  cfg.Power.StaleAfter,
		}),
		metrics:  metrics.New(),
		controls: control.New(),
	}
	_ = r.controls.SetBrightness(cfg.LEDs.Brightness)

	// Sinks. The strip needs Linux SPI and a power GPIO; without them
	// the daemon still renders for visualizer peers.
	sinks := make([]sink.Sink, 0, 2)
	hw, err := sink.OpenHardware(cfg.LEDs, r.controls, logging.Component(logger, "strip"), r.metrics)
	if err != nil {
		logger.Warn().Err(err).Msg("led strip unavailable, continuing without it")
	} else {
		r.hardware = hw
		sinks = append(sinks, hw)
	}
	if cfg.Visualizer.Enable {
		r.visual = sink.NewBroadcast(logging.Component(logger, "visualizer"), r.metrics)
		sinks = append(sinks, r.visual)
	}

	if cfg.StartupTests && !simMode {
		r.selfTest(ctx)
	}

	// Sensor producers.
	if simMode {
		r.simSvc = sim.New(sim.DefaultProfile(), r.env, logging.Component(logger, "sim"))
		_ = r.simSvc.Start(ctx)
	} else {
		r.gpsSvc = gps.New(gps.Config{
			Source:   cfg.GPS.Source,
			Device:   cfg.GPS.Device,
			Baud:     cfg.GPS.Baud,
			GpsdAddr: cfg.GPS.GpsdAddr,
		}, r.env, r.metrics, logging.Component(logger, "gps"))
		_ = r.gpsSvc.Start(ctx)

		r.imuSvc = imu.New(imu.Config{
			Bus:                    cfg.IMU.I2CBus,
			Address:                uint16(cfg.IMU.Address),
			SampleInterval:         cfg.IMU.SampleInterval,
			MotionRateThresholdDPS: cfg.Engine.MotionRateThresholdDPS,
		}, r.env, r.metrics, logging.Component(logger, "imu"))
		_ = r.imuSvc.Start(ctx)

		r.powerSvc = power.New(power.Config{
			Bus:            cfg.Power.I2CBus,
			Address:        cfg.Power.Address,
			SampleInterval: cfg.Power.SampleInterval,
		}, r.env, r.metrics, logging.Component(logger, "power"))
		_ = r.powerSvc.Start(ctx)
	}

	if cfg.Reporter.Enable {
		r.repSvc = reporter.New(reporter.Config{
			URL:      cfg.Reporter.URL,
			Interval: cfg.Reporter.Interval,
		}, r.env, r.metrics, logging.Component(logger, "reporter"))
		_ = r.repSvc.Start(ctx)
	}

	geom := frame.NewGeometry(cfg.LEDs.LEDsPerSpine)
	r.engine = engine.New(engine.Config{
		TickRateHz:             cfg.Engine.TickRateHz,
		MotionRateThresholdDPS: cfg.Engine.MotionRateThresholdDPS,
		StationaryWindow:       cfg.Engine.StationaryWindow,
		LowBatteryFraction:     cfg.Power.LowBatteryFraction,
	}, r.env, geom, sinks, r.controls, r.metrics, logging.Component(logger, "engine"))
	_ = r.engine.Start(ctx)

	src := web.Sources{
		Env:      r.env,
		Engine:   r.engine.Snapshot,
		Controls: r.controls,
	}
	if r.gpsSvc != nil {
		src.GPS = r.gpsSvc.Snapshot
	}
	if r.imuSvc != nil {
		src.IMU = r.imuSvc.Snapshot
	}
	if r.powerSvc != nil {
		src.Power = r.powerSvc.Snapshot
	}
	if r.hardware != nil {
		src.Strip = r.hardware.Snapshot
	}
	if r.repSvc != nil {
		src.Reporter = r.repSvc.Snapshot
	}
	if r.visual != nil {
		src.Peers = r.visual.Peers
	}
	r.status = web.NewStatus(src)

	return r
}

// selfTest probes each peripheral once and flashes the strip so a
// miswired build is obvious at the bench. Failures are logged only;
// the services retry for real afterwards.
func (r *runtime) selfTest(ctx context.Context) {
	r.log.Info().Msg("startup self-test")

	if err := imu.Probe(r.cfg.IMU.I2CBus, uint16(r.cfg.IMU.Address)); err != nil {
		r.log.Warn().Err(err).Msg("self-test: imu probe failed")
	} else {
		r.log.Info().Msg("self-test: imu ok")
	}
	if err := power.Probe(r.cfg.Power.I2CBus, r.cfg.Power.Address); err != nil {
		r.log.Warn().Err(err).Msg("self-test: battery monitor probe failed")
	} else {
		r.log.Info().Msg("self-test: battery monitor ok")
	}
	if err := gps.Probe(ctx, gps.Config{
		Source:   r.cfg.GPS.Source,
		Device:   r.cfg.GPS.Device,
		Baud:     r.cfg.GPS.Baud,
		GpsdAddr: r.cfg.GPS.GpsdAddr,
	}); err != nil {
		r.log.Warn().Err(err).Msg("self-test: gps probe failed")
	} else {
		r.log.Info().Msg("self-test: gps ok")
	}

	r.flashStrip()
}

// flashStrip lights every LED white for a moment, then blanks them.
func (r *runtime) flashStrip() {
	if r.hardware == nil {
		return
	}
	f := frame.New(r.cfg.LEDs.Spines, r.cfg.LEDs.LEDsPerSpine)
	f.Fill(frame.Color{R: 255, G: 255, B: 255})
	r.hardware.Accept(f)
	time.Sleep(250 * time.Millisecond)
	f.Fill(frame.Color{})
	r.hardware.Accept(f)
}

// Close stops the engine before the sinks so no frame lands on a
// closed strip, then stops the producers.
func (r *runtime) Close() {
	if r == nil {
		return
	}
	if r.engine != nil {
		r.engine.Close()
		r.engine = nil
	}
	if r.hardware != nil {
		if err := r.hardware.Close(); err != nil {
			r.log.Warn().Err(err).Msg("strip close failed")
		}
		r.hardware = nil
	}
	if r.visual != nil {
		_ = r.visual.Close()
		r.visual = nil
	}
	if r.repSvc != nil {
		r.repSvc.Close()
		r.repSvc = nil
	}
	if r.gpsSvc != nil {
		r.gpsSvc.Close()
		r.gpsSvc = nil
	}
	if r.imuSvc != nil {
		r.imuSvc.Close()
		r.imuSvc = nil
	}
	if r.powerSvc != nil {
		r.powerSvc.Close()
		r.powerSvc = nil
	}
	if r.simSvc != nil {
		r.simSvc.Close()
		r.simSvc = nil
	}
}
