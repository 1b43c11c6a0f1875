package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/envstate"
	"urchin/internal/metrics"
)

const (
	backoffMin = 250 * time.Millisecond
	backoffMax = 10 * time.Second
)

type Config struct {
	// Source selects "serial" (NMEA on a UART) or "gpsd".
	Source string

	// Device and Baud apply to Source=="serial". The sculpture wires
	// the receiver to the Pi's own UART, so there is no USB hotplug to
	// detect; a fixed device path is part of the build.
	Device string
	Baud   int

	// GpsdAddr is host:port for Source=="gpsd".
	GpsdAddr string
}

// Probe opens the configured source once and closes it, for startup
// self-tests. For gpsd it checks the TCP dial only, not the protocol.
func Probe(ctx context.Context, cfg Config) error {
	if strings.EqualFold(strings.TrimSpace(cfg.Source), "gpsd") {
		conn, err := dialGPSD(ctx, cfg.GpsdAddr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
	f, err := openSerial(cfg.Device, cfg.Baud)
	if err != nil {
		return err
	}
	return f.Close()
}

// Snapshot is the position source's status for the web server.
type Snapshot struct {
	Connected  bool    `json:"connected"`
	Valid      bool    `json:"valid"`
	Source     string  `json:"source"`
	Lat        float64 `json:"lat,omitempty"`
	Lon        float64 `json:"lon,omitempty"`
	AltitudeM  float64 `json:"altitude_m,omitempty"`
	Satellites int     `json:"satellites,omitempty"`
	HDOP       float64 `json:"hdop,omitempty"`
	Fixes      uint64  `json:"fixes"`
	LastFixUTC string  `json:"last_fix_utc,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
}

type Service struct {
	cfg Config
	env *envstate.Environment
	log zerolog.Logger
	m   *metrics.Metrics

	mu   sync.RWMutex
	snap Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, env *envstate.Environment, m *metrics.Metrics, log zerolog.Logger) *Service {
	cfg.Source = strings.ToLower(strings.TrimSpace(cfg.Source))
	if cfg.Source == "" {
		cfg.Source = "serial"
	}
	if cfg.Device == "" {
		cfg.Device = "/dev/ttyS0"
	}
	if cfg.Baud == 0 {
		cfg.Baud = 9600
	}
	if cfg.GpsdAddr == "" {
		cfg.GpsdAddr = "127.0.0.1:2947"
	}
	return &Service{
		cfg:    cfg,
		env:    env,
		log:    log,
		m:      m,
		snap:   Snapshot{Source: cfg.Source},
		stopCh: make(chan struct{}),
	}
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start launches the reader goroutine. A missing receiver is not an
// error: the goroutine keeps retrying and the position stays stale.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps: service is nil")
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(ctx)
	}()
	return nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *Service) run(ctx context.Context) {
	backoff := backoffMin
	for {
		connected, err := s.readOnce(ctx)
		if s.stopping(ctx) {
			return
		}
		if connected {
			backoff = backoffMin
		}
		if err != nil {
			s.setErr(err.Error())
			s.m.SensorError("gps")
			s.log.Warn().Err(err).Str("source", s.cfg.Source).Dur("retry_in", backoff).Msg("gps source failed")
		}
		if !s.sleep(ctx, backoff) {
			return
		}
		if backoff *= 2; backoff > backoffMax {
			backoff = backoffMax
		}
	}
}

// readOnce opens the configured source and consumes it until the
// stream fails or the service stops. connected reports whether the
// open itself succeeded, which resets the retry backoff.
func (s *Service) readOnce(ctx context.Context) (connected bool, err error) {
	var (
		rc    io.ReadCloser
		where string
	)
	if s.cfg.Source == "gpsd" {
		where = s.cfg.GpsdAddr
		rc, err = s.openGPSD(ctx)
	} else {
		where = s.cfg.Device
		rc, err = openSerial(s.cfg.Device, s.cfg.Baud)
	}
	if err != nil {
		return false, fmt.Errorf("open %s: %w", where, err)
	}

	// Reads block with no deadline; a watcher closes the stream on
	// shutdown so the scanner returns.
	done := make(chan struct{})
	defer close(done)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-done:
			return
		case <-ctx.Done():
		case <-s.stopCh:
		}
		_ = rc.Close()
	}()
	defer rc.Close()

	s.setState(func(sn *Snapshot) { sn.Connected = true; sn.LastError = "" })
	s.log.Info().Str("source", s.cfg.Source).Str("device", where).Msg("gps connected")
	defer s.setState(func(sn *Snapshot) { sn.Connected = false })

	if s.cfg.Source == "gpsd" {
		err = s.scanGPSD(ctx, rc)
	} else {
		err = s.scanNMEA(ctx, rc)
	}
	return true, err
}

func (s *Service) openGPSD(ctx context.Context) (io.ReadCloser, error) {
	conn, err := dialGPSD(ctx, s.cfg.GpsdAddr)
	if err != nil {
		return nil, err
	}
	if err := gpsdWatch(conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("watch: %w", err)
	}
	return conn, nil
}

// scanNMEA consumes sentences until the stream fails. Parse errors are
// recorded and skipped; receivers emit occasional non-NMEA chatter.
func (s *Service) scanNMEA(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	// NMEA sentences are typically < 82 chars, but allow some headroom.
	sc.Buffer(make([]byte, 0, 256), 4096)

	var st nmeaState
	for sc.Scan() {
		if s.stopping(ctx) {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}
		sent, err := parseNMEASentence(line)
		if err != nil {
			s.setErr(err.Error())
			continue
		}
		if st.apply(time.Now().UTC(), sent) {
			if pos, ok := st.position(); ok {
				s.publish(pos, st.hdop)
			}
		}
	}
	return scanFailure(sc.Err())
}

func (s *Service) scanGPSD(ctx context.Context, r io.Reader) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 256*1024)

	var st gpsdState
	for sc.Scan() {
		if s.stopping(ctx) {
			return nil
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		updated, err := st.applyLine(time.Now().UTC(), line)
		if err != nil {
			s.setErr(err.Error())
			continue
		}
		if updated {
			if pos, ok := st.position(); ok {
				s.publish(pos, st.hdop)
			}
		}
	}
	return scanFailure(sc.Err())
}

func scanFailure(err error) error {
	if err == nil {
		err = io.EOF
	}
	return fmt.Errorf("read: %w", err)
}

// publish pushes an accepted fix into the environment and the status
// snapshot.
func (s *Service) publish(pos envstate.Position, hdop float64) {
	s.env.PublishPosition(pos)
	s.setState(func(sn *Snapshot) {
		sn.Valid = true
		sn.Lat = pos.Lat
		sn.Lon = pos.Lon
		sn.AltitudeM = pos.AltitudeM
		sn.Satellites = pos.Satellites
		sn.HDOP = hdop
		sn.Fixes++
		sn.LastFixUTC = pos.FixTime.UTC().Format(time.RFC3339Nano)
		sn.LastError = ""
	})
}

func (s *Service) stopping(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return true
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

// sleep waits for d unless the service is stopping first.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.stopCh:
		return false
	case <-time.After(d):
		return true
	}
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.LastError = msg
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
}
