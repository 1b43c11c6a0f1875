// Package reporter phones home: every interval it POSTs a small JSON
// document with the sculpture's position and battery state to a
// configured endpoint. Failures are logged and retried next interval;
// the endpoint being down costs nothing but stale dots on a map.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/envstate"
	"urchin/internal/metrics"
)

const requestTimeout = 5 * time.Second

// report is the wire document. Field names and the time layout are
// fixed by the receiving tracker.
type report struct {
	Lat     float64 `json:"lat"`
	Long    float64 `json:"long"`
	Sats    int     `json:"sats"`
	Alt     float64 `json:"alt"`
	Time    string  `json:"time"`
	Voltage float64 `json:"voltage"`
	Current float64 `json:"current"`
	SOC     float64 `json:"soc"`
}

const timeLayout = "2006-01-02 15:04:05"

type Config struct {
	URL      string
	Interval time.Duration
}

// Snapshot is the reporter's status for the web server.
type Snapshot struct {
	URL       string    `json:"url"`
	Sent      uint64    `json:"sent"`
	Failed    uint64    `json:"failed"`
	LastSent  time.Time `json:"last_sent_utc,omitempty"`
	LastError string    `json:"last_error,omitempty"`
}

type Service struct {
	cfg    Config
	env    *envstate.Environment
	log    zerolog.Logger
	m      *metrics.Metrics
	client *http.Client

	mu   sync.RWMutex
	snap Snapshot

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

func New(cfg Config, env *envstate.Environment, m *metrics.Metrics, log zerolog.Logger) *Service {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	return &Service{
		cfg:    cfg,
		env:    env,
		log:    log,
		m:      m,
		client: &http.Client{Timeout: requestTimeout},
		snap:   Snapshot{URL: cfg.URL},
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

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("reporter: service is nil")
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
	t := time.NewTicker(s.cfg.Interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-t.C:
			s.reportOnce(ctx)
		}
	}
}

func (s *Service) reportOnce(ctx context.Context) {
	snap := s.env.Snapshot(time.Now())
	if !snap.Position.Valid {
		// Nothing worth uploading before the first fix.
		s.log.Debug().Msg("skipping report, no fix yet")
		return
	}

	rep := report{
		Lat:     snap.Position.Lat,
		Long:    snap.Position.Lon,
		Sats:    snap.Position.Satellites,
		Alt:     snap.Position.AltitudeM,
		Time:    snap.Position.FixTime.UTC().Format(timeLayout),
		Voltage: snap.Battery.Voltage,
		Current: snap.Battery.Current,
		SOC:     snap.Battery.Fraction,
	}

	err := s.post(ctx, rep)
	s.m.ReportSent(err == nil)
	if err != nil {
		s.log.Warn().Err(err).Str("url", s.cfg.URL).Msg("report failed")
		s.setState(func(sn *Snapshot) {
			sn.Failed++
			sn.LastError = err.Error()
		})
		return
	}
	s.setState(func(sn *Snapshot) {
		sn.Sent++
		sn.LastSent = time.Now().UTC()
		sn.LastError = ""
	})
}

func (s *Service) post(ctx context.Context, rep report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint returned %s", resp.Status)
	}
	return nil
}

func (s *Service) setState(update func(*Snapshot)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	update(&s.snap)
}
