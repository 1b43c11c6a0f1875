// Package web is the sculpture's control surface: a small JSON API for
// status and the two runtime knobs, the websocket frame feed for the
// browser visualizer, Prometheus metrics, and a liveness probe.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"urchin/internal/control"
	"urchin/internal/metrics"
	"urchin/internal/sink"
)

// controlRequest is the POST /control body. Absent fields leave the
// corresponding knob untouched.
type controlRequest struct {
	Brightness *int    `json:"brightness"`
	Pattern    *string `json:"pattern"`
}

func Handler(status *Status, controls *control.Controls, visual *sink.Broadcast, m *metrics.Metrics, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := status.Snapshot(time.Now().UTC())
		b, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	mux.HandleFunc("/control", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if controls == nil {
			http.Error(w, "controls unavailable", http.StatusNotFound)
			return
		}

		var req controlRequest
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil {
			http.Error(w, "bad request: "+err.Error(), http.StatusBadRequest)
			return
		}

		// Validate both knobs before touching either, so a bad request
		// changes nothing.
		if req.Brightness != nil {
			if *req.Brightness < 0 || *req.Brightness > 100 {
				http.Error(w, "brightness must be in 0..100", http.StatusBadRequest)
				return
			}
		}
		if req.Pattern != nil {
			if err := controls.SetPatternOverride(*req.Pattern); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Info().Str("pattern", *req.Pattern).Msg("pattern override set")
		}
		if req.Brightness != nil {
			if err := controls.SetBrightness(*req.Brightness); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			log.Info().Int("brightness", *req.Brightness).Msg("brightness set")
		}

		b, err := json.MarshalIndent(controls.Snapshot(), "", "  ")
		if err != nil {
			http.Error(w, "marshal failed", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
		_, _ = w.Write([]byte("\n"))
	})

	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if visual == nil {
			http.Error(w, "visualizer disabled", http.StatusNotFound)
			return
		}
		visual.ServeHTTP(w, r)
	})

	mux.Handle("/metrics", m.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("ok\n"))
	})

	return mux
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. Open websockets are owned by the broadcast sink and are
// closed by its Close, not here.
func Serve(ctx context.Context, listenAddr string, status *Status, controls *control.Controls, visual *sink.Broadcast, m *metrics.Metrics, log zerolog.Logger) error {
	if status == nil {
		status = NewStatus(Sources{})
	}

	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           Handler(status, controls, visual, m, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	log.Info().Str("listen", listenAddr).Msg("web server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
