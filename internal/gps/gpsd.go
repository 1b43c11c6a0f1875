package gps

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"strings"
	"time"

	"urchin/internal/envstate"
)

// dialGPSD connects to gpsd over TCP.
func dialGPSD(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatch enables JSON streaming reports. scaled=true makes gpsd
// report meters and degrees instead of raw device units.
func gpsdWatch(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"json\":true,\"scaled\":true}\n"))
	return err
}

type gpsdMsgBase struct {
	Class string `json:"class"`
}

type gpsdTPV struct {
	Mode *int   `json:"mode"`
	Time string `json:"time"`

	Lat *float64 `json:"lat"`
	Lon *float64 `json:"lon"`

	Alt    *float64 `json:"alt"`
	AltMSL *float64 `json:"altMSL"`
}

type gpsdSat struct {
	Used bool `json:"used"`
}

type gpsdSKY struct {
	HDOP       *float64  `json:"hdop"`
	Satellites []gpsdSat `json:"satellites"`
}

// gpsdState accumulates TPV and SKY reports until they add up to a
// usable fix (mode >= 2 with coordinates present).
type gpsdState struct {
	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool

	altM  float64
	altOK bool

	mode       int
	modeOK     bool
	satellites int
	satsOK     bool
	hdop       float64
	hdopOK     bool

	fixTime time.Time
	valid   bool
}

func (s *gpsdState) applyLine(nowUTC time.Time, line string) (bool, error) {
	var base gpsdMsgBase
	if err := json.Unmarshal([]byte(line), &base); err != nil {
		return false, fmt.Errorf("gpsd: bad report: %v", err)
	}

	switch strings.ToUpper(strings.TrimSpace(base.Class)) {
	case "TPV":
		var tpv gpsdTPV
		if err := json.Unmarshal([]byte(line), &tpv); err != nil {
			return false, fmt.Errorf("gpsd: bad tpv report: %v", err)
		}
		return s.applyTPV(nowUTC, tpv), nil
	case "SKY":
		var sky gpsdSKY
		if err := json.Unmarshal([]byte(line), &sky); err != nil {
			return false, fmt.Errorf("gpsd: bad sky report: %v", err)
		}
		return s.applySKY(sky), nil
	}
	// VERSION, DEVICES, WATCH and friends carry nothing we need.
	return false, nil
}

func (s *gpsdState) position() (envstate.Position, bool) {
	if !s.valid {
		return envstate.Position{}, false
	}
	return envstate.Position{
		Lat:        s.latDeg,
		Lon:        s.lonDeg,
		AltitudeM:  s.altM,
		Satellites: s.satellites,
		FixTime:    s.fixTime,
		Valid:      true,
	}, true
}

func (s *gpsdState) applyTPV(nowUTC time.Time, tpv gpsdTPV) bool {
	updated := false
	if tpv.Mode != nil {
		s.mode, s.modeOK = *tpv.Mode, true
		updated = true
	}
	if tpv.Lat != nil {
		s.latDeg, s.latOK = *tpv.Lat, true
		updated = true
	}
	if tpv.Lon != nil {
		s.lonDeg, s.lonOK = *tpv.Lon, true
		updated = true
	}

	// Prefer altitude above mean sea level; older gpsd fills alt only.
	alt := tpv.AltMSL
	if alt == nil {
		alt = tpv.Alt
	}
	if alt != nil {
		s.altM, s.altOK = *alt, true
		updated = true
	}

	// Mode 2 is a 2D fix, 3 adds altitude.
	if s.modeOK && s.mode >= 2 && s.latOK && s.lonOK {
		s.valid = true
		s.fixTime = tpvTime(nowUTC, tpv.Time)
		updated = true
	}
	return updated
}

// tpvTime parses the report's own timestamp, falling back to the wall
// clock when gpsd has not decoded time yet.
func tpvTime(nowUTC time.Time, raw string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(raw)); err == nil {
		return t.UTC()
	}
	return nowUTC
}

func (s *gpsdState) applySKY(sky gpsdSKY) bool {
	updated := false
	if sky.HDOP != nil {
		s.hdop, s.hdopOK = *sky.HDOP, true
		updated = true
	}
	if len(sky.Satellites) == 0 {
		return updated
	}
	used := 0
	for _, sat := range sky.Satellites {
		if sat.Used {
			used++
		}
	}
	s.satellites, s.satsOK = used, true
	return true
}
