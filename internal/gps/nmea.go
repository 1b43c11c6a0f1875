package gps

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"urchin/internal/envstate"
)

type nmeaSentence struct {
	Type string
	// Fields is the comma-split payload, including the talker+type
	// prefix at index 0.
	Fields []string
}

// parseNMEASentence validates "$PAYLOAD*CS" framing, where CS is the
// hex XOR of the payload bytes. The talker prefix (GP, GN, ...) is
// dropped from Type so multi-constellation receivers parse the same as
// GPS-only ones.
func parseNMEASentence(line string) (nmeaSentence, error) {
	line = strings.TrimSpace(line)
	if len(line) == 0 || line[0] != '$' {
		return nmeaSentence{}, fmt.Errorf("nmea: missing '$'")
	}
	payload, sum, found := strings.Cut(line[1:], "*")
	if !found {
		return nmeaSentence{}, fmt.Errorf("nmea: missing checksum")
	}
	sum = strings.TrimSpace(sum)
	if len(sum) < 2 {
		return nmeaSentence{}, fmt.Errorf("nmea: short checksum")
	}
	want, err := strconv.ParseUint(sum[:2], 16, 8)
	if err != nil {
		return nmeaSentence{}, fmt.Errorf("nmea: bad checksum")
	}
	var got byte
	for i := 0; i < len(payload); i++ {
		got ^= payload[i]
	}
	if got != byte(want) {
		return nmeaSentence{}, fmt.Errorf("nmea: checksum mismatch")
	}

	fields := strings.Split(payload, ",")
	typ := fields[0]
	if len(typ) < 3 {
		return nmeaSentence{}, fmt.Errorf("nmea: short type")
	}
	return nmeaSentence{Type: strings.ToUpper(typ[len(typ)-3:]), Fields: fields}, nil
}

// nmeaState accumulates RMC and GGA fields until they add up to a
// usable fix. Lat/lon arrive in both sentences, altitude and satellite
// count only in GGA, the UTC date only in RMC.
type nmeaState struct {
	latDeg float64
	lonDeg float64
	latOK  bool
	lonOK  bool

	altM  float64
	altOK bool

	fixQuality   int
	fixQualityOK bool
	satellites   int
	satsOK       bool
	hdop         float64
	hdopOK       bool

	fixTime time.Time
	valid   bool
}

func (s *nmeaState) apply(nowUTC time.Time, sent nmeaSentence) bool {
	switch sent.Type {
	case "RMC":
		return s.applyRMC(nowUTC, sent.Fields)
	case "GGA":
		return s.applyGGA(nowUTC, sent.Fields)
	default:
		return false
	}
}

// position converts the accumulated state into the environment's
// position record. ok stays false until a usable fix has arrived.
func (s *nmeaState) position() (envstate.Position, bool) {
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

func (s *nmeaState) setLatLon(latV, latH, lonV, lonH string) bool {
	updated := false
	if lat, ok := parseNMEALatLon(latV, latH); ok {
		s.latDeg, s.latOK = lat, true
		updated = true
	}
	if lon, ok := parseNMEALatLon(lonV, lonH); ok {
		s.lonDeg, s.lonOK = lon, true
		updated = true
	}
	return updated
}

// applyRMC handles RMC (recommended minimum data): status in field 2,
// lat/lon in 3..6, UTC time-of-day in field 1 and date in field 9.
func (s *nmeaState) applyRMC(nowUTC time.Time, f []string) bool {
	if len(f) < 10 {
		return false
	}
	if strings.TrimSpace(f[2]) != "A" {
		// Void fixes leave the last good values alone.
		return false
	}

	s.setLatLon(f[3], f[4], f[5], f[6])
	if s.latOK && s.lonOK {
		s.fixTime = parseNMEATime(nowUTC, f[1], f[9])
		s.valid = true
		return true
	}
	return false
}

// applyGGA handles GGA (fix data): quality in field 6, satellites in
// use in 7, HDOP in 8, antenna altitude in 9 (meters).
func (s *nmeaState) applyGGA(nowUTC time.Time, f []string) bool {
	if len(f) < 11 {
		return false
	}
	q := strings.TrimSpace(f[6])
	if q == "" || q == "0" {
		return false
	}
	if n, err := strconv.Atoi(q); err == nil {
		s.fixQuality, s.fixQualityOK = n, true
	}
	if n, err := strconv.Atoi(strings.TrimSpace(f[7])); err == nil {
		s.satellites, s.satsOK = n, true
	}
	if v, ok := parseFloat(f[8]); ok {
		s.hdop, s.hdopOK = v, true
	}

	updated := s.setLatLon(f[2], f[3], f[4], f[5])
	if v, ok := parseFloat(f[9]); ok {
		s.altM, s.altOK = v, true
		updated = true
	}

	if s.latOK && s.lonOK {
		// GGA carries no date; only stamp the fix if RMC has not.
		if s.fixTime.IsZero() {
			s.fixTime = nowUTC
		}
		s.valid = true
		return updated
	}
	return false
}

// parseNMEATime combines RMC's time (hhmmss.sss) and date (ddmmyy)
// fields into a UTC timestamp. Receivers omit them until they have
// decoded time from the constellation; fall back to the wall clock.
func parseNMEATime(nowUTC time.Time, timeField, dateField string) time.Time {
	tf := strings.TrimSpace(timeField)
	df := strings.TrimSpace(dateField)
	if len(tf) < 6 || len(df) != 6 {
		return nowUTC
	}
	hour, err1 := strconv.Atoi(tf[0:2])
	minute, err2 := strconv.Atoi(tf[2:4])
	secs, err3 := strconv.ParseFloat(tf[4:], 64)
	day, err4 := strconv.Atoi(df[0:2])
	month, err5 := strconv.Atoi(df[2:4])
	year, err6 := strconv.Atoi(df[4:6])
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil || err5 != nil || err6 != nil {
		return nowUTC
	}
	sec := int(secs)
	nsec := int((secs - float64(sec)) * 1e9)
	return time.Date(2000+year, time.Month(month), day, hour, minute, sec, nsec, time.UTC)
}

func parseFloat(s string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// parseNMEALatLon converts the ddmm.mmmm (lat) / dddmm.mmmm (lon)
// degrees-and-minutes notation plus hemisphere letter to signed
// decimal degrees.
func parseNMEALatLon(v, hemi string) (float64, bool) {
	v = strings.TrimSpace(v)

	var sign float64
	switch strings.TrimSpace(strings.ToUpper(hemi)) {
	case "N", "E":
		sign = 1
	case "S", "W":
		sign = -1
	default:
		return 0, false
	}

	// Everything left of the last two integer digits is whole degrees;
	// the rest is decimal minutes.
	whole, _, _ := strings.Cut(v, ".")
	if len(whole) < 3 {
		return 0, false
	}
	deg, err := strconv.Atoi(whole[:len(whole)-2])
	if err != nil {
		return 0, false
	}
	mins, err := strconv.ParseFloat(v[len(whole)-2:], 64)
	if err != nil {
		return 0, false
	}
	return sign * (float64(deg) + mins/60), true
}
