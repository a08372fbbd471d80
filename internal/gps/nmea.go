package gps

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrUnsupportedSentence = errors.New("nmea: unsupported sentence")
	ErrMissingField        = errors.New("nmea: missing field")
	ErrBadValue            = errors.New("nmea: bad lat/lon value")
	ErrChecksum            = errors.New("nmea: checksum mismatch")
	ErrOutOfRange          = errors.New("nmea: coordinate out of range")
)

// Coordinate is a signed decimal-degree position. The zero value is never
// handed out by this package; a Coordinate only exists after a successful
// decode.
type Coordinate struct {
	lat float64
	lon float64
}

func (c Coordinate) Lat() float64 { return c.lat }
func (c Coordinate) Lon() float64 { return c.lon }

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.lat, c.lon)
}

// sentenceLayout holds comma-split field indices for one sentence kind.
type sentenceLayout struct {
	lat, latHemi, lon, lonHemi int
}

// RMC: Recommended Minimum Specific GNSS Data
//
//	0: talker+type
//	1: time (hhmmss.sss)
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//
// GGA: Global Positioning System Fix Data
//
//	0: talker+type
//	1: time
//	2: latitude
//	3: N/S
//	4: longitude
//	5: E/W
var layouts = map[string]sentenceLayout{
	"RMC": {lat: 3, latHemi: 4, lon: 5, lonHemi: 6},
	"GGA": {lat: 2, latHemi: 3, lon: 4, lonHemi: 5},
}

// Decode returns the position carried by one RMC or GGA line. ok is false
// for any other kind and for malformed or truncated lines.
func Decode(line string) (Coordinate, bool) {
	c, err := ParseFix(line)
	return c, err == nil
}

// ParseFix is Decode with the rejection reason.
func ParseFix(line string) (Coordinate, error) {
	line = strings.TrimSpace(line)
	if star := strings.LastIndexByte(line, '*'); star != -1 {
		if err := verifyChecksum(line, star); err != nil {
			return Coordinate{}, err
		}
		line = line[:star]
	}

	fields := strings.Split(line, ",")
	layout, ok := layoutFor(fields[0])
	if !ok {
		return Coordinate{}, ErrUnsupportedSentence
	}
	if len(fields) <= layout.lonHemi {
		return Coordinate{}, fmt.Errorf("%w: have %d fields", ErrMissingField, len(fields))
	}

	lat, err := parseDegMin(fields[layout.lat])
	if err != nil {
		return Coordinate{}, fmt.Errorf("latitude: %w", err)
	}
	lon, err := parseDegMin(fields[layout.lon])
	if err != nil {
		return Coordinate{}, fmt.Errorf("longitude: %w", err)
	}
	if strings.TrimSpace(fields[layout.latHemi]) == "S" {
		lat = -lat
	}
	if strings.TrimSpace(fields[layout.lonHemi]) == "W" {
		lon = -lon
	}
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Coordinate{}, ErrOutOfRange
	}
	return Coordinate{lat: lat, lon: lon}, nil
}

// layoutFor accepts "$" + two-letter talker + kind, e.g. $GPRMC or $GNGGA.
func layoutFor(tag string) (sentenceLayout, bool) {
	tag = strings.TrimSpace(tag)
	if len(tag) != 6 || tag[0] != '$' {
		return sentenceLayout{}, false
	}
	l, ok := layouts[tag[3:]]
	return l, ok
}

func verifyChecksum(line string, star int) error {
	if !strings.HasPrefix(line, "$") {
		return ErrUnsupportedSentence
	}
	ck := strings.TrimSpace(line[star+1:])
	if len(ck) < 2 {
		return ErrChecksum
	}
	want, err := hex.DecodeString(ck[:2])
	if err != nil || len(want) != 1 {
		return ErrChecksum
	}
	got := byte(0)
	for i := 1; i < star; i++ {
		got ^= line[i]
	}
	if got != want[0] {
		return ErrChecksum
	}
	return nil
}

// parseDegMin parses ddmm.mmmm / dddmm.mmmm: every integer digit before the
// last two is whole degrees, the remainder is minutes.
func parseDegMin(v string) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, ErrMissingField
	}
	dot := strings.IndexByte(v, '.')
	if dot < 3 {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
	}
	for i := 0; i < len(v); i++ {
		if i != dot && (v[i] < '0' || v[i] > '9') {
			return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
		}
	}

	deg, err := strconv.Atoi(v[:dot-2])
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
	}
	mins, err := strconv.ParseFloat(v[dot-2:], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrBadValue, v)
	}
	return float64(deg) + mins/60.0, nil
}
