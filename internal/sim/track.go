// Package sim provides a simulated GNSS receiver for bench runs without
// hardware: a deterministic track rendered as checksummed NMEA sentences.
package sim

import (
	"fmt"
	"math"
	"time"
)

type Track struct {
	CenterLatDeg float64
	CenterLonDeg float64
	RadiusNm     float64
	Period       time.Duration
}

// Position returns a simple figure-eight track around the configured center.
func (s Track) Position(now time.Time) (latDeg, lonDeg, trackDeg float64) {
	period := s.Period
	if period <= 0 {
		period = 120 * time.Second
	}
	radiusNm := s.RadiusNm
	if radiusNm <= 0 {
		radiusNm = 0.05
	}

	// Convert NM to degrees latitude (~60 NM per degree).
	radiusDeg := radiusNm / 60.0

	phase := float64(now.UnixNano()%period.Nanoseconds()) / float64(period.Nanoseconds())

	// Lissajous path kept within the radius:
	//	  x = cos(2πt)
	//	  y = 0.5*sin(4πt)
	w := 2 * math.Pi * phase
	x := math.Cos(w)
	y := 0.5 * math.Sin(2*w)

	latDeg = s.CenterLatDeg + radiusDeg*y
	lonDeg = s.CenterLonDeg + (radiusDeg*x)/math.Cos(s.CenterLatDeg*math.Pi/180.0)

	// Track based on instantaneous velocity (atan2(east, north)).
	vx := -2 * math.Pi * math.Sin(w)
	vy := 2 * math.Pi * math.Cos(2*w)
	trackRad := math.Atan2(vx, vy)
	trackDeg = math.Mod((trackRad*180/math.Pi)+360, 360)
	return latDeg, lonDeg, trackDeg
}

// RMC renders an active RMC sentence, including checksum and CRLF.
func RMC(now time.Time, latDeg, lonDeg, trackDeg float64) string {
	now = now.UTC()
	lat, ns := degMin(latDeg, true)
	lon, ew := degMin(lonDeg, false)
	return sentence(fmt.Sprintf("GPRMC,%s,A,%s,%s,%s,%s,%.1f,%.1f,%s,,,A",
		now.Format("150405.00"), lat, ns, lon, ew, 3.0, trackDeg, now.Format("020106")))
}

// GGA renders a GPS-quality GGA sentence with a fixed altitude.
func GGA(now time.Time, latDeg, lonDeg float64) string {
	lat, ns := degMin(latDeg, true)
	lon, ew := degMin(lonDeg, false)
	return sentence(fmt.Sprintf("GPGGA,%s,%s,%s,%s,%s,1,08,0.9,120.0,M,46.9,M,,",
		now.UTC().Format("150405.00"), lat, ns, lon, ew))
}

func sentence(payload string) string {
	ck := byte(0)
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return fmt.Sprintf("$%s*%02X\r\n", payload, ck)
}

// degMin converts decimal degrees to ddmm.mmmm (dddmm.mmmm for longitude)
// plus hemisphere letter.
func degMin(dec float64, isLat bool) (string, string) {
	hemi := "N"
	if !isLat {
		hemi = "E"
	}
	if dec < 0 {
		dec = -dec
		hemi = "S"
		if !isLat {
			hemi = "W"
		}
	}
	deg := int(dec)
	mins := math.Round((dec-float64(deg))*60*10000) / 10000
	if mins >= 60 {
		deg++
		mins -= 60
	}
	if isLat {
		return fmt.Sprintf("%02d%07.4f", deg, mins), hemi
	}
	return fmt.Sprintf("%03d%07.4f", deg, mins), hemi
}
