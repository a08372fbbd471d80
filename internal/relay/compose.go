package relay

import (
	"strconv"
	"time"
)

const (
	mapsSearchURL   = "https://www.google.com/maps/search/?api=1&query="
	emergencySuffix = " (auto-alert)"
)

// Compose renders the text sent to recipients. Times are shown in loc.
func Compose(p Payload, at time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	body := "SOS from device " + p.DeviceID + " at " + at.In(loc).Format("2006-01-02 15:04:05") + "."
	if p.HasLocation() {
		return body + " Location: " + MapLink(*p.Latitude, *p.Longitude)
	}
	return body + " Location not available."
}

func MapLink(lat, lon float64) string {
	return mapsSearchURL + strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lon, 'f', -1, 64)
}
