// Package alert builds alert records and makes one delivery attempt per
// activation.
package alert

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"sos-beacon/internal/gps"
	"sos-beacon/internal/identity"
	"sos-beacon/internal/logging"
)

// Record is the wire payload. Latitude and Longitude are both null when no
// fix was acquired.
type Record struct {
	DeviceID  string   `json:"device_id"`
	Timestamp float64  `json:"timestamp"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func NewRecord(id identity.ID, ts time.Time, coord *gps.Coordinate) Record {
	r := Record{
		DeviceID:  id.String(),
		Timestamp: float64(ts.UnixNano()) / 1e9,
	}
	if coord != nil {
		lat, lon := coord.Lat(), coord.Lon()
		r.Latitude = &lat
		r.Longitude = &lon
	}
	return r
}

// HasLocation reports whether the record carries a coordinate.
func (r Record) HasLocation() bool {
	return r.Latitude != nil && r.Longitude != nil
}

// Transport performs exactly one delivery attempt of an encoded record.
type Transport interface {
	Deliver(ctx context.Context, payload []byte) error
}

type Outcome int

const (
	Failed Outcome = iota
	Delivered
)

func (o Outcome) String() string {
	if o == Delivered {
		return "delivered"
	}
	return "failed"
}

type Client struct {
	id        identity.ID
	transport Transport
	timeout   time.Duration
	log       zerolog.Logger
}

func NewClient(id identity.ID, transport Transport, timeout time.Duration) (*Client, error) {
	if id == "" {
		return nil, fmt.Errorf("alert: device id is empty")
	}
	if transport == nil {
		return nil, fmt.Errorf("alert: transport is nil")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("alert.timeout must be > 0")
	}
	return &Client{
		id:        id,
		transport: transport,
		timeout:   timeout,
		log:       logging.Module("alert"),
	}, nil
}

// Send encodes the record and hands it to the transport once. Errors are
// logged and reported as Failed; nothing is retried.
func (c *Client) Send(ctx context.Context, ts time.Time, coord *gps.Coordinate) Outcome {
	rec := NewRecord(c.id, ts, coord)
	payload, err := json.Marshal(rec)
	if err != nil {
		c.log.Error().Err(err).Msg("encode alert")
		return Failed
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.transport.Deliver(ctx, payload); err != nil {
		c.log.Warn().Err(err).
			Bool("location", rec.HasLocation()).
			Dur("elapsed", time.Since(start)).
			Msg("alert delivery failed")
		return Failed
	}
	c.log.Info().
		Bool("location", rec.HasLocation()).
		Dur("elapsed", time.Since(start)).
		Msg("alert delivered")
	return Delivered
}
