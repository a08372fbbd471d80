package alert

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sos-beacon/internal/gps"
)

type fakeTransport struct {
	calls    int
	payloads [][]byte
	err      error
	deadline bool
}

func (f *fakeTransport) Deliver(ctx context.Context, payload []byte) error {
	f.calls++
	f.payloads = append(f.payloads, payload)
	_, f.deadline = ctx.Deadline()
	return f.err
}

func mustCoord(t *testing.T, line string) gps.Coordinate {
	t.Helper()
	c, err := gps.ParseFix(line)
	if err != nil {
		t.Fatalf("ParseFix: %v", err)
	}
	return c
}

func TestSend_OneAttemptPerOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "delivered", want: Delivered},
		{name: "failed", err: errors.New("connection refused"), want: Failed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := &fakeTransport{err: tt.err}
			c, err := NewClient("abcd", tr, time.Second)
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if got := c.Send(context.Background(), time.Unix(1700000000, 0), nil); got != tt.want {
				t.Fatalf("outcome=%s want %s", got, tt.want)
			}
			if tr.calls != 1 {
				t.Fatalf("calls=%d want 1", tr.calls)
			}
			if !tr.deadline {
				t.Fatalf("transport context has no deadline")
			}
		})
	}
}

func TestSend_PayloadShape(t *testing.T) {
	tr := &fakeTransport{}
	c, _ := NewClient("b827eb0102af", tr, time.Second)
	coord := mustCoord(t, "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A")

	c.Send(context.Background(), time.Unix(1700000000, 500_000_000), &coord)
	c.Send(context.Background(), time.Unix(1700000001, 0), nil)

	var withFix map[string]any
	if err := json.Unmarshal(tr.payloads[0], &withFix); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if withFix["device_id"] != "b827eb0102af" {
		t.Fatalf("device_id=%v", withFix["device_id"])
	}
	if ts, _ := withFix["timestamp"].(float64); ts != 1700000000.5 {
		t.Fatalf("timestamp=%v", withFix["timestamp"])
	}
	if lat, _ := withFix["latitude"].(float64); lat < 48.1172 || lat > 48.1174 {
		t.Fatalf("latitude=%v", withFix["latitude"])
	}

	var noFix map[string]any
	if err := json.Unmarshal(tr.payloads[1], &noFix); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, k := range []string{"latitude", "longitude"} {
		v, ok := noFix[k]
		if !ok || v != nil {
			t.Fatalf("%s=%v present=%v want explicit null", k, v, ok)
		}
	}
}

func TestNewRecord_FractionalTimestamp(t *testing.T) {
	ts := time.Unix(1700000000, 250_000_000)
	r := NewRecord("ab", ts, nil)
	if d := r.Timestamp - 1700000000.25; d > 1e-6 || d < -1e-6 {
		t.Fatalf("timestamp=%v want 1700000000.25", r.Timestamp)
	}
	if r.HasLocation() {
		t.Fatalf("record without coordinate reports location")
	}
}

func TestNewClient_Rejects(t *testing.T) {
	tr := &fakeTransport{}
	if _, err := NewClient("", tr, time.Second); err == nil {
		t.Fatalf("expected error for empty id")
	}
	if _, err := NewClient("ab", nil, time.Second); err == nil {
		t.Fatalf("expected error for nil transport")
	}
	if _, err := NewClient("ab", tr, 0); err == nil {
		t.Fatalf("expected error for zero timeout")
	}
}

func TestHTTPTransport_StatusHandling(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{name: "ok", status: http.StatusOK},
		{name: "accepted", status: http.StatusAccepted},
		{name: "server error", status: http.StatusInternalServerError, wantErr: true},
		{name: "bad request", status: http.StatusBadRequest, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotCT string
			var gotBody []byte
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotCT = r.Header.Get("Content-Type")
				gotBody, _ = io.ReadAll(r.Body)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			tr := NewHTTPTransport(srv.URL, time.Second)
			err := tr.Deliver(context.Background(), []byte(`{"device_id":"ab"}`))
			if tt.wantErr {
				var se *StatusError
				if !errors.As(err, &se) || se.Code != tt.status {
					t.Fatalf("err=%v want StatusError %d", err, tt.status)
				}
				return
			}
			if err != nil {
				t.Fatalf("Deliver: %v", err)
			}
			if gotCT != "application/json" {
				t.Fatalf("content-type=%q", gotCT)
			}
			if string(gotBody) != `{"device_id":"ab"}` {
				t.Fatalf("body=%q", gotBody)
			}
		})
	}
}

func TestHTTPTransport_TimeoutIsFailure(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c, _ := NewClient("ab", NewHTTPTransport(srv.URL, time.Second), 100*time.Millisecond)
	start := time.Now()
	if got := c.Send(context.Background(), time.Now(), nil); got != Failed {
		t.Fatalf("outcome=%s want failed", got)
	}
	if el := time.Since(start); el > 2*time.Second {
		t.Fatalf("send took %s", el)
	}
}

func TestNewTransport(t *testing.T) {
	tests := []struct {
		name    string
		cfg     TransportConfig
		wantErr string
	}{
		{name: "http default", cfg: TransportConfig{URL: "http://relay/sos"}},
		{name: "http missing url", cfg: TransportConfig{Kind: "http"}, wantErr: "alert.url is required"},
		{name: "mqtt", cfg: TransportConfig{Kind: "mqtt", MQTT: MQTTConfig{Broker: "tcp://b:1883", Topic: "sos"}}},
		{name: "mqtt missing topic", cfg: TransportConfig{Kind: "mqtt", MQTT: MQTTConfig{Broker: "tcp://b:1883"}}, wantErr: "alert.mqtt.broker and alert.mqtt.topic are required"},
		{name: "nats", cfg: TransportConfig{Kind: "NATS", NATS: NATSConfig{URL: "nats://n:4222", Subject: "sos"}}},
		{name: "unknown", cfg: TransportConfig{Kind: "carrier-pigeon"}, wantErr: "alert.transport must be 'http', 'mqtt', or 'nats'"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := NewTransport(tt.cfg)
			if tt.wantErr != "" {
				if err == nil || err.Error() != tt.wantErr {
					t.Fatalf("err=%v want %q", err, tt.wantErr)
				}
				return
			}
			if err != nil || tr == nil {
				t.Fatalf("NewTransport: %v", err)
			}
		})
	}
}
