package alert

import (
	"context"
	"errors"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}
func (t *fakeToken) Error() error { return t.err }

type fakeMQTT struct {
	mqtt.Client

	connect      *fakeToken
	publish      *fakeToken
	published    []byte
	topic        string
	qos          byte
	disconnected bool
}

func (f *fakeMQTT) Connect() mqtt.Token { return f.connect }

func (f *fakeMQTT) Publish(topic string, qos byte, _ bool, payload interface{}) mqtt.Token {
	f.topic = topic
	f.qos = qos
	f.published, _ = payload.([]byte)
	return f.publish
}

func (f *fakeMQTT) Disconnect(uint) { f.disconnected = true }

func newTestMQTT(fc *fakeMQTT) *MQTTTransport {
	tr := NewMQTTTransport(MQTTConfig{Broker: "tcp://broker:1883", Topic: "sos/alerts", ClientID: "beacon", QoS: 1})
	tr.newClient = func(*mqtt.ClientOptions) mqtt.Client { return fc }
	return tr
}

func TestMQTTTransport_Publishes(t *testing.T) {
	fc := &fakeMQTT{connect: &fakeToken{done: true}, publish: &fakeToken{done: true}}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := newTestMQTT(fc).Deliver(ctx, []byte("payload")); err != nil {
		t.Fatalf("Deliver: %v", err)
	}
	if fc.topic != "sos/alerts" || fc.qos != 1 || string(fc.published) != "payload" {
		t.Fatalf("published topic=%q qos=%d payload=%q", fc.topic, fc.qos, fc.published)
	}
	if !fc.disconnected {
		t.Fatalf("client left connected")
	}
}

func TestMQTTTransport_Failures(t *testing.T) {
	tests := []struct {
		name string
		fc   *fakeMQTT
	}{
		{name: "connect error", fc: &fakeMQTT{connect: &fakeToken{done: true, err: errors.New("refused")}}},
		{name: "connect timeout", fc: &fakeMQTT{connect: &fakeToken{}}},
		{name: "publish timeout", fc: &fakeMQTT{connect: &fakeToken{done: true}, publish: &fakeToken{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := newTestMQTT(tt.fc).Deliver(ctx, []byte("x")); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestWaitBudget(t *testing.T) {
	if got := waitBudget(context.Background()); got != 10*time.Second {
		t.Fatalf("no deadline budget=%s", got)
	}
	ctx, cancel := context.WithTimeout(context.Background(), -time.Second)
	defer cancel()
	if got := waitBudget(ctx); got != time.Millisecond {
		t.Fatalf("expired budget=%s", got)
	}
}
