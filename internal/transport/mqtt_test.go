package transport

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 1 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func TestTopics(t *testing.T) {
	topics := Topics{DeviceID: "A1B2C3D4E5F6"}
	if got := topics.Telemetry(); got != "plants/A1B2C3D4E5F6" {
		t.Errorf("Telemetry() = %q", got)
	}
	if got := topics.Command(); got != "plants/A1B2C3D4E5F6/cmd" {
		t.Errorf("Command() = %q", got)
	}

	custom := Topics{Prefix: "greenhouse", DeviceID: "X"}
	if got := custom.Command(); got != "greenhouse/X/cmd" {
		t.Errorf("Command() with prefix = %q", got)
	}
}

func TestHandleMessage_CopiesPayload(t *testing.T) {
	c := New(Options{Broker: "tcp://127.0.0.1:1883", ClientID: "test", QueueSize: 1})

	buf := []byte(`{"toggle":true}`)
	c.handleMessage(nil, &fakeMessage{topic: "plants/X/cmd", payload: buf})
	buf[0] = 'X'

	select {
	case msg := <-c.Commands():
		if string(msg.Payload) != `{"toggle":true}` {
			t.Errorf("payload = %q, want original bytes", msg.Payload)
		}
		if msg.Topic != "plants/X/cmd" {
			t.Errorf("topic = %q", msg.Topic)
		}
	default:
		t.Fatal("expected a queued message")
	}
}

func TestHandleMessage_DropsWhenFull(t *testing.T) {
	c := New(Options{Broker: "tcp://127.0.0.1:1883", ClientID: "test", QueueSize: 1})

	c.handleMessage(nil, &fakeMessage{topic: "t", payload: []byte("1")})
	c.handleMessage(nil, &fakeMessage{topic: "t", payload: []byte("2")})

	if n := len(c.Commands()); n != 1 {
		t.Fatalf("queue length = %d, want 1", n)
	}
	if msg := <-c.Commands(); string(msg.Payload) != "1" {
		t.Errorf("kept payload %q, want the first", msg.Payload)
	}
}

func TestPublish_NotConnected(t *testing.T) {
	c := New(Options{Broker: "tcp://127.0.0.1:1883", ClientID: "test"})

	err := c.Publish(context.Background(), "plants/X", []byte("{}"), true)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if c.IsConnected() {
		t.Error("client should not report connected before Start")
	}
}

func TestNew_Defaults(t *testing.T) {
	c := New(Options{Broker: "tcp://127.0.0.1:1883"})
	if c.opts.WriteTimeout != DefaultWriteTimeout || c.opts.KeepAlive != DefaultKeepAlive {
		t.Errorf("defaults not applied: %+v", c.opts)
	}
	if cap(c.inbox) != DefaultQueueSize {
		t.Errorf("queue size = %d, want %d", cap(c.inbox), DefaultQueueSize)
	}
}

type fakeToken struct {
	done bool
	err  error
}

func (f *fakeToken) Wait() bool                     { return f.done }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return f.done }
func (f *fakeToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (f *fakeToken) Error() error                   { return f.err }

func TestAwaitToken(t *testing.T) {
	refused := errors.New("not authorized")

	tests := []struct {
		name  string
		token *fakeToken
		want  error
	}{
		{"acknowledged", &fakeToken{done: true}, nil},
		{"failed", &fakeToken{done: true, err: refused}, refused},
		{"timed out", &fakeToken{done: false}, ErrTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := awaitToken(tt.token, time.Millisecond)
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}
