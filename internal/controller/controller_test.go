package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/plantd/internal/clock"
	"github.com/dokzlo13/plantd/internal/hardware"
	"github.com/dokzlo13/plantd/internal/kv"
	"github.com/dokzlo13/plantd/internal/ledger"
	"github.com/dokzlo13/plantd/internal/moisture"
	"github.com/dokzlo13/plantd/internal/reconcile"
	"github.com/dokzlo13/plantd/internal/schedule"
	"github.com/dokzlo13/plantd/internal/store"
	"github.com/dokzlo13/plantd/internal/telemetry"
	"github.com/dokzlo13/plantd/internal/transport"
)

type fakeTransport struct {
	mu       sync.Mutex
	err      error
	payloads [][]byte
	retained []bool
}

func (f *fakeTransport) Publish(_ context.Context, _ string, payload []byte, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, payload)
	f.retained = append(f.retained, retained)
	return nil
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeTransport) last(t *testing.T) telemetry.Snapshot {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.payloads) == 0 {
		t.Fatal("nothing published")
	}
	var s telemetry.Snapshot
	if err := json.Unmarshal(f.payloads[len(f.payloads)-1], &s); err != nil {
		t.Fatalf("bad payload: %v", err)
	}
	return s
}

type countingActuator struct {
	mu     sync.Mutex
	writes int
	duty   uint8
}

func (a *countingActuator) SetDuty(duty uint8) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes++
	a.duty = duty
	return nil
}

func (a *countingActuator) get() (uint8, int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.duty, a.writes
}

type flakySensor struct {
	raw int
	err error
}

func (s *flakySensor) ReadRaw() (int, error) {
	return s.raw, s.err
}

type fakeRecorder struct {
	events []ledger.EventType
}

func (r *fakeRecorder) Append(eventType ledger.EventType, _ string, _ map[string]any) (string, error) {
	r.events = append(r.events, eventType)
	return "id", nil
}

func (r *fakeRecorder) count(eventType ledger.EventType) int {
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

type harness struct {
	ctrl      *Controller
	clock     *clock.Manual
	transport *fakeTransport
	actuator  *countingActuator
	sensor    *flakySensor
	recorder  *fakeRecorder
	store     *store.Store
	commands  chan transport.Message
}

func newHarness(t *testing.T, sched schedule.Window, wall time.Time) *harness {
	t.Helper()
	h := &harness{
		clock:     clock.NewManual(wall),
		transport: &fakeTransport{},
		actuator:  &countingActuator{},
		sensor:    &flakySensor{raw: 1150},
		recorder:  &fakeRecorder{},
		store:     store.New(kv.NewMemoryBucket(store.BucketName)),
		commands:  make(chan transport.Message, 4),
	}
	h.ctrl = New(
		Config{DeviceID: "A1B2C3D4E5F6", ScheduleTick: 10 * time.Millisecond},
		reconcile.NewState("", sched),
		Deps{
			Clock:      h.clock,
			Reconciler: reconcile.New(15 * time.Minute),
			Sensor:     h.sensor,
			Actuator:   h.actuator,
			Converter:  moisture.NewConverter(2600, 1150),
			Settings:   h.store,
			Publisher:  telemetry.NewPublisher(h.transport, "plants/A1B2C3D4E5F6", 0, 1000),
			Ledger:     h.recorder,
			Commands:   h.commands,
		},
	)
	return h
}

func (h *harness) send(payload string) {
	h.ctrl.HandleCommand(context.Background(), transport.Message{
		Topic:   "plants/A1B2C3D4E5F6/cmd",
		Payload: []byte(payload),
	})
}

func at(hour, minute int) time.Time {
	return time.Date(2024, 5, 1, hour, minute, 0, 0, time.UTC)
}

func TestBoot_WritesAndPublishes(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.ctrl.Boot(context.Background())

	if duty, writes := h.actuator.get(); duty != 255 || writes != 1 {
		t.Errorf("duty=%d writes=%d, want 255 and 1", duty, writes)
	}
	if h.transport.count() != 1 {
		t.Fatalf("publishes = %d, want 1", h.transport.count())
	}
	if !h.transport.retained[0] {
		t.Error("telemetry must be retained")
	}

	snap := h.transport.last(t)
	if snap.Moisture != 100 || !snap.Effective || snap.DeviceID != "A1B2C3D4E5F6" {
		t.Errorf("unexpected snapshot %+v", snap)
	}
	if snap.Timestamp != "2024-05-01 12:00:00" {
		t.Errorf("timestamp = %q", snap.Timestamp)
	}

	st, ok := h.ctrl.Status()
	if !ok || st.Duty != 255 {
		t.Errorf("status = %+v ok=%v", st, ok)
	}
}

func TestHandleCommand_PowerOff(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.ctrl.Boot(context.Background())

	h.send(`{"power":"off"}`)

	if duty, _ := h.actuator.get(); duty != 0 {
		t.Errorf("duty = %d, want 0", duty)
	}
	if h.transport.count() != 2 {
		t.Errorf("publishes = %d, want 2", h.transport.count())
	}
	if snap := h.transport.last(t); snap.Power || snap.Effective {
		t.Errorf("snapshot should report off: %+v", snap)
	}
	if h.recorder.count(ledger.EventCommandApplied) != 1 {
		t.Errorf("ledger events = %v", h.recorder.events)
	}

	st, _ := h.ctrl.Status()
	if !st.OverrideArmed || st.OverrideRemaining != 15*time.Minute {
		t.Errorf("override not reported: %+v", st)
	}
}

func TestHandleCommand_ParseErrorDropsMessage(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.ctrl.Boot(context.Background())

	for _, payload := range []string{``, `not json`, `[1,2]`, `{"schedule":{"start":"25:00"}}`} {
		h.send(payload)
	}

	if _, writes := h.actuator.get(); writes != 1 {
		t.Errorf("actuator writes = %d, want only the boot write", writes)
	}
	if h.transport.count() != 1 {
		t.Errorf("publishes = %d, want only the boot publish", h.transport.count())
	}
	if n := h.recorder.count(ledger.EventCommandRejected); n != 4 {
		t.Errorf("rejected entries = %d, want 4", n)
	}
}

func TestHandleCommand_Refresh(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.ctrl.Boot(context.Background())

	h.sensor.raw = 2600
	h.send(`{"action":"update","power":false}`)

	if _, writes := h.actuator.get(); writes != 1 {
		t.Errorf("refresh must not write the actuator, writes = %d", writes)
	}
	snap := h.transport.last(t)
	if snap.Moisture != 0 {
		t.Errorf("moisture = %d, want fresh reading 0", snap.Moisture)
	}
	if !snap.Power {
		t.Error("refresh must ignore other fields")
	}
}

func TestHandleCommand_SchedulePersists(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(21, 0))
	h.ctrl.Boot(context.Background())

	h.send(`{"name":"  Basil  ","schedule":{"enabled":true,"start":"08:00","end":"20:00"}}`)

	settings, err := h.store.Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	want := schedule.Window{Enabled: true, Start: 480, End: 1200}
	if settings.Schedule != want {
		t.Errorf("persisted schedule = %+v, want %+v", settings.Schedule, want)
	}
	if settings.Name != "Basil" {
		t.Errorf("persisted name = %q", settings.Name)
	}
	if duty, _ := h.actuator.get(); duty != 0 {
		t.Errorf("outside window duty = %d, want 0", duty)
	}
}

func TestScheduleTick_OverrideExpiry(t *testing.T) {
	h := newHarness(t, schedule.Window{Enabled: true, Start: 480, End: 1200}, at(21, 0))
	h.ctrl.Boot(context.Background())

	if duty, _ := h.actuator.get(); duty != 0 {
		t.Fatalf("boot duty = %d, want 0 outside window", duty)
	}

	h.send(`{"power":true}`)
	if duty, _ := h.actuator.get(); duty != 255 {
		t.Fatalf("override duty = %d, want 255", duty)
	}
	published := h.transport.count()

	h.clock.Advance(10 * time.Minute)
	h.ctrl.ScheduleTick(context.Background())
	if h.transport.count() != published {
		t.Error("tick without change must not publish")
	}

	h.clock.Advance(6 * time.Minute)
	h.ctrl.ScheduleTick(context.Background())

	if duty, _ := h.actuator.get(); duty != 0 {
		t.Errorf("duty after expiry = %d, want 0", duty)
	}
	if h.transport.count() != published+1 {
		t.Errorf("expiry should publish once, got %d new", h.transport.count()-published)
	}
	if h.recorder.count(ledger.EventOverrideExpired) != 1 {
		t.Errorf("ledger events = %v", h.recorder.events)
	}
}

func TestPublish_SensorFailureReusesLastReading(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.sensor.raw = 1875
	h.ctrl.Boot(context.Background())

	h.sensor.err = hardware.ErrBadResponse
	h.ctrl.TelemetryTick(context.Background())

	if snap := h.transport.last(t); snap.Moisture != 50 {
		t.Errorf("moisture = %d, want previous 50", snap.Moisture)
	}
}

func TestHandleCommand_BrokerDown(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.transport.err = transport.ErrNotConnected
	h.ctrl.Boot(context.Background())

	h.send(`{"brightness":50}`)

	if duty, _ := h.actuator.get(); duty != 127 {
		t.Errorf("duty = %d, want 127 while broker is down", duty)
	}
	st, _ := h.ctrl.Status()
	if st.Snapshot.Brightness != 127 {
		t.Errorf("status brightness = %d", st.Snapshot.Brightness)
	}
}

func TestHandleCommand_BurstIsNotDelayedByRateLimit(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.ctrl.deps.Publisher = telemetry.NewPublisher(h.transport, "plants/A1B2C3D4E5F6", 0, 2)
	h.ctrl.Boot(context.Background())

	start := time.Now()
	for v := 200; v < 210; v++ {
		h.send(fmt.Sprintf(`{"brightness":%d,"asRaw255":true}`, v))
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("10 commands took %v, want no waiting on the limiter", elapsed)
	}
	if duty, writes := h.actuator.get(); duty != 209 || writes != 11 {
		t.Errorf("duty=%d writes=%d, want every command applied", duty, writes)
	}
	if h.transport.count() >= 11 {
		t.Fatalf("publishes = %d, expected some to be held", h.transport.count())
	}

	time.Sleep(600 * time.Millisecond)
	h.ctrl.ScheduleTick(context.Background())

	if snap := h.transport.last(t); snap.Brightness != 209 {
		t.Errorf("flushed brightness = %d, want newest 209", snap.Brightness)
	}
}

func TestRun_ProcessesCommands(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.ctrl.Run(ctx) }()

	h.commands <- transport.Message{Topic: "plants/A1B2C3D4E5F6/cmd", Payload: []byte(`{"toggle":true}`)}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if duty, writes := h.actuator.get(); writes >= 2 && duty == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("command was not applied")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}

func TestRun_InvalidTelemetrySchedule(t *testing.T) {
	h := newHarness(t, schedule.Window{}, at(12, 0))
	h.ctrl.cfg.TelemetrySchedule = "every now and then"

	err := h.ctrl.Run(context.Background())
	if err == nil {
		t.Fatal("expected an error")
	}
	if errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error kind: %v", err)
	}
}
