package command

import (
	"errors"
	"testing"
)

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{name: "empty", payload: "", wantErr: ErrEmptyPayload},
		{name: "whitespace", payload: "  \n", wantErr: ErrEmptyPayload},
		{name: "not_json", payload: "power=on"},
		{name: "truncated", payload: `{"power": true`},
		{name: "array", payload: `[1,2]`, wantErr: ErrNotObject},
		{name: "string", payload: `"on"`, wantErr: ErrNotObject},
		{name: "bad_start", payload: `{"schedule":{"start":"25:00"}}`},
		{name: "bad_end_minute", payload: `{"schedule":{"end":"06:75"}}`},
		{name: "start_not_string", payload: `{"schedule":{"start":730}}`},
		{name: "schedule_not_object", payload: `{"schedule":"22:00-06:00"}`},
		{name: "schedule_scalar", payload: `{"schedule":"x"}`},
		{name: "unknown_action_bad_schedule", payload: `{"action":"reboot","schedule":{"end":"6"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected error")
			}
			if !IsParseError(err) {
				t.Errorf("expected ParseError, got %T: %v", err, err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestParse_ActionUpdateShortCircuits(t *testing.T) {
	d, err := Parse([]byte(`{"action":"update","power":true,"brightness":10,"name":"Basil"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Refresh {
		t.Fatal("expected Refresh")
	}
	if d.Power != nil || d.Brightness != nil || d.Name != nil || d.Schedule != nil {
		t.Errorf("refresh directive carries other fields: %+v", d)
	}
}

func TestParse_ActionUpdateIgnoresInvalidSchedule(t *testing.T) {
	d, err := Parse([]byte(`{"action":"update","schedule":{"start":"25:00"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !d.Refresh || d.Schedule != nil {
		t.Errorf("expected refresh only, got %+v", d)
	}
}

func TestParse_UnknownActionIgnored(t *testing.T) {
	d, err := Parse([]byte(`{"action":"reboot","toggle":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Refresh {
		t.Error("unknown action must not request refresh")
	}
	if d.Toggle == nil || !*d.Toggle {
		t.Error("toggle should still be parsed")
	}
}

func TestParse_Power(t *testing.T) {
	tests := []struct {
		payload string
		want    bool
	}{
		{`{"power":true}`, true},
		{`{"power":false}`, false},
		{`{"power":"on"}`, true},
		{`{"power":"ON"}`, true},
		{`{"power":"True"}`, true},
		{`{"power":"1"}`, true},
		{`{"power":"off"}`, false},
		{`{"power":"0"}`, false},
		{`{"power":"banana"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			d, err := Parse([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Power == nil {
				t.Fatal("expected power to be set")
			}
			if *d.Power != tt.want {
				t.Errorf("power = %v, want %v", *d.Power, tt.want)
			}
		})
	}
}

func TestParse_WrongTypesAreRejectedPerField(t *testing.T) {
	d, err := Parse([]byte(`{"power":1,"toggle":"yes","name":42,"brightness":"high","schedule":{"enabled":"yes","start":"07:30"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if d.Power != nil || d.Toggle != nil || d.Name != nil || d.Brightness != nil {
		t.Errorf("mistyped fields should be dropped: %+v", d)
	}
	if d.Schedule == nil || d.Schedule.Enabled != nil || d.Schedule.Start == nil || *d.Schedule.Start != 450 {
		t.Errorf("schedule patch = %+v, want start only", d.Schedule)
	}

	rejected := map[string]bool{}
	for _, r := range d.Rejected {
		rejected[r.Field] = true
	}
	for _, f := range []string{"power", "toggle", "name", "brightness", "schedule.enabled"} {
		if !rejected[f] {
			t.Errorf("expected %q in Rejected, got %v", f, d.Rejected)
		}
	}
}

func TestParse_Schedule(t *testing.T) {
	d, err := Parse([]byte(`{"schedule":{"enabled":true,"start":"22:00","end":"06:00"}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := d.Schedule
	if s == nil || s.Enabled == nil || s.Start == nil || s.End == nil {
		t.Fatalf("incomplete patch: %+v", s)
	}
	if !*s.Enabled || *s.Start != 22*60 || *s.End != 6*60 {
		t.Errorf("patch = {%v %d %d}", *s.Enabled, *s.Start, *s.End)
	}
}

func TestParse_EmptyScheduleObject(t *testing.T) {
	d, err := Parse([]byte(`{"schedule":{}}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Schedule != nil {
		t.Errorf("empty schedule object should produce no patch, got %+v", d.Schedule)
	}
}

func TestParse_Brightness(t *testing.T) {
	tests := []struct {
		payload string
		want    BrightnessPatch
	}{
		{`{"brightness":50}`, BrightnessPatch{Value: 50}},
		{`{"brightness":200,"asRaw255":true}`, BrightnessPatch{Value: 200, AsRaw255: true}},
		{`{"brightness":12.9}`, BrightnessPatch{Value: 12}},
		{`{"brightness":-4}`, BrightnessPatch{Value: -4}},
	}

	for _, tt := range tests {
		t.Run(tt.payload, func(t *testing.T) {
			d, err := Parse([]byte(tt.payload))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.Brightness == nil {
				t.Fatal("expected brightness")
			}
			if *d.Brightness != tt.want {
				t.Errorf("brightness = %+v, want %+v", *d.Brightness, tt.want)
			}
		})
	}
}

func TestParse_UnknownFieldsIgnored(t *testing.T) {
	d, err := Parse([]byte(`{"colour":"red","toggle":true}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(d.Rejected) != 0 {
		t.Errorf("unknown fields should not be rejected: %v", d.Rejected)
	}
	if got := d.String(); got != "toggle" {
		t.Errorf("String() = %q, want %q", got, "toggle")
	}
}
