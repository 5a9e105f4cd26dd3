package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/dokzlo13/plantd/internal/schedule"
)

// ActionUpdate is the only recognised value of the "action" field.
const ActionUpdate = "update"

// Parse decodes a command payload into a Directive.
// It returns a *ParseError if the payload is empty, is not a JSON object, or
// (unless it is a refresh) fails schema validation. Fields of the wrong type are dropped and reported
// in Directive.Rejected.
func Parse(payload []byte) (Directive, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		return Directive{}, &ParseError{Err: ErrEmptyPayload}
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return Directive{}, &ParseError{Err: fmt.Errorf("malformed JSON: %w", err)}
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return Directive{}, &ParseError{Err: ErrNotObject}
	}

	// A refresh ignores every other field, valid or not.
	if action, ok := obj["action"].(string); ok && action == ActionUpdate {
		return Directive{Refresh: true}, nil
	}

	if err := compiledSchema.Validate(doc); err != nil {
		return Directive{}, &ParseError{Err: err}
	}

	var d Directive

	if raw, ok := obj["name"]; ok {
		if s, ok := raw.(string); ok {
			d.Name = &s
		} else {
			d.reject("name", "expected string")
		}
	}

	if raw, ok := obj["schedule"]; ok {
		// Shape and HH:MM syntax are guaranteed by the schema.
		d.Schedule = d.parseSchedule(raw.(map[string]any))
	}

	if raw, ok := obj["power"]; ok {
		switch v := raw.(type) {
		case bool:
			d.Power = &v
		case string:
			on := parsePowerString(v)
			d.Power = &on
		default:
			d.reject("power", "expected boolean or string")
		}
	}

	if raw, ok := obj["toggle"]; ok {
		if v, ok := raw.(bool); ok {
			d.Toggle = &v
		} else {
			d.reject("toggle", "expected boolean")
		}
	}

	if raw, ok := obj["brightness"]; ok {
		if v, ok := toInt(raw); ok {
			d.Brightness = &BrightnessPatch{Value: v}
			if rawFlag, ok := obj["asRaw255"]; ok {
				if flag, ok := rawFlag.(bool); ok {
					d.Brightness.AsRaw255 = flag
				} else {
					d.reject("asRaw255", "expected boolean")
				}
			}
		} else {
			d.reject("brightness", "expected integer")
		}
	}

	return d, nil
}

func (d *Directive) parseSchedule(obj map[string]any) *SchedulePatch {
	patch := &SchedulePatch{}

	if raw, ok := obj["enabled"]; ok {
		if v, ok := raw.(bool); ok {
			patch.Enabled = &v
		} else {
			d.reject("schedule.enabled", "expected boolean")
		}
	}
	if s, ok := obj["start"].(string); ok {
		if m, err := schedule.ParseClock(s); err == nil {
			patch.Start = &m
		}
	}
	if s, ok := obj["end"].(string); ok {
		if m, err := schedule.ParseClock(s); err == nil {
			patch.End = &m
		}
	}

	if patch.IsEmpty() {
		return nil
	}
	return patch
}

func (d *Directive) reject(field, reason string) {
	d.Rejected = append(d.Rejected, &ValidationError{Field: field, Reason: reason})
}

// parsePowerString accepts "on", "true" and "1" (any case) as on; anything else is off.
func parsePowerString(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "1":
		return true
	}
	return false
}

// toInt converts a decoded JSON number to int, truncating fractions.
func toInt(v any) (int, bool) {
	var f float64
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return clampInt64(i), true
		}
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case float64:
		f = n
	case int:
		return n, true
	case int64:
		return clampInt64(n), true
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return clampInt64(int64(math.Max(math.Min(f, math.MaxInt32), math.MinInt32))), true
}

func clampInt64(i int64) int {
	if i > math.MaxInt32 {
		return math.MaxInt32
	}
	if i < math.MinInt32 {
		return math.MinInt32
	}
	return int(i)
}
