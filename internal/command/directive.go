// Package command turns inbound command payloads into Directives.
package command

import "strings"

// Maximum length of a display name, in characters.
const MaxNameLength = 40

// SchedulePatch overlays the provided fields onto the current schedule.
// Start and End are minutes since midnight.
type SchedulePatch struct {
	Enabled *bool
	Start   *int
	End     *int
}

// IsEmpty returns true if the patch carries no fields.
func (p *SchedulePatch) IsEmpty() bool {
	return p == nil || (p.Enabled == nil && p.Start == nil && p.End == nil)
}

// BrightnessPatch is a requested duty level.
// AsRaw255 selects the 0..255 scale; otherwise Value is a 0..100 percentage.
type BrightnessPatch struct {
	Value    int
	AsRaw255 bool
}

// Directive is one parsed command. Nil fields were absent from the message.
type Directive struct {
	// Refresh requests a fresh sensor read and publish; everything else is ignored.
	Refresh bool

	Name       *string
	Schedule   *SchedulePatch
	Power      *bool
	Toggle     *bool
	Brightness *BrightnessPatch

	// Rejected lists fields that were present but dropped.
	Rejected []*ValidationError
}

// Fields returns the names of the fields carried by the directive, in
// application order. Used for logging and the ledger.
func (d Directive) Fields() []string {
	if d.Refresh {
		return []string{"action"}
	}
	var fields []string
	if d.Name != nil {
		fields = append(fields, "name")
	}
	if !d.Schedule.IsEmpty() {
		fields = append(fields, "schedule")
	}
	if d.Power != nil {
		fields = append(fields, "power")
	}
	if d.Toggle != nil {
		fields = append(fields, "toggle")
	}
	if d.Brightness != nil {
		fields = append(fields, "brightness")
	}
	return fields
}

// String returns a compact summary such as "name,power".
func (d Directive) String() string {
	fields := d.Fields()
	if len(fields) == 0 {
		return "empty"
	}
	return strings.Join(fields, ",")
}
