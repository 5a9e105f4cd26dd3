package reconcile

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dokzlo13/plantd/internal/clock"
	"github.com/dokzlo13/plantd/internal/command"
	"github.com/dokzlo13/plantd/internal/schedule"
)

// Reconciler applies directives and clock ticks to State.
type Reconciler struct {
	overrideDuration time.Duration
}

// New creates a Reconciler. A zero overrideDuration selects the default.
func New(overrideDuration time.Duration) *Reconciler {
	if overrideDuration <= 0 {
		overrideDuration = DefaultOverrideDuration
	}
	return &Reconciler{overrideDuration: overrideDuration}
}

// OverrideDuration returns the configured override length.
func (r *Reconciler) OverrideDuration() time.Duration {
	return r.overrideDuration
}

// Boot derives the initial effective state. The actuator is always written
// and a first snapshot published.
func (r *Reconciler) Boot(s State, now clock.Instant) (State, Actions) {
	s, _ = r.settle(s, now)
	return s, Actions{ActionWriteDuty, ActionPublish}
}

// Apply runs one reconciliation pass for a directive.
//
// A refresh directive short-circuits everything else. Otherwise fields are
// applied in order (name, schedule, power, toggle, brightness), the effective
// state is recomputed, and the pass always ends with a duty write and a publish.
func (r *Reconciler) Apply(s State, d command.Directive, now clock.Instant) (State, Actions) {
	if d.Refresh {
		return s, Actions{ActionRefresh}
	}

	var actions Actions

	if d.Name != nil {
		if name, ok := normalizeName(*d.Name); ok && name != s.Name {
			s.Name = name
			actions = append(actions, ActionPersistName)
		}
	}

	if !d.Schedule.IsEmpty() {
		merged := mergeSchedule(s.Schedule, d.Schedule)
		if merged != s.Schedule {
			s.Schedule = merged
			s.Override = nil
			s, _ = r.settle(s, now)
			actions = append(actions, ActionPersistSchedule)
		}
	}

	if d.Power != nil {
		s.UserPower = *d.Power
		if s.UserPower && s.Brightness == 0 {
			s.Brightness = 255
		}
		s.Override = r.arm(now)
	}

	if d.Toggle != nil && *d.Toggle {
		s.UserPower = !s.UserPower
		s.Override = r.arm(now)
	}

	if d.Brightness != nil {
		s.Brightness = ScaleBrightness(*d.Brightness)
		s.Override = r.arm(now)
	}

	s, expired := r.settle(s, now)
	if expired {
		actions = append(actions, ActionOverrideExpired)
	}

	return s, append(actions, ActionWriteDuty, ActionPublish)
}

// Tick re-derives the effective state without a directive, catching window
// boundaries and override expiry. The actuator is only written, and a
// snapshot only published, when the duty or the effective on/off changed.
func (r *Reconciler) Tick(s State, now clock.Instant) (State, Actions) {
	prevDuty, prevOn := s.Duty(), s.EffectiveOn()

	s, expired := r.settle(s, now)

	var actions Actions
	if expired {
		actions = append(actions, ActionOverrideExpired)
	}
	if s.Duty() != prevDuty || s.EffectiveOn() != prevOn {
		actions = append(actions, ActionWriteDuty, ActionPublish)
	}
	return s, actions
}

// arm returns a fresh override starting at now.
func (r *Reconciler) arm(now clock.Instant) *Override {
	return &Override{Until: now.Elapsed + r.overrideDuration}
}

// settle recomputes effectiveOn. Precedence:
//  1. an armed, unexpired override: user intent
//  2. an expired override is disarmed and evaluation falls through
//  3. schedule disabled: user intent
//  4. user intent off: off
//  5. otherwise: whether now is inside the schedule window
func (r *Reconciler) settle(s State, now clock.Instant) (State, bool) {
	expired := false
	if s.Override != nil {
		if now.Elapsed < s.Override.Until {
			s.effectiveOn = s.UserPower
			return s, false
		}
		s.Override = nil
		expired = true
	}

	switch {
	case !s.Schedule.Enabled:
		s.effectiveOn = s.UserPower
	case !s.UserPower:
		s.effectiveOn = false
	default:
		minute := schedule.MinuteOfDay(now.Wall, now.WallKnown)
		s.effectiveOn = schedule.InWindow(minute, s.Schedule.Start, s.Schedule.End)
	}
	return s, expired
}

// ScaleBrightness converts a brightness patch to a 0..255 duty.
// Percentages are rescaled; a non-raw value outside 0..100 is taken as a raw
// duty, which is what the dashboard slider sends.
func ScaleBrightness(p command.BrightnessPatch) uint8 {
	v := p.Value
	if !p.AsRaw255 && v >= 0 && v <= 100 {
		v = v * 255 / 100
	}
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

func mergeSchedule(cur schedule.Window, p *command.SchedulePatch) schedule.Window {
	if p.Enabled != nil {
		cur.Enabled = *p.Enabled
	}
	if p.Start != nil {
		cur.Start = schedule.ClampMinute(*p.Start)
	}
	if p.End != nil {
		cur.End = schedule.ClampMinute(*p.End)
	}
	return cur
}

// normalizeName trims and truncates a requested name. ok is false for names
// that are empty after trimming.
func normalizeName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", false
	}
	if utf8.RuneCountInString(name) > command.MaxNameLength {
		name = string([]rune(name)[:command.MaxNameLength])
	}
	return name, true
}
