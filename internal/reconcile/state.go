// Package reconcile derives the grow light's effective output from operator
// intent, the daily schedule and short-lived manual overrides.
//
// Everything here is pure: Apply and Tick take a State and return the next
// State together with the side effects the caller must perform.
package reconcile

import (
	"time"

	"github.com/dokzlo13/plantd/internal/schedule"
)

// Default values for a freshly booted device.
const (
	DefaultBrightness       = 255
	DefaultOverrideDuration = 15 * time.Minute
)

// Override is an armed manual override. Until is a deadline on the
// monotonic clock (clock.Instant.Elapsed).
type Override struct {
	Until time.Duration
}

// State is the device's session state. Only this package mutates it.
type State struct {
	// UserPower is the last explicit on/off intent from an operator.
	UserPower bool
	// Brightness is the duty level used while the light is on.
	Brightness uint8
	// Schedule is the durable daily window.
	Schedule schedule.Window
	// Override, when set, lets UserPower win over the schedule.
	Override *Override
	// Name is the durable display name; empty means none.
	Name string

	// effectiveOn is derived by settle and never assigned anywhere else.
	effectiveOn bool
}

// NewState returns the boot state with durable settings loaded.
// The light starts on at full duty, matching the firmware defaults.
func NewState(name string, sched schedule.Window) State {
	return State{
		UserPower:  true,
		Brightness: DefaultBrightness,
		Schedule:   sched,
		Name:       name,
	}
}

// EffectiveOn returns the on/off value last written to the actuator.
func (s State) EffectiveOn() bool {
	return s.effectiveOn
}

// Duty returns the actuator output: Brightness while effectively on, else 0.
func (s State) Duty() uint8 {
	if s.effectiveOn {
		return s.Brightness
	}
	return 0
}

// OverrideArmed returns true if an override is currently armed.
func (s State) OverrideArmed() bool {
	return s.Override != nil
}
