package reconcile

// Action is a side effect requested by a reconciliation pass.
type Action int

const (
	// ActionRefresh requests a fresh sensor read followed by a publish.
	ActionRefresh Action = iota
	// ActionPersistName requests the display name be written to storage.
	ActionPersistName
	// ActionPersistSchedule requests enabled/start/end be written together.
	ActionPersistSchedule
	// ActionWriteDuty requests State.Duty() be written to the actuator.
	ActionWriteDuty
	// ActionPublish requests a telemetry snapshot be published.
	ActionPublish
	// ActionOverrideExpired reports that an override was disarmed this pass.
	ActionOverrideExpired
)

// String returns a human-readable name for the action.
func (a Action) String() string {
	switch a {
	case ActionRefresh:
		return "refresh"
	case ActionPersistName:
		return "persist_name"
	case ActionPersistSchedule:
		return "persist_schedule"
	case ActionWriteDuty:
		return "write_duty"
	case ActionPublish:
		return "publish"
	case ActionOverrideExpired:
		return "override_expired"
	default:
		return "unknown"
	}
}

// Actions is an ordered list of side effects.
type Actions []Action

// Has returns true if a is present.
func (as Actions) Has(a Action) bool {
	for _, x := range as {
		if x == a {
			return true
		}
	}
	return false
}

// Strings returns the action names, for logging.
func (as Actions) Strings() []string {
	out := make([]string, len(as))
	for i, a := range as {
		out[i] = a.String()
	}
	return out
}
