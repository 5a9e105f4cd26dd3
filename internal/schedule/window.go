// Package schedule evaluates daily on/off windows expressed in minutes of day.
package schedule

import "time"

// MinutesPerDay is the number of distinct minute-of-day values.
const MinutesPerDay = 24 * 60

// Window is a daily interval [Start, End) in minutes since midnight.
// Start > End means the window crosses midnight; Start == End never matches.
type Window struct {
	Enabled bool
	Start   int
	End     int
}

// Active reports whether the window is enabled and contains now.
func (w Window) Active(now int) bool {
	return w.Enabled && InWindow(now, w.Start, w.End)
}

// InWindow reports whether now falls inside [start, end), wrapping at midnight.
func InWindow(now, start, end int) bool {
	switch {
	case start == end:
		return false
	case start < end:
		return start <= now && now < end
	default:
		return now >= start || now < end
	}
}

// MinuteOfDay returns the minute-of-day of t. When the wall clock is not
// known the result is 0, so evaluation degrades to "midnight" instead of failing.
func MinuteOfDay(t time.Time, known bool) int {
	if !known {
		return 0
	}
	return t.Hour()*60 + t.Minute()
}

// ClampMinute forces m into [0, MinutesPerDay).
func ClampMinute(m int) int {
	if m < 0 {
		return 0
	}
	if m >= MinutesPerDay {
		return MinutesPerDay - 1
	}
	return m
}
