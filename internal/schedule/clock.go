package schedule

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Match patterns like "22:15", "06:30", "7:05"
var clockPattern = regexp.MustCompile(`^(\d{1,2}):(\d{2})$`)

// ClockPattern is the JSON Schema form of the accepted HH:MM syntax.
const ClockPattern = `^([01]?[0-9]|2[0-3]):[0-5][0-9]$`

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	s = strings.TrimSpace(s)

	matches := clockPattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}

	hour, _ := strconv.Atoi(matches[1])
	min, _ := strconv.Atoi(matches[2])

	if hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour: %d", hour)
	}
	if min < 0 || min > 59 {
		return 0, fmt.Errorf("invalid minute: %d", min)
	}

	return hour*60 + min, nil
}

// FormatClock renders minutes since midnight as zero-padded "HH:MM".
func FormatClock(minutes int) string {
	minutes = ClampMinute(minutes)
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
