// Package clock provides the time sources used by the controller: a
// monotonic elapsed reading for override expiry and a local wall clock for
// schedule evaluation.
package clock

import (
	"sync"
	"time"
)

// syncedAfter is the earliest wall-clock time treated as valid. Boards without
// an RTC boot near the epoch until NTP catches up.
var syncedAfter = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

// Instant is a single reading of both time sources.
type Instant struct {
	// Elapsed is monotonic time since the clock was created.
	Elapsed time.Duration
	// Wall is local wall-clock time; only meaningful when WallKnown.
	Wall      time.Time
	WallKnown bool
}

// Clock produces Instants.
type Clock interface {
	Now() Instant
}

// System reads the host clock.
type System struct {
	start time.Time
	loc   *time.Location
}

// NewSystem creates a system clock reporting wall time in loc.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{start: time.Now(), loc: loc}
}

// Now returns the current reading.
func (s *System) Now() Instant {
	now := time.Now()
	return Instant{
		Elapsed:   now.Sub(s.start),
		Wall:      now.In(s.loc),
		WallKnown: now.After(syncedAfter),
	}
}

// Manual is a clock that only moves when told to.
type Manual struct {
	mu        sync.Mutex
	elapsed   time.Duration
	wall      time.Time
	wallKnown bool
}

// NewManual creates a manual clock at wall time t.
func NewManual(t time.Time) *Manual {
	return &Manual{wall: t, wallKnown: true}
}

// Now returns the current reading.
func (m *Manual) Now() Instant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Instant{Elapsed: m.elapsed, Wall: m.wall, WallKnown: m.wallKnown}
}

// Advance moves both time sources forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elapsed += d
	m.wall = m.wall.Add(d)
}

// SetWallKnown marks the wall clock as synchronised or not.
func (m *Manual) SetWallKnown(known bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wallKnown = known
}
