// Package telemetry builds and publishes device snapshots.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dokzlo13/plantd/internal/clock"
	"github.com/dokzlo13/plantd/internal/reconcile"
	"github.com/dokzlo13/plantd/internal/schedule"
)

// TimestampFormat is the layout of Snapshot.Timestamp.
const TimestampFormat = "2006-01-02 15:04:05"

// UnknownTimestamp is sent when the wall clock is not synchronised.
const UnknownTimestamp = "unknown"

// DefaultMaxPayload is the size of the firmware's output buffer.
const DefaultMaxPayload = 256

// ErrPayloadTooLarge is returned when an encoded snapshot exceeds the output buffer.
var ErrPayloadTooLarge = errors.New("telemetry payload exceeds output buffer")

// ScheduleView is the wire form of the schedule.
type ScheduleView struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"`
	End     string `json:"end"`
}

// Snapshot is one telemetry message.
type Snapshot struct {
	Moisture   int          `json:"moisture"`
	DeviceID   string       `json:"device_id"`
	Power      bool         `json:"power"`
	Effective  bool         `json:"effective"`
	Brightness uint8        `json:"brightness"`
	Name       string       `json:"name,omitempty"`
	Schedule   ScheduleView `json:"schedule"`
	Timestamp  string       `json:"timestamp"`
}

// Build assembles a snapshot from settled state and a moisture reading.
func Build(deviceID string, s reconcile.State, moisture int, now clock.Instant) Snapshot {
	ts := UnknownTimestamp
	if now.WallKnown {
		ts = now.Wall.Format(TimestampFormat)
	}

	return Snapshot{
		Moisture:   moisture,
		DeviceID:   deviceID,
		Power:      s.UserPower,
		Effective:  s.EffectiveOn(),
		Brightness: s.Brightness,
		Name:       s.Name,
		Schedule: ScheduleView{
			Enabled: s.Schedule.Enabled,
			Start:   schedule.FormatClock(s.Schedule.Start),
			End:     schedule.FormatClock(s.Schedule.End),
		},
		Timestamp: ts,
	}
}

// Encode serialises a snapshot, refusing payloads larger than maxSize bytes.
// A non-positive maxSize disables the check.
func Encode(s Snapshot, maxSize int) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if maxSize > 0 && len(data) > maxSize {
		return nil, fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(data), maxSize)
	}
	return data, nil
}
