// Package store persists the durable device settings: display name and schedule.
package store

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/plantd/internal/kv"
	"github.com/dokzlo13/plantd/internal/schedule"
)

// BucketName is the kv bucket holding device settings.
const BucketName = "settings"

// Persistence keys
const (
	KeyName            = "display_name"
	KeyScheduleEnabled = "schedule_enabled"
	KeyScheduleStart   = "schedule_start"
	KeyScheduleEnd     = "schedule_end"
)

// Schedule defaults used until an operator saves one (07:30-22:00, disabled).
const (
	DefaultScheduleStart = 7*60 + 30
	DefaultScheduleEnd   = 22 * 60
)

// Settings are the fields read once at startup.
type Settings struct {
	Name     string
	Schedule schedule.Window
}

// Store reads and writes settings through a kv bucket.
type Store struct {
	bucket kv.Bucket
}

// New creates a Store on top of bucket.
func New(bucket kv.Bucket) *Store {
	return &Store{bucket: bucket}
}

// Load reads all settings. Missing keys fall back to defaults and
// out-of-range minutes are clamped.
func (s *Store) Load() (Settings, error) {
	settings := Settings{
		Schedule: schedule.Window{
			Start: DefaultScheduleStart,
			End:   DefaultScheduleEnd,
		},
	}

	if _, err := s.bucket.Load(KeyName, &settings.Name); err != nil {
		return settings, fmt.Errorf("load %s: %w", KeyName, err)
	}
	if _, err := s.bucket.Load(KeyScheduleEnabled, &settings.Schedule.Enabled); err != nil {
		return settings, fmt.Errorf("load %s: %w", KeyScheduleEnabled, err)
	}
	if _, err := s.bucket.Load(KeyScheduleStart, &settings.Schedule.Start); err != nil {
		return settings, fmt.Errorf("load %s: %w", KeyScheduleStart, err)
	}
	if _, err := s.bucket.Load(KeyScheduleEnd, &settings.Schedule.End); err != nil {
		return settings, fmt.Errorf("load %s: %w", KeyScheduleEnd, err)
	}

	settings.Schedule.Start = schedule.ClampMinute(settings.Schedule.Start)
	settings.Schedule.End = schedule.ClampMinute(settings.Schedule.End)

	log.Debug().
		Str("name", settings.Name).
		Bool("schedule_enabled", settings.Schedule.Enabled).
		Str("schedule_start", schedule.FormatClock(settings.Schedule.Start)).
		Str("schedule_end", schedule.FormatClock(settings.Schedule.End)).
		Msg("Loaded settings")

	return settings, nil
}

// SaveName writes the display name.
func (s *Store) SaveName(name string) error {
	if err := s.bucket.Store(KeyName, name); err != nil {
		return fmt.Errorf("save %s: %w", KeyName, err)
	}
	return nil
}

// SaveSchedule writes enabled, start and end together.
func (s *Store) SaveSchedule(w schedule.Window) error {
	err := s.bucket.StoreMany(map[string]any{
		KeyScheduleEnabled: w.Enabled,
		KeyScheduleStart:   w.Start,
		KeyScheduleEnd:     w.End,
	})
	if err != nil {
		return fmt.Errorf("save schedule: %w", err)
	}
	return nil
}

// Reset removes every stored setting.
func (s *Store) Reset() error {
	return s.bucket.Clear()
}
