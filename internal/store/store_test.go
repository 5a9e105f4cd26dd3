package store

import (
	"errors"
	"testing"

	"github.com/dokzlo13/plantd/internal/kv"
	"github.com/dokzlo13/plantd/internal/schedule"
)

func TestLoad_Defaults(t *testing.T) {
	s := New(kv.NewMemoryBucket(BucketName))

	settings, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := schedule.Window{Enabled: false, Start: DefaultScheduleStart, End: DefaultScheduleEnd}
	if settings.Schedule != want {
		t.Errorf("Schedule = %+v, want %+v", settings.Schedule, want)
	}
	if settings.Name != "" {
		t.Errorf("Name = %q, want empty", settings.Name)
	}
}

func TestSaveAndLoad(t *testing.T) {
	s := New(kv.NewMemoryBucket(BucketName))

	if err := s.SaveName("Basil"); err != nil {
		t.Fatalf("SaveName: %v", err)
	}
	w := schedule.Window{Enabled: true, Start: 22 * 60, End: 6 * 60}
	if err := s.SaveSchedule(w); err != nil {
		t.Fatalf("SaveSchedule: %v", err)
	}

	settings, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Name != "Basil" || settings.Schedule != w {
		t.Errorf("Load = %+v", settings)
	}

	if err := s.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	settings, _ = s.Load()
	if settings.Name != "" || settings.Schedule.Enabled {
		t.Errorf("settings survived Reset: %+v", settings)
	}
}

func TestLoad_ClampsStoredMinutes(t *testing.T) {
	b := kv.NewMemoryBucket(BucketName)
	_ = b.Store(KeyScheduleStart, -10)
	_ = b.Store(KeyScheduleEnd, 5000)

	settings, err := New(b).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if settings.Schedule.Start != 0 || settings.Schedule.End != schedule.MinutesPerDay-1 {
		t.Errorf("Schedule = %+v, want clamped", settings.Schedule)
	}
}

type failingBucket struct {
	*kv.MemoryBucket
}

func (failingBucket) StoreMany(map[string]any) error {
	return errors.New("disk full")
}

func TestSaveSchedule_Error(t *testing.T) {
	s := New(failingBucket{kv.NewMemoryBucket(BucketName)})
	if err := s.SaveSchedule(schedule.Window{}); err == nil {
		t.Error("expected error from failing bucket")
	}
}
