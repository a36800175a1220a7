package schedule

import (
	"testing"

	"vdengine/internal/analytics"
	"vdengine/internal/engine"
	"vdengine/internal/network"
	"vdengine/internal/resume"
	"vdengine/internal/transport"
	"vdengine/internal/transport/chunked"
	"vdengine/internal/transport/hls"
)

func newTestOrchestrator(t *testing.T) *engine.Orchestrator {
	t.Helper()
	store, err := resume.NewStore(t.TempDir(), nil, "vdengine-test/1.0")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	httpEngine := transport.NewHttpEngine(transport.Options{
		Store:         store,
		Bandwidth:     network.NewBandwidthController(),
		Congestion:    network.NewCongestionController(1, 8),
		ChunkedConfig: chunked.DefaultConfig(),
		HlsConfig:     hls.DefaultConfig(),
		TempDir:       t.TempDir(),
	})
	orch := engine.New(engine.Options{
		HttpEngine: httpEngine,
		Bandwidth:  network.NewBandwidthController(),
		Tracker:    analytics.NewTracker(),
		Store:      store,
	})
	orch.Start()
	t.Cleanup(orch.Stop)
	return orch
}

func TestUpdateScheduleRegistersAndReplacesEntries(t *testing.T) {
	s := New(nil, newTestOrchestrator(t))
	s.Start()
	defer s.Stop()

	if err := s.UpdateSchedule(Config{Enabled: true, StartHour: 8, StopHour: 22}); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if s.startEntry == 0 || s.stopEntry == 0 {
		t.Fatal("expected both cron entries to be registered")
	}

	firstStart, firstStop := s.startEntry, s.stopEntry
	if err := s.UpdateSchedule(Config{Enabled: true, StartHour: 9, StopHour: 23}); err != nil {
		t.Fatalf("second UpdateSchedule: %v", err)
	}
	if s.startEntry == firstStart || s.stopEntry == firstStop {
		t.Fatal("expected UpdateSchedule to replace the prior entries")
	}
}

func TestUpdateScheduleDisabledClearsEntries(t *testing.T) {
	s := New(nil, newTestOrchestrator(t))
	if err := s.UpdateSchedule(Config{Enabled: true, StartHour: 8, StopHour: 22}); err != nil {
		t.Fatalf("UpdateSchedule: %v", err)
	}
	if err := s.UpdateSchedule(Config{Enabled: false}); err != nil {
		t.Fatalf("disable UpdateSchedule: %v", err)
	}
	if s.startEntry != 0 || s.stopEntry != 0 {
		t.Fatal("expected entries cleared after disabling the schedule")
	}
}

func TestSpecFromHour(t *testing.T) {
	if got := specFromHour(8); got != "0 8 * * *" {
		t.Fatalf("specFromHour(8) = %q", got)
	}
	if got := specFromHour(22); got != "0 22 * * *" {
		t.Fatalf("specFromHour(22) = %q", got)
	}
}
