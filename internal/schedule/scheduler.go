// Package schedule drives a daily start/stop window over the orchestrator
// using cron expressions.
package schedule

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"

	"vdengine/internal/engine"
)

// Config describes a daily active window: downloads resume at StartHour and
// pause at StopHour (both 0-23, local time).
type Config struct {
	Enabled   bool
	StartHour int
	StopHour  int
}

// Scheduler wraps a robfig/cron.Cron driving Orchestrator.ResumeAllDownloads
// and PauseAllDownloads on the configured daily window.
type Scheduler struct {
	logger *slog.Logger
	cron   *cron.Cron
	orch   *engine.Orchestrator

	mu         sync.Mutex
	config     Config
	startEntry cron.EntryID
	stopEntry  cron.EntryID
}

func New(logger *slog.Logger, orch *engine.Orchestrator) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{logger: logger, cron: cron.New(), orch: orch}
}

// Start launches the underlying cron runner; it has no effect on any
// already-registered jobs until UpdateSchedule installs them.
func (s *Scheduler) Start() { s.cron.Start() }

// Stop halts the cron runner, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() { s.cron.Stop() }

// UpdateSchedule replaces the current start/stop jobs with cfg's. Passing
// an Enabled: false Config removes any active window.
func (s *Scheduler) UpdateSchedule(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startEntry != 0 {
		s.cron.Remove(s.startEntry)
		s.startEntry = 0
	}
	if s.stopEntry != 0 {
		s.cron.Remove(s.stopEntry)
		s.stopEntry = 0
	}
	s.config = cfg

	if !cfg.Enabled {
		return nil
	}

	startID, err := s.cron.AddFunc(specFromHour(cfg.StartHour), func() {
		s.logger.Info("schedule: resuming all downloads")
		s.orch.ResumeAllDownloads()
		s.orch.StartAllPending()
	})
	if err != nil {
		return fmt.Errorf("scheduling start window: %w", err)
	}
	s.startEntry = startID

	stopID, err := s.cron.AddFunc(specFromHour(cfg.StopHour), func() {
		s.logger.Info("schedule: pausing all downloads")
		s.orch.PauseAllDownloads()
	})
	if err != nil {
		s.cron.Remove(s.startEntry)
		s.startEntry = 0
		return fmt.Errorf("scheduling stop window: %w", err)
	}
	s.stopEntry = stopID

	s.logger.Info("schedule updated", "start_hour", cfg.StartHour, "stop_hour", cfg.StopHour)
	return nil
}

// specFromHour builds a standard 5-field cron spec firing once daily at
// minute 0 of hour.
func specFromHour(hour int) string {
	return fmt.Sprintf("0 %d * * *", hour)
}
