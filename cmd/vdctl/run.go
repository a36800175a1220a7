package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"vdengine/internal/analytics"
	"vdengine/internal/config"
	"vdengine/internal/controlapi"
	"vdengine/internal/engine"
	"vdengine/internal/logger"
	"vdengine/internal/network"
	"vdengine/internal/organize"
	"vdengine/internal/resume"
	"vdengine/internal/schedule"
	"vdengine/internal/transport"
	"vdengine/internal/transport/chunked"
	"vdengine/internal/transport/hls"
)

var (
	runMaxConcurrent int
	runRateLimit     int64
	runOrganize      bool
	runScheduleStart int
	runScheduleStop  int
	runScheduleOn    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the download engine daemon and its control API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runMaxConcurrent, "max-concurrent", 5, "maximum simultaneous downloads")
	runCmd.Flags().Int64Var(&runRateLimit, "rate-limit", 0, "global bandwidth cap in bytes/sec (0 = unlimited)")
	runCmd.Flags().BoolVar(&runOrganize, "organize", false, "move completed downloads into category subfolders")
	runCmd.Flags().BoolVar(&runScheduleOn, "schedule", false, "enable the daily start/stop window")
	runCmd.Flags().IntVar(&runScheduleStart, "schedule-start-hour", 8, "hour (0-23) downloads resume")
	runCmd.Flags().IntVar(&runScheduleStop, "schedule-stop-hour", 22, "hour (0-23) downloads pause")
}

func runDaemon() error {
	settings := config.LoadFromEnv(config.Default())
	settings.MaxConcurrentDownloads = runMaxConcurrent
	settings.RateLimitBytesPerSec = runRateLimit
	settings.EnableOrganizer = runOrganize
	settings.EnableSchedule = runScheduleOn
	settings.ScheduleStartHour = runScheduleStart
	settings.ScheduleStopHour = runScheduleStop
	settings.ControlAPIPort = controlPort
	if controlToken != "" {
		settings.ControlAPIToken = controlToken
	}
	token := config.EnsureControlToken(&settings)

	stateDir := filepath.Join(os.TempDir(), "vdengine-state")
	log, err := logger.New(stateDir, os.Stderr)
	if err != nil {
		return fmt.Errorf("setting up logging: %w", err)
	}

	store, err := resume.NewStore(stateDir, nil, settings.UserAgent)
	if err != nil {
		return fmt.Errorf("opening resume store: %w", err)
	}

	bandwidth := network.NewBandwidthController()
	bandwidth.SetLimit(settings.RateLimitBytesPerSec)

	httpEngine := transport.NewHttpEngine(transport.Options{
		Store:         store,
		Bandwidth:     bandwidth,
		Congestion:    network.NewCongestionController(2, 16),
		MaxConcurrent: settings.MaxConcurrentDownloads,
		UserAgent:     settings.UserAgent,
		ChunkedConfig: chunked.DefaultConfig(),
		HlsConfig:     hls.DefaultConfig(),
		TempDir:       stateDir,
	})

	orch := engine.New(engine.Options{
		MaxConcurrent: settings.MaxConcurrentDownloads,
		HttpEngine:    httpEngine,
		Bandwidth:     bandwidth,
		Tracker:       analytics.NewTracker(),
		Store:         store,
		Logger:        log,
		Organizer:     organize.NewOrganizer(settings.EnableOrganizer),
		OutputDir:     settings.OutputDir,
	})
	orch.Start()
	defer orch.Stop()

	var sched *schedule.Scheduler
	if settings.EnableSchedule {
		sched = schedule.New(log, orch)
		sched.Start()
		defer sched.Stop()
		if err := sched.UpdateSchedule(schedule.Config{
			Enabled:   true,
			StartHour: settings.ScheduleStartHour,
			StopHour:  settings.ScheduleStopHour,
		}); err != nil {
			return fmt.Errorf("configuring schedule: %w", err)
		}
	}

	api := controlapi.New(orch, token, log)
	errCh := make(chan error, 1)
	go func() {
		log.Info("control API listening", "host", controlHost, "port", settings.ControlAPIPort, "token", token)
		if err := api.ListenAndServe(settings.ControlAPIPort); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("control API failed: %w", err)
	case <-sigCh:
		log.Info("shutting down")
	}
	return nil
}
