package model

import "time"

// EventKind tags the payload carried by a DownloadEvent.
type EventKind string

const (
	EventTaskCreated      EventKind = "task_created"
	EventTaskStarted      EventKind = "task_started"
	EventTaskProgress     EventKind = "task_progress"
	EventEnhancedProgress EventKind = "enhanced_progress"
	EventTaskPaused       EventKind = "task_paused"
	EventTaskResumed      EventKind = "task_resumed"
	EventTaskCompleted    EventKind = "task_completed"
	EventTaskFailed       EventKind = "task_failed"
	EventTaskCancelled    EventKind = "task_cancelled"
	EventStatsUpdated     EventKind = "stats_updated"
)

// ProgressDelta is the byte-delta payload a sub-engine reports up through
// its progress callback; TaskProgress events carry the derived form.
type ProgressDelta struct {
	TaskID     string
	Downloaded int64
	Total      int64
	TotalKnown bool

	// SegmentsDone/SegmentsTotal give count-based progress granularity for
	// transports that can't express a byte total (an HLS playlist whose
	// segments carry no EXT-X-BYTERANGE). SegmentsTotal == 0 means not
	// applicable; consumers fall back to it only when TotalKnown is false.
	SegmentsDone  int
	SegmentsTotal int
}

// TaskProgress is the derived, user-facing progress snapshot for one task.
type TaskProgress struct {
	Downloaded int64   `json:"downloaded"`
	Total      int64   `json:"total,omitempty"`
	TotalKnown bool    `json:"total_known"`
	Speed      float64 `json:"speed"`
	ETASeconds float64 `json:"eta_seconds,omitempty"`
	ETAKnown   bool    `json:"eta_known"`
	Ratio      float64 `json:"ratio"`

	// SegmentsDone/SegmentsTotal mirror ProgressDelta's count-based
	// fallback; SegmentsTotal == 0 means Ratio was derived from bytes.
	SegmentsDone  int `json:"segments_done,omitempty"`
	SegmentsTotal int `json:"segments_total,omitempty"`
}

// DownloadEvent is the single tagged-union event type the orchestrator
// emits, including events it builds from the ProgressDelta values that
// sub-engines send over HttpEngine's progress channel; each one is passed to
// the external sink installed via SetEventSink, if any.
type DownloadEvent struct {
	Kind      EventKind        `json:"kind"`
	TaskID    string           `json:"task_id,omitempty"`
	Progress  *TaskProgress    `json:"progress,omitempty"`
	Enhanced  *EnhancedStats   `json:"enhanced,omitempty"`
	FilePath  string           `json:"file_path,omitempty"`
	Error     string           `json:"error,omitempty"`
	Stats     *GlobalStats     `json:"stats,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// EnhancedStats is the per-task statistics snapshot produced by the
// progress tracker (EMA speed, stability, efficiency, ETA).
type EnhancedStats struct {
	TaskID         string  `json:"task_id"`
	SmoothedSpeed  float64 `json:"smoothed_speed"`
	PeakSpeed      float64 `json:"peak_speed"`
	MinSpeed       float64 `json:"min_speed"`
	Variance       float64 `json:"variance"`
	StdDev         float64 `json:"std_dev"`
	Stability      float64 `json:"stability"`
	Efficiency     float64 `json:"efficiency"`
	Downloaded     int64   `json:"downloaded"`
	Total          int64   `json:"total,omitempty"`
	TotalKnown     bool    `json:"total_known"`
	ETASeconds     float64 `json:"eta_seconds,omitempty"`
	ETAKnown       bool    `json:"eta_known"`
	ProgressPct    float64 `json:"progress_pct"`
	SampleCount    int     `json:"sample_count"`
}

// GlobalStats is the orchestrator-wide aggregate surfaced by get_stats().
type GlobalStats struct {
	TotalTasks      int     `json:"total_tasks"`
	CompletedTasks  int     `json:"completed_tasks"`
	FailedTasks     int     `json:"failed_tasks"`
	CancelledTasks  int     `json:"cancelled_tasks"`
	ActiveDownloads int     `json:"active_downloads"`
	TotalDownloaded int64   `json:"total_downloaded"`
	AverageSpeed    float64 `json:"average_speed"`
	DiskFreeBytes   uint64  `json:"disk_free_bytes,omitempty"`
	DiskTotalBytes  uint64  `json:"disk_total_bytes,omitempty"`
}
