// Package model holds the data types shared across the download engine:
// tasks, chunk/resume state, server capability caching, HLS playlist
// structures, events, and the error taxonomy.
package model

import "time"

// TaskStatus is the lifecycle state of a Task. Legal transitions:
//
//	Pending     -> Downloading, Cancelled
//	Downloading -> Paused, Completed, Failed, Cancelled
//	Paused      -> Downloading, Cancelled
//	Failed      -> Pending (retry), Cancelled
//	Completed   -> (terminal)
//	Cancelled   -> (terminal)
type TaskStatus string

const (
	StatusPending     TaskStatus = "pending"
	StatusDownloading TaskStatus = "downloading"
	StatusPaused      TaskStatus = "paused"
	StatusCompleted   TaskStatus = "completed"
	StatusFailed      TaskStatus = "failed"
	StatusCancelled   TaskStatus = "cancelled"
)

// CanTransition reports whether moving from s to next is legal per the
// state machine above.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusDownloading || next == StatusCancelled
	case StatusDownloading:
		return next == StatusPaused || next == StatusCompleted || next == StatusFailed || next == StatusCancelled
	case StatusPaused:
		return next == StatusDownloading || next == StatusCancelled
	case StatusFailed:
		return next == StatusPending || next == StatusCancelled
	case StatusCompleted, StatusCancelled:
		return false
	default:
		return false
	}
}

// TransportHint narrows strategy selection when the caller already knows
// the transport a URL requires.
type TransportHint string

const (
	TransportAuto    TransportHint = ""
	TransportPlain   TransportHint = "plain"
	TransportChunked TransportHint = "chunked"
	TransportHLS     TransportHint = "hls"
)

// Task is a single download unit tracked by the orchestrator's registry.
type Task struct {
	ID             string                 `json:"id"`
	URL            string                 `json:"url"`
	Title          string                 `json:"title"`
	OutputDir      string                 `json:"output_dir"`
	FilePath       string                 `json:"file_path"`
	Status         TaskStatus             `json:"status"`
	Progress       float64                `json:"progress"`
	FileSize       int64                  `json:"file_size"`
	FileSizeKnown  bool                   `json:"file_size_known"`
	Downloaded     int64                  `json:"downloaded"`
	Speed          float64                `json:"speed"`
	ETASeconds     float64                `json:"eta_seconds"`
	ETAKnown       bool                   `json:"eta_known"`
	Error          string                 `json:"error,omitempty"`
	Priority       int                    `json:"priority"`
	TransportHint  TransportHint          `json:"transport_hint,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
	UpdatedAt      time.Time              `json:"updated_at"`
}

// Clone returns a deep-enough copy safe to hand to callers outside the
// registry lock (Metadata is shared by reference, which is fine since it is
// treated as immutable after task creation).
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
