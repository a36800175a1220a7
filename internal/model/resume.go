package model

import "time"

// ChunkStatus is the per-chunk lifecycle state inside a ResumeInfo.
type ChunkStatus string

const (
	ChunkPending     ChunkStatus = "pending"
	ChunkDownloading ChunkStatus = "downloading"
	ChunkCompleted   ChunkStatus = "completed"
	ChunkFailed      ChunkStatus = "failed"
	ChunkPaused      ChunkStatus = "paused"
)

// ChunkInfo describes one contiguous, inclusive byte range of a chunked
// download. Size is End-Start+1; Downloaded must never exceed Size.
type ChunkInfo struct {
	Index      int         `json:"index"`
	Start      int64       `json:"start"`
	End        int64       `json:"end"`
	Downloaded int64       `json:"downloaded"`
	Status     ChunkStatus `json:"status"`
	Retries    int         `json:"retries"`
	UpdatedAt  time.Time   `json:"updated_at"`
}

// Size returns the chunk's byte span.
func (c ChunkInfo) Size() int64 {
	return c.End - c.Start + 1
}

// ServerCapabilities caches host-level facts learned from a HEAD probe.
// Keyed by URL host; entries older than CapabilitiesTTL are stale.
type ServerCapabilities struct {
	SupportsRanges       bool      `json:"supports_ranges"`
	SupportsConcurrent   bool      `json:"supports_concurrent"`
	MaxConcurrentSuggest int       `json:"max_concurrent_suggested"`
	ServerID             string    `json:"server_identifier"`
	DetectedAt           time.Time `json:"detected_at"`
}

// CapabilitiesTTL is how long a ServerCapabilities entry remains valid.
const CapabilitiesTTL = 24 * time.Hour

func (c ServerCapabilities) Stale(now time.Time) bool {
	return now.Sub(c.DetectedAt) >= CapabilitiesTTL
}

// ResumeInfo is the persisted per-task state that lets a chunked or HLS
// download continue across process restarts.
//
// Invariant: Chunks tile [0, TotalSize) with no gaps or overlaps.
// SumDownloaded is always derived from Chunks, never stored independently.
type ResumeInfo struct {
	TaskID       string             `json:"task_id"`
	FilePath     string             `json:"file_path"`
	URL          string             `json:"url"`
	TotalSize    int64              `json:"total_size"`
	Chunks       []ChunkInfo        `json:"chunks"`
	Capabilities ServerCapabilities `json:"capabilities"`
	CreatedAt    time.Time          `json:"created_at"`
	ModifiedAt   time.Time          `json:"modified_at"`
}

// SumDownloaded derives total bytes downloaded from the chunk vector.
func (r *ResumeInfo) SumDownloaded() int64 {
	var sum int64
	for _, c := range r.Chunks {
		sum += c.Downloaded
	}
	return sum
}

// AllComplete reports whether every chunk has finished.
func (r *ResumeInfo) AllComplete() bool {
	if len(r.Chunks) == 0 {
		return false
	}
	for _, c := range r.Chunks {
		if c.Status != ChunkCompleted {
			return false
		}
	}
	return true
}

// CompletionMarker is the `<file>.vdstate` side-file recording that URL
// was successfully downloaded to file of size FileSize.
type CompletionMarker struct {
	URL         string    `json:"url"`
	FileSize    int64     `json:"file_size"`
	CompletedAt time.Time `json:"completed_at"`
}
