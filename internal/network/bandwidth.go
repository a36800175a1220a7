// Package network holds process-global transfer controls shared by every
// sub-engine: the bandwidth throttle and the AIMD concurrency advisor.
package network

import (
	"sync"
	"sync/atomic"
	"time"
)

// BandwidthController is a soft, 1-second sliding-window throttle. It has
// no knowledge of which task bytes belong to; limiting is process-global,
// exactly as prescribed for the engine's write-loop throttle.
//
// This is intentionally not built on golang.org/x/time/rate: the required
// reset-window-then-sleep-the-overage semantics aren't what a token bucket
// exposes, so the window is tracked by hand under a mutex.
type BandwidthController struct {
	limit         atomic.Int64 // bytes/sec; 0 means unlimited
	mu            sync.Mutex
	windowStart   time.Time
	bytesInWindow int64
}

func NewBandwidthController() *BandwidthController {
	return &BandwidthController{windowStart: time.Now()}
}

// SetLimit updates the shared limit in bytes/sec. 0 (or negative) disables
// throttling entirely.
func (b *BandwidthController) SetLimit(bytesPerSec int64) {
	if bytesPerSec < 0 {
		bytesPerSec = 0
	}
	b.limit.Store(bytesPerSec)
}

// Limit returns the current limit, 0 meaning unlimited.
func (b *BandwidthController) Limit() int64 {
	return b.limit.Load()
}

// Throttle accounts nBytes against the current window and sleeps if the
// window's budget has been exceeded. Safe for concurrent use by every
// sub-engine worker after each successful write.
func (b *BandwidthController) Throttle(nBytes int64) {
	limit := b.limit.Load()
	if limit <= 0 {
		return
	}

	b.mu.Lock()
	now := time.Now()
	if now.Sub(b.windowStart) >= time.Second {
		b.windowStart = now
		b.bytesInWindow = 0
	}
	b.bytesInWindow += nBytes
	over := b.bytesInWindow - limit
	b.mu.Unlock()

	if over > 0 {
		sleepSeconds := float64(over) / float64(limit)
		time.Sleep(time.Duration(sleepSeconds * float64(time.Second)))
	}
}
