package network

import (
	"sync"
	"time"
)

// CongestionController runs an AIMD (additive-increase/multiplicative-
// decrease) loop per host to advise a chunked download's worker count. It is
// a secondary signal alongside ServerCapabilities.MaxConcurrentSuggest, not
// a hard cap.
type CongestionController struct {
	mu         sync.RWMutex
	hosts      map[string]*HostStats
	minWorkers int
	maxWorkers int
}

// HostStats tracks per-host outcome counters used by the AIMD loop.
type HostStats struct {
	LastRTT      time.Duration
	SmoothedRTT  time.Duration
	Concurrency  int
	LastUpdate   time.Time
	SuccessCount int
	ErrorCount   int
}

func NewCongestionController(minWorkers, maxWorkers int) *CongestionController {
	return &CongestionController{
		hosts:      make(map[string]*HostStats),
		minWorkers: minWorkers,
		maxWorkers: maxWorkers,
	}
}

// RecordOutcome updates a host's stats after one chunk/segment attempt.
func (cc *CongestionController) RecordOutcome(host string, latency time.Duration, err error) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	stats, ok := cc.hosts[host]
	if !ok {
		stats = &HostStats{Concurrency: cc.minWorkers, SmoothedRTT: latency}
		cc.hosts[host] = stats
	}

	const alpha = 0.125
	stats.SmoothedRTT = time.Duration((1-alpha)*float64(stats.SmoothedRTT) + alpha*float64(latency))
	stats.LastRTT = latency
	stats.LastUpdate = time.Now()

	if err != nil {
		stats.ErrorCount++
	} else {
		stats.SuccessCount++
	}
}

// IdealConcurrency returns the AIMD-advised worker count for host,
// reacting to recorded errors (multiplicative decrease) or a run of
// successes (additive increase).
func (cc *CongestionController) IdealConcurrency(host string) int {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	stats, ok := cc.hosts[host]
	if !ok {
		return cc.minWorkers
	}

	if stats.ErrorCount > 0 {
		stats.Concurrency = max(1, stats.Concurrency/2)
		stats.ErrorCount = 0
		return stats.Concurrency
	}

	if stats.SuccessCount > stats.Concurrency {
		if stats.Concurrency < cc.maxWorkers {
			stats.Concurrency++
		}
		stats.SuccessCount = 0
	}

	return stats.Concurrency
}
