package utils

import (
	"sort"
	"sync"
	"time"
)

const defaultLatencyWindow = 512

// LatencyTracker keeps a sliding window of duration samples for percentile
// reporting on the submission path.
type LatencyTracker struct {
	mu      sync.RWMutex
	window  []time.Duration
	maxSize int
}

// NewLatencyTracker creates a tracker keeping the most recent maxSize
// samples.
func NewLatencyTracker(maxSize int) *LatencyTracker {
	if maxSize <= 0 {
		maxSize = defaultLatencyWindow
	}
	return &LatencyTracker{maxSize: maxSize}
}

// Observe records a sample, evicting the oldest once the window is full.
func (l *LatencyTracker) Observe(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.window = append(l.window, d)
	if len(l.window) > l.maxSize {
		copy(l.window, l.window[1:])
		l.window = l.window[:l.maxSize]
	}
}

// Percentile reports the nearest-rank percentile (0-100) over the current
// window, or zero when no samples were recorded.
func (l *LatencyTracker) Percentile(p float64) time.Duration {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.window)
	if n == 0 {
		return 0
	}

	sorted := append([]time.Duration(nil), l.window...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	if p <= 0 {
		return sorted[0]
	}
	if p >= 100 {
		return sorted[n-1]
	}
	rank := int(p/100.0*float64(n)+0.5) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= n {
		rank = n - 1
	}
	return sorted[rank]
}

// Count reports how many samples the window currently holds.
func (l *LatencyTracker) Count() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.window)
}
