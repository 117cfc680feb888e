package utils

import (
	"testing"
	"time"
)

func TestLatencyTrackerPercentile(t *testing.T) {
	tracker := NewLatencyTracker(16)
	for ms := 10; ms <= 50; ms += 10 {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	if got := tracker.Count(); got != 5 {
		t.Fatalf("Count() = %d, want 5", got)
	}
	if p50 := tracker.Percentile(50); p50 != 30*time.Millisecond {
		t.Fatalf("Percentile(50) = %v, want 30ms", p50)
	}
	if p95 := tracker.Percentile(95); p95 != 50*time.Millisecond {
		t.Fatalf("Percentile(95) = %v, want 50ms", p95)
	}
	if p0 := tracker.Percentile(0); p0 != 10*time.Millisecond {
		t.Fatalf("Percentile(0) = %v, want 10ms", p0)
	}
}

func TestLatencyTrackerEmpty(t *testing.T) {
	tracker := NewLatencyTracker(8)
	if got := tracker.Percentile(95); got != 0 {
		t.Fatalf("Percentile(95) on empty tracker = %v, want 0", got)
	}
}

func TestLatencyTrackerEvictsOldest(t *testing.T) {
	tracker := NewLatencyTracker(3)
	for ms := 1; ms <= 10; ms++ {
		tracker.Observe(time.Duration(ms) * time.Millisecond)
	}

	if got := tracker.Count(); got != 3 {
		t.Fatalf("Count() = %d, want 3", got)
	}
	// Only the last three samples (8, 9, 10ms) remain.
	if min := tracker.Percentile(0); min != 8*time.Millisecond {
		t.Fatalf("Percentile(0) = %v, want 8ms", min)
	}
}
