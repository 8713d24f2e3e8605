package tasks

import (
	"testing"
	"time"
)

func TestComputeBackoffRespectsCap(t *testing.T) {
	for retry := 0; retry < 20; retry++ {
		d := computeBackoff(1000, 60000, retry)
		if d > 90000000000 { // 90s: cap (60s) with max 1.5x jitter
			t.Fatalf("retry %d: backoff %v exceeds jittered cap", retry, d)
		}
		if d <= 0 {
			t.Fatalf("retry %d: backoff must be positive, got %v", retry, d)
		}
	}
}

func TestComputeBackoffGrowsWithRetryCount(t *testing.T) {
	// Jitter makes any single pair noisy, but the cap must eventually bind:
	// late retries should not still be growing past it.
	early := computeBackoff(100, 60000, 0)
	late := computeBackoff(100, 60000, 15)
	if early > 200000000 { // 200ms generous upper bound for retry 0 with jitter
		t.Fatalf("retry 0 backoff unexpectedly large: %v", early)
	}
	if late < 30000000000 { // at least half the 60s cap once capped
		t.Fatalf("retry 15 backoff should be near the cap, got %v", late)
	}
}

// TestComputeBackoffMatchesScenario2Ranges pins computeBackoff's output to
// the literal ranges from spec §8 scenario 2: after the first retry
// (post-increment retry_count=1) delay falls in base*[1,3]; after the
// second (retry_count=2) it falls in base*[2,6]. Engine.failOrDead must
// call computeBackoff with the post-increment retry_count, not the task's
// pre-increment RetryCount field.
func TestComputeBackoffMatchesScenario2Ranges(t *testing.T) {
	const base = 1000    // ms
	const capMS = 600000 // ms, high enough to never bind in this test

	for i := 0; i < 200; i++ {
		first := computeBackoff(base, capMS, 1)
		if first < time.Second || first > 3*time.Second {
			t.Fatalf("post-increment retry_count=1: delay %v outside base*[1,3]=[1s,3s]", first)
		}

		second := computeBackoff(base, capMS, 2)
		if second < 2*time.Second || second > 6*time.Second {
			t.Fatalf("post-increment retry_count=2: delay %v outside base*[2,6]=[2s,6s]", second)
		}
	}
}
