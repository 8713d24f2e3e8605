package tasks

import (
	"time"

	"github.com/sethvargo/go-retry"
)

// computeBackoff implements spec §4.5 item 4's exact retry delay formula:
// delay = min(base * 2^retry_count, cap) * jitter, jitter in [0.5, 1.5],
// where retry_count is the POST-increment count for the attempt about to be
// scheduled (1 after the first failure, 2 after the second, ...). Callers
// must pass that post-increment value, not the task's pre-increment
// RetryCount field. sethvargo/go-retry's exponential-backoff generator
// (promoted from the teacher's indirect-only dependency to direct use here)
// produces the base*2^n sequence with its first Next() call already at
// n=0, so reaching exponent retry_count takes retry_count+1 calls — the loop
// below runs retryCount+1 times (i from 0 through retryCount inclusive) and
// keeps the last draw.
func computeBackoff(baseMS, capMS, retryCount int) time.Duration {
	b := retry.NewExponential(time.Duration(baseMS) * time.Millisecond)
	b = retry.WithCappedDuration(time.Duration(capMS)*time.Millisecond, b)
	b = retry.WithJitterPercent(50, b)

	var delay time.Duration
	for i := 0; i <= retryCount; i++ {
		d, stop := b.Next()
		if stop {
			delay = time.Duration(capMS) * time.Millisecond
			break
		}
		delay = d
	}
	return delay
}
