package shared

import "time"

// RetryPolicy bounds repeated attempts against a flaky upstream.
//
// Backoff receives the zero-based attempt index that just failed and returns
// how long to wait before the next attempt. Sleep is injectable so tests can
// observe the ladder without waiting it out.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     func(attempt int) time.Duration
	Sleep       func(time.Duration)
}

// LinearBackoff returns a backoff function producing step, 2*step, 3*step, ...
func LinearBackoff(step time.Duration) func(int) time.Duration {
	return func(attempt int) time.Duration {
		return time.Duration(attempt+1) * step
	}
}

// DefaultRetryPolicy is the destination-write policy: three attempts with a
// 2s/4s linear ladder, bounding worst-case latency per item to ~12s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     LinearBackoff(2 * time.Second),
		Sleep:       time.Sleep,
	}
}

// Wait sleeps for the backoff duration of the given attempt index.
func (p RetryPolicy) Wait(attempt int) {
	sleep := p.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	if p.Backoff == nil {
		return
	}
	sleep(p.Backoff(attempt))
}

// Exhausted reports whether attempt was the final allowed attempt.
func (p RetryPolicy) Exhausted(attempt int) bool {
	return attempt >= p.MaxAttempts-1
}
