package realtime

import (
	"testing"
	"time"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	t0 := time.Unix(1_700_000_000, 0)

	for i := 0; i < 3; i++ {
		if !rl.Allow(t0.Add(time.Duration(i) * 100 * time.Millisecond)) {
			t.Fatalf("event %d should be allowed", i)
		}
	}
	if rl.Allow(t0.Add(300 * time.Millisecond)) {
		t.Fatalf("fourth event inside the window should be denied")
	}
	// The first event ages out after the window.
	if !rl.Allow(t0.Add(1001 * time.Millisecond)) {
		t.Fatalf("event after the window should be allowed")
	}
}

func TestNewRateLimiter_Defaults(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("limit=%d window=%v", rl.limit, rl.window)
	}
}
