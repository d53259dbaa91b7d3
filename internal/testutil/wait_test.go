package testutil

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWaitFor_ImmediateSuccess(t *testing.T) {
	t.Parallel()
	calls := 0
	result := WaitFor(t, func() bool {
		calls++
		return true
	}, WithTimeout(time.Second))

	if !result {
		t.Error("Expected WaitFor to return true for immediate success")
	}
	if calls != 1 {
		t.Errorf("Expected 1 call, got %d", calls)
	}
}

func TestWaitFor_EventualSuccess(t *testing.T) {
	t.Parallel()
	var counter atomic.Int64
	go func() {
		for range 3 {
			time.Sleep(5 * time.Millisecond)
			counter.Add(1)
		}
	}()

	result := WaitFor(t, func() bool {
		return counter.Load() >= 3
	}, WithTimeout(time.Second), WithInterval(time.Millisecond))

	if !result {
		t.Error("Expected WaitFor to return true for eventual success")
	}
}

func TestWaitFor_Timeout(t *testing.T) {
	t.Parallel()
	start := time.Now()
	result := WaitFor(t, func() bool {
		return false
	}, WithTimeout(50*time.Millisecond), WithInterval(10*time.Millisecond))

	if result {
		t.Error("Expected WaitFor to return false on timeout")
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("Expected to wait for the timeout, returned after %s", elapsed)
	}
}

func TestClock(t *testing.T) {
	t.Parallel()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := NewClock(start)

	clock.Advance(90 * time.Minute)

	if got := clock.Now(); !got.Equal(start.Add(90 * time.Minute)) {
		t.Errorf("Expected %s, got %s", start.Add(90*time.Minute), got)
	}
}
