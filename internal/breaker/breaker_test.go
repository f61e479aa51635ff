package breaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAtThreshold(t *testing.T) {
	b := New(10, 30*time.Second)

	for i := 0; i < 9; i++ {
		b.RecordFailure()
		if b.IsOpen() {
			t.Fatalf("breaker open after %d failures, threshold is 10", i+1)
		}
	}

	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("breaker closed after 10 consecutive failures")
	}
	if got := b.ConsecutiveFailures(); got != 10 {
		t.Errorf("ConsecutiveFailures() = %d, want 10", got)
	}
}

func TestBreakerSuccessResets(t *testing.T) {
	b := New(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()
	if b.IsOpen() {
		t.Error("breaker open although success interrupted the streak")
	}

	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("breaker closed after threshold consecutive failures")
	}
}

func TestBreakerCooldownAutoCloses(t *testing.T) {
	b := New(2, 30*time.Second)

	current := time.Now()
	b.now = func() time.Time { return current }

	b.RecordFailure()
	b.RecordFailure()
	if !b.IsOpen() {
		t.Fatal("breaker closed at threshold")
	}

	// Still inside the cool-down window.
	current = current.Add(29 * time.Second)
	if !b.IsOpen() {
		t.Error("breaker closed before cool-down elapsed")
	}

	// Past the window: closed for callers, but the counter survives until
	// a success is recorded.
	current = current.Add(2 * time.Second)
	if b.IsOpen() {
		t.Error("breaker still open after cool-down elapsed")
	}
	if got := b.ConsecutiveFailures(); got != 2 {
		t.Errorf("ConsecutiveFailures() = %d after cool-down, want 2", got)
	}

	// One more failure immediately re-opens.
	b.RecordFailure()
	if !b.IsOpen() {
		t.Error("breaker closed after post-cool-down failure")
	}

	b.RecordSuccess()
	if got := b.ConsecutiveFailures(); got != 0 {
		t.Errorf("ConsecutiveFailures() = %d after success, want 0", got)
	}
}

func TestNewDefaults(t *testing.T) {
	b := New(0, 0)
	if b.threshold != DefaultThreshold {
		t.Errorf("threshold = %d, want %d", b.threshold, DefaultThreshold)
	}
	if b.cooldown != DefaultCooldown {
		t.Errorf("cooldown = %v, want %v", b.cooldown, DefaultCooldown)
	}
}
