package circuitbreaker

import (
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestBreaker(maxFailures int, recovery time.Duration) *Breaker {
	return New(Config{
		Name:            "test",
		MaxFailures:     maxFailures,
		RecoveryTimeout: recovery,
	}, zap.NewNop())
}

func TestBreaker_StartsClosed(t *testing.T) {
	b := newTestBreaker(3, time.Minute)
	if b.GetState() != StateClosed {
		t.Errorf("expected closed, got %v", b.GetState())
	}
	if !b.Allow() {
		t.Error("closed breaker must allow calls")
	}
}

func TestBreaker_OpensAtThreshold(t *testing.T) {
	b := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	if b.GetState() != StateClosed {
		t.Errorf("expected still closed after 2 failures, got %v", b.GetState())
	}

	b.RecordFailure()
	if b.GetState() != StateOpen {
		t.Errorf("expected open after 3 failures, got %v", b.GetState())
	}
	if b.Allow() {
		t.Error("open breaker must reject calls")
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := newTestBreaker(3, time.Minute)

	b.RecordFailure()
	b.RecordFailure()
	b.RecordSuccess()
	b.RecordFailure()
	b.RecordFailure()

	if b.GetState() != StateClosed {
		t.Errorf("expected closed, consecutive count was reset, got %v", b.GetState())
	}
}

func TestBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	b := newTestBreaker(1, 10*time.Millisecond)

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("expected rejection while open")
	}

	time.Sleep(20 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be allowed after recovery timeout")
	}
	if b.GetState() != StateHalfOpen {
		t.Errorf("expected half-open, got %v", b.GetState())
	}
	// Only one probe may be in flight.
	if b.Allow() {
		t.Error("expected second call to be rejected while probe in flight")
	}
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	b := newTestBreaker(1, time.Millisecond)
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be allowed")
	}
	b.RecordSuccess()

	if b.GetState() != StateClosed {
		t.Errorf("expected closed after successful probe, got %v", b.GetState())
	}
	if !b.Allow() {
		t.Error("closed breaker must allow calls")
	}
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	b := newTestBreaker(1, time.Millisecond)
	b.RecordFailure()
	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected probe to be allowed")
	}
	b.RecordFailure()

	if b.GetState() != StateOpen {
		t.Errorf("expected open after failed probe, got %v", b.GetState())
	}
	if b.Allow() {
		t.Error("expected rejection immediately after failed probe")
	}
}

func TestBreaker_Defaults(t *testing.T) {
	b := New(Config{Name: "defaults"}, zap.NewNop())
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	if b.GetState() != StateClosed {
		t.Errorf("expected default threshold of 5 not yet reached, got %v", b.GetState())
	}
	b.RecordFailure()
	if b.GetState() != StateOpen {
		t.Errorf("expected open at default threshold, got %v", b.GetState())
	}
}
