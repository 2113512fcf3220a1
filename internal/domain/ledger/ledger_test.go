package ledger

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/quotagate/internal/domain"
)

func TestAvailable(t *testing.T) {
	e := Reconstruct("acc", domain.ResourceAICall, 5, 3, 1, 7)
	if got := e.Available(); got != 2 {
		t.Errorf("expected 2, got %d", got)
	}

	over := Reconstruct("acc", domain.ResourceAICall, 5, 9, 1, 7)
	if got := over.Available(); got != 0 {
		t.Errorf("expected 0 for corrupt entry, got %d", got)
	}
}

func TestConsume_WithinRange(t *testing.T) {
	e := Reconstruct("acc", domain.ResourceAICall, 5, 3, 1, 7)

	next, err := e.Consume(2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.Used() != 5 {
		t.Errorf("expected used=5, got %d", next.Used())
	}
	if e.Used() != 3 {
		t.Error("Consume must not mutate the receiver")
	}
	if next.Version() != 7 {
		t.Errorf("version is bumped by storage, not by Consume: got %d", next.Version())
	}
}

func TestConsume_RejectsOverAndUnder(t *testing.T) {
	e := Reconstruct("acc", domain.ResourceAICall, 5, 3, 1, 7)

	_, err := e.Consume(3)
	if !errors.Is(err, domain.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation above quota, got %v", err)
	}

	_, err = e.Consume(-4)
	var ive *domain.InvariantViolationError
	if !errors.As(err, &ive) {
		t.Fatalf("expected InvariantViolationError below zero, got %v", err)
	}
	if ive.Value != -1 || ive.Target != "plan" {
		t.Errorf("unexpected violation detail: %+v", ive)
	}
}

func TestReset(t *testing.T) {
	e := Reconstruct("acc", domain.ResourceVoiceSecond, 100, 80, 3, 12)

	next := e.Reset(600, 4)
	if next.Used() != 0 || next.MonthlyQuota() != 600 || next.CycleID() != 4 {
		t.Errorf("unexpected reset entry: used=%d quota=%d cycle=%d",
			next.Used(), next.MonthlyQuota(), next.CycleID())
	}
}

func TestEmpty_NotInitialized(t *testing.T) {
	e := Empty("acc", domain.ResourceAICall)
	if e.Initialized() {
		t.Error("empty entry must not be initialized")
	}
	if e.Available() != 0 {
		t.Errorf("expected 0 available, got %d", e.Available())
	}
}
