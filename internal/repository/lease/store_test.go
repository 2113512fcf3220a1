package lease

import (
	"context"
	"testing"
	"time"

	"github.com/kailas-cloud/quotagate/internal/db/memory"
)

func TestAcquire_Exclusive(t *testing.T) {
	s := New(memory.New(), "qg:")
	ctx := context.Background()

	c, ok, err := s.Acquire(ctx, "x1", time.Second)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	if _, ok, _ := s.Acquire(ctx, "x1", time.Second); ok {
		t.Fatal("second acquire must fail while held")
	}
	if _, ok, _ := s.Acquire(ctx, "x2", time.Second); !ok {
		t.Fatal("different name must not contend")
	}

	if err := s.Release(ctx, c); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, ok, _ := s.Acquire(ctx, "x1", time.Second); !ok {
		t.Fatal("expected acquire after release")
	}
}

func TestAcquire_ExpiresForCrashedHolder(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s := New(memory.New(memory.WithClock(func() time.Time { return now })), "qg:")
	ctx := context.Background()

	stale, _, _ := s.Acquire(ctx, "x1", time.Second)
	now = now.Add(2 * time.Second)

	fresh, ok, _ := s.Acquire(ctx, "x1", time.Second)
	if !ok {
		t.Fatal("expected claim after ttl")
	}

	// The stale holder's release must not drop the new claim.
	_ = s.Release(ctx, stale)
	if _, ok, _ := s.Acquire(ctx, "x1", time.Second); ok {
		t.Fatal("stale release removed a live claim")
	}
	_ = s.Release(ctx, fresh)
}

func TestAcquire_RejectsZeroTTL(t *testing.T) {
	s := New(memory.New(), "qg:")
	if _, _, err := s.Acquire(context.Background(), "x", 0); err == nil {
		t.Fatal("expected error")
	}
}
