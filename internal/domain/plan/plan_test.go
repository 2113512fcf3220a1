package plan

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/quotagate/internal/domain"
)

func testCatalog(t *testing.T) Catalog {
	t.Helper()
	c, err := NewCatalog(map[Tier]Allowances{
		"starter": {domain.ResourceAICall: 100},
		"pro":     {domain.ResourceAICall: 1000, domain.ResourceVoiceSecond: 36000},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return c
}

func TestAllowance_KnownTier(t *testing.T) {
	c := testCatalog(t)

	got, err := c.Allowance("pro", domain.ResourceVoiceSecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 36000 {
		t.Errorf("expected 36000, got %d", got)
	}
}

func TestAllowance_UnknownTierFailsClosed(t *testing.T) {
	c := testCatalog(t)

	got, err := c.Allowance("enterprise", domain.ResourceAICall)
	if !errors.Is(err, domain.ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0 allowance on error, got %d", got)
	}
}

func TestAllowance_UnlistedResourceIsZero(t *testing.T) {
	c := testCatalog(t)

	got, err := c.Allowance("starter", domain.ResourceVoiceSecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
}

func TestNewCatalog_Rejects(t *testing.T) {
	tests := []struct {
		name  string
		tiers map[Tier]Allowances
	}{
		{"empty tier", map[Tier]Allowances{"": {domain.ResourceAICall: 1}}},
		{"negative", map[Tier]Allowances{"x": {domain.ResourceAICall: -1}}},
		{"unknown resource", map[Tier]Allowances{"x": {"GPU_MINUTE": 1}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewCatalog(tc.tiers); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestTiers_Sorted(t *testing.T) {
	c := testCatalog(t)
	tiers := c.Tiers()
	if len(tiers) != 2 || tiers[0] != "pro" || tiers[1] != "starter" {
		t.Errorf("unexpected tiers: %v", tiers)
	}
}

func TestAllowances_ReturnsCopy(t *testing.T) {
	c := testCatalog(t)
	a, err := c.Allowances("starter")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	a[domain.ResourceAICall] = 5

	got, _ := c.Allowance("starter", domain.ResourceAICall)
	if got != 100 {
		t.Errorf("catalog mutated through copy: got %d", got)
	}
}
