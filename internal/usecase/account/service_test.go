package account

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/db/memory"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
	accountrepo "github.com/kailas-cloud/quotagate/internal/repository/account"
)

var anchor = time.Date(2026, time.January, 5, 0, 0, 0, 0, time.UTC)

func newService(t *testing.T) *Service {
	t.Helper()
	c, err := plan.NewCatalog(map[plan.Tier]plan.Allowances{
		"free": {domain.ResourceAICall: 5},
		"pro":  {domain.ResourceAICall: 100},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return New(accountrepo.New(memory.New(), "test:"), c, zap.NewNop())
}

func TestUpsert_CreateThenPendingChange(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	a, created, err := svc.Upsert(ctx, UpsertRequest{ID: "acc", Tier: "free", Anchor: anchor})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !created || a.Tier() != "free" || !a.IsActive() {
		t.Fatalf("unexpected account: created=%v tier=%q", created, a.Tier())
	}

	a, created, err = svc.Upsert(ctx, UpsertRequest{ID: "acc", Tier: "pro", Anchor: anchor})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if created {
		t.Error("second upsert must not create")
	}
	if a.Tier() != "free" || a.PendingTier() != "pro" {
		t.Errorf("tier change must be pending: %q / %q", a.Tier(), a.PendingTier())
	}
}

func TestUpsert_Rejections(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Upsert(ctx, UpsertRequest{ID: "acc", Tier: "free", Anchor: anchor}); err != nil {
		t.Fatalf("create: %v", err)
	}

	tests := []struct {
		name string
		req  UpsertRequest
		want error
	}{
		{"unknown tier", UpsertRequest{ID: "x", Tier: "gold", Anchor: anchor}, domain.ErrUnknownPlan},
		{"bad id", UpsertRequest{ID: "a/b", Tier: "free", Anchor: anchor}, domain.ErrInvalidRequest},
		{"no anchor", UpsertRequest{ID: "y", Tier: "free"}, domain.ErrInvalidRequest},
		{"bad status", UpsertRequest{ID: "z", Tier: "free", Anchor: anchor, Status: "closed"}, domain.ErrInvalidRequest},
		{"moved anchor", UpsertRequest{ID: "acc", Tier: "free", Anchor: anchor.AddDate(0, 0, 1)}, domain.ErrInvalidRequest},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, _, err := svc.Upsert(ctx, tc.req); !errors.Is(err, tc.want) {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestSetPlan(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Upsert(ctx, UpsertRequest{ID: "acc", Tier: "free", Anchor: anchor}); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, err := svc.SetPlan(ctx, "acc", "pro")
	if err != nil {
		t.Fatalf("set plan: %v", err)
	}
	if a.PendingTier() != "pro" {
		t.Errorf("expected pending pro, got %q", a.PendingTier())
	}

	a, err = svc.SetPlan(ctx, "acc", "free")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if a.PendingTier() != "" {
		t.Errorf("setting the current tier must cancel the change, got %q", a.PendingTier())
	}

	if _, err := svc.SetPlan(ctx, "ghost", "pro"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.SetPlan(ctx, "acc", "gold"); !errors.Is(err, domain.ErrUnknownPlan) {
		t.Errorf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestSetStatus(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	if _, _, err := svc.Upsert(ctx, UpsertRequest{ID: "acc", Tier: "free", Anchor: anchor}); err != nil {
		t.Fatalf("create: %v", err)
	}

	a, err := svc.SetStatus(ctx, "acc", domaccount.StatusSuspended)
	if err != nil {
		t.Fatalf("suspend: %v", err)
	}
	if a.IsActive() {
		t.Error("expected suspended")
	}

	list, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Status() != domaccount.StatusSuspended {
		t.Errorf("unexpected list: %+v", list)
	}
}
