package scheduler

import (
	"context"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

// AccountStore lists accounts and applies promotions.
type AccountStore interface {
	List(ctx context.Context) ([]domaccount.Account, error)
	Update(ctx context.Context, id string, fn func(domaccount.Account) (domaccount.Account, error)) (domaccount.Account, error)
}

// LedgerResetter reads ledger entries and starts new cycles on them.
type LedgerResetter interface {
	Get(ctx context.Context, accountID string, resource domain.ResourceType) (domledger.Entry, error)
	ApplyCycleReset(
		ctx context.Context, accountID string, resource domain.ResourceType, allowance, cycleID int64,
	) (domledger.ResetOutcome, error)
}

// PlanCatalog resolves tier allowances.
type PlanCatalog interface {
	Allowance(tier plan.Tier, resource domain.ResourceType) (int64, error)
}
