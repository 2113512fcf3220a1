package account

import (
	"context"

	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

// Repository persists the account registry.
type Repository interface {
	Get(ctx context.Context, id string) (domaccount.Account, error)
	Save(ctx context.Context, a domaccount.Account) (domaccount.Account, error)
	Update(ctx context.Context, id string, fn func(domaccount.Account) (domaccount.Account, error)) (domaccount.Account, error)
	List(ctx context.Context) ([]domaccount.Account, error)
}

// PlanCatalog reports configured tiers.
type PlanCatalog interface {
	Has(tier plan.Tier) bool
}
