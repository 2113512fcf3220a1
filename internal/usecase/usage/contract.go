package usage

import (
	"context"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

// AccountReader looks up registered accounts.
type AccountReader interface {
	Get(ctx context.Context, id string) (domaccount.Account, error)
}

// LedgerReader provides read-only access to plan counters.
type LedgerReader interface {
	Get(ctx context.Context, accountID string, resource domain.ResourceType) (domledger.Entry, error)
}

// LotReader lists usable credit lots.
type LotReader interface {
	ListActive(ctx context.Context, accountID string, resource domain.ResourceType, now time.Time) ([]domlot.Lot, error)
}

// PlanCatalog resolves tier allowances.
type PlanCatalog interface {
	Allowance(tier plan.Tier, resource domain.ResourceType) (int64, error)
}

// HistorySource queries recorded reservations.
type HistorySource interface {
	Query(ctx context.Context, accountID string, from, to time.Time) ([]consumption.Record, error)
}
