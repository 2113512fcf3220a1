package enforcer

import (
	"context"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
	"github.com/kailas-cloud/quotagate/internal/repository/lease"
)

// LedgerStore reads and conditionally writes plan counters.
type LedgerStore interface {
	Get(ctx context.Context, accountID string, resource domain.ResourceType) (domledger.Entry, error)
	Swap(ctx context.Context, next domledger.Entry) (domledger.Entry, error)
}

// LotStore reads and conditionally writes credit lots.
type LotStore interface {
	ListActive(ctx context.Context, accountID string, resource domain.ResourceType, now time.Time) ([]domlot.Lot, error)
	Get(ctx context.Context, id string) (domlot.Lot, error)
	Swap(ctx context.Context, l domlot.Lot) (domlot.Lot, error)
}

// AuditLog is the append-only record of decisions and releases.
type AuditLog interface {
	Append(ctx context.Context, rec consumption.Record) (consumption.Record, bool, error)
	Get(ctx context.Context, correlationID string) (consumption.Record, error)
	AppendRelease(ctx context.Context, correlationID string, at time.Time) (bool, error)
}

// AccountReader looks up registered accounts.
type AccountReader interface {
	Get(ctx context.Context, id string) (domaccount.Account, error)
}

// PlanCatalog resolves tier allowances.
type PlanCatalog interface {
	Allowance(tier plan.Tier, resource domain.ResourceType) (int64, error)
}

// ClaimStore serializes first attempts of one correlation id.
type ClaimStore interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (lease.Claim, bool, error)
	Release(ctx context.Context, c lease.Claim) error
}

// Mirror receives a best-effort copy of every record (e.g. Postgres).
type Mirror interface {
	Record(ctx context.Context, rec consumption.Record) error
	Release(ctx context.Context, correlationID string, at time.Time) error
}
