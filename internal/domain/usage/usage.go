// Package usage holds read-only views of quota consumption for dashboards.
package usage

import (
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

// LotBalance is one active credit lot in a balance.
type LotBalance struct {
	ID        string
	Quantity  int64
	Remaining int64
	ExpiresAt time.Time
}

// Balance is a point-in-time snapshot of plan and credit for one resource.
// It is never used for enforcement.
type Balance struct {
	accountID    string
	resource     domain.ResourceType
	tier         plan.Tier
	pendingTier  plan.Tier
	cycleID      int64
	monthlyQuota int64
	used         int64
	resetsAt     time.Time
	lots         []LotBalance
}

// NewBalance creates a balance snapshot.
func NewBalance(
	accountID string, resource domain.ResourceType, tier, pendingTier plan.Tier,
	cycleID, monthlyQuota, used int64, resetsAt time.Time, lots []LotBalance,
) Balance {
	return Balance{
		accountID:    accountID,
		resource:     resource,
		tier:         tier,
		pendingTier:  pendingTier,
		cycleID:      cycleID,
		monthlyQuota: monthlyQuota,
		used:         used,
		resetsAt:     resetsAt,
		lots:         lots,
	}
}

// AccountID returns the account id.
func (b Balance) AccountID() string { return b.accountID }

// Resource returns the resource type.
func (b Balance) Resource() domain.ResourceType { return b.resource }

// Tier returns the current plan tier.
func (b Balance) Tier() plan.Tier { return b.tier }

// PendingTier returns the tier that takes effect at ResetsAt, if any.
func (b Balance) PendingTier() plan.Tier { return b.pendingTier }

// CycleID returns the billing cycle the snapshot describes.
func (b Balance) CycleID() int64 { return b.cycleID }

// MonthlyQuota returns the cycle allowance.
func (b Balance) MonthlyQuota() int64 { return b.monthlyQuota }

// Used returns units consumed from the plan this cycle.
func (b Balance) Used() int64 { return b.used }

// ResetsAt returns the next cycle boundary.
func (b Balance) ResetsAt() time.Time { return b.resetsAt }

// Lots returns active lots, soonest-expiring first.
func (b Balance) Lots() []LotBalance { return b.lots }

// PlanRemaining returns max(0, quota - used).
func (b Balance) PlanRemaining() int64 {
	if r := b.monthlyQuota - b.used; r > 0 {
		return r
	}
	return 0
}

// CreditRemaining returns the sum of remaining units over active lots.
func (b Balance) CreditRemaining() int64 {
	var n int64
	for _, l := range b.lots {
		n += l.Remaining
	}
	return n
}

// Summary totals a usage history window.
type Summary struct {
	Allowed  int
	Denied   int
	Released int
	// Units counts units of unreleased allowed reservations, per resource.
	Units map[domain.ResourceType]int64
}

// Summarize totals records by status.
func Summarize(recs []consumption.Record) Summary {
	s := Summary{Units: make(map[domain.ResourceType]int64)}
	for _, r := range recs {
		switch r.Status() {
		case consumption.StatusAllowed:
			s.Allowed++
			s.Units[r.Resource] += r.Amount
		case consumption.StatusDenied:
			s.Denied++
		case consumption.StatusReleased:
			s.Released++
		}
	}
	return s
}
