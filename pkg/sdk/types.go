package quotagate

import (
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	domusage "github.com/kailas-cloud/quotagate/internal/domain/usage"
)

// Resource is a metered resource type.
type Resource string

const (
	// AICall counts AI-generated text requests.
	AICall Resource = "AI_CALL"
	// VoiceSecond counts seconds of voice transcription.
	VoiceSecond Resource = "VOICE_SECOND"
)

// Decision outcomes.
const (
	OutcomeAllowed   = "allowed"
	OutcomeDenied    = "denied"
	OutcomeTransient = "transient_failure"
)

// ReserveRequest asks to consume Amount units of Resource.
type ReserveRequest struct {
	AccountID     string
	Resource      Resource
	Amount        int64
	CorrelationID string
}

// Portion is one source's share of a reservation: "plan" or a lot id.
type Portion struct {
	Source string
	Amount int64
}

// Decision is the result of Reserve.
type Decision struct {
	CorrelationID   string
	Outcome         string
	Reason          string // empty when allowed
	PlanRemaining   int64
	CreditRemaining int64
	Breakdown       []Portion
	Remediation     []string // "upgrade_plan", "buy_credit_pack", "contact_support"
	Replayed        bool
}

// Allowed reports whether the metered work may proceed.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

// Lot is a purchased credit pack.
type Lot struct {
	ID          string
	AccountID   string
	Resource    Resource
	Quantity    int64
	Remaining   int64
	PurchasedAt time.Time
	ExpiresAt   time.Time
}

// LotRequest grants a credit lot. IdempotencyKey is typically the payment id.
type LotRequest struct {
	AccountID      string
	Resource       Resource
	Quantity       int64
	ExpiresAt      time.Time
	IdempotencyKey string
}

// Balance is the remaining allowance for one account and resource.
type Balance struct {
	AccountID       string
	Resource        Resource
	Tier            string
	PendingTier     string
	CycleID         int64
	MonthlyQuota    int64
	Used            int64
	PlanRemaining   int64
	CreditRemaining int64
	ResetsAt        time.Time
	Lots            []Lot
}

func decisionFromDomain(d consumption.Decision) Decision {
	out := Decision{
		CorrelationID:   d.CorrelationID,
		Outcome:         string(d.Outcome),
		Reason:          string(d.Reason),
		PlanRemaining:   d.PlanRemaining,
		CreditRemaining: d.CreditRemaining,
		Replayed:        d.Replayed,
	}
	for _, p := range d.Breakdown {
		out.Breakdown = append(out.Breakdown, Portion{Source: p.Source, Amount: p.Amount})
	}
	for _, r := range d.Remediation {
		out.Remediation = append(out.Remediation, string(r))
	}
	return out
}

func lotFromDomain(l domlot.Lot) Lot {
	return Lot{
		ID:          l.ID(),
		AccountID:   l.AccountID(),
		Resource:    Resource(l.Resource()),
		Quantity:    l.Quantity(),
		Remaining:   l.Remaining(),
		PurchasedAt: l.PurchasedAt(),
		ExpiresAt:   l.ExpiresAt(),
	}
}

func balanceFromDomain(b domusage.Balance) Balance {
	out := Balance{
		AccountID:       b.AccountID(),
		Resource:        Resource(b.Resource()),
		Tier:            string(b.Tier()),
		PendingTier:     string(b.PendingTier()),
		CycleID:         b.CycleID(),
		MonthlyQuota:    b.MonthlyQuota(),
		Used:            b.Used(),
		PlanRemaining:   b.PlanRemaining(),
		CreditRemaining: b.CreditRemaining(),
		ResetsAt:        b.ResetsAt(),
	}
	for _, l := range b.Lots() {
		out.Lots = append(out.Lots, Lot{
			ID:        l.ID,
			AccountID: b.AccountID(),
			Resource:  Resource(b.Resource()),
			Quantity:  l.Quantity,
			Remaining: l.Remaining,
			ExpiresAt: l.ExpiresAt,
		})
	}
	return out
}
