package chi

import (
	"time"

	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	domusage "github.com/kailas-cloud/quotagate/internal/domain/usage"
)

// Error codes returned in ErrorResponse.Code.
const (
	codeBadRequest          = "bad_request"
	codeValidationFailed    = "validation_failed"
	codeUnauthorized        = "unauthorized"
	codeNotFound            = "not_found"
	codeForbidden           = "forbidden"
	codeIdempotencyConflict = "idempotency_conflict"
	codeInvariantViolation  = "invariant_violation"
	codeContention          = "contention"
	codeInternalError       = "internal_error"
)

// ErrorResponse is the JSON body of every non-2xx response except reservation decisions.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ReserveRequest is the body of POST /v1/reservations.
type ReserveRequest struct {
	AccountID     string `json:"account_id" validate:"required,max=128"`
	Resource      string `json:"resource" validate:"required,oneof=AI_CALL VOICE_SECOND"`
	Amount        int64  `json:"amount" validate:"gt=0"`
	CorrelationID string `json:"correlation_id" validate:"required,max=256"`
}

// PortionResponse is one source's share of a reservation.
type PortionResponse struct {
	Source string `json:"source"`
	Amount int64  `json:"amount"`
}

// DecisionResponse is the reservation decision.
type DecisionResponse struct {
	CorrelationID   string            `json:"correlation_id"`
	Outcome         string            `json:"outcome"`
	Reason          string            `json:"reason,omitempty"`
	PlanRemaining   int64             `json:"plan_remaining"`
	CreditRemaining int64             `json:"credit_remaining"`
	Breakdown       []PortionResponse `json:"breakdown"`
	Remediation     []string          `json:"remediation,omitempty"`
	Replayed        bool              `json:"replayed"`
}

// ReleaseResponse is the result of POST /v1/reservations/{id}/release.
type ReleaseResponse struct {
	CorrelationID string `json:"correlation_id"`
	Outcome       string `json:"outcome"`
}

// CreateLotRequest is the body of POST /v1/lots.
type CreateLotRequest struct {
	AccountID string    `json:"account_id" validate:"required,max=128"`
	Resource  string    `json:"resource" validate:"required,oneof=AI_CALL VOICE_SECOND"`
	Quantity  int64     `json:"quantity" validate:"gt=0"`
	ExpiresAt time.Time `json:"expires_at" validate:"required"`
}

// LotResponse describes a credit lot.
type LotResponse struct {
	ID          string    `json:"id"`
	AccountID   string    `json:"account_id"`
	Resource    string    `json:"resource"`
	Quantity    int64     `json:"quantity"`
	Remaining   int64     `json:"remaining"`
	PurchasedAt time.Time `json:"purchased_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	Status      string    `json:"status"`
}

// UpsertAccountRequest is the body of PUT /v1/accounts/{id}.
type UpsertAccountRequest struct {
	Tier   string    `json:"tier" validate:"required,max=64"`
	Anchor time.Time `json:"anchor" validate:"required"`
	Status string    `json:"status,omitempty" validate:"omitempty,oneof=active suspended"`
}

// SetPlanRequest is the body of POST /v1/accounts/{id}/plan.
type SetPlanRequest struct {
	Tier string `json:"tier" validate:"required,max=64"`
}

// AccountResponse describes an account.
type AccountResponse struct {
	ID          string    `json:"id"`
	Tier        string    `json:"tier"`
	PendingTier string    `json:"pending_tier,omitempty"`
	Anchor      time.Time `json:"anchor"`
	Status      string    `json:"status"`
}

// LotBalanceResponse is one active lot in a balance.
type LotBalanceResponse struct {
	ID        string    `json:"id"`
	Quantity  int64     `json:"quantity"`
	Remaining int64     `json:"remaining"`
	ExpiresAt time.Time `json:"expires_at"`
}

// BalanceResponse is the dashboard view of one resource.
type BalanceResponse struct {
	AccountID       string               `json:"account_id"`
	Resource        string               `json:"resource"`
	Tier            string               `json:"tier"`
	PendingTier     string               `json:"pending_tier,omitempty"`
	CycleID         int64                `json:"cycle_id"`
	MonthlyQuota    int64                `json:"monthly_quota"`
	Used            int64                `json:"used"`
	PlanRemaining   int64                `json:"plan_remaining"`
	CreditRemaining int64                `json:"credit_remaining"`
	ResetsAt        time.Time            `json:"resets_at"`
	Lots            []LotBalanceResponse `json:"lots"`
}

// UsageRecordResponse is one recorded reservation.
type UsageRecordResponse struct {
	CorrelationID string            `json:"correlation_id"`
	Resource      string            `json:"resource"`
	Amount        int64             `json:"amount"`
	Status        string            `json:"status"`
	Reason        string            `json:"reason,omitempty"`
	Breakdown     []PortionResponse `json:"breakdown"`
	CreatedAt     time.Time         `json:"created_at"`
	ReleasedAt    *time.Time        `json:"released_at,omitempty"`
}

// UsageSummaryResponse totals a usage window.
type UsageSummaryResponse struct {
	Allowed  int              `json:"allowed"`
	Denied   int              `json:"denied"`
	Released int              `json:"released"`
	Units    map[string]int64 `json:"units"`
}

// UsageResponse is the body of GET /v1/accounts/{id}/usage.
type UsageResponse struct {
	AccountID string                `json:"account_id"`
	Records   []UsageRecordResponse `json:"records"`
	Summary   UsageSummaryResponse  `json:"summary"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func portionsToResponse(ps []consumption.Portion) []PortionResponse {
	out := make([]PortionResponse, len(ps))
	for i, p := range ps {
		out[i] = PortionResponse{Source: p.Source, Amount: p.Amount}
	}
	return out
}

func decisionToResponse(d consumption.Decision) DecisionResponse {
	var hints []string
	for _, h := range d.Remediation {
		hints = append(hints, string(h))
	}
	return DecisionResponse{
		CorrelationID:   d.CorrelationID,
		Outcome:         string(d.Outcome),
		Reason:          string(d.Reason),
		PlanRemaining:   d.PlanRemaining,
		CreditRemaining: d.CreditRemaining,
		Breakdown:       portionsToResponse(d.Breakdown),
		Remediation:     hints,
		Replayed:        d.Replayed,
	}
}

func lotToResponse(l domlot.Lot) LotResponse {
	return LotResponse{
		ID:          l.ID(),
		AccountID:   l.AccountID(),
		Resource:    string(l.Resource()),
		Quantity:    l.Quantity(),
		Remaining:   l.Remaining(),
		PurchasedAt: l.PurchasedAt().UTC(),
		ExpiresAt:   l.ExpiresAt().UTC(),
		Status:      string(l.Status()),
	}
}

func accountToResponse(a domaccount.Account) AccountResponse {
	return AccountResponse{
		ID:          a.ID(),
		Tier:        string(a.Tier()),
		PendingTier: string(a.PendingTier()),
		Anchor:      a.Anchor().UTC(),
		Status:      string(a.Status()),
	}
}

func balanceToResponse(b domusage.Balance) BalanceResponse {
	lots := make([]LotBalanceResponse, len(b.Lots()))
	for i, l := range b.Lots() {
		lots[i] = LotBalanceResponse{
			ID:        l.ID,
			Quantity:  l.Quantity,
			Remaining: l.Remaining,
			ExpiresAt: l.ExpiresAt.UTC(),
		}
	}
	return BalanceResponse{
		AccountID:       b.AccountID(),
		Resource:        string(b.Resource()),
		Tier:            string(b.Tier()),
		PendingTier:     string(b.PendingTier()),
		CycleID:         b.CycleID(),
		MonthlyQuota:    b.MonthlyQuota(),
		Used:            b.Used(),
		PlanRemaining:   b.PlanRemaining(),
		CreditRemaining: b.CreditRemaining(),
		ResetsAt:        b.ResetsAt().UTC(),
		Lots:            lots,
	}
}

func usageToResponse(accountID string, recs []consumption.Record, sum domusage.Summary) UsageResponse {
	items := make([]UsageRecordResponse, len(recs))
	for i, r := range recs {
		items[i] = UsageRecordResponse{
			CorrelationID: r.CorrelationID,
			Resource:      string(r.Resource),
			Amount:        r.Amount,
			Status:        string(r.Status()),
			Reason:        string(r.Reason),
			Breakdown:     portionsToResponse(r.Breakdown),
			CreatedAt:     r.CreatedAt.UTC(),
			ReleasedAt:    r.ReleasedAt,
		}
	}
	units := make(map[string]int64, len(sum.Units))
	for res, n := range sum.Units {
		units[string(res)] = n
	}
	return UsageResponse{
		AccountID: accountID,
		Records:   items,
		Summary: UsageSummaryResponse{
			Allowed:  sum.Allowed,
			Denied:   sum.Denied,
			Released: sum.Released,
			Units:    units,
		},
	}
}
