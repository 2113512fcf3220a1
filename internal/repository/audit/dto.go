package audit

import (
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
)

// recordJSON is the stored form of a consumption record.
type recordJSON struct {
	CorrelationID   string                `json:"correlation_id"`
	AccountID       string                `json:"account_id"`
	Resource        string                `json:"resource"`
	Amount          int64                 `json:"amount"`
	Breakdown       []consumption.Portion `json:"breakdown"`
	Outcome         string                `json:"outcome"`
	Reason          string                `json:"reason,omitempty"`
	PlanRemaining   int64                 `json:"plan_remaining"`
	CreditRemaining int64                 `json:"credit_remaining"`
	CreatedAtMs     int64                 `json:"created_at_ms"`
}

func recordToJSON(r consumption.Record) recordJSON {
	return recordJSON{
		CorrelationID:   r.CorrelationID,
		AccountID:       r.AccountID,
		Resource:        string(r.Resource),
		Amount:          r.Amount,
		Breakdown:       r.Breakdown,
		Outcome:         string(r.Outcome),
		Reason:          string(r.Reason),
		PlanRemaining:   r.PlanRemaining,
		CreditRemaining: r.CreditRemaining,
		CreatedAtMs:     r.CreatedAt.UnixMilli(),
	}
}

func recordFromJSON(j recordJSON) consumption.Record {
	return consumption.Record{
		CorrelationID:   j.CorrelationID,
		AccountID:       j.AccountID,
		Resource:        domain.ResourceType(j.Resource),
		Amount:          j.Amount,
		Breakdown:       j.Breakdown,
		Outcome:         consumption.Outcome(j.Outcome),
		Reason:          consumption.Reason(j.Reason),
		PlanRemaining:   j.PlanRemaining,
		CreditRemaining: j.CreditRemaining,
		CreatedAt:       time.UnixMilli(j.CreatedAtMs).UTC(),
	}
}
