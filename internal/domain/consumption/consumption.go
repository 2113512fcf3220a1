// Package consumption holds reservation decisions and the append-only records behind them.
package consumption

import (
	"fmt"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
)

// SourcePlan marks a portion drawn from the plan allowance. Other sources are lot ids.
const SourcePlan = "plan"

// Outcome is the result class of a reservation.
type Outcome string

const (
	// OutcomeAllowed means quota was deducted and the caller may proceed.
	OutcomeAllowed Outcome = "allowed"
	// OutcomeDenied means nothing was deducted.
	OutcomeDenied Outcome = "denied"
	// OutcomeTransient means contention prevented a decision; retrying is safe.
	OutcomeTransient Outcome = "transient_failure"
)

// Reason explains a denial.
type Reason string

const (
	// ReasonNone accompanies allowed decisions.
	ReasonNone Reason = ""
	// ReasonQuotaExhausted means plan and credit could not cover the amount.
	ReasonQuotaExhausted Reason = "quota_exhausted"
	// ReasonUnknownPlan means the account's tier is missing from the catalog.
	ReasonUnknownPlan Reason = "unknown_plan"
	// ReasonUnknownAccount means the account is not registered.
	ReasonUnknownAccount Reason = "unknown_account"
	// ReasonAccountSuspended means the account may not consume quota.
	ReasonAccountSuspended Reason = "account_suspended"
)

// Err returns the domain sentinel for a denial reason, or nil for ReasonNone.
func (r Reason) Err() error {
	switch r {
	case ReasonNone:
		return nil
	case ReasonQuotaExhausted:
		return domain.ErrQuotaExhausted
	case ReasonUnknownPlan:
		return domain.ErrUnknownPlan
	case ReasonUnknownAccount:
		return domain.ErrUnknownAccount
	case ReasonAccountSuspended:
		return domain.ErrAccountSuspended
	default:
		return fmt.Errorf("denied: %s", string(r))
	}
}

// Remediation is a hint surfaced to end users on denial.
type Remediation string

const (
	// RemediationUpgradePlan suggests a higher tier.
	RemediationUpgradePlan Remediation = "upgrade_plan"
	// RemediationBuyCreditPack suggests purchasing an overage pack.
	RemediationBuyCreditPack Remediation = "buy_credit_pack"
	// RemediationContactSupport is for configuration or account problems.
	RemediationContactSupport Remediation = "contact_support"
)

// RemediationsFor returns the hints for a denial reason.
func RemediationsFor(r Reason) []Remediation {
	switch r {
	case ReasonQuotaExhausted:
		return []Remediation{RemediationUpgradePlan, RemediationBuyCreditPack}
	case ReasonUnknownPlan, ReasonUnknownAccount, ReasonAccountSuspended:
		return []Remediation{RemediationContactSupport}
	default:
		return nil
	}
}

// Portion is one source's share of a reservation.
// CycleID is set for plan portions so a release after rollover can be detected.
type Portion struct {
	Source  string `json:"source"`
	Amount  int64  `json:"amount"`
	CycleID int64  `json:"cycle_id,omitempty"`
}

// IsPlan reports whether the portion came from plan allowance.
func (p Portion) IsPlan() bool { return p.Source == SourcePlan }

// Record is the append-only audit entry of one decided reservation.
type Record struct {
	CorrelationID   string
	AccountID       string
	Resource        domain.ResourceType
	Amount          int64
	Breakdown       []Portion
	Outcome         Outcome
	Reason          Reason
	PlanRemaining   int64
	CreditRemaining int64
	CreatedAt       time.Time
	// ReleasedAt is populated from the release marker on read.
	ReleasedAt *time.Time
}

// Status is allowed, denied, or released.
type Status string

const (
	// StatusAllowed is an unreleased successful reservation.
	StatusAllowed Status = "allowed"
	// StatusDenied is a recorded denial.
	StatusDenied Status = "denied"
	// StatusReleased is a successful reservation that was credited back.
	StatusReleased Status = "released"
)

// Status derives the record status from outcome and release marker.
func (r Record) Status() Status {
	switch {
	case r.Outcome == OutcomeDenied:
		return StatusDenied
	case r.ReleasedAt != nil:
		return StatusReleased
	default:
		return StatusAllowed
	}
}

// Matches reports whether a replayed request carries the same arguments.
func (r Record) Matches(accountID string, resource domain.ResourceType, amount int64) bool {
	return r.AccountID == accountID && r.Resource == resource && r.Amount == amount
}

// Decision is the reservation result returned to callers.
type Decision struct {
	CorrelationID   string
	Outcome         Outcome
	Reason          Reason
	PlanRemaining   int64
	CreditRemaining int64
	Breakdown       []Portion
	Remediation     []Remediation
	// Replayed is true when the decision came from an existing record.
	Replayed bool
}

// Allowed reports whether the caller may perform the metered operation.
func (d Decision) Allowed() bool { return d.Outcome == OutcomeAllowed }

// Transient returns the decision for exhausted optimistic retries.
func Transient(correlationID string) Decision {
	return Decision{CorrelationID: correlationID, Outcome: OutcomeTransient}
}

// DecisionFrom builds the caller-facing decision for a stored record.
func DecisionFrom(r Record, replayed bool) Decision {
	return Decision{
		CorrelationID:   r.CorrelationID,
		Outcome:         r.Outcome,
		Reason:          r.Reason,
		PlanRemaining:   r.PlanRemaining,
		CreditRemaining: r.CreditRemaining,
		Breakdown:       r.Breakdown,
		Remediation:     RemediationsFor(r.Reason),
		Replayed:        replayed,
	}
}

// ReleaseOutcome is the result of a release call.
type ReleaseOutcome string

const (
	// ReleaseReleased means the recorded portions were credited back.
	ReleaseReleased ReleaseOutcome = "released"
	// ReleaseAlreadyReleased means a previous release already won.
	ReleaseAlreadyReleased ReleaseOutcome = "already_released"
	// ReleaseUnknown means there was nothing to release (unknown id or a denial).
	ReleaseUnknown ReleaseOutcome = "unknown"
)
