// Package account models a billable subscriber.
package account

import (
	"fmt"
	"regexp"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

var idRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// Status is the account lifecycle state.
type Status string

const (
	// StatusActive accounts may reserve quota.
	StatusActive Status = "active"
	// StatusSuspended accounts are denied every reservation.
	StatusSuspended Status = "suspended"
)

// IsValid checks if the status is supported.
func (s Status) IsValid() bool {
	return s == StatusActive || s == StatusSuspended
}

// Account is a subscriber with one active plan tier and an optional pending change.
type Account struct {
	id          string
	tier        plan.Tier
	pendingTier plan.Tier
	anchor      time.Time
	status      Status
	version     int64
}

// New validates and creates an active Account.
// ID: ^[a-zA-Z0-9_.-]+$, 1-128 chars.
func New(id string, tier plan.Tier, anchor time.Time) (Account, error) {
	if id == "" {
		return Account{}, fmt.Errorf("account id is required")
	}
	if len(id) > 128 {
		return Account{}, fmt.Errorf("account id too long (max 128)")
	}
	if !idRegex.MatchString(id) {
		return Account{}, fmt.Errorf("account id must be alphanumeric with dots, underscores and hyphens")
	}
	if tier == "" {
		return Account{}, fmt.Errorf("plan tier is required")
	}
	if anchor.IsZero() {
		return Account{}, fmt.Errorf("billing cycle anchor is required")
	}
	return Account{
		id:     id,
		tier:   tier,
		anchor: anchor.UTC(),
		status: StatusActive,
	}, nil
}

// Reconstruct creates an Account without validation (storage hydration).
func Reconstruct(
	id string, tier, pendingTier plan.Tier,
	anchor time.Time, status Status, version int64,
) Account {
	return Account{
		id:          id,
		tier:        tier,
		pendingTier: pendingTier,
		anchor:      anchor.UTC(),
		status:      status,
		version:     version,
	}
}

// ID returns the account id.
func (a Account) ID() string { return a.id }

// Tier returns the plan tier currently in force.
func (a Account) Tier() plan.Tier { return a.tier }

// PendingTier returns the tier scheduled for the next cycle boundary, or "".
func (a Account) PendingTier() plan.Tier { return a.pendingTier }

// EffectiveTier is the tier a reset at the next boundary would apply.
func (a Account) EffectiveTier() plan.Tier {
	if a.pendingTier != "" {
		return a.pendingTier
	}
	return a.tier
}

// Anchor returns the billing-cycle anchor date.
func (a Account) Anchor() time.Time { return a.anchor }

// Status returns the lifecycle state.
func (a Account) Status() Status { return a.status }

// Version returns the optimistic concurrency version.
func (a Account) Version() int64 { return a.version }

// IsActive reports whether reservations are allowed.
func (a Account) IsActive() bool { return a.status == StatusActive }

// WithPendingTier returns a copy carrying a SetPlanEvent for the next boundary.
// Setting the current tier clears any pending change.
func (a Account) WithPendingTier(t plan.Tier) Account {
	if t == a.tier {
		a.pendingTier = ""
		return a
	}
	a.pendingTier = t
	return a
}

// PromotePending applies the pending tier. No-op without a pending change.
func (a Account) PromotePending() Account {
	if a.pendingTier == "" {
		return a
	}
	a.tier = a.pendingTier
	a.pendingTier = ""
	return a
}

// WithStatus returns a copy with the given status.
func (a Account) WithStatus(s Status) Account {
	a.status = s
	return a
}
