// Package ledger models the per-account, per-resource plan allowance counter.
package ledger

import (
	"github.com/kailas-cloud/quotagate/internal/domain"
)

// ResetOutcome says what a cycle reset did to an entry.
type ResetOutcome string

const (
	// ResetNoop: the entry already holds the target cycle or a later one.
	ResetNoop ResetOutcome = "noop"
	// ResetInitialized: the entry had never been written and now starts the current cycle.
	ResetInitialized ResetOutcome = "initialized"
	// ResetAdvanced: a stored cycle was crossed. Only this outcome marks a billing boundary.
	ResetAdvanced ResetOutcome = "advanced"
)

// Entry is a snapshot of one (account, resource) counter.
// Invariant: 0 <= used <= monthlyQuota.
type Entry struct {
	accountID    string
	resource     domain.ResourceType
	monthlyQuota int64
	used         int64
	cycleID      int64
	version      int64
}

// Reconstruct creates an Entry without validation (storage hydration).
func Reconstruct(
	accountID string, resource domain.ResourceType,
	monthlyQuota, used, cycleID, version int64,
) Entry {
	return Entry{
		accountID:    accountID,
		resource:     resource,
		monthlyQuota: monthlyQuota,
		used:         used,
		cycleID:      cycleID,
		version:      version,
	}
}

// Empty returns the zero entry for a key that has never been written.
func Empty(accountID string, resource domain.ResourceType) Entry {
	return Entry{accountID: accountID, resource: resource}
}

// AccountID returns the owning account.
func (e Entry) AccountID() string { return e.accountID }

// Resource returns the metered resource.
func (e Entry) Resource() domain.ResourceType { return e.resource }

// MonthlyQuota returns the allowance for the current cycle.
func (e Entry) MonthlyQuota() int64 { return e.monthlyQuota }

// Used returns the amount consumed this cycle.
func (e Entry) Used() int64 { return e.used }

// CycleID returns the cycle the counters belong to. 0 means never initialised.
func (e Entry) CycleID() int64 { return e.cycleID }

// Version returns the compare-and-swap token.
func (e Entry) Version() int64 { return e.version }

// Initialized reports whether a cycle reset has ever been applied.
func (e Entry) Initialized() bool { return e.cycleID > 0 }

// Available returns max(0, quota - used).
func (e Entry) Available() int64 {
	if r := e.monthlyQuota - e.used; r > 0 {
		return r
	}
	return 0
}

// Validate checks the counter invariant.
func (e Entry) Validate() error {
	if e.used < 0 {
		return domain.NewInvariantViolation("plan", e.key(), e.used, 0)
	}
	if e.used > e.monthlyQuota {
		return domain.NewInvariantViolation("plan", e.key(), e.used, e.monthlyQuota)
	}
	return nil
}

// Consume returns the entry with used increased by delta (negative to credit back).
// The result is rejected, never clamped, when it would leave [0, quota].
func (e Entry) Consume(delta int64) (Entry, error) {
	next := e
	next.used += delta
	if err := next.Validate(); err != nil {
		return Entry{}, err
	}
	return next, nil
}

// Reset returns the entry for a fresh cycle.
func (e Entry) Reset(allowance, cycleID int64) Entry {
	next := e
	next.used = 0
	next.monthlyQuota = allowance
	next.cycleID = cycleID
	return next
}

func (e Entry) key() string {
	return e.accountID + "/" + string(e.resource)
}
