// Package ledger persists per-(account, resource) plan counters as versioned hashes.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
)

const (
	fieldQuota = "quota"
	fieldUsed  = "used"
	fieldCycle = "cycle"
)

// defaultResetAttempts bounds CAS retries of a cycle reset racing live reservations.
const defaultResetAttempts = 16

// store is the consumer interface for ledger operations (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	CompareAndSwap(ctx context.Context, key string, expected int64, fields map[string]string) (int64, error)
}

// Repo stores ledger entries under {prefix}ledger:{account}:{resource}.
type Repo struct {
	store         store
	prefix        string
	resetAttempts int
}

// New creates a ledger repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix, resetAttempts: defaultResetAttempts}
}

// Get returns the entry, or an uninitialised entry (version 0) if none exists.
func (r *Repo) Get(ctx context.Context, accountID string, resource domain.ResourceType) (domledger.Entry, error) {
	key := r.key(accountID, resource)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domledger.Entry{}, fmt.Errorf("ledger HGETALL %s: %w", key, err)
	}
	if len(m) == 0 {
		return domledger.Empty(accountID, resource), nil
	}
	e, err := fromHash(accountID, resource, m)
	if err != nil {
		return domledger.Entry{}, fmt.Errorf("ledger decode %s: %w", key, err)
	}
	return e, nil
}

// Swap writes next if the stored version still equals next.Version().
// next must satisfy the counter invariant; it is never clamped.
// Returns the entry carrying its new version, or an error wrapping db.ErrVersionConflict.
func (r *Repo) Swap(ctx context.Context, next domledger.Entry) (domledger.Entry, error) {
	if err := next.Validate(); err != nil {
		return domledger.Entry{}, err
	}
	key := r.key(next.AccountID(), next.Resource())
	v, err := r.store.CompareAndSwap(ctx, key, next.Version(), toHash(next))
	if err != nil {
		return domledger.Entry{}, fmt.Errorf("ledger CAS %s: %w", key, err)
	}
	return domledger.Reconstruct(
		next.AccountID(), next.Resource(),
		next.MonthlyQuota(), next.Used(), next.CycleID(), v,
	), nil
}

// ApplyCycleReset starts cycleID with used=0 and quota=allowance.
// A never-written entry reports ResetInitialized, a stored older cycle
// ResetAdvanced. Re-applying the same or an older cycle is a ResetNoop.
func (r *Repo) ApplyCycleReset(
	ctx context.Context, accountID string, resource domain.ResourceType,
	allowance, cycleID int64,
) (domledger.ResetOutcome, error) {
	if allowance < 0 {
		return domledger.ResetNoop, fmt.Errorf("%w: negative allowance %d", domain.ErrInvalidRequest, allowance)
	}
	for attempt := 0; attempt < r.resetAttempts; attempt++ {
		cur, err := r.Get(ctx, accountID, resource)
		if err != nil {
			return domledger.ResetNoop, err
		}
		if cur.CycleID() >= cycleID {
			return domledger.ResetNoop, nil
		}
		_, err = r.Swap(ctx, cur.Reset(allowance, cycleID))
		if err == nil {
			if !cur.Initialized() {
				return domledger.ResetInitialized, nil
			}
			return domledger.ResetAdvanced, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return domledger.ResetNoop, err
		}
		if ctx.Err() != nil {
			return domledger.ResetNoop, ctx.Err()
		}
	}
	return domledger.ResetNoop, fmt.Errorf("ledger reset %s: %w", r.key(accountID, resource), domain.ErrContention)
}

func (r *Repo) key(accountID string, resource domain.ResourceType) string {
	return fmt.Sprintf("%sledger:%s:%s", r.prefix, accountID, resource)
}

func toHash(e domledger.Entry) map[string]string {
	return map[string]string{
		fieldQuota: strconv.FormatInt(e.MonthlyQuota(), 10),
		fieldUsed:  strconv.FormatInt(e.Used(), 10),
		fieldCycle: strconv.FormatInt(e.CycleID(), 10),
	}
}

func fromHash(accountID string, resource domain.ResourceType, m map[string]string) (domledger.Entry, error) {
	var vals [4]int64
	for i, f := range []string{fieldQuota, fieldUsed, fieldCycle, db.VersionField} {
		n, err := strconv.ParseInt(m[f], 10, 64)
		if err != nil {
			return domledger.Entry{}, fmt.Errorf("field %s: %w", f, err)
		}
		vals[i] = n
	}
	return domledger.Reconstruct(accountID, resource, vals[0], vals[1], vals[2], vals[3]), nil
}
