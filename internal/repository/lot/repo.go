// Package lot persists credit lots with per-account expiry ordering.
//
// Keys:
//
//	{prefix}lot:{id}                   hash, versioned
//	{prefix}lots:{account}:{resource}  zset of lot ids scored by expires_at (ms)
//	{prefix}lots:expiry                zset of active lot ids scored by expires_at (ms)
//	{prefix}lot-key:{account}:{key}    string holding the lot id
package lot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
)

const (
	fieldAccount   = "account"
	fieldResource  = "resource"
	fieldQuantity  = "quantity"
	fieldRemaining = "remaining"
	fieldPurchased = "purchased_at"
	fieldExpires   = "expires_at"
	fieldStatus    = "status"
	fieldKey       = "idempotency_key"
)

// store is the consumer interface for lot operations (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	CompareAndSwap(ctx context.Context, key string, expected int64, fields map[string]string) (int64, error)
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64, limit int) ([]string, error)
	ZRem(ctx context.Context, key string, member string) error
}

// Repo stores credit lots.
type Repo struct {
	store  store
	prefix string
}

// New creates a lot repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Create stores l unless the account already used its idempotency key.
// A duplicate returns the lot created first and created=false, or
// domain.ErrIdempotencyConflict if that lot is for another resource.
func (r *Repo) Create(ctx context.Context, l domlot.Lot) (domlot.Lot, bool, error) {
	idemKey := r.idemKey(l.AccountID(), l.IdempotencyKey())
	won, err := r.store.SetNX(ctx, idemKey, []byte(l.ID()), 0)
	if err != nil {
		return domlot.Lot{}, false, fmt.Errorf("lot SETNX %s: %w", idemKey, err)
	}

	if !won {
		raw, err := r.store.Get(ctx, idemKey)
		if err != nil {
			return domlot.Lot{}, false, fmt.Errorf("lot GET %s: %w", idemKey, err)
		}
		existing, err := r.Get(ctx, string(raw))
		if err == nil {
			if existing.Resource() != l.Resource() {
				return domlot.Lot{}, false, fmt.Errorf("lot key %q already credited %s: %w",
					l.IdempotencyKey(), existing.Resource(), domain.ErrIdempotencyConflict)
			}
			// Re-index in case the first writer stopped between HSET and ZADD.
			if err := r.index(ctx, existing); err != nil {
				return domlot.Lot{}, false, err
			}
			return existing, false, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			return domlot.Lot{}, false, err
		}
		// The first writer claimed the key but never stored the hash: finish under its id.
		l = domlot.Reconstruct(
			string(raw), l.AccountID(), l.Resource(), l.Quantity(), l.Remaining(),
			l.PurchasedAt(), l.ExpiresAt(), l.Status(), l.IdempotencyKey(), 0,
		)
	}

	stored, err := r.write(ctx, l)
	if errors.Is(err, db.ErrVersionConflict) {
		// A concurrent duplicate finished first.
		existing, gerr := r.Get(ctx, l.ID())
		if gerr != nil {
			return domlot.Lot{}, false, gerr
		}
		return existing, false, nil
	}
	if err != nil {
		return domlot.Lot{}, false, err
	}
	return stored, true, nil
}

func (r *Repo) write(ctx context.Context, l domlot.Lot) (domlot.Lot, error) {
	stored, err := r.Swap(ctx, l)
	if err != nil {
		return domlot.Lot{}, err
	}
	if err := r.index(ctx, stored); err != nil {
		return domlot.Lot{}, err
	}
	return stored, nil
}

func (r *Repo) index(ctx context.Context, l domlot.Lot) error {
	if l.Status() == domlot.StatusExpired {
		return nil
	}
	score := float64(l.ExpiresAt().UnixMilli())
	if err := r.store.ZAdd(ctx, r.accountIndex(l.AccountID(), l.Resource()), score, l.ID()); err != nil {
		return fmt.Errorf("lot ZADD account index: %w", err)
	}
	if err := r.store.ZAdd(ctx, r.expiryIndex(), score, l.ID()); err != nil {
		return fmt.Errorf("lot ZADD expiry index: %w", err)
	}
	return nil
}

// Get returns the lot or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (domlot.Lot, error) {
	key := r.lotKey(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domlot.Lot{}, fmt.Errorf("lot HGETALL %s: %w", key, err)
	}
	if len(m) == 0 {
		return domlot.Lot{}, fmt.Errorf("lot %s: %w", id, domain.ErrNotFound)
	}
	return fromHash(id, m)
}

// ListActive returns lots usable at now, soonest-expiring first.
// Expiry is filtered here at read time, regardless of sweep progress.
// Equal expiry falls back to id order, which is creation order for TypeIDs.
func (r *Repo) ListActive(
	ctx context.Context, accountID string, resource domain.ResourceType, now time.Time,
) ([]domlot.Lot, error) {
	idx := r.accountIndex(accountID, resource)
	ids, err := r.store.ZRangeByScore(ctx, idx, float64(now.UnixMilli()+1), math.Inf(1), 0)
	if err != nil {
		return nil, fmt.Errorf("lot ZRANGEBYSCORE %s: %w", idx, err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.lotKey(id)
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("lot HGETALL multi: %w", err)
	}

	out := make([]domlot.Lot, 0, len(ids))
	for i, m := range hashes {
		if len(m) == 0 {
			continue
		}
		l, err := fromHash(ids[i], m)
		if err != nil {
			return nil, err
		}
		if l.Usable(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

// Swap writes l if the stored version still equals l.Version().
// Returns the lot with its new version or an error wrapping db.ErrVersionConflict.
func (r *Repo) Swap(ctx context.Context, l domlot.Lot) (domlot.Lot, error) {
	if l.Remaining() < 0 || l.Remaining() > l.Quantity() {
		return domlot.Lot{}, domain.NewInvariantViolation("lot", l.ID(), l.Remaining(), l.Quantity())
	}
	key := r.lotKey(l.ID())
	v, err := r.store.CompareAndSwap(ctx, key, l.Version(), toHash(l))
	if err != nil {
		return domlot.Lot{}, fmt.Errorf("lot CAS %s: %w", key, err)
	}
	return domlot.Reconstruct(
		l.ID(), l.AccountID(), l.Resource(), l.Quantity(), l.Remaining(),
		l.PurchasedAt(), l.ExpiresAt(), l.Status(), l.IdempotencyKey(), v,
	), nil
}

// ExpiredIDs returns up to limit lot ids whose expires_at is before now.
func (r *Repo) ExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := r.store.ZRangeByScore(ctx, r.expiryIndex(), math.Inf(-1), float64(now.UnixMilli()-1), limit)
	if err != nil {
		return nil, fmt.Errorf("lot ZRANGEBYSCORE expiry: %w", err)
	}
	return ids, nil
}

// MarkExpired sets status=expired and drops the lot from both indexes.
// Reports false if the lot was already expired or is gone.
func (r *Repo) MarkExpired(ctx context.Context, id string) (bool, error) {
	const attempts = 8
	for i := 0; i < attempts; i++ {
		l, err := r.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return false, r.store.ZRem(ctx, r.expiryIndex(), id)
		}
		if err != nil {
			return false, err
		}

		changed := false
		if l.Status() != domlot.StatusExpired {
			if _, err := r.Swap(ctx, l.Expire()); err != nil {
				if errors.Is(err, db.ErrVersionConflict) {
					continue
				}
				return false, err
			}
			changed = true
		}
		if err := r.store.ZRem(ctx, r.accountIndex(l.AccountID(), l.Resource()), id); err != nil {
			return changed, fmt.Errorf("lot ZREM account index: %w", err)
		}
		if err := r.store.ZRem(ctx, r.expiryIndex(), id); err != nil {
			return changed, fmt.Errorf("lot ZREM expiry index: %w", err)
		}
		return changed, nil
	}
	return false, fmt.Errorf("lot expire %s: %w", id, domain.ErrContention)
}

func (r *Repo) lotKey(id string) string {
	return fmt.Sprintf("%slot:%s", r.prefix, id)
}

func (r *Repo) accountIndex(accountID string, resource domain.ResourceType) string {
	return fmt.Sprintf("%slots:%s:%s", r.prefix, accountID, resource)
}

func (r *Repo) expiryIndex() string {
	return r.prefix + "lots:expiry"
}

func (r *Repo) idemKey(accountID, k string) string {
	return fmt.Sprintf("%slot-key:%s:%s", r.prefix, accountID, k)
}

func toHash(l domlot.Lot) map[string]string {
	return map[string]string{
		fieldAccount:   l.AccountID(),
		fieldResource:  string(l.Resource()),
		fieldQuantity:  strconv.FormatInt(l.Quantity(), 10),
		fieldRemaining: strconv.FormatInt(l.Remaining(), 10),
		fieldPurchased: strconv.FormatInt(l.PurchasedAt().UnixMilli(), 10),
		fieldExpires:   strconv.FormatInt(l.ExpiresAt().UnixMilli(), 10),
		fieldStatus:    string(l.Status()),
		fieldKey:       l.IdempotencyKey(),
	}
}

func fromHash(id string, m map[string]string) (domlot.Lot, error) {
	ints := make(map[string]int64, 5)
	for _, f := range []string{fieldQuantity, fieldRemaining, fieldPurchased, fieldExpires, db.VersionField} {
		n, err := strconv.ParseInt(m[f], 10, 64)
		if err != nil {
			return domlot.Lot{}, fmt.Errorf("lot %s field %s: %w", id, f, err)
		}
		ints[f] = n
	}
	return domlot.Reconstruct(
		id, m[fieldAccount], domain.ResourceType(m[fieldResource]),
		ints[fieldQuantity], ints[fieldRemaining],
		time.UnixMilli(ints[fieldPurchased]), time.UnixMilli(ints[fieldExpires]),
		domlot.Status(m[fieldStatus]), m[fieldKey], ints[db.VersionField],
	), nil
}
