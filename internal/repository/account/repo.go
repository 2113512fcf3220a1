// Package account persists the account registry as versioned hashes.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domacc "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

const (
	fieldTier    = "tier"
	fieldPending = "pending_tier"
	fieldAnchor  = "anchor"
	fieldStatus  = "status"
)

// store is the consumer interface for account operations (ISP).
type store interface {
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	CompareAndSwap(ctx context.Context, key string, expected int64, fields map[string]string) (int64, error)
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Repo stores accounts under {prefix}account:{id}.
type Repo struct {
	store  store
	prefix string
}

// New creates an account repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Get returns the account or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, id string) (domacc.Account, error) {
	key := r.key(id)
	m, err := r.store.HGetAll(ctx, key)
	if err != nil {
		return domacc.Account{}, fmt.Errorf("account HGETALL %s: %w", key, err)
	}
	if len(m) == 0 {
		return domacc.Account{}, fmt.Errorf("account %s: %w", id, domain.ErrNotFound)
	}
	return fromHash(id, m)
}

// Save writes a if its version is still current (0 creates).
// Returns the account with its new version or an error wrapping db.ErrVersionConflict.
func (r *Repo) Save(ctx context.Context, a domacc.Account) (domacc.Account, error) {
	key := r.key(a.ID())
	v, err := r.store.CompareAndSwap(ctx, key, a.Version(), map[string]string{
		fieldTier:    string(a.Tier()),
		fieldPending: string(a.PendingTier()),
		fieldAnchor:  a.Anchor().Format(time.RFC3339),
		fieldStatus:  string(a.Status()),
	})
	if err != nil {
		return domacc.Account{}, fmt.Errorf("account CAS %s: %w", key, err)
	}
	return domacc.Reconstruct(a.ID(), a.Tier(), a.PendingTier(), a.Anchor(), a.Status(), v), nil
}

// Update applies fn to the current account and saves it, retrying on version conflicts.
func (r *Repo) Update(
	ctx context.Context, id string, fn func(domacc.Account) (domacc.Account, error),
) (domacc.Account, error) {
	const attempts = 8
	for i := 0; i < attempts; i++ {
		cur, err := r.Get(ctx, id)
		if err != nil {
			return domacc.Account{}, err
		}
		next, err := fn(cur)
		if err != nil {
			return domacc.Account{}, err
		}
		saved, err := r.Save(ctx, next)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return domacc.Account{}, err
		}
	}
	return domacc.Account{}, fmt.Errorf("account update %s: %w", id, domain.ErrContention)
}

// List returns every registered account, sorted by id.
func (r *Repo) List(ctx context.Context) ([]domacc.Account, error) {
	keys, err := r.store.Scan(ctx, r.prefix+"account:*")
	if err != nil {
		return nil, fmt.Errorf("account SCAN: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}
	hashes, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("account HGETALL multi: %w", err)
	}

	out := make([]domacc.Account, 0, len(keys))
	for i, m := range hashes {
		if len(m) == 0 {
			continue // deleted between SCAN and HGETALL
		}
		a, err := fromHash(strings.TrimPrefix(keys[i], r.prefix+"account:"), m)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	sortByID(out)
	return out, nil
}

func (r *Repo) key(id string) string {
	return fmt.Sprintf("%saccount:%s", r.prefix, id)
}

func fromHash(id string, m map[string]string) (domacc.Account, error) {
	anchor, err := time.Parse(time.RFC3339, m[fieldAnchor])
	if err != nil {
		return domacc.Account{}, fmt.Errorf("account %s anchor: %w", id, err)
	}
	version, err := strconv.ParseInt(m[db.VersionField], 10, 64)
	if err != nil {
		return domacc.Account{}, fmt.Errorf("account %s version: %w", id, err)
	}
	status := domacc.Status(m[fieldStatus])
	if !status.IsValid() {
		return domacc.Account{}, fmt.Errorf("account %s: invalid status %q", id, status)
	}
	return domacc.Reconstruct(
		id, plan.Tier(m[fieldTier]), plan.Tier(m[fieldPending]),
		anchor, status, version,
	), nil
}

func sortByID(accs []domacc.Account) {
	sort.Slice(accs, func(i, j int) bool { return accs[i].ID() < accs[j].ID() })
}
