// Package audit is the append-only usage log on top of SETNX keys.
//
// Records and release markers are written once and never updated, so
// concurrent appends need no locking: the first SETNX wins and later
// writers read back the stored value.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
)

// store is the consumer interface for audit operations (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)
	ZAdd(ctx context.Context, key string, score float64, member string) error
	ZRangeByScore(ctx context.Context, key string, minScore, maxScore float64, limit int) ([]string, error)
}

// Repo is the Redis-backed usage audit log.
type Repo struct {
	store  store
	prefix string
}

// New creates an audit repository.
func New(s store, prefix string) *Repo {
	return &Repo{store: s, prefix: prefix}
}

// Append stores rec if no record exists for its correlation id.
// A losing writer gets the stored record back with created=false.
func (r *Repo) Append(ctx context.Context, rec consumption.Record) (consumption.Record, bool, error) {
	data, err := json.Marshal(recordToJSON(rec))
	if err != nil {
		return consumption.Record{}, false, fmt.Errorf("audit marshal: %w", err)
	}

	key := r.recordKey(rec.CorrelationID)
	won, err := r.store.SetNX(ctx, key, data, 0)
	if err != nil {
		return consumption.Record{}, false, fmt.Errorf("audit SETNX %s: %w", key, err)
	}
	if !won {
		existing, err := r.Get(ctx, rec.CorrelationID)
		if err != nil {
			return consumption.Record{}, false, err
		}
		return existing, false, nil
	}

	idx := r.accountIndex(rec.AccountID)
	if err := r.store.ZAdd(ctx, idx, float64(rec.CreatedAt.UnixMilli()), rec.CorrelationID); err != nil {
		return rec, true, fmt.Errorf("audit ZADD %s: %w", idx, err)
	}
	return rec, true, nil
}

// Get returns the record with its release marker, or domain.ErrNotFound.
func (r *Repo) Get(ctx context.Context, correlationID string) (consumption.Record, error) {
	key := r.recordKey(correlationID)
	data, err := r.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return consumption.Record{}, fmt.Errorf("record %s: %w", correlationID, domain.ErrNotFound)
		}
		return consumption.Record{}, fmt.Errorf("audit GET %s: %w", key, err)
	}

	var j recordJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return consumption.Record{}, fmt.Errorf("audit decode %s: %w", key, err)
	}
	rec := recordFromJSON(j)

	released, err := r.releasedAt(ctx, correlationID)
	if err != nil {
		return consumption.Record{}, err
	}
	rec.ReleasedAt = released
	return rec, nil
}

// AppendRelease writes the release marker. Only the first caller gets true.
func (r *Repo) AppendRelease(ctx context.Context, correlationID string, at time.Time) (bool, error) {
	key := r.releaseKey(correlationID)
	won, err := r.store.SetNX(ctx, key, []byte(strconv.FormatInt(at.UnixMilli(), 10)), 0)
	if err != nil {
		return false, fmt.Errorf("audit SETNX %s: %w", key, err)
	}
	return won, nil
}

// Query returns records for accountID created in [from, to], oldest first.
func (r *Repo) Query(ctx context.Context, accountID string, from, to time.Time) ([]consumption.Record, error) {
	idx := r.accountIndex(accountID)
	ids, err := r.store.ZRangeByScore(ctx, idx, float64(from.UnixMilli()), float64(to.UnixMilli()), 0)
	if err != nil {
		return nil, fmt.Errorf("audit ZRANGEBYSCORE %s: %w", idx, err)
	}

	out := make([]consumption.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Repo) releasedAt(ctx context.Context, correlationID string) (*time.Time, error) {
	key := r.releaseKey(correlationID)
	raw, err := r.store.Get(ctx, key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit GET %s: %w", key, err)
	}
	ms, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("audit decode %s: %w", key, err)
	}
	t := time.UnixMilli(ms).UTC()
	return &t, nil
}

func (r *Repo) recordKey(id string) string {
	return fmt.Sprintf("%saudit:%s", r.prefix, id)
}

func (r *Repo) releaseKey(id string) string {
	return fmt.Sprintf("%saudit-release:%s", r.prefix, id)
}

func (r *Repo) accountIndex(accountID string) string {
	return fmt.Sprintf("%saudit-idx:%s", r.prefix, accountID)
}
