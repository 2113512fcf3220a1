// Package lots manages purchased overage credit.
package lots

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	"github.com/kailas-cloud/quotagate/internal/metrics"
)

const defaultSweepBatch = 500

// CreateRequest is a confirmed payment for a credit pack.
type CreateRequest struct {
	AccountID      string
	Resource       domain.ResourceType
	Quantity       int64
	ExpiresAt      time.Time
	IdempotencyKey string
}

// Service creates and expires credit lots.
type Service struct {
	repo       Repository
	now        func() time.Time
	sweepBatch int
	logger     *zap.Logger
}

// New creates a lot service.
func New(repo Repository, logger *zap.Logger) *Service {
	return &Service{repo: repo, now: time.Now, sweepBatch: defaultSweepBatch, logger: logger}
}

// WithClock sets the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithSweepBatch sets how many expired lots one sweep page handles.
func (s *Service) WithSweepBatch(n int) *Service {
	if n > 0 {
		s.sweepBatch = n
	}
	return s
}

// CreateLot stores a new active lot. Idempotency keys are scoped per account:
// a repeated key returns the original lot with created=false even if quantity
// or expiry differ, and domain.ErrIdempotencyConflict if the resource differs.
func (s *Service) CreateLot(ctx context.Context, req CreateRequest) (domlot.Lot, bool, error) {
	l, err := domlot.New(req.AccountID, req.Resource, req.Quantity, req.ExpiresAt, s.now(), req.IdempotencyKey)
	if err != nil {
		return domlot.Lot{}, false, err
	}
	stored, created, err := s.repo.Create(ctx, l)
	if err != nil {
		return domlot.Lot{}, false, fmt.Errorf("create lot: %w", err)
	}
	if created {
		s.logger.Info("Credit lot created",
			zap.String("lot_id", stored.ID()),
			zap.String("account_id", stored.AccountID()),
			zap.String("resource", string(stored.Resource())),
			zap.Int64("quantity", stored.Quantity()),
			zap.Time("expires_at", stored.ExpiresAt()),
		)
	} else {
		s.logger.Debug("Duplicate credit lot request",
			zap.String("lot_id", stored.ID()),
			zap.String("idempotency_key", req.IdempotencyKey),
		)
	}
	return stored, created, nil
}

// Get returns a lot by id.
func (s *Service) Get(ctx context.Context, id string) (domlot.Lot, error) {
	if !domlot.ValidID(id) {
		return domlot.Lot{}, fmt.Errorf("%w: malformed lot id %q", domain.ErrInvalidRequest, id)
	}
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return domlot.Lot{}, fmt.Errorf("get lot: %w", err)
	}
	return l, nil
}

// ListActive returns lots usable at now, soonest-expiring first.
func (s *Service) ListActive(
	ctx context.Context, accountID string, resource domain.ResourceType, now time.Time,
) ([]domlot.Lot, error) {
	out, err := s.repo.ListActive(ctx, accountID, resource, now)
	if err != nil {
		return nil, fmt.Errorf("list lots: %w", err)
	}
	return out, nil
}

// ExpireSweep marks every lot with expires_at before now as expired and
// returns how many it changed. Reservations skip expired lots on their own,
// so a missed sweep never lets expired credit be spent.
func (s *Service) ExpireSweep(ctx context.Context, now time.Time) (int, error) {
	total := 0
	for {
		ids, err := s.repo.ExpiredIDs(ctx, now, s.sweepBatch)
		if err != nil {
			return total, fmt.Errorf("list expired lots: %w", err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			changed, err := s.repo.MarkExpired(ctx, id)
			if err != nil {
				return total, fmt.Errorf("expire lot %s: %w", id, err)
			}
			if changed {
				total++
				metrics.LotsExpiredTotal.Inc()
			}
		}
		if len(ids) < s.sweepBatch {
			break
		}
	}
	if total > 0 {
		s.logger.Info("Expired credit lots", zap.Int("count", total), zap.Time("before", now))
	}
	return total, nil
}
