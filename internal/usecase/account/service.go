// Package account manages the account registry and plan change events.
package account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
)

// UpsertRequest registers an account or updates an existing one.
type UpsertRequest struct {
	ID     string
	Tier   plan.Tier
	Anchor time.Time
	// Status is optional; empty keeps the stored status.
	Status domaccount.Status
}

// Service handles account registration.
type Service struct {
	repo   Repository
	plans  PlanCatalog
	logger *zap.Logger
}

// New creates an account service.
func New(repo Repository, plans PlanCatalog, logger *zap.Logger) *Service {
	return &Service{repo: repo, plans: plans, logger: logger}
}

// Upsert creates the account, or updates an existing one. On an existing
// account a different tier is recorded as a pending plan change and the
// billing anchor cannot move. Returns true if the account was created.
func (s *Service) Upsert(ctx context.Context, req UpsertRequest) (domaccount.Account, bool, error) {
	if !s.plans.Has(req.Tier) {
		return domaccount.Account{}, false, fmt.Errorf("tier %q: %w", req.Tier, domain.ErrUnknownPlan)
	}
	if req.Status != "" && !req.Status.IsValid() {
		return domaccount.Account{}, false, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, req.Status)
	}

	fresh, err := domaccount.New(req.ID, req.Tier, req.Anchor)
	if err != nil {
		return domaccount.Account{}, false, fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err)
	}
	if req.Status != "" {
		fresh = fresh.WithStatus(req.Status)
	}

	saved, err := s.repo.Save(ctx, fresh)
	if err == nil {
		s.logger.Info("Account registered",
			zap.String("account_id", saved.ID()),
			zap.String("tier", string(saved.Tier())),
			zap.Time("anchor", saved.Anchor()),
		)
		return saved, true, nil
	}
	if !errors.Is(err, db.ErrVersionConflict) {
		return domaccount.Account{}, false, fmt.Errorf("save account: %w", err)
	}

	updated, err := s.repo.Update(ctx, req.ID, func(cur domaccount.Account) (domaccount.Account, error) {
		if !cur.Anchor().Equal(fresh.Anchor()) {
			return cur, fmt.Errorf("%w: billing anchor of %s cannot change", domain.ErrInvalidRequest, cur.ID())
		}
		next := cur.WithPendingTier(req.Tier)
		if req.Status != "" {
			next = next.WithStatus(req.Status)
		}
		return next, nil
	})
	if err != nil {
		return domaccount.Account{}, false, fmt.Errorf("update account: %w", err)
	}
	return updated, false, nil
}

// SetPlan records a plan change that takes effect at the next cycle boundary.
// Setting the current tier cancels a pending change.
func (s *Service) SetPlan(ctx context.Context, id string, tier plan.Tier) (domaccount.Account, error) {
	if !s.plans.Has(tier) {
		return domaccount.Account{}, fmt.Errorf("tier %q: %w", tier, domain.ErrUnknownPlan)
	}
	a, err := s.repo.Update(ctx, id, func(cur domaccount.Account) (domaccount.Account, error) {
		return cur.WithPendingTier(tier), nil
	})
	if err != nil {
		return domaccount.Account{}, fmt.Errorf("set plan: %w", err)
	}
	s.logger.Info("Plan change scheduled",
		zap.String("account_id", id),
		zap.String("tier", string(a.Tier())),
		zap.String("pending_tier", string(a.PendingTier())),
	)
	return a, nil
}

// SetStatus suspends or reactivates an account. It applies immediately.
func (s *Service) SetStatus(ctx context.Context, id string, status domaccount.Status) (domaccount.Account, error) {
	if !status.IsValid() {
		return domaccount.Account{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidRequest, status)
	}
	a, err := s.repo.Update(ctx, id, func(cur domaccount.Account) (domaccount.Account, error) {
		return cur.WithStatus(status), nil
	})
	if err != nil {
		return domaccount.Account{}, fmt.Errorf("set status: %w", err)
	}
	s.logger.Info("Account status changed", zap.String("account_id", id), zap.String("status", string(status)))
	return a, nil
}

// Get returns an account.
func (s *Service) Get(ctx context.Context, id string) (domaccount.Account, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return domaccount.Account{}, fmt.Errorf("get account: %w", err)
	}
	return a, nil
}

// List returns all accounts sorted by id.
func (s *Service) List(ctx context.Context) ([]domaccount.Account, error) {
	out, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return out, nil
}
