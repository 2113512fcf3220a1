package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/kailas-cloud/quotagate/internal/domain"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/domain/cycle"
	domusage "github.com/kailas-cloud/quotagate/internal/domain/usage"
)

// maxHistoryWindow bounds one usage query.
const maxHistoryWindow = 92 * 24 * time.Hour

// Service handles balance snapshots and usage history.
type Service struct {
	accounts AccountReader
	ledgers  LedgerReader
	lots     LotReader
	plans    PlanCatalog
	history  HistorySource
	now      func() time.Time
}

// New creates a Service.
func New(accounts AccountReader, ledgers LedgerReader, lots LotReader, plans PlanCatalog, history HistorySource) *Service {
	return &Service{
		accounts: accounts,
		ledgers:  ledgers,
		lots:     lots,
		plans:    plans,
		history:  history,
		now:      time.Now,
	}
}

// WithClock sets the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// GetBalance builds a snapshot of plan and credit for one resource.
//
// The plan figures are a projection, not the stored counters. A ledger still
// on a past cycle is reported with used=0 and the allowance it will get at its
// reset: the effective tier (pending plan promoted) when it holds an older
// cycle, the current tier when it was never written. The stored entry stays
// stale until the scheduler or the next reservation rewrites it.
func (s *Service) GetBalance(ctx context.Context, accountID string, resource domain.ResourceType) (domusage.Balance, error) {
	if !resource.IsValid() {
		return domusage.Balance{}, fmt.Errorf("%w: unknown resource %q", domain.ErrInvalidRequest, resource)
	}
	acc, err := s.accounts.Get(ctx, accountID)
	if err != nil {
		return domusage.Balance{}, fmt.Errorf("get account: %w", err)
	}
	entry, err := s.ledgers.Get(ctx, accountID, resource)
	if err != nil {
		return domusage.Balance{}, fmt.Errorf("get ledger: %w", err)
	}

	now := s.now()
	current := cycle.ID(acc.Anchor(), now)
	tier, pending := acc.Tier(), acc.PendingTier()
	quota, used := entry.MonthlyQuota(), entry.Used()
	if entry.CycleID() < current {
		// Lazy init uses the current tier; a scheduled reset uses the effective one.
		effective := acc.Tier()
		if entry.Initialized() {
			effective = acc.EffectiveTier()
		}
		allowance, err := s.plans.Allowance(effective, resource)
		if err != nil {
			return domusage.Balance{}, fmt.Errorf("plan allowance: %w", err)
		}
		quota, used = allowance, 0
		if effective != tier {
			tier, pending = effective, ""
		}
	}

	active, err := s.lots.ListActive(ctx, accountID, resource, now)
	if err != nil {
		return domusage.Balance{}, fmt.Errorf("list lots: %w", err)
	}
	lots := make([]domusage.LotBalance, len(active))
	for i, l := range active {
		lots[i] = domusage.LotBalance{
			ID:        l.ID(),
			Quantity:  l.Quantity(),
			Remaining: l.Remaining(),
			ExpiresAt: l.ExpiresAt(),
		}
	}

	return domusage.NewBalance(
		accountID, resource, tier, pending,
		current, quota, used, cycle.End(acc.Anchor(), current), lots,
	), nil
}

// History returns records for accountID created in [from, to], oldest first.
// to defaults to now and from to the start of the billing cycle containing to.
func (s *Service) History(
	ctx context.Context, accountID string, from, to time.Time,
) ([]consumption.Record, domusage.Summary, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		acc, err := s.accounts.Get(ctx, accountID)
		if err != nil {
			return nil, domusage.Summary{}, fmt.Errorf("get account: %w", err)
		}
		from = cycle.Start(acc.Anchor(), cycle.ID(acc.Anchor(), to))
	}
	if from.After(to) {
		return nil, domusage.Summary{}, fmt.Errorf("%w: from is after to", domain.ErrInvalidRequest)
	}
	if to.Sub(from) > maxHistoryWindow {
		return nil, domusage.Summary{}, fmt.Errorf("%w: window longer than %s", domain.ErrInvalidRequest, maxHistoryWindow)
	}

	recs, err := s.history.Query(ctx, accountID, from, to)
	if err != nil {
		return nil, domusage.Summary{}, fmt.Errorf("query history: %w", err)
	}
	return recs, domusage.Summarize(recs), nil
}
