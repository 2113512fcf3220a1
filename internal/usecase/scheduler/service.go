// Package scheduler applies billing-cycle resets and promotes pending plan changes.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/cycle"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	"github.com/kailas-cloud/quotagate/internal/metrics"
)

// Report summarizes one pass.
type Report struct {
	Accounts    int
	Applied     int // boundary crossings
	Initialized int // first writes within the current cycle
	Noop        int
	UnknownPlan int
	Failed      int
	Promoted    int
}

// Service is the cycle reset scheduler.
type Service struct {
	accounts AccountStore
	ledgers  LedgerResetter
	plans    PlanCatalog
	now      func() time.Time
	logger   *zap.Logger
}

// New creates a scheduler.
func New(accounts AccountStore, ledgers LedgerResetter, plans PlanCatalog, logger *zap.Logger) *Service {
	return &Service{accounts: accounts, ledgers: ledgers, plans: plans, now: time.Now, logger: logger}
}

// WithClock sets the time source used by Run.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// RunOnce resets every (account, resource) whose ledger lags the cycle
// containing now. After downtime a single reset to the current cycle is
// applied; skipped cycles are never granted.
//
// A pending plan applies only when the account crosses a billing boundary,
// that is when at least one of its stored ledgers holds an older cycle.
// Ledgers first written inside the current cycle get the current tier.
func (s *Service) RunOnce(ctx context.Context, now time.Time) (Report, error) {
	accs, err := s.accounts.List(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("list accounts: %w", err)
	}

	var rep Report
	for _, acc := range accs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Accounts++
		s.resetAccount(ctx, acc, now, &rep)
	}

	s.logger.Info("Cycle reset pass finished",
		zap.Int("accounts", rep.Accounts),
		zap.Int("applied", rep.Applied),
		zap.Int("initialized", rep.Initialized),
		zap.Int("noop", rep.Noop),
		zap.Int("unknown_plan", rep.UnknownPlan),
		zap.Int("failed", rep.Failed),
		zap.Int("promoted", rep.Promoted),
	)
	return rep, nil
}

func (s *Service) resetAccount(ctx context.Context, acc domaccount.Account, now time.Time, rep *Report) {
	cycleID := cycle.ID(acc.Anchor(), now)

	crossing, err := s.crossesBoundary(ctx, acc, cycleID)
	if err != nil {
		s.fail(acc, "", err, rep)
		return
	}
	tier := acc.Tier()
	if crossing {
		tier = acc.EffectiveTier()
	}

	advanced, failed := false, false
	for _, res := range domain.ResourceTypes() {
		allowance, err := s.plans.Allowance(tier, res)
		if errors.Is(err, domain.ErrUnknownPlan) {
			s.logger.Error("Account references an unknown plan; reset skipped",
				zap.String("account_id", acc.ID()),
				zap.String("tier", string(tier)),
			)
			metrics.CycleResetsTotal.WithLabelValues("unknown_plan").Inc()
			rep.UnknownPlan++
			return
		}
		if err != nil {
			s.fail(acc, res, err, rep)
			failed = true
			continue
		}

		out, err := s.ledgers.ApplyCycleReset(ctx, acc.ID(), res, allowance, cycleID)
		if err != nil {
			s.fail(acc, res, err, rep)
			failed = true
			continue
		}
		switch out {
		case domledger.ResetAdvanced:
			advanced = true
			rep.Applied++
			metrics.CycleResetsTotal.WithLabelValues("applied").Inc()
		case domledger.ResetInitialized:
			rep.Initialized++
			metrics.CycleResetsTotal.WithLabelValues("initialized").Inc()
		default:
			rep.Noop++
			metrics.CycleResetsTotal.WithLabelValues("noop").Inc()
			continue
		}
		s.logger.Debug("Cycle reset applied",
			zap.String("account_id", acc.ID()),
			zap.String("resource", string(res)),
			zap.String("outcome", string(out)),
			zap.Int64("cycle_id", cycleID),
			zap.Int64("allowance", allowance),
		)
	}

	// A resource that failed is retried next pass, which then promotes.
	if !advanced || failed || acc.PendingTier() == "" {
		return
	}
	_, err = s.accounts.Update(ctx, acc.ID(), func(cur domaccount.Account) (domaccount.Account, error) {
		if cur.PendingTier() != tier {
			return cur, nil // changed again since List; waits for the next boundary
		}
		return cur.PromotePending(), nil
	})
	if err != nil {
		s.logger.Error("Failed to promote pending plan",
			zap.String("account_id", acc.ID()),
			zap.String("tier", string(tier)),
			zap.Error(err),
		)
		return
	}
	rep.Promoted++
	s.logger.Info("Pending plan promoted",
		zap.String("account_id", acc.ID()),
		zap.String("tier", string(tier)),
		zap.Int64("cycle_id", cycleID),
	)
}

// crossesBoundary reports whether any stored ledger of acc is behind cycleID.
func (s *Service) crossesBoundary(ctx context.Context, acc domaccount.Account, cycleID int64) (bool, error) {
	for _, res := range domain.ResourceTypes() {
		e, err := s.ledgers.Get(ctx, acc.ID(), res)
		if err != nil {
			return false, fmt.Errorf("read ledger %s: %w", res, err)
		}
		if e.Initialized() && e.CycleID() < cycleID {
			return true, nil
		}
	}
	return false, nil
}

func (s *Service) fail(acc domaccount.Account, res domain.ResourceType, err error, rep *Report) {
	rep.Failed++
	metrics.CycleResetsTotal.WithLabelValues("error").Inc()
	s.logger.Error("Cycle reset failed",
		zap.String("account_id", acc.ID()),
		zap.String("resource", string(res)),
		zap.Error(err),
	)
}

// Run calls RunOnce immediately and then every interval until ctx is done.
func (s *Service) Run(ctx context.Context, interval time.Duration) {
	Loop(ctx, interval, s.logger.With(zap.String("worker", "cycle_reset")), func(ctx context.Context, now time.Time) error {
		_, err := s.RunOnce(ctx, now)
		return err
	}, s.now)
}

// Loop runs fn immediately and then every interval until ctx is done.
// Errors are logged and the loop continues.
func Loop(
	ctx context.Context, interval time.Duration, logger *zap.Logger,
	fn func(ctx context.Context, now time.Time) error, now func() time.Time,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if err := fn(ctx, now()); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Background pass failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
