// Package enforcer decides reservations against plan allowance and credit lots.
//
// Every shared counter is written through a versioned compare-and-swap, so
// concurrent reservations for one (account, resource) never over-spend. A
// reservation that cannot be covered in full deducts nothing: partial
// deductions are compensated before DENIED is returned.
package enforcer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	"github.com/kailas-cloud/quotagate/internal/domain/cycle"
	domledger "github.com/kailas-cloud/quotagate/internal/domain/ledger"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	"github.com/kailas-cloud/quotagate/internal/metrics"
)

const maxCorrelationIDLen = 256

// compensationAttempts bounds CAS retries when crediting a portion back.
// It is larger than the reserve bound because giving up leaks quota.
const compensationAttempts = 64

// errRetry restarts a reserve attempt after a CAS conflict.
var errRetry = errors.New("retry")

// Config tunes optimistic retries.
type Config struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	ClaimTTL       time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 2 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		ClaimTTL:       5 * time.Second,
	}
}

// ReserveRequest asks to deduct Amount units before a metered operation.
type ReserveRequest struct {
	AccountID     string
	Resource      domain.ResourceType
	Amount        int64
	CorrelationID string
}

// Validate checks request shape.
func (r ReserveRequest) Validate() error {
	switch {
	case r.AccountID == "":
		return fmt.Errorf("%w: account_id is required", domain.ErrInvalidRequest)
	case !r.Resource.IsValid():
		return fmt.Errorf("%w: unknown resource %q", domain.ErrInvalidRequest, r.Resource)
	case r.Amount <= 0:
		return fmt.Errorf("%w: amount must be positive, got %d", domain.ErrInvalidRequest, r.Amount)
	case r.CorrelationID == "":
		return fmt.Errorf("%w: correlation_id is required", domain.ErrInvalidRequest)
	case len(r.CorrelationID) > maxCorrelationIDLen:
		return fmt.Errorf("%w: correlation_id longer than %d", domain.ErrInvalidRequest, maxCorrelationIDLen)
	}
	return nil
}

// Service is the quota enforcer.
type Service struct {
	ledgers  LedgerStore
	lots     LotStore
	audit    AuditLog
	accounts AccountReader
	plans    PlanCatalog
	claims   ClaimStore
	mirror   Mirror
	cfg      Config
	now      func() time.Time
	tracer   trace.Tracer
	logger   *zap.Logger
}

// New creates an enforcer with DefaultConfig.
func New(
	ledgers LedgerStore, lots LotStore, audit AuditLog,
	accounts AccountReader, plans PlanCatalog, claims ClaimStore,
	logger *zap.Logger,
) *Service {
	return &Service{
		ledgers:  ledgers,
		lots:     lots,
		audit:    audit,
		accounts: accounts,
		plans:    plans,
		claims:   claims,
		cfg:      DefaultConfig(),
		now:      time.Now,
		tracer:   otel.Tracer("github.com/kailas-cloud/quotagate/internal/usecase/enforcer"),
		logger:   logger,
	}
}

// WithConfig overrides retry tuning. Zero fields keep their defaults.
func (s *Service) WithConfig(cfg Config) *Service {
	if cfg.MaxAttempts > 0 {
		s.cfg.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialBackoff > 0 {
		s.cfg.InitialBackoff = cfg.InitialBackoff
	}
	if cfg.MaxBackoff > 0 {
		s.cfg.MaxBackoff = cfg.MaxBackoff
	}
	if cfg.ClaimTTL > 0 {
		s.cfg.ClaimTTL = cfg.ClaimTTL
	}
	return s
}

// WithClock sets the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// WithMirror copies every appended record to m. Mirror failures are logged, not returned.
func (s *Service) WithMirror(m Mirror) *Service {
	s.mirror = m
	return s
}

// Reserve deducts req.Amount from plan allowance first, then from credit lots
// soonest-expiring first. Repeating a correlation id returns the stored decision.
func (s *Service) Reserve(ctx context.Context, req ReserveRequest) (consumption.Decision, error) {
	start := time.Now()
	defer func() {
		metrics.ReserveDuration.WithLabelValues(string(req.Resource)).Observe(time.Since(start).Seconds())
	}()

	ctx, span := s.tracer.Start(ctx, "enforcer.reserve")
	defer span.End()
	span.SetAttributes(
		attribute.String("account_id", req.AccountID),
		attribute.String("resource", string(req.Resource)),
		attribute.Int64("amount", req.Amount),
		attribute.String("correlation_id", req.CorrelationID),
	)

	dec, err := s.reserve(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return consumption.Decision{}, err
	}
	span.SetAttributes(
		attribute.String("outcome", string(dec.Outcome)),
		attribute.Bool("replayed", dec.Replayed),
	)
	return dec, nil
}

func (s *Service) reserve(ctx context.Context, req ReserveRequest) (consumption.Decision, error) {
	if err := req.Validate(); err != nil {
		return consumption.Decision{}, err
	}

	if dec, ok, err := s.replay(ctx, req); err != nil || ok {
		return dec, err
	}

	claim, ok, err := s.claims.Acquire(ctx, "reserve:"+req.CorrelationID, s.cfg.ClaimTTL)
	if err != nil {
		return consumption.Decision{}, fmt.Errorf("acquire claim: %w", err)
	}
	if !ok {
		return s.awaitHolder(ctx, req)
	}
	defer func() {
		if err := s.claims.Release(context.WithoutCancel(ctx), claim); err != nil {
			s.logger.Warn("Failed to release reservation claim",
				zap.String("correlation_id", req.CorrelationID), zap.Error(err))
		}
	}()

	// The previous holder may have finished between the first lookup and the claim.
	if dec, ok, err := s.replay(ctx, req); err != nil || ok {
		return dec, err
	}

	acc, allowance, reason, err := s.resolveAccount(ctx, req)
	if err != nil {
		return consumption.Decision{}, err
	}
	if reason != consumption.ReasonNone {
		s.logger.Error("Reservation denied by account configuration",
			zap.String("account_id", req.AccountID),
			zap.String("resource", string(req.Resource)),
			zap.String("reason", string(reason)),
		)
		return s.commit(ctx, s.denial(req, reason, 0, 0))
	}

	b := s.newBackoff()
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, b.NextBackOff()); err != nil {
				return consumption.Decision{}, fmt.Errorf("reserve: %w", err)
			}
		}
		rec, err := s.attempt(ctx, req, acc, allowance)
		if errors.Is(err, errRetry) {
			continue
		}
		if err != nil {
			return consumption.Decision{}, s.observe(err)
		}
		return s.commit(ctx, rec)
	}

	s.logger.Warn("Reservation retries exhausted",
		zap.String("account_id", req.AccountID),
		zap.String("resource", string(req.Resource)),
		zap.String("correlation_id", req.CorrelationID),
		zap.Int("attempts", s.cfg.MaxAttempts),
	)
	metrics.ReservationsTotal.WithLabelValues(string(req.Resource), string(consumption.OutcomeTransient), "").Inc()
	return consumption.Transient(req.CorrelationID), nil
}

// replay returns the stored decision for req's correlation id, if any.
func (s *Service) replay(ctx context.Context, req ReserveRequest) (consumption.Decision, bool, error) {
	rec, err := s.audit.Get(ctx, req.CorrelationID)
	if errors.Is(err, domain.ErrNotFound) {
		return consumption.Decision{}, false, nil
	}
	if err != nil {
		return consumption.Decision{}, false, fmt.Errorf("lookup record: %w", err)
	}
	if !rec.Matches(req.AccountID, req.Resource, req.Amount) {
		return consumption.Decision{}, false, fmt.Errorf(
			"correlation id %s was recorded for %s/%s amount %d: %w",
			req.CorrelationID, rec.AccountID, rec.Resource, rec.Amount, domain.ErrIdempotencyConflict,
		)
	}
	return consumption.DecisionFrom(rec, true), true, nil
}

// awaitHolder waits for a concurrent first attempt of the same correlation id.
func (s *Service) awaitHolder(ctx context.Context, req ReserveRequest) (consumption.Decision, error) {
	b := s.newBackoff()
	for attempt := 1; attempt <= s.cfg.MaxAttempts; attempt++ {
		if err := sleep(ctx, b.NextBackOff()); err != nil {
			return consumption.Decision{}, fmt.Errorf("reserve: %w", err)
		}
		if dec, ok, err := s.replay(ctx, req); err != nil || ok {
			return dec, err
		}
	}
	metrics.ReservationsTotal.WithLabelValues(string(req.Resource), string(consumption.OutcomeTransient), "").Inc()
	return consumption.Transient(req.CorrelationID), nil
}

// resolveAccount loads the account and its tier's allowance.
// A non-empty reason means the reservation must be denied (fail closed).
func (s *Service) resolveAccount(
	ctx context.Context, req ReserveRequest,
) (domaccount.Account, int64, consumption.Reason, error) {
	acc, err := s.accounts.Get(ctx, req.AccountID)
	if errors.Is(err, domain.ErrNotFound) {
		return domaccount.Account{}, 0, consumption.ReasonUnknownAccount, nil
	}
	if err != nil {
		return domaccount.Account{}, 0, "", fmt.Errorf("get account: %w", err)
	}
	if !acc.IsActive() {
		return acc, 0, consumption.ReasonAccountSuspended, nil
	}
	allowance, err := s.plans.Allowance(acc.Tier(), req.Resource)
	if errors.Is(err, domain.ErrUnknownPlan) {
		return acc, 0, consumption.ReasonUnknownPlan, nil
	}
	if err != nil {
		return domaccount.Account{}, 0, "", fmt.Errorf("plan allowance: %w", err)
	}
	return acc, allowance, consumption.ReasonNone, nil
}

// attempt runs one optimistic pass. It returns errRetry when a CAS lost a race
// and everything it took has been put back.
func (s *Service) attempt(
	ctx context.Context, req ReserveRequest, acc domaccount.Account, allowance int64,
) (consumption.Record, error) {
	now := s.now()

	entry, err := s.ledgerEntry(ctx, acc, req.Resource, allowance, now)
	if err != nil {
		return consumption.Record{}, err
	}

	var taken []consumption.Portion
	planLeft := entry.Available()
	if planTake := min(planLeft, req.Amount); planTake > 0 {
		next, err := entry.Consume(planTake)
		if err != nil {
			return consumption.Record{}, err
		}
		if _, err := s.ledgers.Swap(ctx, next); err != nil {
			return consumption.Record{}, s.casFailed("plan", err)
		}
		taken = append(taken, consumption.Portion{
			Source: consumption.SourcePlan, Amount: planTake, CycleID: entry.CycleID(),
		})
		planLeft -= planTake
	}

	shortfall := req.Amount - sumPortions(taken)
	lots, err := s.lots.ListActive(ctx, req.AccountID, req.Resource, now)
	if err != nil {
		return consumption.Record{}, s.abort(ctx, req, taken, fmt.Errorf("list lots: %w", err))
	}

	var creditLeft, creditTaken int64
	for _, l := range lots {
		if shortfall == 0 {
			creditLeft += l.Remaining()
			continue
		}
		avail, take, err := s.drawLot(ctx, l, shortfall, now)
		if err != nil {
			return consumption.Record{}, s.abort(ctx, req, taken, err)
		}
		if take > 0 {
			taken = append(taken, consumption.Portion{Source: l.ID(), Amount: take})
			shortfall -= take
		}
		creditLeft += avail - take
		creditTaken += take
	}

	if shortfall > 0 {
		if err := s.compensate(context.WithoutCancel(ctx), req.AccountID, req.Resource, taken); err != nil {
			return consumption.Record{}, err
		}
		return s.denial(req, consumption.ReasonQuotaExhausted, 0, creditLeft+creditTaken), nil
	}

	return consumption.Record{
		CorrelationID:   req.CorrelationID,
		AccountID:       req.AccountID,
		Resource:        req.Resource,
		Amount:          req.Amount,
		Breakdown:       taken,
		Outcome:         consumption.OutcomeAllowed,
		PlanRemaining:   planLeft,
		CreditRemaining: creditLeft,
	}, nil
}

// ledgerEntry reads the counter, starting the current cycle for a never-reset entry.
func (s *Service) ledgerEntry(
	ctx context.Context, acc domaccount.Account, resource domain.ResourceType, allowance int64, now time.Time,
) (domledger.Entry, error) {
	entry, err := s.ledgers.Get(ctx, acc.ID(), resource)
	if err != nil {
		return domledger.Entry{}, fmt.Errorf("get ledger: %w", err)
	}
	if entry.Initialized() {
		return entry, nil
	}
	stored, err := s.ledgers.Swap(ctx, entry.Reset(allowance, cycle.ID(acc.Anchor(), now)))
	if err != nil {
		return domledger.Entry{}, s.casFailed("plan", err)
	}
	s.logger.Debug("Ledger initialized",
		zap.String("account_id", acc.ID()),
		zap.String("resource", string(resource)),
		zap.Int64("allowance", allowance),
		zap.Int64("cycle_id", stored.CycleID()),
	)
	return stored, nil
}

// drawLot takes up to want units from l. It reports the remaining it observed and what it took.
func (s *Service) drawLot(ctx context.Context, l domlot.Lot, want int64, now time.Time) (int64, int64, error) {
	for i := 0; i < s.cfg.MaxAttempts; i++ {
		if i > 0 {
			fresh, err := s.lots.Get(ctx, l.ID())
			if errors.Is(err, domain.ErrNotFound) {
				return 0, 0, nil
			}
			if err != nil {
				return 0, 0, fmt.Errorf("reload lot: %w", err)
			}
			l = fresh
		}
		if !l.Usable(now) {
			return 0, 0, nil
		}
		take := min(l.Remaining(), want)
		next, err := l.Draw(take)
		if err != nil {
			return 0, 0, err
		}
		_, err = s.lots.Swap(ctx, next)
		if err == nil {
			return l.Remaining(), take, nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return 0, 0, fmt.Errorf("draw lot: %w", err)
		}
		metrics.CASConflictsTotal.WithLabelValues("lot").Inc()
	}
	return 0, 0, errRetry
}

// abort compensates taken and returns cause. A failed compensation is never retried.
func (s *Service) abort(ctx context.Context, req ReserveRequest, taken []consumption.Portion, cause error) error {
	err := s.compensate(context.WithoutCancel(ctx), req.AccountID, req.Resource, taken)
	switch {
	case err == nil:
		return cause
	case errors.Is(cause, errRetry):
		return err
	default:
		return errors.Join(cause, err)
	}
}

// casFailed maps a version conflict to errRetry.
func (s *Service) casFailed(target string, err error) error {
	if errors.Is(err, db.ErrVersionConflict) {
		metrics.CASConflictsTotal.WithLabelValues(target).Inc()
		return errRetry
	}
	return fmt.Errorf("%s CAS: %w", target, err)
}

// commit appends rec and turns it into a decision. A lost append gives back what rec took.
func (s *Service) commit(ctx context.Context, rec consumption.Record) (consumption.Decision, error) {
	rec.CreatedAt = s.now().UTC()
	stored, created, err := s.audit.Append(ctx, rec)
	if err != nil && !created {
		if cerr := s.compensate(context.WithoutCancel(ctx), rec.AccountID, rec.Resource, rec.Breakdown); cerr != nil {
			err = errors.Join(err, cerr)
		}
		return consumption.Decision{}, s.observe(fmt.Errorf("append record: %w", err))
	}
	if err != nil {
		s.logger.Warn("Record appended without usage index",
			zap.String("correlation_id", rec.CorrelationID), zap.Error(err))
	}
	if !created {
		// Another holder recorded first after our claim expired.
		if cerr := s.compensate(context.WithoutCancel(ctx), rec.AccountID, rec.Resource, rec.Breakdown); cerr != nil {
			return consumption.Decision{}, s.observe(cerr)
		}
		return consumption.DecisionFrom(stored, true), nil
	}

	s.mirrorRecord(ctx, stored)
	metrics.ReservationsTotal.WithLabelValues(
		string(stored.Resource), string(stored.Outcome), string(stored.Reason),
	).Inc()
	s.logger.Debug("Reservation decided",
		zap.String("account_id", stored.AccountID),
		zap.String("resource", string(stored.Resource)),
		zap.String("correlation_id", stored.CorrelationID),
		zap.Int64("amount", stored.Amount),
		zap.String("outcome", string(stored.Outcome)),
		zap.String("reason", string(stored.Reason)),
		zap.Int64("plan_remaining", stored.PlanRemaining),
		zap.Int64("credit_remaining", stored.CreditRemaining),
	)
	return consumption.DecisionFrom(stored, false), nil
}

func (s *Service) denial(req ReserveRequest, reason consumption.Reason, planLeft, creditLeft int64) consumption.Record {
	return consumption.Record{
		CorrelationID:   req.CorrelationID,
		AccountID:       req.AccountID,
		Resource:        req.Resource,
		Amount:          req.Amount,
		Outcome:         consumption.OutcomeDenied,
		Reason:          reason,
		PlanRemaining:   planLeft,
		CreditRemaining: creditLeft,
	}
}

// Release credits back exactly the portions recorded for correlationID.
// Only the first call for a successful reservation releases anything.
func (s *Service) Release(ctx context.Context, correlationID string) (consumption.ReleaseOutcome, error) {
	if correlationID == "" {
		return "", fmt.Errorf("%w: correlation_id is required", domain.ErrInvalidRequest)
	}

	ctx, span := s.tracer.Start(ctx, "enforcer.release")
	defer span.End()
	span.SetAttributes(attribute.String("correlation_id", correlationID))

	out, err := s.release(ctx, correlationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.String("outcome", string(out)))
	metrics.ReleasesTotal.WithLabelValues(string(out)).Inc()
	return out, nil
}

func (s *Service) release(ctx context.Context, correlationID string) (consumption.ReleaseOutcome, error) {
	rec, err := s.audit.Get(ctx, correlationID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("Release of unknown reservation", zap.String("correlation_id", correlationID))
		return consumption.ReleaseUnknown, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup record: %w", err)
	}
	if rec.Outcome != consumption.OutcomeAllowed {
		s.logger.Warn("Release of a reservation that was not allowed",
			zap.String("correlation_id", correlationID),
			zap.String("outcome", string(rec.Outcome)),
		)
		return consumption.ReleaseUnknown, nil
	}

	at := s.now().UTC()
	won, err := s.audit.AppendRelease(ctx, correlationID, at)
	if err != nil {
		return "", fmt.Errorf("append release: %w", err)
	}
	if !won {
		s.logger.Warn("Reservation already released", zap.String("correlation_id", correlationID))
		return consumption.ReleaseAlreadyReleased, nil
	}

	if err := s.compensate(context.WithoutCancel(ctx), rec.AccountID, rec.Resource, rec.Breakdown); err != nil {
		return "", s.observe(fmt.Errorf("credit back %s: %w", correlationID, err))
	}
	if s.mirror != nil {
		if err := s.mirror.Release(ctx, correlationID, at); err != nil {
			s.logger.Warn("Failed to mirror release", zap.String("correlation_id", correlationID), zap.Error(err))
		}
	}

	s.logger.Debug("Reservation released",
		zap.String("account_id", rec.AccountID),
		zap.String("resource", string(rec.Resource)),
		zap.String("correlation_id", correlationID),
		zap.Int64("amount", rec.Amount),
	)
	return consumption.ReleaseReleased, nil
}

// compensate credits portions back to their sources, newest first.
// A plan portion from a cycle that has since rolled over is dropped.
func (s *Service) compensate(
	ctx context.Context, accountID string, resource domain.ResourceType, portions []consumption.Portion,
) error {
	var errs []error
	for i := len(portions) - 1; i >= 0; i-- {
		p := portions[i]
		var err error
		if p.IsPlan() {
			err = s.creditPlan(ctx, accountID, resource, p)
		} else {
			err = s.creditLot(ctx, p)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Service) creditPlan(ctx context.Context, accountID string, resource domain.ResourceType, p consumption.Portion) error {
	for i := 0; i < compensationAttempts; i++ {
		entry, err := s.ledgers.Get(ctx, accountID, resource)
		if err != nil {
			return fmt.Errorf("get ledger: %w", err)
		}
		if entry.CycleID() != p.CycleID {
			s.logger.Debug("Plan portion belongs to a past cycle, not credited",
				zap.String("account_id", accountID),
				zap.String("resource", string(resource)),
				zap.Int64("portion_cycle", p.CycleID),
				zap.Int64("current_cycle", entry.CycleID()),
			)
			return nil
		}
		next, err := entry.Consume(-p.Amount)
		if err != nil {
			return err
		}
		_, err = s.ledgers.Swap(ctx, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return fmt.Errorf("credit plan: %w", err)
		}
		metrics.CASConflictsTotal.WithLabelValues("plan").Inc()
	}
	return fmt.Errorf("credit plan %s/%s: %w", accountID, resource, domain.ErrContention)
}

func (s *Service) creditLot(ctx context.Context, p consumption.Portion) error {
	for i := 0; i < compensationAttempts; i++ {
		l, err := s.lots.Get(ctx, p.Source)
		if err != nil {
			return fmt.Errorf("get lot: %w", err)
		}
		next, err := l.Draw(-p.Amount)
		if err != nil {
			return err
		}
		_, err = s.lots.Swap(ctx, next)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return fmt.Errorf("credit lot: %w", err)
		}
		metrics.CASConflictsTotal.WithLabelValues("lot").Inc()
	}
	return fmt.Errorf("credit lot %s: %w", p.Source, domain.ErrContention)
}

// observe logs and counts invariant violations inside err.
func (s *Service) observe(err error) error {
	var v *domain.InvariantViolationError
	if errors.As(err, &v) {
		metrics.InvariantViolationsTotal.Inc()
		s.logger.Error("Quota invariant violation",
			zap.String("target", v.Target),
			zap.String("key", v.Key),
			zap.Int64("value", v.Value),
			zap.Int64("limit", v.Limit),
			zap.Error(err),
		)
	}
	return err
}

func (s *Service) mirrorRecord(ctx context.Context, rec consumption.Record) {
	if s.mirror == nil {
		return
	}
	if err := s.mirror.Record(ctx, rec); err != nil {
		s.logger.Warn("Failed to mirror record", zap.String("correlation_id", rec.CorrelationID), zap.Error(err))
	}
}

func (s *Service) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialBackoff
	b.MaxInterval = s.cfg.MaxBackoff
	b.Reset()
	return b
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func sumPortions(ps []consumption.Portion) int64 {
	var n int64
	for _, p := range ps {
		n += p.Amount
	}
	return n
}
