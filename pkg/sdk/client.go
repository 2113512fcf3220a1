package quotagate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/app"
	"github.com/kailas-cloud/quotagate/internal/config"
	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/domain"
	domaccount "github.com/kailas-cloud/quotagate/internal/domain/account"
	"github.com/kailas-cloud/quotagate/internal/domain/consumption"
	domlot "github.com/kailas-cloud/quotagate/internal/domain/lot"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
	domusage "github.com/kailas-cloud/quotagate/internal/domain/usage"
	accountuc "github.com/kailas-cloud/quotagate/internal/usecase/account"
	"github.com/kailas-cloud/quotagate/internal/usecase/enforcer"
	healthuc "github.com/kailas-cloud/quotagate/internal/usecase/health"
	lotsuc "github.com/kailas-cloud/quotagate/internal/usecase/lots"
)

const defaultReadinessTimeoutSec = 10

// Internal interfaces, replaced in tests.
type quotaUseCase interface {
	Reserve(ctx context.Context, req enforcer.ReserveRequest) (consumption.Decision, error)
	Release(ctx context.Context, correlationID string) (consumption.ReleaseOutcome, error)
}

type lotUseCase interface {
	CreateLot(ctx context.Context, req lotsuc.CreateRequest) (domlot.Lot, bool, error)
}

type accountUseCase interface {
	Upsert(ctx context.Context, req accountuc.UpsertRequest) (domaccount.Account, bool, error)
	SetPlan(ctx context.Context, id string, tier plan.Tier) (domaccount.Account, error)
}

type balanceUseCase interface {
	GetBalance(ctx context.Context, accountID string, resource domain.ResourceType) (domusage.Balance, error)
}

// Client is the quotagate SDK entry point.
type Client struct {
	store      db.Store
	quotaSvc   quotaUseCase
	lotSvc     lotUseCase
	accountSvc accountUseCase
	balanceSvc balanceUseCase
	healthSvc  healthUseCase
	obs        *observer
	newID      func() string
}

// New creates a quotagate Client and connects to the shared store.
// The provided context is used for the initial readiness check.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := &clientConfig{}
	for _, o := range opts {
		o.apply(cfg)
	}

	if cfg.driver == "" {
		return nil, errors.New("quotagate: store required (use WithValkey, WithRedis or WithMemory)")
	}
	if len(cfg.plans) == 0 {
		return nil, errors.New("quotagate: plans required (use WithPlans)")
	}

	appCfg := config.Config{
		Database: config.DatabaseConfig{
			Driver:           cfg.driver,
			Addrs:            cfg.addrs,
			Password:         cfg.password,
			ClientName:       "quotagate-sdk",
			ReadinessTimeout: defaultReadinessTimeoutSec,
		},
		Storage: config.StorageConfig{KeyPrefix: cfg.keyPrefix},
		Plans:   cfg.plans,
		Enforcer: config.EnforcerConfig{
			MaxAttempts:      cfg.maxAttempts,
			BackoffInitialMs: int(cfg.initialBackoff / time.Millisecond),
			BackoffMaxMs:     int(cfg.maxBackoff / time.Millisecond),
		},
	}
	appCfg.ApplyDefaults()

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := app.OpenStore(ctx, appCfg.Database)
	if err != nil {
		return nil, fmt.Errorf("quotagate: %w", err)
	}

	logger := cfg.serviceLogger
	if logger == nil {
		logger = zap.NewNop()
	}
	a, err := app.New(appCfg, store, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("quotagate: %w", err)
	}

	return &Client{
		store:      store,
		quotaSvc:   a.Enforcer,
		lotSvc:     a.Lots,
		accountSvc: a.Registry,
		balanceSvc: a.Usage,
		healthSvc:  healthuc.New(store, nil),
		obs:        obs,
		newID:      uuid.NewString,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks store connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Reserve consumes quota before metered work. A repeated CorrelationID returns
// the original decision with Replayed set.
func (c *Client) Reserve(ctx context.Context, req ReserveRequest) (_ Decision, err error) {
	start := time.Now()
	defer func() { c.obs.observe("reserve", start, err) }()

	d, err := c.quotaSvc.Reserve(ctx, enforcer.ReserveRequest{
		AccountID:     req.AccountID,
		Resource:      domain.ResourceType(req.Resource),
		Amount:        req.Amount,
		CorrelationID: req.CorrelationID,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("reserve: %w", err)
	}
	out := decisionFromDomain(d)
	c.obs.decision(req.Resource, out)
	return out, nil
}

// Release credits a reservation back after the metered work failed.
// It returns "released", "already_released" or "unknown".
func (c *Client) Release(ctx context.Context, correlationID string) (_ string, err error) {
	start := time.Now()
	defer func() { c.obs.observe("release", start, err) }()

	outcome, err := c.quotaSvc.Release(ctx, correlationID)
	if err != nil {
		return "", fmt.Errorf("release: %w", err)
	}
	return string(outcome), nil
}

// AddLot records a purchased credit pack. The bool is false when the
// idempotency key was already used; the original lot is returned.
func (c *Client) AddLot(ctx context.Context, req LotRequest) (_ Lot, _ bool, err error) {
	start := time.Now()
	defer func() { c.obs.observe("add_lot", start, err) }()

	l, created, err := c.lotSvc.CreateLot(ctx, lotsuc.CreateRequest{
		AccountID:      req.AccountID,
		Resource:       domain.ResourceType(req.Resource),
		Quantity:       req.Quantity,
		ExpiresAt:      req.ExpiresAt,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return Lot{}, false, fmt.Errorf("add lot: %w", err)
	}
	return lotFromDomain(l), created, nil
}

// UpsertAccount registers an account. For an existing account a different
// tier becomes a pending change applied at the next cycle boundary.
func (c *Client) UpsertAccount(ctx context.Context, id, tier string, anchor time.Time) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("upsert_account", start, err) }()

	if _, _, err = c.accountSvc.Upsert(ctx, accountuc.UpsertRequest{
		ID:     id,
		Tier:   plan.Tier(tier),
		Anchor: anchor,
	}); err != nil {
		return fmt.Errorf("upsert account: %w", err)
	}
	return nil
}

// SetPlan schedules a plan change for the next cycle boundary.
func (c *Client) SetPlan(ctx context.Context, id, tier string) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("set_plan", start, err) }()

	if _, err = c.accountSvc.SetPlan(ctx, id, plan.Tier(tier)); err != nil {
		return fmt.Errorf("set plan: %w", err)
	}
	return nil
}

// Balance returns the remaining plan allowance and credit for a resource.
func (c *Client) Balance(ctx context.Context, accountID string, res Resource) (_ Balance, err error) {
	start := time.Now()
	defer func() { c.obs.observe("balance", start, err) }()

	b, err := c.balanceSvc.GetBalance(ctx, accountID, domain.ResourceType(res))
	if err != nil {
		return Balance{}, fmt.Errorf("balance: %w", err)
	}
	return balanceFromDomain(b), nil
}
