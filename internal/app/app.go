// Package app assembles repositories and services from configuration.
// It is shared by the API server, the operator CLI and the embedded SDK.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/quotagate/internal/config"
	"github.com/kailas-cloud/quotagate/internal/db"
	"github.com/kailas-cloud/quotagate/internal/db/memory"
	dbRedis "github.com/kailas-cloud/quotagate/internal/db/redis"
	"github.com/kailas-cloud/quotagate/internal/domain/plan"
	accountrepo "github.com/kailas-cloud/quotagate/internal/repository/account"
	auditrepo "github.com/kailas-cloud/quotagate/internal/repository/audit"
	"github.com/kailas-cloud/quotagate/internal/repository/lease"
	ledgerrepo "github.com/kailas-cloud/quotagate/internal/repository/ledger"
	lotrepo "github.com/kailas-cloud/quotagate/internal/repository/lot"
	accountuc "github.com/kailas-cloud/quotagate/internal/usecase/account"
	"github.com/kailas-cloud/quotagate/internal/usecase/enforcer"
	lotsuc "github.com/kailas-cloud/quotagate/internal/usecase/lots"
	"github.com/kailas-cloud/quotagate/internal/usecase/scheduler"
	usageuc "github.com/kailas-cloud/quotagate/internal/usecase/usage"
)

// App holds the wired services over one store.
type App struct {
	Store   db.Store
	Catalog plan.Catalog

	Ledgers  *ledgerrepo.Repo
	LotRepo  *lotrepo.Repo
	Audit    *auditrepo.Repo
	Accounts *accountrepo.Repo
	Leases   *lease.Store

	Enforcer  *enforcer.Service
	Lots      *lotsuc.Service
	Registry  *accountuc.Service
	Usage     *usageuc.Service
	Scheduler *scheduler.Service
}

// OpenStore connects to the configured backend and waits until it answers.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (db.Store, error) {
	var store db.Store
	switch cfg.Driver {
	case config.DriverMemory:
		return memory.New(), nil
	case config.DriverRedis, config.DriverValkey:
		s, err := dbRedis.NewStore(dbRedis.Config{
			Addrs:      cfg.Addrs,
			Username:   cfg.Username,
			Password:   cfg.Password,
			ClientName: cfg.ClientName,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create %s store: %w", cfg.Driver, err)
		}
		store = s
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}

	if err := store.WaitForReady(ctx, time.Duration(cfg.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return nil, fmt.Errorf("database not ready: %w", err)
	}
	return store, nil
}

// New wires repositories and services over store.
func New(cfg config.Config, store db.Store, logger *zap.Logger) (*App, error) {
	cat, err := cfg.Catalog()
	if err != nil {
		return nil, err
	}

	prefix := cfg.Storage.KeyPrefix
	a := &App{
		Store:    store,
		Catalog:  cat,
		Ledgers:  ledgerrepo.New(store, prefix),
		LotRepo:  lotrepo.New(store, prefix),
		Audit:    auditrepo.New(store, prefix),
		Accounts: accountrepo.New(store, prefix),
		Leases:   lease.New(store, prefix),
	}

	a.Enforcer = enforcer.New(a.Ledgers, a.LotRepo, a.Audit, a.Accounts, cat, a.Leases, logger).
		WithConfig(enforcer.Config{
			MaxAttempts:    cfg.Enforcer.MaxAttempts,
			InitialBackoff: cfg.Enforcer.InitialBackoff(),
			MaxBackoff:     cfg.Enforcer.MaxBackoff(),
			ClaimTTL:       cfg.Enforcer.ClaimTTL(),
		})
	a.Lots = lotsuc.New(a.LotRepo, logger)
	a.Registry = accountuc.New(a.Accounts, cat, logger)
	a.Usage = usageuc.New(a.Accounts, a.Ledgers, a.LotRepo, cat, a.Audit)
	a.Scheduler = scheduler.New(a.Accounts, a.Ledgers, cat, logger)
	return a, nil
}

// RunWorkers starts the cycle reset and lot expiry loops and blocks until ctx is done.
func (a *App) RunWorkers(ctx context.Context, cfg config.SchedulerConfig, logger *zap.Logger) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		a.Scheduler.Run(ctx, time.Duration(cfg.IntervalSec)*time.Second)
	}()

	scheduler.Loop(ctx, time.Duration(cfg.SweepIntervalSec)*time.Second,
		logger.With(zap.String("worker", "lot_expiry")),
		func(ctx context.Context, now time.Time) error {
			_, err := a.Lots.ExpireSweep(ctx, now)
			return err
		}, time.Now)
	<-done
}
