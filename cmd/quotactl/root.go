package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kailas-cloud/quotagate/internal/app"
	"github.com/kailas-cloud/quotagate/internal/config"
	logpkg "github.com/kailas-cloud/quotagate/internal/logger"
	"github.com/kailas-cloud/quotagate/internal/version"
)

// opener builds the application for one command run. The returned func releases it.
type opener func(ctx context.Context, env string) (*app.App, func(), error)

func openFromConfig(ctx context.Context, env string) (*app.App, func(), error) {
	cfg, err := config.Load(env)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logpkg.NewLogger(logpkg.Options{Env: env, Level: cfg.Logging.Level, Service: "quotactl"})
	if err != nil {
		return nil, nil, err
	}
	store, err := app.OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return a, func() {
		store.Close()
		_ = logger.Sync()
	}, nil
}

func newRootCmd(open opener) *cobra.Command {
	var env string

	rootCmd := &cobra.Command{
		Use:           "quotactl",
		Version:       version.String(),
		Short:         "Operate quotagate: cycle resets, lot expiry, balances and credit grants",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVar(&env, "env", config.GetEnv(), "Config environment (config/<env>.yaml)")

	// withApp opens the application, runs fn and closes it again.
	withApp := func(cmd *cobra.Command, fn func(a *app.App) error) error {
		a, closeFn, err := open(cmd.Context(), env)
		if err != nil {
			return fmt.Errorf("open quotagate: %w", err)
		}
		defer closeFn()
		return fn(a)
	}

	rootCmd.AddCommand(
		newPlansCmd(withApp),
		newResetCycleCmd(withApp),
		newSweepLotsCmd(withApp),
		newBalanceCmd(withApp),
		newGrantLotCmd(withApp),
	)
	return rootCmd
}

type appRunner func(cmd *cobra.Command, fn func(a *app.App) error) error
