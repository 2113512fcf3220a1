package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kailas-cloud/quotagate/internal/app"
	"github.com/kailas-cloud/quotagate/internal/domain"
	lotsuc "github.com/kailas-cloud/quotagate/internal/usecase/lots"
)

func newPlansCmd(run appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "plans",
		Short: "List plan tiers and their monthly allowances",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(a *app.App) error {
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintln(tw, "TIER\tRESOURCE\tALLOWANCE")
				for _, tier := range a.Catalog.Tiers() {
					allowances, err := a.Catalog.Allowances(tier)
					if err != nil {
						return err
					}
					resources := make([]string, 0, len(allowances))
					for res := range allowances {
						resources = append(resources, string(res))
					}
					sort.Strings(resources)
					for _, res := range resources {
						_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\n", tier, res, allowances[domain.ResourceType(res)])
					}
				}
				return tw.Flush()
			})
		},
	}
}

func newResetCycleCmd(run appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-cycle",
		Short: "Apply due cycle resets and pending plan changes once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(a *app.App) error {
				rep, err := a.Scheduler.RunOnce(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(),
					"accounts: %d applied: %d initialized: %d noop: %d promoted: %d unknown_plan: %d failed: %d\n",
					rep.Accounts, rep.Applied, rep.Initialized, rep.Noop, rep.Promoted, rep.UnknownPlan, rep.Failed)
				if err != nil {
					return err
				}
				if rep.Failed > 0 {
					return fmt.Errorf("%d resets failed", rep.Failed)
				}
				return nil
			})
		},
	}
}

func newSweepLotsCmd(run appRunner) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep-lots",
		Short: "Mark expired credit lots",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(a *app.App) error {
				n, err := a.Lots.ExpireSweep(cmd.Context(), time.Now())
				if err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "expired: %d\n", n)
				return err
			})
		},
	}
}

func newBalanceCmd(run appRunner) *cobra.Command {
	var accountID, resource string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show plan and credit balance for an account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := domain.ParseResourceType(resource)
			if err != nil {
				return err
			}
			return run(cmd, func(a *app.App) error {
				b, err := a.Usage.GetBalance(cmd.Context(), accountID, res)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, map[string]any{
						"account_id":       b.AccountID(),
						"resource":         b.Resource(),
						"tier":             b.Tier(),
						"pending_tier":     b.PendingTier(),
						"cycle_id":         b.CycleID(),
						"monthly_quota":    b.MonthlyQuota(),
						"used":             b.Used(),
						"plan_remaining":   b.PlanRemaining(),
						"credit_remaining": b.CreditRemaining(),
						"resets_at":        b.ResetsAt(),
					})
				}
				_, err = fmt.Fprintf(out,
					"%s %s tier=%s cycle=%d plan=%d/%d credit=%d resets_at=%s\n",
					b.AccountID(), b.Resource(), b.Tier(), b.CycleID(),
					b.PlanRemaining(), b.MonthlyQuota(), b.CreditRemaining(),
					b.ResetsAt().Format(time.RFC3339))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&resource, "resource", string(domain.ResourceAICall), "Resource type")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")
	_ = cmd.MarkFlagRequired("account")
	return cmd
}

func newGrantLotCmd(run appRunner) *cobra.Command {
	var accountID, resource, key string
	var quantity int64
	var expiresIn time.Duration

	cmd := &cobra.Command{
		Use:   "grant-lot",
		Short: "Grant a credit lot outside the payment flow (support credits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := domain.ParseResourceType(resource)
			if err != nil {
				return err
			}
			if key == "" {
				key = "grant-" + uuid.NewString()
			}
			return run(cmd, func(a *app.App) error {
				l, created, err := a.Lots.CreateLot(cmd.Context(), lotsuc.CreateRequest{
					AccountID:      accountID,
					Resource:       res,
					Quantity:       quantity,
					ExpiresAt:      time.Now().Add(expiresIn),
					IdempotencyKey: key,
				})
				if err != nil {
					return err
				}
				state := "created"
				if !created {
					state = "existing"
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s lot %s: %d %s expires %s\n",
					state, l.ID(), l.Quantity(), l.Resource(), l.ExpiresAt().Format(time.RFC3339))
				return err
			})
		},
	}

	cmd.Flags().StringVar(&accountID, "account", "", "Account ID")
	cmd.Flags().StringVar(&resource, "resource", string(domain.ResourceAICall), "Resource type")
	cmd.Flags().Int64Var(&quantity, "quantity", 0, "Units in the lot")
	cmd.Flags().DurationVar(&expiresIn, "expires-in", 30*24*time.Hour, "Lot lifetime")
	cmd.Flags().StringVar(&key, "idempotency-key", "", "Idempotency key (default: random)")
	_ = cmd.MarkFlagRequired("account")
	_ = cmd.MarkFlagRequired("quantity")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
