package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/dropsched/internal/plans"
)

func newPlanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Inspect and reset distribution plans",
	}
	cmd.AddCommand(newPlanListCmd())
	cmd.AddCommand(newPlanDueCmd())
	cmd.AddCommand(newPlanResetCmd())
	return cmd
}

func newPlanListCmd() *cobra.Command {
	var family string
	c := &cobra.Command{
		Use:   "list",
		Short: "List plans with claim counters",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			sums, err := a.plans.ListPlans(ctx, plans.Family(family))
			if err != nil {
				return err
			}
			for _, s := range sums {
				fmt.Fprintf(cmd.OutOrStdout(), "id=%s family=%s scope=%s start=%s entries=%d claimed=%d delivered=%d label=%q\n",
					s.ID, s.Family, s.ClaimScope, s.WindowStart.In(a.cfg.Timezone).Format(time.RFC3339),
					s.Total, s.Claimed, s.Delivered, s.Label)
			}
			return nil
		},
	}
	c.Flags().StringVar(&family, "family", "", "only plans of this family (promo or randy)")
	return c
}

func newPlanDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "due",
		Short: "List unclaimed entries whose time has come",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			due, err := a.plans.ListDue(ctx, a.plans.Now())
			if err != nil {
				return err
			}
			for _, e := range due {
				fmt.Fprintf(cmd.OutOrStdout(), "entry=%d plan=%s family=%s at=%s item=%s\n",
					e.ID, e.PlanID, e.Family, e.ScheduledAt.In(a.cfg.Timezone).Format(time.RFC3339), e.ItemID)
			}
			return nil
		},
	}
}

func newPlanResetCmd() *cobra.Command {
	var (
		family string
		all    bool
	)
	c := &cobra.Command{
		Use:   "reset [plan-id]",
		Short: "Delete one plan, a whole family, or everything (--all)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, appOptions{events: true})
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			switch {
			case len(args) == 1:
				if err := a.plans.ResetPlan(ctx, args[0]); err != nil {
					return err
				}
				red.Fprintf(out, "deleted plan %s\n", args[0])
			case family != "":
				n, err := a.plans.ResetFamily(ctx, plans.Family(family))
				if err != nil {
					return err
				}
				red.Fprintf(out, "deleted %d %s plans\n", n, family)
			case all:
				if err := a.plans.ResetAll(ctx); err != nil {
					return err
				}
				red.Fprintln(out, "all plans, codes and settings deleted")
			default:
				return fmt.Errorf("give a plan id, --family or --all")
			}
			return nil
		},
	}
	c.Flags().StringVar(&family, "family", "", "delete every plan of this family")
	c.Flags().BoolVar(&all, "all", false, "delete all plans, codes and settings")
	return c
}
