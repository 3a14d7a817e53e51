package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/dropsched/internal/promo"
)

func newPromoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promo",
		Short: "Manage the promo code pool",
	}
	cmd.AddCommand(newPromoUploadCmd())
	cmd.AddCommand(newPromoScheduleCmd())
	cmd.AddCommand(newPromoListCmd())
	cmd.AddCommand(newPromoResetCmd())
	return cmd
}

func newPromoUploadCmd() *cobra.Command {
	var file string
	c := &cobra.Command{
		Use:   "upload [code...]",
		Short: "Add codes from arguments or a file (one per line, - for stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			codes := append([]string(nil), args...)
			if file != "" {
				fromFile, err := readLines(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				codes = append(codes, fromFile...)
			}

			ctx := context.Background()
			a, err := openApp(ctx, appOptions{migrate: true})
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.promo.Upload(ctx, codes)
			if err != nil {
				return err
			}
			green.Fprintf(cmd.OutOrStdout(), "inserted %d of %d codes\n", n, len(codes))
			return nil
		},
	}
	c.Flags().StringVar(&file, "file", "", "file with one code per line")
	return c
}

func newPromoScheduleCmd() *cobra.Command {
	var (
		hours       float64
		count       int
		minMessages int
		onePerUser  string
		start       string
	)
	c := &cobra.Command{
		Use:   "schedule",
		Short: "Spread unused codes over a window",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, appOptions{migrate: true, events: true})
			if err != nil {
				return err
			}
			defer a.Close()

			req := promo.ScheduleRequest{Hours: hours, Count: count, MinMessages: minMessages}
			switch strings.ToLower(onePerUser) {
			case "":
			case "true", "yes", "1":
				v := true
				req.OnePerUser = &v
			case "false", "no", "0":
				v := false
				req.OnePerUser = &v
			default:
				return fmt.Errorf("invalid --one-per-user %q", onePerUser)
			}
			if start != "" {
				t, err := time.ParseInLocation("2006-01-02 15:04", start, a.cfg.Timezone)
				if err != nil {
					return fmt.Errorf("invalid --start (want YYYY-MM-DD HH:MM): %w", err)
				}
				req.Start = t
			}

			p, entries, err := a.promo.Schedule(ctx, req)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "plan %s scope=%s window=%s..%s\n", p.ID, p.ClaimScope,
				p.WindowStart.In(a.cfg.Timezone).Format(time.RFC3339), p.WindowEnd().In(a.cfg.Timezone).Format(time.RFC3339))
			for _, e := range entries {
				fmt.Fprintf(out, "  %s  %s\n", e.ScheduledAt.In(a.cfg.Timezone).Format("2006-01-02 15:04:05"), e.ItemID)
			}
			return nil
		},
	}
	c.Flags().Float64Var(&hours, "hours", 0, "window length in hours")
	c.Flags().IntVar(&count, "count", 0, "number of codes to schedule (0 = all unused)")
	c.Flags().IntVar(&minMessages, "min-messages", 0, "messages a member needs to be eligible")
	c.Flags().StringVar(&onePerUser, "one-per-user", "", "true/false; empty uses the saved setting")
	c.Flags().StringVar(&start, "start", "", "window start in TIMEZONE (YYYY-MM-DD HH:MM); default now")
	_ = c.MarkFlagRequired("hours")
	return c
}

func newPromoListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List codes and their schedule state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			a, err := openApp(ctx, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			codes, err := a.promo.List(ctx)
			if err != nil {
				return err
			}
			for _, c := range codes {
				state := "unscheduled"
				switch {
				case c.Delivered:
					state = green.Sprint("delivered")
				case c.Claimed:
					state = cyan.Sprint("claimed")
				case c.ScheduledAt != nil:
					state = yellow.Sprint("scheduled " + c.ScheduledAt.In(a.cfg.Timezone).Format("2006-01-02 15:04:05"))
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", c.Code, state)
			}
			return nil
		},
	}
}

func newPromoResetCmd() *cobra.Command {
	var yes bool
	c := &cobra.Command{
		Use:   "reset",
		Short: "Delete every promo schedule and the code pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to reset without --yes")
			}
			ctx := context.Background()
			a, err := openApp(ctx, appOptions{events: true})
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.promo.Reset(ctx); err != nil {
				return err
			}
			red.Fprintln(cmd.OutOrStdout(), "promo codes reset")
			return nil
		},
	}
	c.Flags().BoolVar(&yes, "yes", false, "confirm the reset")
	return c
}

func readLines(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		out = append(out, sc.Text())
	}
	return out, sc.Err()
}
