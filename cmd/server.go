package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/dropsched/internal/web"
)

func newServerCmd() *cobra.Command {
	var (
		migrateUp  bool
		withWorker bool
	)

	cmd := &cobra.Command{
		Use:   "server",
		Short: "Run the admin API (and optionally the delivery worker)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, appOptions{migrate: migrateUp, events: true})
			if err != nil {
				return err
			}
			defer a.Close()

			if withWorker {
				w, err := a.newWorker(ctx)
				if err != nil {
					return err
				}
				go func() {
					if err := w.Run(ctx); err != nil {
						a.logger.Error().Err(err).Msg("worker stopped")
					}
				}()
			}

			ws := &web.Server{
				Auth:        a.auth,
				Plans:       a.plans,
				Promo:       a.promo,
				Randy:       a.randy,
				Settings:    a.settings,
				Broadcast:   a.broadcast,
				Community:   a.community,
				Metrics:     a.metrics,
				WorkerToken: a.cfg.WorkerToken,
				Location:    a.cfg.Timezone,
				Logger:      a.logger,
			}
			if a.cfg.WorkerToken == "" {
				a.logger.Warn().Msg("WORKER_TOKEN is empty; /api/worker endpoints are disabled")
			}
			return web.Start(ctx, a.cfg.ListenAddr, ws.Routes(), a.logger)
		},
	}

	cmd.Flags().BoolVar(&migrateUp, "migrate", true, "run database migrations on startup")
	cmd.Flags().BoolVar(&withWorker, "worker", false, "run the delivery worker in-process (requires BOT_WEBHOOK_URL)")

	cmd.Flags().Lookup("migrate").NoOptDefVal = "true"
	return cmd
}
