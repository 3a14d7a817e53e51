package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/dropsched/internal/broadcast"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/worker"
	"github.com/example/dropsched/internal/worker/webhook"
)

func newWorkerCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Deliver due entries through the bot webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := openApp(ctx, appOptions{events: !once})
			if err != nil {
				return err
			}
			defer a.Close()

			if a.db == nil {
				return errors.New("worker needs a shared store; run `server --worker` when STORE=memory")
			}

			w, err := a.newWorker(ctx)
			if err != nil {
				return err
			}
			if once {
				res, err := w.Tick(ctx)
				if err != nil {
					return err
				}
				a.logger.Info().
					Int("due", res.Due).
					Int("delivered", res.Delivered).
					Int("skipped", res.Skipped).
					Int("failed", res.Failed).
					Msg("tick finished")
				return nil
			}
			return w.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "run a single tick and exit")
	return cmd
}

func (a *app) newWorker(ctx context.Context) (*worker.Worker, error) {
	if a.cfg.BotWebhookURL == "" {
		return nil, errors.New("BOT_WEBHOOK_URL is required for the worker")
	}
	bot := webhook.New(a.cfg.BotWebhookURL, a.cfg.WorkerToken).WithPlans(a.plans)
	sig := worker.NewSignal()
	w := &worker.Worker{
		Plans:     a.plans,
		Picker:    broadcast.Picker{Next: bot},
		Deliverer: bot,
		Interval:  a.cfg.PollInterval,
		Logger:    a.logger,
		Wake:      sig.C(),
		OnTick:    a.metrics.WorkerTick,
	}

	// plans created by this process never come back over the bus
	var next plans.Publisher
	if a.bus != nil {
		next = a.bus
		if err := a.wakeOnCreate(ctx, sig); err != nil {
			return nil, err
		}
	}
	a.plans.SetPublisher(worker.WakingPublisher{Next: next, Signal: sig})
	return w, nil
}

// wakeOnCreate turns plan.created events from other nodes into worker wakeups.
func (a *app) wakeOnCreate(ctx context.Context, sig *worker.Signal) error {
	events, err := a.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	go func() {
		for ev := range events {
			if ev.Type == plans.EventPlanCreated {
				sig.Notify()
			}
		}
	}()
	return nil
}
