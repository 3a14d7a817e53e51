// Package worker is the reference delivery loop: it polls for due entries,
// asks a Picker for a recipient, claims, delivers and records delivery.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
)

// ErrNoCandidate is returned by a Picker when nobody is eligible right now.
var ErrNoCandidate = errors.New("no eligible claimant")

type Picker interface {
	Pick(ctx context.Context, e plans.Entry) (int64, error)
}

type Deliverer interface {
	Deliver(ctx context.Context, e plans.Entry) error
}

// Claims is the part of plans.Service the worker drives.
type Claims interface {
	Now() time.Time
	ListDue(ctx context.Context, asOf time.Time) ([]plans.Entry, error)
	Claim(ctx context.Context, entryID, claimant int64) (plans.Entry, error)
	MarkDelivered(ctx context.Context, entryID int64) (plans.Entry, error)
}

type Result struct {
	Due       int
	Delivered int
	Skipped   int
	Failed    int
}

type Worker struct {
	Plans     Claims
	Picker    Picker
	Deliverer Deliverer
	Interval  time.Duration
	Logger    zerolog.Logger
	// Wake triggers an early tick, e.g. when a plan is created elsewhere.
	Wake <-chan struct{}
	// OnTick is called once per tick when set.
	OnTick func()

	mu sync.Mutex
}

func (w *Worker) Run(ctx context.Context) error {
	t := time.NewTicker(w.Interval)
	defer t.Stop()

	w.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			w.tick(ctx)
		case <-w.Wake:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	res, err := w.Tick(ctx)
	if err != nil {
		w.Logger.Error().Err(err).Msg("worker: due entries query failed")
		return
	}
	if res.Due > 0 {
		w.Logger.Info().
			Int("due", res.Due).
			Int("delivered", res.Delivered).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("worker tick")
	}
}

// Tick processes every entry due now. Ticks of one worker never overlap;
// separate workers rely on the claim contract.
func (w *Worker) Tick(ctx context.Context) (Result, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.OnTick != nil {
		w.OnTick()
	}

	due, err := w.Plans.ListDue(ctx, w.Plans.Now())
	if err != nil {
		return Result{}, err
	}

	res := Result{Due: len(due)}
	for _, e := range due {
		if ctx.Err() != nil {
			break
		}
		switch err := w.process(ctx, e); {
		case err == nil:
			res.Delivered++
		case errors.Is(err, ErrNoCandidate), internaltypes.IsContention(err):
			res.Skipped++
		default:
			res.Failed++
		}
	}
	return res, nil
}

func (w *Worker) process(ctx context.Context, e plans.Entry) error {
	log := w.Logger.With().Int64("entry_id", e.ID).Str("plan_id", e.PlanID).Logger()

	claimant, err := w.Picker.Pick(ctx, e)
	if err != nil {
		if !errors.Is(err, ErrNoCandidate) {
			log.Warn().Err(err).Msg("pick failed")
		}
		return err
	}

	claimed, err := w.Plans.Claim(ctx, e.ID, claimant)
	if err != nil {
		if internaltypes.IsContention(err) {
			log.Debug().Err(err).Int64("claimant", claimant).Msg("claim lost")
		} else {
			log.Warn().Err(err).Msg("claim failed")
		}
		return err
	}

	if err := w.Deliverer.Deliver(ctx, claimed); err != nil {
		log.Error().Err(err).Int64("claimant", claimant).Msg("delivery failed; entry stays claimed")
		return err
	}
	if _, err := w.Plans.MarkDelivered(ctx, claimed.ID); err != nil {
		log.Error().Err(err).Msg("mark delivered failed")
		return err
	}
	return nil
}
