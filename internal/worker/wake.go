package worker

import (
	"context"

	"github.com/example/dropsched/internal/plans"
)

// Signal coalesces wakeups; at most one is pending at a time.
type Signal struct{ c chan struct{} }

func NewSignal() *Signal { return &Signal{c: make(chan struct{}, 1)} }

func (s *Signal) Notify() {
	select {
	case s.c <- struct{}{}:
	default:
	}
}

func (s *Signal) C() <-chan struct{} { return s.c }

// WakingPublisher wakes an in-process worker on plan.created before handing
// the event to Next. The event bus skips a node's own events, so this is the
// only wakeup for plans created by the same process.
type WakingPublisher struct {
	Next   plans.Publisher
	Signal *Signal
}

func (p WakingPublisher) Publish(ctx context.Context, ev plans.Event) error {
	if ev.Type == plans.EventPlanCreated {
		p.Signal.Notify()
	}
	if p.Next == nil {
		return nil
	}
	return p.Next.Publish(ctx, ev)
}

var _ plans.Publisher = WakingPublisher{}
