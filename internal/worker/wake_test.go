package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dropsched/internal/infrastructure/memory"
	"github.com/example/dropsched/internal/plans"
)

type countingPublisher struct {
	n   atomic.Int32
	err error
}

func (p *countingPublisher) Publish(context.Context, plans.Event) error {
	p.n.Add(1)
	return p.err
}

func TestSignalCoalesces(t *testing.T) {
	s := NewSignal()
	s.Notify()
	s.Notify()
	<-s.C()
	select {
	case <-s.C():
		t.Fatal("second notify should have been folded into the first")
	default:
	}
}

func TestWakingPublisherForwards(t *testing.T) {
	next := &countingPublisher{err: errors.New("redis down")}
	s := NewSignal()
	p := WakingPublisher{Next: next, Signal: s}

	err := p.Publish(context.Background(), plans.Event{Type: plans.EventEntryClaimed})
	assert.Error(t, err)
	select {
	case <-s.C():
		t.Fatal("only plan.created wakes the worker")
	default:
	}

	_ = p.Publish(context.Background(), plans.Event{Type: plans.EventPlanCreated})
	assert.Equal(t, int32(2), next.n.Load())
	select {
	case <-s.C():
	default:
		t.Fatal("plan.created did not wake the worker")
	}

	assert.NoError(t, WakingPublisher{Signal: NewSignal()}.Publish(context.Background(), plans.Event{Type: plans.EventPlanCreated}))
}

func TestLocalPlanWakesIdleWorker(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := plans.New(memory.NewStore(), zerolog.Nop())
	svc.SetClock(fixedClock{now})
	sig := NewSignal()
	svc.SetPublisher(WakingPublisher{Signal: sig})

	var ticks atomic.Int32
	d := &recordingDeliverer{}
	w := &Worker{
		Plans: svc, Picker: &seqPicker{}, Deliverer: d,
		Interval: time.Hour, Logger: zerolog.Nop(), Wake: sig.C(),
		OnTick: func() { ticks.Add(1) },
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Run(ctx) }()
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)

	_, _, err := svc.CreatePlan(ctx, plans.CreateRequest{
		Family:      plans.FamilyPromo,
		Items:       []string{"A"},
		WindowHours: 1,
		Start:       now.Add(-time.Hour),
	})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		d.mu.Lock()
		defer d.mu.Unlock()
		return len(d.seen) == 1
	}, 2*time.Second, 10*time.Millisecond, "the hourly poll is far away; only the wakeup can deliver")
}
