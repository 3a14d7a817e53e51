package plans_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dropsched/internal/infrastructure/memory"
	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
)

var start = time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type capturePublisher struct {
	mu     sync.Mutex
	events []plans.Event
	err    error
}

func (p *capturePublisher) Publish(_ context.Context, ev plans.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *capturePublisher) types() []plans.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]plans.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (r *countingRecorder) PlanCreated(plans.Family, int) {}
func (r *countingRecorder) Delivered(plans.Family)        {}
func (r *countingRecorder) ClaimAttempt(o string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.outcomes == nil {
		r.outcomes = map[string]int{}
	}
	r.outcomes[o]++
}

func newService(t *testing.T) *plans.Service {
	t.Helper()
	svc := plans.New(memory.NewStore(), zerolog.Nop())
	svc.SetClock(fixedClock{start.Add(24 * time.Hour)})
	svc.SetRand(rand.New(rand.NewPCG(3, 5)))
	return svc
}

func create(t *testing.T, svc *plans.Service, scope plans.ClaimScope, hours float64, items ...string) (plans.Plan, []plans.Entry) {
	t.Helper()
	p, entries, err := svc.CreatePlan(context.Background(), plans.CreateRequest{
		Family:      plans.FamilyPromo,
		Items:       items,
		WindowHours: hours,
		Start:       start,
		Scope:       scope,
	})
	require.NoError(t, err)
	return p, entries
}

func TestCreatePlanFiveItems(t *testing.T) {
	svc := newService(t)
	p, entries := create(t, svc, plans.ScopeNone, 1, "a", "b", "c", "d", "e")

	assert.Equal(t, int64(3600), p.WindowSeconds)
	require.Len(t, entries, 5)
	items := map[string]bool{}
	times := map[time.Time]bool{}
	for i, e := range entries {
		assert.Equal(t, p.ID, e.PlanID)
		assert.Equal(t, i, e.Position)
		assert.False(t, e.ScheduledAt.Before(start))
		assert.True(t, e.ScheduledAt.Before(p.WindowEnd()))
		if i > 0 {
			assert.False(t, e.ScheduledAt.Before(entries[i-1].ScheduledAt))
		}
		items[e.ItemID] = true
		times[e.ScheduledAt] = true
	}
	assert.Len(t, items, 5)
	assert.Len(t, times, 5)
	assert.Equal(t, "a", entries[0].ItemID, "pool order pairs with sorted slots")
	assert.Equal(t, "e", entries[4].ItemID)
}

func TestCreatePlanValidation(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		req  plans.CreateRequest
		want error
	}{
		{"empty pool", plans.CreateRequest{Family: plans.FamilyPromo, WindowHours: 1}, internaltypes.ErrEmptyPool},
		{"zero hours", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a"}}, internaltypes.ErrInvalidArgument},
		{"negative hours", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a"}, WindowHours: -1}, internaltypes.ErrInvalidArgument},
		{"sub-second window", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a"}, WindowHours: 0.0001}, internaltypes.ErrInvalidArgument},
		{"blank item", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a", " "}, WindowHours: 1}, internaltypes.ErrInvalidArgument},
		{"duplicate item", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a", "a"}, WindowHours: 1}, internaltypes.ErrInvalidArgument},
		{"no family", plans.CreateRequest{Items: []string{"a"}, WindowHours: 1}, internaltypes.ErrInvalidArgument},
		{"bad scope", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a"}, WindowHours: 1, Scope: "galaxy"}, internaltypes.ErrInvalidArgument},
		{"window too long", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a"}, WindowHours: 3e6}, internaltypes.ErrInvalidArgument},
		{"negative window seconds", plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"a"}, WindowSeconds: -5}, internaltypes.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.CreatePlan(ctx, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	sums, err := svc.ListPlans(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, sums, "failed creates leave nothing behind")
}

func TestCreatePlanWindowSecondsOverridesHours(t *testing.T) {
	svc := newService(t)
	p, entries, err := svc.CreatePlan(context.Background(), plans.CreateRequest{
		Family:        plans.FamilyAnnouncement,
		Items:         []string{"only"},
		WindowHours:   5,
		WindowSeconds: 1,
		Start:         start,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), p.WindowSeconds)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].ScheduledAt.Equal(start), "a one-second window pins the slot to its start")
}

func TestConcurrentCreatesShareSeededRand(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			items := make([]string, 20)
			for i := range items {
				items[i] = fmt.Sprintf("w%d-%d", w, i)
			}
			_, entries, err := svc.CreatePlan(ctx, plans.CreateRequest{Family: plans.FamilyPromo, Items: items, WindowHours: 1, Start: start})
			if err == nil && len(entries) != len(items) {
				err = fmt.Errorf("worker %d stored %d entries", w, len(entries))
			}
			errs <- err
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	sums, err := svc.ListPlans(ctx, plans.FamilyPromo)
	require.NoError(t, err)
	assert.Len(t, sums, workers)
}

func TestCreatePlanRejectsItemAlreadyScheduled(t *testing.T) {
	svc := newService(t)
	create(t, svc, plans.ScopeNone, 1, "A", "B")

	_, _, err := svc.CreatePlan(context.Background(), plans.CreateRequest{
		Family: plans.FamilyPromo, Items: []string{"C", "B"}, WindowHours: 1,
	})
	require.ErrorIs(t, err, internaltypes.ErrAlreadyScheduled)

	sums, err := svc.ListPlans(context.Background(), plans.FamilyPromo)
	require.NoError(t, err)
	assert.Len(t, sums, 1)

	_, _, err = svc.CreatePlan(context.Background(), plans.CreateRequest{
		Family: plans.FamilyRandy, Items: []string{"B"}, WindowHours: 1,
	})
	assert.NoError(t, err, "uniqueness is per family")
}

func TestEndToEndScenario(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, _ := create(t, svc, plans.ScopeNone, 3, "A", "B", "C")

	due, err := svc.ListDue(ctx, p.WindowStart.Add(3*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 3)

	for i, e := range due {
		claimed, err := svc.Claim(ctx, e.ID, int64(100+i))
		require.NoError(t, err)
		assert.True(t, claimed.Claimed)
		require.NotNil(t, claimed.ClaimedBy)
		assert.Equal(t, int64(100+i), *claimed.ClaimedBy)
	}

	_, err = svc.Claim(ctx, due[1].ID, 999)
	assert.ErrorIs(t, err, internaltypes.ErrAlreadyClaimed)

	due, err = svc.ListDue(ctx, p.WindowStart.Add(3*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestListDueRespectsAsOf(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, entries := create(t, svc, plans.ScopeNone, 1, "a", "b", "c", "d")

	due, err := svc.ListDue(ctx, start.Add(-time.Second))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = svc.ListDue(ctx, entries[1].ScheduledAt)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, entries[0].ID, due[0].ID)
	assert.Equal(t, entries[1].ID, due[1].ID)
}

func TestConcurrentClaimsSingleWinner(t *testing.T) {
	for round := 0; round < 50; round++ {
		svc := newService(t)
		rec := &countingRecorder{}
		svc.SetRecorder(rec)
		_, entries := create(t, svc, plans.ScopeNone, 1, "only")

		const racers = 8
		var wg sync.WaitGroup
		winners := make(chan int64, racers)
		for i := 0; i < racers; i++ {
			wg.Add(1)
			go func(claimant int64) {
				defer wg.Done()
				_, err := svc.Claim(context.Background(), entries[0].ID, claimant)
				if err == nil {
					winners <- claimant
					return
				}
				assert.ErrorIs(t, err, internaltypes.ErrAlreadyClaimed)
			}(int64(i + 1))
		}
		wg.Wait()
		close(winners)

		require.Len(t, winners, 1)
		winner := <-winners
		listed, err := svc.ListEntries(context.Background(), entries[0].PlanID)
		require.NoError(t, err)
		require.NotNil(t, listed[0].ClaimedBy)
		assert.Equal(t, winner, *listed[0].ClaimedBy)
		assert.Equal(t, 1, rec.outcomes[plans.OutcomeClaimed])
		assert.Equal(t, racers-1, rec.outcomes[plans.OutcomeTaken])
	}
}

func TestOnePerClaimantPlanScope(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, entries := create(t, svc, plans.ScopePlan, 1, "a", "b", "c", "d", "e", "f")

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for _, e := range entries {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_, err := svc.Claim(ctx, id, 77)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, internaltypes.ErrDuplicateClaimant)
		}(e.ID)
	}
	wg.Wait()
	assert.Equal(t, 1, wins)

	// another plan is a separate scope
	_, other := create(t, svc, plans.ScopePlan, 1, "z")
	_, err := svc.Claim(ctx, other[0].ID, 77)
	assert.NoError(t, err)
}

func TestOnePerClaimantFamilyScope(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, first := create(t, svc, plans.ScopeFamily, 1, "a")
	_, second := create(t, svc, plans.ScopeFamily, 1, "b")
	_, open := create(t, svc, plans.ScopeNone, 1, "c", "d")

	_, err := svc.Claim(ctx, first[0].ID, 5)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, second[0].ID, 5)
	assert.ErrorIs(t, err, internaltypes.ErrDuplicateClaimant)

	_, err = svc.Claim(ctx, open[0].ID, 5)
	assert.NoError(t, err, "unscoped plans ignore family claims")
	_, err = svc.Claim(ctx, open[1].ID, 5)
	assert.NoError(t, err)
}

func TestMarkDelivered(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, entries := create(t, svc, plans.ScopeNone, 1, "a")
	id := entries[0].ID

	_, err := svc.MarkDelivered(ctx, id)
	assert.ErrorIs(t, err, internaltypes.ErrNotClaimed)

	_, err = svc.Claim(ctx, id, 1)
	require.NoError(t, err)
	e, err := svc.MarkDelivered(ctx, id)
	require.NoError(t, err)
	assert.True(t, e.Delivered)
	require.NotNil(t, e.DeliveredAt)

	_, err = svc.MarkDelivered(ctx, id)
	assert.ErrorIs(t, err, internaltypes.ErrAlreadyDelivered)

	_, err = svc.MarkDelivered(ctx, 424242)
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)
}

func TestResets(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	p, _ := create(t, svc, plans.ScopeNone, 1, "a")
	create(t, svc, plans.ScopeNone, 1, "b")
	_, _, err := svc.CreatePlan(ctx, plans.CreateRequest{Family: plans.FamilyRandy, Items: []string{"r"}, WindowHours: 1})
	require.NoError(t, err)

	require.NoError(t, svc.ResetPlan(ctx, p.ID))
	assert.ErrorIs(t, svc.ResetPlan(ctx, p.ID), internaltypes.ErrNotFound)
	_, err = svc.ListEntries(ctx, p.ID)
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)

	// the item can be scheduled again once its plan is gone
	create(t, svc, plans.ScopeNone, 1, "a")

	n, err := svc.ResetFamily(ctx, plans.FamilyPromo)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sums, err := svc.ListPlans(ctx, "")
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, plans.FamilyRandy, sums[0].Family)

	require.NoError(t, svc.ResetAll(ctx))
	sums, err = svc.ListPlans(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, sums)
}

func TestEventsPublishedAndFailuresSwallowed(t *testing.T) {
	svc := newService(t)
	pub := &capturePublisher{err: errors.New("redis down")}
	svc.SetPublisher(pub)
	ctx := context.Background()

	p, entries := create(t, svc, plans.ScopeNone, 1, "a")
	_, err := svc.Claim(ctx, entries[0].ID, 9)
	require.NoError(t, err)
	_, err = svc.MarkDelivered(ctx, entries[0].ID)
	require.NoError(t, err)
	require.NoError(t, svc.ResetPlan(ctx, p.ID))

	assert.Equal(t, []plans.EventType{
		plans.EventPlanCreated,
		plans.EventEntryClaimed,
		plans.EventEntryDelivered,
		plans.EventPlanDeleted,
	}, pub.types())
}

func TestListPlansCounters(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()
	_, entries := create(t, svc, plans.ScopeNone, 1, "a", "b", "c")
	_, err := svc.Claim(ctx, entries[0].ID, 1)
	require.NoError(t, err)
	_, err = svc.Claim(ctx, entries[1].ID, 2)
	require.NoError(t, err)
	_, err = svc.MarkDelivered(ctx, entries[0].ID)
	require.NoError(t, err)

	sums, err := svc.ListPlans(ctx, plans.FamilyPromo)
	require.NoError(t, err)
	require.Len(t, sums, 1)
	assert.Equal(t, 3, sums[0].Total)
	assert.Equal(t, 2, sums[0].Claimed)
	assert.Equal(t, 1, sums[0].Delivered)
}
