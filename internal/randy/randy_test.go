package randy

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dropsched/internal/infrastructure/memory"
	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
)

var drawStart = time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

func newService(t *testing.T) (*Service, *plans.Service) {
	t.Helper()
	ps := plans.New(memory.NewStore(), zerolog.Nop())
	return NewService(ps, "", zerolog.Nop()), ps
}

func validRequest() CreateRequest {
	return CreateRequest{
		WinnerCount:       4,
		DistributionHours: 6,
		PrizeText:         "  100 stars  ",
		MinMessages:       20,
		MessagePeriod:     "Week",
		StartTime:         drawStart,
	}
}

func TestCreateSpreadsTicketsOverWindow(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	d, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	assert.Equal(t, 4, d.WinnerCount)
	assert.Equal(t, 4, d.TotalSlots)
	assert.Equal(t, "100 stars", d.PrizeText)
	assert.Equal(t, PeriodWeek, d.MessagePeriod)
	assert.Equal(t, 6.0, d.DistributionHours)
	assert.True(t, d.SendAnnouncement)
	assert.True(t, d.PinMessage)
	assert.True(t, d.OnePerUser)
	assert.True(t, d.StartTime.Equal(drawStart))

	slots, err := svc.Slots(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	end := drawStart.Add(6 * time.Hour)
	for _, s := range slots {
		assert.True(t, strings.HasPrefix(s.ItemID, "ticket-"))
		assert.False(t, s.ScheduledAt.Before(drawStart))
		assert.True(t, s.ScheduledAt.Before(end))
	}
}

func TestCreateFlagsAndScope(t *testing.T) {
	svc, ps := newService(t)
	ctx := context.Background()
	off := false
	req := validRequest()
	req.SendAnnouncement, req.PinMessage, req.OnePerUser = &off, &off, &off

	d, err := svc.Create(ctx, req)
	require.NoError(t, err)
	assert.False(t, d.SendAnnouncement)
	assert.False(t, d.PinMessage)
	assert.False(t, d.OnePerUser)

	p, err := ps.GetPlan(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, plans.ScopeNone, p.ClaimScope)
}

func TestCreateValidation(t *testing.T) {
	svc, _ := newService(t)
	mutate := map[string]func(*CreateRequest){
		"no winners":     func(r *CreateRequest) { r.WinnerCount = 0 },
		"no hours":       func(r *CreateRequest) { r.DistributionHours = 0 },
		"no prize":       func(r *CreateRequest) { r.PrizeText = " " },
		"no start":       func(r *CreateRequest) { r.StartTime = time.Time{} },
		"negative min":   func(r *CreateRequest) { r.MinMessages = -1 },
		"unknown period": func(r *CreateRequest) { r.MessagePeriod = "fortnight" },
	}
	for name, m := range mutate {
		t.Run(name, func(t *testing.T) {
			req := validRequest()
			m(&req)
			_, err := svc.Create(context.Background(), req)
			assert.ErrorIs(t, err, internaltypes.ErrInvalidArgument)
		})
	}
}

func TestListCountsAssignments(t *testing.T) {
	svc, ps := newService(t)
	ctx := context.Background()
	d, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)

	slots, err := svc.Slots(ctx, d.ID)
	require.NoError(t, err)
	_, err = ps.Claim(ctx, slots[0].ID, 1)
	require.NoError(t, err)
	_, err = ps.Claim(ctx, slots[1].ID, 1)
	assert.ErrorIs(t, err, internaltypes.ErrDuplicateClaimant, "one win per member per draw")

	draws, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, draws, 1)
	assert.Equal(t, 4, draws[0].TotalSlots)
	assert.Equal(t, 1, draws[0].AssignedSlots)
}

func TestDeleteOnlyTouchesDraws(t *testing.T) {
	svc, ps := newService(t)
	ctx := context.Background()

	promoPlan, _, err := ps.CreatePlan(ctx, plans.CreateRequest{Family: plans.FamilyPromo, Items: []string{"X"}, WindowHours: 1})
	require.NoError(t, err)
	assert.ErrorIs(t, svc.Delete(ctx, promoPlan.ID), internaltypes.ErrNotFound)
	assert.ErrorIs(t, svc.Delete(ctx, ""), internaltypes.ErrInvalidArgument)

	d, err := svc.Create(ctx, validRequest())
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, d.ID))
	_, err = svc.Slots(ctx, d.ID)
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)
}
