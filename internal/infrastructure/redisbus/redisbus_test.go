package redisbus

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dropsched/internal/plans"
)

func newBus(t *testing.T, mr *miniredis.Miniredis, node string) *Bus {
	t.Helper()
	b, err := New(context.Background(), Config{Addr: mr.Addr(), Channel: "test:events"}, node, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestPublishReachesOtherNodes(t *testing.T) {
	mr := miniredis.RunT(t)
	pub := newBus(t, mr, "api")
	sub := newBus(t, mr, "worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := sub.Subscribe(ctx)
	require.NoError(t, err)

	want := plans.Event{Type: plans.EventPlanCreated, Family: plans.FamilyPromo, PlanID: "p1", Count: 3, At: time.Unix(100, 0).UTC()}
	require.NoError(t, pub.Publish(ctx, want))

	select {
	case got := <-events:
		assert.Equal(t, want.Type, got.Type)
		assert.Equal(t, want.PlanID, got.PlanID)
		assert.Equal(t, 3, got.Count)
		assert.True(t, want.At.Equal(got.At))
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestSubscribeSkipsOwnEvents(t *testing.T) {
	mr := miniredis.RunT(t)
	b := newBus(t, mr, "solo")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := b.Subscribe(ctx)
	require.NoError(t, err)

	require.NoError(t, b.Publish(ctx, plans.Event{Type: plans.EventReset}))
	select {
	case ev := <-events:
		t.Fatalf("unexpected event %+v", ev)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewFailsWithoutRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), Config{Addr: addr}, "x", zerolog.Nop())
	assert.Error(t, err)
}
