package community_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/infrastructure/memory"
	"github.com/example/dropsched/internal/internaltypes"
)

var now = time.Date(2026, 4, 2, 18, 0, 0, 0, time.UTC)

func seeded(t *testing.T, n int) (*memory.Store, *community.Service) {
	t.Helper()
	st := memory.NewStore()
	for i := 1; i <= n; i++ {
		last := now.Add(-time.Duration(i) * time.Hour)
		st.PutMember(community.Member{UserID: int64(i), Username: "u", MessageCount: i, LastMessageAt: &last})
	}
	return st, community.NewService(st)
}

func TestMembersPaging(t *testing.T) {
	_, svc := seeded(t, 5)
	ctx := context.Background()

	p, err := svc.Members(ctx, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, p.Total)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.Page)
	require.Len(t, p.Members, 2)
	assert.Equal(t, int64(3), p.Members[0].UserID)

	p, err = svc.Members(ctx, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, p.Page)
	assert.Len(t, p.Members, 5)

	for _, tc := range []struct{ page, limit int }{{-1, 10}, {1, -3}, {1, community.MaxPageSize + 1}} {
		_, err := svc.Members(ctx, tc.page, tc.limit)
		assert.ErrorIs(t, err, internaltypes.ErrInvalidArgument, "page=%d limit=%d", tc.page, tc.limit)
	}
}

func TestRecipients(t *testing.T) {
	_, svc := seeded(t, 3)
	ctx := context.Background()

	all, err := svc.Recipients(ctx, true, []int64{99})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, all, "send-to-all ignores the selection")

	some, err := svc.Recipients(ctx, false, []int64{3, 42})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, some)

	_, err = svc.Recipients(ctx, false, nil)
	assert.ErrorIs(t, err, internaltypes.ErrInvalidArgument)
}

func TestInvites(t *testing.T) {
	st, svc := seeded(t, 0)
	ctx := context.Background()
	st.PutInviteLink(community.InviteLink{Link: "https://t.me/+a", Name: "spring", CreatedAt: now})
	st.PutInvitedUser(community.InvitedUser{Link: "https://t.me/+a", UserID: 7, JoinedAt: now, Active: true})

	links, err := svc.Invites(ctx)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 1, links[0].ActiveInvites)

	users, err := svc.InviteDetails(ctx, " https://t.me/+a ")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, int64(7), users[0].UserID)

	users, err = svc.InviteDetails(ctx, "https://t.me/+missing")
	require.NoError(t, err)
	assert.Empty(t, users)

	_, err = svc.InviteDetails(ctx, "  ")
	assert.ErrorIs(t, err, internaltypes.ErrInvalidArgument)
}

func TestOverview(t *testing.T) {
	st, svc := seeded(t, 12)
	stale := now.Add(-30 * 24 * time.Hour)
	st.PutMember(community.Member{UserID: 100, MessageCount: 1, LastMessageAt: &stale})
	st.PutInviteLink(community.InviteLink{Link: "l", CreatedAt: now})
	st.PutInvitedUser(community.InvitedUser{Link: "l", UserID: 1, Active: true})
	st.PutInvitedUser(community.InvitedUser{Link: "l", UserID: 2})

	o, err := svc.Overview(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 13, o.TotalUsers)
	assert.Equal(t, int64(78+1), o.TotalMessages)
	assert.Equal(t, 2, o.TotalInvites)
	assert.Equal(t, 1, o.ActiveInvites)
	require.Len(t, o.TopUsers, 10)
	assert.Equal(t, int64(12), o.TopUsers[0].UserID)

	var counted int
	for _, d := range o.MessagesPerDay {
		counted += d.Count
	}
	assert.Equal(t, 12, counted, "members idle for more than a week are not counted")
}
