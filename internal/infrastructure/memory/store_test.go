package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func insert(t *testing.T, s *Store, id string, family plans.Family, scope plans.ClaimScope, items ...string) []plans.Entry {
	t.Helper()
	p := plans.Plan{ID: id, Family: family, WindowStart: t0, WindowSeconds: 3600, ClaimScope: scope, CreatedAt: t0}
	entries := make([]plans.Entry, len(items))
	for i, item := range items {
		entries[i] = plans.Entry{PlanID: id, Family: family, ItemID: item, Position: i, ScheduledAt: t0.Add(time.Duration(len(items)-i) * time.Minute)}
	}
	out, err := s.InsertPlan(context.Background(), p, entries)
	require.NoError(t, err)
	return out
}

func TestInsertPlanAssignsIDsAndRejectsRescheduling(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	out := insert(t, s, "p1", plans.FamilyPromo, plans.ScopeNone, "A", "B")
	assert.Equal(t, int64(1), out[0].ID)
	assert.Equal(t, int64(2), out[1].ID)

	_, err := s.InsertPlan(ctx, plans.Plan{ID: "p2", Family: plans.FamilyPromo}, []plans.Entry{{PlanID: "p2", Family: plans.FamilyPromo, ItemID: "B"}})
	assert.ErrorIs(t, err, internaltypes.ErrAlreadyScheduled)
	_, err = s.GetPlan(ctx, "p2")
	assert.ErrorIs(t, err, internaltypes.ErrNotFound, "failed insert leaves nothing behind")

	// the same item id is free in another family
	insert(t, s, "p3", plans.FamilyRandy, plans.ScopeNone, "B")
}

func TestListEntriesChronological(t *testing.T) {
	s := NewStore()
	insert(t, s, "p1", plans.FamilyPromo, plans.ScopeNone, "A", "B", "C")

	es, err := s.ListEntries(context.Background(), "p1")
	require.NoError(t, err)
	require.Len(t, es, 3)
	assert.Equal(t, "C", es[0].ItemID)
	assert.Equal(t, "A", es[2].ItemID)

	due, err := s.ListDue(context.Background(), t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "C", due[0].ItemID)
	assert.Equal(t, "B", due[1].ItemID)
}

func TestReturnedEntriesAreCopies(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	es := insert(t, s, "p1", plans.FamilyPromo, plans.ScopeNone, "A")

	got, err := s.ClaimEntry(ctx, es[0].ID, 7, t0)
	require.NoError(t, err)
	*got.ClaimedBy = 99

	again, err := s.ListEntries(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(7), *again[0].ClaimedBy)
}

func TestFamilyScopeIgnoresOtherScopes(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	open := insert(t, s, "open", plans.FamilyPromo, plans.ScopeNone, "A")
	fam1 := insert(t, s, "fam1", plans.FamilyPromo, plans.ScopeFamily, "B")
	fam2 := insert(t, s, "fam2", plans.FamilyPromo, plans.ScopeFamily, "C")

	_, err := s.ClaimEntry(ctx, open[0].ID, 1, t0)
	require.NoError(t, err)
	_, err = s.ClaimEntry(ctx, fam1[0].ID, 1, t0)
	require.NoError(t, err, "claims in unscoped plans do not count")
	_, err = s.ClaimEntry(ctx, fam2[0].ID, 1, t0)
	assert.ErrorIs(t, err, internaltypes.ErrDuplicateClaimant)
	_, err = s.ClaimEntry(ctx, fam1[0].ID, 2, t0)
	assert.ErrorIs(t, err, internaltypes.ErrAlreadyClaimed)
}

func TestMarkDeliveredStates(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	es := insert(t, s, "p1", plans.FamilyRandy, plans.ScopePlan, "t1")

	_, err := s.MarkDelivered(ctx, 404, t0)
	assert.ErrorIs(t, err, internaltypes.ErrNotFound)
	_, err = s.MarkDelivered(ctx, es[0].ID, t0)
	assert.ErrorIs(t, err, internaltypes.ErrNotClaimed)

	_, err = s.ClaimEntry(ctx, es[0].ID, 3, t0)
	require.NoError(t, err)
	e, err := s.MarkDelivered(ctx, es[0].ID, t0.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, e.Delivered)
	_, err = s.MarkDelivered(ctx, es[0].ID, t0)
	assert.ErrorIs(t, err, internaltypes.ErrAlreadyDelivered)
}

func TestCodesAndDeleteAll(t *testing.T) {
	s := NewStore()
	ctx := context.Background()

	n, err := s.InsertCodes(ctx, []string{"A", "B"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = s.InsertCodes(ctx, []string{"B", "C"}, t0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	insert(t, s, "p1", plans.FamilyPromo, plans.ScopeNone, "A")
	avail, err := s.AvailableCodes(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, avail)

	require.NoError(t, s.PutSetting(ctx, "default_link", "x"))
	_, err = s.CreateUser(ctx, "Admin", []byte("hash"))
	require.NoError(t, err)

	require.NoError(t, s.DeleteAll(ctx))
	codes, err := s.ListCodes(ctx)
	require.NoError(t, err)
	assert.Empty(t, codes)
	settings, err := s.GetSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, settings)
	u, err := s.GetUserByUsername(ctx, "admin")
	require.NoError(t, err, "admin accounts survive a reset")
	assert.Equal(t, "Admin", u.Username)
}

func TestCommunityTables(t *testing.T) {
	s := NewStore()
	ctx := context.Background()
	yesterday := t0.Add(-24 * time.Hour)
	s.PutMember(community.Member{UserID: 30, Username: "c", MessageCount: 2, LastMessageAt: &t0})
	s.PutMember(community.Member{UserID: 10, Username: "a", MessageCount: 9, LastMessageAt: &yesterday})
	s.PutMember(community.Member{UserID: 20, Username: "b", MessageCount: 2})

	ids, err := s.MemberIDs(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20, 30}, ids)
	ids, err = s.MemberIDs(ctx, []int64{30, 99, 10, 30})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 30}, ids, "unknown and repeated ids are dropped")

	page, total, err := s.ListMembers(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, int64(10), page[0].UserID)
	assert.Equal(t, int64(20), page[1].UserID, "ties break on user id")
	page, _, err = s.ListMembers(ctx, 2, 4)
	require.NoError(t, err)
	assert.Empty(t, page)

	users, msgs, err := s.MessageTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, users)
	assert.Equal(t, int64(13), msgs)

	days, err := s.ActivityByDay(ctx, yesterday)
	require.NoError(t, err)
	assert.Equal(t, []community.DayCount{{Date: "2026-03-01", Count: 1}, {Date: "2026-02-28", Count: 1}}, days)

	s.PutInviteLink(community.InviteLink{Link: "https://t.me/+old", CreatedAt: yesterday})
	s.PutInviteLink(community.InviteLink{Link: "https://t.me/+new", CreatedAt: t0})
	s.PutInvitedUser(community.InvitedUser{Link: "https://t.me/+old", UserID: 10, JoinedAt: t0, Active: true})
	s.PutInvitedUser(community.InvitedUser{Link: "https://t.me/+old", UserID: 20, JoinedAt: t0})

	links, err := s.ListInviteLinks(ctx)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "https://t.me/+new", links[0].Link)
	assert.Equal(t, 2, links[1].TotalInvites)
	assert.Equal(t, 1, links[1].ActiveInvites)

	invited, err := s.InvitedUsers(ctx, "https://t.me/+old")
	require.NoError(t, err)
	assert.Len(t, invited, 2)
	total, active, err := s.InviteTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Equal(t, 1, active)

	require.NoError(t, s.DeleteAll(ctx))
	ids, err = s.MemberIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, ids)
	links, err = s.ListInviteLinks(ctx)
	require.NoError(t, err)
	assert.Empty(t, links)
}
