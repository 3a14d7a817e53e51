// Package memory is an in-process store used for local runs and tests.
// Every operation holds a single mutex, which makes each write atomic.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/example/dropsched/internal/auth"
	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
	"github.com/example/dropsched/internal/promo"
	"github.com/example/dropsched/internal/settings"
)

type codeRecord struct {
	code      string
	createdAt time.Time
}

type Store struct {
	mu sync.Mutex

	plans       map[string]plans.Plan
	entries     map[int64]*plans.Entry
	items       map[string]int64 // family + "\x00" + item -> entry id
	nextEntryID int64

	codes    []codeRecord
	codeSet  map[string]struct{}
	settings map[string]string

	users      map[string]auth.User
	nextUserID int64

	// written by the bot in production; seeded with Put* here
	members      map[int64]community.Member
	inviteLinks  []community.InviteLink
	invitedUsers []community.InvitedUser
}

func NewStore() *Store {
	return &Store{
		plans:    make(map[string]plans.Plan),
		entries:  make(map[int64]*plans.Entry),
		items:    make(map[string]int64),
		codeSet:  make(map[string]struct{}),
		settings: make(map[string]string),
		users:    make(map[string]auth.User),
		members:  make(map[int64]community.Member),
	}
}

func itemKey(f plans.Family, item string) string { return string(f) + "\x00" + item }

// --- plans.Store ---

func (s *Store) InsertPlan(_ context.Context, p plans.Plan, entries []plans.Entry) ([]plans.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.plans[p.ID]; exists {
		return nil, internaltypes.ErrAlreadyScheduled
	}
	for _, e := range entries {
		if _, taken := s.items[itemKey(p.Family, e.ItemID)]; taken {
			return nil, internaltypes.ErrAlreadyScheduled
		}
	}

	p.Meta = cloneMeta(p.Meta)
	s.plans[p.ID] = p
	out := make([]plans.Entry, len(entries))
	for i, e := range entries {
		s.nextEntryID++
		e.ID = s.nextEntryID
		e.PlanID = p.ID
		e.Family = p.Family
		stored := e
		s.entries[e.ID] = &stored
		s.items[itemKey(p.Family, e.ItemID)] = e.ID
		out[i] = cloneEntry(&stored)
	}
	return out, nil
}

func (s *Store) GetPlan(_ context.Context, planID string) (plans.Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.plans[planID]
	if !ok {
		return plans.Plan{}, internaltypes.ErrNotFound
	}
	p.Meta = cloneMeta(p.Meta)
	return p, nil
}

func (s *Store) ListPlans(_ context.Context, family plans.Family) ([]plans.Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	byPlan := make(map[string]*plans.Summary)
	for _, p := range s.plans {
		if family != "" && p.Family != family {
			continue
		}
		p.Meta = cloneMeta(p.Meta)
		byPlan[p.ID] = &plans.Summary{Plan: p}
	}
	for _, e := range s.entries {
		sum, ok := byPlan[e.PlanID]
		if !ok {
			continue
		}
		sum.Total++
		if e.Claimed {
			sum.Claimed++
		}
		if e.Delivered {
			sum.Delivered++
		}
	}
	out := make([]plans.Summary, 0, len(byPlan))
	for _, sum := range byPlan {
		out = append(out, *sum)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) ListEntries(_ context.Context, planID string) ([]plans.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plans.Entry
	for _, e := range s.entries {
		if e.PlanID == planID {
			out = append(out, cloneEntry(e))
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) ListDue(_ context.Context, asOf time.Time) ([]plans.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []plans.Entry
	for _, e := range s.entries {
		if !e.Claimed && !e.ScheduledAt.After(asOf) {
			out = append(out, cloneEntry(e))
		}
	}
	sortEntries(out)
	return out, nil
}

func (s *Store) ClaimEntry(_ context.Context, entryID, claimant int64, at time.Time) (plans.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	if !ok {
		return plans.Entry{}, internaltypes.ErrNotFound
	}
	if e.Claimed {
		return plans.Entry{}, internaltypes.ErrAlreadyClaimed
	}
	if s.holdsInScope(s.plans[e.PlanID], claimant) {
		return plans.Entry{}, internaltypes.ErrDuplicateClaimant
	}

	by, when := claimant, at
	e.Claimed = true
	e.ClaimedBy = &by
	e.ClaimedAt = &when
	return cloneEntry(e), nil
}

// holdsInScope mirrors the partial unique indexes of the Postgres schema:
// plan-scoped entries conflict within their plan, family-scoped entries
// conflict with other family-scoped entries of the same family.
func (s *Store) holdsInScope(p plans.Plan, claimant int64) bool {
	if p.ClaimScope == plans.ScopeNone || p.ClaimScope == "" {
		return false
	}
	for _, other := range s.entries {
		if !other.Claimed || other.ClaimedBy == nil || *other.ClaimedBy != claimant {
			continue
		}
		switch p.ClaimScope {
		case plans.ScopePlan:
			if other.PlanID == p.ID {
				return true
			}
		case plans.ScopeFamily:
			if other.Family == p.Family && s.plans[other.PlanID].ClaimScope == plans.ScopeFamily {
				return true
			}
		}
	}
	return false
}

func (s *Store) MarkDelivered(_ context.Context, entryID int64, at time.Time) (plans.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[entryID]
	switch {
	case !ok:
		return plans.Entry{}, internaltypes.ErrNotFound
	case !e.Claimed:
		return plans.Entry{}, internaltypes.ErrNotClaimed
	case e.Delivered:
		return plans.Entry{}, internaltypes.ErrAlreadyDelivered
	}
	when := at
	e.Delivered = true
	e.DeliveredAt = &when
	return cloneEntry(e), nil
}

func (s *Store) DeletePlan(_ context.Context, planID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.plans[planID]; !ok {
		return internaltypes.ErrNotFound
	}
	s.deletePlanLocked(planID)
	return nil
}

func (s *Store) DeleteFamily(_ context.Context, family plans.Family) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, p := range s.plans {
		if p.Family == family {
			s.deletePlanLocked(id)
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plans = make(map[string]plans.Plan)
	s.entries = make(map[int64]*plans.Entry)
	s.items = make(map[string]int64)
	s.codes = nil
	s.codeSet = make(map[string]struct{})
	s.settings = make(map[string]string)
	s.members = make(map[int64]community.Member)
	s.inviteLinks = nil
	s.invitedUsers = nil
	return nil
}

func (s *Store) deletePlanLocked(planID string) {
	for id, e := range s.entries {
		if e.PlanID == planID {
			delete(s.items, itemKey(e.Family, e.ItemID))
			delete(s.entries, id)
		}
	}
	delete(s.plans, planID)
}

// --- promo.Store ---

func (s *Store) InsertCodes(_ context.Context, codes []string, at time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range codes {
		if _, ok := s.codeSet[c]; ok {
			continue
		}
		s.codeSet[c] = struct{}{}
		s.codes = append(s.codes, codeRecord{code: c, createdAt: at})
		n++
	}
	return n, nil
}

func (s *Store) AvailableCodes(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.codes {
		if _, scheduled := s.items[itemKey(plans.FamilyPromo, c.code)]; !scheduled {
			out = append(out, c.code)
		}
	}
	return out, nil
}

func (s *Store) ListCodes(_ context.Context) ([]promo.CodeStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]promo.CodeStatus, 0, len(s.codes))
	for i := len(s.codes) - 1; i >= 0; i-- {
		c := s.codes[i]
		st := promo.CodeStatus{Code: c.code, CreatedAt: c.createdAt}
		if id, ok := s.items[itemKey(plans.FamilyPromo, c.code)]; ok {
			e := cloneEntry(s.entries[id])
			st.PlanID = &e.PlanID
			st.EntryID = &e.ID
			st.ScheduledAt = &e.ScheduledAt
			st.MinMessages = promo.MinMessages(s.plans[e.PlanID])
			st.Claimed = e.Claimed
			st.ClaimedBy = e.ClaimedBy
			st.ClaimedAt = e.ClaimedAt
			st.Delivered = e.Delivered
		}
		out = append(out, st)
	}
	return out, nil
}

func (s *Store) DeleteCodes(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes = nil
	s.codeSet = make(map[string]struct{})
	return nil
}

// --- settings.Store ---

func (s *Store) GetSettings(_ context.Context) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneMeta(s.settings), nil
}

func (s *Store) PutSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[key] = value
	return nil
}

// --- auth.Users ---

func (s *Store) CreateUser(_ context.Context, username string, passwordHash []byte) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(username)
	if _, exists := s.users[key]; exists {
		return auth.User{}, internaltypes.ErrInvalidArgument
	}
	s.nextUserID++
	u := auth.User{ID: s.nextUserID, Username: username, PasswordHash: passwordHash, CreatedAt: time.Now().UTC()}
	s.users[key] = u
	return u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[strings.ToLower(username)]
	if !ok {
		return auth.User{}, internaltypes.ErrNotFound
	}
	return u, nil
}

// --- community.Store ---

func (s *Store) PutMember(m community.Member) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[m.UserID] = m
}

func (s *Store) PutInviteLink(l community.InviteLink) community.InviteLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	l.ID = int64(len(s.inviteLinks) + 1)
	s.inviteLinks = append(s.inviteLinks, l)
	return l
}

func (s *Store) PutInvitedUser(u community.InvitedUser) community.InvitedUser {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.ID = int64(len(s.invitedUsers) + 1)
	s.invitedUsers = append(s.invitedUsers, u)
	return u
}

func (s *Store) MemberIDs(_ context.Context, ids []int64) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []int64
	if ids == nil {
		for id := range s.members {
			out = append(out, id)
		}
	} else {
		seen := make(map[int64]bool, len(ids))
		for _, id := range ids {
			if _, ok := s.members[id]; ok && !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (s *Store) ListMembers(_ context.Context, limit, offset int) ([]community.Member, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]community.Member, 0, len(s.members))
	for _, m := range s.members {
		all = append(all, m)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].MessageCount != all[j].MessageCount {
			return all[i].MessageCount > all[j].MessageCount
		}
		return all[i].UserID < all[j].UserID
	})
	total := len(all)
	if offset >= total {
		return []community.Member{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *Store) MessageTotals(_ context.Context) (int, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var msgs int64
	for _, m := range s.members {
		msgs += int64(m.MessageCount)
	}
	return len(s.members), msgs, nil
}

func (s *Store) ActivityByDay(_ context.Context, since time.Time) ([]community.DayCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byDay := map[string]int{}
	for _, m := range s.members {
		if m.LastMessageAt == nil || m.LastMessageAt.Before(since) {
			continue
		}
		byDay[m.LastMessageAt.UTC().Format("2006-01-02")]++
	}
	out := make([]community.DayCount, 0, len(byDay))
	for d, n := range byDay {
		out = append(out, community.DayCount{Date: d, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out, nil
}

func (s *Store) ListInviteLinks(_ context.Context) ([]community.InviteLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]community.InviteLink, 0, len(s.inviteLinks))
	for _, l := range s.inviteLinks {
		l.TotalInvites, l.ActiveInvites = 0, 0
		for _, u := range s.invitedUsers {
			if u.Link != l.Link {
				continue
			}
			l.TotalInvites++
			if u.Active {
				l.ActiveInvites++
			}
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) InvitedUsers(_ context.Context, link string) ([]community.InvitedUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []community.InvitedUser{}
	for _, u := range s.invitedUsers {
		if u.Link == link {
			out = append(out, u)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].JoinedAt.After(out[j].JoinedAt) })
	return out, nil
}

func (s *Store) InviteTotals(_ context.Context) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	active := 0
	for _, u := range s.invitedUsers {
		if u.Active {
			active++
		}
	}
	return len(s.invitedUsers), active, nil
}

func sortEntries(es []plans.Entry) {
	sort.Slice(es, func(i, j int) bool {
		if !es[i].ScheduledAt.Equal(es[j].ScheduledAt) {
			return es[i].ScheduledAt.Before(es[j].ScheduledAt)
		}
		return es[i].ID < es[j].ID
	})
}

func cloneEntry(e *plans.Entry) plans.Entry {
	out := *e
	if e.ClaimedBy != nil {
		v := *e.ClaimedBy
		out.ClaimedBy = &v
	}
	if e.ClaimedAt != nil {
		v := *e.ClaimedAt
		out.ClaimedAt = &v
	}
	if e.DeliveredAt != nil {
		v := *e.DeliveredAt
		out.DeliveredAt = &v
	}
	return out
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

var (
	_ plans.Store     = (*Store)(nil)
	_ promo.Store     = (*Store)(nil)
	_ settings.Store  = (*Store)(nil)
	_ auth.Users      = (*Store)(nil)
	_ community.Store = (*Store)(nil)
)
