// Package community exposes read-only views over the member, activity and
// invite tables that the bot maintains.
package community

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/example/dropsched/internal/internaltypes"
)

type Member struct {
	UserID        int64
	Username      string
	FirstName     string
	MessageCount  int
	LastMessageAt *time.Time
}

type InviteLink struct {
	ID            int64
	Link          string
	Name          string
	CreatorID     *int64
	CreatedAt     time.Time
	TotalInvites  int
	ActiveInvites int
}

type InvitedUser struct {
	ID        int64
	Link      string
	UserID    int64
	Username  string
	FirstName string
	JoinedAt  time.Time
	Active    bool
}

// DayCount is the number of members whose last message fell on Date (UTC).
type DayCount struct {
	Date  string
	Count int
}

type Store interface {
	// MemberIDs returns the known members among ids, or every member when
	// ids is nil. The result is ascending.
	MemberIDs(ctx context.Context, ids []int64) ([]int64, error)
	ListMembers(ctx context.Context, limit, offset int) ([]Member, int, error)
	MessageTotals(ctx context.Context) (members int, messages int64, err error)
	ActivityByDay(ctx context.Context, since time.Time) ([]DayCount, error)
	ListInviteLinks(ctx context.Context) ([]InviteLink, error)
	InvitedUsers(ctx context.Context, link string) ([]InvitedUser, error)
	InviteTotals(ctx context.Context) (total, active int, err error)
}

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
	topMembers      = 10
	activityDays    = 7
)

type Page struct {
	Members    []Member
	Total      int
	Page       int
	TotalPages int
}

type Overview struct {
	TotalUsers     int
	TotalMessages  int64
	TotalInvites   int
	ActiveInvites  int
	TopUsers       []Member
	MessagesPerDay []DayCount
}

type Service struct{ store Store }

func NewService(store Store) *Service { return &Service{store: store} }

// Members returns one page of members ordered by message count.
// Zero page or limit fall back to the first page and DefaultPageSize.
func (s *Service) Members(ctx context.Context, page, limit int) (Page, error) {
	if page == 0 {
		page = 1
	}
	if limit == 0 {
		limit = DefaultPageSize
	}
	if page < 1 || limit < 1 || limit > MaxPageSize {
		return Page{}, fmt.Errorf("%w: page must be >= 1 and limit in 1..%d", internaltypes.ErrInvalidArgument, MaxPageSize)
	}
	members, total, err := s.store.ListMembers(ctx, limit, (page-1)*limit)
	if err != nil {
		return Page{}, fmt.Errorf("list members: %w", err)
	}
	return Page{
		Members:    members,
		Total:      total,
		Page:       page,
		TotalPages: (total + limit - 1) / limit,
	}, nil
}

// Recipients resolves a broadcast audience to known member ids.
func (s *Service) Recipients(ctx context.Context, all bool, ids []int64) ([]int64, error) {
	if all {
		return s.store.MemberIDs(ctx, nil)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no users selected", internaltypes.ErrInvalidArgument)
	}
	return s.store.MemberIDs(ctx, ids)
}

func (s *Service) Invites(ctx context.Context) ([]InviteLink, error) {
	return s.store.ListInviteLinks(ctx)
}

func (s *Service) InviteDetails(ctx context.Context, link string) ([]InvitedUser, error) {
	link = strings.TrimSpace(link)
	if link == "" {
		return nil, fmt.Errorf("%w: invite link is required", internaltypes.ErrInvalidArgument)
	}
	return s.store.InvitedUsers(ctx, link)
}

// Overview gathers the dashboard counters as of now.
func (s *Service) Overview(ctx context.Context, now time.Time) (Overview, error) {
	var (
		o   Overview
		err error
	)
	if o.TotalUsers, o.TotalMessages, err = s.store.MessageTotals(ctx); err != nil {
		return Overview{}, fmt.Errorf("message totals: %w", err)
	}
	if o.TotalInvites, o.ActiveInvites, err = s.store.InviteTotals(ctx); err != nil {
		return Overview{}, fmt.Errorf("invite totals: %w", err)
	}
	if o.TopUsers, _, err = s.store.ListMembers(ctx, topMembers, 0); err != nil {
		return Overview{}, fmt.Errorf("top members: %w", err)
	}
	if o.MessagesPerDay, err = s.store.ActivityByDay(ctx, now.Add(-activityDays*24*time.Hour)); err != nil {
		return Overview{}, fmt.Errorf("activity: %w", err)
	}
	return o, nil
}
