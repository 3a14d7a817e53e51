package postgres

import (
	"context"
	"time"

	"github.com/example/dropsched/internal/community"
	"github.com/example/dropsched/internal/db"
)

// CommunityRepo reads the tables the bot writes. It never mutates them
// outside of PlanRepo.DeleteAll.
type CommunityRepo struct{ db *db.DB }

func NewCommunityRepo(d *db.DB) *CommunityRepo { return &CommunityRepo{db: d} }

func (r *CommunityRepo) MemberIDs(ctx context.Context, ids []int64) ([]int64, error) {
	var (
		rows db.Rows
		err  error
	)
	if ids == nil {
		rows, err = r.db.Query(ctx, `SELECT user_id FROM message_stats ORDER BY user_id`)
	} else {
		rows, err = r.db.Query(ctx, `SELECT user_id FROM message_stats WHERE user_id = ANY($1::bigint[]) ORDER BY user_id`, ids)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *CommunityRepo) ListMembers(ctx context.Context, limit, offset int) ([]community.Member, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM message_stats`).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.db.Query(ctx, `
SELECT user_id, username, first_name, message_count, last_message_at
FROM message_stats
ORDER BY message_count DESC, user_id
LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	out := []community.Member{}
	for rows.Next() {
		var m community.Member
		if err := rows.Scan(&m.UserID, &m.Username, &m.FirstName, &m.MessageCount, &m.LastMessageAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

func (r *CommunityRepo) MessageTotals(ctx context.Context) (int, int64, error) {
	var (
		members  int
		messages int64
	)
	err := r.db.QueryRow(ctx, `SELECT count(*), COALESCE(sum(message_count), 0) FROM message_stats`).Scan(&members, &messages)
	return members, messages, err
}

func (r *CommunityRepo) ActivityByDay(ctx context.Context, since time.Time) ([]community.DayCount, error) {
	rows, err := r.db.Query(ctx, `
SELECT to_char(last_message_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, count(*)
FROM message_stats
WHERE last_message_at >= $1
GROUP BY day
ORDER BY day DESC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []community.DayCount{}
	for rows.Next() {
		var d community.DayCount
		if err := rows.Scan(&d.Date, &d.Count); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (r *CommunityRepo) ListInviteLinks(ctx context.Context) ([]community.InviteLink, error) {
	rows, err := r.db.Query(ctx, `
SELECT l.id, l.invite_link, l.name, l.creator_id, l.created_at,
       count(u.id), count(u.id) FILTER (WHERE u.is_active)
FROM invite_links l
LEFT JOIN invited_users u ON u.invite_link = l.invite_link
GROUP BY l.id
ORDER BY l.created_at DESC, l.id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []community.InviteLink{}
	for rows.Next() {
		var l community.InviteLink
		if err := rows.Scan(&l.ID, &l.Link, &l.Name, &l.CreatorID, &l.CreatedAt, &l.TotalInvites, &l.ActiveInvites); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *CommunityRepo) InvitedUsers(ctx context.Context, link string) ([]community.InvitedUser, error) {
	rows, err := r.db.Query(ctx, `
SELECT id, invite_link, user_id, username, first_name, joined_at, is_active
FROM invited_users
WHERE invite_link = $1
ORDER BY joined_at DESC, id DESC`, link)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []community.InvitedUser{}
	for rows.Next() {
		var u community.InvitedUser
		if err := rows.Scan(&u.ID, &u.Link, &u.UserID, &u.Username, &u.FirstName, &u.JoinedAt, &u.Active); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *CommunityRepo) InviteTotals(ctx context.Context) (int, int, error) {
	var total, active int
	err := r.db.QueryRow(ctx, `SELECT count(*), count(*) FILTER (WHERE is_active) FROM invited_users`).Scan(&total, &active)
	return total, active, err
}

var _ community.Store = (*CommunityRepo)(nil)
