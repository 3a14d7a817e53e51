package postgres

import (
	"context"
	"time"

	"github.com/example/dropsched/internal/db"
	"github.com/example/dropsched/internal/promo"
)

type PromoRepo struct{ db *db.DB }

func NewPromoRepo(d *db.DB) *PromoRepo { return &PromoRepo{db: d} }

func (r *PromoRepo) InsertCodes(ctx context.Context, codes []string, at time.Time) (int, error) {
	n, err := r.db.ExecCount(ctx, `
INSERT INTO promo_codes(code, created_at)
SELECT u.code, $2 FROM unnest($1::text[]) WITH ORDINALITY AS u(code, n)
ORDER BY u.n
ON CONFLICT (code) DO NOTHING`, codes, at)
	return int(n), err
}

func (r *PromoRepo) AvailableCodes(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
SELECT c.code FROM promo_codes c
WHERE NOT EXISTS (SELECT 1 FROM plan_entries e WHERE e.family='promo' AND e.item_id=c.code)
ORDER BY c.seq`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PromoRepo) ListCodes(ctx context.Context) ([]promo.CodeStatus, error) {
	rows, err := r.db.Query(ctx, `
SELECT c.code, c.created_at, e.plan_id, e.id, e.scheduled_at,
       COALESCE((p.meta->>'min_messages')::int, 0),
       COALESCE(e.claimed, false), e.claimed_by, e.claimed_at, COALESCE(e.delivered, false)
FROM promo_codes c
LEFT JOIN plan_entries e ON e.family='promo' AND e.item_id=c.code
LEFT JOIN plans p ON p.id=e.plan_id
ORDER BY c.seq DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []promo.CodeStatus
	for rows.Next() {
		var s promo.CodeStatus
		if err := rows.Scan(&s.Code, &s.CreatedAt, &s.PlanID, &s.EntryID, &s.ScheduledAt,
			&s.MinMessages, &s.Claimed, &s.ClaimedBy, &s.ClaimedAt, &s.Delivered); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PromoRepo) DeleteCodes(ctx context.Context) error {
	return r.db.Exec(ctx, `DELETE FROM promo_codes`)
}

var _ promo.Store = (*PromoRepo)(nil)
