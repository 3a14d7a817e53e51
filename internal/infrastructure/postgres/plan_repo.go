package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/example/dropsched/internal/db"
	"github.com/example/dropsched/internal/internaltypes"
	"github.com/example/dropsched/internal/plans"
)

const (
	conFamilyItem     = "plan_entries_family_item_key"
	conPlanClaimant   = "plan_entries_plan_claimant_key"
	conFamilyClaimant = "plan_entries_family_claimant_key"
)

const entryCols = `id, plan_id, family, item_id, position, scheduled_at, claimed, claimed_by, claimed_at, delivered, delivered_at`

type PlanRepo struct{ db *db.DB }

func NewPlanRepo(d *db.DB) *PlanRepo { return &PlanRepo{db: d} }

func (r *PlanRepo) InsertPlan(ctx context.Context, p plans.Plan, entries []plans.Entry) ([]plans.Entry, error) {
	out := make([]plans.Entry, len(entries))
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO plans(id, family, label, window_start, window_seconds, claim_scope, meta, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			p.ID, string(p.Family), p.Label, p.WindowStart, p.WindowSeconds, string(p.ClaimScope), p.Meta, p.CreatedAt,
		); err != nil {
			return classifyInsert(err)
		}

		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(`
INSERT INTO plan_entries(plan_id, family, claim_scope, item_id, position, scheduled_at)
VALUES ($1,$2,$3,$4,$5,$6)
RETURNING id`, p.ID, string(p.Family), string(p.ClaimScope), e.ItemID, e.Position, e.ScheduledAt)
		}
		br := tx.SendBatch(ctx, batch)
		for i, e := range entries {
			if err := br.QueryRow().Scan(&e.ID); err != nil {
				_ = br.Close()
				return classifyInsert(err)
			}
			e.PlanID = p.ID
			e.Family = p.Family
			out[i] = e
		}
		return br.Close()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func classifyInsert(err error) error {
	if name, ok := db.UniqueViolation(err); ok {
		if name == conFamilyItem || name == "plans_pkey" {
			return internaltypes.ErrAlreadyScheduled
		}
	}
	return fmt.Errorf("db: %w", err)
}

func (r *PlanRepo) GetPlan(ctx context.Context, planID string) (plans.Plan, error) {
	row := r.db.QueryRow(ctx, `
SELECT id, family, label, window_start, window_seconds, claim_scope, meta, created_at
FROM plans WHERE id=$1`, planID)
	p, err := scanPlan(row)
	if err != nil {
		return plans.Plan{}, db.WrapNotFound(err)
	}
	return p, nil
}

func (r *PlanRepo) ListPlans(ctx context.Context, family plans.Family) ([]plans.Summary, error) {
	rows, err := r.db.Query(ctx, `
SELECT p.id, p.family, p.label, p.window_start, p.window_seconds, p.claim_scope, p.meta, p.created_at,
       count(e.id),
       count(e.id) FILTER (WHERE e.claimed),
       count(e.id) FILTER (WHERE e.delivered)
FROM plans p
LEFT JOIN plan_entries e ON e.plan_id = p.id
WHERE $1 = '' OR p.family = $1
GROUP BY p.id
ORDER BY p.created_at DESC, p.id`, string(family))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []plans.Summary
	for rows.Next() {
		var (
			s             plans.Summary
			fam, scope    string
			total, cl, dl int
		)
		if err := rows.Scan(&s.ID, &fam, &s.Label, &s.WindowStart, &s.WindowSeconds, &scope, &s.Meta, &s.CreatedAt, &total, &cl, &dl); err != nil {
			return nil, err
		}
		s.Family = plans.Family(fam)
		s.ClaimScope = plans.ClaimScope(scope)
		s.Total, s.Claimed, s.Delivered = total, cl, dl
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PlanRepo) ListEntries(ctx context.Context, planID string) ([]plans.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryCols+` FROM plan_entries WHERE plan_id=$1 ORDER BY scheduled_at, id`, planID)
}

func (r *PlanRepo) ListDue(ctx context.Context, asOf time.Time) ([]plans.Entry, error) {
	return r.queryEntries(ctx, `SELECT `+entryCols+` FROM plan_entries WHERE NOT claimed AND scheduled_at <= $1 ORDER BY scheduled_at, id`, asOf)
}

// ClaimEntry is one conditional UPDATE; the partial unique indexes reject a
// second claim by the same claimant inside the plan's scope.
func (r *PlanRepo) ClaimEntry(ctx context.Context, entryID, claimant int64, at time.Time) (plans.Entry, error) {
	row := r.db.QueryRow(ctx, `
UPDATE plan_entries SET claimed=true, claimed_by=$2, claimed_at=$3
WHERE id=$1 AND NOT claimed
RETURNING `+entryCols, entryID, claimant, at)
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if name, ok := db.UniqueViolation(err); ok && (name == conPlanClaimant || name == conFamilyClaimant) {
		return plans.Entry{}, internaltypes.ErrDuplicateClaimant
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return plans.Entry{}, fmt.Errorf("db: %w", err)
	}

	var claimed bool
	if err := r.db.QueryRow(ctx, `SELECT claimed FROM plan_entries WHERE id=$1`, entryID).Scan(&claimed); err != nil {
		return plans.Entry{}, db.WrapNotFound(err)
	}
	return plans.Entry{}, internaltypes.ErrAlreadyClaimed
}

func (r *PlanRepo) MarkDelivered(ctx context.Context, entryID int64, at time.Time) (plans.Entry, error) {
	row := r.db.QueryRow(ctx, `
UPDATE plan_entries SET delivered=true, delivered_at=$2
WHERE id=$1 AND claimed AND NOT delivered
RETURNING `+entryCols, entryID, at)
	e, err := scanEntry(row)
	if err == nil {
		return e, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return plans.Entry{}, fmt.Errorf("db: %w", err)
	}

	var claimed, delivered bool
	if err := r.db.QueryRow(ctx, `SELECT claimed, delivered FROM plan_entries WHERE id=$1`, entryID).Scan(&claimed, &delivered); err != nil {
		return plans.Entry{}, db.WrapNotFound(err)
	}
	if !claimed {
		return plans.Entry{}, internaltypes.ErrNotClaimed
	}
	return plans.Entry{}, internaltypes.ErrAlreadyDelivered
}

func (r *PlanRepo) DeletePlan(ctx context.Context, planID string) error {
	n, err := r.db.ExecCount(ctx, `DELETE FROM plans WHERE id=$1`, planID)
	if err != nil {
		return err
	}
	if n == 0 {
		return internaltypes.ErrNotFound
	}
	return nil
}

func (r *PlanRepo) DeleteFamily(ctx context.Context, family plans.Family) (int, error) {
	n, err := r.db.ExecCount(ctx, `DELETE FROM plans WHERE family=$1`, string(family))
	return int(n), err
}

func (r *PlanRepo) DeleteAll(ctx context.Context) error {
	return r.db.Exec(ctx, `TRUNCATE plan_entries, plans, promo_codes, bot_settings, message_stats, invite_links, invited_users RESTART IDENTITY`)
}

func (r *PlanRepo) queryEntries(ctx context.Context, sql string, args ...any) ([]plans.Entry, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []plans.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanPlan(row db.Row) (plans.Plan, error) {
	var (
		p          plans.Plan
		fam, scope string
	)
	if err := row.Scan(&p.ID, &fam, &p.Label, &p.WindowStart, &p.WindowSeconds, &scope, &p.Meta, &p.CreatedAt); err != nil {
		return plans.Plan{}, err
	}
	p.Family = plans.Family(fam)
	p.ClaimScope = plans.ClaimScope(scope)
	return p, nil
}

func scanEntry(row db.Row) (plans.Entry, error) {
	var (
		e   plans.Entry
		fam string
	)
	if err := row.Scan(&e.ID, &e.PlanID, &fam, &e.ItemID, &e.Position, &e.ScheduledAt,
		&e.Claimed, &e.ClaimedBy, &e.ClaimedAt, &e.Delivered, &e.DeliveredAt); err != nil {
		return plans.Entry{}, err
	}
	e.Family = plans.Family(fam)
	return e, nil
}

var _ plans.Store = (*PlanRepo)(nil)
