package postgres

import (
	"context"

	"github.com/example/dropsched/internal/db"
	"github.com/example/dropsched/internal/settings"
)

type SettingsRepo struct{ db *db.DB }

func NewSettingsRepo(d *db.DB) *SettingsRepo { return &SettingsRepo{db: d} }

func (r *SettingsRepo) GetSettings(ctx context.Context) (map[string]string, error) {
	rows, err := r.db.Query(ctx, `SELECT key, value FROM bot_settings`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

func (r *SettingsRepo) PutSetting(ctx context.Context, key, value string) error {
	return r.db.Exec(ctx, `
INSERT INTO bot_settings(key, value) VALUES ($1,$2)
ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value`, key, value)
}

var _ settings.Store = (*SettingsRepo)(nil)
