package postgres

import (
	"context"
	"fmt"

	"github.com/example/dropsched/internal/auth"
	"github.com/example/dropsched/internal/db"
	"github.com/example/dropsched/internal/internaltypes"
)

type UserRepo struct{ db *db.DB }

func NewUserRepo(d *db.DB) *UserRepo { return &UserRepo{db: d} }

func (r *UserRepo) CreateUser(ctx context.Context, username string, passwordHash []byte) (auth.User, error) {
	u := auth.User{Username: username, PasswordHash: passwordHash}
	err := r.db.QueryRow(ctx,
		`INSERT INTO admin_users (username, password_hash) VALUES ($1,$2) RETURNING id, created_at`,
		username, passwordHash,
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		if _, dup := db.UniqueViolation(err); dup {
			return auth.User{}, fmt.Errorf("%w: username %q is taken", internaltypes.ErrInvalidArgument, username)
		}
		return auth.User{}, err
	}
	return u, nil
}

func (r *UserRepo) GetUserByUsername(ctx context.Context, username string) (auth.User, error) {
	row := r.db.QueryRow(ctx, `SELECT id, username, password_hash, created_at FROM admin_users WHERE lower(username)=lower($1)`, username)
	var u auth.User
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.CreatedAt); err != nil {
		return auth.User{}, db.WrapNotFound(err)
	}
	return u, nil
}

var _ auth.Users = (*UserRepo)(nil)
