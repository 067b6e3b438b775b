package db

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/wenliu-dev/coursehub/internal/config"
	"github.com/wenliu-dev/coursehub/internal/security"
)

// EnsureAdminUser creates the configured admin account if it does not exist.
// A blank admin email or password disables seeding.
func EnsureAdminUser(ctx context.Context, pool *pgxpool.Pool, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	var dummy string

	err := pool.QueryRow(ctx, `SELECT id FROM users WHERE email = $1`, cfg.AdminEmail).Scan(&dummy)

	if err == nil {
		return nil
	}

	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	hash, err := security.HashPassword(cfg.AdminPassword)

	if err != nil {
		return err
	}

	now := time.Now().UTC()

	_, err = pool.Exec(ctx,
		`INSERT INTO users (id, email, password_hash, username, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		uuid.NewString(), cfg.AdminEmail, hash, cfg.AdminName, "admin", now, now,
	)

	return err
}
