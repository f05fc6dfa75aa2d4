package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/gratefultime/journal-api/internal/model"
)

// Common errors for user repository operations.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailExists    = errors.New("email already exists")
	ErrUsernameExists = errors.New("username already exists")
	ErrAppleIDExists  = errors.New("apple user id already bound")
)

const userColumns = `id, email, username, password_hash, apple_user_id, active, preferred_unlock_time, timezone, created_at`

// CreateUser inserts a new user. Case-insensitive uniqueness of email and
// username is enforced by functional unique indexes; two concurrent signups
// with the same email race down to exactly one 23505 here.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, email, username, password_hash, apple_user_id, active, preferred_unlock_time, timezone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.Username,
		user.PasswordHash,
		user.AppleUserID,
		user.Active,
		user.PreferredUnlockTime,
		user.Timezone,
		user.CreatedAt,
	)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			switch pgErr.ConstraintName {
			case "users_username_lower_idx":
				return ErrUsernameExists
			case "users_apple_user_id_key":
				return ErrAppleIDExists
			default:
				return ErrEmailExists
			}
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

// GetUserByID retrieves a user by their ID.
func (r *Repository) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// GetUserByEmail retrieves a user by email, compared case-insensitively.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

// GetUserByUsername retrieves a user by username, compared case-insensitively.
func (r *Repository) GetUserByUsername(ctx context.Context, username string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(username) = lower($1)`
	return r.scanUser(r.pool.QueryRow(ctx, query, username))
}

// GetUserByAppleID retrieves a user by their bound Apple subject id.
func (r *Repository) GetUserByAppleID(ctx context.Context, appleUserID string) (*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE apple_user_id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, appleUserID))
}

// SetUserActive updates the active flag; idempotent.
func (r *Repository) SetUserActive(ctx context.Context, id string, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("failed to update active flag: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

// UpdateUnlockTime updates the user's preferred unlock hour.
func (r *Repository) UpdateUnlockTime(ctx context.Context, id string, hour int) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET preferred_unlock_time = $2 WHERE id = $1`, id, hour)
	if err != nil {
		return fmt.Errorf("failed to update unlock time: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *Repository) scanUser(row pgx.Row) (*model.User, error) {
	var user model.User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.AppleUserID,
		&user.Active,
		&user.PreferredUnlockTime,
		&user.Timezone,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &user, nil
}
