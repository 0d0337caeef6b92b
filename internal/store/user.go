// ABOUTME: Store methods for user accounts: creation, lookup, token versioning.
// ABOUTME: CreateUser also seeds the empty profile row in the same transaction.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// User is a user account row.
type User struct {
	ID                  uuid.UUID
	Email               string
	Username            string
	DisplayName         string
	PasswordHash        *string // nil for passkey-only accounts
	PasswordHashVersion int
	TokenVersion        int
	CreatedAt           time.Time
	LastLoginAt         *time.Time
}

const userColumns = "id, email, username, display_name, password_hash, password_hash_version, token_version, created_at, last_login_at"

func scanUser(row pgx.Row) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Username, &u.DisplayName, &u.PasswordHash,
		&u.PasswordHashVersion, &u.TokenVersion, &u.CreatedAt, &u.LastLoginAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// CreateUser inserts a new user row plus its empty profile row in one
// transaction. Pass an empty passwordHash for passkey-only accounts.
func (s *Store) CreateUser(ctx context.Context, email, username, displayName, passwordHash string, hashVersion int) (*User, error) {
	var hash *string
	if passwordHash != "" {
		hash = &passwordHash
	}
	var user *User
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Insert("users").
			Columns("email", "username", "display_name", "password_hash", "password_hash_version").
			Values(email, username, displayName, hash, hashVersion).
			Suffix("RETURNING " + userColumns).
			ToSql()
		if err != nil {
			return fmt.Errorf("build insert user: %w", err)
		}
		user, err = scanUser(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return fmt.Errorf("insert user: %w", err)
		}
		query, args, err = psql.Insert("user_profiles").Columns("user_id").Values(user.ID).ToSql()
		if err != nil {
			return fmt.Errorf("build insert profile: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert profile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Store) getUserBy(ctx context.Context, pred sq.Sqlizer) (*User, error) {
	query, args, err := psql.Select(userColumns).From("users").Where(pred).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user: %w", err)
	}
	u, err := scanUser(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// GetUserByID returns the user with the given ID, or (nil, nil) if not found.
func (s *Store) GetUserByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.getUserBy(ctx, sq.Eq{"id": id})
}

// GetUserByEmail returns the user with the given email (case-insensitive),
// or (nil, nil) if not found. Call only from auth and invitation flows.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUserBy(ctx, sq.Expr("lower(email) = lower(?)", email))
}

// GetUserByUsername returns the user with the given username (case-insensitive),
// or (nil, nil) if not found.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	return s.getUserBy(ctx, sq.Expr("lower(username) = lower(?)", username))
}

// CountUsers returns the total number of user accounts.
func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// UpdateLastLogin sets last_login_at to now for the given user.
func (s *Store) UpdateLastLogin(ctx context.Context, id uuid.UUID) error {
	query, args, err := psql.Update("users").Set("last_login_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update last login: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}

// IncrementTokenVersion increments token_version and returns the new value.
// Used by logout-all to immediately invalidate all outstanding tokens.
func (s *Store) IncrementTokenVersion(ctx context.Context, id uuid.UUID) (int, error) {
	query, args, err := psql.Update("users").
		Set("token_version", sq.Expr("token_version + 1")).
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING token_version").ToSql()
	if err != nil {
		return 0, fmt.Errorf("build increment token version: %w", err)
	}
	var v int
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&v); err != nil {
		return 0, fmt.Errorf("increment token version: %w", err)
	}
	return v, nil
}

// UpdatePasswordHash replaces the password hash and bumps token_version to
// invalidate all active sessions (forces re-login after password change).
func (s *Store) UpdatePasswordHash(ctx context.Context, id uuid.UUID, passwordHash string, hashVersion int) error {
	query, args, err := psql.Update("users").
		Set("password_hash", passwordHash).
		Set("password_hash_version", hashVersion).
		Set("token_version", sq.Expr("token_version + 1")).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update password hash: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update password hash: %w", err)
	}
	return nil
}
