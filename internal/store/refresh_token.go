// ABOUTME: Store methods for refresh token rows (JTI rotation bookkeeping).
// ABOUTME: used_at/replaced_by_jti implement reuse detection with a grace window.
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

// RefreshToken is a refresh token row keyed by JTI.
type RefreshToken struct {
	JTI           uuid.UUID
	UserID        uuid.UUID
	TokenVersion  int
	ExpiresAt     time.Time
	UsedAt        *time.Time
	ReplacedByJTI *uuid.UUID
}

const refreshTokenColumns = "jti, user_id, token_version, expires_at, used_at, replaced_by_jti"

// CreateRefreshToken inserts a new refresh token row.
func (s *Store) CreateRefreshToken(ctx context.Context, jti, userID uuid.UUID, tokenVersion int, expiresAt time.Time) error {
	query, args, err := psql.Insert("refresh_tokens").
		Columns("jti", "user_id", "token_version", "expires_at").
		Values(jti, userID, tokenVersion, expiresAt).ToSql()
	if err != nil {
		return fmt.Errorf("build insert refresh token: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// GetRefreshToken returns the row for jti, or (nil, nil) if unknown.
func (s *Store) GetRefreshToken(ctx context.Context, jti uuid.UUID) (*RefreshToken, error) {
	query, args, err := psql.Select(refreshTokenColumns).From("refresh_tokens").
		Where(sq.Eq{"jti": jti}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select refresh token: %w", err)
	}
	var rt RefreshToken
	err = s.pool.QueryRow(ctx, query, args...).Scan(&rt.JTI, &rt.UserID, &rt.TokenVersion,
		&rt.ExpiresAt, &rt.UsedAt, &rt.ReplacedByJTI)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select refresh token: %w", err)
	}
	return &rt, nil
}

// MarkRefreshTokenUsed stamps used_at and records the replacement JTI.
func (s *Store) MarkRefreshTokenUsed(ctx context.Context, jti, replacedBy uuid.UUID) error {
	query, args, err := psql.Update("refresh_tokens").
		Set("used_at", sq.Expr("now()")).
		Set("replaced_by_jti", replacedBy).
		Where(sq.Eq{"jti": jti}).ToSql()
	if err != nil {
		return fmt.Errorf("build mark refresh token used: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark refresh token used: %w", err)
	}
	return nil
}

// DeleteRefreshToken removes the row for jti. Missing rows are not an error.
func (s *Store) DeleteRefreshToken(ctx context.Context, jti uuid.UUID) error {
	query, args, err := psql.Delete("refresh_tokens").Where(sq.Eq{"jti": jti}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete refresh token: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
