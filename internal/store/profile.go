// ABOUTME: Store methods for user profiles (bio, location, boat class, sail number).
// ABOUTME: One profile row per user, seeded at registration by CreateUser.
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

// Profile is a user's public profile row.
type Profile struct {
	UserID     uuid.UUID
	Bio        string
	Location   string
	BoatClass  string
	SailNumber string
	AvatarURL  string
	UpdatedAt  time.Time
}

const profileColumns = "user_id, bio, location, boat_class, sail_number, avatar_url, updated_at"

// GetProfile returns the profile for userID, or (nil, nil) if the user does
// not exist.
func (s *Store) GetProfile(ctx context.Context, userID uuid.UUID) (*Profile, error) {
	query, args, err := psql.Select(profileColumns).From("user_profiles").
		Where(sq.Eq{"user_id": userID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select profile: %w", err)
	}
	var p Profile
	err = s.pool.QueryRow(ctx, query, args...).Scan(&p.UserID, &p.Bio, &p.Location,
		&p.BoatClass, &p.SailNumber, &p.AvatarURL, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select profile: %w", err)
	}
	return &p, nil
}

// UpdateProfileParams holds the mutable profile fields. Nil means unchanged.
type UpdateProfileParams struct {
	Bio        *string
	Location   *string
	BoatClass  *string
	SailNumber *string
	AvatarURL  *string
}

// UpdateProfile applies the non-nil fields of p and returns the updated
// profile, or (nil, nil) if the user does not exist.
func (s *Store) UpdateProfile(ctx context.Context, userID uuid.UUID, p UpdateProfileParams) (*Profile, error) {
	b := psql.Update("user_profiles").Set("updated_at", sq.Expr("now()"))
	if p.Bio != nil {
		b = b.Set("bio", *p.Bio)
	}
	if p.Location != nil {
		b = b.Set("location", *p.Location)
	}
	if p.BoatClass != nil {
		b = b.Set("boat_class", *p.BoatClass)
	}
	if p.SailNumber != nil {
		b = b.Set("sail_number", *p.SailNumber)
	}
	if p.AvatarURL != nil {
		b = b.Set("avatar_url", *p.AvatarURL)
	}
	query, args, err := b.Where(sq.Eq{"user_id": userID}).
		Suffix("RETURNING " + profileColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update profile: %w", err)
	}
	var out Profile
	err = s.pool.QueryRow(ctx, query, args...).Scan(&out.UserID, &out.Bio, &out.Location,
		&out.BoatClass, &out.SailNumber, &out.AvatarURL, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return &out, nil
}
