// ABOUTME: Store methods for the (user, organization, role) membership relation.
// ABOUTME: GetMemberRole returns (nil, nil) for non-members — absence is not an error.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/emelleby/ilca-kns-sub001/internal/rbac"
)

// Member is a membership row joined with the user's public identity.
type Member struct {
	UserID      uuid.UUID
	Username    string
	DisplayName string
	Role        rbac.Role
	JoinedAt    time.Time
}

// addMember inserts a membership row inside an existing transaction.
func addMember(ctx context.Context, q querier, orgID, userID uuid.UUID, role rbac.Role) error {
	query, args, err := psql.Insert("org_members").
		Columns("org_id", "user_id", "role").
		Values(orgID, userID, role.String()).ToSql()
	if err != nil {
		return fmt.Errorf("build insert member: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

// AddMember adds userID to orgID with the given role. Fails on a duplicate
// membership (the (org, user) pair is the primary key).
func (s *Store) AddMember(ctx context.Context, orgID, userID uuid.UUID, role rbac.Role) error {
	return addMember(ctx, s.pool, orgID, userID, role)
}

// GetMemberRole returns userID's role in orgID, or (nil, nil) if not a
// member. A lookup failure is returned as an error, never as absence — the
// permission gate must be able to tell "not a member" from "database down".
func (s *Store) GetMemberRole(ctx context.Context, orgID, userID uuid.UUID) (*rbac.Role, error) {
	query, args, err := psql.Select("role").From("org_members").
		Where(sq.Eq{"org_id": orgID, "user_id": userID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select member role: %w", err)
	}
	var raw string
	err = s.pool.QueryRow(ctx, query, args...).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select member role: %w", err)
	}
	role, err := rbac.ParseRole(raw)
	if err != nil {
		// A row with an undefined role is data corruption, not a denial.
		return nil, fmt.Errorf("member role: %w", err)
	}
	return &role, nil
}

// IsMember reports whether userID holds any role in orgID.
func (s *Store) IsMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	query, args, err := psql.Select("1").From("org_members").
		Where(sq.Eq{"org_id": orgID, "user_id": userID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build member exists: %w", err)
	}
	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("member exists: %w", err)
	}
	return true, nil
}

// ListMembers returns all members of orgID with their identity, ordered by
// join time.
func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]Member, error) {
	query, args, err := psql.
		Select("m.user_id", "u.username", "u.display_name", "m.role", "m.created_at").
		From("org_members m").
		Join("users u ON u.id = m.user_id").
		Where(sq.Eq{"m.org_id": orgID}).
		OrderBy("m.created_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list members: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		var m Member
		var role string
		if err := rows.Scan(&m.UserID, &m.Username, &m.DisplayName, &role, &m.JoinedAt); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		m.Role, err = rbac.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("member role: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

// UpdateMemberRole changes userID's role in orgID. Demoting the only admin
// fails with ErrLastAdmin; the check and the update share one transaction.
// Returns false if the user is not a member.
func (s *Store) UpdateMemberRole(ctx context.Context, orgID, userID uuid.UUID, role rbac.Role) (bool, error) {
	found := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if role != rbac.RoleAdmin {
			if err := guardLastAdmin(ctx, tx, orgID, userID); err != nil {
				return err
			}
		}
		query, args, err := psql.Update("org_members").
			Set("role", role.String()).
			Where(sq.Eq{"org_id": orgID, "user_id": userID}).ToSql()
		if err != nil {
			return fmt.Errorf("build update member role: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("update member role: %w", err)
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// RemoveMember removes userID from orgID. Removing the only admin fails with
// ErrLastAdmin. Returns false if the user was not a member.
func (s *Store) RemoveMember(ctx context.Context, orgID, userID uuid.UUID) (bool, error) {
	found := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := guardLastAdmin(ctx, tx, orgID, userID); err != nil {
			return err
		}
		query, args, err := psql.Delete("org_members").
			Where(sq.Eq{"org_id": orgID, "user_id": userID}).ToSql()
		if err != nil {
			return fmt.Errorf("build remove member: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("remove member: %w", err)
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// guardLastAdmin fails with ErrLastAdmin when userID is the only admin of
// orgID. The membership rows are locked so a concurrent demotion cannot slip
// past the count.
func guardLastAdmin(ctx context.Context, tx pgx.Tx, orgID, userID uuid.UUID) error {
	query, args, err := psql.Select("user_id").From("org_members").
		Where(sq.Eq{"org_id": orgID, "role": rbac.RoleAdmin.String()}).
		Suffix("FOR UPDATE").ToSql()
	if err != nil {
		return fmt.Errorf("build admin lock: %w", err)
	}
	rows, err := tx.Query(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("lock admins: %w", err)
	}
	defer rows.Close()

	var admins []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("scan admin: %w", err)
		}
		admins = append(admins, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("lock admins: %w", err)
	}
	if len(admins) == 1 && admins[0] == userID {
		return ErrLastAdmin
	}
	return nil
}
