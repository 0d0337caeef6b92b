// ABOUTME: Store methods for organizations: create-with-admin, read, update, delete.
// ABOUTME: DeleteOrg removes memberships and invitations in the same transaction.
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

// Organization is a club/tenant row.
type Organization struct {
	ID          uuid.UUID
	Name        string
	Description string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const orgColumns = "id, name, description, created_at, updated_at"

func scanOrg(row pgx.Row) (*Organization, error) {
	var o Organization
	if err := row.Scan(&o.ID, &o.Name, &o.Description, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	return &o, nil
}

// CreateOrgWithAdmin atomically creates an organization and adds creatorID as
// its admin.
func (s *Store) CreateOrgWithAdmin(ctx context.Context, name, description string, creatorID uuid.UUID) (*Organization, error) {
	var org *Organization
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		query, args, err := psql.Insert("organizations").
			Columns("name", "description").
			Values(name, description).
			Suffix("RETURNING " + orgColumns).ToSql()
		if err != nil {
			return fmt.Errorf("build insert org: %w", err)
		}
		org, err = scanOrg(tx.QueryRow(ctx, query, args...))
		if err != nil {
			return fmt.Errorf("insert org: %w", err)
		}
		return addMember(ctx, tx, org.ID, creatorID, rbac.RoleAdmin)
	})
	if err != nil {
		return nil, err
	}
	return org, nil
}

// GetOrgByID returns the org with the given ID, or (nil, nil) if not found.
func (s *Store) GetOrgByID(ctx context.Context, id uuid.UUID) (*Organization, error) {
	query, args, err := psql.Select(orgColumns).From("organizations").
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select org: %w", err)
	}
	org, err := scanOrg(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select org: %w", err)
	}
	return org, nil
}

// UpdateOrgParams holds the mutable org fields. Nil means unchanged.
type UpdateOrgParams struct {
	Name        *string
	Description *string
}

// UpdateOrg applies the non-nil fields and returns the updated org, or
// (nil, nil) if not found.
func (s *Store) UpdateOrg(ctx context.Context, id uuid.UUID, p UpdateOrgParams) (*Organization, error) {
	b := psql.Update("organizations").Set("updated_at", sq.Expr("now()"))
	if p.Name != nil {
		b = b.Set("name", *p.Name)
	}
	if p.Description != nil {
		b = b.Set("description", *p.Description)
	}
	query, args, err := b.Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + orgColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build update org: %w", err)
	}
	org, err := scanOrg(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("update org: %w", err)
	}
	return org, nil
}

// DeleteOrg removes the organization, all its memberships, and all its
// invitations in a single transaction. User rows are never touched — members
// are demoted out of the org, not destroyed. Returns false if the org does
// not exist.
func (s *Store) DeleteOrg(ctx context.Context, id uuid.UUID) (bool, error) {
	found := false
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		for _, table := range []string{"org_invitations", "org_members"} {
			query, args, err := psql.Delete(table).Where(sq.Eq{"org_id": id}).ToSql()
			if err != nil {
				return fmt.Errorf("build delete %s: %w", table, err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("delete %s: %w", table, err)
			}
		}
		query, args, err := psql.Delete("organizations").Where(sq.Eq{"id": id}).ToSql()
		if err != nil {
			return fmt.Errorf("build delete org: %w", err)
		}
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("delete org: %w", err)
		}
		found = tag.RowsAffected() > 0
		return nil
	})
	if err != nil {
		return false, err
	}
	return found, nil
}

// UserOrg is an organization together with the user's role in it.
type UserOrg struct {
	Organization
	Role rbac.Role
}

// ListUserOrgs returns all orgs the user belongs to with their role, ordered
// by org name.
func (s *Store) ListUserOrgs(ctx context.Context, userID uuid.UUID) ([]UserOrg, error) {
	query, args, err := psql.
		Select("o.id", "o.name", "o.description", "o.created_at", "o.updated_at", "m.role").
		From("organizations o").
		Join("org_members m ON m.org_id = o.id").
		Where(sq.Eq{"m.user_id": userID}).
		OrderBy("o.name").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list user orgs: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list user orgs: %w", err)
	}
	defer rows.Close()

	var out []UserOrg
	for rows.Next() {
		var uo UserOrg
		var role string
		if err := rows.Scan(&uo.ID, &uo.Name, &uo.Description, &uo.CreatedAt, &uo.UpdatedAt, &role); err != nil {
			return nil, fmt.Errorf("scan user org: %w", err)
		}
		uo.Role, err = rbac.ParseRole(role)
		if err != nil {
			return nil, fmt.Errorf("user org role: %w", err)
		}
		out = append(out, uo)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list user orgs: %w", err)
	}
	return out, nil
}
