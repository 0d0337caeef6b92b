// ABOUTME: Invitation lifecycle: pending → accepted/rejected, with derived expiry.
// ABOUTME: Creation and acceptance are transactional; expiry is persisted lazily.
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

// InvitationStatus is the stored invitation state. The stored value can lag
// reality for expired invitations — always go through EffectiveStatus.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationRejected InvitationStatus = "rejected"
	InvitationExpired  InvitationStatus = "expired"
)

// Invitation is a time-boxed, single-use offer of a role to an email address.
type Invitation struct {
	ID         uuid.UUID
	OrgID      uuid.UUID
	Email      string
	Role       rbac.Role
	Token      string
	Status     InvitationStatus
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	ExpiresAt  time.Time
	AcceptedAt *time.Time
}

// Expired reports whether the invitation's deadline has passed at now.
func (i *Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt.Before(now)
}

// EffectiveStatus is the single source of truth for an invitation's state: a
// stored-pending invitation past its deadline reads as expired, so every code
// path (get, accept, reject, list) agrees even before the row is swept.
func (i *Invitation) EffectiveStatus(now time.Time) InvitationStatus {
	if i.Status == InvitationPending && i.Expired(now) {
		return InvitationExpired
	}
	return i.Status
}

const invitationColumns = "id, org_id, email, role, token, status, created_by, created_at, expires_at, accepted_at"

func scanInvitation(row pgx.Row) (*Invitation, error) {
	var inv Invitation
	var role, status string
	err := row.Scan(&inv.ID, &inv.OrgID, &inv.Email, &role, &inv.Token, &status,
		&inv.CreatedBy, &inv.CreatedAt, &inv.ExpiresAt, &inv.AcceptedAt)
	if err != nil {
		return nil, err
	}
	inv.Role, err = rbac.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("invitation role: %w", err)
	}
	inv.Status = InvitationStatus(status)
	return &inv, nil
}

// expireStalePending persists derived expiry for pending rows matching pred.
func expireStalePending(ctx context.Context, q querier, pred sq.Sqlizer) error {
	query, args, err := psql.Update("org_invitations").
		Set("status", string(InvitationExpired)).
		Where(pred).
		Where(sq.Eq{"status": string(InvitationPending)}).
		Where(sq.Expr("expires_at < now()")).ToSql()
	if err != nil {
		return fmt.Errorf("build expire invitations: %w", err)
	}
	if _, err := q.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("expire invitations: %w", err)
	}
	return nil
}

// CreateInvitationParams holds the fields for creating an invitation.
type CreateInvitationParams struct {
	OrgID     uuid.UUID
	Email     string
	Role      rbac.Role
	Token     string
	CreatedBy uuid.UUID
	ExpiresAt time.Time
}

// CreateInvitation inserts a pending invitation. It fails with
// ErrAlreadyMember when the email already resolves to a member of the org,
// and with ErrDuplicateInvitation when a pending, unexpired invitation for
// the (email, org) pair exists. Both guards hold under concurrency: the
// member check runs in the same transaction as the insert, and the duplicate
// guard is the partial unique index uq_org_invitations_pending — two racing
// creates cannot both commit a pending row.
func (s *Store) CreateInvitation(ctx context.Context, p CreateInvitationParams) (*Invitation, error) {
	var inv *Invitation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// Sweep an expired pending row for this (org, email) first so it
		// cannot shadow the new invitation under the partial unique index.
		if err := expireStalePending(ctx, tx, sq.And{
			sq.Eq{"org_id": p.OrgID},
			sq.Expr("lower(email) = lower(?)", p.Email),
		}); err != nil {
			return err
		}

		query, args, err := psql.Select("1").
			From("org_members m").
			Join("users u ON u.id = m.user_id").
			Where(sq.Eq{"m.org_id": p.OrgID}).
			Where(sq.Expr("lower(u.email) = lower(?)", p.Email)).ToSql()
		if err != nil {
			return fmt.Errorf("build member check: %w", err)
		}
		var one int
		err = tx.QueryRow(ctx, query, args...).Scan(&one)
		if err == nil {
			return ErrAlreadyMember
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("member check: %w", err)
		}

		query, args, err = psql.Insert("org_invitations").
			Columns("org_id", "email", "role", "token", "created_by", "expires_at").
			Values(p.OrgID, p.Email, p.Role.String(), p.Token, p.CreatedBy, p.ExpiresAt).
			Suffix("RETURNING " + invitationColumns).ToSql()
		if err != nil {
			return fmt.Errorf("build insert invitation: %w", err)
		}
		inv, err = scanInvitation(tx.QueryRow(ctx, query, args...))
		if isUniqueViolation(err, "uq_org_invitations_pending") {
			return ErrDuplicateInvitation
		}
		if err != nil {
			return fmt.Errorf("insert invitation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// GetInvitationByToken returns the invitation for token, or (nil, nil) if
// unknown. Callers must apply EffectiveStatus — an expired invitation is
// indistinguishable from a missing one at the API surface.
func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*Invitation, error) {
	query, args, err := psql.Select(invitationColumns).From("org_invitations").
		Where(sq.Eq{"token": token}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select invitation: %w", err)
	}
	inv, err := scanInvitation(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select invitation: %w", err)
	}
	return inv, nil
}

// AcceptInvitation transitions the invitation to accepted and upserts the
// membership in one transaction. If the user already holds a role in the org
// the role is updated in place — accepting never creates a duplicate row.
// Fails with ErrInvitationNotPending unless the invitation is pending and
// unexpired at commit time.
func (s *Store) AcceptInvitation(ctx context.Context, invitationID, userID uuid.UUID) (*Invitation, error) {
	var inv *Invitation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		// Guarded transition: the status and deadline check is part of the
		// UPDATE itself, so two racing accepts cannot both succeed.
		query, args, err := psql.Update("org_invitations").
			Set("status", string(InvitationAccepted)).
			Set("accepted_at", sq.Expr("now()")).
			Where(sq.Eq{"id": invitationID, "status": string(InvitationPending)}).
			Where(sq.Expr("expires_at >= now()")).
			Suffix("RETURNING " + invitationColumns).ToSql()
		if err != nil {
			return fmt.Errorf("build accept invitation: %w", err)
		}
		inv, err = scanInvitation(tx.QueryRow(ctx, query, args...))
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvitationNotPending
		}
		if err != nil {
			return fmt.Errorf("accept invitation: %w", err)
		}

		query, args, err = psql.Insert("org_members").
			Columns("org_id", "user_id", "role").
			Values(inv.OrgID, userID, inv.Role.String()).
			Suffix("ON CONFLICT (org_id, user_id) DO UPDATE SET role = EXCLUDED.role").
			ToSql()
		if err != nil {
			return fmt.Errorf("build upsert member: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("upsert member: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return inv, nil
}

// RejectInvitation transitions the invitation to rejected. Fails with
// ErrInvitationNotPending unless it is pending and unexpired.
func (s *Store) RejectInvitation(ctx context.Context, invitationID uuid.UUID) (*Invitation, error) {
	query, args, err := psql.Update("org_invitations").
		Set("status", string(InvitationRejected)).
		Where(sq.Eq{"id": invitationID, "status": string(InvitationPending)}).
		Where(sq.Expr("expires_at >= now()")).
		Suffix("RETURNING " + invitationColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build reject invitation: %w", err)
	}
	inv, err := scanInvitation(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvitationNotPending
	}
	if err != nil {
		return nil, fmt.Errorf("reject invitation: %w", err)
	}
	return inv, nil
}

// ListPendingInvitations returns the org's pending, unexpired invitations
// ordered by creation time. Stale pending rows are swept to expired first, so
// the listing agrees with the accept path on what is still redeemable.
func (s *Store) ListPendingInvitations(ctx context.Context, orgID uuid.UUID) ([]Invitation, error) {
	var out []Invitation
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if err := expireStalePending(ctx, tx, sq.Eq{"org_id": orgID}); err != nil {
			return err
		}
		query, args, err := psql.Select(invitationColumns).From("org_invitations").
			Where(sq.Eq{"org_id": orgID, "status": string(InvitationPending)}).
			OrderBy("created_at").ToSql()
		if err != nil {
			return fmt.Errorf("build list invitations: %w", err)
		}
		rows, err := tx.Query(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("list invitations: %w", err)
		}
		defer rows.Close()
		for rows.Next() {
			inv, err := scanInvitation(rows)
			if err != nil {
				return fmt.Errorf("scan invitation: %w", err)
			}
			out = append(out, *inv)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CancelInvitation deletes an invitation by ID within an org. Returns false
// if no such invitation exists.
func (s *Store) CancelInvitation(ctx context.Context, orgID, id uuid.UUID) (bool, error) {
	query, args, err := psql.Delete("org_invitations").
		Where(sq.Eq{"id": id, "org_id": orgID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build cancel invitation: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("cancel invitation: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
