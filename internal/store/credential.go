// ABOUTME: Store methods for passkey credentials and WebAuthn ceremony sessions.
// ABOUTME: Credentials and session data are persisted as JSONB snapshots.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PasskeyCredential is a stored WebAuthn credential with its display metadata.
type PasskeyCredential struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Name       string
	Credential webauthn.Credential
	CreatedAt  time.Time
	LastUsedAt *time.Time
}

func scanPasskeyCredential(row pgx.Row) (*PasskeyCredential, error) {
	var c PasskeyCredential
	var blob []byte
	if err := row.Scan(&c.ID, &c.UserID, &c.Name, &blob, &c.CreatedAt, &c.LastUsedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blob, &c.Credential); err != nil {
		return nil, fmt.Errorf("decode credential: %w", err)
	}
	return &c, nil
}

const passkeyCredentialColumns = "id, user_id, name, credential, created_at, last_used_at"

// CreatePasskeyCredential stores a freshly registered credential for userID.
func (s *Store) CreatePasskeyCredential(ctx context.Context, userID uuid.UUID, name string, cred *webauthn.Credential) (*PasskeyCredential, error) {
	blob, err := json.Marshal(cred)
	if err != nil {
		return nil, fmt.Errorf("encode credential: %w", err)
	}
	query, args, err := psql.Insert("passkey_credentials").
		Columns("user_id", "name", "credential_id", "credential").
		Values(userID, name, cred.ID, blob).
		Suffix("RETURNING " + passkeyCredentialColumns).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert credential: %w", err)
	}
	out, err := scanPasskeyCredential(s.pool.QueryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("insert credential: %w", err)
	}
	return out, nil
}

// ListPasskeyCredentials returns all of userID's credentials, oldest first.
func (s *Store) ListPasskeyCredentials(ctx context.Context, userID uuid.UUID) ([]PasskeyCredential, error) {
	query, args, err := psql.Select(passkeyCredentialColumns).From("passkey_credentials").
		Where(sq.Eq{"user_id": userID}).OrderBy("created_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list credentials: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()
	var out []PasskeyCredential
	for rows.Next() {
		c, err := scanPasskeyCredential(rows)
		if err != nil {
			return nil, fmt.Errorf("scan credential: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return out, nil
}

// GetPasskeyCredentialByCredID resolves a credential by its raw WebAuthn
// credential ID, or (nil, nil) if unknown.
func (s *Store) GetPasskeyCredentialByCredID(ctx context.Context, credentialID []byte) (*PasskeyCredential, error) {
	query, args, err := psql.Select(passkeyCredentialColumns).From("passkey_credentials").
		Where(sq.Eq{"credential_id": credentialID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential: %w", err)
	}
	c, err := scanPasskeyCredential(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select credential: %w", err)
	}
	return c, nil
}

// UpdatePasskeyCredential re-persists a credential after a successful
// assertion (sign counter and clone-warning flags change) and stamps
// last_used_at.
func (s *Store) UpdatePasskeyCredential(ctx context.Context, id uuid.UUID, cred *webauthn.Credential) error {
	blob, err := json.Marshal(cred)
	if err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}
	query, args, err := psql.Update("passkey_credentials").
		Set("credential", blob).
		Set("last_used_at", sq.Expr("now()")).
		Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update credential: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update credential: %w", err)
	}
	return nil
}

// DeletePasskeyCredential removes one of userID's credentials. Returns false
// if the credential does not exist or belongs to another user.
func (s *Store) DeletePasskeyCredential(ctx context.Context, userID, id uuid.UUID) (bool, error) {
	query, args, err := psql.Delete("passkey_credentials").
		Where(sq.Eq{"id": id, "user_id": userID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("build delete credential: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("delete credential: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// CreatePasskeySession persists WebAuthn ceremony state between begin and
// finish. userID is nil for discoverable-credential login ceremonies.
func (s *Store) CreatePasskeySession(ctx context.Context, userID *uuid.UUID, data *webauthn.SessionData, ttl time.Duration) (uuid.UUID, error) {
	blob, err := json.Marshal(data)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode session: %w", err)
	}
	query, args, err := psql.Insert("passkey_sessions").
		Columns("user_id", "data", "expires_at").
		Values(userID, blob, time.Now().Add(ttl)).
		Suffix("RETURNING id").ToSql()
	if err != nil {
		return uuid.Nil, fmt.Errorf("build insert session: %w", err)
	}
	var id uuid.UUID
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&id); err != nil {
		return uuid.Nil, fmt.Errorf("insert session: %w", err)
	}
	return id, nil
}

// ConsumePasskeySession deletes and returns the ceremony session for id, or
// (nil, nil) if it is unknown or expired. Single use: a replayed finish call
// finds nothing.
func (s *Store) ConsumePasskeySession(ctx context.Context, id uuid.UUID) (*webauthn.SessionData, error) {
	query, args, err := psql.Delete("passkey_sessions").
		Where(sq.Eq{"id": id}).
		Where(sq.Expr("expires_at >= now()")).
		Suffix("RETURNING data").ToSql()
	if err != nil {
		return nil, fmt.Errorf("build consume session: %w", err)
	}
	var blob []byte
	err = s.pool.QueryRow(ctx, query, args...).Scan(&blob)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("consume session: %w", err)
	}
	var data webauthn.SessionData
	if err := json.Unmarshal(blob, &data); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &data, nil
}
