// ABOUTME: Integration tests for passkey credential storage and ceremony sessions.
// ABOUTME: Sessions are single use; expired sessions must read as missing.
package store_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/testutil"
)

func TestPasskeySessionSingleUse(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "pk_session@example.com", "pk_session", "PK", "", 0)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	data := &webauthn.SessionData{
		Challenge: "c2Vzc2lvbi1jaGFsbGVuZ2U",
		UserID:    user.ID[:],
	}
	id, err := db.CreatePasskeySession(ctx, &user.ID, data, 5*time.Minute)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := db.ConsumePasskeySession(ctx, id)
	if err != nil {
		t.Fatalf("consume session: %v", err)
	}
	if got == nil {
		t.Fatal("first consume: got nil, want session data")
	}
	if got.Challenge != data.Challenge {
		t.Errorf("challenge = %q, want %q", got.Challenge, data.Challenge)
	}
	if !bytes.Equal(got.UserID, user.ID[:]) {
		t.Errorf("session user handle does not round-trip")
	}

	// A replayed finish call must find nothing.
	replay, err := db.ConsumePasskeySession(ctx, id)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if replay != nil {
		t.Error("second consume: got session data, want nil (single use)")
	}
}

func TestPasskeySessionExpired(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "pk_expired@example.com", "pk_expired", "PK", "", 0)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	data := &webauthn.SessionData{Challenge: "ZXhwaXJlZA", UserID: user.ID[:]}
	id, err := db.CreatePasskeySession(ctx, &user.ID, data, -time.Minute)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	got, err := db.ConsumePasskeySession(ctx, id)
	if err != nil {
		t.Fatalf("consume expired session: %v", err)
	}
	if got != nil {
		t.Error("expired session: got session data, want nil")
	}
}

func TestPasskeySessionUnknownID(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	got, err := db.ConsumePasskeySession(ctx, uuid.New())
	if err != nil {
		t.Fatalf("consume unknown session: %v", err)
	}
	if got != nil {
		t.Error("unknown session id: got session data, want nil")
	}
}

func TestPasskeyCredentialLifecycle(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := db.CreateUser(ctx, "pk_cred@example.com", "pk_cred", "PK", "", 0)
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	cred := &webauthn.Credential{
		ID:        []byte("credential-id-1"),
		PublicKey: []byte("public-key-bytes"),
	}
	created, err := db.CreatePasskeyCredential(ctx, user.ID, "Laptop", cred)
	if err != nil {
		t.Fatalf("create credential: %v", err)
	}
	if created.Name != "Laptop" || created.LastUsedAt != nil {
		t.Errorf("created = %+v, want name Laptop and nil last_used_at", created)
	}

	list, err := db.ListPasskeyCredentials(ctx, user.ID)
	if err != nil {
		t.Fatalf("list credentials: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("got %d credentials, want 1", len(list))
	}

	byCredID, err := db.GetPasskeyCredentialByCredID(ctx, []byte("credential-id-1"))
	if err != nil {
		t.Fatalf("get by credential id: %v", err)
	}
	if byCredID == nil || byCredID.ID != created.ID {
		t.Fatalf("get by credential id: got %+v, want row %s", byCredID, created.ID)
	}
	miss, err := db.GetPasskeyCredentialByCredID(ctx, []byte("no-such-credential"))
	if err != nil {
		t.Fatalf("get unknown credential id: %v", err)
	}
	if miss != nil {
		t.Error("unknown credential id: got row, want nil")
	}

	// Post-assertion re-persist stamps last_used_at.
	cred.Authenticator.SignCount = 7
	if err := db.UpdatePasskeyCredential(ctx, created.ID, cred); err != nil {
		t.Fatalf("update credential: %v", err)
	}
	updated, err := db.GetPasskeyCredentialByCredID(ctx, []byte("credential-id-1"))
	if err != nil {
		t.Fatalf("re-read credential: %v", err)
	}
	if updated.LastUsedAt == nil {
		t.Error("last_used_at not stamped after update")
	}
	if updated.Credential.Authenticator.SignCount != 7 {
		t.Errorf("sign count = %d, want 7", updated.Credential.Authenticator.SignCount)
	}

	// Ownership is part of the delete predicate.
	other, err := db.CreateUser(ctx, "pk_other@example.com", "pk_other", "Other", "", 0)
	if err != nil {
		t.Fatalf("create other user: %v", err)
	}
	found, err := db.DeletePasskeyCredential(ctx, other.ID, created.ID)
	if err != nil {
		t.Fatalf("delete as other user: %v", err)
	}
	if found {
		t.Error("delete as non-owner: got found=true, want false")
	}

	found, err = db.DeletePasskeyCredential(ctx, user.ID, created.ID)
	if err != nil {
		t.Fatalf("delete credential: %v", err)
	}
	if !found {
		t.Error("delete as owner: got found=false, want true")
	}
	found, err = db.DeletePasskeyCredential(ctx, user.ID, created.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if found {
		t.Error("second delete: got found=true, want false")
	}
}
