// ABOUTME: Integration tests for store/user.go, profile.go, and refresh_token.go.
// ABOUTME: Covers case-insensitive lookups, token versioning, and JTI rotation bookkeeping.
package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/store"
	"github.com/emelleby/ilca-kns-sub001/internal/testutil"
)

func TestCreateUser_CaseInsensitiveLookup(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "Tracker@Example.com", "Tracker", "Tracker", "hash", 1)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	byEmail, err := s.GetUserByEmail(ctx, "tracker@EXAMPLE.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if byEmail == nil || byEmail.ID != user.ID {
		t.Errorf("case-folded email lookup = %+v, want user %v", byEmail, user.ID)
	}

	byUsername, err := s.GetUserByUsername(ctx, "tracker")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if byUsername == nil || byUsername.ID != user.ID {
		t.Errorf("case-folded username lookup = %+v, want user %v", byUsername, user.ID)
	}

	// Duplicate email differing only in case violates the unique index.
	if _, err := s.CreateUser(ctx, "TRACKER@example.com", "other", "Other", "hash", 1); err == nil {
		t.Error("duplicate email (case-folded) should fail")
	}

	missing, err := s.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail(missing): %v", err)
	}
	if missing != nil {
		t.Error("GetUserByEmail(missing) should return nil")
	}
}

func TestCreateUser_SeedsProfile(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "p@example.com", "p", "P", "", 0)
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	// Passkey-only account: empty hash stores as NULL.
	if user.PasswordHash != nil {
		t.Errorf("PasswordHash = %v, want nil for empty hash", *user.PasswordHash)
	}

	profile, err := s.GetProfile(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile == nil {
		t.Fatal("profile row not seeded at registration")
	}

	bio := "ILCA 7 since 2019"
	sail := "NOR-123456"
	updated, err := s.UpdateProfile(ctx, user.ID, store.UpdateProfileParams{Bio: &bio, SailNumber: &sail})
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Bio != bio || updated.SailNumber != sail {
		t.Errorf("profile after update = %+v", updated)
	}
	if updated.Location != "" {
		t.Errorf("untouched field changed: Location = %q", updated.Location)
	}
}

func TestTokenVersionLifecycle(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "tv@example.com", "tv", "TV", "hash", 1)

	v, err := s.IncrementTokenVersion(ctx, user.ID)
	if err != nil {
		t.Fatalf("IncrementTokenVersion: %v", err)
	}
	if v != user.TokenVersion+1 {
		t.Errorf("token version = %d, want %d", v, user.TokenVersion+1)
	}

	// Changing the password bumps the version too.
	if err := s.UpdatePasswordHash(ctx, user.ID, "newhash", 1); err != nil {
		t.Fatalf("UpdatePasswordHash: %v", err)
	}
	after, _ := s.GetUserByID(ctx, user.ID)
	if after.TokenVersion != v+1 {
		t.Errorf("token version after password change = %d, want %d", after.TokenVersion, v+1)
	}
	if after.PasswordHash == nil || *after.PasswordHash != "newhash" {
		t.Errorf("password hash not updated: %v", after.PasswordHash)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	user, _ := s.CreateUser(ctx, "rt@example.com", "rt", "RT", "hash", 1)

	jtiA := uuid.New()
	jtiB := uuid.New()
	if err := s.CreateRefreshToken(ctx, jtiA, user.ID, user.TokenVersion, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	if err := s.CreateRefreshToken(ctx, jtiB, user.ID, user.TokenVersion, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateRefreshToken(B): %v", err)
	}

	fresh, err := s.GetRefreshToken(ctx, jtiA)
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	if fresh == nil || fresh.UsedAt != nil || fresh.ReplacedByJTI != nil {
		t.Fatalf("fresh token = %+v, want unused", fresh)
	}

	if err := s.MarkRefreshTokenUsed(ctx, jtiA, jtiB); err != nil {
		t.Fatalf("MarkRefreshTokenUsed: %v", err)
	}
	used, _ := s.GetRefreshToken(ctx, jtiA)
	if used.UsedAt == nil {
		t.Error("UsedAt not set after rotation")
	}
	if used.ReplacedByJTI == nil || *used.ReplacedByJTI != jtiB {
		t.Errorf("ReplacedByJTI = %v, want %v", used.ReplacedByJTI, jtiB)
	}

	// Unknown JTI reads as a miss, not an error.
	missing, err := s.GetRefreshToken(ctx, uuid.New())
	if err != nil {
		t.Fatalf("GetRefreshToken(missing): %v", err)
	}
	if missing != nil {
		t.Error("GetRefreshToken(missing) should return nil")
	}
}
