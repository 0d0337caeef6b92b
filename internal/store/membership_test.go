// ABOUTME: Integration tests for store/membership.go — role lookup, role changes, removal.
// ABOUTME: Covers the last-admin guard that keeps every club administerable.
package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/emelleby/ilca-kns-sub001/internal/rbac"
	"github.com/emelleby/ilca-kns-sub001/internal/store"
	"github.com/emelleby/ilca-kns-sub001/internal/testutil"
)

func TestGetMemberRole(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	admin, _ := s.CreateUser(ctx, "admin@example.com", "admin", "Admin", "", 0)
	coach, _ := s.CreateUser(ctx, "coach@example.com", "coach", "Coach", "", 0)
	outsider, _ := s.CreateUser(ctx, "out@example.com", "out", "Out", "", 0)
	org, _ := s.CreateOrgWithAdmin(ctx, "Role Club", "", admin.ID)
	if err := s.AddMember(ctx, org.ID, coach.ID, rbac.RoleCoach); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	role, err := s.GetMemberRole(ctx, org.ID, coach.ID)
	if err != nil {
		t.Fatalf("GetMemberRole: %v", err)
	}
	if role == nil || *role != rbac.RoleCoach {
		t.Errorf("coach role = %v, want coach", role)
	}

	// Non-member: nil role, nil error — a miss is not a fault.
	role, err = s.GetMemberRole(ctx, org.ID, outsider.ID)
	if err != nil {
		t.Fatalf("GetMemberRole(non-member): %v", err)
	}
	if role != nil {
		t.Errorf("non-member role = %v, want nil", *role)
	}

	ok, err := s.IsMember(ctx, org.ID, coach.ID)
	if err != nil || !ok {
		t.Errorf("IsMember(coach) = %v, %v; want true, nil", ok, err)
	}
	ok, err = s.IsMember(ctx, org.ID, outsider.ID)
	if err != nil || ok {
		t.Errorf("IsMember(outsider) = %v, %v; want false, nil", ok, err)
	}
}

func TestUpdateMemberRole(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	admin, _ := s.CreateUser(ctx, "admin@example.com", "admin", "Admin", "", 0)
	sailor, _ := s.CreateUser(ctx, "sailor@example.com", "sailor", "Sailor", "", 0)
	org, _ := s.CreateOrgWithAdmin(ctx, "Promo Club", "", admin.ID)
	if err := s.AddMember(ctx, org.ID, sailor.ID, rbac.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	found, err := s.UpdateMemberRole(ctx, org.ID, sailor.ID, rbac.RoleCoach)
	if err != nil {
		t.Fatalf("UpdateMemberRole: %v", err)
	}
	if !found {
		t.Fatal("UpdateMemberRole returned found=false for member")
	}
	role, _ := s.GetMemberRole(ctx, org.ID, sailor.ID)
	if role == nil || *role != rbac.RoleCoach {
		t.Errorf("role after promotion = %v, want coach", role)
	}

	// Updating a non-member reports not found.
	stranger, _ := s.CreateUser(ctx, "stranger@example.com", "stranger", "S", "", 0)
	found, err = s.UpdateMemberRole(ctx, org.ID, stranger.ID, rbac.RoleCoach)
	if err != nil {
		t.Fatalf("UpdateMemberRole(non-member): %v", err)
	}
	if found {
		t.Error("UpdateMemberRole(non-member) should report found=false")
	}
}

func TestLastAdminGuard(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	admin, _ := s.CreateUser(ctx, "solo@example.com", "solo", "Solo", "", 0)
	org, _ := s.CreateOrgWithAdmin(ctx, "Solo Club", "", admin.ID)

	// Demoting the only admin must fail.
	_, err := s.UpdateMemberRole(ctx, org.ID, admin.ID, rbac.RoleMember)
	if !errors.Is(err, store.ErrLastAdmin) {
		t.Errorf("demote sole admin: err = %v, want ErrLastAdmin", err)
	}

	// Removing the only admin must fail.
	_, err = s.RemoveMember(ctx, org.ID, admin.ID)
	if !errors.Is(err, store.ErrLastAdmin) {
		t.Errorf("remove sole admin: err = %v, want ErrLastAdmin", err)
	}

	// With a second admin present, both operations go through.
	second, _ := s.CreateUser(ctx, "second@example.com", "second", "Second", "", 0)
	if err := s.AddMember(ctx, org.ID, second.ID, rbac.RoleAdmin); err != nil {
		t.Fatalf("AddMember: %v", err)
	}
	found, err := s.UpdateMemberRole(ctx, org.ID, admin.ID, rbac.RoleMember)
	if err != nil || !found {
		t.Fatalf("demote with second admin: found=%v err=%v", found, err)
	}

	found, err = s.RemoveMember(ctx, org.ID, admin.ID)
	if err != nil || !found {
		t.Fatalf("remove demoted member: found=%v err=%v", found, err)
	}
	if role, _ := s.GetMemberRole(ctx, org.ID, admin.ID); role != nil {
		t.Error("removed member still has a role")
	}
}

func TestListMembers(t *testing.T) {
	t.Parallel()
	s := testutil.NewTestDB(t)
	ctx := context.Background()

	admin, _ := s.CreateUser(ctx, "admin@example.com", "admin", "Admin", "", 0)
	sailor, _ := s.CreateUser(ctx, "sailor@example.com", "sailor", "Sailor", "", 0)
	org, _ := s.CreateOrgWithAdmin(ctx, "List Club", "", admin.ID)
	if err := s.AddMember(ctx, org.ID, sailor.ID, rbac.RoleMember); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	members, err := s.ListMembers(ctx, org.ID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("len(members) = %d, want 2", len(members))
	}
	byUser := map[string]store.Member{}
	for _, m := range members {
		byUser[m.Username] = m
	}
	if byUser["admin"].Role != rbac.RoleAdmin {
		t.Errorf("admin role = %v", byUser["admin"].Role)
	}
	if byUser["sailor"].Role != rbac.RoleMember {
		t.Errorf("sailor role = %v", byUser["sailor"].Role)
	}
	if byUser["sailor"].DisplayName != "Sailor" {
		t.Errorf("sailor display name = %q", byUser["sailor"].DisplayName)
	}
}
