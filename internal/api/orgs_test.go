// ABOUTME: End-to-end tests for club management and member administration endpoints.
// ABOUTME: Exercises the admin-only gates, the delete transaction, and the last-admin guard.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/emelleby/ilca-kns-sub001/internal/testutil"
)

// doJSON sends an arbitrary-method JSON request with cookies and the CSRF header.
func doJSON(t *testing.T, ts *httptest.Server, method, path string, body any, cookies []*http.Cookie) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequestWithContext(context.Background(), method, ts.URL+path, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Requested-By", "ILCA-KNS")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// addMemberViaInvite runs the invite → register → accept path and returns the
// new member's cookies.
func addMemberViaInvite(t *testing.T, ts *httptest.Server, db *testutil.TestDB, adminCookies []*http.Cookie, orgID, email, username, role string) []*http.Cookie {
	t.Helper()
	resp := postJSON(t, ts, "/api/v1/orgs/"+orgID+"/invitations", map[string]string{
		"email": email, "role": role,
	}, adminCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("invite %s: got %d", email, resp.StatusCode)
	}
	invs, err := db.ListPendingInvitations(context.Background(), mustUUID(t, orgID))
	if err != nil || len(invs) == 0 {
		t.Fatalf("pending invitations: %v (%d)", err, len(invs))
	}
	token := invs[len(invs)-1].Token

	cookies := registerAndLogin(t, ts, email, username, "hunter2hunter2")
	accept := postJSON(t, ts, "/api/v1/auth/invitations/"+token+"/accept", nil, cookies)
	accept.Body.Close() //nolint:errcheck
	if accept.StatusCode != http.StatusOK {
		t.Fatalf("accept for %s: got %d", email, accept.StatusCode)
	}
	return cookies
}

func TestUpdateOrg_AdminOnly(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newTestServer(t, db)

	adminCookies := registerAndLogin(t, ts, "admin@example.com", "clubadmin", "hunter2hunter2")
	orgID := createClub(t, ts, adminCookies, "Patch Club")
	memberCookies := addMemberViaInvite(t, ts, db, adminCookies, orgID, "member@example.com", "member1", "member")

	// A plain member cannot rename the club.
	resp := doJSON(t, ts, http.MethodPatch, "/api/v1/orgs/"+orgID, map[string]string{"name": "Hijacked"}, memberCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("member patching club: got %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodPatch, "/api/v1/orgs/"+orgID, map[string]string{
		"name": "Patched Club", "description": "now with a description",
	}, adminCookies)
	defer resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("admin patch: got %d: %s", resp.StatusCode, b)
	}
	var out struct {
		Name        string `json:"name"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Name != "Patched Club" || out.Description != "now with a description" {
		t.Errorf("patched club = %+v", out)
	}
}

func TestDeleteOrg_EndToEnd(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newTestServer(t, db)

	adminCookies := registerAndLogin(t, ts, "admin@example.com", "clubadmin", "hunter2hunter2")
	orgID := createClub(t, ts, adminCookies, "Condemned Club")
	memberCookies := addMemberViaInvite(t, ts, db, adminCookies, orgID, "member@example.com", "member1", "member")

	// A member cannot delete the club.
	resp := doJSON(t, ts, http.MethodDelete, "/api/v1/orgs/"+orgID, nil, memberCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("member deleting club: got %d, want 403", resp.StatusCode)
	}

	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/orgs/"+orgID, nil, adminCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("admin delete: got %d, want 204", resp.StatusCode)
	}

	// The club is gone; the accounts are not.
	gone := getJSON(t, ts, "/api/v1/orgs/"+orgID, adminCookies, nil)
	gone.Body.Close() //nolint:errcheck
	if gone.StatusCode != http.StatusForbidden {
		// The membership vanished with the club, so the gate denies before
		// the handler can report 404.
		t.Errorf("deleted club read: got %d, want 403", gone.StatusCode)
	}
	me := getJSON(t, ts, "/api/v1/auth/me", memberCookies, nil)
	me.Body.Close() //nolint:errcheck
	if me.StatusCode != http.StatusOK {
		t.Errorf("ex-member account: got %d, want 200", me.StatusCode)
	}
}

func TestMemberRoleManagement(t *testing.T) {
	t.Parallel()
	db := testutil.NewTestDB(t)
	ts := newTestServer(t, db)

	adminCookies := registerAndLogin(t, ts, "admin@example.com", "clubadmin", "hunter2hunter2")
	orgID := createClub(t, ts, adminCookies, "Crew Club")
	addMemberViaInvite(t, ts, db, adminCookies, orgID, "sailor@example.com", "sailor", "member")

	var me struct {
		UserID string `json:"user_id"`
	}
	meResp := getJSON(t, ts, "/api/v1/auth/me", adminCookies, &me)
	if meResp.StatusCode != http.StatusOK {
		t.Fatalf("me: got %d", meResp.StatusCode)
	}

	var members []struct {
		UserID   string `json:"user_id"`
		Username string `json:"username"`
		Role     string `json:"role"`
	}
	listResp := getJSON(t, ts, "/api/v1/orgs/"+orgID+"/members", adminCookies, &members)
	if listResp.StatusCode != http.StatusOK || len(members) != 2 {
		t.Fatalf("list members: status %d, %d entries", listResp.StatusCode, len(members))
	}
	var sailorID string
	for _, m := range members {
		if m.Username == "sailor" {
			sailorID = m.UserID
		}
	}

	// Promote the sailor to coach.
	resp := doJSON(t, ts, http.MethodPatch, "/api/v1/orgs/"+orgID+"/members/"+sailorID,
		map[string]string{"role": "coach"}, adminCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("promote: got %d, want 200", resp.StatusCode)
	}

	// The sole admin cannot demote themselves.
	resp = doJSON(t, ts, http.MethodPatch, "/api/v1/orgs/"+orgID+"/members/"+me.UserID,
		map[string]string{"role": "member"}, adminCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("demote last admin: got %d, want 409", resp.StatusCode)
	}

	// Remove the coach; removing again is a 404.
	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/orgs/"+orgID+"/members/"+sailorID, nil, adminCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("remove member: got %d, want 204", resp.StatusCode)
	}
	resp = doJSON(t, ts, http.MethodDelete, "/api/v1/orgs/"+orgID+"/members/"+sailorID, nil, adminCookies)
	resp.Body.Close() //nolint:errcheck
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("remove again: got %d, want 404", resp.StatusCode)
	}
}
