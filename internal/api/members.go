// ABOUTME: HTTP handlers for club membership: list members, change roles, remove.
// ABOUTME: Role changes and removals are admin-only and refuse to orphan a club.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/rbac"
	"github.com/emelleby/ilca-kns-sub001/internal/store"
)

// memberResponseBody is one entry in GET /api/v1/orgs/{org_id}/members.
type memberResponseBody struct {
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	Role        string `json:"role"`
	JoinedAt    string `json:"joined_at"`
}

// updateMemberRoleBody is the JSON request body for PATCH .../members/{user_id}.
type updateMemberRoleBody struct {
	Role string `json:"role"`
}

// listMembersHandler handles GET /api/v1/orgs/{org_id}/members.
// Requires at least member role.
func (srv *Server) listMembersHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	members, err := srv.store.ListMembers(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list members", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]memberResponseBody, 0, len(members))
	for _, m := range members {
		out = append(out, memberResponseBody{
			UserID:      m.UserID.String(),
			Username:    m.Username,
			DisplayName: m.DisplayName,
			Role:        string(m.Role),
			JoinedAt:    m.JoinedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// updateMemberRoleHandler handles PATCH /api/v1/orgs/{org_id}/members/{user_id}.
// Requires admin role. Refuses to demote the last admin.
func (srv *Server) updateMemberRoleHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	var req updateMemberRoleBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	found, err := srv.store.UpdateMemberRole(r.Context(), orgID, userID, role)
	if err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			http.Error(w, "cannot demote the last admin", http.StatusConflict)
			return
		}
		slog.ErrorContext(r.Context(), "update member role", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not a member", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"user_id": userID.String(),
		"role":    string(role),
	})
}

// removeMemberHandler handles DELETE /api/v1/orgs/{org_id}/members/{user_id}.
// Requires admin role. Refuses to remove the last admin; the user account
// itself is never deleted.
func (srv *Server) removeMemberHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	userID, err := uuid.Parse(chi.URLParam(r, "user_id"))
	if err != nil {
		http.Error(w, "invalid user_id", http.StatusBadRequest)
		return
	}

	found, err := srv.store.RemoveMember(r.Context(), orgID, userID)
	if err != nil {
		if errors.Is(err, store.ErrLastAdmin) {
			http.Error(w, "cannot remove the last admin", http.StatusConflict)
			return
		}
		slog.ErrorContext(r.Context(), "remove member", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not a member", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
