// ABOUTME: HTTP handlers for club (org) management: create, list, read, update, delete.
// ABOUTME: Routes use chi middleware (not huma.Register) for per-group RBAC enforcement.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/store"
)

// createOrgBody is the JSON request body for POST /api/v1/orgs.
type createOrgBody struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// orgResponseBody is the JSON response body for org reads and writes.
type orgResponseBody struct {
	OrgID       string `json:"org_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
}

// userOrgResponseBody is one entry in GET /api/v1/orgs.
type userOrgResponseBody struct {
	OrgID string `json:"org_id"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// updateOrgBody is the JSON request body for PATCH /api/v1/orgs/{org_id}.
// Nil fields are left unchanged.
type updateOrgBody struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

func orgResponse(org *store.Organization) orgResponseBody {
	return orgResponseBody{
		OrgID:       org.ID.String(),
		Name:        org.Name,
		Description: org.Description,
		CreatedAt:   org.CreatedAt.Format(time.RFC3339),
	}
}

// createOrgHandler handles POST /api/v1/orgs.
// Creates a new club and adds the authenticated user as admin.
func (srv *Server) createOrgHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	var req createOrgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	org, err := srv.store.CreateOrgWithAdmin(r.Context(), req.Name, req.Description, userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "create org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, orgResponse(org))
}

// listUserOrgsHandler handles GET /api/v1/orgs.
// Returns the authenticated user's clubs with their role in each.
func (srv *Server) listUserOrgsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	rows, err := srv.store.ListUserOrgs(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list user orgs", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]userOrgResponseBody, 0, len(rows))
	for _, row := range rows {
		out = append(out, userOrgResponseBody{
			OrgID: row.ID.String(),
			Name:  row.Name,
			Role:  string(row.Role),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// getOrgHandler handles GET /api/v1/orgs/{org_id}.
// Requires at least member role (enforced by RequireOrgRole middleware).
func (srv *Server) getOrgHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	org, err := srv.store.GetOrgByID(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "get org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if org == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, orgResponse(org))
}

// updateOrgHandler handles PATCH /api/v1/orgs/{org_id}.
// Requires admin role (enforced by RequireOrgRole middleware).
func (srv *Server) updateOrgHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var req updateOrgBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == nil && req.Description == nil {
		http.Error(w, "nothing to update", http.StatusBadRequest)
		return
	}
	if req.Name != nil && *req.Name == "" {
		http.Error(w, "name cannot be empty", http.StatusBadRequest)
		return
	}

	org, err := srv.store.UpdateOrg(r.Context(), orgID, store.UpdateOrgParams{
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		slog.ErrorContext(r.Context(), "update org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if org == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, orgResponse(org))
}

// deleteOrgHandler handles DELETE /api/v1/orgs/{org_id}.
// Requires admin role. Removes the club, its memberships, and its invitations
// in one transaction; member accounts themselves are untouched.
func (srv *Server) deleteOrgHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	found, err := srv.store.DeleteOrg(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete org", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
