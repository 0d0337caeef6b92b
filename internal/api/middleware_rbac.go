// ABOUTME: RequireOrgRole middleware — the permission gate for org-scoped routes.
// ABOUTME: One membership lookup per request; lookup failures are 500, never 403.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/rbac"
)

// RequireOrgRole returns a middleware that verifies the authenticated user is
// a member of the org in the URL ({org_id}) with a role satisfying minRole.
// On success it injects ctxOrgID and ctxRole into the request context.
//
// Must run after RequireAuthenticated. The membership is re-resolved on every
// request — no caching — so a role change takes effect on the next request.
func (srv *Server) RequireOrgRole(minRole rbac.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
			if !ok {
				http.Redirect(w, r, srv.cfg.LoginURL, http.StatusSeeOther)
				return
			}

			orgID, err := uuid.Parse(chi.URLParam(r, "org_id"))
			if err != nil {
				// A malformed org identifier is a client error, not a miss.
				http.Error(w, "invalid org_id", http.StatusBadRequest)
				return
			}

			role, err := srv.store.GetMemberRole(r.Context(), orgID, userID)
			if err != nil {
				// An infrastructure fault must never read as a denial.
				slog.ErrorContext(r.Context(), "org role lookup", "error", err)
				http.Error(w, "internal error", http.StatusInternalServerError)
				return
			}
			if role == nil || !role.Satisfies(minRole) {
				http.Error(w, "forbidden", http.StatusForbidden)
				return
			}

			ctx := context.WithValue(r.Context(), ctxOrgID, orgID)
			ctx = context.WithValue(ctx, ctxRole, *role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
