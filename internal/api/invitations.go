// ABOUTME: HTTP handlers for club-scoped invitation management: create, list, cancel.
// ABOUTME: Coaches and admins invite by email; the invitee redeems via /auth/invitations.
package api

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/notify"
	"github.com/emelleby/ilca-kns-sub001/internal/rbac"
	"github.com/emelleby/ilca-kns-sub001/internal/store"
)

// newInvitationToken returns a URL-safe random token with 256 bits of entropy.
func newInvitationToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// createInvitationBody is the JSON request body for POST .../invitations.
type createInvitationBody struct {
	Email string `json:"email"`
	Role  string `json:"role"`
}

// invitationResponseBody is the JSON shape for invitation reads and creates.
type invitationResponseBody struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	ExpiresAt string `json:"expires_at"`
}

func invitationResponse(inv *store.Invitation) invitationResponseBody {
	return invitationResponseBody{
		ID:        inv.ID.String(),
		Email:     inv.Email,
		Role:      string(inv.Role),
		Status:    string(inv.EffectiveStatus(time.Now())),
		CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		ExpiresAt: inv.ExpiresAt.Format(time.RFC3339),
	}
}

// createInvitationHandler handles POST /api/v1/orgs/{org_id}/invitations.
// Requires at least coach role. A coach may grant any role up to their own.
func (srv *Server) createInvitationHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	inviterID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	inviterRole, ok := r.Context().Value(ctxRole).(rbac.Role)
	if !ok {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	var req createInvitationBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	addr, err := mail.ParseAddress(req.Email)
	if err != nil {
		http.Error(w, "invalid email address", http.StatusBadRequest)
		return
	}
	role, err := rbac.ParseRole(req.Role)
	if err != nil {
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}
	// No privilege escalation by proxy: a coach cannot hand out admin.
	if !inviterRole.Satisfies(role) {
		http.Error(w, "cannot grant a role above your own", http.StatusForbidden)
		return
	}

	token, err := newInvitationToken()
	if err != nil {
		slog.ErrorContext(r.Context(), "create invitation: token", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	inv, err := srv.store.CreateInvitation(r.Context(), store.CreateInvitationParams{
		OrgID:     orgID,
		Email:     addr.Address,
		Role:      role,
		Token:     token,
		CreatedBy: inviterID,
		ExpiresAt: time.Now().Add(srv.cfg.InvitationTTL),
	})
	if err != nil {
		switch {
		case errors.Is(err, store.ErrAlreadyMember):
			http.Error(w, "already a member of this club", http.StatusConflict)
		case errors.Is(err, store.ErrDuplicateInvitation):
			http.Error(w, "a pending invitation for this email already exists", http.StatusConflict)
		default:
			slog.ErrorContext(r.Context(), "create invitation", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}

	// Email delivery is best-effort. The invitation row is already committed;
	// a coach can re-send the accept link from the pending list.
	go srv.sendInvitationEmail(context.WithoutCancel(r.Context()), inv, inviterID)

	writeJSON(w, http.StatusCreated, invitationResponse(inv))
}

// sendInvitationEmail renders and sends the invitation email.
// Runs in its own goroutine; failures are logged, never surfaced to the caller.
func (srv *Server) sendInvitationEmail(ctx context.Context, inv *store.Invitation, inviterID uuid.UUID) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	org, err := srv.store.GetOrgByID(ctx, inv.OrgID)
	if err != nil || org == nil {
		slog.ErrorContext(ctx, "invitation email: get org", "error", err)
		return
	}
	inviterName := ""
	if inviter, err := srv.store.GetUserByID(ctx, inviterID); err == nil && inviter != nil {
		inviterName = inviter.DisplayName
	}

	subject, htmlBody, textBody, err := notify.RenderInvitation(notify.InvitationTemplateData{
		OrgName:     org.Name,
		Role:        string(inv.Role),
		InviterName: inviterName,
		AcceptURL:   srv.cfg.ExternalURL + "/invitations/" + inv.Token,
		ExpiresAt:   inv.ExpiresAt,
	})
	if err != nil {
		slog.ErrorContext(ctx, "invitation email: render", "error", err)
		return
	}

	if err := notify.EmailSend(ctx, srv.smtpConfig(), []string{inv.Email}, subject, htmlBody, textBody); err != nil {
		slog.ErrorContext(ctx, "invitation email: send", "error", err, "invitation_id", inv.ID)
		return
	}
	slog.InfoContext(ctx, "invitation email sent", "invitation_id", inv.ID, "org_id", inv.OrgID)
}

// listInvitationsHandler handles GET /api/v1/orgs/{org_id}/invitations.
// Requires at least coach role. Returns only pending, unexpired invitations;
// stale-pending rows are swept to expired as part of the read.
func (srv *Server) listInvitationsHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	invs, err := srv.store.ListPendingInvitations(r.Context(), orgID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list invitations", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]invitationResponseBody, 0, len(invs))
	for i := range invs {
		out = append(out, invitationResponse(&invs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// cancelInvitationHandler handles DELETE /api/v1/orgs/{org_id}/invitations/{id}.
// Requires at least coach role. Cancelling deletes the row — the token stops
// resolving, which reads the same as never having existed.
func (srv *Server) cancelInvitationHandler(w http.ResponseWriter, r *http.Request) {
	orgID, ok := r.Context().Value(ctxOrgID).(uuid.UUID)
	if !ok {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid invitation id", http.StatusBadRequest)
		return
	}

	found, err := srv.store.CancelInvitation(r.Context(), orgID, id)
	if err != nil {
		slog.ErrorContext(r.Context(), "cancel invitation", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
