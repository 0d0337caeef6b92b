// ABOUTME: HTTP handlers for WebAuthn passkey ceremonies and credential management.
// ABOUTME: Ceremony state lives in single-use DB sessions keyed by a short-lived cookie.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/emelleby/ilca-kns-sub001/internal/auth"
	"github.com/emelleby/ilca-kns-sub001/internal/store"
)

const passkeySessionCookie = "passkey_session"

// setPasskeySessionCookie binds the ceremony session id to the browser for the
// duration of the begin/finish exchange.
func (srv *Server) setPasskeySessionCookie(w http.ResponseWriter, id uuid.UUID) {
	http.SetCookie(w, &http.Cookie{
		Name:     passkeySessionCookie,
		Value:    id.String(),
		Path:     "/api/v1/auth/passkeys",
		HttpOnly: true,
		Secure:   srv.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(srv.cfg.PasskeySessionTTL.Seconds()),
	})
}

// consumeCeremonySession reads the ceremony cookie and atomically consumes the
// stored session. Returns nil (with the response already written) on failure.
func (srv *Server) consumeCeremonySession(w http.ResponseWriter, r *http.Request) *webauthn.SessionData {
	cookie, err := r.Cookie(passkeySessionCookie)
	if err != nil {
		http.Error(w, "no ceremony in progress", http.StatusBadRequest)
		return nil
	}
	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		http.Error(w, "no ceremony in progress", http.StatusBadRequest)
		return nil
	}
	session, err := srv.store.ConsumePasskeySession(r.Context(), id)
	if err != nil {
		slog.ErrorContext(r.Context(), "passkey: consume session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return nil
	}
	if session == nil {
		http.Error(w, "ceremony expired, start over", http.StatusBadRequest)
		return nil
	}
	return session
}

// loadPasskeyUser assembles the webauthn.User adapter for userID.
func (srv *Server) loadPasskeyUser(r *http.Request, userID uuid.UUID) (*auth.PasskeyUser, error) {
	user, err := srv.store.GetUserByID(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, nil
	}
	creds, err := srv.store.ListPasskeyCredentials(r.Context(), userID)
	if err != nil {
		return nil, err
	}
	pu := &auth.PasskeyUser{
		ID:          user.ID,
		Username:    user.Username,
		DisplayName: user.DisplayName,
		Credentials: make([]webauthn.Credential, 0, len(creds)),
	}
	for _, c := range creds {
		pu.Credentials = append(pu.Credentials, c.Credential)
	}
	return pu, nil
}

// ── Registration ceremony (authenticated) ─────────────────────────────────────

// passkeyRegisterBeginHandler handles POST /api/v1/auth/passkeys/register/begin.
func (srv *Server) passkeyRegisterBeginHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	pu, err := srv.loadPasskeyUser(r, userID)
	if err != nil || pu == nil {
		slog.ErrorContext(r.Context(), "passkey register begin: load user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	// Exclude already-registered credentials so the authenticator refuses to
	// re-enroll itself.
	exclusions := make([]protocol.CredentialDescriptor, 0, len(pu.Credentials))
	for _, c := range pu.Credentials {
		exclusions = append(exclusions, c.Descriptor())
	}

	options, session, err := srv.wa.BeginRegistration(pu, webauthn.WithExclusions(exclusions))
	if err != nil {
		slog.ErrorContext(r.Context(), "passkey register begin", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sessionID, err := srv.store.CreatePasskeySession(r.Context(), &userID, session, srv.cfg.PasskeySessionTTL)
	if err != nil {
		slog.ErrorContext(r.Context(), "passkey register begin: store session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	srv.setPasskeySessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, options)
}

// passkeyRegisterFinishHandler handles POST /api/v1/auth/passkeys/register/finish.
// The credential name is taken from the "name" query parameter because the
// request body is the raw attestation response.
func (srv *Server) passkeyRegisterFinishHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	session := srv.consumeCeremonySession(w, r)
	if session == nil {
		return
	}
	// The ceremony must belong to the authenticated user.
	if sessionUserID, err := uuid.FromBytes(session.UserID); err != nil || sessionUserID != userID {
		http.Error(w, "ceremony does not match session", http.StatusBadRequest)
		return
	}

	pu, err := srv.loadPasskeyUser(r, userID)
	if err != nil || pu == nil {
		slog.ErrorContext(r.Context(), "passkey register finish: load user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	cred, err := srv.wa.FinishRegistration(pu, *session, r)
	if err != nil {
		http.Error(w, "attestation verification failed", http.StatusBadRequest)
		return
	}

	name := r.URL.Query().Get("name")
	if name == "" {
		name = "Passkey"
	}
	stored, err := srv.store.CreatePasskeyCredential(r.Context(), userID, name, cred)
	if err != nil {
		slog.ErrorContext(r.Context(), "passkey register finish: store credential", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, passkeyResponse(stored))
}

// ── Login ceremony (public, discoverable credentials) ─────────────────────────

// passkeyLoginBeginHandler handles POST /api/v1/auth/passkeys/login/begin.
// Discoverable login: no username is asked for, the authenticator names the user.
func (srv *Server) passkeyLoginBeginHandler(w http.ResponseWriter, r *http.Request) {
	options, session, err := srv.wa.BeginDiscoverableLogin()
	if err != nil {
		slog.ErrorContext(r.Context(), "passkey login begin", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	sessionID, err := srv.store.CreatePasskeySession(r.Context(), nil, session, srv.cfg.PasskeySessionTTL)
	if err != nil {
		slog.ErrorContext(r.Context(), "passkey login begin: store session", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	srv.setPasskeySessionCookie(w, sessionID)
	writeJSON(w, http.StatusOK, options)
}

// passkeyLoginFinishHandler handles POST /api/v1/auth/passkeys/login/finish.
// On success the browser gets the same cookie pair as a password login.
func (srv *Server) passkeyLoginFinishHandler(w http.ResponseWriter, r *http.Request) {
	session := srv.consumeCeremonySession(w, r)
	if session == nil {
		return
	}

	var loginUser *store.User
	handler := func(_, userHandle []byte) (webauthn.User, error) {
		userID, err := uuid.FromBytes(userHandle)
		if err != nil {
			return nil, protocol.ErrBadRequest.WithDetails("unknown user handle")
		}
		pu, err := srv.loadPasskeyUser(r, userID)
		if err != nil {
			return nil, err
		}
		if pu == nil {
			return nil, protocol.ErrBadRequest.WithDetails("unknown user handle")
		}
		loginUser, err = srv.store.GetUserByID(r.Context(), userID)
		if err != nil {
			return nil, err
		}
		return pu, nil
	}

	cred, err := srv.wa.FinishDiscoverableLogin(handler, *session, r)
	if err != nil || loginUser == nil {
		http.Error(w, "assertion verification failed", http.StatusUnauthorized)
		return
	}

	// Re-persist the credential: the sign counter and clone flags advanced.
	if stored, err := srv.store.GetPasskeyCredentialByCredID(r.Context(), cred.ID); err == nil && stored != nil {
		if err := srv.store.UpdatePasskeyCredential(r.Context(), stored.ID, cred); err != nil {
			slog.WarnContext(r.Context(), "passkey login: update credential", "error", err)
		}
	}

	cookies, humaErr := srv.issueSession(r.Context(), loginUser)
	if humaErr != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	for _, c := range cookies {
		w.Header().Add("Set-Cookie", c)
	}
	writeJSON(w, http.StatusOK, map[string]string{"user_id": loginUser.ID.String()})
}

// ── Credential management (authenticated) ─────────────────────────────────────

// passkeyResponseBody is the JSON shape of a stored passkey.
type passkeyResponseBody struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	CreatedAt  string  `json:"created_at"`
	LastUsedAt *string `json:"last_used_at"`
}

func passkeyResponse(c *store.PasskeyCredential) passkeyResponseBody {
	out := passkeyResponseBody{
		ID:        c.ID.String(),
		Name:      c.Name,
		CreatedAt: c.CreatedAt.Format(time.RFC3339),
	}
	if c.LastUsedAt != nil {
		s := c.LastUsedAt.Format(time.RFC3339)
		out.LastUsedAt = &s
	}
	return out
}

// listPasskeysHandler handles GET /api/v1/auth/passkeys.
func (srv *Server) listPasskeysHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	creds, err := srv.store.ListPasskeyCredentials(r.Context(), userID)
	if err != nil {
		slog.ErrorContext(r.Context(), "list passkeys", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]passkeyResponseBody, 0, len(creds))
	for i := range creds {
		out = append(out, passkeyResponse(&creds[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

// deletePasskeyHandler handles DELETE /api/v1/auth/passkeys/{id}.
// Refuses to delete the last passkey of a passkey-only account, which would
// lock the user out permanently.
func (srv *Server) deletePasskeyHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value(ctxUserID).(uuid.UUID)
	if !ok {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid passkey id", http.StatusBadRequest)
		return
	}

	user, err := srv.store.GetUserByID(r.Context(), userID)
	if err != nil || user == nil {
		slog.ErrorContext(r.Context(), "delete passkey: get user", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if user.PasswordHash == nil {
		creds, err := srv.store.ListPasskeyCredentials(r.Context(), userID)
		if err != nil {
			slog.ErrorContext(r.Context(), "delete passkey: list", "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		if len(creds) <= 1 {
			http.Error(w, "cannot delete the only sign-in method", http.StatusConflict)
			return
		}
	}

	found, err := srv.store.DeletePasskeyCredential(r.Context(), userID, id)
	if err != nil {
		slog.ErrorContext(r.Context(), "delete passkey", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	if !found {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
