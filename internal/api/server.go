// ABOUTME: HTTP server struct, constructor, and handler wiring.
// ABOUTME: Holds the store, config, WebAuthn relying party, and argon2 semaphore.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/emelleby/ilca-kns-sub001/internal/auth"
	"github.com/emelleby/ilca-kns-sub001/internal/config"
	"github.com/emelleby/ilca-kns-sub001/internal/notify"
	"github.com/emelleby/ilca-kns-sub001/internal/rbac"
	"github.com/emelleby/ilca-kns-sub001/internal/store"
)

// Server holds the dependencies for the HTTP layer.
type Server struct {
	store       *store.Store
	cfg         *config.Config
	wa          *webauthn.WebAuthn
	argon2Sem   chan struct{}
	rateLimiter *ipRateLimiter
}

// NewServer creates a Server. Returns an error if WebAuthn initialization
// fails (malformed external URL).
func NewServer(s *store.Store, cfg *config.Config) (*Server, error) {
	wa, err := auth.NewWebAuthn(cfg)
	if err != nil {
		return nil, err
	}
	evictTTL := cfg.RateLimitEvictTTL
	if evictTTL == 0 {
		evictTTL = 15 * time.Minute
	}
	// 10 requests per minute, burst of 10 — login/register abuse protection.
	rl := newIPRateLimiter(rate.Limit(10.0/60), 10, evictTTL)
	return &Server{
		store:       s,
		cfg:         cfg,
		wa:          wa,
		argon2Sem:   make(chan struct{}, cfg.Argon2MaxConcurrent),
		rateLimiter: rl,
	}, nil
}

// smtpConfig builds the notify.SmtpConfig from the server config.
func (srv *Server) smtpConfig() notify.SmtpConfig {
	return notify.SmtpConfig{
		Host:        srv.cfg.SMTPHost,
		Port:        srv.cfg.SMTPPort,
		From:        srv.cfg.SMTPFrom,
		FromName:    srv.cfg.WebAuthnRPDisplayName,
		Username:    srv.cfg.SMTPUsername,
		Password:    srv.cfg.SMTPPassword,
		TLS:         srv.cfg.SMTPTLS,
		DevRedirect: srv.cfg.EmailDevRedirect,
	}
}

// Handler builds and returns the http.Handler.
func (srv *Server) Handler() http.Handler {
	var db *pgxpool.Pool
	if srv.store != nil {
		db = srv.store.Pool()
	}
	r := chi.NewRouter()

	// Security headers first so they appear on every response including errors.
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			next.ServeHTTP(w, r)
		})
	})

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	// 1 MB global body limit — protect against OOM from large request bodies.
	r.Use(middleware.RequestSize(1 << 20))
	r.Use(middleware.Recoverer)
	r.Use(csrfProtect)

	// ── Infrastructure endpoints ──────────────────────────────────────────────
	r.Get("/healthz", healthzHandler(db))
	r.Handle("/metrics", promhttp.Handler())

	// ── API v1 sub-router with huma (OpenAPI 3.1) ────────────────────────────
	apiRouter := chi.NewRouter()
	humaConfig := huma.DefaultConfig("ILCA KNS API", "0.1.0")
	humaConfig.Info.Description = "Sailing-club community platform API"
	// Brute-force protection on the credential endpoints only; the rest of the
	// API is bounded by auth itself.
	apiRouter.Use(srv.credentialRateLimit())

	api := humachi.New(apiRouter, humaConfig)
	registerAuthRoutes(api, srv)
	registerProfileRoutes(api, srv)

	// ── Passkey ceremonies (chi, not huma — protocol JSON shapes come from
	// the webauthn library, not from huma schemas) ───────────────────────────
	apiRouter.Route("/auth/passkeys", func(r chi.Router) {
		r.Post("/login/begin", srv.passkeyLoginBeginHandler)
		r.Post("/login/finish", srv.passkeyLoginFinishHandler)
		r.Group(func(r chi.Router) {
			r.Use(srv.RequireAuthenticated())
			r.Post("/register/begin", srv.passkeyRegisterBeginHandler)
			r.Post("/register/finish", srv.passkeyRegisterFinishHandler)
			r.Get("/", srv.listPasskeysHandler)
			r.Delete("/{id}", srv.deletePasskeyHandler)
		})
	})

	// ── Org management routes (chi, not huma, for per-route RBAC middleware) ──
	apiRouter.Route("/orgs", func(r chi.Router) {
		r.Use(srv.RequireAuthenticated())
		r.Post("/", srv.createOrgHandler)
		r.Get("/", srv.listUserOrgsHandler)

		r.Route("/{org_id}", func(r chi.Router) {
			r.Use(srv.RequireOrgRole(rbac.RoleMember))
			r.Get("/", srv.getOrgHandler)
			r.With(srv.RequireOrgRole(rbac.RoleAdmin)).Patch("/", srv.updateOrgHandler)
			r.With(srv.RequireOrgRole(rbac.RoleAdmin)).Delete("/", srv.deleteOrgHandler)

			// Member management
			r.Route("/members", func(r chi.Router) {
				r.Get("/", srv.listMembersHandler)
				r.With(srv.RequireOrgRole(rbac.RoleAdmin)).Patch("/{user_id}", srv.updateMemberRoleHandler)
				r.With(srv.RequireOrgRole(rbac.RoleAdmin)).Delete("/{user_id}", srv.removeMemberHandler)
			})

			// Invitation management
			r.Route("/invitations", func(r chi.Router) {
				r.Use(srv.RequireOrgRole(rbac.RoleCoach))
				r.Post("/", srv.createInvitationHandler)
				r.Get("/", srv.listInvitationsHandler)
				r.Delete("/{id}", srv.cancelInvitationHandler)
			})
		})
	})

	r.Mount("/api/v1", apiRouter)

	return r
}

// acquireArgon2 tries to acquire the argon2 semaphore. Returns false if all
// slots are in use — the caller should return 503 immediately (do NOT block).
func (srv *Server) acquireArgon2() bool {
	select {
	case srv.argon2Sem <- struct{}{}:
		return true
	default:
		return false
	}
}

func (srv *Server) releaseArgon2() { <-srv.argon2Sem }

// writeJSON writes v as JSON with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("writeJSON: encode failed", "error", err)
	}
}

// healthResponse is the JSON body for /healthz.
type healthResponse struct {
	Status string `json:"status"`
	DB     string `json:"db,omitempty"`
}

// healthzHandler returns 200 {"status":"ok"} when the DB is reachable,
// or 503 {"status":"degraded","db":"unavailable"} when it is not.
func healthzHandler(db *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		statusCode := http.StatusOK

		if db == nil {
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		} else if err := db.Ping(r.Context()); err != nil {
			slog.WarnContext(r.Context(), "healthz: db ping failed", "error", err)
			resp.Status = "degraded"
			resp.DB = "unavailable"
			statusCode = http.StatusServiceUnavailable
		}

		writeJSON(w, statusCode, resp)
	}
}
