// ABOUTME: Tests for the custom-header CSRF middleware.
// ABOUTME: No DB needed — the middleware only inspects method, cookie, and header.
package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func csrfTestHandler() http.Handler {
	return csrfProtect(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRF_CookiePostWithoutHeader_403(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "whatever"})
	rec := httptest.NewRecorder()

	csrfTestHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Errorf("cookie POST without header: got %d, want 403", rec.Code)
	}
}

func TestCSRF_CookiePostWithHeader_OK(t *testing.T) {
	t.Parallel()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orgs", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "whatever"})
	req.Header.Set("X-Requested-By", "ILCA-KNS")
	rec := httptest.NewRecorder()

	csrfTestHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cookie POST with header: got %d, want 200", rec.Code)
	}
}

func TestCSRF_ExemptPaths(t *testing.T) {
	t.Parallel()

	// Safe methods are exempt even with the cookie.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orgs", nil)
	req.AddCookie(&http.Cookie{Name: "access_token", Value: "whatever"})
	rec := httptest.NewRecorder()
	csrfTestHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET with cookie: got %d, want 200", rec.Code)
	}

	// Requests without the auth cookie are exempt — nothing to forge.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
	rec = httptest.NewRecorder()
	csrfTestHandler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("cookieless POST: got %d, want 200", rec.Code)
	}
}
