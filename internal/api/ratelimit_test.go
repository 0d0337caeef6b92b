// ABOUTME: Tests for per-IP in-memory rate limiter and credentialRateLimit middleware.
// ABOUTME: Uses package api (not api_test) to access unexported Server fields.
package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestIPRateLimiter_Allow(t *testing.T) {
	t.Parallel()
	rl := newIPRateLimiter(rate.Limit(100), 3, time.Minute)
	for i := 1; i <= 3; i++ {
		if !rl.Allow("127.0.0.1") {
			t.Errorf("request %d: should be allowed (within burst of 3)", i)
		}
	}
	if rl.Allow("127.0.0.1") {
		t.Error("4th request: should be denied (burst of 3 exhausted)")
	}
}

func TestIPRateLimiter_SeparateBucketsPerIP(t *testing.T) {
	t.Parallel()
	rl := newIPRateLimiter(rate.Limit(1), 1, time.Minute)
	if !rl.Allow("1.2.3.4") {
		t.Error("1.2.3.4 first request should be allowed")
	}
	if rl.Allow("1.2.3.4") {
		t.Error("1.2.3.4 second request should be denied")
	}
	if !rl.Allow("5.6.7.8") {
		t.Error("5.6.7.8 first request should be allowed (independent bucket)")
	}
}

func TestCredentialRateLimit_Returns429AfterBurst(t *testing.T) {
	t.Parallel()
	srv := &Server{
		rateLimiter: newIPRateLimiter(rate.Limit(100), 2, time.Minute),
	}
	handler := srv.credentialRateLimit()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	for i := 1; i <= 3; i++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+"/api/v1/auth/login", nil)
		if err != nil {
			t.Fatalf("request %d: new request: %v", i, err)
		}
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		wantStatus := http.StatusOK
		if i > 2 {
			wantStatus = http.StatusTooManyRequests
		}
		if resp.StatusCode != wantStatus {
			t.Errorf("request %d: got status %d, want %d", i, resp.StatusCode, wantStatus)
		}
		if wantStatus == http.StatusTooManyRequests {
			if ra := resp.Header.Get("Retry-After"); ra == "" {
				t.Error("rate-limited response missing Retry-After header")
			}
		}
	}
}

func TestCredentialRateLimit_NonCredentialPathsPassThrough(t *testing.T) {
	t.Parallel()
	srv := &Server{
		rateLimiter: newIPRateLimiter(rate.Limit(1), 1, time.Minute),
	}
	handler := srv.credentialRateLimit()(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	ctx := context.Background()
	do := func(path string) int {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ts.URL+path, nil)
		if err != nil {
			t.Fatalf("new request %s: %v", path, err)
		}
		resp, err := ts.Client().Do(req)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	// Exhaust the burst of 1 on a credential path.
	if got := do("/api/v1/auth/login"); got != http.StatusOK {
		t.Fatalf("first login: got status %d, want 200", got)
	}
	if got := do("/api/v1/auth/login"); got != http.StatusTooManyRequests {
		t.Fatalf("second login: got status %d, want 429", got)
	}

	// Non-credential paths are never throttled, even with the bucket empty.
	for i := 1; i <= 3; i++ {
		if got := do("/api/v1/orgs"); got != http.StatusOK {
			t.Errorf("orgs request %d: got status %d, want 200", i, got)
		}
	}
}
