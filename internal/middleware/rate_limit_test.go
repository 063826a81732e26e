package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/models"
)

func authedRequest(accountID string) *http.Request {
	claims := &models.TokenClaims{AccountID: accountID, Type: "access"}
	req := httptest.NewRequest("POST", "/2fa", nil)
	return req.WithContext(context.WithValue(req.Context(), auth.AccountContextKey, claims))
}

// TestRateLimitByAccount_EnforcesLimit verifies the per-account bucket fills up
func TestRateLimitByAccount_EnforcesLimit(t *testing.T) {
	middleware := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 10})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 10; i++ {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, authedRequest("account-limit-test"))
		if recorder.Code != http.StatusOK {
			t.Errorf("request %d failed with status %d, expected 200", i+1, recorder.Code)
		}
	}

	// 11th request should be rate limited
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest("account-limit-test"))

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected status %d (too many requests), got %d", http.StatusTooManyRequests, recorder.Code)
	}
}

// TestRateLimitByAccount_IsolatesAccountBuckets verifies separate limits per account
func TestRateLimitByAccount_IsolatesAccountBuckets(t *testing.T) {
	middleware := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 5})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	// Account A fills its bucket
	for i := 0; i < 5; i++ {
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, authedRequest("account-a-isolation"))
		if recorder.Code != http.StatusOK {
			t.Errorf("account A request %d failed", i+1)
		}
	}

	// Account B still has a fresh bucket
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, authedRequest("account-b-isolation"))

	if recorder.Code != http.StatusOK {
		t.Errorf("account B should have independent rate limit, got status %d", recorder.Code)
	}
}

// TestRateLimitByAccount_SameAccountAcrossIPs verifies guessing spread over
// many source addresses still lands in one bucket
func TestRateLimitByAccount_SameAccountAcrossIPs(t *testing.T) {
	middleware := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 3})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	addrs := []string{"10.0.0.1:1234", "10.0.0.2:1234", "10.0.0.3:1234"}
	for i, addr := range addrs {
		req := authedRequest("account-multi-ip")
		req.RemoteAddr = addr
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, req)
		if recorder.Code != http.StatusOK {
			t.Errorf("request %d from %s failed", i+1, addr)
		}
	}

	req := authedRequest("account-multi-ip")
	req.RemoteAddr = "10.0.0.4:1234"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 for fourth request regardless of source IP, got %d", recorder.Code)
	}
}

// TestRateLimitByAccount_FallbackToIPWhenNoAccount verifies unauthenticated
// requests fall back to IP-based limiting
func TestRateLimitByAccount_FallbackToIPWhenNoAccount(t *testing.T) {
	middleware := RateLimitByAccount(RateLimitConfig{RequestsPerMinute: 100})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/2fa", nil)
	req.RemoteAddr = "192.168.1.1:8080"
	recorder := httptest.NewRecorder()

	handler.ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
}

// TestRateLimitByIP_Returns429Format verifies the HTTP 429 response format
func TestRateLimitByIP_Returns429Format(t *testing.T) {
	middleware := RateLimitByIP(RateLimitConfig{RequestsPerMinute: 1})

	handler := middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("POST", "/2fa", nil)
	req.RemoteAddr = "192.168.2.1:8080"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusOK {
		t.Errorf("first request failed with status %d", recorder.Code)
	}

	req = httptest.NewRequest("POST", "/2fa", nil)
	req.RemoteAddr = "192.168.2.1:8080"
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", recorder.Code)
	}

	contentType := recorder.Header().Get("Content-Type")
	if contentType != "application/json" {
		t.Errorf("expected Content-Type application/json, got %s", contentType)
	}

	body := recorder.Body.String()
	if body != `{"error":"rate_limit_exceeded","message":"Too many requests"}`+"\n" {
		t.Errorf("unexpected response body: %s", body)
	}
}
