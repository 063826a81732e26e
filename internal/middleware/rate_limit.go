package middleware

import (
	"net/http"
	"time"

	"github.com/latchkey-auth/latchkey/internal/auth"
	pkghttp "github.com/latchkey-auth/latchkey/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultTwoFactorRateLimit returns the rate limit for mutating two-factor
// endpoints (10 requests per minute). Generous enough for a user fumbling
// an authenticator, tight enough to make online code guessing useless.
func DefaultTwoFactorRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// DefaultServiceRateLimit returns the coarse per-IP limit applied to the
// whole service (120 requests per minute). It caps token probing before
// requests reach authentication.
func DefaultServiceRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 120,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyByRealIP(),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

// RateLimitByAccount creates a middleware that rate limits by authenticated
// account, so code guessing spread across many source IPs still counts
// against one bucket. Falls back to client IP when no account is in context.
func RateLimitByAccount(config RateLimitConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			if claims := auth.GetAccountFromContext(r); claims != nil {
				return "account:" + claims.AccountID, nil
			}
			return httprate.KeyByRealIP(r)
		}),
		httprate.WithLimitHandler(rateLimitExceeded),
	)
}

func rateLimitExceeded(w http.ResponseWriter, r *http.Request) {
	pkghttp.WriteTooManyRequests(w, "Too many requests")
}
