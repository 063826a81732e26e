package routes

import (
	"github.com/latchkey-auth/latchkey/internal/auth"
	"github.com/latchkey-auth/latchkey/internal/handlers"
	"github.com/latchkey-auth/latchkey/internal/middleware"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all application routes. Every two-factor route
// requires a valid access token; the mutating ones are additionally rate
// limited per account so code guessing cannot be spread across IPs.
func RegisterRoutes(
	router chi.Router,
	twoFactorHandler *handlers.TwoFactorHandler,
	tokenManager *auth.TokenManager,
) {
	rateLimitConfig := middleware.DefaultTwoFactorRateLimit()

	// Protected routes - authentication required
	router.Group(func(r chi.Router) {
		r.Use(auth.AuthMiddleware(tokenManager))

		r.Get("/2fa", twoFactorHandler.Status)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimitByAccount(rateLimitConfig))
			r.Post("/2fa/setup", twoFactorHandler.BeginEnrollment)
			r.Post("/2fa", twoFactorHandler.ConfirmEnrollment)
			r.Delete("/2fa", twoFactorHandler.Disable)
			r.Post("/2fa/verify", twoFactorHandler.VerifyCode)
		})
	})
}
