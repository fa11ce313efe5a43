package routes

import (
	"github.com/agrirent/agrirent/internal/auth"
	"github.com/agrirent/agrirent/internal/handlers"
	"github.com/agrirent/agrirent/internal/middleware"
	"github.com/agrirent/agrirent/internal/models"
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all /api routes
func RegisterRoutes(
	router chi.Router,
	authHandler *handlers.AuthHandler,
	accountHandler *handlers.AccountHandler,
	tokenManager *auth.TokenManager,
	rateLimitConfig middleware.RateLimitConfig,
) {
	limited := middleware.RateLimitByIP(rateLimitConfig)

	router.Route("/api/auth", func(r chi.Router) {
		// Password reset routes share the prefix with {variant} and must win over it
		r.Route("/password", func(r chi.Router) {
			r.With(limited).Post("/forgot", authHandler.ForgotPassword)
			r.With(limited).Post("/reset", authHandler.ResetPassword)
			r.Get("/reset/verify/{token}", authHandler.VerifyResetToken)
		})

		r.With(limited).Post("/verify-password", authHandler.VerifyPassword)

		r.Route("/{variant}", func(r chi.Router) {
			r.With(limited).Post("/signup", authHandler.Signup)
			r.With(limited).Post("/signin", authHandler.Signin)
			r.Get("/activate/{token}", authHandler.Activate)
		})
	})

	// Session-authenticated profile reads
	router.Group(func(r chi.Router) {
		r.Use(auth.SessionMiddleware(tokenManager))

		r.With(auth.RequireVariant(models.VariantUser)).Get("/api/users/me", accountHandler.Me(models.VariantUser))
		r.With(auth.RequireVariant(models.VariantProvider)).Get("/api/providers/me", accountHandler.Me(models.VariantProvider))
	})
}
