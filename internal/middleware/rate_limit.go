package middleware

import (
	"net/http"
	"time"

	pkghttp "github.com/agrirent/agrirent/pkg/http"
	"github.com/go-chi/httprate"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
	IPs               *pkghttp.ClientIPResolver
}

// DefaultAuthRateLimit returns the limit applied to credential endpoints
func DefaultAuthRateLimit(ips *pkghttp.ClientIPResolver) RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		IPs:               ips,
	}
}

// RateLimitByIP limits requests per client address. Forwarding headers count only
// when the peer is a trusted proxy.
func RateLimitByIP(config RateLimitConfig) func(next http.Handler) http.Handler {
	limit := config.RequestsPerMinute
	if limit <= 0 {
		limit = DefaultAuthRateLimit(nil).RequestsPerMinute
	}

	return httprate.Limit(
		limit,
		time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return config.IPs.ClientIP(r), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			pkghttp.WriteTooManyRequests(w, "Too many requests, please try again later")
		}),
	)
}
