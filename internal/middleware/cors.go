package middleware

import (
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/agrirent/agrirent/internal/config"
	pkghttp "github.com/agrirent/agrirent/pkg/http"
	pkglogger "github.com/agrirent/agrirent/pkg/logger"
)

// hostingPatterns admit preview and production deployments on common static hosts
var hostingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.netlify\.app$`),
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.vercel\.app$`),
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.herokuapp\.com$`),
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.railway\.app$`),
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.render\.com$`),
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.surge\.sh$`),
	regexp.MustCompile(`^https://[A-Za-z0-9-]+(\.[A-Za-z0-9-]+)*\.github\.io$`),
}

// OriginPolicy decides which browser origins may call the API
type OriginPolicy struct {
	exact    map[string]struct{}
	patterns []*regexp.Regexp
}

// NewOriginPolicy builds the exact allow-list once from configuration
func NewOriginPolicy(urls config.URLConfig) *OriginPolicy {
	p := &OriginPolicy{
		exact:    make(map[string]struct{}),
		patterns: hostingPatterns,
	}

	add := func(origin string) {
		origin = strings.TrimRight(strings.TrimSpace(origin), "/")
		if origin != "" {
			p.exact[origin] = struct{}{}
		}
	}

	for _, u := range urls.FrontendURLs {
		add(u)
	}
	add(urls.Frontend)
	add(urls.UserFrontend)
	add(urls.ProviderFrontend)
	add(urls.Backend)
	for _, port := range urls.FrontendPorts {
		port = strings.TrimSpace(port)
		if port == "" {
			continue
		}
		add("http://localhost:" + port)
		add("http://127.0.0.1:" + port)
	}

	return p
}

// Allowed reports whether a request carrying origin may proceed. An empty origin
// means a non-browser client and is always allowed.
func (p *OriginPolicy) Allowed(origin string) bool {
	if origin == "" {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return false
}

// CORSConfig holds CORS configuration
type CORSConfig struct {
	Policy           *OriginPolicy
	AllowedMethods   []string
	AllowedHeaders   []string
	ExposedHeaders   []string
	AllowCredentials bool
	MaxAge           string
}

// DefaultCORSConfig returns the CORS configuration browsers of both frontends need
func DefaultCORSConfig(policy *OriginPolicy) *CORSConfig {
	return &CORSConfig{
		Policy:           policy,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           "3600",
	}
}

// CORS rejects disallowed origins before any handler runs and decorates allowed ones
func CORS(cfg *CORSConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	methods := strings.Join(cfg.AllowedMethods, ", ")
	headers := strings.Join(cfg.AllowedHeaders, ", ")
	exposed := strings.Join(cfg.ExposedHeaders, ", ")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			if !cfg.Policy.Allowed(origin) {
				logger.Warn("origin blocked", slog.String("origin", origin), slog.String("path", pkglogger.SanitizePath(r.URL.Path)))
				pkghttp.WriteForbiddenOrigin(w)
				return
			}

			if origin != "" {
				h := w.Header()
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Expose-Headers", exposed)
				if cfg.AllowCredentials {
					h.Set("Access-Control-Allow-Credentials", "true")
				}
				h.Set("Access-Control-Max-Age", cfg.MaxAge)
			}

			// Preflight
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusOK)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
