package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"roleshop-api/pkg/apierror"
)

// AuthConfig holds configuration for the auth middleware.
type AuthConfig struct {
	// APIKeys are accepted for every authenticated route.
	APIKeys []string

	// AdminKey additionally gates /api/v1/admin. Empty disables the
	// admin surface entirely.
	AdminKey string
}

// NewAuthMiddleware creates an authentication middleware with injected
// dependencies. The bot layer authenticates with X-API-Key (or a Bearer
// token carrying the same value); admin routes require X-Admin-Key on
// top of that.
func NewAuthMiddleware(cfg AuthConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Health check endpoints stay open for probes.
			if r.URL.Path == "/api/v1/health" || r.URL.Path == "/api/v1/ready" {
				next.ServeHTTP(w, r)
				return
			}

			apiKey := r.Header.Get("X-API-Key")
			if apiKey == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(auth, "Bearer ") {
					apiKey = strings.TrimPrefix(auth, "Bearer ")
				}
			}

			if apiKey == "" {
				writeError(w, apierror.Unauthorized("Authentication required. Use X-API-Key header."))
				return
			}
			if !isValidKey(apiKey, cfg.APIKeys) {
				writeError(w, apierror.Unauthorized("Invalid API key"))
				return
			}

			if strings.HasPrefix(r.URL.Path, "/api/v1/admin") {
				adminKey := r.Header.Get("X-Admin-Key")
				if cfg.AdminKey == "" || subtle.ConstantTimeCompare([]byte(adminKey), []byte(cfg.AdminKey)) != 1 {
					writeError(w, apierror.Forbidden("Admin access required"))
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// writeError writes an API error response.
func writeError(w http.ResponseWriter, err *apierror.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.StatusCode)
	w.Write(err.ToJSON())
}

// isValidKey checks a key against the configured set in constant time.
func isValidKey(key string, validKeys []string) bool {
	for _, valid := range validKeys {
		if subtle.ConstantTimeCompare([]byte(key), []byte(valid)) == 1 {
			return true
		}
	}
	return false
}
