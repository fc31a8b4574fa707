package core

import (
	"net/http"
	"strconv"
	"strings"
)

// CORSMiddleware handles preflight requests and adds CORS headers based on
// the provided configuration. The default configuration allows every origin,
// which browser-based upload forms rely on.
//
// Supported origin patterns:
//   - "*" for all origins
//   - exact origins ("https://docs.example.com")
//   - wildcard subdomains ("https://*.example.com")
//   - wildcard ports ("http://localhost:*")
func CORSMiddleware(config *CORSConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if config == nil || !config.Enabled {
				next.ServeHTTP(w, r)
				return
			}

			applyCORSHeaders(w, r, config)

			// Preflight requests stop here
			if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func applyCORSHeaders(w http.ResponseWriter, r *http.Request, config *CORSConfig) {
	origin := r.Header.Get("Origin")
	if !isOriginAllowed(origin, config.AllowedOrigins) {
		return
	}

	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")

	if config.AllowCredentials {
		h.Set("Access-Control-Allow-Credentials", "true")
	}
	if len(config.AllowedMethods) > 0 {
		h.Set("Access-Control-Allow-Methods", strings.Join(config.AllowedMethods, ", "))
	}
	if len(config.AllowedHeaders) > 0 {
		h.Set("Access-Control-Allow-Headers", strings.Join(config.AllowedHeaders, ", "))
	}
	if len(config.ExposedHeaders) > 0 {
		h.Set("Access-Control-Expose-Headers", strings.Join(config.ExposedHeaders, ", "))
	}
	if config.MaxAge > 0 {
		h.Set("Access-Control-Max-Age", strconv.Itoa(config.MaxAge))
	}
}

// isOriginAllowed reports whether origin matches one of the allowed patterns.
// An empty origin is a same-origin request and never needs CORS headers.
func isOriginAllowed(origin string, allowedOrigins []string) bool {
	if origin == "" {
		return false
	}

	for _, allowed := range allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}

		// Wildcard subdomain, e.g. https://*.example.com
		if idx := strings.Index(allowed, "*."); idx >= 0 {
			prefix, suffix := allowed[:idx], allowed[idx+1:] // suffix keeps the leading dot
			if strings.HasPrefix(origin, prefix) && strings.HasSuffix(origin, suffix) {
				sub := strings.TrimSuffix(strings.TrimPrefix(origin, prefix), suffix)
				if sub != "" && !strings.Contains(sub, "/") {
					return true
				}
			}
			continue
		}

		// Wildcard port, e.g. http://localhost:*
		if base, ok := strings.CutSuffix(allowed, ":*"); ok {
			if rest, found := strings.CutPrefix(origin, base+":"); found && rest != "" {
				if _, err := strconv.Atoi(rest); err == nil {
					return true
				}
			}
		}
	}

	return false
}
