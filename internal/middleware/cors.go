package middleware

import (
	"net/http"
	"strconv"
	"strings"
)

// CORS allows browser clients from origins to call the API. Entries may be
// exact origins or "*.example.com" subdomain patterns. With no origins every
// cross-origin request goes without CORS headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	exact := make(map[string]struct{}, len(origins))
	var suffixes []string
	for _, o := range origins {
		o = strings.ToLower(strings.TrimSpace(o))
		if strings.HasPrefix(o, "*.") {
			suffixes = append(suffixes, o[1:])
			continue
		}
		exact[o] = struct{}{}
	}

	allowed := func(origin string) bool {
		origin = strings.ToLower(origin)
		if _, ok := exact[origin]; ok {
			return true
		}
		host := origin
		if i := strings.Index(host, "://"); i >= 0 {
			host = host[i+3:]
		}
		for _, s := range suffixes {
			if strings.HasSuffix(host, s) && len(host) > len(s) {
				return true
			}
		}
		return false
	}

	const (
		methods = "GET, POST, OPTIONS"
		headers = "Content-Type, Accept, X-Request-ID"
		exposed = "X-Request-ID, X-RateLimit-Limit, X-RateLimit-Remaining, X-RateLimit-Reset"
	)
	maxAge := strconv.Itoa(86400)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !allowed(origin) {
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Add("Vary", "Origin")
			h.Set("Access-Control-Expose-Headers", exposed)

			if r.Method == http.MethodOptions {
				h.Set("Access-Control-Allow-Methods", methods)
				h.Set("Access-Control-Allow-Headers", headers)
				h.Set("Access-Control-Max-Age", maxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
