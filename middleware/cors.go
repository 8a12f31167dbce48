package middleware

import (
	"net/http"
	"strings"
)

// Headers the browser client may read from proxy responses
var exposedHeaders = []string{
	"X-RateLimit-Remaining",
	"X-RateLimit-Limit",
	"X-RateLimit-Reset",
	RequestIDHeader,
}

// ProxyCORS applies the proxy's fixed CORS policy. Unlisted origins get the
// first allowed origin back, which browsers then reject.
type ProxyCORS struct {
	origins []string
	allowed map[string]struct{}
}

// NewProxyCORS creates the policy for the given allow-list. The list must not be empty.
func NewProxyCORS(origins []string) *ProxyCORS {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		allowed[o] = struct{}{}
	}
	return &ProxyCORS{
		origins: append([]string(nil), origins...),
		allowed: allowed,
	}
}

// AllowOrigin returns the Access-Control-Allow-Origin value for origin
func (c *ProxyCORS) AllowOrigin(origin string) string {
	if _, ok := c.allowed[origin]; ok {
		return origin
	}
	if len(c.origins) == 0 {
		return ""
	}
	return c.origins[0]
}

// SetHeaders writes the CORS response headers for r
func (c *ProxyCORS) SetHeaders(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", c.AllowOrigin(r.Header.Get("Origin")))
	h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, x-user-id")
	h.Set("Access-Control-Expose-Headers", strings.Join(exposedHeaders, ", "))
	h.Add("Vary", "Origin")
}

// Preflight answers every OPTIONS request with 204 and the CORS headers,
// whatever the path
func (c *ProxyCORS) Preflight(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			c.SetHeaders(w, r)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler adds the CORS headers to every response from next
func (c *ProxyCORS) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c.SetHeaders(w, r)
		next.ServeHTTP(w, r)
	})
}
