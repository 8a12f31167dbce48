package middleware

import (
	"net/http"
	"strings"
	"unicode/utf8"
)

const (
	// UserIDHeader is the client-chosen caller identity
	UserIDHeader = "X-User-Id"

	// UnknownCaller is shared by every request without identity headers
	UnknownCaller = "unknown"

	// MaxCallerIDLength matches the rate_limit_entries key column
	MaxCallerIDLength = 512
)

// ResolveCallerID picks the rate-limit key for a request: X-User-Id when
// present, else the first X-Forwarded-For entry, else "unknown". Neither
// header is authenticated.
func ResolveCallerID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(UserIDHeader)); id != "" {
		return sanitizeCallerID(id)
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return sanitizeCallerID(first)
		}
	}
	return UnknownCaller
}

// sanitizeCallerID drops invalid UTF-8 and truncates on a rune boundary
func sanitizeCallerID(id string) string {
	id = strings.ToValidUTF8(id, "")
	if len(id) <= MaxCallerIDLength {
		return id
	}
	cut := MaxCallerIDLength
	for cut > 0 && !utf8.RuneStart(id[cut]) {
		cut--
	}
	return id[:cut]
}

// CallerID stores the resolved caller identity in the request context
func CallerID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := WithCallerID(r.Context(), ResolveCallerID(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
