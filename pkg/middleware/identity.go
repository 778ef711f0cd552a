package middleware

import (
	"context"
	"net/http"

	"keyring/pkg/sanitizer"
)

const CallerKey contextKey = "caller"

// CallerHeader carries the authenticated caller's email, injected by the
// fronting gateway. The service trusts it; authentication itself is out
// of scope.
const CallerHeader = "X-Caller-Email"

// CallerIdentity threads the calling identity into the request context
// so every operation computes per-caller state from an explicit input.
func CallerIdentity() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := sanitizer.SanitizeHolder(r.Header.Get(CallerHeader))
			if caller != "" {
				ctx := context.WithValue(r.Context(), CallerKey, caller)
				r = r.WithContext(ctx)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// CallerFrom returns the normalized caller email, or "" when the
// request carried no identity.
func CallerFrom(ctx context.Context) string {
	if v := ctx.Value(CallerKey); v != nil {
		if caller, ok := v.(string); ok {
			return caller
		}
	}
	return ""
}
