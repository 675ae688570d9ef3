package auth

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/carbonregistry/evidence-registry/internal/errs"
)

// contextKey is a private type for context keys to avoid collisions
// (mirrors the teacher's internal/middleware/auth.go pattern).
type contextKey string

const authContextKey contextKey = "auth_context"

// WithAuthContext returns a context carrying ac.
func WithAuthContext(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, authContextKey, ac)
}

// FromContext extracts the AuthContext injected by Middleware.
func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(authContextKey).(AuthContext)
	return ac, ok
}

// Middleware authenticates a request via HMAC (x-app-key/x-app-sig) or
// bearer JWT, in that order, and injects the resulting AuthContext into
// the request context (spec.md §4.4). It buffers the request body so the
// canonical-body HMAC signature can be verified without consuming the
// body the handler still needs to read.
func Middleware(hmacVerifier *HMACVerifier, jwtVerifier *JWTVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if appKey := r.Header.Get("x-app-key"); appKey != "" {
				sig := r.Header.Get("x-app-sig")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					writeAuthError(w, errs.New(errs.KindValidation, "unreadable request body"))
					return
				}
				r.Body = io.NopCloser(strings.NewReader(string(body)))

				ac, err := hmacVerifier.Verify(appKey, sig, body)
				if err != nil {
					writeAuthError(w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				tokenStr := strings.TrimPrefix(authHeader, "Bearer ")
				ac, err := jwtVerifier.Verify(tokenStr)
				if err != nil {
					writeAuthError(w, err)
					return
				}
				next.ServeHTTP(w, r.WithContext(WithAuthContext(r.Context(), ac)))
				return
			}

			writeAuthError(w, errs.New(errs.KindAuthentication, "missing credentials"))
		})
	}
}

// RequireAdmin returns middleware enforcing spec.md §4.4's admin gate:
// appKey == "registry". Must run after Middleware.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := FromContext(r.Context())
		if !ok || !ac.IsAdmin() {
			writeAuthError(w, errs.New(errs.KindAuthorization, "admin access required"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// writeAuthError writes a minimal JSON error body without importing the
// httpapi package (would create an import cycle); httpapi's own
// writeAPIError covers the same error kinds for handler-level failures.
func writeAuthError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := string(errs.KindAuthentication)
	if e, ok := errs.As(err); ok {
		code = string(e.Kind)
		if e.Kind == errs.KindAuthorization {
			status = http.StatusForbidden
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":"` + err.Error() + `","code":"` + code + `"}`))
}
