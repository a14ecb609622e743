// pkg/middleware/authenticate.go
package middleware

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"dealergate/pkg/identity"
)

type ctxIdentityKey struct{}

// Authenticate resolves the caller from a bearer token or the session
// cookie. Requests without a valid token continue anonymously; the route
// guards decide what anonymous callers may see.
func Authenticate(v identity.Verifier, cookieName string, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/healthz", "/metrics":
				next.ServeHTTP(w, r)
				return
			}
			raw := TokenFrom(r, cookieName)
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			id, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.Debugw("ignoring invalid session token", "err", err, "reqid", RequestIDFrom(r.Context()))
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), &id)))
		})
	}
}

// TokenFrom prefers the Authorization header over the cookie.
func TokenFrom(r *http.Request, cookieName string) string {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[len("Bearer "):])
	}
	if cookieName == "" {
		return ""
	}
	if c, err := r.Cookie(cookieName); err == nil {
		return c.Value
	}
	return ""
}

func WithIdentity(ctx context.Context, id *identity.Identity) context.Context {
	return context.WithValue(ctx, ctxIdentityKey{}, id)
}

// IdentityFrom returns the authenticated caller or nil.
func IdentityFrom(ctx context.Context) *identity.Identity {
	id, _ := ctx.Value(ctxIdentityKey{}).(*identity.Identity)
	return id
}
