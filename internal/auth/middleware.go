package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vantage-erp/vantage-erp/internal/shared"
)

// Middleware wires authentication and role gates for HTTP handlers.
type Middleware struct {
	Keys   KeyStore
	Logger *slog.Logger
}

// Authenticate resolves the X-API-Key header ("key_id:secret") into an
// identity stored in the request context.
func (m Middleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-API-Key")
		keyID, secret, ok := strings.Cut(raw, ":")
		if !ok || keyID == "" {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		key, err := m.Keys.Lookup(r.Context(), keyID)
		if err != nil {
			if err != ErrInvalidCredentials && m.Logger != nil {
				m.Logger.Error("api key lookup", slog.Any("error", err))
			}
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		identity, err := Verify(key, secret)
		if err != nil {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithIdentity(r.Context(), identity)))
	})
}

// RequireRole ensures the identity carries at least one of the given roles.
func (m Middleware) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if len(roles) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, role := range roles {
				if identity.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		})
	}
}
