package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/arecko/backend/internal/database"
)

type contextKey string

const userKey contextKey = "arecko.user"

// Authenticator resolves a bearer token to a user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*database.User, error)
}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, u *database.User) context.Context {
	return context.WithValue(ctx, userKey, u)
}

// UserFrom returns the authenticated user, or nil for anonymous requests.
func UserFrom(ctx context.Context) *database.User {
	u, _ := ctx.Value(userKey).(*database.User)
	return u
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
}

// Authenticate attaches the user of a valid bearer token to the request
// context. Requests without a token pass through anonymously; a token that
// does not validate is rejected.
func Authenticate(auth Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			u, err := auth.Authenticate(r.Context(), token)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), u)))
		})
	}
}

// RequireUser rejects anonymous requests with 401.
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if UserFrom(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r)
	}
}

// RequireBusiness rejects anyone but business accounts.
func RequireBusiness(next http.HandlerFunc) http.HandlerFunc {
	return RequireUser(func(w http.ResponseWriter, r *http.Request) {
		if !UserFrom(r.Context()).IsBusiness {
			writeError(w, http.StatusForbidden, "business account required")
			return
		}
		next(w, r)
	})
}
