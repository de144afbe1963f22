package auth

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	"github.com/ovaphlow/worknest/service-core-go/internal/httpx"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// CookieName is the cookie carrying the session token.
const CookieName = "token"

type ctxKeyActor struct{}

// WithActor attaches the authenticated user to ctx.
func WithActor(ctx context.Context, u *entity.User) context.Context {
	return context.WithValue(ctx, ctxKeyActor{}, u)
}

// Actor returns the authenticated user, or nil outside RequireAuth.
func Actor(ctx context.Context) *entity.User {
	u, _ := ctx.Value(ctxKeyActor{}).(*entity.User)
	return u
}

// Authenticator resolves a raw token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (*entity.User, error)
}

// bearer prefers the Authorization header and falls back to the cookie.
func bearer(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	}
	c, err := r.Cookie(CookieName)
	if err != nil {
		return ""
	}
	switch c.Value {
	case "", "none", "null", "undefined":
		return ""
	}
	return c.Value
}

// RequireAuth rejects requests without a valid token for a live, active user
// and puts that user in the request context.
func RequireAuth(a Authenticator, rs httpx.Responder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearer(r)
			if raw == "" {
				rs.Error(w, r, apperr.NotAuthenticated("Access denied. No token provided."))
				return
			}
			u, err := a.Authenticate(r.Context(), raw)
			if err != nil {
				rs.Error(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), u)))
		})
	}
}

// RequireRole lets through only actors holding one of roles.
func RequireRole(rs httpx.Responder, roles ...entity.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := Actor(r.Context())
			if u == nil {
				rs.Error(w, r, apperr.NotAuthenticated("Authentication required."))
				return
			}
			if !slices.Contains(roles, u.Role) {
				rs.Error(w, r, apperr.NotAuthorized("Access denied. "+string(u.Role)+" role is not authorized to access this resource."))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit allows max requests per client IP within window on the wrapped
// route.
func RateLimit(rl *RateLimiter, max int, window time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.URL.Path + "|" + ClientIP(r)
			if err := rl.CheckLimit(key, max, window); err != nil {
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				httpx.WriteJSON(w, http.StatusTooManyRequests, httpx.Envelope{
					Success: false,
					Message: "Too many requests, please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
