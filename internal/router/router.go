package router

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/segmentio/ksuid"
	"go.uber.org/zap"

	"github.com/ovaphlow/worknest/service-core-go/internal/access"
	"github.com/ovaphlow/worknest/service-core-go/internal/auth"
	"github.com/ovaphlow/worknest/service-core-go/internal/httpx"
	"github.com/ovaphlow/worknest/service-core-go/internal/invite"
	"github.com/ovaphlow/worknest/service-core-go/internal/organization"
	"github.com/ovaphlow/worknest/service-core-go/internal/setting"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// MaxBodyBytes caps request bodies.
const MaxBodyBytes = 1 << 20

// Deps are the services the routes are built from.
type Deps struct {
	Auth          *auth.Service
	Users         *user.Service
	Organizations *organization.Service
	Invites       *invite.Service
	Limiter       *auth.RateLimiter
	// Origins allowed by CORS; credentials are always allowed.
	Origins []string
	Dev     bool
}

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

type ctxKeyRequestID struct{}

// RequestID returns the id RequestIDMiddleware assigned to the request.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID{}).(string)
	return id
}

// RequestIDMiddleware keeps an incoming X-Request-ID or assigns a KSUID, and
// echoes it on the response.
func RequestIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rid := r.Header.Get("X-Request-ID")
			if rid == "" {
				rid = ksuid.New().String()
			}
			w.Header().Set("X-Request-ID", rid)
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyRequestID{}, rid)))
		})
	}
}

// LoggingMiddleware returns a middleware that logs requests at debug level using the provided sugared logger.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"request_id", RequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware returns a middleware that sets common HTTP security headers.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}
			// HSTS only over TLS.
			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BodyLimitMiddleware caps every request body at n bytes.
func BodyLimitMiddleware(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, n)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// chain applies mws so that the first one runs outermost.
func chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// RegisterRoutes mounts every /api route on the standard library's
// http.ServeMux and wraps it in the common middleware.
func RegisterRoutes(logger *zap.SugaredLogger, d Deps) http.Handler {
	mux := http.NewServeMux()
	rs := httpx.Responder{Logger: logger, Dev: d.Dev}
	if d.Limiter == nil {
		d.Limiter = auth.NewRateLimiter()
	}

	authn := auth.RequireAuth(d.Auth, rs)
	roles := func(r ...entity.Role) func(http.Handler) http.Handler { return auth.RequireRole(rs, r...) }
	superadmin := roles(entity.RoleSuperadmin)
	admin := roles(entity.RoleSuperadmin, entity.RoleAdmin)
	hr := roles(entity.RoleSuperadmin, entity.RoleAdmin, entity.RoleHR)

	protect := func(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
		return chain(h, append([]func(http.Handler) http.Handler{authn}, mws...)...)
	}

	mux.HandleFunc("GET /api/health", func(w http.ResponseWriter, r *http.Request) {
		httpx.OK(w, http.StatusOK, "ok", map[string]string{"status": "healthy"})
	})

	// auth
	ah := auth.NewHandler(d.Auth, rs)
	mux.HandleFunc("POST /api/auth/register", ah.Register)
	mux.Handle("POST /api/auth/login", chain(http.HandlerFunc(ah.Login), auth.RateLimit(d.Limiter, 10, 15*time.Minute)))
	mux.HandleFunc("POST /api/auth/logout", ah.Logout)
	mux.Handle("POST /api/auth/forgot-password", chain(http.HandlerFunc(ah.ForgotPassword), auth.RateLimit(d.Limiter, 5, time.Hour)))
	mux.HandleFunc("POST /api/auth/reset-password/{token}", ah.ResetPassword)
	mux.Handle("GET /api/auth/me", protect(http.HandlerFunc(ah.Me)))

	// users
	uh := user.NewHandler(d.Users, rs, auth.Actor)
	mux.Handle("GET /api/users/profile/me", protect(http.HandlerFunc(uh.Profile)))
	mux.Handle("PATCH /api/users/profile/me", protect(http.HandlerFunc(uh.UpdateProfile)))
	mux.Handle("POST /api/users", protect(http.HandlerFunc(uh.Create), hr))
	mux.Handle("GET /api/users", protect(http.HandlerFunc(uh.List), admin))
	mux.Handle("GET /api/users/{id}", protect(http.HandlerFunc(uh.Get), hr))
	mux.Handle("PUT /api/users/{id}", protect(http.HandlerFunc(uh.Update), hr))
	mux.Handle("PATCH /api/users/{id}/role", protect(http.HandlerFunc(uh.UpdateRole), admin))
	mux.Handle("PATCH /api/users/{id}/status", protect(http.HandlerFunc(uh.UpdateStatus), hr))
	mux.Handle("DELETE /api/users/{id}", protect(http.HandlerFunc(uh.Delete), hr))

	// organizations
	oh := organization.NewHandler(d.Organizations, rs, auth.Actor)
	ih := invite.NewHandler(d.Invites, rs, auth.Actor)
	byID := access.FromPath("id")
	mux.Handle("POST /api/organizations", protect(http.HandlerFunc(oh.Create), superadmin))
	mux.Handle("GET /api/organizations", protect(http.HandlerFunc(oh.List), superadmin))
	mux.Handle("GET /api/organizations/deleted", protect(http.HandlerFunc(oh.ListDeleted), superadmin))
	mux.Handle("GET /api/organizations/{id}", protect(oh.Get(byID)))
	mux.Handle("PATCH /api/organizations/{id}", protect(oh.Update(byID), admin))
	mux.Handle("DELETE /api/organizations/{id}", protect(http.HandlerFunc(oh.Delete), admin))
	mux.Handle("GET /api/organizations/{id}/members", protect(oh.Members(byID)))
	mux.Handle("PATCH /api/organizations/{id}/member/{userId}/role", protect(http.HandlerFunc(oh.UpdateMemberRole), admin))
	mux.Handle("POST /api/organizations/{id}/invite", protect(ih.Create(byID), admin))
	mux.Handle("GET /api/organizations/{id}/invites", protect(ih.ListPending(byID), admin))

	// organization settings
	sh := setting.NewHandler(oh, ih)
	mux.Handle("GET /api/organization-settings", protect(sh.Get(), hr))
	mux.Handle("PATCH /api/organization-settings", protect(sh.Update(), admin))
	mux.Handle("GET /api/organization-settings/members", protect(sh.Members(), hr))
	mux.Handle("POST /api/organization-settings/invite", protect(sh.Invite(), hr))
	mux.Handle("GET /api/organization-settings/invites", protect(sh.Invites(), hr))

	// invites
	mux.HandleFunc("GET /api/invites/validate/{token}", ih.Validate)
	mux.HandleFunc("POST /api/invites/accept/{token}", ih.Accept)
	mux.Handle("GET /api/invites/organization/{organizationId}", protect(ih.ListPending(access.FromPath("organizationId")), admin))
	mux.Handle("DELETE /api/invites/{inviteId}", protect(http.HandlerFunc(ih.Cancel), admin))

	return chain(mux,
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
		cors.Handler(cors.Options{
			AllowedOrigins:   d.Origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}),
		SecurityHeadersMiddleware(),
		BodyLimitMiddleware(MaxBodyBytes),
	)
}
