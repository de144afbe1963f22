package auth

import (
	"net/http"
	"time"

	"github.com/ovaphlow/worknest/service-core-go/internal/httpx"
)

// Handler exposes the /api/auth endpoints.
type Handler struct {
	svc *Service
	rs  httpx.Responder
	// SecureCookie marks the session cookie Secure; off in development.
	SecureCookie bool
}

func NewHandler(svc *Service, rs httpx.Responder) *Handler {
	return &Handler{svc: svc, rs: rs, SecureCookie: !rs.Dev}
}

type sessionBody struct {
	User  any    `json:"user"`
	Token string `json:"token"`
}

func (h *Handler) setCookie(w http.ResponseWriter, s *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    s.Token,
		Path:     "/",
		Expires:  s.ExpiresAt,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var in RegisterInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	s, err := h.svc.Register(r.Context(), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.setCookie(w, s)
	httpx.OK(w, http.StatusCreated, "User registered successfully", sessionBody{User: s.User, Token: s.Token})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var in LoginInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	s, err := h.svc.Login(r.Context(), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.setCookie(w, s)
	httpx.OK(w, http.StatusOK, "Login successful", sessionBody{User: s.User, Token: s.Token})
}

// Logout clears the cookie. It is public so an expired session can still log out.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "none",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.SecureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	httpx.OK(w, http.StatusOK, "Logged out successfully", nil)
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, "", map[string]any{"user": Actor(r.Context())})
}

func (h *Handler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Email string `json:"email"`
	}
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	msg, err := h.svc.ForgotPassword(r.Context(), in.Email)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, msg, nil)
}

func (h *Handler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Password string `json:"password"`
	}
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	s, err := h.svc.ResetPassword(r.Context(), r.PathValue("token"), in.Password)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	h.setCookie(w, s)
	httpx.OK(w, http.StatusOK, "Password reset successful", sessionBody{User: s.User, Token: s.Token})
}
