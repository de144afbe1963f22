package user

import (
	"context"
	"net/http"

	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	"github.com/ovaphlow/worknest/service-core-go/internal/httpx"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// Handler exposes the /api/users endpoints.
type Handler struct {
	svc   *Service
	rs    httpx.Responder
	actor func(ctx context.Context) *entity.User
}

// NewHandler wires the service. actor reads the authenticated user from the
// request context.
func NewHandler(svc *Service, rs httpx.Responder, actor func(ctx context.Context) *entity.User) *Handler {
	return &Handler{svc: svc, rs: rs, actor: actor}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.Create(r.Context(), h.actor(r.Context()), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "User created successfully", u)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.svc.List(r.Context(), h.actor(r.Context()))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.List(w, users, len(users))
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Get(r.Context(), h.actor(r.Context()), r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", u)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.Update(r.Context(), h.actor(r.Context()), r.PathValue("id"), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "User updated successfully", u)
}

func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Role entity.Role `json:"role"`
	}
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.UpdateRole(r.Context(), h.actor(r.Context()), r.PathValue("id"), in.Role)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "User role updated successfully", u)
}

func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var in struct {
		IsActive *bool `json:"isActive"`
	}
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	if in.IsActive == nil {
		h.rs.Error(w, r, apperr.Field("isActive", "isActive is required"))
		return
	}
	u, err := h.svc.UpdateStatus(r.Context(), h.actor(r.Context()), r.PathValue("id"), *in.IsActive)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	msg := "User deactivated successfully"
	if u.IsActive {
		msg = "User activated successfully"
	}
	httpx.OK(w, http.StatusOK, msg, u)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.Delete(r.Context(), h.actor(r.Context()), r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "User deleted successfully", res)
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Profile(r.Context(), h.actor(r.Context()))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", u)
}

func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var in ProfileInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.UpdateProfile(r.Context(), h.actor(r.Context()), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Profile updated successfully", u)
}
