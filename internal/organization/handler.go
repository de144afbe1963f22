package organization

import (
	"context"
	"net/http"

	"github.com/ovaphlow/worknest/service-core-go/internal/access"
	"github.com/ovaphlow/worknest/service-core-go/internal/httpx"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// Handler exposes organization endpoints. Routes that act on "an
// organization" take an access.TargetFunc so the same handler serves both
// /organizations/{id} and the own-organization settings routes.
type Handler struct {
	svc   *Service
	rs    httpx.Responder
	actor func(ctx context.Context) *userentity.User
}

func NewHandler(svc *Service, rs httpx.Responder, actor func(ctx context.Context) *userentity.User) *Handler {
	return &Handler{svc: svc, rs: rs, actor: actor}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	org, err := h.svc.Create(r.Context(), h.actor(r.Context()), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Organization created successfully", org)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.svc.List(r.Context(), h.actor(r.Context()))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.List(w, orgs, len(orgs))
}

func (h *Handler) ListDeleted(w http.ResponseWriter, r *http.Request) {
	orgs, err := h.svc.ListDeleted(r.Context(), h.actor(r.Context()))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.List(w, orgs, len(orgs))
}

func (h *Handler) Get(target access.TargetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, err := h.svc.Get(r.Context(), h.actor(r.Context()), target(r))
		if err != nil {
			h.rs.Error(w, r, err)
			return
		}
		httpx.OK(w, http.StatusOK, "", org)
	}
}

func (h *Handler) Update(target access.TargetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in UpdateInput
		if err := httpx.Decode(r, &in); err != nil {
			h.rs.Error(w, r, err)
			return
		}
		org, err := h.svc.Update(r.Context(), h.actor(r.Context()), target(r), in)
		if err != nil {
			h.rs.Error(w, r, err)
			return
		}
		httpx.OK(w, http.StatusOK, "Organization updated successfully", org)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.Delete(r.Context(), h.actor(r.Context()), r.PathValue("id"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Organization deleted successfully", map[string]int64{"usersDeleted": n})
}

func (h *Handler) Members(target access.TargetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := h.svc.Members(r.Context(), h.actor(r.Context()), target(r))
		if err != nil {
			h.rs.Error(w, r, err)
			return
		}
		httpx.OK(w, http.StatusOK, "", m)
	}
}

func (h *Handler) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Role userentity.Role `json:"role"`
	}
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	m, err := h.svc.UpdateMemberRole(r.Context(), h.actor(r.Context()), r.PathValue("id"), r.PathValue("userId"), in.Role)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Member role updated successfully", m)
}
