package invite

import (
	"context"
	"net/http"
	"time"

	"github.com/ovaphlow/worknest/service-core-go/internal/access"
	"github.com/ovaphlow/worknest/service-core-go/internal/httpx"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

type Handler struct {
	svc   *Service
	rs    httpx.Responder
	actor func(ctx context.Context) *userentity.User
}

func NewHandler(svc *Service, rs httpx.Responder, actor func(ctx context.Context) *userentity.User) *Handler {
	return &Handler{svc: svc, rs: rs, actor: actor}
}

// inviteView is what the API returns for an invite; the token never leaves
// the email.
type inviteView struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Role         userentity.Role `json:"role"`
	Organization string          `json:"organization"`
	ExpiresAt    time.Time       `json:"expiresAt"`
}

func (h *Handler) Create(target access.TargetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in Input
		if err := httpx.Decode(r, &in); err != nil {
			h.rs.Error(w, r, err)
			return
		}
		out, err := h.svc.Invite(r.Context(), h.actor(r.Context()), target(r), in)
		if err != nil {
			h.rs.Error(w, r, err)
			return
		}
		inv := out.Invite
		httpx.OK(w, http.StatusCreated, "Invite sent successfully", inviteView{
			ID:           inv.ID,
			Email:        inv.Email,
			Role:         inv.Role,
			Organization: inv.OrganizationID,
			ExpiresAt:    inv.ExpiresAt,
		})
	}
}

func (h *Handler) ListPending(target access.TargetFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invites, err := h.svc.ListPending(r.Context(), h.actor(r.Context()), target(r))
		if err != nil {
			h.rs.Error(w, r, err)
			return
		}
		httpx.List(w, invites, len(invites))
	}
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.Validate(r.Context(), r.PathValue("token"))
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "", d)
}

func (h *Handler) Accept(w http.ResponseWriter, r *http.Request) {
	var in AcceptInput
	if err := httpx.Decode(r, &in); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	u, err := h.svc.Accept(r.Context(), r.PathValue("token"), in)
	if err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusCreated, "Invite accepted successfully. Please log in.", map[string]any{"user": u})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), h.actor(r.Context()), r.PathValue("inviteId")); err != nil {
		h.rs.Error(w, r, err)
		return
	}
	httpx.OK(w, http.StatusOK, "Invite cancelled successfully", nil)
}
