// Package setting serves /api/organization-settings: the organization
// endpoints applied to the signed-in user's own organization.
package setting

import (
	"net/http"

	"github.com/ovaphlow/worknest/service-core-go/internal/access"
	"github.com/ovaphlow/worknest/service-core-go/internal/invite"
	"github.com/ovaphlow/worknest/service-core-go/internal/organization"
)

// Handler contains dependencies for the organization settings endpoints.
type Handler struct {
	orgs    *organization.Handler
	invites *invite.Handler
}

// NewHandler constructs a new Handler.
func NewHandler(orgs *organization.Handler, invites *invite.Handler) *Handler {
	return &Handler{orgs: orgs, invites: invites}
}

func (h *Handler) Get() http.Handler { return h.orgs.Get(access.Own) }

func (h *Handler) Update() http.Handler { return h.orgs.Update(access.Own) }

func (h *Handler) Members() http.Handler { return h.orgs.Members(access.Own) }

func (h *Handler) Invite() http.Handler { return h.invites.Create(access.Own) }

func (h *Handler) Invites() http.Handler { return h.invites.ListPending(access.Own) }
