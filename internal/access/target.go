package access

import (
	"net/http"

	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// Target says how an operation finds its organization: an explicit id from
// the route, or the actor's own organization.
type Target struct {
	id  string
	own bool
}

func OrgByID(id string) Target { return Target{id: id} }

func OwnOrg() Target { return Target{own: true} }

// IsOwn reports whether the target is the actor's own organization.
func (t Target) IsOwn() bool { return t.own }

// Resolve returns the organization id the target names for actor.
func (t Target) Resolve(actor *userentity.User) (string, error) {
	if !t.own {
		if t.id == "" {
			return "", apperr.Field("id", "Organization id is required")
		}
		return t.id, nil
	}
	if actor != nil && actor.Role == userentity.RoleSuperadmin {
		return "", apperr.Validation("Superadmin should use /organizations/:id endpoint", nil)
	}
	if actor == nil || actor.OrganizationID == nil {
		return "", apperr.NotFound("No organization found for this user")
	}
	return *actor.OrganizationID, nil
}

// TargetFunc picks the organization target for a request.
type TargetFunc func(r *http.Request) Target

// FromPath targets the organization whose id is the named path value.
func FromPath(name string) TargetFunc {
	return func(r *http.Request) Target { return OrgByID(r.PathValue(name)) }
}

// Own targets the actor's own organization.
func Own(*http.Request) Target { return OwnOrg() }
