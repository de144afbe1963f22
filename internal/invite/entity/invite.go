package entity

import (
	"time"

	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

// TTL is the fixed validity window of an invite.
const TTL = 7 * 24 * time.Hour

// Invite is a single-use enrollment token row in `invites`. Only the sha256 of
// the token is persisted.
type Invite struct {
	ID             string          `db:"id" json:"id"`
	Email          string          `db:"email" json:"email"`
	OrganizationID string          `db:"organization_id" json:"organization"`
	Role           userentity.Role `db:"role" json:"role"`
	InvitedBy      string          `db:"invited_by" json:"invitedBy"`
	TokenHash      string          `db:"token_hash" json:"-"`
	ExpiresAt      time.Time       `db:"expires_at" json:"expiresAt"`
	IsAccepted     bool            `db:"is_accepted" json:"isAccepted"`
	AcceptedAt     *time.Time      `db:"accepted_at" json:"acceptedAt,omitempty"`
	AcceptedBy     *string         `db:"accepted_by" json:"acceptedBy,omitempty"`
	CreatedAt      time.Time       `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time       `db:"updated_at" json:"updatedAt"`
}

// Valid reports whether the invite can still be accepted at now.
func (i *Invite) Valid(now time.Time) bool {
	return !i.IsAccepted && now.Before(i.ExpiresAt)
}
