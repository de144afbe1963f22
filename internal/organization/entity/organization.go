package entity

import (
	"encoding/json"
	"time"

	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

func (s Status) Valid() bool { return s == StatusActive || s == StatusInactive }

// Member is one row of `organization_members`; Position keeps insertion order.
type Member struct {
	OrganizationID string          `db:"organization_id" json:"-"`
	UserID         string          `db:"user_id" json:"user"`
	Role           userentity.Role `db:"role" json:"role"`
	JoinedAt       time.Time       `db:"joined_at" json:"joinedAt"`
	IsActive       bool            `db:"is_active" json:"isActive"`
	Position       int             `db:"position" json:"-"`
}

// Organization represents a row of `organizations` plus its ordered members.
type Organization struct {
	ID          string     `db:"id" json:"id"`
	Name        string     `db:"name" json:"name"`
	Description string     `db:"description" json:"description"`
	Email       string     `db:"email" json:"email"`
	Phone       string     `db:"phone" json:"phone"`
	Address     string     `db:"address" json:"address"`
	Website     string     `db:"website" json:"website"`
	Industry    string     `db:"industry" json:"industry"`
	Size        *int       `db:"size" json:"size,omitempty"`
	Status      Status     `db:"status" json:"status"`
	Logo        string     `db:"logo" json:"logo"`
	OwnerID     *string    `db:"owner_id" json:"owner"`
	IsDeleted   bool       `db:"is_deleted" json:"isDeleted"`
	DeletedBy   *string    `db:"deleted_by" json:"deletedBy,omitempty"`
	DeletedAt   *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedBy   *string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy   *string    `db:"updated_by" json:"updatedBy,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updatedAt"`
	Members     []Member   `db:"-" json:"members"`
}

// IsOwner reports whether userID owns the organization.
func (o *Organization) IsOwner(userID string) bool {
	return o.OwnerID != nil && *o.OwnerID == userID
}

// Member returns the member entry for userID, or nil.
func (o *Organization) Member(userID string) *Member {
	for i := range o.Members {
		if o.Members[i].UserID == userID {
			return &o.Members[i]
		}
	}
	return nil
}

// MemberCount counts members whose active flag is set. It is never stored.
func (o *Organization) MemberCount() int {
	n := 0
	for _, m := range o.Members {
		if m.IsActive {
			n++
		}
	}
	return n
}

func (o Organization) MarshalJSON() ([]byte, error) {
	type alias Organization
	members := o.Members
	if members == nil {
		members = []Member{}
	}
	a := alias(o)
	a.Members = members
	return json.Marshal(struct {
		alias
		MemberCount int `json:"memberCount"`
	}{alias: a, MemberCount: o.MemberCount()})
}
