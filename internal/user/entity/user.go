package entity

import "time"

// Role is the single capability level a user holds.
type Role string

const (
	RoleEmployee   Role = "employee"
	RoleHR         Role = "hr"
	RoleAdmin      Role = "admin"
	RoleSuperadmin Role = "superadmin"
)

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleEmployee, RoleHR, RoleAdmin, RoleSuperadmin:
		return true
	}
	return false
}

// IsMemberRole reports whether r can be held inside an organization's member list.
func (r Role) IsMemberRole() bool {
	return r == RoleEmployee || r == RoleHR || r == RoleAdmin
}

// Rank orders roles superadmin > admin > hr > employee. Unknown roles rank 0.
func (r Role) Rank() int {
	switch r {
	case RoleEmployee:
		return 1
	case RoleHR:
		return 2
	case RoleAdmin:
		return 3
	case RoleSuperadmin:
		return 4
	}
	return 0
}

// User represents an account row in the `users` table.
type User struct {
	ID             string     `db:"id" json:"id"`
	FullName       string     `db:"full_name" json:"fullName"`
	Email          string     `db:"email" json:"email"`
	PasswordHash   string     `db:"password_hash" json:"-"`
	Role           Role       `db:"role" json:"role"`
	OrganizationID *string    `db:"organization_id" json:"organization"`
	IsActive       bool       `db:"is_active" json:"isActive"`
	IsDeleted      bool       `db:"is_deleted" json:"isDeleted"`
	DeletedBy      *string    `db:"deleted_by" json:"deletedBy,omitempty"`
	DeletedAt      *time.Time `db:"deleted_at" json:"deletedAt,omitempty"`
	CreatedBy      *string    `db:"created_by" json:"createdBy,omitempty"`
	UpdatedBy      *string    `db:"updated_by" json:"updatedBy,omitempty"`
	LastLogin      *time.Time `db:"last_login" json:"lastLogin,omitempty"`
	// reset token is stored as a sha256 hex digest
	ResetTokenHash   *string    `db:"reset_token_hash" json:"-"`
	ResetTokenExpiry *time.Time `db:"reset_token_expires_at" json:"-"`
	CreatedAt        time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updatedAt"`
}

// InOrganization reports whether the user's organization reference equals orgID.
func (u *User) InOrganization(orgID string) bool {
	return u != nil && u.OrganizationID != nil && *u.OrganizationID == orgID
}

// Summary is the projection embedded in member listings.
type Summary struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	IsActive bool   `json:"isActive"`
}

func (u *User) Summary() Summary {
	return Summary{ID: u.ID, FullName: u.FullName, Email: u.Email, Role: u.Role, IsActive: u.IsActive}
}
