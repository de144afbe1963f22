// Package store defines the persistence boundary used by the services. Every
// read excludes soft-deleted rows unless IncludeDeleted is passed.
package store

import (
	"context"
	"errors"
	"time"

	inviteentity "github.com/ovaphlow/worknest/service-core-go/internal/invite/entity"
	orgentity "github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

var (
	ErrNotFound  = errors.New("store: not found")
	ErrDuplicate = errors.New("store: duplicate")
)

// ReadOptions tune a single read.
type ReadOptions struct {
	IncludeDeleted bool
}

type ReadOption func(*ReadOptions)

// IncludeDeleted makes a read return soft-deleted rows too.
func IncludeDeleted() ReadOption {
	return func(o *ReadOptions) { o.IncludeDeleted = true }
}

// Apply folds opts over the defaults.
func Apply(opts []ReadOption) ReadOptions {
	var o ReadOptions
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// UserFilter narrows List. A nil OrganizationID lists every organization.
type UserFilter struct {
	OrganizationID *string
}

type Users interface {
	Create(ctx context.Context, u *userentity.User) error
	GetByID(ctx context.Context, id string, opts ...ReadOption) (*userentity.User, error)
	GetByEmail(ctx context.Context, email string, opts ...ReadOption) (*userentity.User, error)
	GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*userentity.User, error)
	List(ctx context.Context, f UserFilter, opts ...ReadOption) ([]userentity.User, error)
	ListByIDs(ctx context.Context, ids []string) ([]userentity.User, error)
	Update(ctx context.Context, u *userentity.User) error
	// SoftDeleteByOrganization marks every non-deleted user of orgID deleted
	// and returns how many rows changed.
	SoftDeleteByOrganization(ctx context.Context, orgID, actorID string, at time.Time) (int64, error)
}

type Organizations interface {
	Create(ctx context.Context, o *orgentity.Organization) error
	GetByID(ctx context.Context, id string, opts ...ReadOption) (*orgentity.Organization, error)
	// List returns organizations newest first.
	List(ctx context.Context, opts ...ReadOption) ([]orgentity.Organization, error)
	ListDeleted(ctx context.Context) ([]orgentity.Organization, error)
	ListOwnedBy(ctx context.Context, userID string) ([]orgentity.Organization, error)
	// ListWithMember returns the live organizations listing userID as a member,
	// or all of them with IncludeDeleted.
	ListWithMember(ctx context.Context, userID string, opts ...ReadOption) ([]orgentity.Organization, error)
	Update(ctx context.Context, o *orgentity.Organization) error
	AddMember(ctx context.Context, m orgentity.Member) error
	UpdateMember(ctx context.Context, m orgentity.Member) error
	RemoveMember(ctx context.Context, orgID, userID string) error
}

type Invites interface {
	// Create returns ErrDuplicate when a pending invite exists for the same
	// email and organization.
	Create(ctx context.Context, inv *inviteentity.Invite) error
	GetByID(ctx context.Context, id string) (*inviteentity.Invite, error)
	FindValidByToken(ctx context.Context, tokenHash string, now time.Time) (*inviteentity.Invite, error)
	ListPending(ctx context.Context, orgID string, now time.Time) ([]inviteentity.Invite, error)
	// MarkAccepted flips an unaccepted invite; it returns ErrNotFound when the
	// invite was already accepted.
	MarkAccepted(ctx context.Context, id, userID string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	DeleteExpiredFor(ctx context.Context, email, orgID string, now time.Time) error
}

// Tx exposes the repositories bound to one unit of work.
type Tx interface {
	Users() Users
	Organizations() Organizations
	Invites() Invites
}

// Store is a Tx over the whole database plus a transaction runner. fn's
// changes are committed only when it returns nil.
type Store interface {
	Tx
	InTx(ctx context.Context, fn func(tx Tx) error) error
}
