package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/worknest/service-core-go/internal/access"
	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	"github.com/ovaphlow/worknest/service-core-go/internal/audit"
	"github.com/ovaphlow/worknest/service-core-go/internal/cascade"
	orgentity "github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/validate"
	"github.com/ovaphlow/worknest/service-core-go/pkg/utilities"
)

// Service orchestrates administrative user lifecycle flows and the
// self-service profile.
type Service struct {
	store  store.Store
	hasher PasswordHasher
	audit  audit.Logger
	logger *zap.SugaredLogger

	Now   func() time.Time
	NewID func() string
}

func NewService(st store.Store, hasher PasswordHasher, al audit.Logger, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: DefaultCost}
	}
	if al == nil {
		al = audit.Nop{}
	}
	return &Service{store: st, hasher: hasher, audit: al, logger: logger, Now: time.Now, NewID: utilities.NewSnowflakeID}
}

var (
	ErrDuplicateEmail = apperr.Conflict("User with this email already exists")
	ErrUserNotFound   = apperr.NotFound("User not found")
	ErrOwnerRole      = apperr.Field("role", "Cannot change owner role")
)

// System is the actor for work started from the command line.
var System = &entity.User{ID: "system", FullName: "system", Role: entity.RoleSuperadmin, IsActive: true}

// NormalizeEmail lowercases and trims an address before it is stored or looked up.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateInput is the payload of an administrative user creation.
type CreateInput struct {
	FullName       string      `json:"fullName" validate:"required,max=50"`
	Email          string      `json:"email" validate:"required,email"`
	Password       string      `json:"password" validate:"required,min=6"`
	Role           entity.Role `json:"role" validate:"omitempty,oneof=employee hr admin superadmin"`
	OrganizationID *string     `json:"organizationId"`
}

// Create provisions a user on behalf of actor. Admin and HR actors always
// create into their own organization, whatever the input says.
func (s *Service) Create(ctx context.Context, actor *entity.User, in CreateInput) (*entity.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = entity.RoleEmployee
	}
	if err := access.CheckAssignRole(actor, in.Role); err != nil {
		return nil, err
	}

	var orgID *string
	switch actor.Role {
	case entity.RoleSuperadmin:
		if in.Role != entity.RoleSuperadmin && in.OrganizationID != nil && *in.OrganizationID != "" {
			orgID = in.OrganizationID
		}
	default:
		if actor.OrganizationID == nil {
			return nil, apperr.DependencyMissing("No organization found for this user")
		}
		id := *actor.OrganizationID
		orgID = &id
	}

	now := s.Now()
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal("Error creating user", err)
	}
	actorID := actor.ID
	u := &entity.User{
		ID:             s.NewID(),
		FullName:       in.FullName,
		Email:          in.Email,
		PasswordHash:   hash,
		Role:           in.Role,
		OrganizationID: orgID,
		IsActive:       true,
		CreatedBy:      &actorID,
		UpdatedBy:      &actorID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.Users().GetByEmail(ctx, u.Email); err == nil {
			return ErrDuplicateEmail
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if orgID != nil {
			if _, err := tx.Organizations().GetByID(ctx, *orgID); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return apperr.DependencyMissing("Organization not found")
				}
				return err
			}
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrDuplicateEmail
			}
			return err
		}
		if orgID != nil && u.Role.IsMemberRole() {
			return tx.Organizations().AddMember(ctx, orgentity.Member{
				OrganizationID: *orgID,
				UserID:         u.ID,
				Role:           u.Role,
				JoinedAt:       now,
				IsActive:       true,
			})
		}
		return nil
	})
	if err != nil {
		return nil, s.wrap("create user", err)
	}
	s.audit.Log(audit.Entry{Event: audit.UserCreated, ActorID: actor.ID, TargetType: "user", TargetID: u.ID,
		Details: map[string]any{"role": u.Role}})
	return u, nil
}

// List returns every user for a superadmin and the actor's organization for
// admin and HR.
func (s *Service) List(ctx context.Context, actor *entity.User) ([]entity.User, error) {
	var f store.UserFilter
	if actor.Role != entity.RoleSuperadmin {
		if actor.OrganizationID == nil {
			return []entity.User{}, nil
		}
		f.OrganizationID = actor.OrganizationID
	}
	users, err := s.store.Users().List(ctx, f)
	if err != nil {
		return nil, s.wrap("list users", err)
	}
	return users, nil
}

// Get returns one user visible to actor.
func (s *Service) Get(ctx context.Context, actor *entity.User, id string) (*entity.User, error) {
	u, err := s.load(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	if actor.Role != entity.RoleSuperadmin && actor.ID != u.ID {
		if actor.OrganizationID == nil || !u.InOrganization(*actor.OrganizationID) {
			return nil, apperr.NotAuthorized("You can only view users in your organization")
		}
	}
	return u, nil
}

// UpdateInput carries the fields an administrator may change. Nil fields are
// left alone.
type UpdateInput struct {
	FullName *string      `json:"fullName" validate:"omitnil,min=1,max=50"`
	Email    *string      `json:"email" validate:"omitnil,email"`
	Password *string      `json:"password" validate:"omitnil,min=6"`
	Role     *entity.Role `json:"role" validate:"omitnil,oneof=employee hr admin superadmin"`
	IsActive *bool        `json:"isActive"`
}

func (s *Service) Update(ctx context.Context, actor *entity.User, id string, in UpdateInput) (*entity.User, error) {
	if in.Email != nil {
		e := NormalizeEmail(*in.Email)
		in.Email = &e
	}
	if in.FullName != nil {
		n := strings.TrimSpace(*in.FullName)
		in.FullName = &n
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	var out *entity.User
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.CheckUserTarget(actor, u); err != nil {
			return err
		}
		if in.Role != nil && *in.Role != u.Role {
			if err := access.CheckAssignRole(actor, *in.Role); err != nil {
				return err
			}
		}
		if err := s.apply(ctx, tx, u, in.FullName, in.Email, in.Password); err != nil {
			return err
		}
		if in.Role != nil {
			u.Role = *in.Role
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if err := s.save(ctx, tx, actor, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, s.wrap("update user", err)
	}
	s.audit.Log(audit.Entry{Event: audit.UserUpdated, ActorID: actor.ID, TargetType: "user", TargetID: id})
	return out, nil
}

// UpdateRole changes a user's role and keeps the member record in step.
func (s *Service) UpdateRole(ctx context.Context, actor *entity.User, id string, role entity.Role) (*entity.User, error) {
	if !role.Valid() {
		return nil, apperr.Field("role", "Invalid role. Must be one of: employee, hr, admin, superadmin")
	}
	var out *entity.User
	var from entity.Role
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.CheckUserTarget(actor, u); err != nil {
			return err
		}
		if err := access.CheckAssignRole(actor, role); err != nil {
			return err
		}
		from = u.Role
		u.Role = role
		if err := s.save(ctx, tx, actor, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, s.wrap("update user role", err)
	}
	s.audit.Log(audit.Entry{Event: audit.UserRoleChanged, ActorID: actor.ID, TargetType: "user", TargetID: id,
		Details: map[string]any{"from": from, "to": role}})
	return out, nil
}

// UpdateStatus activates or deactivates a user.
func (s *Service) UpdateStatus(ctx context.Context, actor *entity.User, id string, active bool) (*entity.User, error) {
	var out *entity.User
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.CheckUserTarget(actor, u); err != nil {
			return err
		}
		u.IsActive = active
		if err := s.save(ctx, tx, actor, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, s.wrap("update user status", err)
	}
	s.audit.Log(audit.Entry{Event: audit.UserStatusChanged, ActorID: actor.ID, TargetType: "user", TargetID: id,
		Details: map[string]any{"isActive": active}})
	return out, nil
}

// Delete soft deletes a user and runs the membership and ownership cascade
// in one transaction.
func (s *Service) Delete(ctx context.Context, actor *entity.User, id string) (cascade.UserResult, error) {
	var res cascade.UserResult
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := access.CheckUserTarget(actor, u); err != nil {
			return err
		}
		res, err = cascade.DeleteUser(ctx, tx, u, actor.ID, s.Now())
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logger.Errorw("user delete cascade rolled back", "user", id, "actor", actor.ID, "err", err)
		}
		return res, s.wrap("delete user", err)
	}
	s.audit.Log(audit.Entry{Event: audit.UserDeleted, ActorID: actor.ID, TargetType: "user", TargetID: id,
		Details: map[string]any{"removedFrom": res.RemovedFrom}})
	for org, heir := range res.Transferred {
		s.audit.Log(audit.Entry{Event: audit.OwnershipTransferred, ActorID: actor.ID, TargetType: "organization", TargetID: org,
			Details: map[string]any{"from": id, "to": heir}})
	}
	for _, org := range res.Orphaned {
		s.logger.Warnw("organization left without owner and deactivated", "organization", org, "former_owner", id)
		s.audit.Log(audit.Entry{Event: audit.OrganizationOrphaned, ActorID: actor.ID, TargetType: "organization", TargetID: org})
	}
	return res, nil
}

// Profile returns the actor's own record.
func (s *Service) Profile(ctx context.Context, actor *entity.User) (*entity.User, error) {
	return s.load(ctx, s.store, actor.ID)
}

// ProfileInput is what a user may change about themselves. Role is never
// accepted here.
type ProfileInput struct {
	FullName *string `json:"fullName" validate:"omitnil,min=1,max=50"`
	Email    *string `json:"email" validate:"omitnil,email"`
	Password *string `json:"password" validate:"omitnil,min=6"`
}

func (s *Service) UpdateProfile(ctx context.Context, actor *entity.User, in ProfileInput) (*entity.User, error) {
	if in.Email != nil {
		e := NormalizeEmail(*in.Email)
		in.Email = &e
	}
	if in.FullName != nil {
		n := strings.TrimSpace(*in.FullName)
		in.FullName = &n
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	var out *entity.User
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		u, err := s.load(ctx, tx, actor.ID)
		if err != nil {
			return err
		}
		if err := s.apply(ctx, tx, u, in.FullName, in.Email, in.Password); err != nil {
			return err
		}
		if err := s.save(ctx, tx, actor, u); err != nil {
			return err
		}
		out = u
		return nil
	})
	if err != nil {
		return nil, s.wrap("update profile", err)
	}
	return out, nil
}

// apply sets name, email and password on u. The email is re-checked for
// uniqueness excluding u, and the password is hashed only when supplied.
func (s *Service) apply(ctx context.Context, tx store.Tx, u *entity.User, name, email, password *string) error {
	if name != nil {
		u.FullName = *name
	}
	if email != nil && *email != NormalizeEmail(u.Email) {
		other, err := tx.Users().GetByEmail(ctx, *email)
		switch {
		case err == nil && other.ID != u.ID:
			return ErrDuplicateEmail
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return err
		}
		u.Email = *email
	}
	if password != nil {
		hash, err := s.hasher.Hash(*password)
		if err != nil {
			return err
		}
		u.PasswordHash = hash
	}
	return nil
}

// save stamps u and writes it together with its member record.
func (s *Service) save(ctx context.Context, tx store.Tx, actor *entity.User, u *entity.User) error {
	actorID := actor.ID
	u.UpdatedBy = &actorID
	u.UpdatedAt = s.Now()
	if err := SyncMember(ctx, tx, u); err != nil {
		return err
	}
	if err := tx.Users().Update(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// SyncMember copies u's role and active flag onto its member record in its
// organization, if it has one. An organization owner cannot leave the admin
// role this way. A superadmin keeps the last member role.
func SyncMember(ctx context.Context, tx store.Tx, u *entity.User) error {
	if u.OrganizationID == nil {
		return nil
	}
	org, err := tx.Organizations().GetByID(ctx, *u.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if org.IsOwner(u.ID) && u.Role != entity.RoleAdmin && u.Role != entity.RoleSuperadmin {
		return ErrOwnerRole
	}
	m := org.Member(u.ID)
	if m == nil {
		return nil
	}
	next := *m
	if u.Role.IsMemberRole() {
		next.Role = u.Role
	}
	next.IsActive = u.IsActive
	if next.Role == m.Role && next.IsActive == m.IsActive {
		return nil
	}
	return tx.Organizations().UpdateMember(ctx, next)
}

func (s *Service) load(ctx context.Context, tx store.Tx, id string) (*entity.User, error) {
	u, err := tx.Users().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

// wrap passes expected failures through and logs everything else.
func (s *Service) wrap(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.logger.Errorw(op+" failed", "err", err)
	return apperr.Internal("Error processing user request", fmt.Errorf("%s: %w", op, err))
}
