package organization

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
	"github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/validate"
	"github.com/ovaphlow/worknest/service-core-go/pkg/utilities"
)

type Service struct {
	store  store.Store
	hasher user.PasswordHasher
	audit  audit.Logger
	logger *zap.SugaredLogger

	Now   func() time.Time
	NewID func() string
}

func NewService(st store.Store, hasher user.PasswordHasher, al audit.Logger, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = user.BcryptHasher{Cost: user.DefaultCost}
	}
	if al == nil {
		al = audit.Nop{}
	}
	return &Service{store: st, hasher: hasher, audit: al, logger: logger, Now: time.Now, NewID: utilities.NewSnowflakeID}
}

var (
	ErrOrganizationNotFound = apperr.NotFound("Organization not found")
	ErrAccessDenied         = apperr.NotAuthorized("Access denied to this organization")
)

// NewOwner provisions the owning admin account together with the organization.
type NewOwner struct {
	FullName string `json:"fullName" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// CreateInput names the owner either by OwnerID or as a NewOwner.
type CreateInput struct {
	Name        string        `json:"name" validate:"required,max=100"`
	Description string        `json:"description" validate:"max=500"`
	Email       string        `json:"email" validate:"required,email"`
	Phone       string        `json:"phone"`
	Address     string        `json:"address"`
	Website     string        `json:"website"`
	Industry    string        `json:"industry"`
	Size        *int          `json:"size" validate:"omitnil,gte=1"`
	Status      entity.Status `json:"status" validate:"omitempty,oneof=active inactive"`
	Logo        string        `json:"logo"`
	OwnerID     string        `json:"ownerId"`
	Owner       *NewOwner     `json:"owner"`
}

// Create persists an organization with its owner as the first admin member,
// then links the owner to it. Only a superadmin may create organizations.
func (s *Service) Create(ctx context.Context, actor *userentity.User, in CreateInput) (*entity.Organization, error) {
	if actor.Role != userentity.RoleSuperadmin {
		return nil, apperr.NotAuthorized("Only superadmin can create organizations")
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Email = user.NormalizeEmail(in.Email)
	if in.Owner != nil {
		in.Owner.Email = user.NormalizeEmail(in.Owner.Email)
		in.Owner.FullName = strings.TrimSpace(in.Owner.FullName)
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if in.OwnerID == "" && in.Owner == nil {
		return nil, apperr.Field("ownerId", "Owner ID is required")
	}
	if in.Status == "" {
		in.Status = entity.StatusActive
	}

	now := s.Now()
	actorID := actor.ID
	org := &entity.Organization{
		ID:          s.NewID(),
		Name:        in.Name,
		Description: in.Description,
		Email:       in.Email,
		Phone:       in.Phone,
		Address:     in.Address,
		Website:     in.Website,
		Industry:    in.Industry,
		Size:        in.Size,
		Status:      in.Status,
		Logo:        in.Logo,
		CreatedBy:   &actorID,
		UpdatedBy:   &actorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := s.store.InTx(ctx, func(tx store.Tx) error {
		owner, err := s.resolveOwner(ctx, tx, actor, in, now)
		if err != nil {
			return err
		}
		ownerID := owner.ID
		org.OwnerID = &ownerID
		org.Members = []entity.Member{{
			UserID:   owner.ID,
			Role:     userentity.RoleAdmin,
			JoinedAt: now,
			IsActive: true,
		}}
		if err := tx.Organizations().Create(ctx, org); err != nil {
			return err
		}
		orgID := org.ID
		owner.OrganizationID = &orgID
		owner.Role = userentity.RoleAdmin
		owner.UpdatedBy = &actorID
		owner.UpdatedAt = now
		return tx.Users().Update(ctx, owner)
	})
	if err != nil {
		return nil, s.wrap("create organization", err)
	}
	s.audit.Log(audit.Entry{Event: audit.OrganizationCreated, ActorID: actor.ID, TargetType: "organization", TargetID: org.ID,
		Details: map[string]any{"owner": *org.OwnerID}})
	return org, nil
}

func (s *Service) resolveOwner(ctx context.Context, tx store.Tx, actor *userentity.User, in CreateInput, now time.Time) (*userentity.User, error) {
	if in.Owner == nil {
		owner, err := tx.Users().GetByID(ctx, in.OwnerID)
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.DependencyMissing("Owner user not found")
		}
		if err != nil {
			return nil, err
		}
		if owner.OrganizationID != nil {
			return nil, apperr.Conflict("User already belongs to an organization")
		}
		if owner.Role == userentity.RoleSuperadmin {
			return nil, apperr.Field("ownerId", "A superadmin cannot own an organization")
		}
		return owner, nil
	}

	if _, err := tx.Users().GetByEmail(ctx, in.Owner.Email); err == nil {
		return nil, user.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Owner.Password)
	if err != nil {
		return nil, err
	}
	actorID := actor.ID
	owner := &userentity.User{
		ID:           s.NewID(),
		FullName:     in.Owner.FullName,
		Email:        in.Owner.Email,
		PasswordHash: hash,
		Role:         userentity.RoleAdmin,
		IsActive:     true,
		CreatedBy:    &actorID,
		UpdatedBy:    &actorID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := tx.Users().Create(ctx, owner); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, err
	}
	return owner, nil
}

// List returns every live organization, newest first. Superadmin only.
func (s *Service) List(ctx context.Context, actor *userentity.User) ([]entity.Organization, error) {
	if actor.Role != userentity.RoleSuperadmin {
		return nil, apperr.NotAuthorized("Access denied. Only superadmin can view all organizations.")
	}
	orgs, err := s.store.Organizations().List(ctx)
	if err != nil {
		return nil, s.wrap("list organizations", err)
	}
	return orgs, nil
}

// ListDeleted returns soft-deleted organizations. Superadmin only.
func (s *Service) ListDeleted(ctx context.Context, actor *userentity.User) ([]entity.Organization, error) {
	if actor.Role != userentity.RoleSuperadmin {
		return nil, apperr.NotAuthorized("Access denied. Only superadmin can view deleted organizations.")
	}
	orgs, err := s.store.Organizations().ListDeleted(ctx)
	if err != nil {
		return nil, s.wrap("list deleted organizations", err)
	}
	return orgs, nil
}

// Get returns the organization t names when actor has access to it.
func (s *Service) Get(ctx context.Context, actor *userentity.User, t access.Target) (*entity.Organization, error) {
	org, err := s.readable(ctx, actor, t)
	if err != nil {
		return nil, err
	}
	return org, nil
}

// UpdateInput holds optional changes; nil fields stay as they are. An empty
// name is ignored.
type UpdateInput struct {
	Name        *string        `json:"name" validate:"omitnil,max=100"`
	Description *string        `json:"description" validate:"omitnil,max=500"`
	Email       *string        `json:"email" validate:"omitnil,email"`
	Phone       *string        `json:"phone"`
	Address     *string        `json:"address"`
	Website     *string        `json:"website"`
	Industry    *string        `json:"industry"`
	Size        *int           `json:"size" validate:"omitnil,gte=1"`
	Status      *entity.Status `json:"status" validate:"omitnil,oneof=active inactive"`
	Logo        *string        `json:"logo"`
}

// Update changes the supplied fields. By id it needs CanManageOrg; on the
// actor's own organization an admin of it may edit too.
func (s *Service) Update(ctx context.Context, actor *userentity.User, t access.Target, in UpdateInput) (*entity.Organization, error) {
	if in.Email != nil {
		e := user.NormalizeEmail(*in.Email)
		in.Email = &e
	}
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	orgID, err := t.Resolve(actor)
	if err != nil {
		return nil, err
	}
	org, err := s.load(ctx, s.store, orgID)
	if err != nil {
		return nil, err
	}
	allowed := access.CanManageOrg(org, actor)
	if t.IsOwn() {
		allowed = access.CanEditOrg(org, actor)
	}
	if !allowed {
		return nil, apperr.NotAuthorized("Only organization admin or superadmin can update organization")
	}

	if in.Name != nil && strings.TrimSpace(*in.Name) != "" {
		org.Name = strings.TrimSpace(*in.Name)
	}
	setString(&org.Description, in.Description)
	setString(&org.Email, in.Email)
	setString(&org.Phone, in.Phone)
	setString(&org.Address, in.Address)
	setString(&org.Website, in.Website)
	setString(&org.Industry, in.Industry)
	setString(&org.Logo, in.Logo)
	if in.Size != nil {
		size := *in.Size
		org.Size = &size
	}
	if in.Status != nil {
		org.Status = *in.Status
	}
	actorID := actor.ID
	org.UpdatedBy = &actorID
	org.UpdatedAt = s.Now()
	if err := s.store.Organizations().Update(ctx, org); err != nil {
		return nil, s.wrap("update organization", err)
	}
	s.audit.Log(audit.Entry{Event: audit.OrganizationUpdated, ActorID: actor.ID, TargetType: "organization", TargetID: org.ID})
	return org, nil
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// Delete soft deletes the organization and every user in it.
func (s *Service) Delete(ctx context.Context, actor *userentity.User, id string) (int64, error) {
	var n int64
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		org, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanManageOrg(org, actor) {
			return apperr.NotAuthorized("Only owner or superadmin can delete organization")
		}
		n, err = cascade.DeleteOrganization(ctx, tx, org, actor.ID, s.Now())
		return err
	})
	if err != nil {
		if apperr.KindOf(err) == apperr.KindInternal {
			s.logger.Errorw("organization delete cascade rolled back", "organization", id, "actor", actor.ID, "err", err)
		}
		return 0, s.wrap("delete organization", err)
	}
	s.audit.Log(audit.Entry{Event: audit.OrganizationDeleted, ActorID: actor.ID, TargetType: "organization", TargetID: id,
		Details: map[string]any{"usersDeleted": n}})
	return n, nil
}

// MemberView is one entry of a member listing.
type MemberView struct {
	User     userentity.Summary `json:"user"`
	Role     userentity.Role    `json:"role"`
	JoinedAt time.Time          `json:"joinedAt"`
	IsActive bool               `json:"isActive"`
	IsOwner  bool               `json:"isOwner"`
}

type Members struct {
	Owner   *userentity.Summary `json:"owner"`
	Members []MemberView        `json:"members"`
}

// Members lists the owner and members with user summaries. Members whose
// user is gone are skipped.
func (s *Service) Members(ctx context.Context, actor *userentity.User, t access.Target) (*Members, error) {
	org, err := s.readable(ctx, actor, t)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(org.Members)+1)
	if org.OwnerID != nil {
		ids = append(ids, *org.OwnerID)
	}
	for _, m := range org.Members {
		ids = append(ids, m.UserID)
	}
	users, err := s.store.Users().ListByIDs(ctx, ids)
	if err != nil {
		return nil, s.wrap("list members", err)
	}
	byID := make(map[string]userentity.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	out := &Members{Members: []MemberView{}}
	if org.OwnerID != nil {
		if u, ok := byID[*org.OwnerID]; ok {
			sum := u.Summary()
			out.Owner = &sum
		}
	}
	for _, m := range org.Members {
		u, ok := byID[m.UserID]
		if !ok {
			continue
		}
		out.Members = append(out.Members, MemberView{
			User:     u.Summary(),
			Role:     m.Role,
			JoinedAt: m.JoinedAt,
			IsActive: m.IsActive,
			IsOwner:  org.IsOwner(m.UserID),
		})
	}
	return out, nil
}

// UpdateMemberRole sets a member's role in the organization and on the user
// record in one transaction.
func (s *Service) UpdateMemberRole(ctx context.Context, actor *userentity.User, orgID, userID string, role userentity.Role) (*entity.Member, error) {
	if !role.IsMemberRole() {
		return nil, apperr.Field("role", "Valid role is required (employee, hr, admin)")
	}
	var out entity.Member
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		org, err := s.load(ctx, tx, orgID)
		if err != nil {
			return err
		}
		if !access.CanManageOrg(org, actor) {
			return apperr.NotAuthorized("Only owner or superadmin can update roles")
		}
		m := org.Member(userID)
		if m == nil {
			return apperr.NotFound("Member not found in organization")
		}
		if org.IsOwner(userID) {
			return user.ErrOwnerRole
		}
		m.Role = role
		if err := tx.Organizations().UpdateMember(ctx, *m); err != nil {
			return err
		}
		u, err := tx.Users().GetByID(ctx, userID)
		if err != nil {
			return fmt.Errorf("load member user %s: %w", userID, err)
		}
		if u.Role != userentity.RoleSuperadmin {
			actorID := actor.ID
			u.Role = role
			u.UpdatedBy = &actorID
			u.UpdatedAt = s.Now()
			if err := tx.Users().Update(ctx, u); err != nil {
				return err
			}
		}
		out = *m
		return nil
	})
	if err != nil {
		return nil, s.wrap("update member role", err)
	}
	s.audit.Log(audit.Entry{Event: audit.MemberRoleChanged, ActorID: actor.ID, TargetType: "user", TargetID: userID,
		Details: map[string]any{"organization": orgID, "role": role}})
	return &out, nil
}

// readable resolves t and checks HasOrgAccess.
func (s *Service) readable(ctx context.Context, actor *userentity.User, t access.Target) (*entity.Organization, error) {
	orgID, err := t.Resolve(actor)
	if err != nil {
		return nil, err
	}
	org, err := s.load(ctx, s.store, orgID)
	if err != nil {
		return nil, err
	}
	if !access.HasOrgAccess(org, actor) {
		return nil, ErrAccessDenied
	}
	if access.MembershipDiverged(org, actor) {
		s.logger.Debugw("user references organization without a member entry", "organization", org.ID, "user", actor.ID)
	}
	return org, nil
}

func (s *Service) load(ctx context.Context, tx store.Tx, id string) (*entity.Organization, error) {
	org, err := tx.Organizations().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrOrganizationNotFound
	}
	if err != nil {
		return nil, err
	}
	return org, nil
}

func (s *Service) wrap(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.logger.Errorw(op+" failed", "err", err)
	return apperr.Internal("Error processing organization request", fmt.Errorf("%s: %w", op, err))
}
