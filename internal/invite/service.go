package invite

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
	"github.com/ovaphlow/worknest/service-core-go/internal/invite/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/mail"
	orgentity "github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/validate"
	"github.com/ovaphlow/worknest/service-core-go/pkg/utilities"
)

type Service struct {
	store  store.Store
	mail   mail.Sender
	hasher user.PasswordHasher
	audit  audit.Logger
	logger *zap.SugaredLogger
	// ClientURL prefixes the accept link sent by email.
	ClientURL string

	Now   func() time.Time
	NewID func() string
}

func NewService(st store.Store, sender mail.Sender, hasher user.PasswordHasher, al audit.Logger, logger *zap.SugaredLogger, clientURL string) *Service {
	if hasher == nil {
		hasher = user.BcryptHasher{Cost: user.DefaultCost}
	}
	if al == nil {
		al = audit.Nop{}
	}
	return &Service{
		store:     st,
		mail:      sender,
		hasher:    hasher,
		audit:     al,
		logger:    logger,
		ClientURL: strings.TrimRight(clientURL, "/"),
		Now:       time.Now,
		NewID:     utilities.NewSnowflakeID,
	}
}

var (
	ErrInvalidInvite = apperr.NotFound("Invalid or expired invitation")
	ErrInviteExists  = apperr.Conflict("Invite already sent to this email")
	ErrAlreadyMember = apperr.Conflict("User already a member of this organization")
)

type Input struct {
	Email string          `json:"email" validate:"required,email"`
	Role  userentity.Role `json:"role" validate:"required"`
}

// Issued is a freshly created invite with its plaintext token, which exists
// only here and in the email.
type Issued struct {
	Invite *entity.Invite
	Token  string
}

// Invite issues an invite into the organization named by t. Expired invites
// for the same address are purged first; a live pending one is a conflict.
// The email is sent inside the transaction so a delivery failure leaves no
// invite behind.
func (s *Service) Invite(ctx context.Context, actor *userentity.User, t access.Target, in Input) (*Issued, error) {
	in.Email = user.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	orgID, err := t.Resolve(actor)
	if err != nil {
		return nil, err
	}

	var out *Issued
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		org, err := tx.Organizations().GetByID(ctx, orgID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Organization not found")
		}
		if err != nil {
			return err
		}
		if err := access.CheckInvite(org, actor, in.Role); err != nil {
			return err
		}
		existing, err := tx.Users().GetByEmail(ctx, in.Email)
		if err == nil && existing.InOrganization(org.ID) {
			return ErrAlreadyMember
		}
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}

		now := s.Now()
		if err := tx.Invites().DeleteExpiredFor(ctx, in.Email, org.ID, now); err != nil {
			return err
		}
		token, err := utilities.RandomHex(32)
		if err != nil {
			return err
		}
		inv := &entity.Invite{
			ID:             s.NewID(),
			Email:          in.Email,
			OrganizationID: org.ID,
			Role:           in.Role,
			InvitedBy:      actor.ID,
			TokenHash:      utilities.SHA256Hex(token),
			ExpiresAt:      now.Add(entity.TTL),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Invites().Create(ctx, inv); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return ErrInviteExists
			}
			return err
		}
		if err := s.mail.SendOrganizationInvite(ctx, inv.Email, org.Name, s.acceptURL(token), string(inv.Role)); err != nil {
			return apperr.Internal("Failed to send invite", err)
		}
		out = &Issued{Invite: inv, Token: token}
		return nil
	})
	if err != nil {
		return nil, s.wrap("issue invite", err)
	}
	s.audit.Log(audit.Entry{Event: audit.InviteCreated, ActorID: actor.ID, TargetType: "invite", TargetID: out.Invite.ID,
		Details: map[string]any{"email": out.Invite.Email, "role": out.Invite.Role, "organization": orgID}})
	return out, nil
}

func (s *Service) acceptURL(token string) string {
	return s.ClientURL + "/invite/" + token
}

// Details describes a valid invite to the person holding its token.
type Details struct {
	Email        string          `json:"email"`
	Role         userentity.Role `json:"role"`
	Organization struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"organization"`
}

// Validate looks up a still-valid invite by token.
func (s *Service) Validate(ctx context.Context, token string) (*Details, error) {
	if strings.TrimSpace(token) == "" {
		return nil, apperr.Field("token", "Invite token is required")
	}
	inv, err := s.store.Invites().FindValidByToken(ctx, utilities.SHA256Hex(token), s.Now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidInvite
	}
	if err != nil {
		return nil, s.wrap("validate invite", err)
	}
	if _, err := s.store.Users().GetByEmail(ctx, inv.Email); err == nil {
		return nil, user.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, s.wrap("validate invite", err)
	}
	org, err := s.store.Organizations().GetByID(ctx, inv.OrganizationID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidInvite
	}
	if err != nil {
		return nil, s.wrap("validate invite", err)
	}
	d := &Details{Email: inv.Email, Role: inv.Role}
	d.Organization.ID = org.ID
	d.Organization.Name = org.Name
	return d, nil
}

type AcceptInput struct {
	FullName string `json:"fullName" validate:"required,max=50"`
	Password string `json:"password" validate:"required,min=6"`
}

// Accept consumes the invite: it creates the user in the organization at the
// invited role, appends the member entry and marks the invite accepted. A
// token works exactly once.
func (s *Service) Accept(ctx context.Context, token string, in AcceptInput) (*userentity.User, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.wrap("accept invite", err)
	}

	var u *userentity.User
	err = s.store.InTx(ctx, func(tx store.Tx) error {
		now := s.Now()
		inv, err := tx.Invites().FindValidByToken(ctx, utilities.SHA256Hex(token), now)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidInvite
		}
		if err != nil {
			return err
		}
		if _, err := tx.Users().GetByEmail(ctx, inv.Email); err == nil {
			return user.ErrDuplicateEmail
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		org, err := tx.Organizations().GetByID(ctx, inv.OrganizationID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrInvalidInvite
		}
		if err != nil {
			return err
		}

		orgID := org.ID
		u = &userentity.User{
			ID:             s.NewID(),
			FullName:       in.FullName,
			Email:          inv.Email,
			PasswordHash:   hash,
			Role:           inv.Role,
			OrganizationID: &orgID,
			IsActive:       true,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := tx.Users().Create(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return user.ErrDuplicateEmail
			}
			return err
		}
		if err := tx.Invites().MarkAccepted(ctx, inv.ID, u.ID, now); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return ErrInvalidInvite
			}
			return err
		}
		if org.Member(u.ID) != nil {
			return nil
		}
		return tx.Organizations().AddMember(ctx, orgentity.Member{
			OrganizationID: org.ID,
			UserID:         u.ID,
			Role:           inv.Role,
			JoinedAt:       now,
			IsActive:       true,
		})
	})
	if err != nil {
		return nil, s.wrap("accept invite", err)
	}
	s.audit.Log(audit.Entry{Event: audit.InviteAccepted, ActorID: u.ID, TargetType: "organization", TargetID: *u.OrganizationID,
		Details: map[string]any{"role": u.Role}})
	return u, nil
}

// ListPending returns the organization's unaccepted, unexpired invites.
func (s *Service) ListPending(ctx context.Context, actor *userentity.User, t access.Target) ([]entity.Invite, error) {
	orgID, err := t.Resolve(actor)
	if err != nil {
		return nil, err
	}
	org, err := s.store.Organizations().GetByID(ctx, orgID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound("Organization not found")
	}
	if err != nil {
		return nil, s.wrap("list invites", err)
	}
	if !access.CanViewInvites(org, actor) {
		return nil, apperr.NotAuthorized("Only organization admin, hr, or superadmin can view invites")
	}
	invites, err := s.store.Invites().ListPending(ctx, org.ID, s.Now())
	if err != nil {
		return nil, s.wrap("list invites", err)
	}
	return invites, nil
}

// Cancel deletes an invite; it needs the same permission as ListPending.
func (s *Service) Cancel(ctx context.Context, actor *userentity.User, inviteID string) error {
	err := s.store.InTx(ctx, func(tx store.Tx) error {
		inv, err := tx.Invites().GetByID(ctx, inviteID)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound("Invite not found")
		}
		if err != nil {
			return err
		}
		org, err := tx.Organizations().GetByID(ctx, inv.OrganizationID, store.IncludeDeleted())
		if err != nil {
			return fmt.Errorf("load organization %s: %w", inv.OrganizationID, err)
		}
		if !access.CanViewInvites(org, actor) {
			return apperr.NotAuthorized("Only organization admin, hr, or superadmin can cancel invites")
		}
		return tx.Invites().Delete(ctx, inv.ID)
	})
	if err != nil {
		return s.wrap("cancel invite", err)
	}
	s.audit.Log(audit.Entry{Event: audit.InviteCancelled, ActorID: actor.ID, TargetType: "invite", TargetID: inviteID})
	return nil
}

// CleanupExpired purges every unaccepted invite past its expiry.
func (s *Service) CleanupExpired(ctx context.Context) (int64, error) {
	n, err := s.store.Invites().DeleteExpired(ctx, s.Now())
	if err != nil {
		return 0, s.wrap("cleanup invites", err)
	}
	s.audit.Log(audit.Entry{Event: audit.InvitesExpiredDeleted, ActorID: "system", TargetType: "invite",
		Details: map[string]any{"deleted": n}})
	return n, nil
}

func (s *Service) wrap(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		if ae.Kind == apperr.KindInternal && ae.Err != nil {
			s.logger.Errorw(op+" failed", "err", ae.Err)
		}
		return err
	}
	s.logger.Errorw(op+" failed", "err", err)
	return apperr.Internal("Error processing invite request", fmt.Errorf("%s: %w", op, err))
}
