package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	"github.com/ovaphlow/worknest/service-core-go/internal/audit"
	"github.com/ovaphlow/worknest/service-core-go/internal/mail"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/validate"
	"github.com/ovaphlow/worknest/service-core-go/pkg/utilities"
)

// ResetTTL bounds how long a password reset token stays usable.
const ResetTTL = 15 * time.Minute

const forgotMessage = "If an account with that email exists, a password reset link has been sent."

var (
	ErrBadCredentials = apperr.NotAuthenticated("Invalid credentials")
	ErrDeactivated    = apperr.NotAuthenticated("Account is deactivated. Please contact administrator.")
	ErrInvalidReset   = apperr.Field("token", "Invalid or expired reset token")
)

// Service handles registration, login and password recovery.
type Service struct {
	store  store.Store
	hasher user.PasswordHasher
	tokens *TokenService
	mail   mail.Sender
	audit  audit.Logger
	logger *zap.SugaredLogger
	// ClientURL prefixes the reset link sent by email.
	ClientURL string

	Now   func() time.Time
	NewID func() string

	// background tracks fire-and-forget emails so shutdown and tests can wait.
	background sync.WaitGroup
}

func NewService(st store.Store, hasher user.PasswordHasher, tokens *TokenService, sender mail.Sender, al audit.Logger, logger *zap.SugaredLogger, clientURL string) *Service {
	if hasher == nil {
		hasher = user.BcryptHasher{Cost: user.DefaultCost}
	}
	if al == nil {
		al = audit.Nop{}
	}
	return &Service{
		store:     st,
		hasher:    hasher,
		tokens:    tokens,
		mail:      sender,
		audit:     al,
		logger:    logger,
		ClientURL: strings.TrimRight(clientURL, "/"),
		Now:       time.Now,
		NewID:     utilities.NewSnowflakeID,
	}
}

// Session is a signed-in user with its token.
type Session struct {
	User      *entity.User
	Token     string
	ExpiresAt time.Time
}

type RegisterInput struct {
	FullName string `json:"fullName" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// Register creates an employee account with no organization and signs it in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.FullName = strings.TrimSpace(in.FullName)
	in.Email = user.NormalizeEmail(in.Email)
	if err := validate.Struct(in); err != nil {
		return nil, err
	}
	if _, err := s.store.Users().GetByEmail(ctx, in.Email); err == nil {
		return nil, user.ErrDuplicateEmail
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, s.wrap("register", err)
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, s.wrap("register", err)
	}
	now := s.Now()
	u := &entity.User{
		ID:           s.NewID(),
		FullName:     in.FullName,
		Email:        in.Email,
		PasswordHash: hash,
		Role:         entity.RoleEmployee,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Users().Create(ctx, u); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, user.ErrDuplicateEmail
		}
		return nil, s.wrap("register", err)
	}
	s.audit.Log(audit.Entry{Event: audit.Register, ActorID: u.ID, TargetType: "user", TargetID: u.ID})

	s.background.Add(1)
	go func(to, name string) {
		defer s.background.Done()
		if err := s.mail.SendWelcome(context.Background(), to, name); err != nil {
			s.logger.Warnw("welcome email failed", "to", to, "err", err)
		}
	}(u.Email, u.FullName)

	return s.session(u)
}

// Wait blocks until background emails have finished.
func (s *Service) Wait() { s.background.Wait() }

type LoginInput struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// Login checks credentials and records the login time.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	in.Email = user.NormalizeEmail(in.Email)
	if in.Email == "" || in.Password == "" {
		return nil, apperr.Validation("Please provide email and password", nil)
	}
	u, err := s.store.Users().GetByEmail(ctx, in.Email)
	if errors.Is(err, store.ErrNotFound) {
		s.audit.Log(audit.Entry{Event: audit.LoginFailure, TargetType: "user", Details: map[string]any{"email": in.Email}})
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, s.wrap("login", err)
	}
	if !u.IsActive {
		return nil, ErrDeactivated
	}
	if !s.hasher.Verify(u.PasswordHash, in.Password) {
		s.audit.Log(audit.Entry{Event: audit.LoginFailure, TargetType: "user", TargetID: u.ID,
			Details: map[string]any{"reason": "invalid_credentials"}})
		return nil, ErrBadCredentials
	}
	now := s.Now()
	u.LastLogin = &now
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, s.wrap("login", err)
	}
	s.audit.Log(audit.Entry{Event: audit.LoginSuccess, ActorID: u.ID, TargetType: "user", TargetID: u.ID})
	return s.session(u)
}

// Authenticate resolves a session token to a live, active user.
func (s *Service) Authenticate(ctx context.Context, raw string) (*entity.User, error) {
	id, err := s.tokens.Parse(raw)
	if err != nil {
		return nil, apperr.NotAuthenticated("Invalid token.")
	}
	u, err := s.store.Users().GetByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotAuthenticated("Token is not valid. User not found.")
	}
	if err != nil {
		return nil, s.wrap("authenticate", err)
	}
	if !u.IsActive {
		return nil, ErrDeactivated
	}
	return u, nil
}

// ForgotPassword stores a reset token and mails the link. The outcome is the
// same whether or not the address is known. If the email cannot be sent the
// token is cleared again and the failure is reported.
func (s *Service) ForgotPassword(ctx context.Context, email string) (string, error) {
	email = user.NormalizeEmail(email)
	if email == "" {
		return "", apperr.Field("email", "Please provide email address")
	}
	u, err := s.store.Users().GetByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return forgotMessage, nil
	}
	if err != nil {
		return "", s.wrap("forgot password", err)
	}

	token, err := utilities.RandomHex(32)
	if err != nil {
		return "", s.wrap("forgot password", err)
	}
	hash := utilities.SHA256Hex(token)
	exp := s.Now().Add(ResetTTL)
	u.ResetTokenHash = &hash
	u.ResetTokenExpiry = &exp
	if err := s.store.Users().Update(ctx, u); err != nil {
		return "", s.wrap("forgot password", err)
	}

	if err := s.mail.SendPasswordReset(ctx, u.Email, s.ClientURL+"/reset-password/"+token); err != nil {
		u.ResetTokenHash = nil
		u.ResetTokenExpiry = nil
		if clearErr := s.store.Users().Update(ctx, u); clearErr != nil {
			s.logger.Errorw("clear reset token failed", "user", u.ID, "err", clearErr)
		}
		return "", apperr.Internal("Error sending password reset email", err)
	}
	s.audit.Log(audit.Entry{Event: audit.PasswordResetRequest, ActorID: u.ID, TargetType: "user", TargetID: u.ID})
	return forgotMessage, nil
}

// ResetPassword sets a new password for the holder of a valid reset token and
// signs them in.
func (s *Service) ResetPassword(ctx context.Context, token, password string) (*Session, error) {
	if len(password) < 6 {
		return nil, apperr.Field("password", "Password must be at least 6 characters")
	}
	u, err := s.store.Users().GetByResetToken(ctx, utilities.SHA256Hex(token), s.Now())
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidReset
	}
	if err != nil {
		return nil, s.wrap("reset password", err)
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, s.wrap("reset password", err)
	}
	u.PasswordHash = hash
	u.ResetTokenHash = nil
	u.ResetTokenExpiry = nil
	u.UpdatedAt = s.Now()
	if err := s.store.Users().Update(ctx, u); err != nil {
		return nil, s.wrap("reset password", err)
	}
	s.audit.Log(audit.Entry{Event: audit.PasswordReset, ActorID: u.ID, TargetType: "user", TargetID: u.ID})
	return s.session(u)
}

func (s *Service) session(u *entity.User) (*Session, error) {
	tok, exp, err := s.tokens.Issue(u.ID, string(u.Role))
	if err != nil {
		return nil, s.wrap("issue token", err)
	}
	return &Session{User: u, Token: tok, ExpiresAt: exp}, nil
}

func (s *Service) wrap(op string, err error) error {
	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}
	s.logger.Errorw(op+" failed", "err", err)
	return apperr.Internal("Error processing authentication request", fmt.Errorf("%s: %w", op, err))
}
