package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/worknest/service-core-go/internal/invite/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/pkg/database"
)

type InviteRepo struct {
	db sqlx.ExtContext
}

func NewInviteRepo(db sqlx.ExtContext) *InviteRepo { return &InviteRepo{db: db} }

const inviteColumns = `id, email, organization_id, role, invited_by, token_hash, expires_at,
	is_accepted, accepted_at, accepted_by, created_at, updated_at`

// EnsureTable creates the invites table. The partial unique index allows one
// unaccepted invite per (email, organization).
func (r *InviteRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS invites (
  id VARCHAR(32) PRIMARY KEY,
  email CITEXT NOT NULL,
  organization_id VARCHAR(32) NOT NULL REFERENCES organizations(id),
  role TEXT NOT NULL CHECK (role IN ('employee','hr','admin')),
  invited_by VARCHAR(32) NOT NULL REFERENCES users(id),
  token_hash TEXT NOT NULL UNIQUE,
  expires_at TIMESTAMPTZ NOT NULL,
  is_accepted BOOLEAN NOT NULL DEFAULT false,
  accepted_at TIMESTAMPTZ,
  accepted_by VARCHAR(32),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS uq_invites_pending ON invites(email, organization_id) WHERE is_accepted = false;
CREATE INDEX IF NOT EXISTS idx_invites_expires ON invites(expires_at) WHERE is_accepted = false;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *InviteRepo) Create(ctx context.Context, inv *entity.Invite) error {
	const q = `INSERT INTO invites (` + inviteColumns + `)
		VALUES (:id, :email, :organization_id, :role, :invited_by, :token_hash, :expires_at,
		:is_accepted, :accepted_at, :accepted_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, inv); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
		}
		return err
	}
	return nil
}

func (r *InviteRepo) GetByID(ctx context.Context, id string) (*entity.Invite, error) {
	const q = `SELECT ` + inviteColumns + ` FROM invites WHERE id = $1`
	return r.get(ctx, q, id)
}

// FindValidByToken returns the unaccepted, unexpired invite with tokenHash.
func (r *InviteRepo) FindValidByToken(ctx context.Context, tokenHash string, now time.Time) (*entity.Invite, error) {
	const q = `SELECT ` + inviteColumns + ` FROM invites
		WHERE token_hash = $1 AND is_accepted = false AND expires_at > $2`
	return r.get(ctx, q, tokenHash, now)
}

func (r *InviteRepo) ListPending(ctx context.Context, orgID string, now time.Time) ([]entity.Invite, error) {
	const q = `SELECT ` + inviteColumns + ` FROM invites
		WHERE organization_id = $1 AND is_accepted = false AND expires_at > $2
		ORDER BY created_at DESC`
	out := []entity.Invite{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, orgID, now); err != nil {
		return nil, err
	}
	return out, nil
}

// MarkAccepted only touches unaccepted rows so a second acceptance of the same
// invite reports store.ErrNotFound.
func (r *InviteRepo) MarkAccepted(ctx context.Context, id, userID string, at time.Time) error {
	const q = `UPDATE invites SET is_accepted = true, accepted_at = $2, accepted_by = $3, updated_at = $2
		WHERE id = $1 AND is_accepted = false`
	res, err := r.db.ExecContext(ctx, q, id, at, userID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *InviteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invites WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeleteExpired purges unaccepted invites past their expiry.
func (r *InviteRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM invites WHERE is_accepted = false AND expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *InviteRepo) DeleteExpiredFor(ctx context.Context, email, orgID string, now time.Time) error {
	const q = `DELETE FROM invites WHERE email = $1 AND organization_id = $2
		AND is_accepted = false AND expires_at <= $3`
	_, err := r.db.ExecContext(ctx, q, email, orgID, now)
	return err
}

func (r *InviteRepo) get(ctx context.Context, q string, args ...any) (*entity.Invite, error) {
	var inv entity.Invite
	if err := sqlx.GetContext(ctx, r.db, &inv, q, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &inv, nil
}
