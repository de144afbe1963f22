package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
	"github.com/ovaphlow/worknest/service-core-go/pkg/database"
)

// UserRepo provides data access for the users table using sqlx. It works on a
// *sqlx.DB or a *sqlx.Tx.
type UserRepo struct {
	db sqlx.ExtContext
}

func NewUserRepo(db sqlx.ExtContext) *UserRepo { return &UserRepo{db: db} }

const userColumns = `id, full_name, email, password_hash, role, organization_id, is_active,
	is_deleted, deleted_by, deleted_at, created_by, updated_by, last_login,
	reset_token_hash, reset_token_expires_at, created_at, updated_at`

// EnsureTable creates the users table if not exists (idempotent).
// This is a convenience for early development; prefer migrations in production.
func (r *UserRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE EXTENSION IF NOT EXISTS citext;
CREATE TABLE IF NOT EXISTS users (
  id VARCHAR(32) PRIMARY KEY,
  full_name VARCHAR(50) NOT NULL,
  email CITEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'employee' CHECK (role IN ('employee','hr','admin','superadmin')),
  organization_id VARCHAR(32),
  is_active BOOLEAN NOT NULL DEFAULT true,
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  deleted_by VARCHAR(32),
  deleted_at TIMESTAMPTZ,
  created_by VARCHAR(32),
  updated_by VARCHAR(32),
  last_login TIMESTAMPTZ,
  reset_token_hash TEXT,
  reset_token_expires_at TIMESTAMPTZ,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
-- email is unique among live accounts only; deleted rows keep theirs
CREATE UNIQUE INDEX IF NOT EXISTS uq_users_email_live ON users(email) WHERE is_deleted = false;
CREATE INDEX IF NOT EXISTS idx_users_organization ON users(organization_id);
CREATE INDEX IF NOT EXISTS idx_users_reset_token ON users(reset_token_hash) WHERE reset_token_hash IS NOT NULL;
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new user row. ID and timestamps must be set by the caller.
func (r *UserRepo) Create(ctx context.Context, u *entity.User) error {
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :full_name, :email, :password_hash, :role, :organization_id, :is_active,
		:is_deleted, :deleted_by, :deleted_at, :created_by, :updated_by, :last_login,
		:reset_token_hash, :reset_token_expires_at, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, u); err != nil {
		return translate(err)
	}
	return nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string, opts ...store.ReadOption) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE id = $1` + liveOnly(opts)
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, q, id); err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// GetByEmail returns a user matched by email (case-insensitive due to citext).
// When deleted rows are included the live row wins, then the newest.
func (r *UserRepo) GetByEmail(ctx context.Context, email string, opts ...store.ReadOption) (*entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE email = $1` + liveOnly(opts) +
		` ORDER BY is_deleted ASC, created_at DESC LIMIT 1`
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, q, email); err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// GetByResetToken returns the live user holding an unexpired reset token.
func (r *UserRepo) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*entity.User, error) {
	const q = `SELECT ` + userColumns + ` FROM users
		WHERE reset_token_hash = $1 AND reset_token_expires_at > $2 AND is_deleted = false`
	var row entity.User
	if err := sqlx.GetContext(ctx, r.db, &row, q, tokenHash, now); err != nil {
		return nil, translate(err)
	}
	return &row, nil
}

// List returns users newest first.
func (r *UserRepo) List(ctx context.Context, f store.UserFilter, opts ...store.ReadOption) ([]entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE true` + liveOnly(opts)
	var args []any
	if f.OrganizationID != nil {
		args = append(args, *f.OrganizationID)
		q += fmt.Sprintf(" AND organization_id = $%d", len(args))
	}
	q += ` ORDER BY created_at DESC`
	out := []entity.User{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByIDs returns the live users among ids, in no particular order.
func (r *UserRepo) ListByIDs(ctx context.Context, ids []string) ([]entity.User, error) {
	out := []entity.User{}
	if len(ids) == 0 {
		return out, nil
	}
	const q = `SELECT ` + userColumns + ` FROM users WHERE id = ANY($1) AND is_deleted = false`
	if err := sqlx.SelectContext(ctx, r.db, &out, q, pq.Array(ids)); err != nil {
		return nil, err
	}
	return out, nil
}

// Update writes every mutable column of u.
func (r *UserRepo) Update(ctx context.Context, u *entity.User) error {
	const q = `UPDATE users SET full_name=:full_name, email=:email, password_hash=:password_hash,
		role=:role, organization_id=:organization_id, is_active=:is_active, is_deleted=:is_deleted,
		deleted_by=:deleted_by, deleted_at=:deleted_at, updated_by=:updated_by, last_login=:last_login,
		reset_token_hash=:reset_token_hash, reset_token_expires_at=:reset_token_expires_at,
		updated_at=:updated_at
		WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, u)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// SoftDeleteByOrganization soft deletes every live user of orgID.
func (r *UserRepo) SoftDeleteByOrganization(ctx context.Context, orgID, actorID string, at time.Time) (int64, error) {
	const q = `UPDATE users SET is_deleted=true, is_active=false, deleted_by=$2, deleted_at=$3,
		updated_by=$2, updated_at=$3
		WHERE organization_id=$1 AND is_deleted=false`
	res, err := r.db.ExecContext(ctx, q, orgID, actorID, at)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func liveOnly(opts []store.ReadOption) string {
	if store.Apply(opts).IncludeDeleted {
		return ""
	}
	return " AND is_deleted = false"
}

func translate(err error) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return store.ErrNotFound
	case database.IsUniqueViolation(err):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}

func affected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
