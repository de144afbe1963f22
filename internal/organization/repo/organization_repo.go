package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/pkg/database"
)

// OrganizationRepo reads and writes organizations together with their
// members table.
type OrganizationRepo struct {
	db sqlx.ExtContext
}

func NewOrganizationRepo(db sqlx.ExtContext) *OrganizationRepo { return &OrganizationRepo{db: db} }

const orgColumns = `id, name, description, email, phone, address, website, industry, size,
	status, logo, owner_id, is_deleted, deleted_by, deleted_at, created_by, updated_by,
	created_at, updated_at`

const memberColumns = `organization_id, user_id, role, joined_at, is_active, position`

// EnsureTable creates organizations and organization_members if missing.
func (r *OrganizationRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS organizations (
  id VARCHAR(32) PRIMARY KEY,
  name VARCHAR(100) NOT NULL,
  description VARCHAR(500) NOT NULL DEFAULT '',
  email CITEXT NOT NULL,
  phone TEXT NOT NULL DEFAULT '',
  address TEXT NOT NULL DEFAULT '',
  website TEXT NOT NULL DEFAULT '',
  industry TEXT NOT NULL DEFAULT '',
  size INT CHECK (size IS NULL OR size >= 1),
  status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active','inactive')),
  logo TEXT NOT NULL DEFAULT '',
  owner_id VARCHAR(32) REFERENCES users(id),
  is_deleted BOOLEAN NOT NULL DEFAULT false,
  deleted_by VARCHAR(32),
  deleted_at TIMESTAMPTZ,
  created_by VARCHAR(32),
  updated_by VARCHAR(32),
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_organizations_owner ON organizations(owner_id);
CREATE TABLE IF NOT EXISTS organization_members (
  organization_id VARCHAR(32) NOT NULL REFERENCES organizations(id),
  user_id VARCHAR(32) NOT NULL REFERENCES users(id),
  role TEXT NOT NULL CHECK (role IN ('employee','hr','admin')),
  joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  is_active BOOLEAN NOT NULL DEFAULT true,
  position INT NOT NULL,
  PRIMARY KEY (organization_id, user_id)
);
CREATE INDEX IF NOT EXISTS idx_organization_members_user ON organization_members(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts the organization row followed by its members in order.
func (r *OrganizationRepo) Create(ctx context.Context, o *entity.Organization) error {
	const q = `INSERT INTO organizations (` + orgColumns + `)
		VALUES (:id, :name, :description, :email, :phone, :address, :website, :industry, :size,
		:status, :logo, :owner_id, :is_deleted, :deleted_by, :deleted_at, :created_by, :updated_by,
		:created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, o); err != nil {
		return translate(err)
	}
	for i := range o.Members {
		o.Members[i].OrganizationID = o.ID
		o.Members[i].Position = i
		if err := r.insertMember(ctx, o.Members[i]); err != nil {
			return err
		}
	}
	return nil
}

func (r *OrganizationRepo) GetByID(ctx context.Context, id string, opts ...store.ReadOption) (*entity.Organization, error) {
	q := `SELECT ` + orgColumns + ` FROM organizations WHERE id = $1` + liveOnly(opts)
	var o entity.Organization
	if err := sqlx.GetContext(ctx, r.db, &o, q, id); err != nil {
		return nil, translate(err)
	}
	orgs := []entity.Organization{o}
	if err := r.loadMembers(ctx, orgs); err != nil {
		return nil, err
	}
	return &orgs[0], nil
}

func (r *OrganizationRepo) List(ctx context.Context, opts ...store.ReadOption) ([]entity.Organization, error) {
	q := `SELECT ` + orgColumns + ` FROM organizations WHERE true` + liveOnly(opts) + ` ORDER BY created_at DESC`
	return r.selectWithMembers(ctx, q)
}

func (r *OrganizationRepo) ListDeleted(ctx context.Context) ([]entity.Organization, error) {
	const q = `SELECT ` + orgColumns + ` FROM organizations WHERE is_deleted = true ORDER BY deleted_at DESC`
	return r.selectWithMembers(ctx, q)
}

// ListOwnedBy returns the live organizations owned by userID.
func (r *OrganizationRepo) ListOwnedBy(ctx context.Context, userID string) ([]entity.Organization, error) {
	const q = `SELECT ` + orgColumns + ` FROM organizations WHERE owner_id = $1 AND is_deleted = false ORDER BY created_at`
	return r.selectWithMembers(ctx, q, userID)
}

// ListWithMember returns the organizations listing userID as a member.
func (r *OrganizationRepo) ListWithMember(ctx context.Context, userID string, opts ...store.ReadOption) ([]entity.Organization, error) {
	q := `SELECT ` + orgColumns + ` FROM organizations o
		WHERE EXISTS (SELECT 1 FROM organization_members m WHERE m.organization_id = o.id AND m.user_id = $1)` +
		liveOnly(opts) + ` ORDER BY o.created_at`
	return r.selectWithMembers(ctx, q, userID)
}

// Update writes the organization row. Members are written through the
// member methods.
func (r *OrganizationRepo) Update(ctx context.Context, o *entity.Organization) error {
	const q = `UPDATE organizations SET name=:name, description=:description, email=:email,
		phone=:phone, address=:address, website=:website, industry=:industry, size=:size,
		status=:status, logo=:logo, owner_id=:owner_id, is_deleted=:is_deleted,
		deleted_by=:deleted_by, deleted_at=:deleted_at, updated_by=:updated_by, updated_at=:updated_at
		WHERE id=:id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, o)
	if err != nil {
		return translate(err)
	}
	return affected(res)
}

// AddMember appends m after the current last member.
func (r *OrganizationRepo) AddMember(ctx context.Context, m entity.Member) error {
	const q = `SELECT COALESCE(MAX(position) + 1, 0) FROM organization_members WHERE organization_id = $1`
	if err := sqlx.GetContext(ctx, r.db, &m.Position, q, m.OrganizationID); err != nil {
		return err
	}
	return r.insertMember(ctx, m)
}

func (r *OrganizationRepo) UpdateMember(ctx context.Context, m entity.Member) error {
	const q = `UPDATE organization_members SET role=:role, is_active=:is_active
		WHERE organization_id=:organization_id AND user_id=:user_id`
	res, err := sqlx.NamedExecContext(ctx, r.db, q, m)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *OrganizationRepo) RemoveMember(ctx context.Context, orgID, userID string) error {
	const q = `DELETE FROM organization_members WHERE organization_id = $1 AND user_id = $2`
	res, err := r.db.ExecContext(ctx, q, orgID, userID)
	if err != nil {
		return err
	}
	return affected(res)
}

func (r *OrganizationRepo) insertMember(ctx context.Context, m entity.Member) error {
	const q = `INSERT INTO organization_members (` + memberColumns + `)
		VALUES (:organization_id, :user_id, :role, :joined_at, :is_active, :position)`
	if _, err := sqlx.NamedExecContext(ctx, r.db, q, m); err != nil {
		return translate(err)
	}
	return nil
}

func (r *OrganizationRepo) selectWithMembers(ctx context.Context, q string, args ...any) ([]entity.Organization, error) {
	out := []entity.Organization{}
	if err := sqlx.SelectContext(ctx, r.db, &out, q, args...); err != nil {
		return nil, err
	}
	if err := r.loadMembers(ctx, out); err != nil {
		return nil, err
	}
	return out, nil
}

// loadMembers fills Members for every organization in one query.
func (r *OrganizationRepo) loadMembers(ctx context.Context, orgs []entity.Organization) error {
	if len(orgs) == 0 {
		return nil
	}
	ids := make([]string, len(orgs))
	index := make(map[string]int, len(orgs))
	for i := range orgs {
		ids[i] = orgs[i].ID
		index[orgs[i].ID] = i
		orgs[i].Members = []entity.Member{}
	}
	const q = `SELECT ` + memberColumns + ` FROM organization_members
		WHERE organization_id = ANY($1) ORDER BY organization_id, position`
	var rows []entity.Member
	if err := sqlx.SelectContext(ctx, r.db, &rows, q, pq.Array(ids)); err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	for _, m := range rows {
		i := index[m.OrganizationID]
		orgs[i].Members = append(orgs[i].Members, m)
	}
	return nil
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
