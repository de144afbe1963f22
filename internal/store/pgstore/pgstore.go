// Package pgstore implements store.Store on Postgres through the sqlx repos.
package pgstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	inviterepo "github.com/ovaphlow/worknest/service-core-go/internal/invite/repo"
	orgrepo "github.com/ovaphlow/worknest/service-core-go/internal/organization/repo"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	userrepo "github.com/ovaphlow/worknest/service-core-go/internal/user/repo"
	"github.com/ovaphlow/worknest/service-core-go/pkg/database"
)

type Store struct {
	db *sqlx.DB
	repos
}

type repos struct {
	users   *userrepo.UserRepo
	orgs    *orgrepo.OrganizationRepo
	invites *inviterepo.InviteRepo
}

func newRepos(db sqlx.ExtContext) repos {
	return repos{
		users:   userrepo.NewUserRepo(db),
		orgs:    orgrepo.NewOrganizationRepo(db),
		invites: inviterepo.NewInviteRepo(db),
	}
}

func (r repos) Users() store.Users                 { return r.users }
func (r repos) Organizations() store.Organizations { return r.orgs }
func (r repos) Invites() store.Invites             { return r.invites }

func New(db *sqlx.DB) *Store {
	return &Store{db: db, repos: newRepos(db)}
}

// InTx runs fn with repositories bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newRepos(tx))
	})
}

// EnsureSchema creates every table in dependency order.
func (s *Store) EnsureSchema(ctx context.Context) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		r := newRepos(tx)
		if err := r.users.EnsureTable(ctx); err != nil {
			return err
		}
		if err := r.orgs.EnsureTable(ctx); err != nil {
			return err
		}
		return r.invites.EnsureTable(ctx)
	})
}

var _ store.Store = (*Store)(nil)
