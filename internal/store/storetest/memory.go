// Package storetest provides an in-memory store.Store for tests. InTx works on
// a copy of the data and swaps it in only when fn succeeds, so rollback
// behaves like the Postgres store.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	inviteentity "github.com/ovaphlow/worknest/service-core-go/internal/invite/entity"
	orgentity "github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

type Memory struct {
	mu   sync.Mutex
	data *dataset
	fail map[string]error
}

func New() *Memory {
	return &Memory{data: newDataset(), fail: map[string]error{}}
}

// FailNext makes the next call of op (for example "organizations.RemoveMember")
// return err.
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail[op] = err
}

func (m *Memory) Users() store.Users                 { return users{view{m: m}} }
func (m *Memory) Organizations() store.Organizations { return orgs{view{m: m}} }
func (m *Memory) Invites() store.Invites             { return invites{view{m: m}} }

// InTx holds the store lock for the whole of fn. fn must only use tx.
func (m *Memory) InTx(ctx context.Context, fn func(tx store.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	work := m.data.clone()
	if err := fn(txView{view{m: m, d: work}}); err != nil {
		return err
	}
	m.data = work
	return nil
}

var _ store.Store = (*Memory)(nil)

type dataset struct {
	users   map[string]userentity.User
	orgs    map[string]orgentity.Organization
	invites map[string]inviteentity.Invite
	seq     map[string]int
	next    int
}

func newDataset() *dataset {
	return &dataset{
		users:   map[string]userentity.User{},
		orgs:    map[string]orgentity.Organization{},
		invites: map[string]inviteentity.Invite{},
		seq:     map[string]int{},
	}
}

func (d *dataset) clone() *dataset {
	c := newDataset()
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.orgs {
		c.orgs[k] = copyOrg(v)
	}
	for k, v := range d.invites {
		c.invites[k] = v
	}
	for k, v := range d.seq {
		c.seq[k] = v
	}
	c.next = d.next
	return c
}

func (d *dataset) stamp(id string) {
	d.next++
	d.seq[id] = d.next
}

func copyOrg(o orgentity.Organization) orgentity.Organization {
	o.Members = append([]orgentity.Member{}, o.Members...)
	return o
}

// view runs an operation either on the committed data under the lock or on a
// transaction's working copy (lock already held by InTx).
type view struct {
	m *Memory
	d *dataset
}

func (v view) do(op string, fn func(d *dataset) error) error {
	if v.d != nil {
		if err := v.m.takeFailure(op); err != nil {
			return err
		}
		return fn(v.d)
	}
	v.m.mu.Lock()
	defer v.m.mu.Unlock()
	if err := v.m.takeFailure(op); err != nil {
		return err
	}
	return fn(v.m.data)
}

func (m *Memory) takeFailure(op string) error {
	if err, ok := m.fail[op]; ok {
		delete(m.fail, op)
		return err
	}
	return nil
}

type txView struct{ v view }

func (t txView) Users() store.Users                 { return users{t.v} }
func (t txView) Organizations() store.Organizations { return orgs{t.v} }
func (t txView) Invites() store.Invites             { return invites{t.v} }

// newestFirst sorts ids by creation time then insertion order, newest first.
func newestFirst(d *dataset, ids []string, created func(string) time.Time) {
	sort.SliceStable(ids, func(i, j int) bool {
		ci, cj := created(ids[i]), created(ids[j])
		if !ci.Equal(cj) {
			return ci.After(cj)
		}
		return d.seq[ids[i]] > d.seq[ids[j]]
	})
}

type users struct{ v view }

func (r users) Create(ctx context.Context, u *userentity.User) error {
	return r.v.do("users.Create", func(d *dataset) error {
		if _, ok := d.users[u.ID]; ok {
			return fmt.Errorf("%w: id %s", store.ErrDuplicate, u.ID)
		}
		if !u.IsDeleted {
			for _, other := range d.users {
				if !other.IsDeleted && strings.EqualFold(other.Email, u.Email) {
					return fmt.Errorf("%w: email %s", store.ErrDuplicate, u.Email)
				}
			}
		}
		d.users[u.ID] = *u
		d.stamp(u.ID)
		return nil
	})
}

func (r users) GetByID(ctx context.Context, id string, opts ...store.ReadOption) (*userentity.User, error) {
	o := store.Apply(opts)
	var out *userentity.User
	err := r.v.do("users.GetByID", func(d *dataset) error {
		u, ok := d.users[id]
		if !ok || (u.IsDeleted && !o.IncludeDeleted) {
			return store.ErrNotFound
		}
		out = &u
		return nil
	})
	return out, err
}

func (r users) GetByEmail(ctx context.Context, email string, opts ...store.ReadOption) (*userentity.User, error) {
	o := store.Apply(opts)
	var out *userentity.User
	err := r.v.do("users.GetByEmail", func(d *dataset) error {
		var ids []string
		for id, u := range d.users {
			if strings.EqualFold(u.Email, email) && (o.IncludeDeleted || !u.IsDeleted) {
				ids = append(ids, id)
			}
		}
		if len(ids) == 0 {
			return store.ErrNotFound
		}
		newestFirst(d, ids, func(id string) time.Time { return d.users[id].CreatedAt })
		sort.SliceStable(ids, func(i, j int) bool { return !d.users[ids[i]].IsDeleted && d.users[ids[j]].IsDeleted })
		u := d.users[ids[0]]
		out = &u
		return nil
	})
	return out, err
}

func (r users) GetByResetToken(ctx context.Context, tokenHash string, now time.Time) (*userentity.User, error) {
	var out *userentity.User
	err := r.v.do("users.GetByResetToken", func(d *dataset) error {
		for _, u := range d.users {
			if u.IsDeleted || u.ResetTokenHash == nil || *u.ResetTokenHash != tokenHash {
				continue
			}
			if u.ResetTokenExpiry == nil || !u.ResetTokenExpiry.After(now) {
				continue
			}
			out = &u
			return nil
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r users) List(ctx context.Context, f store.UserFilter, opts ...store.ReadOption) ([]userentity.User, error) {
	o := store.Apply(opts)
	out := []userentity.User{}
	err := r.v.do("users.List", func(d *dataset) error {
		var ids []string
		for id, u := range d.users {
			if u.IsDeleted && !o.IncludeDeleted {
				continue
			}
			if f.OrganizationID != nil && !u.InOrganization(*f.OrganizationID) {
				continue
			}
			ids = append(ids, id)
		}
		newestFirst(d, ids, func(id string) time.Time { return d.users[id].CreatedAt })
		for _, id := range ids {
			out = append(out, d.users[id])
		}
		return nil
	})
	return out, err
}

func (r users) ListByIDs(ctx context.Context, ids []string) ([]userentity.User, error) {
	out := []userentity.User{}
	err := r.v.do("users.ListByIDs", func(d *dataset) error {
		for _, id := range ids {
			if u, ok := d.users[id]; ok && !u.IsDeleted {
				out = append(out, u)
			}
		}
		return nil
	})
	return out, err
}

func (r users) Update(ctx context.Context, u *userentity.User) error {
	return r.v.do("users.Update", func(d *dataset) error {
		if _, ok := d.users[u.ID]; !ok {
			return store.ErrNotFound
		}
		if !u.IsDeleted {
			for id, other := range d.users {
				if id != u.ID && !other.IsDeleted && strings.EqualFold(other.Email, u.Email) {
					return fmt.Errorf("%w: email %s", store.ErrDuplicate, u.Email)
				}
			}
		}
		d.users[u.ID] = *u
		return nil
	})
}

func (r users) SoftDeleteByOrganization(ctx context.Context, orgID, actorID string, at time.Time) (int64, error) {
	var n int64
	err := r.v.do("users.SoftDeleteByOrganization", func(d *dataset) error {
		for id, u := range d.users {
			if u.IsDeleted || !u.InOrganization(orgID) {
				continue
			}
			actor, ts := actorID, at
			u.IsDeleted = true
			u.IsActive = false
			u.DeletedBy = &actor
			u.DeletedAt = &ts
			u.UpdatedBy = &actor
			u.UpdatedAt = at
			d.users[id] = u
			n++
		}
		return nil
	})
	return n, err
}

type orgs struct{ v view }

func (r orgs) Create(ctx context.Context, o *orgentity.Organization) error {
	return r.v.do("organizations.Create", func(d *dataset) error {
		if _, ok := d.orgs[o.ID]; ok {
			return fmt.Errorf("%w: id %s", store.ErrDuplicate, o.ID)
		}
		for i := range o.Members {
			o.Members[i].OrganizationID = o.ID
			o.Members[i].Position = i
		}
		d.orgs[o.ID] = copyOrg(*o)
		d.stamp(o.ID)
		return nil
	})
}

func (r orgs) GetByID(ctx context.Context, id string, opts ...store.ReadOption) (*orgentity.Organization, error) {
	o := store.Apply(opts)
	var out *orgentity.Organization
	err := r.v.do("organizations.GetByID", func(d *dataset) error {
		org, ok := d.orgs[id]
		if !ok || (org.IsDeleted && !o.IncludeDeleted) {
			return store.ErrNotFound
		}
		c := copyOrg(org)
		out = &c
		return nil
	})
	return out, err
}

func (r orgs) List(ctx context.Context, opts ...store.ReadOption) ([]orgentity.Organization, error) {
	o := store.Apply(opts)
	return r.collect("organizations.List", func(org orgentity.Organization) bool {
		return o.IncludeDeleted || !org.IsDeleted
	})
}

func (r orgs) ListDeleted(ctx context.Context) ([]orgentity.Organization, error) {
	return r.collect("organizations.ListDeleted", func(org orgentity.Organization) bool { return org.IsDeleted })
}

func (r orgs) ListOwnedBy(ctx context.Context, userID string) ([]orgentity.Organization, error) {
	return r.collect("organizations.ListOwnedBy", func(org orgentity.Organization) bool {
		return !org.IsDeleted && org.IsOwner(userID)
	})
}

func (r orgs) ListWithMember(ctx context.Context, userID string, opts ...store.ReadOption) ([]orgentity.Organization, error) {
	o := store.Apply(opts)
	return r.collect("organizations.ListWithMember", func(org orgentity.Organization) bool {
		return (o.IncludeDeleted || !org.IsDeleted) && org.Member(userID) != nil
	})
}

func (r orgs) collect(op string, keep func(orgentity.Organization) bool) ([]orgentity.Organization, error) {
	out := []orgentity.Organization{}
	err := r.v.do(op, func(d *dataset) error {
		var ids []string
		for id, org := range d.orgs {
			if keep(org) {
				ids = append(ids, id)
			}
		}
		newestFirst(d, ids, func(id string) time.Time { return d.orgs[id].CreatedAt })
		for _, id := range ids {
			out = append(out, copyOrg(d.orgs[id]))
		}
		return nil
	})
	return out, err
}

func (r orgs) Update(ctx context.Context, o *orgentity.Organization) error {
	return r.v.do("organizations.Update", func(d *dataset) error {
		cur, ok := d.orgs[o.ID]
		if !ok {
			return store.ErrNotFound
		}
		next := copyOrg(*o)
		next.Members = cur.Members
		d.orgs[o.ID] = next
		return nil
	})
}

func (r orgs) AddMember(ctx context.Context, m orgentity.Member) error {
	return r.v.do("organizations.AddMember", func(d *dataset) error {
		org, ok := d.orgs[m.OrganizationID]
		if !ok {
			return store.ErrNotFound
		}
		if org.Member(m.UserID) != nil {
			return fmt.Errorf("%w: member %s", store.ErrDuplicate, m.UserID)
		}
		m.Position = 0
		if n := len(org.Members); n > 0 {
			m.Position = org.Members[n-1].Position + 1
		}
		org.Members = append(org.Members, m)
		d.orgs[org.ID] = org
		return nil
	})
}

func (r orgs) UpdateMember(ctx context.Context, m orgentity.Member) error {
	return r.v.do("organizations.UpdateMember", func(d *dataset) error {
		org, ok := d.orgs[m.OrganizationID]
		if !ok {
			return store.ErrNotFound
		}
		cur := org.Member(m.UserID)
		if cur == nil {
			return store.ErrNotFound
		}
		cur.Role = m.Role
		cur.IsActive = m.IsActive
		d.orgs[org.ID] = org
		return nil
	})
}

func (r orgs) RemoveMember(ctx context.Context, orgID, userID string) error {
	return r.v.do("organizations.RemoveMember", func(d *dataset) error {
		org, ok := d.orgs[orgID]
		if !ok {
			return store.ErrNotFound
		}
		kept := org.Members[:0:0]
		for _, m := range org.Members {
			if m.UserID != userID {
				kept = append(kept, m)
			}
		}
		if len(kept) == len(org.Members) {
			return store.ErrNotFound
		}
		org.Members = kept
		d.orgs[orgID] = org
		return nil
	})
}

type invites struct{ v view }

func (r invites) Create(ctx context.Context, inv *inviteentity.Invite) error {
	return r.v.do("invites.Create", func(d *dataset) error {
		for _, other := range d.invites {
			if other.TokenHash == inv.TokenHash {
				return fmt.Errorf("%w: token", store.ErrDuplicate)
			}
			if !other.IsAccepted && other.OrganizationID == inv.OrganizationID && strings.EqualFold(other.Email, inv.Email) {
				return fmt.Errorf("%w: pending invite for %s", store.ErrDuplicate, inv.Email)
			}
		}
		d.invites[inv.ID] = *inv
		d.stamp(inv.ID)
		return nil
	})
}

func (r invites) GetByID(ctx context.Context, id string) (*inviteentity.Invite, error) {
	var out *inviteentity.Invite
	err := r.v.do("invites.GetByID", func(d *dataset) error {
		inv, ok := d.invites[id]
		if !ok {
			return store.ErrNotFound
		}
		out = &inv
		return nil
	})
	return out, err
}

func (r invites) FindValidByToken(ctx context.Context, tokenHash string, now time.Time) (*inviteentity.Invite, error) {
	var out *inviteentity.Invite
	err := r.v.do("invites.FindValidByToken", func(d *dataset) error {
		for _, inv := range d.invites {
			if inv.TokenHash == tokenHash && inv.Valid(now) {
				out = &inv
				return nil
			}
		}
		return store.ErrNotFound
	})
	return out, err
}

func (r invites) ListPending(ctx context.Context, orgID string, now time.Time) ([]inviteentity.Invite, error) {
	out := []inviteentity.Invite{}
	err := r.v.do("invites.ListPending", func(d *dataset) error {
		var ids []string
		for id, inv := range d.invites {
			if inv.OrganizationID == orgID && inv.Valid(now) {
				ids = append(ids, id)
			}
		}
		newestFirst(d, ids, func(id string) time.Time { return d.invites[id].CreatedAt })
		for _, id := range ids {
			out = append(out, d.invites[id])
		}
		return nil
	})
	return out, err
}

func (r invites) MarkAccepted(ctx context.Context, id, userID string, at time.Time) error {
	return r.v.do("invites.MarkAccepted", func(d *dataset) error {
		inv, ok := d.invites[id]
		if !ok || inv.IsAccepted {
			return store.ErrNotFound
		}
		by, ts := userID, at
		inv.IsAccepted = true
		inv.AcceptedAt = &ts
		inv.AcceptedBy = &by
		inv.UpdatedAt = at
		d.invites[id] = inv
		return nil
	})
}

func (r invites) Delete(ctx context.Context, id string) error {
	return r.v.do("invites.Delete", func(d *dataset) error {
		if _, ok := d.invites[id]; !ok {
			return store.ErrNotFound
		}
		delete(d.invites, id)
		return nil
	})
}

func (r invites) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.v.do("invites.DeleteExpired", func(d *dataset) error {
		for id, inv := range d.invites {
			if !inv.IsAccepted && !now.Before(inv.ExpiresAt) {
				delete(d.invites, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r invites) DeleteExpiredFor(ctx context.Context, email, orgID string, now time.Time) error {
	return r.v.do("invites.DeleteExpiredFor", func(d *dataset) error {
		for id, inv := range d.invites {
			if inv.IsAccepted || inv.OrganizationID != orgID || !strings.EqualFold(inv.Email, email) {
				continue
			}
			if !now.Before(inv.ExpiresAt) {
				delete(d.invites, id)
			}
		}
		return nil
	})
}
