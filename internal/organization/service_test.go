package organization_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/worknest/service-core-go/internal/access"
	"github.com/ovaphlow/worknest/service-core-go/internal/apperr"
	"github.com/ovaphlow/worknest/service-core-go/internal/audit"
	"github.com/ovaphlow/worknest/service-core-go/internal/organization"
	"github.com/ovaphlow/worknest/service-core-go/internal/organization/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	"github.com/ovaphlow/worknest/service-core-go/internal/store/storetest"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	st    *storetest.Memory
	svc   *organization.Service
	users *user.Service
	audit *audit.Memory
	root  *userentity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{st: storetest.New(), audit: &audit.Memory{}}
	hasher := user.BcryptHasher{Cost: bcrypt.MinCost}
	log := zap.NewNop().Sugar()
	n := 0
	newID := func() string {
		n++
		return fmt.Sprintf("id%03d", n)
	}
	now := func() time.Time { return t0 }

	f.svc = organization.NewService(f.st, hasher, f.audit, log)
	f.svc.Now, f.svc.NewID = now, newID
	f.users = user.NewService(f.st, hasher, f.audit, log)
	f.users.Now, f.users.NewID = now, newID

	f.root = &userentity.User{ID: "root", FullName: "Root", Email: "root@worknest.test", Role: userentity.RoleSuperadmin, IsActive: true, CreatedAt: t0}
	if err := f.st.Users().Create(context.Background(), f.root); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) mustCreateUser(t *testing.T, email string, role userentity.Role) *userentity.User {
	t.Helper()
	u, err := f.users.Create(context.Background(), f.root, user.CreateInput{FullName: email, Email: email, Password: "secret1", Role: role})
	if err != nil {
		t.Fatalf("create user %s: %v", email, err)
	}
	return u
}

func (f *fixture) reload(t *testing.T, id string) *userentity.User {
	t.Helper()
	u, err := f.st.Users().GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("reload %s: %v", id, err)
	}
	return u
}

func wantKind(t *testing.T, err error, k apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", k)
	}
	if got := apperr.KindOf(err); got != k {
		t.Fatalf("expected %s error, got %s (%v)", k, got, err)
	}
}

// acme runs the documented creation scenario and returns the organization and
// its owner as stored.
func (f *fixture) acme(t *testing.T) (*entity.Organization, *userentity.User) {
	t.Helper()
	admin := f.mustCreateUser(t, "admin@acme.test", userentity.RoleAdmin)
	org, err := f.svc.Create(context.Background(), f.root, organization.CreateInput{
		Name: "Acme", Email: "hello@acme.test", OwnerID: admin.ID,
	})
	if err != nil {
		t.Fatalf("create acme: %v", err)
	}
	return org, f.reload(t, admin.ID)
}

func TestCreate_OwnerBecomesAdminMember(t *testing.T) {
	f := newFixture(t)
	e := f.mustCreateUser(t, "a@b.com", userentity.RoleEmployee)
	org, admin := f.acme(t)

	if admin.OrganizationID == nil || *admin.OrganizationID != org.ID {
		t.Fatalf("owner organization = %v, want %s", admin.OrganizationID, org.ID)
	}
	if admin.Role != userentity.RoleAdmin {
		t.Fatalf("owner role = %s", admin.Role)
	}
	stored, err := f.st.Organizations().GetByID(context.Background(), org.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored.Members) != 1 {
		t.Fatalf("members = %d, want 1", len(stored.Members))
	}
	if m := stored.Members[0]; m.UserID != admin.ID || m.Role != userentity.RoleAdmin || !m.IsActive {
		t.Fatalf("unexpected member %+v", m)
	}
	if stored.Status != entity.StatusActive || !stored.IsOwner(admin.ID) {
		t.Fatalf("status=%s owner=%v", stored.Status, stored.OwnerID)
	}
	if f.reload(t, e.ID).OrganizationID != nil {
		t.Fatal("unrelated user was attached")
	}
}

func TestCreate_WithInlineOwner(t *testing.T) {
	f := newFixture(t)
	org, err := f.svc.Create(context.Background(), f.root, organization.CreateInput{
		Name:  "Globex",
		Email: "info@globex.test",
		Owner: &organization.NewOwner{FullName: "Hank", Email: "Hank@Globex.test", Password: "secret1"},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	owner, err := f.st.Users().GetByEmail(context.Background(), "hank@globex.test")
	if err != nil {
		t.Fatal(err)
	}
	if !org.IsOwner(owner.ID) || owner.Role != userentity.RoleAdmin || !owner.InOrganization(org.ID) {
		t.Fatalf("owner not linked: %+v", owner)
	}
}

func TestCreate_OwnerChecks(t *testing.T) {
	f := newFixture(t)
	_, admin := f.acme(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		actor *userentity.User
		in    organization.CreateInput
		kind  apperr.Kind
	}{
		{"not superadmin", admin, organization.CreateInput{Name: "X", Email: "x@x.test", OwnerID: "root"}, apperr.KindNotAuthorized},
		{"missing owner", f.root, organization.CreateInput{Name: "X", Email: "x@x.test"}, apperr.KindValidation},
		{"unknown owner", f.root, organization.CreateInput{Name: "X", Email: "x@x.test", OwnerID: "ghost"}, apperr.KindDependencyMissing},
		{"owner already affiliated", f.root, organization.CreateInput{Name: "X", Email: "x@x.test", OwnerID: admin.ID}, apperr.KindConflict},
		{"superadmin owner", f.root, organization.CreateInput{Name: "X", Email: "x@x.test", OwnerID: "root"}, apperr.KindValidation},
		{"bad size", f.root, organization.CreateInput{Name: "X", Email: "x@x.test", OwnerID: "root", Size: new(int)}, apperr.KindValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, tc.actor, tc.in)
			wantKind(t, err, tc.kind)
		})
	}
}

func TestCreate_RollsBackWhenOwnerLinkFails(t *testing.T) {
	f := newFixture(t)
	admin := f.mustCreateUser(t, "admin@acme.test", userentity.RoleAdmin)
	f.st.FailNext("users.Update", errors.New("write failed"))

	_, err := f.svc.Create(context.Background(), f.root, organization.CreateInput{Name: "Acme", Email: "a@acme.test", OwnerID: admin.ID})
	wantKind(t, err, apperr.KindInternal)
	orgs, _ := f.st.Organizations().List(context.Background())
	if len(orgs) != 0 {
		t.Fatalf("organization persisted despite failure: %d", len(orgs))
	}
}

func TestGet_AccessAndTargets(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	outsider := f.mustCreateUser(t, "out@x.test", userentity.RoleEmployee)
	ctx := context.Background()

	if _, err := f.svc.Get(ctx, admin, access.OrgByID(org.ID)); err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if _, err := f.svc.Get(ctx, admin, access.OwnOrg()); err != nil {
		t.Fatalf("own org get: %v", err)
	}
	_, err := f.svc.Get(ctx, outsider, access.OrgByID(org.ID))
	wantKind(t, err, apperr.KindNotAuthorized)
	_, err = f.svc.Get(ctx, outsider, access.OwnOrg())
	wantKind(t, err, apperr.KindNotFound)
	_, err = f.svc.Get(ctx, f.root, access.OwnOrg())
	wantKind(t, err, apperr.KindValidation)
	_, err = f.svc.Get(ctx, f.root, access.OrgByID("missing"))
	wantKind(t, err, apperr.KindNotFound)
}

func TestGet_UserReferenceWithoutMemberEntry(t *testing.T) {
	f := newFixture(t)
	org, _ := f.acme(t)
	drifted := &userentity.User{ID: "drift", Email: "drift@acme.test", Role: userentity.RoleEmployee, IsActive: true, OrganizationID: &org.ID, CreatedAt: t0}
	if err := f.st.Users().Create(context.Background(), drifted); err != nil {
		t.Fatal(err)
	}
	if _, err := f.svc.Get(context.Background(), drifted, access.OrgByID(org.ID)); err != nil {
		t.Fatalf("user-side reference should grant access: %v", err)
	}
}

func TestUpdate_OnlySuppliedFields(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	size := 40
	desc := "widgets"

	got, err := f.svc.Update(ctx, admin, access.OrgByID(org.ID), organization.UpdateInput{Size: &size, Description: &desc})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if got.Name != "Acme" || got.Email != "hello@acme.test" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if got.Size == nil || *got.Size != 40 || got.Description != "widgets" {
		t.Fatalf("supplied fields not applied: %+v", got)
	}
	stored, _ := f.st.Organizations().GetByID(ctx, org.ID)
	if len(stored.Members) != 1 {
		t.Fatal("update dropped members")
	}

	bad := entity.Status("archived")
	_, err = f.svc.Update(ctx, admin, access.OrgByID(org.ID), organization.UpdateInput{Status: &bad})
	wantKind(t, err, apperr.KindValidation)
}

func TestUpdate_OwnOrgAllowsNonOwnerAdmin(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	other, err := f.users.Create(ctx, admin, user.CreateInput{FullName: "Second", Email: "second@acme.test", Password: "secret1", Role: userentity.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	name := "Acme Corp"

	_, err = f.svc.Update(ctx, other, access.OrgByID(org.ID), organization.UpdateInput{Name: &name})
	wantKind(t, err, apperr.KindNotAuthorized)
	got, err := f.svc.Update(ctx, other, access.OwnOrg(), organization.UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("own org update: %v", err)
	}
	if got.Name != "Acme Corp" {
		t.Fatalf("name = %q", got.Name)
	}
}

func TestUpdateMemberRole(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	emp, err := f.users.Create(ctx, admin, user.CreateInput{FullName: "Emp", Email: "emp@acme.test", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	hr, err := f.users.Create(ctx, admin, user.CreateInput{FullName: "Hr", Email: "hr@acme.test", Password: "secret1", Role: userentity.RoleHR})
	if err != nil {
		t.Fatal(err)
	}

	_, err = f.svc.UpdateMemberRole(ctx, hr, org.ID, emp.ID, userentity.RoleHR)
	wantKind(t, err, apperr.KindNotAuthorized)
	_, err = f.svc.UpdateMemberRole(ctx, admin, org.ID, emp.ID, userentity.RoleSuperadmin)
	wantKind(t, err, apperr.KindValidation)
	_, err = f.svc.UpdateMemberRole(ctx, f.root, org.ID, admin.ID, userentity.RoleEmployee)
	if !errors.Is(err, user.ErrOwnerRole) {
		t.Fatalf("owner change: %v", err)
	}
	_, err = f.svc.UpdateMemberRole(ctx, admin, org.ID, "nobody", userentity.RoleHR)
	wantKind(t, err, apperr.KindNotFound)

	m, err := f.svc.UpdateMemberRole(ctx, admin, org.ID, emp.ID, userentity.RoleAdmin)
	if err != nil {
		t.Fatalf("update member role: %v", err)
	}
	if m.Role != userentity.RoleAdmin {
		t.Fatalf("member role = %s", m.Role)
	}
	if got := f.reload(t, emp.ID); got.Role != userentity.RoleAdmin {
		t.Fatalf("user role not synced: %s", got.Role)
	}
}

func TestUpdateMemberRole_RollsBackBothWrites(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	emp, err := f.users.Create(ctx, admin, user.CreateInput{FullName: "Emp", Email: "emp@acme.test", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	f.st.FailNext("users.Update", errors.New("write failed"))

	_, err = f.svc.UpdateMemberRole(ctx, admin, org.ID, emp.ID, userentity.RoleHR)
	wantKind(t, err, apperr.KindInternal)
	stored, _ := f.st.Organizations().GetByID(ctx, org.ID)
	if m := stored.Member(emp.ID); m == nil || m.Role != userentity.RoleEmployee {
		t.Fatalf("member write survived rollback: %+v", m)
	}
}

func TestMembers(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	if _, err := f.users.Create(ctx, admin, user.CreateInput{FullName: "Emp", Email: "emp@acme.test", Password: "secret1"}); err != nil {
		t.Fatal(err)
	}

	got, err := f.svc.Members(ctx, admin, access.OrgByID(org.ID))
	if err != nil {
		t.Fatal(err)
	}
	if got.Owner == nil || got.Owner.ID != admin.ID {
		t.Fatalf("owner = %+v", got.Owner)
	}
	if len(got.Members) != 2 || !got.Members[0].IsOwner || got.Members[1].User.Email != "emp@acme.test" {
		t.Fatalf("members = %+v", got.Members)
	}
}

func TestDelete_CascadesToUsers(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	emp, err := f.users.Create(ctx, admin, user.CreateInput{FullName: "Emp", Email: "emp@acme.test", Password: "secret1"})
	if err != nil {
		t.Fatal(err)
	}
	loner := f.mustCreateUser(t, "loner@x.test", userentity.RoleEmployee)

	_, err = f.svc.Delete(ctx, admin, "missing")
	wantKind(t, err, apperr.KindNotFound)

	n, err := f.svc.Delete(ctx, f.root, org.ID)
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if n != 2 {
		t.Fatalf("users deleted = %d, want 2", n)
	}
	for _, id := range []string{admin.ID, emp.ID} {
		if _, err := f.st.Users().GetByID(ctx, id); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("user %s still visible: %v", id, err)
		}
	}
	f.reload(t, loner.ID)

	_, err = f.svc.Get(ctx, f.root, access.OrgByID(org.ID))
	wantKind(t, err, apperr.KindNotFound)
	live, _ := f.svc.List(ctx, f.root)
	if len(live) != 0 {
		t.Fatalf("deleted organization listed: %d", len(live))
	}
	deleted, err := f.svc.ListDeleted(ctx, f.root)
	if err != nil {
		t.Fatal(err)
	}
	if len(deleted) != 1 || deleted[0].DeletedBy == nil || *deleted[0].DeletedBy != "root" {
		t.Fatalf("deleted = %+v", deleted)
	}
	if _, err := f.st.Organizations().GetByID(ctx, org.ID, store.IncludeDeleted()); err != nil {
		t.Fatalf("include deleted read: %v", err)
	}
}

func TestDelete_RollsBackWhenOrganizationWriteFails(t *testing.T) {
	f := newFixture(t)
	org, admin := f.acme(t)
	ctx := context.Background()
	f.st.FailNext("organizations.Update", errors.New("write failed"))

	_, err := f.svc.Delete(ctx, f.root, org.ID)
	wantKind(t, err, apperr.KindInternal)
	if got := f.reload(t, admin.ID); got.IsDeleted {
		t.Fatal("user soft delete survived rollback")
	}
}
