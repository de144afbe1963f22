package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/worknest/service-core-go/internal/invite/entity"
	"github.com/ovaphlow/worknest/service-core-go/internal/store"
	userentity "github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

func newMock(t *testing.T) (*InviteRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return NewInviteRepo(sqlx.NewDb(db, "postgres")), mock
}

var t0 = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestCreatePendingDuplicate(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(`INSERT INTO invites`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "uq_invites_pending"})

	err := r.Create(context.Background(), &entity.Invite{
		ID: "i1", Email: "a@b.com", OrganizationID: "acme", Role: userentity.RoleHR, ExpiresAt: t0.Add(entity.TTL),
	})
	if !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}

func TestCreateOtherErrorPassesThrough(t *testing.T) {
	r, mock := newMock(t)
	boom := &pq.Error{Code: "23503"}
	mock.ExpectExec(`INSERT INTO invites`).WillReturnError(boom)

	err := r.Create(context.Background(), &entity.Invite{ID: "i1"})
	if errors.Is(err, store.ErrDuplicate) || !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestMarkAcceptedOnlyOnce(t *testing.T) {
	r, mock := newMock(t)
	q := `UPDATE invites SET is_accepted = true, accepted_at = \$2, accepted_by = \$3, updated_at = \$2 WHERE id = \$1 AND is_accepted = false`
	mock.ExpectExec(q).WithArgs("i1", t0, "u1").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WithArgs("i1", t0, "u1").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	if err := r.MarkAccepted(ctx, "i1", "u1", t0); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	if err := r.MarkAccepted(ctx, "i1", "u1", t0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("second accept = %v, want ErrNotFound", err)
	}
}

func TestFindValidByToken(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(`WHERE token_hash = \$1 AND is_accepted = false AND expires_at > \$2`).
		WithArgs("hash", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "organization_id", "role", "expires_at"}).
			AddRow("i1", "a@b.com", "acme", "hr", t0.Add(time.Hour)))
	mock.ExpectQuery(`WHERE token_hash = \$1`).WithArgs("stale", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	ctx := context.Background()
	inv, err := r.FindValidByToken(ctx, "hash", t0)
	if err != nil {
		t.Fatal(err)
	}
	if inv.OrganizationID != "acme" || inv.Role != userentity.RoleHR {
		t.Fatalf("invite = %+v", inv)
	}
	if _, err := r.FindValidByToken(ctx, "stale", t0); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("stale token = %v", err)
	}
}

func TestListPendingQuery(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectQuery(`WHERE organization_id = \$1 AND is_accepted = false AND expires_at > \$2 ORDER BY created_at DESC`).
		WithArgs("acme", t0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	list, err := r.ListPending(context.Background(), "acme", t0)
	if err != nil {
		t.Fatal(err)
	}
	if list == nil || len(list) != 0 {
		t.Fatalf("list = %#v", list)
	}
}

func TestDeleteExpired(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec(`DELETE FROM invites WHERE is_accepted = false AND expires_at <= \$1`).
		WithArgs(t0).WillReturnResult(sqlmock.NewResult(0, 4))
	mock.ExpectExec(`DELETE FROM invites WHERE email = \$1 AND organization_id = \$2 AND is_accepted = false AND expires_at <= \$3`).
		WithArgs("a@b.com", "acme", t0).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM invites WHERE id = \$1`).WithArgs("gone").WillReturnResult(sqlmock.NewResult(0, 0))

	ctx := context.Background()
	n, err := r.DeleteExpired(ctx, t0)
	if err != nil || n != 4 {
		t.Fatalf("DeleteExpired = %d, %v", n, err)
	}
	if err := r.DeleteExpiredFor(ctx, "a@b.com", "acme", t0); err != nil {
		t.Fatal(err)
	}
	if err := r.Delete(ctx, "gone"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("Delete = %v", err)
	}
}
