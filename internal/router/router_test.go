package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/worknest/service-core-go/internal/audit"
	"github.com/ovaphlow/worknest/service-core-go/internal/auth"
	"github.com/ovaphlow/worknest/service-core-go/internal/invite"
	"github.com/ovaphlow/worknest/service-core-go/internal/organization"
	"github.com/ovaphlow/worknest/service-core-go/internal/router"
	"github.com/ovaphlow/worknest/service-core-go/internal/store/storetest"
	"github.com/ovaphlow/worknest/service-core-go/internal/user"
	"github.com/ovaphlow/worknest/service-core-go/internal/user/entity"
)

const clientURL = "http://app.test"

type inbox struct {
	mu      sync.Mutex
	invites []string
}

func (b *inbox) SendWelcome(context.Context, string, string) error { return nil }

func (b *inbox) SendOrganizationInvite(_ context.Context, _, _, url, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.invites = append(b.invites, url)
	return nil
}

func (b *inbox) SendPasswordReset(context.Context, string, string) error { return nil }

type server struct {
	h    http.Handler
	mail *inbox
}

type response struct {
	Code   int
	Header http.Header
	Body   struct {
		Success bool              `json:"success"`
		Message string            `json:"message"`
		Data    json.RawMessage   `json:"data"`
		Count   *int              `json:"count"`
		Errors  map[string]string `json:"errors"`
	}
}

func newServer(t *testing.T) *server {
	t.Helper()
	st := storetest.New()
	log := zap.NewNop().Sugar()
	hasher := user.BcryptHasher{Cost: bcrypt.MinCost}
	al := &audit.Memory{}
	mail := &inbox{}

	hash, err := hasher.Hash("rootpass")
	if err != nil {
		t.Fatal(err)
	}
	root := &entity.User{ID: "root", FullName: "Root", Email: "root@worknest.test", PasswordHash: hash,
		Role: entity.RoleSuperadmin, IsActive: true, CreatedAt: time.Now()}
	if err := st.Users().Create(context.Background(), root); err != nil {
		t.Fatal(err)
	}

	tokens, err := auth.NewTokenService("router-test", time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	authSvc := auth.NewService(st, hasher, tokens, mail, al, log, clientURL)
	t.Cleanup(authSvc.Wait)
	h := router.RegisterRoutes(log, router.Deps{
		Auth:          authSvc,
		Users:         user.NewService(st, hasher, al, log),
		Organizations: organization.NewService(st, hasher, al, log),
		Invites:       invite.NewService(st, mail, hasher, al, log, clientURL),
		Origins:       []string{clientURL},
	})
	return &server{h: h, mail: mail}
}

func (s *server) do(t *testing.T, method, path, token string, body any) response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.h.ServeHTTP(rec, req)

	out := response{Code: rec.Code, Header: rec.Header()}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out.Body); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return out
}

func (s *server) login(t *testing.T, email, password string) string {
	t.Helper()
	res := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": password})
	if res.Code != http.StatusOK {
		t.Fatalf("login %s: %d %s", email, res.Code, res.Body.Message)
	}
	var data struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(res.Body.Data, &data); err != nil {
		t.Fatal(err)
	}
	return data.Token
}

func wantStatus(t *testing.T, res response, code int) {
	t.Helper()
	if res.Code != code {
		t.Fatalf("status = %d, want %d (%s %v)", res.Code, code, res.Body.Message, res.Body.Errors)
	}
}

func TestHealthAndHeaders(t *testing.T) {
	s := newServer(t)
	res := s.do(t, http.MethodGet, "/api/health", "", nil)
	wantStatus(t, res, http.StatusOK)
	if res.Header.Get("X-Request-ID") == "" {
		t.Fatal("missing X-Request-ID")
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatal("missing security headers")
	}
}

func TestProtectedRoutes(t *testing.T) {
	s := newServer(t)
	res := s.do(t, http.MethodGet, "/api/users", "", nil)
	wantStatus(t, res, http.StatusUnauthorized)
	if res.Body.Message != "Access denied. No token provided." {
		t.Fatalf("message = %q", res.Body.Message)
	}

	reg := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Emp", "email": "emp@example.com", "password": "secret1",
	})
	wantStatus(t, reg, http.StatusCreated)
	emp := s.login(t, "emp@example.com", "secret1")

	wantStatus(t, s.do(t, http.MethodGet, "/api/users", emp, nil), http.StatusForbidden)
	wantStatus(t, s.do(t, http.MethodGet, "/api/organizations", emp, nil), http.StatusForbidden)
	wantStatus(t, s.do(t, http.MethodGet, "/api/users/profile/me", emp, nil), http.StatusOK)
	wantStatus(t, s.do(t, http.MethodGet, "/api/auth/me", emp, nil), http.StatusOK)

	dup := s.do(t, http.MethodPost, "/api/auth/register", "", map[string]string{
		"fullName": "Emp", "email": "EMP@example.com", "password": "secret1",
	})
	wantStatus(t, dup, http.StatusConflict)
}

func TestBadCredentials(t *testing.T) {
	s := newServer(t)
	res := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "root@worknest.test", "password": "nope"})
	wantStatus(t, res, http.StatusUnauthorized)
	res = s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "root@worknest.test"})
	wantStatus(t, res, http.StatusBadRequest)
}

func TestOrganizationLifecycle(t *testing.T) {
	s := newServer(t)
	root := s.login(t, "root@worknest.test", "rootpass")

	created := s.do(t, http.MethodPost, "/api/organizations", root, map[string]any{
		"name":  "Acme",
		"email": "hello@acme.test",
		"owner": map[string]string{"fullName": "Ada Admin", "email": "ada@acme.test", "password": "secret1"},
	})
	wantStatus(t, created, http.StatusCreated)
	var org struct {
		ID      string `json:"id"`
		Owner   string `json:"owner"`
		Members []struct {
			User string `json:"user"`
			Role string `json:"role"`
		} `json:"members"`
	}
	if err := json.Unmarshal(created.Body.Data, &org); err != nil {
		t.Fatal(err)
	}
	if len(org.Members) != 1 || org.Members[0].User != org.Owner || org.Members[0].Role != "admin" {
		t.Fatalf("created org = %+v", org)
	}

	owner := s.login(t, "ada@acme.test", "secret1")
	wantStatus(t, s.do(t, http.MethodGet, "/api/organization-settings", owner, nil), http.StatusOK)
	wantStatus(t, s.do(t, http.MethodGet, "/api/organizations/"+org.ID, owner, nil), http.StatusOK)
	upd := s.do(t, http.MethodPatch, "/api/organization-settings", owner, map[string]string{"industry": "Widgets"})
	wantStatus(t, upd, http.StatusOK)

	// invite flow through the own-organization routes
	inv := s.do(t, http.MethodPost, "/api/organization-settings/invite", owner, map[string]string{"email": "a@b.com", "role": "hr"})
	wantStatus(t, inv, http.StatusCreated)
	if len(s.mail.invites) != 1 {
		t.Fatalf("invite mails = %v", s.mail.invites)
	}
	token := strings.TrimPrefix(s.mail.invites[0], clientURL+"/invite/")

	wantStatus(t, s.do(t, http.MethodGet, "/api/invites/validate/"+token, "", nil), http.StatusOK)
	accept := s.do(t, http.MethodPost, "/api/invites/accept/"+token, "", map[string]string{"fullName": "A B", "password": "secret1"})
	wantStatus(t, accept, http.StatusCreated)
	again := s.do(t, http.MethodPost, "/api/invites/accept/"+token, "", map[string]string{"fullName": "A B", "password": "secret1"})
	wantStatus(t, again, http.StatusNotFound)

	members := s.do(t, http.MethodGet, "/api/organization-settings/members", owner, nil)
	wantStatus(t, members, http.StatusOK)
	var roster struct {
		Members []json.RawMessage `json:"members"`
	}
	if err := json.Unmarshal(members.Body.Data, &roster); err != nil {
		t.Fatal(err)
	}
	if len(roster.Members) != 2 {
		t.Fatalf("members = %d, want 2", len(roster.Members))
	}

	hr := s.login(t, "a@b.com", "secret1")
	wantStatus(t, s.do(t, http.MethodPatch, "/api/organization-settings", hr, map[string]string{"industry": "x"}), http.StatusForbidden)
	wantStatus(t, s.do(t, http.MethodGet, "/api/users", hr, nil), http.StatusForbidden)

	del := s.do(t, http.MethodDelete, "/api/organizations/"+org.ID, root, nil)
	wantStatus(t, del, http.StatusOK)
	// the owner's account went with the organization
	res := s.do(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "ada@acme.test", "password": "secret1"})
	wantStatus(t, res, http.StatusUnauthorized)
}

func TestBodyLimit(t *testing.T) {
	s := newServer(t)
	big := map[string]string{"email": strings.Repeat("a", router.MaxBodyBytes+1), "password": "x"}
	res := s.do(t, http.MethodPost, "/api/auth/login", "", big)
	wantStatus(t, res, http.StatusBadRequest)
}

func TestOwnerDeletesOrganization(t *testing.T) {
	s := newServer(t)
	root := s.login(t, "root@worknest.test", "rootpass")

	created := s.do(t, http.MethodPost, "/api/organizations", root, map[string]any{
		"name":  "Acme",
		"owner": map[string]string{"fullName": "Ada Admin", "email": "ada@acme.test", "password": "secret1"},
	})
	wantStatus(t, created, http.StatusCreated)
	var org struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(created.Body.Data, &org); err != nil {
		t.Fatal(err)
	}

	owner := s.login(t, "ada@acme.test", "secret1")
	var ids []string
	for _, u := range []map[string]string{
		{"fullName": "Bo Admin", "email": "bo@acme.test", "password": "secret1", "role": "admin"},
		{"fullName": "Cy Emp", "email": "cy@acme.test", "password": "secret1", "role": "employee"},
	} {
		res := s.do(t, http.MethodPost, "/api/users", owner, u)
		wantStatus(t, res, http.StatusCreated)
		var out struct {
			ID string `json:"id"`
		}
		if err := json.Unmarshal(res.Body.Data, &out); err != nil {
			t.Fatal(err)
		}
		ids = append(ids, out.ID)
	}

	// an inactive member stays on the roster but is not counted
	off := s.do(t, http.MethodPatch, "/api/users/"+ids[1]+"/status", owner, map[string]bool{"isActive": false})
	wantStatus(t, off, http.StatusOK)
	got := s.do(t, http.MethodGet, "/api/organizations/"+org.ID, owner, nil)
	wantStatus(t, got, http.StatusOK)
	var view struct {
		MemberCount int `json:"memberCount"`
		Members     []struct {
			User     string `json:"user"`
			IsActive bool   `json:"isActive"`
		} `json:"members"`
	}
	if err := json.Unmarshal(got.Body.Data, &view); err != nil {
		t.Fatal(err)
	}
	if len(view.Members) != 3 || view.MemberCount != 2 {
		t.Fatalf("members = %+v, memberCount = %d, want 3 listed and 2 counted", view.Members, view.MemberCount)
	}
	if view.Members[2].User != ids[1] || view.Members[2].IsActive {
		t.Fatalf("deactivated member = %+v", view.Members[2])
	}

	// an admin of the organization who does not own it cannot delete it
	other := s.login(t, "bo@acme.test", "secret1")
	wantStatus(t, s.do(t, http.MethodDelete, "/api/organizations/"+org.ID, other, nil), http.StatusForbidden)
	wantStatus(t, s.do(t, http.MethodGet, "/api/organizations/"+org.ID, owner, nil), http.StatusOK)

	del := s.do(t, http.MethodDelete, "/api/organizations/"+org.ID, owner, nil)
	wantStatus(t, del, http.StatusOK)
	var out struct {
		UsersDeleted int `json:"usersDeleted"`
	}
	if err := json.Unmarshal(del.Body.Data, &out); err != nil {
		t.Fatal(err)
	}
	if out.UsersDeleted != 3 {
		t.Fatalf("usersDeleted = %d, want 3", out.UsersDeleted)
	}
	wantStatus(t, s.do(t, http.MethodGet, "/api/organizations/"+org.ID, root, nil), http.StatusNotFound)
}
