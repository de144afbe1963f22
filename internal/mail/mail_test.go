package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestSMTPSenderInvite(t *testing.T) {
	s := NewSMTPSender(Config{Host: "smtp.example.com", Port: "587", User: "noreply@example.com", Password: "pw"})
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	s.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	err := s.SendOrganizationInvite(context.Background(), "a@b.com", "Acme <Inc>", "http://localhost:3000/invite/abc", "hr")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if gotAddr != "smtp.example.com:587" || gotFrom != "noreply@example.com" {
		t.Fatalf("addr/from = %q %q", gotAddr, gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "a@b.com" {
		t.Fatalf("to = %v", gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "http://localhost:3000/invite/abc") {
		t.Fatal("invite url missing from body")
	}
	if !strings.Contains(body, "Acme &lt;Inc&gt;") {
		t.Fatal("organization name not escaped")
	}
}

func TestSMTPSenderWrapsError(t *testing.T) {
	s := NewSMTPSender(Config{Host: "h", Port: "25", User: "u"})
	boom := errors.New("boom")
	s.send = func(string, smtp.Auth, string, []string, []byte) error { return boom }
	if err := s.SendPasswordReset(context.Background(), "a@b.com", "http://x/reset"); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
}

func TestNewFallsBackToLogSender(t *testing.T) {
	s := New(Config{}, zap.NewNop().Sugar())
	if _, ok := s.(*LogSender); !ok {
		t.Fatalf("got %T, want *LogSender", s)
	}
	if err := s.SendWelcome(context.Background(), "a@b.com", "A"); err != nil {
		t.Fatal(err)
	}
}
