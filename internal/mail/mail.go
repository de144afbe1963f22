// Package mail delivers the transactional emails: welcome, organization
// invite and password reset.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/smtp"

	"go.uber.org/zap"
)

// Sender is implemented by every email backend.
type Sender interface {
	SendWelcome(ctx context.Context, to, fullName string) error
	SendOrganizationInvite(ctx context.Context, to, orgName, inviteURL, role string) error
	SendPasswordReset(ctx context.Context, to, resetURL string) error
}

type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	From     string
}

// Configured reports whether enough is set to talk to an SMTP server.
func (c Config) Configured() bool {
	return c.Host != "" && c.Port != "" && c.User != ""
}

// New returns an SMTP sender when cfg is configured and a log-only sender
// otherwise.
func New(cfg Config, logger *zap.SugaredLogger) Sender {
	if cfg.Configured() {
		return NewSMTPSender(cfg)
	}
	logger.Warn("SMTP not configured; emails will only be logged")
	return &LogSender{logger: logger}
}

var templates = template.Must(template.New("welcome").Parse(`<h2>Welcome to WorkNest, {{.Name}}!</h2>
<p>Your account has been created. You can now sign in and start working with your team.</p>`))

func init() {
	template.Must(templates.New("invite").Parse(`<h2>You're invited to join {{.Org}}</h2>
<p>You have been invited to join <strong>{{.Org}}</strong> on WorkNest as <strong>{{.Role}}</strong>.</p>
<p><a href="{{.URL}}">Accept invitation</a></p>
<p>This invitation expires in 7 days.</p>`))
	template.Must(templates.New("reset").Parse(`<h2>Password reset</h2>
<p>You requested a password reset. Use the link below within 15 minutes.</p>
<p><a href="{{.URL}}">Reset password</a></p>
<p>If you did not request this, you can ignore this email.</p>`))
}

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}

// SMTPSender sends HTML email through an SMTP relay with PLAIN auth.
type SMTPSender struct {
	cfg  Config
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPSender(cfg Config) *SMTPSender {
	if cfg.From == "" {
		cfg.From = cfg.User
	}
	return &SMTPSender{cfg: cfg, send: smtp.SendMail}
}

func (s *SMTPSender) SendWelcome(ctx context.Context, to, fullName string) error {
	body, err := render("welcome", map[string]string{"Name": fullName})
	if err != nil {
		return err
	}
	return s.sendHTML(to, "Welcome to WorkNest", body)
}

func (s *SMTPSender) SendOrganizationInvite(ctx context.Context, to, orgName, inviteURL, role string) error {
	body, err := render("invite", map[string]string{"Org": orgName, "URL": inviteURL, "Role": role})
	if err != nil {
		return err
	}
	return s.sendHTML(to, "You're invited to join "+orgName+" on WorkNest", body)
}

func (s *SMTPSender) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	body, err := render("reset", map[string]string{"URL": resetURL})
	if err != nil {
		return err
	}
	return s.sendHTML(to, "WorkNest password reset", body)
}

func (s *SMTPSender) sendHTML(to, subject, body string) error {
	msg := []byte(fmt.Sprintf(
		"From: %s\r\n"+
			"To: %s\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/html; charset=\"utf-8\"\r\n"+
			"\r\n%s\r\n",
		s.cfg.From, to, subject, body,
	))
	auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Password, s.cfg.Host)
	if err := s.send(s.cfg.Host+":"+s.cfg.Port, auth, s.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("send mail to %s: %w", to, err)
	}
	return nil
}

// LogSender writes emails to the logger instead of sending them.
type LogSender struct {
	logger *zap.SugaredLogger
}

func NewLogSender(logger *zap.SugaredLogger) *LogSender { return &LogSender{logger: logger} }

func (l *LogSender) SendWelcome(ctx context.Context, to, fullName string) error {
	l.logger.Infow("email: welcome", "to", to, "name", fullName)
	return nil
}

func (l *LogSender) SendOrganizationInvite(ctx context.Context, to, orgName, inviteURL, role string) error {
	l.logger.Infow("email: organization invite", "to", to, "organization", orgName, "role", role, "url", inviteURL)
	return nil
}

func (l *LogSender) SendPasswordReset(ctx context.Context, to, resetURL string) error {
	l.logger.Infow("email: password reset", "to", to, "url", resetURL)
	return nil
}
