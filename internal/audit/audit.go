package audit

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event represents an audit log event type
type Event string

const (
	LoginSuccess          Event = "auth.login.success"
	LoginFailure          Event = "auth.login.failure"
	Register              Event = "auth.register"
	PasswordResetRequest  Event = "auth.password_reset.requested"
	PasswordReset         Event = "auth.password_reset.completed"
	UserCreated           Event = "user.created"
	UserUpdated           Event = "user.updated"
	UserRoleChanged       Event = "user.role.changed"
	UserStatusChanged     Event = "user.status.changed"
	UserDeleted           Event = "user.deleted"
	OrganizationCreated   Event = "organization.created"
	OrganizationUpdated   Event = "organization.updated"
	OrganizationDeleted   Event = "organization.deleted"
	OwnershipTransferred  Event = "organization.owner.transferred"
	OrganizationOrphaned  Event = "organization.owner.removed"
	MemberRoleChanged     Event = "organization.member.role_changed"
	InviteCreated         Event = "invite.created"
	InviteAccepted        Event = "invite.accepted"
	InviteCancelled       Event = "invite.cancelled"
	InvitesExpiredDeleted Event = "invite.expired.deleted"
)

// Entry is one audit record.
type Entry struct {
	ID         uuid.UUID
	Event      Event
	ActorID    string
	TargetType string
	TargetID   string
	Details    map[string]any
	CreatedAt  time.Time
}

// Logger records audit entries.
type Logger interface {
	Log(e Entry)
}

// ZapLogger writes entries as structured info lines on a dedicated logger name.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

func NewZapLogger(logger *zap.SugaredLogger) *ZapLogger {
	return &ZapLogger{logger: logger.Named("audit")}
}

func (l *ZapLogger) Log(e Entry) {
	fill(&e)
	l.logger.Infow(string(e.Event),
		"audit_id", e.ID.String(),
		"actor", e.ActorID,
		"target_type", e.TargetType,
		"target", e.TargetID,
		"details", e.Details,
		"at", e.CreatedAt,
	)
}

// Memory keeps entries in memory, for tests.
type Memory struct {
	mu      sync.Mutex
	entries []Entry
}

func (m *Memory) Log(e Entry) {
	fill(&e)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

// Entries returns a copy of what has been logged.
func (m *Memory) Entries() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.entries...)
}

// Has reports whether an entry with event ev was logged.
func (m *Memory) Has(ev Event) bool {
	for _, e := range m.Entries() {
		if e.Event == ev {
			return true
		}
	}
	return false
}

func fill(e *Entry) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Log(Entry) {}
