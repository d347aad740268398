package authsphere

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess   ActivityEventType = "session.login.success"
	ActivityEventLoginFailure   ActivityEventType = "session.login.failure"
	ActivityEventLogout         ActivityEventType = "session.logout"
	ActivityEventRefreshFailure ActivityEventType = "session.refresh.failure"
	ActivityEventUserRegistered ActivityEventType = "directory.user.registered"
	ActivityEventUserDeleted    ActivityEventType = "directory.user.deleted"
	ActivityEventUserAnonymized ActivityEventType = "directory.user.anonymized"
	ActivityEventRolesUpdated   ActivityEventType = "directory.roles.updated"
)

// ActivityEvent captures audit-friendly information about a client-side
// action. It is local telemetry, distinct from the backend-owned audit log
// the directory only reads.
type ActivityEvent struct {
	EventType  ActivityEventType
	ActorID    string
	SubjectID  string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
