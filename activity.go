package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventRegistered           ActivityEventType = "account.registered"
	ActivityEventLoginSuccess         ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure         ActivityEventType = "auth.login.failure"
	ActivityEventLockedOut            ActivityEventType = "auth.login.locked_out"
	ActivityEventLogout               ActivityEventType = "auth.logout"
	ActivityEventExternalLogin        ActivityEventType = "auth.external.login"
	ActivityEventEmailConfirmed       ActivityEventType = "account.email.confirmed"
	ActivityEventPasswordResetRequest ActivityEventType = "account.password.reset_requested"
	ActivityEventPasswordReset        ActivityEventType = "account.password.reset"
	ActivityEventPasswordChanged      ActivityEventType = "account.password.changed"
	ActivityEventProfileUpdated       ActivityEventType = "account.profile.updated"
	ActivityEventDeactivated          ActivityEventType = "account.deactivated"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	AccountID  string
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
