package accounts

import (
	"context"
	"time"
)

// ActorRef identifies who/what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered         ActivityEventType = "account.registered"
	ActivityEventEmailVerified          ActivityEventType = "account.email.verified"
	ActivityEventUserStatusChanged      ActivityEventType = "account.status.changed"
	ActivityEventLoginSuccess           ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure           ActivityEventType = "auth.login.failure"
	ActivityEventLogout                 ActivityEventType = "auth.logout"
	ActivityEventPasswordResetRequested ActivityEventType = "auth.password.reset.requested"
	ActivityEventPasswordResetSuccess   ActivityEventType = "auth.password.reset"
	ActivityEventPasswordChanged        ActivityEventType = "auth.password.changed"
	ActivityEventProfileUpdated         ActivityEventType = "account.profile.updated"
	ActivityEventAccountDeleted         ActivityEventType = "account.deleted"
)

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromStatus UserStatus
	ToStatus   UserStatus
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

// MultiActivitySink fans events out to every sink; the first error wins but
// all sinks still run.
func MultiActivitySink(sinks ...ActivitySink) ActivitySink {
	return ActivitySinkFunc(func(ctx context.Context, event ActivityEvent) error {
		var first error
		for _, sink := range sinks {
			if sink == nil {
				continue
			}
			if err := sink.Record(ctx, event); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}
