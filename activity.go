package auth

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess        ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure        ActivityEventType = "auth.login.failure"
	ActivityEventSocialLogin         ActivityEventType = "auth.social.login"
	ActivityEventSessionRotated      ActivityEventType = "auth.session.rotated"
	ActivityEventRotationRejected    ActivityEventType = "auth.session.rotation_rejected"
	ActivityEventRefreshExpired      ActivityEventType = "auth.session.refresh_expired"
	ActivityEventLogout              ActivityEventType = "auth.session.logout"
	ActivityEventSessionsRevoked     ActivityEventType = "auth.session.revoked"
	ActivityEventUserRegistered      ActivityEventType = "user.registered"
	ActivityEventUserRoleChanged     ActivityEventType = "user.role.changed"
	ActivityEventUserDeleted         ActivityEventType = "user.deleted"
	ActivityEventPasswordChanged     ActivityEventType = "auth.password.changed"
	ActivityEventBackchannelLogout   ActivityEventType = "auth.social.backchannel_logout"
	ActivityEventAccountLinked       ActivityEventType = "auth.social.linked"
	ActivityEventAccountCreated      ActivityEventType = "auth.social.created"
	ActivityEventBackchannelUnsigned ActivityEventType = "auth.social.backchannel_unverified"
)

// ActorRef identifies who triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// SystemActor is used for events not triggered by a user.
var SystemActor = ActorRef{ID: "system", Type: "system"}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	SessionID  string
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

// emitActivity records the event and logs sink failures without failing the caller.
func emitActivity(ctx context.Context, sink ActivitySink, logger Logger, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if event.Actor.ID == "" {
		if event.UserID != "" {
			event.Actor = ActorRef{ID: event.UserID, Type: "user"}
		} else {
			event.Actor = SystemActor
		}
	}
	if err := sink.Record(ctx, event); err != nil {
		logger.Warn("activity sink failed", "event", string(event.EventType), "error", err)
	}
}
