package auth

import (
	"context"
	"database/sql"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

const textCodeInvalidTransition = "auth_invalid_role_transition"

// ErrInvalidTransition is returned when a requested role change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid user role transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor ActorRef
	User  *User
	From  UserRole
	To    UserRole
	Meta  TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// UserStateMachine moves accounts between roles and removes them.
// Leaving an authenticating role revokes every session of the account.
type UserStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, user *User, target UserRole, opts ...TransitionOption) (*User, error)
	Delete(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) error
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*userStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock Clock) StateMachineOption {
	return func(sm *userStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *userStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink and revocation failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *userStateMachine) {
		sm.logger = ResolveLogger("auth.state_machine", nil, logger)
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the role update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the role update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewUserStateMachine returns the default implementation.
func NewUserStateMachine(repo RepositoryManager, sessions *SessionManager, opts ...StateMachineOption) UserStateMachine {
	sm := &userStateMachine{
		repo:     repo,
		sessions: sessions,
		transitions: map[UserRole]map[UserRole]struct{}{
			RoleUser: {
				RoleAdmin:    {},
				RoleDisabled: {},
			},
			RoleAdmin: {
				RoleUser:     {},
				RoleDisabled: {},
			},
			RoleDisabled: {
				RoleUser: {},
			},
		},
		now:          defaultClock,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type userStateMachine struct {
	repo         RepositoryManager
	sessions     *SessionManager
	transitions  map[UserRole]map[UserRole]struct{}
	now          Clock
	activitySink ActivitySink
	logger       Logger
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *userStateMachine) Transition(ctx context.Context, actor ActorRef, user *User, target UserRole, opts ...TransitionOption) (*User, error) {
	if user == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "user is nil",
		})
	}

	if !target.IsValid() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "unknown role",
		})
	}

	from := user.Role
	if from == target {
		return user, nil
	}

	if !sm.canTransition(from, target) {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"from": from,
			"to":   target,
		})
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Actor: actor,
		User:  user,
		From:  from,
		To:    target,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc); err != nil {
		return nil, err
	}

	var updated *User
	err := sm.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var err error
		updated, err = sm.repo.Users().UpdateRoleTx(ctx, tx, user.ID, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	if updated == nil {
		updated = user
		updated.Role = target
		updated.UpdatedAt = sm.now()
	}

	if from.CanAuthenticate() && !target.CanAuthenticate() {
		if _, err := sm.sessions.BulkRevoke(ctx, user.ID, RevokeReasonDisabled); err != nil {
			sm.logger.Error("role changed but sessions were not revoked", "user_id", user.ID.String(), "error", err)
			return nil, err
		}
	}

	tc.User = updated
	if err := sm.runHooks(ctx, options.afterHooks, tc); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventUserRoleChanged,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata:  sm.transitionMetadata(tc, map[string]any{"from": string(from), "to": string(target)}),
	})

	return updated, nil
}

// Delete revokes the user's sessions, then removes the account with its
// password and provider links.
func (sm *userStateMachine) Delete(ctx context.Context, actor ActorRef, user *User, opts ...TransitionOption) error {
	if user == nil {
		return ErrInvalidTransition.WithMetadata(map[string]any{
			"reason": "user is nil",
		})
	}

	options := sm.buildTransitionOptions(opts...)
	tc := TransitionContext{
		Actor: actor,
		User:  user,
		From:  user.Role,
		Meta:  options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc); err != nil {
		return err
	}

	if _, err := sm.sessions.BulkRevoke(ctx, user.ID, RevokeReasonDisabled); err != nil {
		return err
	}

	err := sm.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		return sm.repo.Users().DeleteTx(ctx, tx, user.ID)
	})
	if err != nil {
		return err
	}

	if err := sm.runHooks(ctx, options.afterHooks, tc); err != nil {
		return err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		Actor:     actor,
		UserID:    user.ID.String(),
		Metadata:  sm.transitionMetadata(tc, nil),
	})

	return nil
}

func (sm *userStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			return err
		}
	}
	return nil
}

func (sm *userStateMachine) canTransition(from, to UserRole) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *userStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *userStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}
	if event.Actor == (ActorRef{}) {
		event.Actor = SystemActor
	}
	emitActivity(ctx, sm.activitySink, sm.logger, event)
}

func (sm *userStateMachine) transitionMetadata(tc TransitionContext, extra map[string]any) map[string]any {
	meta := tc.Meta
	if meta.Reason == "" && len(meta.Metadata) == 0 && len(extra) == 0 {
		return nil
	}

	result := make(map[string]any, len(meta.Metadata)+len(extra)+1)
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	for k, v := range extra {
		result[k] = v
	}
	return result
}
