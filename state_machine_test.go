package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth"
)

func TestUserStateMachineDisableRevokesSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", "pw123", auth.RoleUser)
	res := h.login(t, "alice", "pw123")
	h.login(t, "alice", "pw123")

	sink := &MockActivitySink{}
	sink.On("Record", mock.Anything, eventOfType(auth.ActivityEventUserRoleChanged)).Return(nil).Once()

	sm := auth.NewUserStateMachine(h.repo, h.sessions, auth.WithStateMachineActivitySink(sink))

	updated, err := sm.Transition(ctx, auth.ActorRef{ID: "admin", Type: "user"}, alice, auth.RoleDisabled,
		auth.WithTransitionReason("abuse"))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDisabled, updated.Role)

	_, _, err = h.sessions.Validate(ctx, res.Credentials.SessionToken)
	assert.True(t, auth.IsUnauthenticated(err))

	list, err := h.sessions.ListSessions(ctx, alice.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	sink.AssertExpectations(t)
}

func TestUserStateMachinePromoteKeepsSessions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", "pw123", auth.RoleUser)
	res := h.login(t, "alice", "pw123")

	sm := auth.NewUserStateMachine(h.repo, h.sessions)

	updated, err := sm.Transition(ctx, auth.SystemActor, alice, auth.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, updated.IsAdmin())

	user, _, err := h.sessions.Validate(ctx, res.Credentials.SessionToken)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleAdmin, user.Role)
}

func TestUserStateMachineRejectsInvalidTransition(t *testing.T) {
	h := newHarness(t)
	mallory := h.user(t, "mallory", "pw123", auth.RoleDisabled)

	sm := auth.NewUserStateMachine(h.repo, h.sessions)

	_, err := sm.Transition(context.Background(), auth.SystemActor, mallory, auth.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, "auth_invalid_role_transition", auth.TextCode(err))

	_, err = sm.Transition(context.Background(), auth.SystemActor, mallory, auth.UserRole("root"))
	assert.Equal(t, "auth_invalid_role_transition", auth.TextCode(err))

	same, err := sm.Transition(context.Background(), auth.SystemActor, mallory, auth.RoleDisabled)
	require.NoError(t, err)
	assert.Equal(t, mallory, same)
}

func TestUserStateMachineHooks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", "pw123", auth.RoleUser)

	sm := auth.NewUserStateMachine(h.repo, h.sessions)
	blocked := errors.New("blocked")

	_, err := sm.Transition(ctx, auth.SystemActor, alice, auth.RoleAdmin,
		auth.WithBeforeTransitionHook(func(context.Context, auth.TransitionContext) error { return blocked }))
	assert.ErrorIs(t, err, blocked)

	stored, err := h.repo.Users().GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, stored.Role, "before hook failure leaves the role alone")

	var seen auth.TransitionContext
	_, err = sm.Transition(ctx, auth.SystemActor, alice, auth.RoleAdmin,
		auth.WithTransitionMetadata(map[string]any{"ticket": "OPS-1"}),
		auth.WithAfterTransitionHook(func(_ context.Context, tc auth.TransitionContext) error {
			seen = tc
			return nil
		}))
	require.NoError(t, err)
	assert.Equal(t, auth.RoleUser, seen.From)
	assert.Equal(t, auth.RoleAdmin, seen.To)
	assert.Equal(t, "OPS-1", seen.Meta.Metadata["ticket"])
}

func TestUserStateMachineDelete(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	alice := h.user(t, "alice", "pw123", auth.RoleUser)
	res := h.login(t, "alice", "pw123")

	sink := &MockActivitySink{}
	sink.On("Record", mock.Anything, mock.Anything).Return(nil)

	sm := auth.NewUserStateMachine(h.repo, h.sessions, auth.WithStateMachineActivitySink(sink))
	require.NoError(t, sm.Delete(ctx, auth.SystemActor, alice))

	_, err := h.repo.Users().GetByID(ctx, alice.ID)
	assert.True(t, auth.IsNotFound(err))

	_, err = h.sessions.Rotate(ctx, res.Credentials.RefreshToken)
	assert.True(t, auth.IsUnauthenticated(err))

	sink.AssertCalled(t, "Record", mock.Anything, eventOfType(auth.ActivityEventUserDeleted))

	err = sm.Delete(ctx, auth.SystemActor, alice)
	assert.True(t, auth.IsNotFound(err))
}
