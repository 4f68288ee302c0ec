package auth_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/allergysnatcher/auth"
)

func TestRegisterUserValidation(t *testing.T) {
	tests := []struct {
		name    string
		msg     auth.RegisterUserMessage
		wantErr bool
	}{
		{name: "valid", msg: auth.RegisterUserMessage{Username: "alice", Email: "alice@example.com", Password: "pw123"}},
		{name: "username defaults to email", msg: auth.RegisterUserMessage{Email: "alice@example.com", Password: "pw"}},
		{name: "missing email", msg: auth.RegisterUserMessage{Username: "alice", Password: "pw"}, wantErr: true},
		{name: "bad email", msg: auth.RegisterUserMessage{Email: "alice", Password: "pw"}, wantErr: true},
		{name: "missing password", msg: auth.RegisterUserMessage{Email: "alice@example.com"}, wantErr: true},
		{name: "short username", msg: auth.RegisterUserMessage{Username: "al", Email: "alice@example.com", Password: "pw"}, wantErr: true},
		{name: "unknown role", msg: auth.RegisterUserMessage{Email: "alice@example.com", Password: "pw", Role: "root"}, wantErr: true},
		{name: "disabled role", msg: auth.RegisterUserMessage{Email: "alice@example.com", Password: "pw", Role: "disabled"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegisterUserHandler(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	user, err := h.register.Execute(ctx, auth.RegisterUserMessage{
		Email:    " Alice@Example.com ",
		Password: "pw123",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	assert.Equal(t, "alice@example.com", user.Username)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.Equal(t, h.clock.Now(), user.CreatedAt)

	_, err = h.sessions.Login(ctx, "alice@example.com", "pw123", auth.RequestMeta{})
	assert.NoError(t, err, "login by email")

	_, err = h.register.Execute(ctx, auth.RegisterUserMessage{Email: "alice@example.com", Password: "x"})
	assert.True(t, auth.IsConflict(err))

	_, err = h.register.Execute(ctx, auth.RegisterUserMessage{Email: "root@example.com", Password: "x", Role: "admin", AdminKey: "guess"})
	assert.True(t, auth.IsForbidden(err))

	admin, err := h.register.Execute(ctx, auth.RegisterUserMessage{Email: "root@example.com", Password: "x", Role: "admin", AdminKey: "admin-secret"})
	require.NoError(t, err)
	assert.True(t, admin.IsAdmin())
}

func TestRegisterUserWithoutAdminKey(t *testing.T) {
	h := newHarness(t)
	handler := auth.NewRegisterUserHandler(h.repo, h.hasher, "")

	_, err := handler.Execute(context.Background(), auth.RegisterUserMessage{
		Email: "root@example.com", Password: "x", Role: "admin",
	})
	assert.True(t, auth.IsForbidden(err))
}

func TestRegisterUserHashid(t *testing.T) {
	h := newHarness(t)

	user, err := h.register.Execute(context.Background(), auth.RegisterUserMessage{
		Email: "seed@example.com", Password: "x", UseHashid: true,
	})
	require.NoError(t, err)

	want, err := hashid.NewUUID("seed@example.com")
	require.NoError(t, err)
	assert.Equal(t, want, user.ID)
	assert.NotEqual(t, uuid.Nil, user.ID)
}

func TestRegisterUserCancelledContext(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.register.Execute(ctx, auth.RegisterUserMessage{Email: "a@example.com", Password: "x"})
	assert.Error(t, err)
}
