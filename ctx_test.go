package auth

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestContextRoundTrip(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	user := &User{ID: uuid.New(), Username: "alice", Role: RoleUser}
	ctx := WithContext(context.Background(), &RequestContext{User: user})

	rc, ok := FromContext(ctx)
	require.True(t, ok)
	assert.True(t, rc.Authenticated())

	got, ok := UserFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, user.ID, got.ID)

	_, ok = UserFromContext(WithContext(context.Background(), &RequestContext{}))
	assert.False(t, ok, "anonymous context has no user")

	var nilRC *RequestContext
	assert.False(t, nilRC.Authenticated())
}

func TestAttachExposesIdentityToHandlers(t *testing.T) {
	user := &User{ID: uuid.New(), Username: "alice", Role: RoleUser}
	app := fiber.New()

	app.Get("/", func(c *fiber.Ctx) error {
		if _, ok := CurrentUser(c); ok {
			return c.SendStatus(fiber.StatusConflict)
		}
		attach(c, &RequestContext{User: user, Session: &Session{ID: "ses-1"}})
		return c.Next()
	}, func(c *fiber.Ctx) error {
		current, ok := CurrentUser(c)
		if !ok || current.ID != user.ID {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		if fromCtx, ok := UserFromContext(c.UserContext()); !ok || fromCtx.ID != user.ID {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		if rc, ok := FromFiber(c); !ok || rc.Session.ID != "ses-1" {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
