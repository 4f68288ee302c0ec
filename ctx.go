package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// LocalsKey is the fiber locals key holding the *RequestContext.
const LocalsKey = "auth.request"

var requestCtxKey = &contextKey{"request"}

type contextKey struct {
	name string
}

// RequestContext is the identity resolved for one request. It is attached
// explicitly by the guard middleware; handlers read it back with FromFiber or
// FromContext.
type RequestContext struct {
	User    *User
	Session *Session
}

// Authenticated reports whether a user was resolved.
func (r *RequestContext) Authenticated() bool {
	return r != nil && r.User != nil
}

// WithContext stores rc in ctx.
func WithContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, requestCtxKey, rc)
}

// FromContext finds the request identity in ctx.
func FromContext(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(requestCtxKey).(*RequestContext)
	return rc, ok && rc != nil
}

// UserFromContext returns the authenticated user in ctx, if any.
func UserFromContext(ctx context.Context) (*User, bool) {
	rc, ok := FromContext(ctx)
	if !ok || rc.User == nil {
		return nil, false
	}
	return rc.User, true
}

// attach stores rc in the fiber locals and in the user context of c.
func attach(c *fiber.Ctx, rc *RequestContext) {
	c.Locals(LocalsKey, rc)
	c.SetUserContext(WithContext(c.UserContext(), rc))
}

// FromFiber returns the request identity attached to c.
func FromFiber(c *fiber.Ctx) (*RequestContext, bool) {
	rc, ok := c.Locals(LocalsKey).(*RequestContext)
	return rc, ok && rc != nil
}

// CurrentUser returns the authenticated user attached to c, if any.
func CurrentUser(c *fiber.Ctx) (*User, bool) {
	rc, ok := FromFiber(c)
	if !ok || rc.User == nil {
		return nil, false
	}
	return rc.User, true
}
