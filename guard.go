package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/allergysnatcher/auth/middleware/jwtware"
)

const (
	// ConfirmationHeader carries the force confirmation for destructive calls.
	ConfirmationHeader = "Confirmation"
	// ConfirmationForce is the only accepted confirmation value.
	ConfirmationForce = "force"
)

// Guard resolves the caller's identity and enforces session, role and
// confirmation requirements. Failures are returned as errors for the app's
// error handler to render.
type Guard struct {
	sessions      *SessionManager
	extractors    []jwtware.Extractor
	sessionCookie string
	logger        Logger
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithGuardLogger sets the logger.
func WithGuardLogger(l Logger) GuardOption {
	return func(g *Guard) {
		g.logger = ResolveLogger("auth.guard", nil, l)
	}
}

// WithSessionCookie changes the cookie read as a session token fallback.
func WithSessionCookie(name string) GuardOption {
	return func(g *Guard) {
		if name != "" {
			g.sessionCookie = name
		}
	}
}

// NewGuard creates a guard. The session token is read from the
// Authorization bearer header, then from the session cookie.
func NewGuard(sessions *SessionManager, opts ...GuardOption) *Guard {
	g := &Guard{
		sessions:      sessions,
		sessionCookie: DefaultSessionCookie,
		logger:        defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	g.extractors = jwtware.GetExtractors(
		"header:"+fiber.HeaderAuthorization+",cookie:"+g.sessionCookie,
		"Bearer",
	)
	return g
}

// SessionToken returns the raw session token presented by the request, or "".
func (g *Guard) SessionToken(c *fiber.Ctx) string {
	token, err := jwtware.ExtractRawToken(c, g.extractors)
	if err != nil {
		return ""
	}
	return token
}

// RequireSession rejects requests without an active session of an enabled user.
func (g *Guard) RequireSession() fiber.Handler {
	return jwtware.New(jwtware.Config{
		TokenLookup: "header:" + fiber.HeaderAuthorization + ",cookie:" + g.sessionCookie,
		AuthScheme:  "Bearer",
		Validator:   g.validate,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if IsAccountDisabled(err) || IsStorageUnavailable(err) {
				return err
			}
			if !IsUnauthenticated(err) {
				g.logger.Debug("session rejected", "error", err)
			}
			return ErrUnauthenticated
		},
	})
}

// OptionalSession attaches the caller's identity when a valid session is
// presented and continues anonymously otherwise.
func (g *Guard) OptionalSession() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := g.SessionToken(c)
		if token == "" {
			attach(c, &RequestContext{})
			return c.Next()
		}

		if err := g.validate(c, token); err != nil {
			if IsStorageUnavailable(err) {
				return err
			}
			attach(c, &RequestContext{})
		}
		return c.Next()
	}
}

// RequireRole must run after RequireSession. It fails with ErrForbidden
// unless the caller holds one of roles.
func (g *Guard) RequireRole(roles ...UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return ErrUnauthenticated
		}
		for _, role := range roles {
			if user.Role == role {
				return c.Next()
			}
		}
		return ErrForbidden
	}
}

// RequireForce fails with ErrConfirmationRequired unless the request carries
// the force confirmation header.
func (g *Guard) RequireForce() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !Confirmed(c) {
			return ErrConfirmationRequired
		}
		return c.Next()
	}
}

// Confirmed reports whether the request carries the force confirmation.
func Confirmed(c *fiber.Ctx) bool {
	return strings.EqualFold(strings.TrimSpace(c.Get(ConfirmationHeader)), ConfirmationForce)
}

func (g *Guard) validate(c *fiber.Ctx, token string) error {
	user, session, err := g.sessions.Validate(c.UserContext(), token)
	if err != nil {
		return err
	}
	if user.IsDisabled() {
		return ErrAccountDisabled
	}
	attach(c, &RequestContext{User: user, Session: session})
	return nil
}
