package social

import (
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"

	"github.com/allergysnatcher/auth"
)

// HTTPConfig configures the HTTP controller.
type HTTPConfig struct {
	// PathPrefix for routes (default: "/auth/oauth")
	PathPrefix string

	// AppURL is where the browser lands after a successful callback.
	// The handoff code is appended as the "code" query parameter.
	AppURL string

	// ErrorRedirect receives failed callbacks with an "error" query parameter
	// (default: AppURL + "/login").
	ErrorRedirect string

	Cookies auth.CookieConfig
}

// HTTPController serves the federated login endpoints.
type HTTPController struct {
	authenticator *Authenticator
	linker        *Linker
	verifier      *BackchannelVerifier
	sessions      *auth.SessionManager
	config        HTTPConfig
	logger        auth.Logger
	activity      auth.ActivitySink
}

// HTTPControllerOption configures an HTTPController.
type HTTPControllerOption func(*HTTPController)

// WithHTTPLogger sets the controller logger.
func WithHTTPLogger(l auth.Logger) HTTPControllerOption {
	return func(c *HTTPController) {
		c.logger = auth.ResolveLogger("social.http", nil, l)
	}
}

// WithHTTPActivitySink records rejected back-channel requests.
func WithHTTPActivitySink(s auth.ActivitySink) HTTPControllerOption {
	return func(c *HTTPController) {
		if s != nil {
			c.activity = s
		}
	}
}

// NewHTTPController creates the controller.
func NewHTTPController(a *Authenticator, linker *Linker, verifier *BackchannelVerifier, sessions *auth.SessionManager, cfg HTTPConfig, opts ...HTTPControllerOption) *HTTPController {
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/auth/oauth"
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	if cfg.ErrorRedirect == "" {
		cfg.ErrorRedirect = cfg.AppURL + "/login"
	}
	if cfg.Cookies.SessionName == "" && cfg.Cookies.RefreshName == "" {
		cfg.Cookies = auth.DefaultCookieConfig()
	}

	c := &HTTPController{
		authenticator: a,
		linker:        linker,
		verifier:      verifier,
		sessions:      sessions,
		config:        cfg,
		logger:        auth.ResolveLogger("social.http", nil, nil),
		activity:      auth.ActivitySinkFunc(nil),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RegisterRoutes mounts the federated login routes on app.
func (c *HTTPController) RegisterRoutes(app fiber.Router) {
	group := app.Group(c.config.PathPrefix)
	group.Get("/providers", c.ListProviders)
	group.Post("/exchange", c.Exchange)
	group.Post("/backchannel-logout", c.BackchannelLogout)
	group.Get("/:provider/callback", c.Callback)
	group.Get("/:provider", c.BeginAuth)
}

// ListProviders returns the configured provider names.
func (c *HTTPController) ListProviders(ctx *fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"providers": c.authenticator.Providers()})
}

// BeginAuth redirects to the provider.
func (c *HTTPController) BeginAuth(ctx *fiber.Ctx) error {
	redirect, err := c.authenticator.BeginAuth(ctx.UserContext(), ctx.Params("provider"), ctx.Query("return_to"))
	if err != nil {
		return err
	}
	return ctx.Redirect(redirect.URL, fiber.StatusFound)
}

// Callback completes the login, sets the refresh cookie and sends the browser
// back to the app with a one-time code for the session token.
func (c *HTTPController) Callback(ctx *fiber.Ctx) error {
	provider := ctx.Params("provider")

	if reason := ctx.Query("error"); reason != "" {
		c.logger.Info("provider denied authorization", "provider", provider, "reason", reason)
		return c.failRedirect(ctx, ErrProviderDenied)
	}

	code := ctx.Query("code")
	state := ctx.Query("state")
	if code == "" || state == "" {
		return c.failRedirect(ctx, ErrInvalidState)
	}

	meta := auth.RequestMeta{
		UserAgent: string(ctx.Request().Header.UserAgent()),
		IP:        ctx.IP(),
	}

	res, err := c.authenticator.CompleteAuth(ctx.UserContext(), provider, code, state, meta)
	if err != nil {
		if auth.IsStorageUnavailable(err) {
			c.logger.Error("federated login failed", "provider", provider, "error", err)
		} else {
			c.logger.Info("federated login rejected", "provider", provider, "error", err)
		}
		return c.failRedirect(ctx, err)
	}

	c.config.Cookies.SetRefreshCookie(ctx, res.Login.Credentials)

	target := c.config.AppURL + res.ReturnTo
	return ctx.Redirect(withQuery(target, "code", res.HandoffCode), fiber.StatusFound)
}

// ExchangeRequest carries a handoff code.
type ExchangeRequest struct {
	Code string `json:"code" form:"code"`
}

// Validate checks the payload shape.
func (r ExchangeRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, validation.Length(16, 128)),
	)
}

// ExchangeResponse is returned for a redeemed handoff code.
type ExchangeResponse struct {
	SessionToken     string         `json:"session_token"`
	SessionExpiresAt time.Time      `json:"session_expires_at"`
	User             *auth.UserView `json:"user"`
}

// Exchange redeems a one-time code for the session token it carries.
func (c *HTTPController) Exchange(ctx *fiber.Ctx) error {
	payload := new(ExchangeRequest)
	if err := ctx.BodyParser(payload); err != nil {
		return auth.ValidationError(err)
	}
	if err := payload.Validate(); err != nil {
		return auth.ValidationError(err)
	}

	h, err := c.authenticator.Redeem(ctx.UserContext(), payload.Code)
	if err != nil {
		return err
	}

	user, _, err := c.sessions.Validate(ctx.UserContext(), h.SessionToken)
	if err != nil {
		return err
	}

	ctx.Set(fiber.HeaderCacheControl, "no-store")
	return ctx.JSON(ExchangeResponse{
		SessionToken:     h.SessionToken,
		SessionExpiresAt: h.SessionExpiresAt,
		User:             user.View(),
	})
}

// BackchannelLogout handles provider initiated logout. Any logout_token is
// acknowledged; only a verified one revokes sessions.
func (c *HTTPController) BackchannelLogout(ctx *fiber.Ctx) error {
	raw := ctx.FormValue("logout_token")
	if raw == "" {
		return auth.ValidationError(validation.Errors{"logout_token": errors.New("cannot be blank", errors.CategoryValidation)})
	}

	ctx.Set(fiber.HeaderCacheControl, "no-store")

	claims, err := c.verifier.Verify(raw)
	if err != nil {
		c.logger.Warn("unverified logout token", "ip", ctx.IP())
		if rerr := c.activity.Record(ctx.UserContext(), auth.ActivityEvent{
			EventType: auth.ActivityEventBackchannelUnsigned,
			Actor:     auth.SystemActor,
			Metadata:  map[string]any{"ip": ctx.IP()},
		}); rerr != nil {
			c.logger.Warn("activity sink failed", "error", rerr)
		}
		return ctx.JSON(fiber.Map{"processed": true})
	}

	if claims.Subject == "" {
		c.logger.Info("logout token without subject ignored", "provider", claims.Provider, "sid", claims.SessionID)
		return ctx.JSON(fiber.Map{"processed": true})
	}

	n, err := c.linker.UnlinkBySubject(ctx.UserContext(), claims.Provider, claims.Subject)
	if err != nil {
		c.logger.Error("back-channel revoke failed", "provider", claims.Provider, "error", err)
		return ctx.JSON(fiber.Map{"processed": true})
	}

	c.logger.Info("back-channel logout", "provider", claims.Provider, "revoked", n)
	return ctx.JSON(fiber.Map{"processed": true})
}

func (c *HTTPController) failRedirect(ctx *fiber.Ctx, err error) error {
	code := auth.TextCode(err)
	if code == "" {
		code = "auth_failed"
	}
	return ctx.Redirect(withQuery(c.config.ErrorRedirect, "error", code), fiber.StatusFound)
}

func withQuery(target, key, value string) string {
	u, err := url.Parse(target)
	if err != nil {
		return target
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
