package auth

import (
	"net/http"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// AuthControllerRoutes holds the mount points of the controller.
type AuthControllerRoutes struct {
	Register string
	Login    string
	Refresh  string
	Status   string
	Logout   string
	Sessions string
	Password string
	Users    string
}

// AuthController serves the local login, session and account admin endpoints.
type AuthController struct {
	Logger       Logger
	Sessions     *SessionManager
	Guard        *Guard
	Repo         RepositoryManager
	Register     *RegisterUserHandler
	Password     *ChangePasswordHandler
	StateMachine UserStateMachine
	Cookies      CookieConfig
	Routes       *AuthControllerRoutes
	// LoginLimiter runs in front of the login route when set.
	LoginLimiter fiber.Handler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Logger = ResolveLogger("auth.controller", nil, l)
		return a
	}
}

func WithControllerCookies(cc CookieConfig) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Cookies = cc.normalized()
		return a
	}
}

func WithLoginLimiter(h fiber.Handler) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.LoginLimiter = h
		return a
	}
}

func WithRegisterHandler(h *RegisterUserHandler) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Register = h
		return a
	}
}

func WithPasswordHandler(h *ChangePasswordHandler) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.Password = h
		return a
	}
}

func WithStateMachine(sm UserStateMachine) AuthControllerOption {
	return func(a *AuthController) *AuthController {
		a.StateMachine = sm
		return a
	}
}

// NewAuthController wires a controller. Register, Password and StateMachine
// default to implementations over repo and sessions.
func NewAuthController(repo RepositoryManager, sessions *SessionManager, guard *Guard, opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		Repo:     repo,
		Sessions: sessions,
		Guard:    guard,
		Cookies:  DefaultCookieConfig(),
		Routes: &AuthControllerRoutes{
			Register: "/auth/register",
			Login:    "/auth/login",
			Refresh:  "/auth/refresh",
			Status:   "/auth/status",
			Logout:   "/auth/logout",
			Sessions: "/auth/sessions",
			Password: "/admin/password",
			Users:    "/admin/users",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil || c.Sessions == nil || c.Guard == nil {
		panic("auth controller requires a RepositoryManager, SessionManager and Guard")
	}

	if c.Register == nil {
		c.Register = NewRegisterUserHandler(repo, nil, "")
	}
	if c.Password == nil {
		c.Password = NewChangePasswordHandler(repo, nil, sessions)
	}
	if c.StateMachine == nil {
		c.StateMachine = NewUserStateMachine(repo, sessions)
	}

	return c
}

// RegisterRoutes mounts the controller on app.
func (a *AuthController) RegisterRoutes(app fiber.Router) {
	app.Post(a.Routes.Register, a.RegisterPost)

	if a.LoginLimiter != nil {
		app.Post(a.Routes.Login, a.LoginLimiter, a.LoginPost)
	} else {
		app.Post(a.Routes.Login, a.LoginPost)
	}

	app.Post(a.Routes.Refresh, a.RefreshPost)
	app.Get(a.Routes.Status, a.StatusGet)
	app.Post(a.Routes.Logout, a.LogoutPost)
	app.Get(a.Routes.Sessions, a.Guard.RequireSession(), a.SessionsGet)

	app.Post(a.Routes.Password, a.Guard.RequireSession(), a.PasswordPost)

	admin := []fiber.Handler{a.Guard.RequireSession(), a.Guard.RequireRole(RoleAdmin)}
	app.Get(a.Routes.Users, append(admin, a.UsersGet)...)
	app.Post(a.Routes.Users+"/:id/disable", append(admin, a.Guard.RequireForce(), a.UserDisable)...)
	app.Post(a.Routes.Users+"/:id/enable", append(admin, a.Guard.RequireForce(), a.UserEnable)...)
	app.Delete(a.Routes.Users+"/:id", append(admin, a.Guard.RequireForce(), a.UserDelete)...)
}

// LoginRequest payload
type LoginRequest struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// CredentialsResponse is returned by login and refresh.
type CredentialsResponse struct {
	SessionToken     string    `json:"session_token"`
	SessionExpiresAt time.Time `json:"session_expires_at"`
	User             *UserView `json:"user"`
}

// StatusResponse is returned by the status endpoint.
type StatusResponse struct {
	LoggedIn bool      `json:"logged_in"`
	User     *UserView `json:"user"`
}

func requestMeta(c *fiber.Ctx) RequestMeta {
	return RequestMeta{
		UserAgent: string(c.Request().Header.UserAgent()),
		IP:        c.IP(),
	}
}

func (a *AuthController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterUserMessage)
	if err := c.BodyParser(payload); err != nil {
		return ValidationError(err)
	}

	user, err := a.Register.Execute(c.UserContext(), *payload)
	if err != nil {
		return err
	}

	return c.Status(http.StatusCreated).JSON(user.View())
}

func (a *AuthController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)
	if err := c.BodyParser(payload); err != nil {
		return ValidationError(err)
	}

	if err := payload.Validate(); err != nil {
		return ValidationError(err)
	}

	res, err := a.Sessions.Login(c.UserContext(), payload.Username, payload.Password, requestMeta(c))
	if err != nil {
		return err
	}

	a.Cookies.SetCredentialCookies(c, res.Credentials)
	return c.JSON(credentialsResponse(res))
}

func (a *AuthController) RefreshPost(c *fiber.Ctx) error {
	refresh := c.Cookies(a.Cookies.RefreshName)
	if refresh == "" {
		return ErrUnauthenticated
	}

	res, err := a.Sessions.Rotate(c.UserContext(), refresh)
	if err != nil {
		if IsAuthFailure(err) {
			a.Cookies.ClearCredentialCookies(c)
		}
		return err
	}

	a.Cookies.SetCredentialCookies(c, res.Credentials)
	return c.JSON(credentialsResponse(res))
}

// StatusGet reports whether the caller is logged in. It never fails on bad
// credentials; it refreshes the cookies when the session token had lapsed.
func (a *AuthController) StatusGet(c *fiber.Ctx) error {
	sessionToken := a.Guard.SessionToken(c)
	refresh := c.Cookies(a.Cookies.RefreshName)

	status, err := a.Sessions.StatusCheck(c.UserContext(), sessionToken, refresh)
	if err != nil {
		return err
	}

	if status.Credentials != nil {
		a.Cookies.SetCredentialCookies(c, status.Credentials)
	} else if !status.LoggedIn && (sessionToken != "" || refresh != "") {
		a.Cookies.ClearCredentialCookies(c)
	}

	resp := StatusResponse{LoggedIn: status.LoggedIn}
	if status.LoggedIn {
		resp.User = status.User.View()
	}
	return c.JSON(resp)
}

// LogoutPost deletes the caller's session if there is one. The client always
// ends up logged out.
func (a *AuthController) LogoutPost(c *fiber.Ctx) error {
	ctx := c.UserContext()

	var err error = ErrUnauthenticated
	if token := a.Guard.SessionToken(c); token != "" {
		err = a.Sessions.Logout(ctx, token)
	}
	if IsAuthFailure(err) {
		if refresh := c.Cookies(a.Cookies.RefreshName); refresh != "" {
			err = a.Sessions.LogoutRefresh(ctx, refresh)
		}
	}
	if err != nil && !IsAuthFailure(err) {
		a.Logger.Warn("logout failed", "error", err)
	}

	a.Cookies.ClearCredentialCookies(c)
	return c.JSON(fiber.Map{"logged_in": false})
}

// SessionView is one entry of the caller's session list.
type SessionView struct {
	ID               string     `json:"id"`
	Current          bool       `json:"current"`
	State            string     `json:"state"`
	UserAgent        string     `json:"user_agent,omitempty"`
	IP               string     `json:"ip,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	RotatedAt        *time.Time `json:"rotated_at,omitempty"`
	RefreshExpiresAt time.Time  `json:"refresh_expires_at"`
}

func (a *AuthController) SessionsGet(c *fiber.Ctx) error {
	rc, _ := FromFiber(c)

	sessions, err := a.Sessions.ListSessions(c.UserContext(), rc.User.ID)
	if err != nil {
		return err
	}

	now := a.Sessions.clock()
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionView{
			ID:               s.ID,
			Current:          rc.Session != nil && rc.Session.ID == s.ID,
			State:            s.State(now).String(),
			UserAgent:        s.UserAgent,
			IP:               s.IP,
			CreatedAt:        s.CreatedAt,
			RotatedAt:        s.RotatedAt,
			RefreshExpiresAt: s.RefreshExpiresAt,
		})
	}
	return c.JSON(out)
}

func (a *AuthController) PasswordPost(c *fiber.Ctx) error {
	payload := new(ChangePasswordMessage)
	if err := c.BodyParser(payload); err != nil {
		return ValidationError(err)
	}

	rc, _ := FromFiber(c)
	if err := a.Password.Execute(c.UserContext(), rc, *payload, Confirmed(c)); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"updated": true})
}

func (a *AuthController) UsersGet(c *fiber.Ctx) error {
	users, err := a.Repo.Users().List(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]*UserView, 0, len(users))
	for _, u := range users {
		out = append(out, u.View())
	}
	return c.JSON(out)
}

func (a *AuthController) UserDisable(c *fiber.Ctx) error {
	return a.transition(c, RoleDisabled)
}

func (a *AuthController) UserEnable(c *fiber.Ctx) error {
	return a.transition(c, RoleUser)
}

func (a *AuthController) transition(c *fiber.Ctx, role UserRole) error {
	user, actor, err := a.targetUser(c)
	if err != nil {
		return err
	}

	if role == RoleDisabled && user.ID == actor.ID {
		return ErrForbidden
	}

	updated, err := a.StateMachine.Transition(
		c.UserContext(),
		ActorRef{ID: actor.ID.String(), Type: "user"},
		user,
		role,
		WithTransitionReason("admin request"),
	)
	if err != nil {
		return err
	}
	return c.JSON(updated.View())
}

func (a *AuthController) UserDelete(c *fiber.Ctx) error {
	target, actor, err := a.targetUser(c)
	if err != nil {
		return err
	}

	if target.ID == actor.ID {
		return ErrForbidden
	}

	if err := a.StateMachine.Delete(c.UserContext(), ActorRef{ID: actor.ID.String(), Type: "user"}, target); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func (a *AuthController) targetUser(c *fiber.Ctx) (*User, *User, error) {
	actor, ok := CurrentUser(c)
	if !ok {
		return nil, nil, ErrUnauthenticated
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, nil, ValidationError(err)
	}

	target, err := a.Repo.Users().GetByID(c.UserContext(), id)
	if err != nil {
		return nil, nil, err
	}
	return target, actor, nil
}

func credentialsResponse(res *LoginResult) CredentialsResponse {
	return CredentialsResponse{
		SessionToken:     res.Credentials.SessionToken,
		SessionExpiresAt: res.Credentials.SessionExpiresAt,
		User:             res.User.View(),
	}
}
