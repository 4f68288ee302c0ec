package auth

import (
	"context"
	"crypto/subtle"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type RegisterUserMessage struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Password  string `json:"password"`
	AdminKey  string `json:"admin_key"`
	// UseHashid derives the user id from the email so seeded accounts keep stable ids.
	UseHashid bool `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Validate checks the payload shape. Role authorization happens in the handler.
func (e RegisterUserMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Username, validation.Length(3, 64)),
		validation.Field(&e.Password, validation.Required, validation.Length(1, 72)),
		validation.Field(&e.Role, validation.In(string(RoleUser), string(RoleAdmin))),
	)
}

// RegisterUserHandler creates a local account with a password.
type RegisterUserHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	adminKey string
	clock    Clock
	logger   Logger
	activity ActivitySink
}

// NewRegisterUserHandler creates the handler. An empty adminKey disables
// self registration of admins.
func NewRegisterUserHandler(repo RepositoryManager, hasher PasswordHasher, adminKey string) *RegisterUserHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &RegisterUserHandler{
		repo:     repo,
		hasher:   hasher,
		adminKey: adminKey,
		clock:    defaultClock,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (h *RegisterUserHandler) WithLogger(l Logger) *RegisterUserHandler {
	h.logger = ResolveLogger("auth.register", nil, l)
	return h
}

func (h *RegisterUserHandler) WithActivitySink(s ActivitySink) *RegisterUserHandler {
	h.activity = normalizeActivitySink(s)
	return h
}

func (h *RegisterUserHandler) WithClock(c Clock) *RegisterUserHandler {
	if c != nil {
		h.clock = c
	}
	return h
}

func (h *RegisterUserHandler) Execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterUserHandler) execute(ctx context.Context, event RegisterUserMessage) (*User, error) {
	event.Email = strings.ToLower(strings.TrimSpace(event.Email))
	event.Username = strings.TrimSpace(event.Username)

	if err := event.Validate(); err != nil {
		return nil, ValidationError(err)
	}

	role, ok := ParseRole(event.Role)
	if !ok || role == RoleDisabled {
		return nil, ValidationError(goerrors.New("unknown role", goerrors.CategoryValidation))
	}

	if role == RoleAdmin && !h.adminKeyMatches(event.AdminKey) {
		h.logger.Warn("admin registration rejected", "email", event.Email)
		return nil, ErrForbidden
	}

	hash, err := h.hasher.Hash(event.Password)
	if err != nil {
		return nil, err
	}

	now := h.clock()
	user := &User{
		ID:        uuid.New(),
		Email:     event.Email,
		Username:  getUsername(event.Username, event.Email),
		Role:      role,
		FirstName: event.FirstName,
		LastName:  event.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if event.UseHashid {
		if id, err := hashid.NewUUID(event.Email); err == nil {
			user.ID = id
		}
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err := h.repo.Users().CreateTx(ctx, tx, user)
		if err != nil {
			return err
		}
		user = created
		return h.repo.Users().SetPasswordTx(ctx, tx, user.ID, hash)
	})
	if err != nil {
		return nil, err
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		UserID:    user.ID.String(),
		Metadata:  map[string]any{"role": string(user.Role)},
	})

	return user, nil
}

func (h *RegisterUserHandler) adminKeyMatches(given string) bool {
	if h.adminKey == "" || given == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(h.adminKey), []byte(given)) == 1
}

func getUsername(username, email string) string {
	if username != "" {
		return username
	}
	return email
}
