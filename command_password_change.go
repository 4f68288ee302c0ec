package auth

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type ChangePasswordMessage struct {
	// UserID is the target account. Empty means the caller.
	UserID          string `json:"user_id"`
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (e ChangePasswordMessage) Type() string { return "user.password.change" }

func (e ChangePasswordMessage) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.NewPassword, validation.Required, validation.Length(1, 72)),
	)
}

// ChangePasswordHandler replaces a local password and revokes the other
// sessions of the account.
type ChangePasswordHandler struct {
	repo     RepositoryManager
	hasher   PasswordHasher
	sessions *SessionManager
	clock    Clock
	activity ActivitySink
	logger   Logger
}

func NewChangePasswordHandler(repo RepositoryManager, hasher PasswordHasher, sessions *SessionManager) *ChangePasswordHandler {
	if hasher == nil {
		hasher = NewBcryptHasher(0)
	}
	return &ChangePasswordHandler{
		repo:     repo,
		hasher:   hasher,
		sessions: sessions,
		clock:    defaultClock,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password change events.
func (h *ChangePasswordHandler) WithActivitySink(sink ActivitySink) *ChangePasswordHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *ChangePasswordHandler) WithLogger(logger Logger) *ChangePasswordHandler {
	h.logger = ResolveLogger("auth.password", nil, logger)
	return h
}

// Execute changes the password of event.UserID on behalf of actor.
// Changing your own password requires the current one. Changing another
// user's password requires the admin role and forced.
func (h *ChangePasswordHandler) Execute(ctx context.Context, actor *RequestContext, event ChangePasswordMessage, forced bool) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password change",
		)
	default:
		return h.execute(ctx, actor, event, forced)
	}
}

func (h *ChangePasswordHandler) execute(ctx context.Context, actor *RequestContext, event ChangePasswordMessage, forced bool) error {
	if !actor.Authenticated() {
		return ErrUnauthenticated
	}

	if err := event.Validate(); err != nil {
		return ValidationError(err)
	}

	targetID := actor.User.ID
	if event.UserID != "" {
		id, err := uuid.Parse(event.UserID)
		if err != nil {
			return ValidationError(err)
		}
		targetID = id
	}

	self := targetID == actor.User.ID
	if self {
		if err := h.checkCurrent(ctx, targetID, event.CurrentPassword); err != nil {
			return err
		}
	} else {
		if !actor.User.IsAdmin() {
			return ErrForbidden
		}
		if !forced {
			return ErrConfirmationRequired
		}
		if _, err := h.repo.Users().GetByID(ctx, targetID); err != nil {
			return err
		}
	}

	hash, err := h.hasher.Hash(event.NewPassword)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return h.repo.Users().SetPasswordTx(ctx, tx, targetID, hash)
	})
	if err != nil {
		return err
	}

	keep := ""
	if self && actor.Session != nil {
		keep = actor.Session.ID
	}
	if _, err := h.sessions.RevokeOthers(ctx, targetID, keep, RevokeReasonPassword); err != nil {
		h.logger.Error("password changed but session revocation failed", "user_id", targetID.String(), "error", err)
		return err
	}

	emitActivity(ctx, h.activity, h.logger, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     ActorRef{ID: actor.User.ID.String(), Type: "user"},
		UserID:    targetID.String(),
		Metadata:  map[string]any{"self": self},
	})

	return nil
}

func (h *ChangePasswordHandler) checkCurrent(ctx context.Context, userID uuid.UUID, current string) error {
	if current == "" {
		return ErrInvalidCredentials
	}
	pwd, err := h.repo.Users().GetPassword(ctx, userID)
	if err != nil {
		if IsNotFound(err) {
			return ErrInvalidCredentials
		}
		return err
	}
	return h.hasher.Compare(current, pwd.PasswordHash)
}
