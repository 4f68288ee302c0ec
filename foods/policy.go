package foods

import (
	"github.com/goliatone/go-errors"

	"github.com/allergysnatcher/auth"
)

// Action is an operation a caller wants to perform on a food.
type Action string

const (
	ActionRead    Action = "read"
	ActionWrite   Action = "write"
	ActionDelete  Action = "delete"
	ActionSubmit  Action = "submit"
	ActionPublish Action = "publish"
	ActionRevert  Action = "revert"
)

const TextCodeInvalidVisibility = "food_invalid_visibility"

// ErrInvalidVisibility is returned when an action does not apply to the food's current state.
var ErrInvalidVisibility = errors.New("action not allowed in current visibility", errors.CategoryConflict).
	WithTextCode(TextCodeInvalidVisibility).
	WithCode(errors.CodeConflict)

// Authorize decides whether actor may perform action on food. actor is nil
// for anonymous callers. forced reports that the caller sent the force
// confirmation; admins need it to touch data they do not own or data that
// is already published.
//
//	read    public: anyone. private, pending: owner or admin.
//	write   private: owner, or admin with force.
//	        pending: admin, with force unless owner.
//	        public: admin with force.
//	submit  private -> pending, owner only.
//	publish pending -> public, admin, with force unless owner.
//	revert  pending -> private: owner, or admin with force.
//	        public -> private: admin with force.
func Authorize(actor *auth.User, food *Food, action Action, forced bool) error {
	if food == nil {
		return auth.ErrNotFound
	}

	if action == ActionRead && food.Visibility == VisibilityPublic {
		return nil
	}

	if actor == nil {
		return auth.ErrUnauthenticated
	}
	if actor.IsDisabled() {
		return auth.ErrAccountDisabled
	}

	owner := food.OwnedBy(actor.ID)
	admin := actor.IsAdmin()

	// asAdmin lets admins through, asking for force when needForce is set.
	asAdmin := func(needForce bool) error {
		if !admin {
			return auth.ErrForbidden
		}
		if needForce && !forced {
			return auth.ErrConfirmationRequired
		}
		return nil
	}

	switch action {
	case ActionRead:
		if owner || admin {
			return nil
		}
		return auth.ErrForbidden

	case ActionWrite, ActionDelete:
		switch food.Visibility {
		case VisibilityPrivate:
			if owner {
				return nil
			}
			return asAdmin(true)
		case VisibilityPending:
			return asAdmin(!owner)
		default:
			return asAdmin(true)
		}

	case ActionSubmit:
		if food.Visibility != VisibilityPrivate {
			return ErrInvalidVisibility
		}
		if !owner {
			return auth.ErrForbidden
		}
		return nil

	case ActionPublish:
		if food.Visibility != VisibilityPending {
			return ErrInvalidVisibility
		}
		return asAdmin(!owner)

	case ActionRevert:
		switch food.Visibility {
		case VisibilityPending:
			if owner {
				return nil
			}
			return asAdmin(true)
		case VisibilityPublic:
			return asAdmin(true)
		default:
			return ErrInvalidVisibility
		}
	}

	return auth.ErrForbidden
}

// Target returns the visibility a transition action moves food to.
func Target(action Action) (Visibility, bool) {
	switch action {
	case ActionSubmit:
		return VisibilityPending, true
	case ActionPublish:
		return VisibilityPublic, true
	case ActionRevert:
		return VisibilityPrivate, true
	default:
		return "", false
	}
}
