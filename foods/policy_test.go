package foods

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/allergysnatcher/auth"
)

func TestAuthorize(t *testing.T) {
	owner := &auth.User{ID: uuid.New(), Role: auth.RoleUser}
	stranger := &auth.User{ID: uuid.New(), Role: auth.RoleUser}
	admin := &auth.User{ID: uuid.New(), Role: auth.RoleAdmin}
	disabledOwner := &auth.User{ID: owner.ID, Role: auth.RoleDisabled}

	food := func(v Visibility) *Food {
		return &Food{ID: uuid.New(), ContributorID: &owner.ID, Visibility: v}
	}
	adminFood := func(v Visibility) *Food {
		return &Food{ID: uuid.New(), ContributorID: &admin.ID, Visibility: v}
	}

	tests := []struct {
		name   string
		actor  *auth.User
		food   *Food
		action Action
		forced bool
		check  func(error) bool
	}{
		{"anonymous reads public", nil, food(VisibilityPublic), ActionRead, false, nil},
		{"anonymous reads private", nil, food(VisibilityPrivate), ActionRead, false, auth.IsUnauthenticated},
		{"stranger reads private", stranger, food(VisibilityPrivate), ActionRead, false, auth.IsForbidden},
		{"stranger reads pending", stranger, food(VisibilityPending), ActionRead, false, auth.IsForbidden},
		{"owner reads pending", owner, food(VisibilityPending), ActionRead, false, nil},
		{"admin reads private", admin, food(VisibilityPrivate), ActionRead, false, nil},
		{"disabled owner reads private", disabledOwner, food(VisibilityPrivate), ActionRead, false, auth.IsAccountDisabled},

		{"owner writes private", owner, food(VisibilityPrivate), ActionWrite, false, nil},
		{"stranger writes private", stranger, food(VisibilityPrivate), ActionWrite, true, auth.IsForbidden},
		{"admin writes foreign private without force", admin, food(VisibilityPrivate), ActionWrite, false, auth.IsConfirmationRequired},
		{"admin writes foreign private with force", admin, food(VisibilityPrivate), ActionWrite, true, nil},
		{"owner writes pending", owner, food(VisibilityPending), ActionWrite, false, auth.IsForbidden},
		{"admin writes own pending", admin, adminFood(VisibilityPending), ActionWrite, false, nil},
		{"owner writes public", owner, food(VisibilityPublic), ActionWrite, true, auth.IsForbidden},
		{"admin writes public without force", admin, adminFood(VisibilityPublic), ActionWrite, false, auth.IsConfirmationRequired},
		{"admin writes public with force", admin, food(VisibilityPublic), ActionWrite, true, nil},
		{"owner deletes private", owner, food(VisibilityPrivate), ActionDelete, false, nil},
		{"anonymous deletes public", nil, food(VisibilityPublic), ActionDelete, true, auth.IsUnauthenticated},

		{"owner submits private", owner, food(VisibilityPrivate), ActionSubmit, false, nil},
		{"stranger submits private", stranger, food(VisibilityPrivate), ActionSubmit, false, auth.IsForbidden},
		{"owner submits pending", owner, food(VisibilityPending), ActionSubmit, false, isInvalidVisibility},

		{"owner publishes pending", owner, food(VisibilityPending), ActionPublish, false, auth.IsForbidden},
		{"admin publishes foreign pending without force", admin, food(VisibilityPending), ActionPublish, false, auth.IsConfirmationRequired},
		{"admin publishes foreign pending with force", admin, food(VisibilityPending), ActionPublish, true, nil},
		{"admin publishes own pending", admin, adminFood(VisibilityPending), ActionPublish, false, nil},
		{"admin publishes private", admin, food(VisibilityPrivate), ActionPublish, true, isInvalidVisibility},

		{"owner reverts pending", owner, food(VisibilityPending), ActionRevert, false, nil},
		{"stranger reverts pending", stranger, food(VisibilityPending), ActionRevert, true, auth.IsForbidden},
		{"admin reverts pending without force", admin, food(VisibilityPending), ActionRevert, false, auth.IsConfirmationRequired},
		{"owner reverts public", owner, food(VisibilityPublic), ActionRevert, false, auth.IsForbidden},
		{"admin reverts public with force", admin, food(VisibilityPublic), ActionRevert, true, nil},
		{"owner reverts private", owner, food(VisibilityPrivate), ActionRevert, false, isInvalidVisibility},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.actor, tt.food, tt.action, tt.forced)
			if tt.check == nil {
				assert.NoError(t, err)
				return
			}
			assert.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error %v", err)
		})
	}
}

func TestAuthorizeMissingFood(t *testing.T) {
	err := Authorize(&auth.User{ID: uuid.New(), Role: auth.RoleAdmin}, nil, ActionRead, true)
	assert.True(t, auth.IsNotFound(err))
}

func TestAuthorizeOrphanedFood(t *testing.T) {
	food := &Food{ID: uuid.New(), Visibility: VisibilityPrivate}
	user := &auth.User{ID: uuid.New(), Role: auth.RoleUser}

	assert.True(t, auth.IsForbidden(Authorize(user, food, ActionWrite, true)))
}

func TestTarget(t *testing.T) {
	to, ok := Target(ActionSubmit)
	assert.True(t, ok)
	assert.Equal(t, VisibilityPending, to)

	to, ok = Target(ActionPublish)
	assert.True(t, ok)
	assert.Equal(t, VisibilityPublic, to)

	to, ok = Target(ActionRevert)
	assert.True(t, ok)
	assert.Equal(t, VisibilityPrivate, to)

	_, ok = Target(ActionWrite)
	assert.False(t, ok)
}

func isInvalidVisibility(err error) bool {
	return auth.TextCode(err) == TextCodeInvalidVisibility
}
