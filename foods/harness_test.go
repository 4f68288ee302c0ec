package foods_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/foods"
	"github.com/allergysnatcher/auth/repository"
)

const adminKey = "admin-secret"

type harness struct {
	repo     auth.RepositoryManager
	store    *foods.Store
	sessions *auth.SessionManager
	register *auth.RegisterUserHandler
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db))

	h := &harness{
		repo: repository.NewRepositoryManager(db),
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := func() time.Time { return h.now }

	issuer, err := auth.NewTokenIssuer(0, 0)
	require.NoError(t, err)

	hasher := auth.NewBcryptHasher(bcrypt.MinCost)
	h.sessions = auth.NewSessionManager(
		h.repo,
		issuer,
		auth.NewUserProvider(h.repo.Users(), hasher),
		auth.WithClock(clock),
	)
	h.register = auth.NewRegisterUserHandler(h.repo, hasher, adminKey).WithClock(clock)
	h.store = foods.NewStore(db).WithClock(clock)
	return h
}

func (h *harness) user(t *testing.T, username string, role auth.UserRole) *auth.User {
	t.Helper()

	msg := auth.RegisterUserMessage{
		Username: username,
		Email:    username + "@example.com",
		Password: "pw123",
	}
	if role == auth.RoleAdmin {
		msg.Role = string(auth.RoleAdmin)
		msg.AdminKey = adminKey
	}

	user, err := h.register.Execute(context.Background(), msg)
	require.NoError(t, err)

	if role == auth.RoleDisabled {
		user, err = h.repo.Users().UpdateRoleTx(context.Background(), nil, user.ID, auth.RoleDisabled)
		require.NoError(t, err)
	}
	return user
}

func (h *harness) food(t *testing.T, owner *auth.User, name string, v foods.Visibility) *foods.Food {
	t.Helper()

	f := &foods.Food{
		Name:          name,
		Brand:         "Acme",
		Calories:      120,
		ServingAmount: 30,
		ServingUnit:   "g",
		ContributorID: &owner.ID,
		Visibility:    v,
		Ingredients: []*foods.Ingredient{
			{Name: "oats"},
			{Name: "honey"},
		},
	}
	created, err := h.store.Create(context.Background(), f)
	require.NoError(t, err)
	return created
}
