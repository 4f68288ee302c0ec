package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/repository"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, e auth.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *recordingSink) types() []auth.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type harness struct {
	repo     auth.RepositoryManager
	clock    *fakeClock
	hasher   auth.PasswordHasher
	sessions *auth.SessionManager
	register *auth.RegisterUserHandler
	sink     *recordingSink
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, repository.Migrate(ctx, db))

	h := &harness{
		repo:   repository.NewRepositoryManager(db),
		clock:  newFakeClock(),
		hasher: auth.NewBcryptHasher(bcrypt.MinCost),
		sink:   &recordingSink{},
	}

	issuer, err := auth.NewTokenIssuer(0, 0)
	require.NoError(t, err)

	h.sessions = auth.NewSessionManager(
		h.repo,
		issuer,
		auth.NewUserProvider(h.repo.Users(), h.hasher),
		auth.WithClock(h.clock.Now),
		auth.WithActivitySink(h.sink),
	)
	h.register = auth.NewRegisterUserHandler(h.repo, h.hasher, "admin-secret").WithClock(h.clock.Now)

	return h
}

func (h *harness) user(t *testing.T, username, password string, role auth.UserRole) *auth.User {
	t.Helper()

	msg := auth.RegisterUserMessage{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	}
	if role == auth.RoleAdmin {
		msg.Role = string(auth.RoleAdmin)
		msg.AdminKey = "admin-secret"
	}

	user, err := h.register.Execute(context.Background(), msg)
	require.NoError(t, err)

	if role == auth.RoleDisabled {
		user, err = h.repo.Users().UpdateRoleTx(context.Background(), nil, user.ID, auth.RoleDisabled)
		require.NoError(t, err)
	}
	return user
}

func (h *harness) login(t *testing.T, username, password string) *auth.LoginResult {
	t.Helper()
	res, err := h.sessions.Login(context.Background(), username, password, auth.RequestMeta{UserAgent: "test", IP: "127.0.0.1"})
	require.NoError(t, err)
	return res
}
