package repository_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	"github.com/allergysnatcher/auth"
	"github.com/allergysnatcher/auth/repository"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, repository.Migrate(ctx, db))
	return db
}

func createUser(t *testing.T, repo auth.RepositoryManager, username string) *auth.User {
	t.Helper()
	user, err := repo.Users().CreateTx(context.Background(), nil, &auth.User{
		Username: username,
		Email:    username + "@example.com",
		Role:     auth.RoleUser,
	})
	require.NoError(t, err)
	return user
}

func newSession(userID uuid.UUID, n int, now time.Time) *auth.Session {
	return &auth.Session{
		ID:               fmt.Sprintf("ses-%d", n),
		UserID:           userID,
		SessionToken:     fmt.Sprintf("s-digest-%d", n),
		SessionExpiresAt: now.Add(time.Hour),
		RefreshToken:     fmt.Sprintf("r-digest-%d", n),
		RefreshExpiresAt: now.Add(24 * time.Hour),
		CreatedAt:        now.Add(time.Duration(n) * time.Second),
	}
}

type captureLogger struct {
	mu   sync.Mutex
	info []string
}

func (l *captureLogger) Debug(string, ...any) {}
func (l *captureLogger) Warn(string, ...any)  {}
func (l *captureLogger) Error(string, ...any) {}

func (l *captureLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.info = append(l.info, msg)
}

func TestMigrateLogsThroughComponentLogger(t *testing.T) {
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Options{Driver: repository.DriverSQLite, DSN: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	logger := &captureLogger{}
	require.NoError(t, repository.Migrate(ctx, db, repository.WithMigrationLogger(logger)))

	logger.mu.Lock()
	defer logger.mu.Unlock()
	require.NotEmpty(t, logger.info)
	for _, msg := range logger.info {
		assert.False(t, strings.HasSuffix(msg, "\n"), "message %q", msg)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := setupDB(t)
	ctx := context.Background()

	require.NoError(t, repository.Migrate(ctx, db))

	version, err := repository.MigrationVersion(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, int64(2), version)
}

func TestUsersCreateAndLookup(t *testing.T) {
	repo := repository.NewRepositoryManager(setupDB(t))
	require.NoError(t, repo.Validate())
	ctx := context.Background()

	user, err := repo.Users().CreateTx(ctx, nil, &auth.User{
		Username: "alice",
		Email:    "  Alice@Example.com ",
	})
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, auth.RoleUser, user.Role)
	assert.Equal(t, "alice@example.com", user.Email)

	byID, err := repo.Users().GetByIdentifier(ctx, user.ID.String())
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := repo.Users().GetByIdentifier(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.Users().GetByIdentifier(ctx, "ALICE@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.Users().GetByIdentifier(ctx, "nobody")
	assert.True(t, auth.IsNotFound(err))

	_, err = repo.Users().CreateTx(ctx, nil, &auth.User{Username: "alice", Email: "other@example.com"})
	assert.True(t, auth.IsConflict(err), "duplicate username: %v", err)

	_, err = repo.Users().CreateTx(ctx, nil, &auth.User{Username: "alice2", Email: "alice@example.com"})
	assert.True(t, auth.IsConflict(err), "duplicate email: %v", err)
}

func TestUsersPasswordUpsert(t *testing.T) {
	repo := repository.NewRepositoryManager(setupDB(t))
	ctx := context.Background()
	user := createUser(t, repo, "bob")

	_, err := repo.Users().GetPassword(ctx, user.ID)
	assert.True(t, auth.IsNotFound(err))

	require.NoError(t, repo.Users().SetPasswordTx(ctx, nil, user.ID, "hash-1"))
	require.NoError(t, repo.Users().SetPasswordTx(ctx, nil, user.ID, "hash-2"))

	pwd, err := repo.Users().GetPassword(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "hash-2", pwd.PasswordHash)

	err = repo.Users().SetPasswordTx(ctx, nil, uuid.New(), "orphan")
	assert.True(t, auth.IsNotFound(err), "password for a missing user: %v", err)
}

func TestUsersUpdateRoleAndDeleteCascade(t *testing.T) {
	repo := repository.NewRepositoryManager(setupDB(t))
	ctx := context.Background()
	user := createUser(t, repo, "carol")
	now := time.Now().UTC()

	require.NoError(t, repo.Users().SetPasswordTx(ctx, nil, user.ID, "hash"))
	require.NoError(t, repo.Sessions().Create(ctx, newSession(user.ID, 1, now)))
	_, err := repo.OAuthAccounts().CreateTx(ctx, nil, &auth.OAuthAccount{
		UserID: user.ID, Provider: "google", ProviderUserID: "g-1",
	})
	require.NoError(t, err)

	updated, err := repo.Users().UpdateRoleTx(ctx, nil, user.ID, auth.RoleDisabled)
	require.NoError(t, err)
	assert.Equal(t, auth.RoleDisabled, updated.Role)

	_, err = repo.Users().UpdateRoleTx(ctx, nil, uuid.New(), auth.RoleAdmin)
	assert.True(t, auth.IsNotFound(err))

	err = repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return repo.Users().DeleteTx(ctx, tx, user.ID)
	})
	require.NoError(t, err)

	_, err = repo.Users().GetPassword(ctx, user.ID)
	assert.True(t, auth.IsNotFound(err))
	_, err = repo.OAuthAccounts().FindByProviderSubject(ctx, "google", "g-1")
	assert.True(t, auth.IsNotFound(err))
	sessions, err := repo.Sessions().ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)

	err = repo.Users().DeleteTx(ctx, nil, user.ID)
	assert.True(t, auth.IsNotFound(err))
}

func TestSessionsConditionalRotate(t *testing.T) {
	repo := repository.NewRepositoryManager(setupDB(t))
	ctx := context.Background()
	user := createUser(t, repo, "dave")
	now := time.Now().UTC()

	s := newSession(user.ID, 1, now)
	require.NoError(t, repo.Sessions().Create(ctx, s))

	got, err := repo.Sessions().GetBySessionToken(ctx, "s-digest-1")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)

	next := auth.SessionRotation{
		SessionToken:     "s-digest-2",
		SessionExpiresAt: now.Add(2 * time.Hour),
		RefreshToken:     "r-digest-2",
		RefreshExpiresAt: now.Add(48 * time.Hour),
		RotatedAt:        now,
	}

	ok, err := repo.Sessions().Rotate(ctx, s.ID, "r-digest-1", next)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.Sessions().Rotate(ctx, s.ID, "r-digest-1", next)
	require.NoError(t, err)
	assert.False(t, ok, "second rotation with the old refresh digest must not match")

	_, err = repo.Sessions().GetBySessionToken(ctx, "s-digest-1")
	assert.True(t, auth.IsNotFound(err))
	_, err = repo.Sessions().GetByRefreshToken(ctx, "r-digest-1")
	assert.True(t, auth.IsNotFound(err))

	rotated, err := repo.Sessions().GetByRefreshToken(ctx, "r-digest-2")
	require.NoError(t, err)
	require.NotNil(t, rotated.RotatedAt)

	deleted, err := repo.Sessions().DeleteIfRefresh(ctx, s.ID, "r-digest-1")
	require.NoError(t, err)
	assert.False(t, deleted)

	deleted, err = repo.Sessions().DeleteIfSession(ctx, s.ID, "s-digest-2")
	require.NoError(t, err)
	assert.True(t, deleted)
}

func TestSessionsBulkOperations(t *testing.T) {
	repo := repository.NewRepositoryManager(setupDB(t))
	ctx := context.Background()
	user := createUser(t, repo, "erin")
	other := createUser(t, repo, "frank")
	now := time.Now().UTC()

	for i := 1; i <= 3; i++ {
		require.NoError(t, repo.Sessions().Create(ctx, newSession(user.ID, i, now)))
	}
	require.NoError(t, repo.Sessions().Create(ctx, newSession(other.ID, 9, now)))

	list, err := repo.Sessions().ListByUser(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "ses-3", list[0].ID, "newest first")

	n, err := repo.Sessions().DeleteByUserExcept(ctx, user.ID, "ses-2")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = repo.Sessions().DeleteByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = repo.Sessions().DeleteByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = repo.Sessions().PurgeExpired(ctx, now.Add(25*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOAuthAccounts(t *testing.T) {
	repo := repository.NewRepositoryManager(setupDB(t))
	ctx := context.Background()
	user := createUser(t, repo, "gina")

	acc, err := repo.OAuthAccounts().CreateTx(ctx, nil, &auth.OAuthAccount{
		UserID: user.ID, Provider: "github", ProviderUserID: "octo-1",
	})
	require.NoError(t, err)

	_, err = repo.OAuthAccounts().CreateTx(ctx, nil, &auth.OAuthAccount{
		UserID: user.ID, Provider: "github", ProviderUserID: "octo-2",
	})
	assert.True(t, auth.IsConflict(err), "second github link for the same user: %v", err)

	other := createUser(t, repo, "hank")
	_, err = repo.OAuthAccounts().CreateTx(ctx, nil, &auth.OAuthAccount{
		UserID: other.ID, Provider: "github", ProviderUserID: "octo-1",
	})
	assert.True(t, auth.IsConflict(err), "subject already linked: %v", err)

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	acc.AccessToken = "at"
	acc.ExpiresAt = &expires
	require.NoError(t, repo.OAuthAccounts().UpdateTokens(ctx, acc))

	found, err := repo.OAuthAccounts().FindByProviderSubject(ctx, "github", "octo-1")
	require.NoError(t, err)
	assert.Equal(t, "at", found.AccessToken)
	require.NotNil(t, found.ExpiresAt)
	assert.True(t, expires.Equal(*found.ExpiresAt))

	list, err := repo.OAuthAccounts().ListByUser(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
