package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/accounts/internal/database"
	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/pkg/errors"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()
	cfg := database.DefaultConfig(filepath.Join(t.TempDir(), "accounts.db"), "test-key-0123456789abcdef0123456789")
	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func createUser(t *testing.T, repo *UserRepository, username string) *models.User {
	t.Helper()

	user := &models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "hash",
		EncType:      "argon2id",
		Language:     "en",
	}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))

	user := createUser(t, repo, "alice")
	assert.NotZero(t, user.ID)
	assert.Equal(t, models.UserStatusActive, user.Status)
	assert.Equal(t, models.EmailFormatText, user.EmailFormat)

	byID, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)
	assert.Equal(t, models.UserStatusActive, byID.Status)
	assert.Equal(t, "text", byID.EmailFormat)
	assert.Nil(t, byID.LockoutDate)
	assert.Nil(t, byID.LastLoginDate)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byName.ID)

	byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)

	_, err = repo.GetByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}

func TestUserRepository_LockLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	user := createUser(t, repo, "bob")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	count, err := repo.RecordInvalidLogin(ctx, user.ID, at)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	count, err = repo.RecordInvalidLogin(ctx, user.ID, at.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	changed, err := repo.Lock(ctx, user.ID, at)
	require.NoError(t, err)
	assert.True(t, changed)

	// a second lock keeps the original lockout date
	changed, err = repo.Lock(ctx, user.ID, at.Add(10*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)

	locked, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusLocked, locked.Status)
	require.NotNil(t, locked.LockoutDate)
	assert.True(t, at.Equal(*locked.LockoutDate))
	assert.Equal(t, 2, locked.InvalidLoginCount)

	list, err := repo.ListLocked(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, user.ID, list[0].ID)

	// a locked user only leaves the status through Unlock
	err = repo.SetStatus(ctx, user.ID, models.UserStatusSuspended, at)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)

	require.NoError(t, repo.Unlock(ctx, user.ID, at.Add(time.Hour)))

	unlocked, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusActive, unlocked.Status)
	assert.Nil(t, unlocked.LockoutDate)
	assert.Zero(t, unlocked.InvalidLoginCount)
	assert.Nil(t, unlocked.LastInvalidLoginDate)
}

func TestUserRepository_LockUnknownUser(t *testing.T) {
	repo := NewUserRepository(openTestDB(t))

	changed, err := repo.Lock(context.Background(), 9999, time.Now())
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
	assert.False(t, changed)
}

func TestUserRepository_LockedRequiresDate(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	user := createUser(t, NewUserRepository(db), "carol")

	_, err := db.ExecContext(ctx, "UPDATE users SET status = 'locked' WHERE id = ?", user.ID)
	assert.Error(t, err)
}

func TestUserRepository_RecordLoginClearsCounters(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	user := createUser(t, repo, "dave")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	_, err := repo.RecordInvalidLogin(ctx, user.ID, at)
	require.NoError(t, err)
	require.NoError(t, repo.RecordLogin(ctx, user.ID, at.Add(time.Minute)))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, got.InvalidLoginCount)
	require.NotNil(t, got.LastLoginDate)
	assert.True(t, at.Add(time.Minute).Equal(*got.LastLoginDate))
}

func TestUserRepository_PasswordAndStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(openTestDB(t))
	user := createUser(t, repo, "erin")
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.RequirePasswordReset(ctx, user.ID))
	require.NoError(t, repo.UpdatePassword(ctx, user.ID, "new-hash", at))

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", got.PasswordHash)
	assert.False(t, got.PasswordResetRequired)
	require.NotNil(t, got.LastPasswordChangeDate)

	require.NoError(t, repo.SetStatus(ctx, user.ID, models.UserStatusSuspended, at))
	assert.ErrorIs(t, repo.SetStatus(ctx, user.ID, "bogus", at), errors.ErrInvalidInput)
	assert.ErrorIs(t, repo.SetStatus(ctx, user.ID, models.UserStatusLocked, at), errors.ErrInvalidInput)

	require.NoError(t, repo.Delete(ctx, user.ID))
	got, err = repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusArchived, got.Status)

	assert.ErrorIs(t, repo.Delete(ctx, 9999), errors.ErrUserNotFound)
}

func TestUserRepository_WithTxRollback(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	repo := NewUserRepository(db)
	user := createUser(t, repo, "frank")
	tm := database.NewTransactionManager(db)

	err := tm.Execute(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if _, err := repo.WithTx(tx).RecordInvalidLogin(ctx, user.ID, time.Now()); err != nil {
			return err
		}
		return errors.ErrTransactionFailed
	})
	assert.ErrorIs(t, err, errors.ErrTransactionFailed)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Zero(t, got.InvalidLoginCount)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	users := NewUserRepository(db)
	profiles := NewProfileRepository(db)
	groups := NewGroupRepository(db)
	dir := NewDirectory(profiles, groups)

	user := createUser(t, users, "grace")

	profile, err := dir.ProfileByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Nil(t, profile)

	list, err := dir.GroupsByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	saved := &models.Profile{UserID: user.ID, FirstName: "Grace", LastName: "Hopper"}
	require.NoError(t, profiles.Upsert(ctx, saved))
	assert.NotZero(t, saved.ID)

	saved.LastName = "Murray Hopper"
	require.NoError(t, profiles.Upsert(ctx, saved))

	profile, err = dir.ProfileByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Grace Murray Hopper", profile.FullName())

	editors := &models.Group{Name: "Editors", Handle: "editors"}
	admins := &models.Group{Name: "Admins", Handle: "admins"}
	require.NoError(t, groups.Create(ctx, editors))
	require.NoError(t, groups.Create(ctx, admins))
	require.NoError(t, groups.AddMember(ctx, editors.ID, user.ID))
	require.NoError(t, groups.AddMember(ctx, admins.ID, user.ID))
	require.NoError(t, groups.AddMember(ctx, admins.ID, user.ID))

	list, err = dir.GroupsByUserID(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "admins", list[0].Handle)
	assert.Equal(t, "editors", list[1].Handle)
}

func TestSessionRepository(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	user := createUser(t, NewUserRepository(db), "heidi")
	sessions := NewSessionRepository(db)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"s1", "s2", "s3"} {
		require.NoError(t, sessions.Create(ctx, &models.Session{
			ID:        id,
			UserID:    user.ID,
			Token:     "token-" + id,
			CreatedAt: now,
			ExpiresAt: now.Add(time.Hour),
		}))
	}

	got, err := sessions.GetActiveByToken(ctx, "token-s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.ID)
	assert.Equal(t, user.ID, got.UserID)

	require.NoError(t, sessions.Revoke(ctx, "s1"))
	_, err = sessions.GetActiveByToken(ctx, "token-s1")
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)

	require.NoError(t, sessions.RevokeAllForUser(ctx, user.ID, "s3"))
	_, err = sessions.GetActiveByToken(ctx, "token-s2")
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)
	_, err = sessions.GetActiveByToken(ctx, "token-s3")
	assert.NoError(t, err)

	require.NoError(t, sessions.RevokeAllForUser(ctx, user.ID, ""))
	_, err = sessions.GetActiveByToken(ctx, "token-s3")
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)
}
