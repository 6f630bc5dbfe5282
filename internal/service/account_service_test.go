package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/accounts/internal/account"
	"github.com/amirk1998/accounts/internal/audit"
	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/internal/repository"
	"github.com/amirk1998/accounts/pkg/errors"
)

func newAccountService(f *fixture, enabled bool) *AccountService {
	return newAccountServiceWithLog(f, enabled, zerolog.Nop())
}

func newAccountServiceWithLog(f *fixture, enabled bool, log zerolog.Logger) *AccountService {
	profiles := repository.NewProfileRepository(f.db)
	groups := repository.NewGroupRepository(f.db)

	var directory account.Directory
	if enabled {
		directory = repository.NewDirectory(profiles, groups)
	}

	svc := NewAccountService(f.users, profiles, groups, f.sessions, directory, f.auth, f.auth.Cooldown(), f.audit, log)
	svc.now = f.clock.Now
	return svc
}

func strPtr(s string) *string { return &s }

func TestAccountServiceProfileAndGroups(t *testing.T) {
	f := newFixture(t, nil)
	svc := newAccountService(f, true)
	ctx := context.Background()
	user := f.register(t, "alice")

	acct, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", acct.String())
	assert.Equal(t, "alice", acct.FriendlyName(ctx))

	_, err = svc.UpdateProfile(ctx, user.ID, &models.UpdateProfileRequest{FirstName: strPtr("Alice")})
	require.NoError(t, err)
	profile, err := svc.UpdateProfile(ctx, user.ID, &models.UpdateProfileRequest{LastName: strPtr("Liddell")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.FirstName)
	assert.Equal(t, "Liddell", profile.LastName)

	_, err = svc.UpdateProfile(ctx, user.ID, &models.UpdateProfileRequest{FirstName: strPtr("<b>")})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	acct, err = svc.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice Liddell", acct.String())
	assert.Equal(t, "Alice", acct.FriendlyName(ctx))

	admins, err := svc.CreateGroup(ctx, &models.CreateGroupRequest{Name: "Administrators", Handle: "admins"})
	require.NoError(t, err)
	require.NoError(t, svc.AddToGroup(ctx, admins.ID, user.ID))
	assert.ErrorIs(t, svc.AddToGroup(ctx, admins.ID, 9999), errors.ErrUserNotFound)

	_, err = svc.CreateGroup(ctx, &models.CreateGroupRequest{Handle: "empty"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	_, err = svc.CreateGroup(ctx, &models.CreateGroupRequest{Name: "Editors", Handle: "Site Editors"})
	assert.ErrorIs(t, err, errors.ErrInvalidInput)

	groups, err := acct.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "admins", groups[0].Handle)
}

func TestAccountServiceWithoutDirectory(t *testing.T) {
	f := newFixture(t, nil)
	svc := newAccountService(f, false)
	ctx := context.Background()
	user := f.register(t, "alice")

	_, err := svc.UpdateProfile(ctx, user.ID, &models.UpdateProfileRequest{FirstName: strPtr("Alice")})
	assert.ErrorIs(t, err, errors.ErrUnauthorized)

	acct, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)

	profile, err := acct.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	groups, err := acct.Groups(ctx)
	require.NoError(t, err)
	assert.Nil(t, groups)

	assert.Equal(t, "alice", acct.String())
}

func TestAccountServiceCurrent(t *testing.T) {
	f := newFixture(t, nil)
	svc := newAccountService(f, true)
	ctx := context.Background()
	alice := f.register(t, "alice")
	bob := f.register(t, "bob")

	_, err := svc.Current(ctx)
	assert.ErrorIs(t, err, errors.ErrNotLoggedIn)

	_, err = f.login("alice", password)
	require.NoError(t, err)

	current, err := svc.Current(ctx)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, current.ID)
	assert.True(t, current.IsCurrent(ctx))

	other, err := svc.Get(ctx, bob.ID)
	require.NoError(t, err)
	assert.False(t, other.IsCurrent(ctx))
}

func TestAccountServiceLockedCooldown(t *testing.T) {
	f := newFixture(t, func(o *AuthOptions) { o.MaxInvalidLogins = 1 })
	svc := newAccountService(f, true)
	ctx := context.Background()
	f.register(t, "alice")
	f.register(t, "bob")
	lockedAt := f.clock.now

	_, err := f.login("alice", "Wrong-Horse-42")
	require.ErrorIs(t, err, errors.ErrAccountLocked)

	locked, err := svc.Locked(ctx)
	require.NoError(t, err)
	require.Len(t, locked, 1)
	assert.Equal(t, "alice", locked[0].Username)

	end, ok := locked[0].CooldownEndTime()
	require.True(t, ok)
	assert.True(t, lockedAt.Add(15*time.Minute).Equal(end))

	remaining, ok := locked[0].RemainingCooldown(lockedAt.Add(5 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, remaining)

	_, ok = locked[0].RemainingCooldown(lockedAt.Add(20 * time.Minute))
	assert.False(t, ok)

	bob, err := svc.GetByUsername(ctx, "bob")
	require.NoError(t, err)
	_, ok = bob.CooldownEndTime()
	assert.False(t, ok)
}

func TestAccountServiceSuspendAndActivate(t *testing.T) {
	f := newFixture(t, nil)
	svc := newAccountService(f, true)
	ctx := context.Background()
	user := f.register(t, "alice")

	_, err := f.login("alice", password)
	require.NoError(t, err)

	require.NoError(t, svc.Suspend(ctx, user.ID))
	_, ok := f.auth.CurrentUserID(ctx)
	assert.False(t, ok)

	_, err = f.login("alice", password)
	assert.ErrorIs(t, err, errors.ErrAccountSuspended)

	require.NoError(t, svc.Activate(ctx, user.ID))
	_, err = f.login("alice", password)
	assert.NoError(t, err)

	events, err := f.audit.QueryLogs(audit.QueryFilters{Action: audit.ActionStatusChanged})
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, "suspended -> active", events[0].Metadata)

	assert.ErrorIs(t, svc.Suspend(ctx, 9999), errors.ErrUserNotFound)
}

func TestAccountServiceActivatesPendingUser(t *testing.T) {
	f := newFixture(t, func(o *AuthOptions) { o.VerificationRequired = true })
	svc := newAccountService(f, true)
	user := f.register(t, "alice")

	require.NoError(t, svc.Activate(context.Background(), user.ID))
	_, err := f.login("alice", password)
	assert.NoError(t, err)
}

func TestAccountServiceStatusChangeRefusesLockedUser(t *testing.T) {
	f := newFixture(t, func(o *AuthOptions) { o.MaxInvalidLogins = 1 })
	svc := newAccountService(f, true)
	ctx := context.Background()
	user := f.register(t, "alice")

	_, err := f.login("alice", "Wrong-Horse-42")
	require.ErrorIs(t, err, errors.ErrAccountLocked)

	err = svc.Suspend(ctx, user.ID)
	assert.ErrorIs(t, err, errors.ErrAccountLocked)

	stored, err := f.users.GetByID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.UserStatusLocked, stored.Status)
}

func TestAccountServiceArchive(t *testing.T) {
	f := newFixture(t, nil)
	svc := newAccountService(f, true)
	ctx := context.Background()
	user := f.register(t, "alice")

	resp, err := f.login("alice", password)
	require.NoError(t, err)

	require.NoError(t, svc.Archive(ctx, user.ID))
	_, err = f.sessions.GetActiveByToken(ctx, resp.SessionToken)
	assert.ErrorIs(t, err, errors.ErrRecordNotFound)

	_, err = f.login("alice", password)
	assert.ErrorIs(t, err, errors.ErrAccountArchived)
}

func TestAccountServiceRequirePasswordReset(t *testing.T) {
	f := newFixture(t, nil)
	svc := newAccountService(f, true)
	ctx := context.Background()
	user := f.register(t, "alice")

	require.NoError(t, svc.RequirePasswordReset(ctx, user.ID))

	resp, err := f.login("alice", password)
	require.NoError(t, err)
	assert.True(t, resp.User.PasswordResetRequired)

	require.NoError(t, f.auth.ChangePassword(ctx, user.ID, &models.ChangePasswordRequest{
		CurrentPassword: password,
		NewPassword:     "Battery-Staple-77",
	}))

	resp, err = f.login("alice", "Battery-Staple-77")
	require.NoError(t, err)
	assert.False(t, resp.User.PasswordResetRequired)

	assert.ErrorIs(t, svc.RequirePasswordReset(ctx, 9999), errors.ErrUserNotFound)
}

func TestAccountServiceLogsAuditFailures(t *testing.T) {
	f := newFixture(t, nil)
	var buf bytes.Buffer
	svc := newAccountServiceWithLog(f, true, zerolog.New(&buf))
	user := f.register(t, "alice")

	// the audit file is gone, so every audit write fails
	require.NoError(t, f.audit.Close())

	profile, err := svc.UpdateProfile(context.Background(), user.ID, &models.UpdateProfileRequest{FirstName: strPtr("Alice")})
	require.NoError(t, err)
	assert.Equal(t, "Alice", profile.FirstName)
	assert.Contains(t, buf.String(), "audit log failed")
	assert.Contains(t, buf.String(), audit.ActionProfileUpdated)
}
