package account

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amirk1998/accounts/internal/lockout"
	"github.com/amirk1998/accounts/internal/models"
)

type fakeDirectory struct {
	profiles map[int]*models.Profile
	groups   map[int][]*models.Group
	err      error
	calls    int
}

func (d *fakeDirectory) ProfileByUserID(ctx context.Context, userID int) (*models.Profile, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.profiles[userID], nil
}

func (d *fakeDirectory) GroupsByUserID(ctx context.Context, userID int) ([]*models.Group, error) {
	d.calls++
	if d.err != nil {
		return nil, d.err
	}
	return d.groups[userID], nil
}

type fakeSession struct {
	userID int
	ok     bool
}

func (s fakeSession) CurrentUserID(ctx context.Context) (int, bool) {
	return s.userID, s.ok
}

func newDirectory() *fakeDirectory {
	return &fakeDirectory{
		profiles: map[int]*models.Profile{
			7: {UserID: 7, FirstName: "Ada", LastName: "Lovelace"},
			8: {UserID: 8, LastName: "Hopper"},
		},
		groups: map[int][]*models.Group{
			7: {{ID: 1, Name: "Editors", Handle: "editors"}},
		},
	}
}

func TestString(t *testing.T) {
	dir := newDirectory()

	withProfile := New(&models.User{ID: 7, Username: "ada"}, WithDirectory(dir))
	assert.Equal(t, "Ada Lovelace", withProfile.String())
	assert.Equal(t, "Ada Lovelace", fmt.Sprint(withProfile))

	noProfile := New(&models.User{ID: 9, Username: "nobody"}, WithDirectory(dir))
	assert.Equal(t, "nobody", noProfile.String())

	disabled := New(&models.User{ID: 7, Username: "ada"})
	assert.Equal(t, "ada", disabled.String())

	failing := New(&models.User{ID: 7, Username: "ada"}, WithDirectory(&fakeDirectory{err: errors.New("down")}))
	assert.Equal(t, "ada", failing.String())
}

func TestFullNameAndFriendlyName(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory()

	ada := New(&models.User{ID: 7, Username: "ada"}, WithDirectory(dir))
	name, err := ada.FullName(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", name)
	assert.Equal(t, "Ada", ada.FriendlyName(ctx))

	// profile without first name falls back to username
	grace := New(&models.User{ID: 8, Username: "grace"}, WithDirectory(dir))
	assert.Equal(t, "grace", grace.FriendlyName(ctx))

	disabled := New(&models.User{ID: 7, Username: "ada"})
	name, err = disabled.FullName(ctx)
	require.NoError(t, err)
	assert.Empty(t, name)
	assert.Equal(t, "ada", disabled.FriendlyName(ctx))

	failing := New(&models.User{ID: 7, Username: "ada"}, WithDirectory(&fakeDirectory{err: errors.New("down")}))
	_, err = failing.FullName(ctx)
	assert.Error(t, err)
	assert.Equal(t, "ada", failing.FriendlyName(ctx))
}

func TestProfileAndGroups(t *testing.T) {
	ctx := context.Background()
	dir := newDirectory()

	ada := New(&models.User{ID: 7, Username: "ada"}, WithDirectory(dir))
	profile, err := ada.Profile(ctx)
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.Equal(t, "Lovelace", profile.LastName)

	groups, err := ada.Groups(ctx)
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "editors", groups[0].Handle)

	disabled := New(&models.User{ID: 7, Username: "ada"})
	profile, err = disabled.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)
	groups, err = disabled.Groups(ctx)
	require.NoError(t, err)
	assert.Nil(t, groups)

	// unsaved users are never looked up
	unsaved := New(&models.User{Username: "new"}, WithDirectory(dir))
	calls := dir.calls
	_, _ = unsaved.Profile(ctx)
	_, _ = unsaved.Groups(ctx)
	assert.Equal(t, calls, dir.calls)
}

func TestIsCurrent(t *testing.T) {
	ctx := context.Background()

	assert.True(t, New(&models.User{ID: 7}, WithSession(fakeSession{7, true})).IsCurrent(ctx))
	assert.False(t, New(&models.User{ID: 7}, WithSession(fakeSession{8, true})).IsCurrent(ctx))
	assert.False(t, New(&models.User{ID: 7}, WithSession(fakeSession{})).IsCurrent(ctx))
	assert.False(t, New(&models.User{ID: 7}).IsCurrent(ctx))
	assert.False(t, New(&models.User{}, WithSession(fakeSession{0, true})).IsCurrent(ctx))
}

func TestCooldown(t *testing.T) {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := lockout.Config{CooldownDuration: 15 * time.Minute}

	locked := New(&models.User{ID: 7, Status: models.UserStatusLocked, LockoutDate: &t0}, WithCooldown(cfg))

	end, ok := locked.CooldownEndTime()
	require.True(t, ok)
	assert.Equal(t, t0.Add(15*time.Minute), end)

	remaining, ok := locked.RemainingCooldown(t0.Add(5 * time.Minute))
	require.True(t, ok)
	assert.Equal(t, 10*time.Minute, remaining)

	_, ok = locked.RemainingCooldown(t0.Add(20 * time.Minute))
	assert.False(t, ok)

	active := New(&models.User{ID: 7, Status: models.UserStatusActive, LockoutDate: &t0}, WithCooldown(cfg))
	_, ok = active.CooldownEndTime()
	assert.False(t, ok)

	defaults := New(&models.User{ID: 7, Status: models.UserStatusLocked, LockoutDate: &t0})
	end, ok = defaults.CooldownEndTime()
	require.True(t, ok)
	assert.Equal(t, t0.Add(lockout.DefaultCooldownDuration), end)
}

func TestNilUser(t *testing.T) {
	ctx := context.Background()
	a := New(nil, WithDirectory(newDirectory()), WithSession(fakeSession{0, true}))

	profile, err := a.Profile(ctx)
	require.NoError(t, err)
	assert.Nil(t, profile)

	groups, err := a.Groups(ctx)
	require.NoError(t, err)
	assert.Nil(t, groups)

	assert.False(t, a.IsCurrent(ctx))
	assert.Equal(t, "", a.String())
	assert.Equal(t, "", a.FriendlyName(ctx))

	_, ok := a.CooldownEndTime()
	assert.False(t, ok)
}
