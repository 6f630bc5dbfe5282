// Package account wraps a stored user with the lookups that other parts of
// the application provide: profiles and groups through a Directory, and the
// logged-in user through a Session. Both are optional; an account built
// without a Directory behaves as if the users feature were disabled.
package account

import (
	"context"
	"time"

	"github.com/amirk1998/accounts/internal/lockout"
	"github.com/amirk1998/accounts/internal/models"
)

// Directory looks up profile and group data for users.
type Directory interface {
	// ProfileByUserID returns nil, nil when the user has no profile.
	ProfileByUserID(ctx context.Context, userID int) (*models.Profile, error)
	GroupsByUserID(ctx context.Context, userID int) ([]*models.Group, error)
}

// Session reports the user of the current session.
type Session interface {
	CurrentUserID(ctx context.Context) (int, bool)
}

type Account struct {
	*models.User

	directory Directory
	session   Session
	cooldown  lockout.Config
}

type Option func(*Account)

// WithDirectory enables profile and group lookups.
func WithDirectory(d Directory) Option {
	return func(a *Account) {
		a.directory = d
	}
}

// WithSession enables IsCurrent.
func WithSession(s Session) Option {
	return func(a *Account) {
		a.session = s
	}
}

// WithCooldown sets the lockout cooldown used by the cooldown accessors.
func WithCooldown(cfg lockout.Config) Option {
	return func(a *Account) {
		a.cooldown = cfg
	}
}

// New wraps user. The cooldown defaults to lockout.DefaultCooldownDuration.
// A nil user is replaced by an empty one with ID zero.
func New(user *models.User, opts ...Option) *Account {
	if user == nil {
		user = &models.User{}
	}
	a := &Account{
		User:     user,
		cooldown: lockout.Config{CooldownDuration: lockout.DefaultCooldownDuration},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *Account) Profile(ctx context.Context) (*models.Profile, error) {
	if a.directory == nil || a.ID == 0 {
		return nil, nil
	}
	return a.directory.ProfileByUserID(ctx, a.ID)
}

func (a *Account) Groups(ctx context.Context) ([]*models.Group, error) {
	if a.directory == nil || a.ID == 0 {
		return nil, nil
	}
	return a.directory.GroupsByUserID(ctx, a.ID)
}

// FullName returns the profile's full name, or "" when there is none.
func (a *Account) FullName(ctx context.Context) (string, error) {
	profile, err := a.Profile(ctx)
	if err != nil || profile == nil {
		return "", err
	}
	return profile.FullName(), nil
}

// FriendlyName returns the profile's first name, falling back to the username.
func (a *Account) FriendlyName(ctx context.Context) string {
	profile, err := a.Profile(ctx)
	if err == nil && profile != nil && profile.FirstName != "" {
		return profile.FirstName
	}
	return a.Username
}

// String returns the full name, or the username when no full name is known.
func (a *Account) String() string {
	if name, err := a.FullName(context.Background()); err == nil && name != "" {
		return name
	}
	return a.Username
}

// IsCurrent reports whether this account belongs to the logged-in user.
func (a *Account) IsCurrent(ctx context.Context) bool {
	if a.ID == 0 || a.session == nil {
		return false
	}
	current, ok := a.session.CurrentUserID(ctx)
	return ok && current == a.ID
}

func (a *Account) CooldownEndTime() (time.Time, bool) {
	return lockout.CooldownEndTime(lockout.RecordFor(a.User), a.cooldown)
}

func (a *Account) RemainingCooldown(now time.Time) (time.Duration, bool) {
	return lockout.RemainingCooldown(lockout.RecordFor(a.User), a.cooldown, now)
}
