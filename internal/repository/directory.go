package repository

import (
	"context"
	stderrors "errors"

	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/pkg/errors"
)

// Directory serves profile and group lookups for accounts
type Directory struct {
	profiles *ProfileRepository
	groups   *GroupRepository
}

func NewDirectory(profiles *ProfileRepository, groups *GroupRepository) *Directory {
	return &Directory{profiles: profiles, groups: groups}
}

// ProfileByUserID returns nil without error when the user has no profile.
func (d *Directory) ProfileByUserID(ctx context.Context, userID int) (*models.Profile, error) {
	profile, err := d.profiles.GetByUserID(ctx, userID)
	if stderrors.Is(err, errors.ErrRecordNotFound) {
		return nil, nil
	}
	return profile, err
}

func (d *Directory) GroupsByUserID(ctx context.Context, userID int) ([]*models.Group, error) {
	return d.groups.GetByUserID(ctx, userID)
}
