package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/pkg/errors"
)

type ProfileRepository struct {
	db DBTX
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db DBTX) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// GetByUserID retrieves the profile of a user
func (r *ProfileRepository) GetByUserID(ctx context.Context, userID int) (*models.Profile, error) {
	query := `
        SELECT id, user_id, COALESCE(first_name, ''), COALESCE(last_name, ''), created_at, updated_at
        FROM user_profiles
        WHERE user_id = ?
    `

	profile := &models.Profile{}
	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&profile.ID,
		&profile.UserID,
		&profile.FirstName,
		&profile.LastName,
		&profile.CreatedAt,
		&profile.UpdatedAt,
	)

	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	return profile, nil
}

// Upsert creates or replaces the profile of profile.UserID
func (r *ProfileRepository) Upsert(ctx context.Context, profile *models.Profile) error {
	query := `
        INSERT INTO user_profiles (user_id, first_name, last_name, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?)
        ON CONFLICT(user_id) DO UPDATE SET
            first_name = excluded.first_name,
            last_name = excluded.last_name,
            updated_at = excluded.updated_at
    `

	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, query,
		profile.UserID,
		profile.FirstName,
		profile.LastName,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}

	stored, err := r.GetByUserID(ctx, profile.UserID)
	if err != nil {
		return err
	}
	*profile = *stored

	return nil
}
