package repository

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"

	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/pkg/errors"
)

type SessionRepository struct {
	db DBTX
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create stores a new active session
func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `
        INSERT INTO sessions (id, user_id, session_token, created_at, expires_at, is_active)
        VALUES (?, ?, ?, ?, ?, 1)
    `

	if _, err := r.db.ExecContext(ctx, query, s.ID, s.UserID, s.Token, s.CreatedAt, s.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetActiveByToken retrieves an active session by its token
func (r *SessionRepository) GetActiveByToken(ctx context.Context, token string) (*models.Session, error) {
	query := `
        SELECT id, user_id, session_token, created_at, expires_at
        FROM sessions
        WHERE session_token = ? AND is_active = 1
    `

	s := &models.Session{}
	err := r.db.QueryRowContext(ctx, query, token).Scan(&s.ID, &s.UserID, &s.Token, &s.CreatedAt, &s.ExpiresAt)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return s, nil
}

// Revoke deactivates a session
func (r *SessionRepository) Revoke(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, "UPDATE sessions SET is_active = 0 WHERE id = ?", id); err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	return nil
}

// RevokeAllForUser deactivates every session of a user except keep,
// which may be empty.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int, keep string) error {
	query := "UPDATE sessions SET is_active = 0 WHERE user_id = ? AND id != ?"
	if _, err := r.db.ExecContext(ctx, query, userID, keep); err != nil {
		return fmt.Errorf("failed to revoke sessions: %w", err)
	}
	return nil
}
