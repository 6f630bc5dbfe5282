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

// DBTX is satisfied by both *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type UserRepository struct {
	db DBTX
}

// NewUserRepository creates a new user repository
func NewUserRepository(db DBTX) *UserRepository {
	return &UserRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *UserRepository) WithTx(tx *sql.Tx) *UserRepository {
	return &UserRepository{db: tx}
}

const userColumns = `
        id, username, email, password_hash, enc_type, language, email_format,
        admin, status, last_login_date, invalid_login_count, last_invalid_login_date,
        lockout_date, password_reset_required, last_password_change_date,
        verification_required, date_created`

// Create creates a new user
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
        INSERT INTO users (
            username, email, password_hash, enc_type, language, email_format,
            admin, status, password_reset_required, verification_required,
            date_created, date_updated
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	if user.Status == "" {
		user.Status = models.UserStatusActive
	}
	if user.EmailFormat == "" {
		user.EmailFormat = models.EmailFormatText
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.EncType,
		user.Language,
		user.EmailFormat,
		user.Admin,
		user.Status,
		user.PasswordResetRequired,
		user.VerificationRequired,
		now,
		now,
	)

	if err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get user ID: %w", err)
	}

	user.ID = int(id)
	user.DateCreated = now

	return nil
}

// GetByID retrieves a user by ID
func (r *UserRepository) GetByID(ctx context.Context, id int) (*models.User, error) {
	return r.getOne(ctx, "SELECT"+userColumns+" FROM users WHERE id = ?", id)
}

// GetByUsername retrieves a user by username
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getOne(ctx, "SELECT"+userColumns+" FROM users WHERE username = ?", username)
}

// GetByEmail retrieves a user by email
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getOne(ctx, "SELECT"+userColumns+" FROM users WHERE email = ?", email)
}

// ListLocked returns all users currently in the locked status
func (r *UserRepository) ListLocked(ctx context.Context) ([]*models.User, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT"+userColumns+" FROM users WHERE status = ? ORDER BY lockout_date",
		models.UserStatusLocked,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list locked users: %w", err)
	}
	defer rows.Close()

	var users []*models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}

	return users, rows.Err()
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*models.User, error) {
	user, err := scanUser(r.db.QueryRowContext(ctx, query, arg))
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	user := &models.User{}
	err := row.Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.EncType,
		&user.Language,
		&user.EmailFormat,
		&user.Admin,
		&user.Status,
		&user.LastLoginDate,
		&user.InvalidLoginCount,
		&user.LastInvalidLoginDate,
		&user.LockoutDate,
		&user.PasswordResetRequired,
		&user.LastPasswordChangeDate,
		&user.VerificationRequired,
		&user.DateCreated,
	)
	if err != nil {
		return nil, err
	}

	return user, nil
}

// RecordLogin stamps a successful login and clears the invalid login counters
func (r *UserRepository) RecordLogin(ctx context.Context, userID int, at time.Time) error {
	query := `
        UPDATE users
        SET last_login_date = ?, invalid_login_count = 0, last_invalid_login_date = NULL,
            date_updated = ?
        WHERE id = ?
    `

	return r.exec(ctx, "record login", query, at, at, userID)
}

// RecordInvalidLogin increments the invalid login count and returns the new value
func (r *UserRepository) RecordInvalidLogin(ctx context.Context, userID int, at time.Time) (int, error) {
	query := `
        UPDATE users
        SET invalid_login_count = invalid_login_count + 1, last_invalid_login_date = ?,
            date_updated = ?
        WHERE id = ?
    `

	if err := r.exec(ctx, "record invalid login", query, at, at, userID); err != nil {
		return 0, err
	}

	var count int
	err := r.db.QueryRowContext(ctx, "SELECT invalid_login_count FROM users WHERE id = ?", userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to read invalid login count: %w", err)
	}

	return count, nil
}

// Lock moves the user into the locked status as of at and reports whether
// it did. An already locked user keeps its original lockout date.
func (r *UserRepository) Lock(ctx context.Context, userID int, at time.Time) (bool, error) {
	query := `
        UPDATE users
        SET status = ?, lockout_date = ?, date_updated = ?
        WHERE id = ? AND status != ?
    `

	err := r.exec(ctx, "lock account", query,
		models.UserStatusLocked, at, at, userID, models.UserStatusLocked)
	if !stderrors.Is(err, errors.ErrUserNotFound) {
		return err == nil, err
	}

	// no row changed: either missing or locked already
	if _, err := r.GetByID(ctx, userID); err != nil {
		return false, err
	}
	return false, nil
}

// Unlock returns a locked user to active and clears the lockout state
func (r *UserRepository) Unlock(ctx context.Context, userID int, at time.Time) error {
	query := `
        UPDATE users
        SET status = ?, lockout_date = NULL, invalid_login_count = 0,
            last_invalid_login_date = NULL, date_updated = ?
        WHERE id = ? AND status = ?
    `

	return r.exec(ctx, "unlock account", query,
		models.UserStatusActive, at, userID, models.UserStatusLocked)
}

// SetStatus changes the status of a user that is not locked.
// Locked users leave that status through Unlock only.
func (r *UserRepository) SetStatus(ctx context.Context, userID int, status models.UserStatus, at time.Time) error {
	if !status.Valid() || status == models.UserStatusLocked {
		return fmt.Errorf("%w: status %q", errors.ErrInvalidInput, status)
	}

	query := `
        UPDATE users
        SET status = ?, date_updated = ?
        WHERE id = ? AND status != ?
    `

	return r.exec(ctx, "set status", query, status, at, userID, models.UserStatusLocked)
}

// UpdatePassword stores a new password hash and clears the reset flag
func (r *UserRepository) UpdatePassword(ctx context.Context, userID int, passwordHash string, at time.Time) error {
	query := `
        UPDATE users
        SET password_hash = ?, last_password_change_date = ?, password_reset_required = 0,
            date_updated = ?
        WHERE id = ?
    `

	return r.exec(ctx, "update password", query, passwordHash, at, at, userID)
}

// RequirePasswordReset flags the user to change password on next login
func (r *UserRepository) RequirePasswordReset(ctx context.Context, userID int) error {
	query := `
        UPDATE users
        SET password_reset_required = 1
        WHERE id = ?
    `

	return r.exec(ctx, "require password reset", query, userID)
}

// exec runs an update that must touch exactly one row
func (r *UserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return errors.ErrUserNotFound
	}

	return nil
}

// Delete archives a user; rows are kept for the audit trail
func (r *UserRepository) Delete(ctx context.Context, userID int) error {
	query := `
        UPDATE users
        SET status = ?, lockout_date = NULL, date_updated = ?
        WHERE id = ?
    `

	return r.exec(ctx, "delete user", query, models.UserStatusArchived, time.Now().UTC(), userID)
}
