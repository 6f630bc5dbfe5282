package errors

import (
	"errors"
	"fmt"
	"time"
)

// Custom error types for better error handling
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrUnauthorized       = errors.New("unauthorized access")
	ErrNotLoggedIn        = errors.New("not logged in")

	// Account state errors
	ErrAccountLocked    = errors.New("account is locked")
	ErrAccountSuspended = errors.New("account is suspended")
	ErrAccountPending   = errors.New("account is pending verification")
	ErrAccountArchived  = errors.New("account is archived")

	// Validation errors
	ErrInvalidInput       = errors.New("invalid input")
	ErrWeakPassword       = errors.New("password does not meet requirements")
	ErrInvalidEmail       = errors.New("invalid email format")
	ErrInvalidUsername    = errors.New("invalid username format")
	ErrInvalidLanguage    = errors.New("invalid language code")
	ErrInvalidEmailFormat = errors.New("invalid email format preference")

	// Database errors
	ErrDatabaseConnection = errors.New("database connection failed")
	ErrTransactionFailed  = errors.New("transaction failed")
	ErrRecordNotFound     = errors.New("record not found")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
)

// AppError wraps errors with additional context
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// LockedError reports a login refused during the lockout cooldown.
// It matches ErrAccountLocked with errors.Is.
type LockedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("%v: try again in %s", ErrAccountLocked, e.Remaining.Round(time.Second))
}

func (e *LockedError) Unwrap() error {
	return ErrAccountLocked
}

// NewLockedError creates a lockout error for the remaining cooldown
func NewLockedError(until time.Time, remaining time.Duration) *LockedError {
	return &LockedError{
		Until:     until,
		Remaining: remaining,
	}
}
