package models

import (
	"time"
)

type UserStatus string

const (
	UserStatusActive    UserStatus = "active"
	UserStatusPending   UserStatus = "pending"
	UserStatusLocked    UserStatus = "locked"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusArchived  UserStatus = "archived"
)

// Valid reports whether s is one of the known statuses
func (s UserStatus) Valid() bool {
	switch s {
	case UserStatusActive, UserStatusPending, UserStatusLocked, UserStatusSuspended, UserStatusArchived:
		return true
	}
	return false
}

const (
	EmailFormatText = "text"
	EmailFormatHTML = "html"
)

type User struct {
	ID                     int        `json:"id"`
	Username               string     `json:"username"`
	Email                  string     `json:"email"`
	PasswordHash           string     `json:"-"` // Never expose in JSON
	EncType                string     `json:"-"`
	Language               string     `json:"language"`
	EmailFormat            string     `json:"email_format"`
	Admin                  bool       `json:"admin"`
	Status                 UserStatus `json:"status"`
	LastLoginDate          *time.Time `json:"last_login_date,omitempty"`
	InvalidLoginCount      int        `json:"-"`
	LastInvalidLoginDate   *time.Time `json:"-"`
	LockoutDate            *time.Time `json:"lockout_date,omitempty"`
	PasswordResetRequired  bool       `json:"password_reset_required"`
	LastPasswordChangeDate *time.Time `json:"last_password_change_date,omitempty"`
	DateCreated            time.Time  `json:"date_created"`
	VerificationRequired   bool       `json:"verification_required"`

	// NewPassword carries a pending password change and is never persisted.
	NewPassword string `json:"-"`
}

type CreateUserRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Language    string `json:"language,omitempty"`
	EmailFormat string `json:"email_format,omitempty"`
	Admin       bool   `json:"admin"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User         *User     `json:"user"`
	SessionID    string    `json:"session_id"`
	SessionToken string    `json:"session_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}
