package audit

import "time"

type LogLevel string

const (
	LevelInfo     LogLevel = "INFO"
	LevelWarning  LogLevel = "WARNING"
	LevelError    LogLevel = "ERROR"
	LevelCritical LogLevel = "CRITICAL"
)

// Account actions recorded in the audit trail
const (
	ActionRegister          = "REGISTER"
	ActionLoginSuccess      = "LOGIN_SUCCESS"
	ActionLoginInvalid      = "LOGIN_INVALID_PASSWORD"
	ActionLoginLocked       = "LOGIN_ACCOUNT_LOCKED"
	ActionLoginRefused      = "LOGIN_ACCOUNT_REFUSED"
	ActionLoginRateLimited  = "LOGIN_RATE_LIMITED"
	ActionLoginUnknownUser  = "LOGIN_USER_NOT_FOUND"
	ActionAccountLocked     = "ACCOUNT_LOCKED"
	ActionAccountUnlocked   = "ACCOUNT_UNLOCKED"
	ActionCooldownElapsed   = "ACCOUNT_COOLDOWN_ELAPSED"
	ActionPasswordChanged   = "PASSWORD_CHANGED"
	ActionProfileUpdated    = "PROFILE_UPDATED"
	ActionLogout            = "LOGOUT"
	ActionFailedLoginBurst  = "FAILED_LOGIN_THRESHOLD"
	ActionLockedAccountScan = "LOCKED_ACCOUNT_SCAN"
	ActionStatusChanged     = "ACCOUNT_STATUS_CHANGED"
	ActionResetRequired     = "PASSWORD_RESET_REQUIRED"
)

type Event struct {
	ID        int64     `json:"id"`
	RequestID string    `json:"request_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Level     LogLevel  `json:"level"`
	UserID    *int      `json:"user_id,omitempty"`
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	Success   bool      `json:"success"`
	ErrorMsg  string    `json:"error_msg,omitempty"`
	Metadata  string    `json:"metadata,omitempty"`
}

type QueryFilters struct {
	StartTime *time.Time
	EndTime   *time.Time
	UserID    *int
	Action    string
	Level     LogLevel
	Success   *bool
	Limit     int
}
