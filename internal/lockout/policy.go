// Package lockout computes the cooldown window of accounts locked after
// repeated failed logins.
//
// Every function is a pure derivation from its arguments. The current time is
// always supplied by the caller and records are never modified, so a locked
// account whose cooldown has elapsed stays locked until the authentication
// service transitions it.
package lockout

import (
	"time"

	"github.com/amirk1998/accounts/internal/models"
)

// DefaultCooldownDuration applies when no cooldown is configured.
const DefaultCooldownDuration = 5 * time.Minute

// Record is a read-only snapshot of the lockout state of an account.
type Record struct {
	Status models.UserStatus

	// LockoutDate is set when Status becomes locked and is ignored otherwise.
	LockoutDate *time.Time
}

// RecordFor snapshots the lockout state of u.
func RecordFor(u *models.User) Record {
	if u == nil {
		return Record{}
	}
	rec := Record{Status: u.Status}
	if u.LockoutDate != nil {
		d := *u.LockoutDate
		rec.LockoutDate = &d
	}
	return rec
}

// Config holds the process-wide cooldown settings.
type Config struct {
	CooldownDuration time.Duration
}

// CooldownEndTime returns the instant a locked account leaves its cooldown.
// The second result is false for accounts that are not locked and for locked
// records missing a lockout date.
func CooldownEndTime(rec Record, cfg Config) (time.Time, bool) {
	if rec.Status != models.UserStatusLocked || rec.LockoutDate == nil {
		return time.Time{}, false
	}
	return rec.LockoutDate.Add(cfg.CooldownDuration), true
}

// RemainingCooldown returns how long a locked account still has to wait at
// now. The second result is false when the account is not locked or the
// cooldown ended at or before now; the returned duration is then zero.
func RemainingCooldown(rec Record, cfg Config, now time.Time) (time.Duration, bool) {
	end, ok := CooldownEndTime(rec, cfg)
	if !ok || !now.Before(end) {
		return 0, false
	}
	return end.Sub(now), true
}

// IsLocked reports whether the account is still inside its cooldown at now.
func IsLocked(rec Record, cfg Config, now time.Time) bool {
	_, ok := RemainingCooldown(rec, cfg, now)
	return ok
}
