package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/accounts/internal/lockout"
	"github.com/amirk1998/accounts/internal/models"
)

// LockedLister lists accounts currently in the locked status
type LockedLister interface {
	ListLocked(ctx context.Context) ([]*models.User, error)
}

type Monitor struct {
	logger    *Logger
	users     LockedLister
	cooldown  lockout.Config
	window    time.Duration
	threshold int
	log       zerolog.Logger
	now       func() time.Time
}

// NewMonitor creates a new security monitor
func NewMonitor(logger *Logger, users LockedLister, cooldown lockout.Config, log zerolog.Logger) *Monitor {
	return &Monitor{
		logger:    logger,
		users:     users,
		cooldown:  cooldown,
		window:    5 * time.Minute,
		threshold: 5,
		log:       log.With().Str("component", "monitor").Logger(),
		now:       time.Now,
	}
}

// DetectFailedLogins flags users with a burst of invalid passwords inside the window
func (m *Monitor) DetectFailedLogins() ([]int, error) {
	now := m.now()
	start := now.Add(-m.window)
	failed := false

	events, err := m.logger.QueryLogs(QueryFilters{
		StartTime: &start,
		EndTime:   &now,
		Action:    ActionLoginInvalid,
		Success:   &failed,
		Limit:     1000,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}

	failedAttempts := make(map[int]int)
	var flagged []int

	for _, event := range events {
		if event.UserID == nil {
			continue
		}
		userID := *event.UserID
		failedAttempts[userID]++
		if failedAttempts[userID] != m.threshold {
			continue
		}

		flagged = append(flagged, userID)
		m.log.Warn().Int("user_id", userID).Int("attempts", m.threshold).Msg("failed login threshold reached")
		m.logger.Log(&Event{
			Level:    LevelCritical,
			UserID:   &userID,
			Action:   ActionFailedLoginBurst,
			Resource: "auth",
			Success:  false,
			ErrorMsg: fmt.Sprintf("%d failed attempts detected", m.threshold),
		})
	}

	return flagged, nil
}

// LockedAccount is a locked user with its cooldown state at scan time
type LockedAccount struct {
	UserID      int
	Username    string
	CooldownEnd time.Time
	Remaining   time.Duration
	Elapsed     bool
}

// ScanLockedAccounts reports every locked account and whether its cooldown
// has elapsed. It does not unlock anything.
func (m *Monitor) ScanLockedAccounts(ctx context.Context) ([]LockedAccount, error) {
	users, err := m.users.ListLocked(ctx)
	if err != nil {
		return nil, err
	}

	now := m.now()
	report := make([]LockedAccount, 0, len(users))
	for _, u := range users {
		rec := lockout.RecordFor(u)
		entry := LockedAccount{UserID: u.ID, Username: u.Username}
		entry.CooldownEnd, _ = lockout.CooldownEndTime(rec, m.cooldown)
		remaining, locked := lockout.RemainingCooldown(rec, m.cooldown, now)
		entry.Remaining = remaining
		entry.Elapsed = !locked

		m.log.Debug().
			Int("user_id", u.ID).
			Time("cooldown_end", entry.CooldownEnd).
			Dur("remaining", remaining).
			Bool("elapsed", entry.Elapsed).
			Msg("locked account")
		report = append(report, entry)
	}

	if len(report) > 0 {
		m.logger.Log(&Event{
			Level:    LevelInfo,
			Action:   ActionLockedAccountScan,
			Resource: "auth",
			Success:  true,
			Metadata: fmt.Sprintf("%d locked accounts", len(report)),
		})
	}

	return report, nil
}

// DetectSuspiciousActivity runs all security checks
func (m *Monitor) DetectSuspiciousActivity(ctx context.Context) error {
	if _, err := m.DetectFailedLogins(); err != nil {
		m.log.Error().Err(err).Msg("failed to detect failed logins")
	}

	if _, err := m.ScanLockedAccounts(ctx); err != nil {
		m.log.Error().Err(err).Msg("failed to scan locked accounts")
	}

	return nil
}

// Run performs DetectSuspiciousActivity every interval until ctx is done
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.DetectSuspiciousActivity(ctx)
		}
	}
}
