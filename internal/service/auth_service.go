package service

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/amirk1998/accounts/internal/audit"
	"github.com/amirk1998/accounts/internal/database"
	"github.com/amirk1998/accounts/internal/lockout"
	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/internal/ratelimit"
	"github.com/amirk1998/accounts/internal/repository"
	"github.com/amirk1998/accounts/internal/security"
	"github.com/amirk1998/accounts/pkg/errors"
	"github.com/amirk1998/accounts/pkg/validator"
)

const (
	defaultMaxInvalidLogins = 5
	defaultSessionDuration  = 24 * time.Hour

	// fallbackDummyHash is used only if the dummy hash cannot be generated
	fallbackDummyHash = "$argon2id$v=19$m=65536,t=3,p=2$c29tZXNhbHQ$c29tZWhhc2g"
)

// AuthOptions tunes AuthService; zero values fall back to defaults
type AuthOptions struct {
	Cooldown             lockout.Config
	MaxInvalidLogins     int
	SessionDuration      time.Duration
	VerificationRequired bool
	DefaultLanguage      string
	Hasher               *security.PasswordHasher
	Now                  func() time.Time
}

type AuthService struct {
	userRepo    *repository.UserRepository
	sessionRepo *repository.SessionRepository
	txManager   *database.TransactionManager
	hasher      *security.PasswordHasher
	validator   *validator.Validator
	rateLimiter *ratelimit.RateLimiter
	auditLogger *audit.Logger
	log         zerolog.Logger
	opts        AuthOptions

	// dummyHash is verified for unknown usernames so they cost the same as known ones
	dummyHash string

	mu      sync.RWMutex
	current *models.Session
}

// NewAuthService creates a new authentication service
func NewAuthService(
	db *sql.DB,
	rateLimiter *ratelimit.RateLimiter,
	auditLogger *audit.Logger,
	log zerolog.Logger,
	opts AuthOptions,
) *AuthService {
	if opts.Cooldown.CooldownDuration <= 0 {
		opts.Cooldown.CooldownDuration = lockout.DefaultCooldownDuration
	}
	if opts.MaxInvalidLogins <= 0 {
		opts.MaxInvalidLogins = defaultMaxInvalidLogins
	}
	if opts.SessionDuration <= 0 {
		opts.SessionDuration = defaultSessionDuration
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	if opts.Hasher == nil {
		opts.Hasher = security.NewPasswordHasher()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	log = log.With().Str("component", "auth").Logger()

	dummy, err := opts.Hasher.Hash(uuid.NewString())
	if err != nil {
		log.Warn().Err(err).Msg("dummy hash generation failed, using fallback")
		dummy = fallbackDummyHash
	}

	return &AuthService{
		userRepo:    repository.NewUserRepository(db),
		sessionRepo: repository.NewSessionRepository(db),
		txManager:   database.NewTransactionManager(db),
		hasher:      opts.Hasher,
		validator:   validator.New(),
		rateLimiter: rateLimiter,
		auditLogger: auditLogger,
		log:         log,
		opts:        opts,
		dummyHash:   dummy,
	}
}

// Cooldown returns the lockout configuration in effect
func (s *AuthService) Cooldown() lockout.Config {
	return s.opts.Cooldown
}

func (s *AuthService) now() time.Time {
	return s.opts.Now().UTC()
}

func (s *AuthService) audit(event *audit.Event) {
	if event.Resource == "" {
		event.Resource = "auth"
	}
	if err := s.auditLogger.Log(event); err != nil {
		s.log.Error().Err(err).Str("action", event.Action).Msg("audit log failed")
	}
}

// Register validates req and stores a new user
func (s *AuthService) Register(ctx context.Context, req *models.CreateUserRequest) (*models.User, error) {
	if err := s.rateLimiter.CheckLimit("register"); err != nil {
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionRegister,
			ErrorMsg: "rate limit exceeded",
		})
		return nil, err
	}

	req.Username = s.validator.SanitizeString(req.Username)
	req.Email = s.validator.SanitizeString(req.Email)
	if req.Language == "" {
		req.Language = s.opts.DefaultLanguage
	}
	if req.EmailFormat == "" {
		req.EmailFormat = models.EmailFormatText
	}

	checks := []error{
		s.validator.ValidateUsername(req.Username),
		s.validator.ValidateEmail(req.Email),
		s.validator.ValidatePassword(req.Password),
		s.validator.ValidateLanguage(req.Language),
		s.validator.ValidateEmailFormat(req.EmailFormat),
	}
	for _, err := range checks {
		if err != nil {
			s.audit(&audit.Event{
				Level:    audit.LevelWarning,
				Action:   audit.ActionRegister,
				ErrorMsg: err.Error(),
				Metadata: req.Username,
			})
			return nil, err
		}
	}

	if _, err := s.userRepo.GetByUsername(ctx, req.Username); err == nil {
		return nil, s.duplicate(req.Username, "username already exists")
	} else if !stderrors.Is(err, errors.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}
	if _, err := s.userRepo.GetByEmail(ctx, req.Email); err == nil {
		return nil, s.duplicate(req.Username, "email already exists")
	} else if !stderrors.Is(err, errors.ErrUserNotFound) {
		return nil, fmt.Errorf("failed to check email: %w", err)
	}

	passwordHash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Username:             req.Username,
		Email:                req.Email,
		PasswordHash:         passwordHash,
		EncType:              s.hasher.EncType(),
		Language:             req.Language,
		EmailFormat:          req.EmailFormat,
		Admin:                req.Admin,
		Status:               models.UserStatusActive,
		VerificationRequired: s.opts.VerificationRequired,
	}
	if s.opts.VerificationRequired {
		user.Status = models.UserStatusPending
	}

	if err := s.userRepo.Create(ctx, user); err != nil {
		s.log.Error().Err(err).Str("username", req.Username).Msg("create user failed")
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &user.ID,
		Action:  audit.ActionRegister,
		Success: true,
	})
	s.log.Info().Int("user_id", user.ID).Str("status", string(user.Status)).Msg("user registered")

	return user, nil
}

func (s *AuthService) duplicate(username, msg string) error {
	s.audit(&audit.Event{
		Level:    audit.LevelWarning,
		Action:   audit.ActionRegister,
		ErrorMsg: msg,
		Metadata: username,
	})
	return errors.ErrUserAlreadyExists
}

// Login authenticates a user and starts a session.
//
// A locked account inside its cooldown is refused with a *errors.LockedError.
// Once the cooldown has elapsed the account is unlocked before the password
// is checked.
func (s *AuthService) Login(ctx context.Context, req *models.LoginRequest) (*models.LoginResponse, error) {
	rateLimitKey := fmt.Sprintf("login:%s", req.Username)
	if err := s.rateLimiter.CheckLimit(rateLimitKey); err != nil {
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionLoginRateLimited,
			ErrorMsg: "rate limit exceeded",
			Metadata: req.Username,
		})
		return nil, err
	}

	user, err := s.userRepo.GetByUsername(ctx, req.Username)
	if stderrors.Is(err, errors.ErrUserNotFound) {
		s.hasher.Verify(req.Password, s.dummyHash)
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			Action:   audit.ActionLoginUnknownUser,
			Metadata: req.Username,
		})
		return nil, errors.ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	now := s.now()

	if user.Status == models.UserStatusLocked {
		if err := s.checkCooldown(ctx, user, now); err != nil {
			return nil, err
		}
	}

	if err := s.checkStatus(user); err != nil {
		return nil, err
	}

	valid, err := s.hasher.Verify(req.Password, user.PasswordHash)
	if err != nil {
		s.audit(&audit.Event{
			Level:    audit.LevelError,
			UserID:   &user.ID,
			Action:   audit.ActionLoginInvalid,
			ErrorMsg: err.Error(),
		})
		return nil, fmt.Errorf("authentication failed: %w", err)
	}

	if !valid {
		return nil, s.recordInvalidLogin(ctx, user, now)
	}

	if err := s.userRepo.RecordLogin(ctx, user.ID, now); err != nil {
		return nil, err
	}
	user.LastLoginDate = &now
	user.InvalidLoginCount = 0
	user.LastInvalidLoginDate = nil
	s.rateLimiter.Reset(rateLimitKey)

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.rehash(ctx, user, req.Password, now)
	}

	session, err := s.startSession(ctx, user.ID, now)
	if err != nil {
		return nil, err
	}

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &user.ID,
		Action:  audit.ActionLoginSuccess,
		Success: true,
	})
	s.log.Info().Int("user_id", user.ID).Msg("login succeeded")

	return &models.LoginResponse{
		User:         user,
		SessionID:    session.ID,
		SessionToken: session.Token,
		ExpiresAt:    session.ExpiresAt,
	}, nil
}

// checkCooldown refuses a locked user inside the cooldown window and
// unlocks one whose window has passed.
func (s *AuthService) checkCooldown(ctx context.Context, user *models.User, now time.Time) error {
	rec := lockout.RecordFor(user)
	if remaining, locked := lockout.RemainingCooldown(rec, s.opts.Cooldown, now); locked {
		end, _ := lockout.CooldownEndTime(rec, s.opts.Cooldown)
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			UserID:   &user.ID,
			Action:   audit.ActionLoginLocked,
			ErrorMsg: fmt.Sprintf("cooldown ends %s", end.Format(time.RFC3339)),
		})
		return errors.NewLockedError(end, remaining)
	}

	if err := s.userRepo.Unlock(ctx, user.ID, now); err != nil {
		return fmt.Errorf("failed to unlock account: %w", err)
	}
	user.Status = models.UserStatusActive
	user.LockoutDate = nil
	user.InvalidLoginCount = 0
	user.LastInvalidLoginDate = nil

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &user.ID,
		Action:  audit.ActionCooldownElapsed,
		Success: true,
	})
	s.log.Info().Int("user_id", user.ID).Msg("cooldown elapsed, account unlocked")

	return nil
}

func (s *AuthService) checkStatus(user *models.User) error {
	var err error
	switch user.Status {
	case models.UserStatusActive:
		return nil
	case models.UserStatusPending:
		err = errors.ErrAccountPending
	case models.UserStatusSuspended:
		err = errors.ErrAccountSuspended
	case models.UserStatusArchived:
		err = errors.ErrAccountArchived
	default:
		err = errors.ErrUnauthorized
	}

	s.audit(&audit.Event{
		Level:    audit.LevelWarning,
		UserID:   &user.ID,
		Action:   audit.ActionLoginRefused,
		ErrorMsg: err.Error(),
	})
	return err
}

// recordInvalidLogin counts the failure and locks the account when the
// limit is reached. Both writes share one transaction. A concurrent request
// may have locked the account first; its lockout date then stands.
func (s *AuthService) recordInvalidLogin(ctx context.Context, user *models.User, now time.Time) error {
	var (
		count   int
		changed bool
		stored  *models.User
	)

	err := s.txManager.Execute(ctx, func(ctx context.Context, tx *sql.Tx) error {
		users := s.userRepo.WithTx(tx)

		var err error
		count, err = users.RecordInvalidLogin(ctx, user.ID, now)
		if err != nil {
			return err
		}

		if count < s.opts.MaxInvalidLogins {
			return nil
		}

		changed, err = users.Lock(ctx, user.ID, now)
		if err != nil || changed {
			return err
		}

		stored, err = users.GetByID(ctx, user.ID)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to record invalid login: %w", err)
	}

	user.InvalidLoginCount = count
	user.LastInvalidLoginDate = &now

	s.audit(&audit.Event{
		Level:    audit.LevelWarning,
		UserID:   &user.ID,
		Action:   audit.ActionLoginInvalid,
		Metadata: fmt.Sprintf("attempt %d of %d", count, s.opts.MaxInvalidLogins),
	})

	switch {
	case changed:
		user.Status = models.UserStatusLocked
		user.LockoutDate = &now

		s.audit(&audit.Event{
			Level:    audit.LevelCritical,
			UserID:   &user.ID,
			Action:   audit.ActionAccountLocked,
			ErrorMsg: fmt.Sprintf("account locked after %d failed attempts", count),
		})
		s.log.Warn().Int("user_id", user.ID).Int("attempts", count).Msg("account locked")
	case stored != nil:
		user.Status = stored.Status
		user.LockoutDate = stored.LockoutDate
	default:
		return errors.ErrInvalidCredentials
	}

	rec := lockout.RecordFor(user)
	remaining, locked := lockout.RemainingCooldown(rec, s.opts.Cooldown, now)
	if !locked {
		return errors.ErrInvalidCredentials
	}
	end, _ := lockout.CooldownEndTime(rec, s.opts.Cooldown)
	return errors.NewLockedError(end, remaining)
}

func (s *AuthService) rehash(ctx context.Context, user *models.User, password string, now time.Time) {
	hash, err := s.hasher.Hash(password)
	if err == nil {
		err = s.userRepo.UpdatePassword(ctx, user.ID, hash, now)
	}
	if err != nil {
		s.log.Warn().Err(err).Int("user_id", user.ID).Msg("password rehash failed")
		return
	}
	user.PasswordHash = hash
}

func (s *AuthService) startSession(ctx context.Context, userID int, now time.Time) (*models.Session, error) {
	token, err := s.generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session token: %w", err)
	}

	session := &models.Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Token:     token,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionDuration),
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.current = session
	s.mu.Unlock()

	return session, nil
}

// CurrentUserID returns the user of the active, unexpired session. A session
// revoked in the store, for example by an administrator, no longer counts.
func (s *AuthService) CurrentUserID(ctx context.Context) (int, bool) {
	s.mu.RLock()
	current := s.current
	s.mu.RUnlock()

	if current == nil || current.Expired(s.now()) {
		return 0, false
	}

	stored, err := s.sessionRepo.GetActiveByToken(ctx, current.Token)
	if err != nil {
		if !stderrors.Is(err, errors.ErrRecordNotFound) {
			s.log.Error().Err(err).Msg("session lookup failed")
		}
		return 0, false
	}
	if stored.UserID != current.UserID {
		return 0, false
	}
	return current.UserID, true
}

func (s *AuthService) currentSessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.current == nil {
		return ""
	}
	return s.current.ID
}

// Logout revokes the active session
func (s *AuthService) Logout(ctx context.Context) error {
	s.mu.Lock()
	session := s.current
	s.current = nil
	s.mu.Unlock()

	if session == nil {
		return errors.ErrNotLoggedIn
	}

	if err := s.sessionRepo.Revoke(ctx, session.ID); err != nil {
		return err
	}

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &session.UserID,
		Action:  audit.ActionLogout,
		Success: true,
	})
	return nil
}

// ChangePassword verifies the current password and stores a new one
func (s *AuthService) ChangePassword(ctx context.Context, userID int, req *models.ChangePasswordRequest) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(req.CurrentPassword, user.PasswordHash)
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if !valid {
		s.audit(&audit.Event{
			Level:    audit.LevelWarning,
			UserID:   &user.ID,
			Action:   audit.ActionPasswordChanged,
			ErrorMsg: "current password mismatch",
		})
		return errors.ErrInvalidCredentials
	}

	if err := s.validator.ValidatePassword(req.NewPassword); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(req.NewPassword)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.userRepo.UpdatePassword(ctx, user.ID, hash, s.now()); err != nil {
		return err
	}

	// other sessions of the user end with the old password
	if err := s.sessionRepo.RevokeAllForUser(ctx, user.ID, s.currentSessionID()); err != nil {
		return err
	}

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &user.ID,
		Action:  audit.ActionPasswordChanged,
		Success: true,
	})
	return nil
}

// Unlock lifts a lockout before its cooldown has elapsed
func (s *AuthService) Unlock(ctx context.Context, userID int) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status != models.UserStatusLocked {
		return errors.NewAppError(errors.ErrInvalidInput, "account is not locked", 400)
	}

	if err := s.userRepo.Unlock(ctx, userID, s.now()); err != nil {
		return err
	}
	s.rateLimiter.Reset(fmt.Sprintf("login:%s", user.Username))

	if err := s.sessionRepo.RevokeAllForUser(ctx, userID, ""); err != nil {
		return err
	}

	actor, _ := s.CurrentUserID(ctx)
	s.audit(&audit.Event{
		Level:    audit.LevelInfo,
		UserID:   &user.ID,
		Action:   audit.ActionAccountUnlocked,
		Success:  true,
		Metadata: fmt.Sprintf("unlocked by user %d", actor),
	})
	return nil
}

// generateSessionToken generates a secure random session token
func (s *AuthService) generateSessionToken() (string, error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}
