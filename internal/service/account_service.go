package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/accounts/internal/account"
	"github.com/amirk1998/accounts/internal/audit"
	"github.com/amirk1998/accounts/internal/lockout"
	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/internal/repository"
	"github.com/amirk1998/accounts/pkg/errors"
	"github.com/amirk1998/accounts/pkg/validator"
)

// AccountService loads accounts with their optional collaborators attached.
// directory is nil when the users feature is disabled.
type AccountService struct {
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository
	groupRepo   *repository.GroupRepository
	sessionRepo *repository.SessionRepository
	directory   account.Directory
	session     account.Session
	cooldown    lockout.Config
	validator   *validator.Validator
	auditLogger *audit.Logger
	log         zerolog.Logger
	now         func() time.Time
}

// NewAccountService creates a new account service
func NewAccountService(
	userRepo *repository.UserRepository,
	profileRepo *repository.ProfileRepository,
	groupRepo *repository.GroupRepository,
	sessionRepo *repository.SessionRepository,
	directory account.Directory,
	session account.Session,
	cooldown lockout.Config,
	auditLogger *audit.Logger,
	log zerolog.Logger,
) *AccountService {
	return &AccountService{
		userRepo:    userRepo,
		profileRepo: profileRepo,
		groupRepo:   groupRepo,
		sessionRepo: sessionRepo,
		directory:   directory,
		session:     session,
		cooldown:    cooldown,
		validator:   validator.New(),
		auditLogger: auditLogger,
		log:         log.With().Str("component", "accounts").Logger(),
		now:         time.Now,
	}
}

func (s *AccountService) audit(event *audit.Event) {
	if event.Resource == "" {
		event.Resource = "accounts"
	}
	if err := s.auditLogger.Log(event); err != nil {
		s.log.Error().Err(err).Str("action", event.Action).Msg("audit log failed")
	}
}

func (s *AccountService) wrap(user *models.User) *account.Account {
	opts := []account.Option{
		account.WithCooldown(s.cooldown),
		account.WithSession(s.session),
	}
	if s.directory != nil {
		opts = append(opts, account.WithDirectory(s.directory))
	}
	return account.New(user, opts...)
}

// Get loads an account by user ID
func (s *AccountService) Get(ctx context.Context, userID int) (*account.Account, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.wrap(user), nil
}

// GetByUsername loads an account by username
func (s *AccountService) GetByUsername(ctx context.Context, username string) (*account.Account, error) {
	user, err := s.userRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	return s.wrap(user), nil
}

// Current loads the account of the logged-in user
func (s *AccountService) Current(ctx context.Context) (*account.Account, error) {
	userID, ok := s.session.CurrentUserID(ctx)
	if !ok {
		return nil, errors.ErrNotLoggedIn
	}
	return s.Get(ctx, userID)
}

// Locked lists locked accounts
func (s *AccountService) Locked(ctx context.Context) ([]*account.Account, error) {
	users, err := s.userRepo.ListLocked(ctx)
	if err != nil {
		return nil, err
	}

	accounts := make([]*account.Account, 0, len(users))
	for _, u := range users {
		accounts = append(accounts, s.wrap(u))
	}
	return accounts, nil
}

// UpdateProfile applies the non-nil fields of req to the user's profile
func (s *AccountService) UpdateProfile(ctx context.Context, userID int, req *models.UpdateProfileRequest) (*models.Profile, error) {
	if s.directory == nil {
		return nil, errors.NewAppError(errors.ErrUnauthorized, "user profiles are disabled", 403)
	}

	profile, err := s.profileRepo.GetByUserID(ctx, userID)
	if stderrors.Is(err, errors.ErrRecordNotFound) {
		profile = &models.Profile{UserID: userID}
	} else if err != nil {
		return nil, err
	}

	if req.FirstName != nil {
		name := s.validator.SanitizeString(*req.FirstName)
		if err := s.validator.ValidateName(name); err != nil {
			return nil, err
		}
		profile.FirstName = name
	}
	if req.LastName != nil {
		name := s.validator.SanitizeString(*req.LastName)
		if err := s.validator.ValidateName(name); err != nil {
			return nil, err
		}
		profile.LastName = name
	}

	if err := s.profileRepo.Upsert(ctx, profile); err != nil {
		return nil, err
	}

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &userID,
		Action:  audit.ActionProfileUpdated,
		Success: true,
	})

	return profile, nil
}

// CreateGroup creates a user group
func (s *AccountService) CreateGroup(ctx context.Context, req *models.CreateGroupRequest) (*models.Group, error) {
	req.Name = s.validator.SanitizeString(req.Name)
	req.Handle = s.validator.SanitizeString(req.Handle)
	if err := s.validator.ValidateStruct(req); err != nil {
		return nil, err
	}

	group := &models.Group{Name: req.Name, Handle: req.Handle}
	if err := s.groupRepo.Create(ctx, group); err != nil {
		return nil, err
	}

	s.log.Info().Int("group_id", group.ID).Str("handle", group.Handle).Msg("group created")
	return group, nil
}

// AddToGroup adds a user to a group
func (s *AccountService) AddToGroup(ctx context.Context, groupID, userID int) error {
	if _, err := s.userRepo.GetByID(ctx, userID); err != nil {
		return err
	}
	return s.groupRepo.AddMember(ctx, groupID, userID)
}

// Suspend blocks logins for a user and ends its sessions
func (s *AccountService) Suspend(ctx context.Context, userID int) error {
	return s.setStatus(ctx, userID, models.UserStatusSuspended)
}

// Activate moves a pending or suspended user back to active
func (s *AccountService) Activate(ctx context.Context, userID int) error {
	return s.setStatus(ctx, userID, models.UserStatusActive)
}

func (s *AccountService) setStatus(ctx context.Context, userID int, status models.UserStatus) error {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.Status == models.UserStatusLocked {
		return errors.NewAppError(errors.ErrAccountLocked, "account is locked, unlock it first", 409)
	}

	if err := s.userRepo.SetStatus(ctx, userID, status, s.now().UTC()); err != nil {
		return err
	}

	if status != models.UserStatusActive {
		if err := s.sessionRepo.RevokeAllForUser(ctx, userID, ""); err != nil {
			return err
		}
	}

	s.audit(&audit.Event{
		Level:    audit.LevelInfo,
		UserID:   &userID,
		Action:   audit.ActionStatusChanged,
		Success:  true,
		Metadata: fmt.Sprintf("%s -> %s", user.Status, status),
	})
	s.log.Info().Int("user_id", userID).Str("status", string(status)).Msg("account status changed")
	return nil
}

// Archive retires a user; the row stays for the audit trail
func (s *AccountService) Archive(ctx context.Context, userID int) error {
	if err := s.userRepo.Delete(ctx, userID); err != nil {
		return err
	}

	if err := s.sessionRepo.RevokeAllForUser(ctx, userID, ""); err != nil {
		return err
	}

	s.audit(&audit.Event{
		Level:    audit.LevelInfo,
		UserID:   &userID,
		Action:   audit.ActionStatusChanged,
		Success:  true,
		Metadata: "archived",
	})
	return nil
}

// RequirePasswordReset makes the user change password after the next login
func (s *AccountService) RequirePasswordReset(ctx context.Context, userID int) error {
	if err := s.userRepo.RequirePasswordReset(ctx, userID); err != nil {
		return err
	}

	s.audit(&audit.Event{
		Level:   audit.LevelInfo,
		UserID:  &userID,
		Action:  audit.ActionResetRequired,
		Success: true,
	})
	return nil
}
