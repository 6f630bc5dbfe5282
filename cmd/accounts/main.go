package main

import (
	"bufio"
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/amirk1998/accounts/internal/account"
	"github.com/amirk1998/accounts/internal/audit"
	"github.com/amirk1998/accounts/internal/backup"
	"github.com/amirk1998/accounts/internal/config"
	"github.com/amirk1998/accounts/internal/database"
	"github.com/amirk1998/accounts/internal/lockout"
	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/internal/ratelimit"
	"github.com/amirk1998/accounts/internal/repository"
	"github.com/amirk1998/accounts/internal/service"
	"github.com/amirk1998/accounts/pkg/errors"
)

const timeLayout = "2006-01-02 15:04:05"

type Application struct {
	config         *config.Config
	db             *sql.DB
	authService    *service.AuthService
	accountService *service.AccountService
	auditLogger    *audit.Logger
	auditMonitor   *audit.Monitor
	backupMgr      *backup.Manager
	rateLimiter    *ratelimit.RateLimiter
}

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	fmt.Println("===========================================")
	fmt.Println("  Accounts - lockout and cooldown demo")
	fmt.Println("===========================================")
	fmt.Println()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApplication(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("initialize application")
	}
	defer app.cleanup()

	log.Info().Str("db", cfg.DBPath).Str("env", cfg.Environment).Msg("application initialized")

	fmt.Println("[OK] Database encrypted with SQLCipher")
	fmt.Printf("[OK] Lockout after %d invalid logins, cooldown %s\n", cfg.MaxInvalidLogins, cfg.CooldownDuration)
	if !cfg.UsersPackageEnabled {
		fmt.Println("[--] Profiles and groups disabled")
	}
	fmt.Println()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\n\n[Shutdown] Received shutdown signal...")
		cancel()
	}()

	go app.backupMgr.StartAutomatedBackups(ctx, cfg.BackupInterval)
	go app.rateLimiter.StartCleanupWorker(ctx, 1*time.Hour)
	go app.auditMonitor.Run(ctx, 5*time.Minute)

	app.runCLI(ctx)
}

// initializeApplication wires storage, services and workers
func initializeApplication(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Application, error) {
	db, err := database.Connect(ctx, database.DefaultConfig(cfg.DBPath, cfg.DBEncryptionKey))
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	auditLogger, err := audit.NewLogger(db, cfg.AuditLogPath, cfg.AuditAsyncMode, log)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit logger: %w", err)
	}

	cooldown := lockout.Config{CooldownDuration: cfg.CooldownDuration}
	rateLimiter := ratelimit.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)

	userRepo := repository.NewUserRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	groupRepo := repository.NewGroupRepository(db)
	sessionRepo := repository.NewSessionRepository(db)

	// Left as a nil interface when disabled so accounts see no directory.
	var directory account.Directory
	if cfg.UsersPackageEnabled {
		directory = repository.NewDirectory(profileRepo, groupRepo)
	}

	authService := service.NewAuthService(db, rateLimiter, auditLogger, log, service.AuthOptions{
		Cooldown:             cooldown,
		MaxInvalidLogins:     cfg.MaxInvalidLogins,
		SessionDuration:      cfg.SessionDuration,
		VerificationRequired: cfg.VerificationRequired,
		DefaultLanguage:      cfg.DefaultLanguage,
	})
	accountService := service.NewAccountService(
		userRepo, profileRepo, groupRepo, sessionRepo, directory, authService, cooldown, auditLogger, log,
	)

	backupMgr, err := backup.NewManager(db, cfg.BackupDir, cfg.DBEncryptionKey, cfg.BackupRetentionDays, log)
	if err != nil {
		auditLogger.Close()
		db.Close()
		return nil, fmt.Errorf("failed to initialize backup manager: %w", err)
	}

	return &Application{
		config:         cfg,
		db:             db,
		authService:    authService,
		accountService: accountService,
		auditLogger:    auditLogger,
		auditMonitor:   audit.NewMonitor(auditLogger, userRepo, cooldown, log),
		backupMgr:      backupMgr,
		rateLimiter:    rateLimiter,
	}, nil
}

// cleanup performs cleanup operations
func (app *Application) cleanup() {
	fmt.Println("\n[Cleanup] Shutting down gracefully...")

	if app.auditLogger != nil {
		app.auditLogger.Close()
	}

	if app.db != nil {
		app.db.Close()
	}

	fmt.Println("[Cleanup] Done")
}

// runCLI runs the interactive command-line interface
func (app *Application) runCLI(ctx context.Context) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		current, err := app.accountService.Current(ctx)
		loggedIn := err == nil
		if loggedIn {
			app.showMainMenu(current)
		} else {
			app.showAuthMenu()
		}

		fmt.Print("\nSelect option: ")
		if !scanner.Scan() {
			return
		}

		choice := strings.TrimSpace(scanner.Text())
		fmt.Println()

		var done bool
		if loggedIn {
			done = app.handleMainChoice(ctx, current, choice, scanner)
		} else {
			done = app.handleAuthChoice(ctx, choice, scanner)
		}
		if done {
			fmt.Println("Goodbye!")
			return
		}
	}
}

func (app *Application) showAuthMenu() {
	fmt.Println("\n--- Authentication Menu ---")
	fmt.Println("1. Register")
	fmt.Println("2. Login")
	fmt.Println("3. Exit")
}

func (app *Application) showMainMenu(current *account.Account) {
	fmt.Printf("\n--- Main Menu (%s) ---\n", current)
	fmt.Println("1. Show Account")
	fmt.Println("2. Set Profile")
	fmt.Println("3. Change Password")
	fmt.Println("4. Locked Accounts")
	fmt.Println("5. Unlock Account")
	fmt.Println("6. Manage Account")
	fmt.Println("7. Create Group")
	fmt.Println("8. Create Backup")
	fmt.Println("9. View Audit Logs")
	fmt.Println("10. Logout")
	fmt.Println("0. Exit")
}

// handleAuthChoice handles authentication menu choices and reports whether to exit
func (app *Application) handleAuthChoice(ctx context.Context, choice string, scanner *bufio.Scanner) bool {
	switch choice {
	case "1":
		app.handleRegister(ctx, scanner)
	case "2":
		app.handleLogin(ctx, scanner)
	case "3":
		return true
	default:
		fmt.Println("Invalid option")
	}
	return false
}

// handleMainChoice handles main menu choices and reports whether to exit
func (app *Application) handleMainChoice(ctx context.Context, current *account.Account, choice string, scanner *bufio.Scanner) bool {
	switch choice {
	case "1":
		app.handleShowAccount(ctx, current)
	case "2":
		app.handleSetProfile(ctx, current, scanner)
	case "3":
		app.handleChangePassword(ctx, current, scanner)
	case "4":
		app.handleLockedAccounts(ctx)
	case "5":
		app.handleUnlock(ctx, current, scanner)
	case "6":
		app.handleManageAccount(ctx, current, scanner)
	case "7":
		app.handleCreateGroup(ctx, current, scanner)
	case "8":
		app.handleCreateBackup(ctx, current)
	case "9":
		app.handleViewAuditLogs(current)
	case "10":
		app.handleLogout(ctx, current)
	case "0":
		return true
	default:
		fmt.Println("Invalid option")
	}
	return false
}

func prompt(scanner *bufio.Scanner, label string) string {
	fmt.Print(label)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func (app *Application) handleRegister(ctx context.Context, scanner *bufio.Scanner) {
	fmt.Println("=== User Registration ===")

	req := &models.CreateUserRequest{
		Username: prompt(scanner, "Username: "),
		Email:    prompt(scanner, "Email: "),
		Password: prompt(scanner, "Password: "),
		Language: prompt(scanner, fmt.Sprintf("Language (default %s): ", app.config.DefaultLanguage)),
		Admin:    strings.EqualFold(prompt(scanner, "Administrator? (yes/no): "), "yes"),
	}

	user, err := app.authService.Register(ctx, req)
	if err != nil {
		fmt.Printf("Registration failed: %v\n", err)
		return
	}

	fmt.Printf("✓ User registered successfully! (ID: %d, status: %s)\n", user.ID, user.Status)
}

func (app *Application) handleLogin(ctx context.Context, scanner *bufio.Scanner) {
	fmt.Println("=== User Login ===")

	req := &models.LoginRequest{
		Username: prompt(scanner, "Username: "),
		Password: prompt(scanner, "Password: "),
	}

	resp, err := app.authService.Login(ctx, req)
	var locked *errors.LockedError
	switch {
	case stderrors.As(err, &locked):
		fmt.Printf("Account locked. Try again in %s (at %s)\n",
			locked.Remaining.Round(time.Second), locked.Until.Local().Format(timeLayout))
		return
	case err != nil:
		fmt.Printf("Login failed: %v\n", err)
		return
	}

	acct, err := app.accountService.Get(ctx, resp.User.ID)
	if err != nil {
		fmt.Printf("Login failed: %v\n", err)
		return
	}

	fmt.Printf("✓ Login successful! Welcome, %s\n", acct.FriendlyName(ctx))
	if resp.User.PasswordResetRequired {
		fmt.Println("! Your password must be changed")
		app.handleChangePassword(ctx, acct, scanner)
	}
}

func (app *Application) handleLogout(ctx context.Context, current *account.Account) {
	if err := app.authService.Logout(ctx); err != nil {
		fmt.Printf("Logout failed: %v\n", err)
		return
	}
	fmt.Printf("✓ Goodbye, %s!\n", current.FriendlyName(ctx))
}

func (app *Application) handleShowAccount(ctx context.Context, current *account.Account) {
	fmt.Println("=== Account ===")
	fmt.Printf("Name: %s\n", current)
	fmt.Printf("Username: %s\n", current.Username)
	fmt.Printf("Email: %s\n", current.Email)
	fmt.Printf("Status: %s | Admin: %v\n", current.Status, current.Admin)
	fmt.Printf("Language: %s | Email format: %s\n", current.Language, current.EmailFormat)
	fmt.Printf("Created: %s\n", current.DateCreated.Local().Format(timeLayout))
	if current.LastLoginDate != nil {
		fmt.Printf("Last login: %s\n", current.LastLoginDate.Local().Format(timeLayout))
	}

	groups, err := current.Groups(ctx)
	if err != nil {
		fmt.Printf("Failed to load groups: %v\n", err)
		return
	}
	if len(groups) > 0 {
		handles := make([]string, 0, len(groups))
		for _, g := range groups {
			handles = append(handles, g.Handle)
		}
		fmt.Printf("Groups: %s\n", strings.Join(handles, ", "))
	}
}

func (app *Application) handleSetProfile(ctx context.Context, current *account.Account, scanner *bufio.Scanner) {
	req := &models.UpdateProfileRequest{}
	if first := prompt(scanner, "First name (press Enter to skip): "); first != "" {
		req.FirstName = &first
	}
	if last := prompt(scanner, "Last name (press Enter to skip): "); last != "" {
		req.LastName = &last
	}

	profile, err := app.accountService.UpdateProfile(ctx, current.ID, req)
	if err != nil {
		fmt.Printf("Failed to update profile: %v\n", err)
		return
	}

	fmt.Printf("✓ Profile updated: %s\n", profile.FullName())
}

func (app *Application) handleChangePassword(ctx context.Context, current *account.Account, scanner *bufio.Scanner) {
	req := &models.ChangePasswordRequest{
		CurrentPassword: prompt(scanner, "Current password: "),
		NewPassword:     prompt(scanner, "New password: "),
	}

	if err := app.authService.ChangePassword(ctx, current.ID, req); err != nil {
		fmt.Printf("Failed to change password: %v\n", err)
		return
	}

	fmt.Println("✓ Password changed")
}

func (app *Application) handleLockedAccounts(ctx context.Context) {
	locked, err := app.accountService.Locked(ctx)
	if err != nil {
		fmt.Printf("Failed to list locked accounts: %v\n", err)
		return
	}

	if len(locked) == 0 {
		fmt.Println("No locked accounts")
		return
	}

	now := time.Now()
	fmt.Println("=== Locked Accounts ===")
	for _, acct := range locked {
		if remaining, ok := acct.RemainingCooldown(now); ok {
			end, _ := acct.CooldownEndTime()
			fmt.Printf("[ID: %d] %s - %s left (until %s)\n",
				acct.ID, acct.Username, remaining.Round(time.Second), end.Local().Format(timeLayout))
			continue
		}
		fmt.Printf("[ID: %d] %s - cooldown elapsed, unlocks on next login\n", acct.ID, acct.Username)
	}
}

func (app *Application) handleUnlock(ctx context.Context, current *account.Account, scanner *bufio.Scanner) {
	if !current.Admin {
		fmt.Println("Only administrators can unlock accounts")
		return
	}

	userID, err := strconv.Atoi(prompt(scanner, "Enter User ID: "))
	if err != nil {
		fmt.Println("Invalid user ID")
		return
	}

	if err := app.authService.Unlock(ctx, userID); err != nil {
		fmt.Printf("Failed to unlock account: %v\n", err)
		return
	}

	fmt.Println("✓ Account unlocked")
}

func (app *Application) handleManageAccount(ctx context.Context, current *account.Account, scanner *bufio.Scanner) {
	if !current.Admin {
		fmt.Println("Only administrators can manage accounts")
		return
	}

	userID, err := strconv.Atoi(prompt(scanner, "Enter User ID: "))
	if err != nil {
		fmt.Println("Invalid user ID")
		return
	}

	target, err := app.accountService.Get(ctx, userID)
	if err != nil {
		fmt.Printf("Failed to load account: %v\n", err)
		return
	}
	fmt.Printf("%s (%s), status: %s\n", target, target.Username, target.Status)

	fmt.Println("1. Suspend")
	fmt.Println("2. Activate")
	fmt.Println("3. Archive")
	fmt.Println("4. Require Password Reset")

	switch prompt(scanner, "Select action: ") {
	case "1":
		err = app.accountService.Suspend(ctx, userID)
	case "2":
		err = app.accountService.Activate(ctx, userID)
	case "3":
		if !strings.EqualFold(prompt(scanner, "Are you sure? (yes/no): "), "yes") {
			fmt.Println("Cancelled")
			return
		}
		err = app.accountService.Archive(ctx, userID)
	case "4":
		err = app.accountService.RequirePasswordReset(ctx, userID)
	default:
		fmt.Println("Invalid option")
		return
	}

	if err != nil {
		fmt.Printf("Failed to update account: %v\n", err)
		return
	}
	fmt.Println("✓ Account updated")
}

func (app *Application) handleCreateGroup(ctx context.Context, current *account.Account, scanner *bufio.Scanner) {
	if !current.Admin {
		fmt.Println("Only administrators can manage groups")
		return
	}

	req := &models.CreateGroupRequest{
		Name:   prompt(scanner, "Group name: "),
		Handle: prompt(scanner, "Handle (lowercase letters and digits): "),
	}

	group, err := app.accountService.CreateGroup(ctx, req)
	if err != nil {
		fmt.Printf("Failed to create group: %v\n", err)
		return
	}
	fmt.Printf("✓ Group created (ID: %d)\n", group.ID)

	members := prompt(scanner, "Member user IDs, comma separated (press Enter to skip): ")
	for _, field := range strings.Split(members, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}

		userID, err := strconv.Atoi(field)
		if err != nil {
			fmt.Printf("Skipping invalid user ID %q\n", field)
			continue
		}

		if err := app.accountService.AddToGroup(ctx, group.ID, userID); err != nil {
			fmt.Printf("Failed to add user %d: %v\n", userID, err)
			continue
		}
		fmt.Printf("✓ Added user %d\n", userID)
	}
}

func (app *Application) handleCreateBackup(ctx context.Context, current *account.Account) {
	if !current.Admin {
		fmt.Println("Only administrators can create backups")
		return
	}

	fmt.Println("Creating encrypted backup...")

	path, err := app.backupMgr.CreateBackup(ctx)
	if err != nil {
		fmt.Printf("Backup failed: %v\n", err)
		return
	}

	snap, err := app.backupMgr.VerifyBackup(ctx, path)
	if err != nil {
		fmt.Printf("Warning: Backup verification failed: %v\n", err)
		return
	}

	fmt.Printf("✓ Backup created and verified: %s (%d users)\n", snap.Path, snap.Users)
}

func (app *Application) handleViewAuditLogs(current *account.Account) {
	fmt.Println("=== Recent Audit Logs ===")

	filters := audit.QueryFilters{Limit: 20}
	if !current.Admin {
		filters.UserID = &current.ID
	}

	events, err := app.auditLogger.QueryLogs(filters)
	if err != nil {
		fmt.Printf("Failed to query logs: %v\n", err)
		return
	}

	if len(events) == 0 {
		fmt.Println("No audit logs found")
		return
	}

	for _, event := range events {
		fmt.Printf("\n[%s] %s - %s\n",
			event.Timestamp.Local().Format(timeLayout),
			event.Level,
			event.Action,
		)
		fmt.Printf("Resource: %s | Success: %v\n", event.Resource, event.Success)
		if event.ErrorMsg != "" {
			fmt.Printf("Error: %s\n", event.ErrorMsg)
		}
		if event.Metadata != "" {
			fmt.Printf("Metadata: %s\n", event.Metadata)
		}
		fmt.Println("---")
	}
}
