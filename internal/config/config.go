package config

import (
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Database configuration
	DBPath          string
	DBEncryptionKey string

	// Audit configuration
	AuditLogPath   string
	AuditAsyncMode bool

	// Backup configuration
	BackupDir           string
	BackupInterval      time.Duration
	BackupRetentionDays int

	// Rate limiting
	RateLimitRPS   int
	RateLimitBurst int

	// Account lockout
	CooldownDuration time.Duration
	MaxInvalidLogins int

	// Accounts
	UsersPackageEnabled  bool
	VerificationRequired bool
	DefaultLanguage      string
	SessionDuration      time.Duration

	// Application settings
	Environment string
	LogLevel    string
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (not required in production)
	godotenv.Load()

	cooldown, err := ParseDuration(getEnv("COOLDOWN_DURATION", "PT5M"))
	if err != nil {
		return nil, fmt.Errorf("invalid COOLDOWN_DURATION: %w", err)
	}

	session, err := ParseDuration(getEnv("SESSION_DURATION", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid SESSION_DURATION: %w", err)
	}

	backupInterval, err := ParseDuration(getEnv("BACKUP_INTERVAL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("invalid BACKUP_INTERVAL: %w", err)
	}

	config := &Config{
		DBPath:               getEnv("DB_PATH", "./data/accounts.db"),
		DBEncryptionKey:      getEnv("DB_ENCRYPTION_KEY", ""),
		AuditLogPath:         getEnv("AUDIT_LOG_PATH", "./logs/audit.log"),
		AuditAsyncMode:       getEnvAsBool("AUDIT_ASYNC_MODE", true),
		BackupDir:            getEnv("BACKUP_DIR", "./backups"),
		BackupInterval:       backupInterval,
		BackupRetentionDays:  getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		RateLimitRPS:         getEnvAsInt("RATE_LIMIT_REQUESTS_PER_SECOND", 10),
		RateLimitBurst:       getEnvAsInt("RATE_LIMIT_BURST", 20),
		CooldownDuration:     cooldown,
		MaxInvalidLogins:     getEnvAsInt("MAX_INVALID_LOGINS", 5),
		UsersPackageEnabled:  getEnvAsBool("USERS_PACKAGE_ENABLED", true),
		VerificationRequired: getEnvAsBool("VERIFICATION_REQUIRED", false),
		DefaultLanguage:      getEnv("DEFAULT_LANGUAGE", "en"),
		SessionDuration:      session,
		Environment:          getEnv("APP_ENV", "development"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}

	// Validate critical configuration
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate ensures all required configuration is present
func (c *Config) Validate() error {
	if c.DBEncryptionKey == "" {
		return fmt.Errorf("DB_ENCRYPTION_KEY is required")
	}

	if len(c.DBEncryptionKey) < 32 {
		return fmt.Errorf("DB_ENCRYPTION_KEY must be at least 32 characters")
	}

	if c.CooldownDuration <= 0 {
		return fmt.Errorf("COOLDOWN_DURATION must be positive")
	}

	if c.MaxInvalidLogins < 1 {
		return fmt.Errorf("MAX_INVALID_LOGINS must be at least 1")
	}

	if c.SessionDuration <= 0 {
		return fmt.Errorf("SESSION_DURATION must be positive")
	}

	if c.BackupInterval <= 0 {
		return fmt.Errorf("BACKUP_INTERVAL must be positive")
	}

	return nil
}

// isoDuration matches the time part of ISO-8601 durations plus whole days,
// e.g. PT15M, PT1H30M, P1DT12H, PT45S.
var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// ParseDuration accepts Go durations ("15m") and ISO-8601 durations ("PT15M")
func ParseDuration(s string) (time.Duration, error) {
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}

	m := isoDuration.FindStringSubmatch(s)
	if m == nil || s == "P" || strings.HasSuffix(s, "T") {
		return 0, fmt.Errorf("unrecognized duration %q", s)
	}

	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		n, err := strconv.ParseInt(m[i+1], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("unrecognized duration %q: %w", s, err)
		}
		if n > int64(math.MaxInt64/unit) {
			return 0, fmt.Errorf("duration %q out of range", s)
		}
		part := time.Duration(n) * unit
		if total > math.MaxInt64-part {
			return 0, fmt.Errorf("duration %q out of range", s)
		}
		total += part
	}

	return total, nil
}

// Helper functions to read environment variables
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}
