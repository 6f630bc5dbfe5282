package validator

import (
	"regexp"
	"strings"
	"unicode"

	playground "github.com/go-playground/validator/v10"

	"github.com/amirk1998/accounts/internal/models"
	"github.com/amirk1998/accounts/pkg/errors"
)

var (
	// Username: 3-20 alphanumeric characters and underscores
	usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)

	// Email: basic email validation
	emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

	// Language: ISO 639-1 with optional region, e.g. en or en_US
	languageRegex = regexp.MustCompile(`^[a-z]{2}([_-][A-Za-z]{2})?$`)

	// SQL injection keywords to block
	sqlKeywords = []string{
		"SELECT", "INSERT", "UPDATE", "DELETE", "DROP",
		"UNION", "WHERE", "OR", "AND", "--", "/*", "*/",
	}
)

type Validator struct {
	structs *playground.Validate
}

func New() *Validator {
	return &Validator{structs: playground.New()}
}

// ValidateStruct checks the `validate` tags of a request struct
func (v *Validator) ValidateStruct(s any) error {
	if err := v.structs.Struct(s); err != nil {
		return errors.NewAppError(errors.ErrInvalidInput, err.Error(), 400)
	}
	return nil
}

// ValidateUsername checks if username is valid and safe
func (v *Validator) ValidateUsername(username string) error {
	if len(username) < 3 || len(username) > 20 {
		return errors.ErrInvalidUsername
	}

	if !usernameRegex.MatchString(username) {
		return errors.ErrInvalidUsername
	}

	// Check for SQL injection attempts
	upperUsername := strings.ToUpper(username)
	for _, keyword := range sqlKeywords {
		if strings.Contains(upperUsername, keyword) {
			return errors.ErrInvalidUsername
		}
	}

	return nil
}

// ValidateEmail checks if email format is valid
func (v *Validator) ValidateEmail(email string) error {
	if len(email) == 0 || len(email) > 255 {
		return errors.ErrInvalidEmail
	}

	if !emailRegex.MatchString(email) {
		return errors.ErrInvalidEmail
	}

	return nil
}

// ValidatePassword checks password strength
func (v *Validator) ValidatePassword(password string) error {
	if len(password) < 12 {
		return errors.ErrWeakPassword
	}

	if len(password) > 128 {
		return errors.ErrWeakPassword
	}

	var (
		hasUpper   = false
		hasLower   = false
		hasNumber  = false
		hasSpecial = false
	)

	for _, char := range password {
		switch {
		case unicode.IsUpper(char):
			hasUpper = true
		case unicode.IsLower(char):
			hasLower = true
		case unicode.IsNumber(char):
			hasNumber = true
		case unicode.IsPunct(char) || unicode.IsSymbol(char):
			hasSpecial = true
		}
	}

	if !hasUpper || !hasLower || !hasNumber || !hasSpecial {
		return errors.ErrWeakPassword
	}

	return nil
}

// SanitizeString removes dangerous characters and null bytes
func (v *Validator) SanitizeString(input string) string {
	// Remove null bytes
	input = strings.ReplaceAll(input, "\x00", "")

	// Trim whitespace
	input = strings.TrimSpace(input)

	return input
}

// ValidateLanguage checks a locale code such as "en" or "en_US"
func (v *Validator) ValidateLanguage(language string) error {
	if !languageRegex.MatchString(language) {
		return errors.ErrInvalidLanguage
	}

	return nil
}

// ValidateEmailFormat checks the preferred email format
func (v *Validator) ValidateEmailFormat(format string) error {
	switch format {
	case models.EmailFormatText, models.EmailFormatHTML:
		return nil
	}

	return errors.ErrInvalidEmailFormat
}

// ValidateName validates a profile first or last name
func (v *Validator) ValidateName(name string) error {
	if len(name) > 100 {
		return errors.NewAppError(errors.ErrInvalidInput, "name too long (max 100 characters)", 400)
	}

	if strings.ContainsAny(name, "<>\x00") {
		return errors.NewAppError(errors.ErrInvalidInput, "name contains invalid characters", 400)
	}

	return nil
}
