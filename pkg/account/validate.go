package account

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	// MinPasswordLength is the minimum accepted password length
	MinPasswordLength = 6
	// MaxNameLength caps the display name
	MaxNameLength = 100
)

var emailPattern = regexp.MustCompile(`^\w+([.-]?\w+)*@\w+([.-]?\w+)*(\.\w{2,})+$`)

// NormalizeEmail lowercases and trims an email address. Uniqueness is
// case-insensitive, so every email is normalized before it touches the
// store.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the email format
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrValidation)
	}
	if !emailPattern.MatchString(email) {
		return fmt.Errorf("%w: invalid email address", ErrValidation)
	}
	return nil
}

// ValidatePassword checks the minimum password length
func ValidatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrValidation, MinPasswordLength)
	}
	return nil
}

// ValidateName checks the display name
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("%w: name must not exceed %d characters", ErrValidation, MaxNameLength)
	}
	return nil
}

// ValidateNewUser runs the full validation pipeline for account creation.
// A password is required exactly when no federation identity is present.
func ValidateNewUser(name, email, password string, googleID *string) error {
	if err := ValidateName(name); err != nil {
		return err
	}
	if err := ValidateEmail(email); err != nil {
		return err
	}
	if googleID == nil {
		return ValidatePassword(password)
	}
	return nil
}
