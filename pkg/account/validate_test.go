package account

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("Alice@Example.COM"))
	assert.Equal(t, "alice@example.com", NormalizeEmail("  alice@example.com  "))
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		name    string
		email   string
		wantErr bool
	}{
		{"valid", "alice@example.com", false},
		{"valid with dots", "first.last@sub.example.org", false},
		{"valid with plus-free dash", "first-last@example.io", false},
		{"empty", "", true},
		{"missing at", "aliceexample.com", true},
		{"missing domain", "alice@", true},
		{"missing tld", "alice@example", true},
		{"spaces", "alice @example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEmail(tt.email)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrValidation)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePassword(t *testing.T) {
	assert.NoError(t, ValidatePassword("secret"))
	assert.ErrorIs(t, ValidatePassword("short"), ErrValidation)
	assert.ErrorIs(t, ValidatePassword(""), ErrValidation)
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("Alice"))
	assert.ErrorIs(t, ValidateName(""), ErrValidation)
	assert.ErrorIs(t, ValidateName("   "), ErrValidation)
	assert.ErrorIs(t, ValidateName(strings.Repeat("a", MaxNameLength+1)), ErrValidation)
}

func TestValidateNewUser(t *testing.T) {
	googleID := "google-sub-123"

	// Credential accounts need a password
	assert.NoError(t, ValidateNewUser("Alice", "alice@example.com", "secret", nil))
	assert.ErrorIs(t, ValidateNewUser("Alice", "alice@example.com", "", nil), ErrValidation)

	// Federation accounts do not
	assert.NoError(t, ValidateNewUser("Alice", "alice@example.com", "", &googleID))

	// Name and email are always checked
	assert.ErrorIs(t, ValidateNewUser("", "alice@example.com", "secret", nil), ErrValidation)
	assert.ErrorIs(t, ValidateNewUser("Alice", "not-an-email", "secret", nil), ErrValidation)
}
