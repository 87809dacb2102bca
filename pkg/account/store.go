package account

import (
	"context"
	"time"
)

// CreateParams holds the inputs for account creation. PasswordHash must
// already be hashed; the store never sees plaintext.
type CreateParams struct {
	Name              string
	Email             string
	PasswordHash      string
	GoogleID          *string
	Avatar            *string
	EmailVerified     bool
	VerificationToken *string
}

// GoogleProfile is the subset of an OAuth profile the store needs to
// link or refresh a federated account.
type GoogleProfile struct {
	Subject string
	Name    string
	Email   string
	Avatar  *string
}

// Store is the credential store contract. Implementations must enforce
// case-insensitive email uniqueness and make token consumption atomic
// (compare-and-clear in a single conditional update) so a token can be
// used at most once even under concurrent calls.
type Store interface {
	// Create persists a new user. Returns ErrConflict if the email is
	// already registered (case-insensitive).
	Create(ctx context.Context, p CreateParams) (*User, error)

	// FindByID returns ErrNotFound if no user exists
	FindByID(ctx context.Context, id int64) (*User, error)

	// FindByEmail matches case-insensitively; returns ErrNotFound
	FindByEmail(ctx context.Context, email string) (*User, error)

	// FindByGoogleID returns ErrNotFound if no user carries the id
	FindByGoogleID(ctx context.Context, googleID string) (*User, error)

	// ConsumeVerificationToken atomically clears the token and marks the
	// email verified. Returns ErrTokenInvalid when the token matches no
	// user, including replays of an already-consumed token.
	ConsumeVerificationToken(ctx context.Context, token string) (*User, error)

	// SetVerificationToken stores a fresh verification token
	SetVerificationToken(ctx context.Context, id int64, token string) error

	// SetResetToken stores a reset token with its expiry
	SetResetToken(ctx context.Context, id int64, token string, expires time.Time) error

	// ConsumeResetToken atomically swaps the password hash and clears the
	// reset token, but only while the token is unexpired. Returns
	// ErrTokenInvalid otherwise.
	ConsumeResetToken(ctx context.Context, token, newPasswordHash string) (*User, error)

	// StampLogin records the login time
	StampLogin(ctx context.Context, id int64) error

	// UpdateProfile changes name and email, re-checking email uniqueness.
	// Returns ErrConflict if another user holds the email.
	UpdateProfile(ctx context.Context, id int64, name, email string) (*User, error)

	// UpdatePasswordHash replaces the password hash and clears any
	// outstanding reset token
	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// LinkGoogle attaches a federation identity to an existing account,
	// marking the email verified
	LinkGoogle(ctx context.Context, id int64, p GoogleProfile) (*User, error)

	// RefreshGoogleProfile updates name/avatar from a fresh OAuth profile
	RefreshGoogleProfile(ctx context.Context, id int64, p GoogleProfile) (*User, error)

	// Delete removes the user permanently
	Delete(ctx context.Context, id int64) error

	// ListActive returns active users, newest first
	ListActive(ctx context.Context) ([]*User, error)

	// PurgeExpiredResetTokens clears reset tokens whose expiry has passed,
	// returning the number of rows touched
	PurgeExpiredResetTokens(ctx context.Context) (int64, error)
}
