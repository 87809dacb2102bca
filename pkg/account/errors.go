package account

import "errors"

// Error taxonomy for the account and auth layers. Handlers map these to
// HTTP statuses; anything not in this list surfaces as a generic 500.
var (
	// ErrValidation indicates malformed or missing input the client can fix
	ErrValidation = errors.New("validation failed")

	// ErrConflict indicates an email uniqueness violation
	ErrConflict = errors.New("a user with this email already exists")

	// ErrInvalidCredentials is returned for both unknown email and wrong
	// password so the two cases are indistinguishable to the caller
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrTokenInvalid indicates an unknown, consumed, or expired token
	ErrTokenInvalid = errors.New("invalid or expired token")

	// ErrAlreadyVerified indicates a resend request for a verified email
	ErrAlreadyVerified = errors.New("email is already verified")

	// ErrAccountDeactivated indicates login against a deactivated account
	ErrAccountDeactivated = errors.New("account is deactivated")

	// ErrNotFound indicates the referenced user does not exist
	ErrNotFound = errors.New("user not found")

	// ErrUnauthorized indicates a missing or expired session
	ErrUnauthorized = errors.New("authentication required")

	// ErrForbidden indicates a failed role check
	ErrForbidden = errors.New("admin access required")
)
