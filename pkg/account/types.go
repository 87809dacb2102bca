// Package account implements the credential store: persisted user records
// with hashed passwords, verification/reset tokens and Google federation
// identity, backed by PostgreSQL.
package account

import "time"

// Role represents a user's role
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// User is the persisted account record. Password hash and tokens never
// leave the service boundary; use PublicView for anything external.
type User struct {
	ID                int64
	Name              string
	Email             string
	PasswordHash      string // empty for federation-only accounts
	GoogleID          *string
	Avatar            *string
	EmailVerified     bool
	VerificationToken *string
	ResetToken        *string
	ResetTokenExpires *time.Time
	Role              Role
	IsActive          bool
	LastLogin         *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasPassword reports whether the account has a local password
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsAdmin reports whether the account has the admin role
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// PublicUser is the projection of a User that is safe to expose beyond
// the trust boundary.
type PublicUser struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Avatar        *string    `json:"avatar"`
	EmailVerified bool       `json:"emailVerified"`
	Role          Role       `json:"role"`
	CreatedAt     time.Time  `json:"createdAt"`
	LastLogin     *time.Time `json:"lastLogin"`
}

// PublicView projects out the password hash and tokens
func (u *User) PublicView() *PublicUser {
	return &PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Avatar:        u.Avatar,
		EmailVerified: u.EmailVerified,
		Role:          u.Role,
		CreatedAt:     u.CreatedAt,
		LastLogin:     u.LastLogin,
	}
}
