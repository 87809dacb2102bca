package account

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/bridgehq/bridge-accounts/pkg/config"
)

const uniqueViolation = "23505"

// Open connects to PostgreSQL and configures the connection pool
func Open(cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return db, nil
}

// Migrate creates the users table and its indexes. Idempotent.
func Migrate(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id BIGSERIAL PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL,
			password_hash TEXT,
			google_id TEXT,
			avatar TEXT,
			email_verified BOOLEAN NOT NULL DEFAULT false,
			email_verification_token TEXT,
			password_reset_token TEXT,
			password_reset_expires TIMESTAMPTZ,
			role TEXT NOT NULL DEFAULT 'user',
			is_active BOOLEAN NOT NULL DEFAULT true,
			last_login TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_email_key ON users (LOWER(email))`,
		`CREATE UNIQUE INDEX IF NOT EXISTS users_google_id_key ON users (google_id) WHERE google_id IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS users_verification_token_idx ON users (email_verification_token) WHERE email_verification_token IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS users_reset_token_idx ON users (password_reset_token) WHERE password_reset_token IS NOT NULL`,
	}

	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// PostgresStore implements Store on top of PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed credential store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, name, email, password_hash, google_id, avatar,
	email_verified, email_verification_token, password_reset_token,
	password_reset_expires, role, is_active, last_login, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u            User
		passwordHash sql.NullString
		googleID     sql.NullString
		avatar       sql.NullString
		verifyToken  sql.NullString
		resetToken   sql.NullString
		resetExpires sql.NullTime
		lastLogin    sql.NullTime
		role         string
	)

	err := row.Scan(&u.ID, &u.Name, &u.Email, &passwordHash, &googleID, &avatar,
		&u.EmailVerified, &verifyToken, &resetToken, &resetExpires,
		&role, &u.IsActive, &lastLogin, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}

	u.PasswordHash = passwordHash.String
	u.Role = Role(role)
	if googleID.Valid {
		u.GoogleID = &googleID.String
	}
	if avatar.Valid {
		u.Avatar = &avatar.String
	}
	if verifyToken.Valid {
		u.VerificationToken = &verifyToken.String
	}
	if resetToken.Valid {
		u.ResetToken = &resetToken.String
	}
	if resetExpires.Valid {
		t := resetExpires.Time
		u.ResetTokenExpires = &t
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLogin = &t
	}

	return &u, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// Create persists a new user. The email is stored lowercased; the unique
// index resolves concurrent registrations, the loser gets ErrConflict.
func (s *PostgresStore) Create(ctx context.Context, p CreateParams) (*User, error) {
	email := NormalizeEmail(p.Email)

	var passwordHash sql.NullString
	if p.PasswordHash != "" {
		passwordHash = sql.NullString{String: p.PasswordHash, Valid: true}
	}

	row := s.db.QueryRowContext(ctx, `
		INSERT INTO users (name, email, password_hash, google_id, avatar,
			email_verified, email_verification_token, last_login)
		VALUES ($1, $2, $3, $4, $5, $6, $7, CASE WHEN $6 THEN NOW() ELSE NULL END)
		RETURNING `+userColumns,
		p.Name, email, passwordHash, nullString(p.GoogleID), nullString(p.Avatar),
		p.EmailVerified, nullString(p.VerificationToken))

	user, err := scanUser(row)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// FindByID looks a user up by primary key
func (s *PostgresStore) FindByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// FindByEmail matches case-insensitively
func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE LOWER(email) = $1`,
		NormalizeEmail(email))
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by email: %w", err)
	}
	return user, nil
}

// FindByGoogleID looks a user up by federation identity
func (s *PostgresStore) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE google_id = $1`, googleID)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by google id: %w", err)
	}
	return user, nil
}

// ConsumeVerificationToken is a single conditional update: the token is
// compared and cleared in one statement, so a replayed token matches no
// row and fails with ErrTokenInvalid.
func (s *PostgresStore) ConsumeVerificationToken(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET email_verified = true, email_verification_token = NULL, updated_at = NOW()
		WHERE email_verification_token = $1
		RETURNING `+userColumns, token)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume verification token: %w", err)
	}
	return user, nil
}

// SetVerificationToken stores a fresh verification token
func (s *PostgresStore) SetVerificationToken(ctx context.Context, id int64, token string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET email_verification_token = $2, updated_at = NOW()
		WHERE id = $1`, id, token)
	if err != nil {
		return fmt.Errorf("failed to set verification token: %w", err)
	}
	return requireRow(res)
}

// SetResetToken stores a reset token with its expiry
func (s *PostgresStore) SetResetToken(ctx context.Context, id int64, token string, expires time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_reset_token = $2, password_reset_expires = $3, updated_at = NOW()
		WHERE id = $1`, id, token, expires)
	if err != nil {
		return fmt.Errorf("failed to set reset token: %w", err)
	}
	return requireRow(res)
}

// ConsumeResetToken swaps the password hash and clears the token in one
// conditional update, filtered on expiry. Expired or replayed tokens
// match no row.
func (s *PostgresStore) ConsumeResetToken(ctx context.Context, token, newPasswordHash string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET password_hash = $2, password_reset_token = NULL,
			password_reset_expires = NULL, updated_at = NOW()
		WHERE password_reset_token = $1 AND password_reset_expires > NOW()
		RETURNING `+userColumns, token, newPasswordHash)

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrTokenInvalid
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume reset token: %w", err)
	}
	return user, nil
}

// StampLogin records the login time
func (s *PostgresStore) StampLogin(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET last_login = NOW(), updated_at = NOW()
		WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to stamp login: %w", err)
	}
	return requireRow(res)
}

// UpdateProfile changes name and email, re-checking email uniqueness
func (s *PostgresStore) UpdateProfile(ctx context.Context, id int64, name, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users SET name = $2, email = $3, updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, name, NormalizeEmail(email))

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == uniqueViolation {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	return user, nil
}

// UpdatePasswordHash replaces the password hash and clears any
// outstanding reset token
func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_hash = $2, password_reset_token = NULL,
			password_reset_expires = NULL, updated_at = NOW()
		WHERE id = $1`, id, hash)
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return requireRow(res)
}

// LinkGoogle attaches a federation identity to an existing account
func (s *PostgresStore) LinkGoogle(ctx context.Context, id int64, p GoogleProfile) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET google_id = $2, name = $3, avatar = COALESCE(avatar, $4),
			email_verified = true, last_login = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, p.Subject, p.Name, nullString(p.Avatar))

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to link google account: %w", err)
	}
	return user, nil
}

// RefreshGoogleProfile updates name/avatar from a fresh OAuth profile
func (s *PostgresStore) RefreshGoogleProfile(ctx context.Context, id int64, p GoogleProfile) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		UPDATE users
		SET name = $2, avatar = $3, email_verified = true,
			last_login = NOW(), updated_at = NOW()
		WHERE id = $1
		RETURNING `+userColumns, id, p.Name, nullString(p.Avatar))

	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to refresh google profile: %w", err)
	}
	return user, nil
}

// Delete removes the user permanently
func (s *PostgresStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	return requireRow(res)
}

// ListActive returns active users, newest first
func (s *PostgresStore) ListActive(ctx context.Context) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+userColumns+` FROM users
		WHERE is_active = true
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]*User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// PurgeExpiredResetTokens clears reset tokens whose expiry has passed
func (s *PostgresStore) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users
		SET password_reset_token = NULL, password_reset_expires = NULL, updated_at = NOW()
		WHERE password_reset_token IS NOT NULL AND password_reset_expires < NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to purge reset tokens: %w", err)
	}
	return res.RowsAffected()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
