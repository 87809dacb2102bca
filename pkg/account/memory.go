package account

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store used by tests and local development.
// It enforces the same uniqueness and single-use token semantics as the
// PostgreSQL store.
type MemoryStore struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]*User
}

// NewMemoryStore creates an empty in-memory credential store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nextID: 1,
		users:  make(map[int64]*User),
	}
}

func (s *MemoryStore) clone(u *User) *User {
	c := *u
	return &c
}

func (s *MemoryStore) findByEmailLocked(email string) *User {
	email = NormalizeEmail(email)
	for _, u := range s.users {
		if u.Email == email {
			return u
		}
	}
	return nil
}

// Create persists a new user
func (s *MemoryStore) Create(ctx context.Context, p CreateParams) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findByEmailLocked(p.Email) != nil {
		return nil, ErrConflict
	}

	now := time.Now()
	u := &User{
		ID:                s.nextID,
		Name:              p.Name,
		Email:             NormalizeEmail(p.Email),
		PasswordHash:      p.PasswordHash,
		GoogleID:          p.GoogleID,
		Avatar:            p.Avatar,
		EmailVerified:     p.EmailVerified,
		VerificationToken: p.VerificationToken,
		Role:              RoleUser,
		IsActive:          true,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.EmailVerified {
		u.LastLogin = &now
	}
	s.nextID++
	s.users[u.ID] = u
	return s.clone(u), nil
}

// FindByID looks a user up by id
func (s *MemoryStore) FindByID(ctx context.Context, id int64) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s.clone(u), nil
}

// FindByEmail matches case-insensitively
func (s *MemoryStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.findByEmailLocked(email)
	if u == nil {
		return nil, ErrNotFound
	}
	return s.clone(u), nil
}

// FindByGoogleID looks a user up by federation identity
func (s *MemoryStore) FindByGoogleID(ctx context.Context, googleID string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.GoogleID != nil && *u.GoogleID == googleID {
			return s.clone(u), nil
		}
	}
	return nil, ErrNotFound
}

// ConsumeVerificationToken atomically clears the token and sets the flag
func (s *MemoryStore) ConsumeVerificationToken(ctx context.Context, token string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.VerificationToken != nil && *u.VerificationToken == token {
			u.VerificationToken = nil
			u.EmailVerified = true
			u.UpdatedAt = time.Now()
			return s.clone(u), nil
		}
	}
	return nil, ErrTokenInvalid
}

// SetVerificationToken stores a fresh verification token
func (s *MemoryStore) SetVerificationToken(ctx context.Context, id int64, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.VerificationToken = &token
	u.UpdatedAt = time.Now()
	return nil
}

// SetResetToken stores a reset token with its expiry
func (s *MemoryStore) SetResetToken(ctx context.Context, id int64, token string, expires time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.ResetToken = &token
	u.ResetTokenExpires = &expires
	u.UpdatedAt = time.Now()
	return nil
}

// ConsumeResetToken atomically swaps the hash and clears the token
func (s *MemoryStore) ConsumeResetToken(ctx context.Context, token, newPasswordHash string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ResetToken != nil && *u.ResetToken == token {
			if u.ResetTokenExpires == nil || !u.ResetTokenExpires.After(time.Now()) {
				return nil, ErrTokenInvalid
			}
			u.PasswordHash = newPasswordHash
			u.ResetToken = nil
			u.ResetTokenExpires = nil
			u.UpdatedAt = time.Now()
			return s.clone(u), nil
		}
	}
	return nil, ErrTokenInvalid
}

// StampLogin records the login time
func (s *MemoryStore) StampLogin(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	u.UpdatedAt = now
	return nil
}

// UpdateProfile changes name and email
func (s *MemoryStore) UpdateProfile(ctx context.Context, id int64, name, email string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	if existing := s.findByEmailLocked(email); existing != nil && existing.ID != id {
		return nil, ErrConflict
	}
	u.Name = name
	u.Email = NormalizeEmail(email)
	u.UpdatedAt = time.Now()
	return s.clone(u), nil
}

// UpdatePasswordHash replaces the hash and clears any reset token
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.ResetToken = nil
	u.ResetTokenExpires = nil
	u.UpdatedAt = time.Now()
	return nil
}

// LinkGoogle attaches a federation identity to an existing account
func (s *MemoryStore) LinkGoogle(ctx context.Context, id int64, p GoogleProfile) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	subject := p.Subject
	u.GoogleID = &subject
	u.Name = p.Name
	if u.Avatar == nil {
		u.Avatar = p.Avatar
	}
	u.EmailVerified = true
	now := time.Now()
	u.LastLogin = &now
	u.UpdatedAt = now
	return s.clone(u), nil
}

// RefreshGoogleProfile updates name/avatar from a fresh OAuth profile
func (s *MemoryStore) RefreshGoogleProfile(ctx context.Context, id int64, p GoogleProfile) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Name = p.Name
	u.Avatar = p.Avatar
	u.EmailVerified = true
	now := time.Now()
	u.LastLogin = &now
	u.UpdatedAt = now
	return s.clone(u), nil
}

// Delete removes the user permanently
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

// ListActive returns active users, newest first
func (s *MemoryStore) ListActive(ctx context.Context) ([]*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	users := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		if u.IsActive {
			users = append(users, s.clone(u))
		}
	}
	// Newest first; ids are monotonic so sort by id descending
	for i := 0; i < len(users); i++ {
		for j := i + 1; j < len(users); j++ {
			if users[j].ID > users[i].ID {
				users[i], users[j] = users[j], users[i]
			}
		}
	}
	return users, nil
}

// PurgeExpiredResetTokens clears reset tokens whose expiry has passed
func (s *MemoryStore) PurgeExpiredResetTokens(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, u := range s.users {
		if u.ResetToken != nil && u.ResetTokenExpires != nil && u.ResetTokenExpires.Before(now) {
			u.ResetToken = nil
			u.ResetTokenExpires = nil
			n++
		}
	}
	return n, nil
}

// SetRole changes the user's role; used by tests to promote admins
func (s *MemoryStore) SetRole(ctx context.Context, id int64, role Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now()
	return nil
}

// SetActive toggles the active flag; used by tests to simulate
// deactivated accounts.
func (s *MemoryStore) SetActive(ctx context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.IsActive = active
	u.UpdatedAt = time.Now()
	return nil
}
