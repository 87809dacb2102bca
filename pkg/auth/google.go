package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/bridgehq/bridge-accounts/pkg/account"
)

// CompleteGoogleLogin turns a verified Google identity into a logged-in
// session. Lookup order is fixed:
//
//  1. by federation subject: returning federated user, refresh profile
//  2. by email: existing credential account, link the identity to it
//  3. neither: provision a new account, verified and passwordless
//
// Linking by email is safe because Google has already verified control
// of the address.
func (s *Service) CompleteGoogleLogin(ctx context.Context, profile account.GoogleProfile) (result *LoginResult, err error) {
	defer func() { s.observe("google_login", err) }()

	if profile.Subject == "" || profile.Email == "" {
		return nil, fmt.Errorf("%w: google profile is missing subject or email", account.ErrValidation)
	}

	user, err := s.store.FindByGoogleID(ctx, profile.Subject)
	switch {
	case err == nil:
		if !user.IsActive {
			return nil, account.ErrAccountDeactivated
		}
		user, err = s.store.RefreshGoogleProfile(ctx, user.ID, profile)
		if err != nil {
			return nil, err
		}

	case errors.Is(err, account.ErrNotFound):
		user, err = s.findOrCreateByEmail(ctx, profile)
		if err != nil {
			return nil, err
		}

	default:
		return nil, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"subject": profile.Subject,
	}).Info("google login completed")

	return s.establish(ctx, user, false)
}

func (s *Service) findOrCreateByEmail(ctx context.Context, profile account.GoogleProfile) (*account.User, error) {
	existing, err := s.store.FindByEmail(ctx, profile.Email)
	switch {
	case err == nil:
		if !existing.IsActive {
			return nil, account.ErrAccountDeactivated
		}
		return s.store.LinkGoogle(ctx, existing.ID, profile)

	case errors.Is(err, account.ErrNotFound):
		subject := profile.Subject
		user, err := s.store.Create(ctx, account.CreateParams{
			Name:          profile.Name,
			Email:         profile.Email,
			GoogleID:      &subject,
			Avatar:        profile.Avatar,
			EmailVerified: true,
		})
		if err != nil {
			return nil, err
		}

		public := user.PublicView()
		s.dispatch("welcome", func(ctx context.Context) error {
			return s.notifier.SendWelcome(ctx, public, true)
		})
		return user, nil

	default:
		return nil, err
	}
}
