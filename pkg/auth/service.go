// Package auth orchestrates the account lifecycle: registration,
// credential and federated login, email verification, password reset
// and profile management. It owns no storage or transport; it wires
// the credential store, session manager, token issuer and notifier
// together and enforces the flow invariants.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/async"
	"github.com/bridgehq/bridge-accounts/pkg/notify"
	"github.com/bridgehq/bridge-accounts/pkg/observability"
	"github.com/bridgehq/bridge-accounts/pkg/session"
	"github.com/bridgehq/bridge-accounts/pkg/token"
)

// notifyTimeout bounds each background notification dispatch
const notifyTimeout = 30 * time.Second

// Service implements the auth flows on top of the credential store,
// session manager, token issuer and notifier.
type Service struct {
	store    account.Store
	issuer   *token.Issuer
	sessions *session.Manager
	notifier notify.Notifier
	logger   *observability.Logger
	metrics  *observability.Metrics

	bcryptCost int
	resetTTL   time.Duration
	syncNotify bool
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithMetrics attaches Prometheus metrics to auth operations
func WithMetrics(m *observability.Metrics) ServiceOption {
	return func(s *Service) { s.metrics = m }
}

// WithBcryptCost overrides the password hashing cost
func WithBcryptCost(cost int) ServiceOption {
	return func(s *Service) { s.bcryptCost = cost }
}

// WithResetTokenTTL overrides the password reset token lifetime
func WithResetTokenTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) { s.resetTTL = ttl }
}

// WithSynchronousNotifications dispatches notifications inline instead
// of in a background goroutine. Tests use this to observe dispatches
// deterministically.
func WithSynchronousNotifications() ServiceOption {
	return func(s *Service) { s.syncNotify = true }
}

// NewService creates the auth orchestrator
func NewService(store account.Store, issuer *token.Issuer, sessions *session.Manager, notifier notify.Notifier, logger *observability.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		issuer:     issuer,
		sessions:   sessions,
		notifier:   notifier,
		logger:     logger,
		bcryptCost: account.DefaultBcryptCost,
		resetTTL:   time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoginResult carries everything a handler needs to finish a login:
// the public user view, a signed bearer token, and the session to put
// in the cookie.
type LoginResult struct {
	User       *account.PublicUser
	Token      string
	SessionID  string
	SessionTTL time.Duration
}

// dispatch runs a notification send off the request path. Delivery is
// best-effort: failures are logged and counted, never propagated. The
// background context deliberately outlives the request so an early
// client disconnect cannot cancel the send.
func (s *Service) dispatch(kind string, fn func(context.Context) error) {
	run := func(ctx context.Context) error {
		err := fn(ctx)
		if s.metrics != nil {
			outcome := "ok"
			if err != nil {
				outcome = "error"
			}
			s.metrics.NotificationsTotal.WithLabelValues(kind, outcome).Inc()
		}
		if err != nil {
			s.logger.WithError(err).WithField("kind", kind).Warn("notification dispatch failed")
		}
		return nil
	}

	if s.syncNotify {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		_ = run(ctx)
		return
	}
	async.SafeGo(context.Background(), notifyTimeout, "notify:"+kind, run)
}

func (s *Service) observe(operation string, err error) {
	if s.metrics != nil {
		s.metrics.ObserveAuthOperation(operation, err)
	}
}

func (s *Service) establish(ctx context.Context, u *account.User, rememberMe bool) (*LoginResult, error) {
	sessionID, err := s.sessions.Establish(ctx, u.ID, rememberMe)
	if err != nil {
		return nil, fmt.Errorf("failed to establish session: %w", err)
	}
	signed, err := s.issuer.IssueSessionToken(u.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}
	if s.metrics != nil {
		s.metrics.SessionsEstablishedTotal.Inc()
	}
	return &LoginResult{
		User:       u.PublicView(),
		Token:      signed,
		SessionID:  sessionID,
		SessionTTL: s.sessions.TTL(rememberMe),
	}, nil
}

// Register creates an unverified account with a hashed password, sends
// a verification email in the background and logs the new user in.
func (s *Service) Register(ctx context.Context, name, email, password string) (result *LoginResult, err error) {
	defer func() { s.observe("register", err) }()

	if err = account.ValidateNewUser(name, email, password, nil); err != nil {
		return nil, err
	}

	hash, err := account.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	verificationToken, err := s.issuer.IssueOpaqueToken()
	if err != nil {
		return nil, err
	}

	user, err := s.store.Create(ctx, account.CreateParams{
		Name:              name,
		Email:             email,
		PasswordHash:      hash,
		VerificationToken: &verificationToken,
	})
	if err != nil {
		return nil, err
	}

	public := user.PublicView()
	s.dispatch("verification", func(ctx context.Context) error {
		return s.notifier.SendVerification(ctx, public, verificationToken)
	})

	s.logger.WithFields(map[string]interface{}{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("user registered")

	return s.establish(ctx, user, false)
}

// Login authenticates by email and password. Unknown email and wrong
// password return the same error so callers cannot probe which emails
// exist. The welcome email is not login's concern: it is sent exactly
// once, at the verification transition or federated provisioning.
func (s *Service) Login(ctx context.Context, email, password string, rememberMe bool) (result *LoginResult, err error) {
	defer func() { s.observe("login", err) }()

	if email == "" || password == "" {
		return nil, fmt.Errorf("%w: email and password are required", account.ErrValidation)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil, account.ErrInvalidCredentials
		}
		return nil, err
	}

	if !account.VerifyPassword(user, password) {
		return nil, account.ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, account.ErrAccountDeactivated
	}

	if err := s.store.StampLogin(ctx, user.ID); err != nil {
		return nil, err
	}
	now := time.Now()
	user.LastLogin = &now

	s.logger.WithFields(map[string]interface{}{
		"user_id":     user.ID,
		"remember_me": rememberMe,
	}).Info("user logged in")

	return s.establish(ctx, user, rememberMe)
}

// Logout destroys the session. It always succeeds from the caller's
// point of view; a session that is already gone is fine, and a Redis
// failure is logged rather than surfaced.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	if err := s.sessions.Destroy(ctx, sessionID); err != nil {
		s.logger.WithError(err).Warn("failed to destroy session on logout")
		return
	}
	if s.metrics != nil {
		s.metrics.SessionsDestroyedTotal.Inc()
	}
}

// VerifyEmail consumes a verification token. Consumption is atomic, so
// a token can only ever succeed once; the success is therefore always
// the account's transition to verified and triggers the welcome email.
func (s *Service) VerifyEmail(ctx context.Context, verificationToken string) (err error) {
	defer func() { s.observe("verify_email", err) }()

	if verificationToken == "" {
		return fmt.Errorf("%w: verification token is required", account.ErrValidation)
	}

	user, err := s.store.ConsumeVerificationToken(ctx, verificationToken)
	if err != nil {
		return err
	}

	public := user.PublicView()
	s.dispatch("welcome", func(ctx context.Context) error {
		return s.notifier.SendWelcome(ctx, public, false)
	})

	s.logger.WithField("user_id", user.ID).Info("email verified")
	return nil
}

// ResendVerification issues a fresh verification token for an
// unverified account and emails it. The previous token stops working.
func (s *Service) ResendVerification(ctx context.Context, email string) (err error) {
	defer func() { s.observe("resend_verification", err) }()

	if email == "" {
		return fmt.Errorf("%w: email is required", account.ErrValidation)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user.EmailVerified {
		return account.ErrAlreadyVerified
	}

	verificationToken, err := s.issuer.IssueOpaqueToken()
	if err != nil {
		return err
	}
	if err := s.store.SetVerificationToken(ctx, user.ID, verificationToken); err != nil {
		return err
	}

	public := user.PublicView()
	s.dispatch("verification", func(ctx context.Context) error {
		return s.notifier.SendVerification(ctx, public, verificationToken)
	})
	return nil
}

// RequestPasswordReset stores a time-limited reset token and emails it.
// An unknown email returns success without doing anything, so the
// endpoint cannot be used to enumerate accounts.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) (err error) {
	defer func() { s.observe("forgot_password", err) }()

	if email == "" {
		return fmt.Errorf("%w: email is required", account.ErrValidation)
	}

	user, err := s.store.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return nil
		}
		return err
	}

	resetToken, err := s.issuer.IssueOpaqueToken()
	if err != nil {
		return err
	}
	expires := time.Now().Add(s.resetTTL)
	if err := s.store.SetResetToken(ctx, user.ID, resetToken, expires); err != nil {
		return err
	}

	public := user.PublicView()
	s.dispatch("password_reset", func(ctx context.Context) error {
		return s.notifier.SendPasswordReset(ctx, public, resetToken)
	})
	return nil
}

// ResetPassword consumes a reset token and replaces the password. The
// new password is validated before the token is touched, so a weak
// password does not burn the token.
func (s *Service) ResetPassword(ctx context.Context, resetToken, newPassword string) (err error) {
	defer func() { s.observe("reset_password", err) }()

	if resetToken == "" {
		return fmt.Errorf("%w: reset token is required", account.ErrValidation)
	}
	if err = account.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := account.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	user, err := s.store.ConsumeResetToken(ctx, resetToken, hash)
	if err != nil {
		return err
	}

	public := user.PublicView()
	s.dispatch("password_reset_confirmation", func(ctx context.Context) error {
		return s.notifier.SendPasswordResetConfirmation(ctx, public)
	})

	s.logger.WithField("user_id", user.ID).Info("password reset completed")
	return nil
}

// AuthenticateRequest resolves the caller's identity from a session id
// or a signed bearer token, preferring the session. A session that
// points at a deleted or deactivated account is destroyed on the spot
// so it cannot be replayed.
func (s *Service) AuthenticateRequest(ctx context.Context, sessionID, bearerToken string) (*account.User, error) {
	var userID int64
	if sessionID != "" {
		id, ok, err := s.sessions.Resolve(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if ok {
			userID = id
		}
	}
	if userID == 0 && bearerToken != "" {
		if id, err := s.issuer.VerifySessionToken(bearerToken); err == nil {
			userID = id
		}
	}
	if userID == 0 {
		return nil, account.ErrUnauthorized
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.Logout(ctx, sessionID)
			return nil, account.ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive {
		s.Logout(ctx, sessionID)
		return nil, account.ErrUnauthorized
	}
	return user, nil
}

// CurrentUser returns the public view of a user by id
func (s *Service) CurrentUser(ctx context.Context, userID int64) (*account.PublicUser, error) {
	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	return user.PublicView(), nil
}

// UpdateProfile changes the user's name and email
func (s *Service) UpdateProfile(ctx context.Context, userID int64, name, email string) (*account.PublicUser, error) {
	if err := account.ValidateName(name); err != nil {
		return nil, err
	}
	if err := account.ValidateEmail(email); err != nil {
		return nil, err
	}
	user, err := s.store.UpdateProfile(ctx, userID, name, email)
	if err != nil {
		return nil, err
	}
	return user.PublicView(), nil
}

// ChangePassword replaces the password of a logged-in user after
// re-checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID int64, currentPassword, newPassword string) (err error) {
	defer func() { s.observe("change_password", err) }()

	if currentPassword == "" || newPassword == "" {
		return fmt.Errorf("%w: current and new password are required", account.ErrValidation)
	}

	user, err := s.store.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if !account.VerifyPassword(user, currentPassword) {
		return fmt.Errorf("%w: current password is incorrect", account.ErrValidation)
	}
	if err = account.ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := account.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return s.store.UpdatePasswordHash(ctx, user.ID, hash)
}

// DeleteAccount removes the user and destroys the session that issued
// the request. Other sessions of the same user die at resolution time,
// when the middleware finds the user gone.
func (s *Service) DeleteAccount(ctx context.Context, userID int64, sessionID string) (err error) {
	defer func() { s.observe("delete_account", err) }()

	if err = s.store.Delete(ctx, userID); err != nil {
		return err
	}
	s.Logout(ctx, sessionID)
	s.logger.WithField("user_id", userID).Info("account deleted")
	return nil
}

// ListUsers returns public views of all active users, newest first
func (s *Service) ListUsers(ctx context.Context) ([]*account.PublicUser, error) {
	users, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	public := make([]*account.PublicUser, 0, len(users))
	for _, u := range users {
		public = append(public, u.PublicView())
	}
	return public, nil
}

// PurgeExpiredResetTokens clears reset tokens past their expiry and
// logs how many were dropped. Wired to the maintenance cron.
func (s *Service) PurgeExpiredResetTokens(ctx context.Context) error {
	n, err := s.store.PurgeExpiredResetTokens(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.WithField("purged", n).Info("expired reset tokens purged")
	}
	return nil
}
