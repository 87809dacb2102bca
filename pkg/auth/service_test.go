package auth_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/auth"
	"github.com/bridgehq/bridge-accounts/pkg/observability"
	"github.com/bridgehq/bridge-accounts/pkg/session"
	"github.com/bridgehq/bridge-accounts/pkg/token"
)

type sentMail struct {
	kind      string
	email     string
	token     string
	federated bool
}

// recordingNotifier captures dispatched mails for assertions
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
}

func (n *recordingNotifier) record(m sentMail) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, m)
}

func (n *recordingNotifier) SendVerification(ctx context.Context, user *account.PublicUser, token string) error {
	n.record(sentMail{kind: "verification", email: user.Email, token: token})
	return nil
}

func (n *recordingNotifier) SendWelcome(ctx context.Context, user *account.PublicUser, federated bool) error {
	n.record(sentMail{kind: "welcome", email: user.Email, federated: federated})
	return nil
}

func (n *recordingNotifier) SendPasswordReset(ctx context.Context, user *account.PublicUser, token string) error {
	n.record(sentMail{kind: "password_reset", email: user.Email, token: token})
	return nil
}

func (n *recordingNotifier) SendPasswordResetConfirmation(ctx context.Context, user *account.PublicUser) error {
	n.record(sentMail{kind: "password_reset_confirmation", email: user.Email})
	return nil
}

func (n *recordingNotifier) byKind(kind string) []sentMail {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []sentMail
	for _, m := range n.sent {
		if m.kind == kind {
			out = append(out, m)
		}
	}
	return out
}

func (n *recordingNotifier) lastToken(t *testing.T, kind string) string {
	t.Helper()
	mails := n.byKind(kind)
	require.NotEmpty(t, mails, "no %s mail recorded", kind)
	return mails[len(mails)-1].token
}

type fixture struct {
	store    *account.MemoryStore
	sessions *session.Manager
	mails    *recordingNotifier
	svc      *auth.Service
}

func newFixture(t *testing.T, opts ...auth.ServiceOption) *fixture {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	f := &fixture{
		store:    account.NewMemoryStore(),
		sessions: session.NewManager(client),
		mails:    &recordingNotifier{},
	}

	logger := observability.NewLogger(observability.ErrorLevel, io.Discard)
	issuer := token.NewIssuer("test-secret", "test")
	opts = append([]auth.ServiceOption{auth.WithSynchronousNotifications()}, opts...)
	f.svc = auth.NewService(f.store, issuer, f.sessions, f.mails, logger, opts...)
	return f
}

func TestRegisterCreatesUnverifiedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.False(t, result.User.EmailVerified)
	assert.Equal(t, account.RoleUser, result.User.Role)
	assert.NotEmpty(t, result.Token)
	assert.NotEmpty(t, result.SessionID)

	// Verification mail went out with a usable token
	mails := f.mails.byKind("verification")
	require.Len(t, mails, 1)
	assert.Equal(t, "alice@example.com", mails[0].email)
	assert.NotEmpty(t, mails[0].token)

	// The session is live immediately
	userID, ok, err := f.sessions.Resolve(ctx, result.SessionID)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, result.User.ID, userID)

	// The password is stored hashed, never plaintext
	stored, err := f.store.FindByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "hunter22", stored.PasswordHash)
	assert.True(t, account.VerifyPassword(stored, "hunter22"))
}

func TestRegisterRejectsBadInput(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "", "alice@example.com", "hunter22")
	assert.ErrorIs(t, err, account.ErrValidation)

	_, err = f.svc.Register(ctx, "Alice", "not-an-email", "hunter22")
	assert.ErrorIs(t, err, account.ErrValidation)

	_, err = f.svc.Register(ctx, "Alice", "alice@example.com", "short")
	assert.ErrorIs(t, err, account.ErrValidation)

	assert.Empty(t, f.mails.byKind("verification"))
}

func TestRegisterDuplicateEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, err = f.svc.Register(ctx, "Mallory", "Alice@Example.com", "hunter22")
	assert.ErrorIs(t, err, account.ErrConflict)
}

func TestLoginIndistinguishableFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	_, wrongPassword := f.svc.Login(ctx, "alice@example.com", "wrong-password", false)
	_, unknownEmail := f.svc.Login(ctx, "nobody@example.com", "hunter22", false)

	// Identical error for both probes
	assert.ErrorIs(t, wrongPassword, account.ErrInvalidCredentials)
	assert.ErrorIs(t, unknownEmail, account.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknownEmail.Error())
}

func TestLoginStampsLastLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	assert.Nil(t, reg.User.LastLogin)

	result, err := f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	require.NoError(t, err)
	assert.NotNil(t, result.User.LastLogin)
}

func TestLoginDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, f.store.SetActive(ctx, reg.User.ID, false))

	_, err = f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	assert.ErrorIs(t, err, account.ErrAccountDeactivated)
}

func TestLoginRememberMeExtendsSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	short, err := f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	require.NoError(t, err)
	long, err := f.svc.Login(ctx, "alice@example.com", "hunter22", true)
	require.NoError(t, err)

	assert.Equal(t, session.DefaultTTL, short.SessionTTL)
	assert.Equal(t, session.RememberMeTTL, long.SessionTTL)
	assert.NotEqual(t, short.SessionID, long.SessionID)
}

func TestVerifyEmailLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	verificationToken := f.mails.lastToken(t, "verification")

	require.NoError(t, f.svc.VerifyEmail(ctx, verificationToken))

	stored, err := f.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)

	// Welcome exactly once, on the verification transition
	welcomes := f.mails.byKind("welcome")
	require.Len(t, welcomes, 1)
	assert.False(t, welcomes[0].federated)

	// Replay is rejected and sends nothing further
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, verificationToken), account.ErrTokenInvalid)
	assert.Len(t, f.mails.byKind("welcome"), 1)

	// A later login does not repeat the welcome
	_, err = f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	require.NoError(t, err)
	assert.Len(t, f.mails.byKind("welcome"), 1)
}

func TestVerifyEmailUnknownToken(t *testing.T) {
	f := newFixture(t)
	assert.ErrorIs(t, f.svc.VerifyEmail(context.Background(), "bogus"), account.ErrTokenInvalid)
	assert.ErrorIs(t, f.svc.VerifyEmail(context.Background(), ""), account.ErrValidation)
}

func TestResendVerificationRotatesToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	original := f.mails.lastToken(t, "verification")

	require.NoError(t, f.svc.ResendVerification(ctx, "alice@example.com"))
	rotated := f.mails.lastToken(t, "verification")
	require.NotEqual(t, original, rotated)

	// The original token no longer works, the new one does
	assert.ErrorIs(t, f.svc.VerifyEmail(ctx, original), account.ErrTokenInvalid)
	assert.NoError(t, f.svc.VerifyEmail(ctx, rotated))
}

func TestResendVerificationAlreadyVerified(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyEmail(ctx, f.mails.lastToken(t, "verification")))

	assert.ErrorIs(t, f.svc.ResendVerification(ctx, "alice@example.com"), account.ErrAlreadyVerified)
	assert.ErrorIs(t, f.svc.ResendVerification(ctx, "nobody@example.com"), account.ErrNotFound)
}

func TestForgotPasswordUnknownEmailStaysSilent(t *testing.T) {
	f := newFixture(t)

	// Success with no mail: the response must not reveal whether the
	// account exists
	require.NoError(t, f.svc.RequestPasswordReset(context.Background(), "nobody@example.com"))
	assert.Empty(t, f.mails.byKind("password_reset"))
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))
	resetToken := f.mails.lastToken(t, "password_reset")

	// A weak replacement fails validation without consuming the token
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "short"), account.ErrValidation)

	require.NoError(t, f.svc.ResetPassword(ctx, resetToken, "correct horse"))
	assert.Len(t, f.mails.byKind("password_reset_confirmation"), 1)

	// Old credential dead, new one live
	_, err = f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@example.com", "correct horse", false)
	assert.NoError(t, err)

	// The token is single-use
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "another pass"), account.ErrTokenInvalid)
}

func TestPasswordResetTokenExpires(t *testing.T) {
	f := newFixture(t, auth.WithResetTokenTTL(10*time.Millisecond))
	ctx := context.Background()

	_, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))
	resetToken := f.mails.lastToken(t, "password_reset")

	time.Sleep(20 * time.Millisecond)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "correct horse"), account.ErrTokenInvalid)
}

func TestGoogleLoginProvisionsVerifiedUser(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	avatar := "https://example.com/alice.png"
	profile := account.GoogleProfile{
		Subject: "google-sub-1",
		Name:    "Alice",
		Email:   "alice@example.com",
		Avatar:  &avatar,
	}

	result, err := f.svc.CompleteGoogleLogin(ctx, profile)
	require.NoError(t, err)
	assert.True(t, result.User.EmailVerified)
	assert.NotNil(t, result.User.LastLogin)

	// Federated accounts have no local password
	stored, err := f.store.FindByID(ctx, result.User.ID)
	require.NoError(t, err)
	assert.False(t, stored.HasPassword())

	welcomes := f.mails.byKind("welcome")
	require.Len(t, welcomes, 1)
	assert.True(t, welcomes[0].federated)

	// Returning visit resolves the same account and sends nothing new
	again, err := f.svc.CompleteGoogleLogin(ctx, profile)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, again.User.ID)
	assert.Len(t, f.mails.byKind("welcome"), 1)
}

func TestGoogleLoginLinksExistingAccountByEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.False(t, reg.User.EmailVerified)

	result, err := f.svc.CompleteGoogleLogin(ctx, account.GoogleProfile{
		Subject: "google-sub-1",
		Name:    "Alice G",
		Email:   "Alice@Example.com",
	})
	require.NoError(t, err)

	// Same account, now linked and verified
	assert.Equal(t, reg.User.ID, result.User.ID)
	assert.True(t, result.User.EmailVerified)

	stored, err := f.store.FindByGoogleID(ctx, "google-sub-1")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, stored.ID)

	// The local password still works after linking
	_, err = f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	assert.NoError(t, err)
}

func TestGoogleLoginRejectsIncompleteProfile(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CompleteGoogleLogin(context.Background(), account.GoogleProfile{Subject: "sub"})
	assert.ErrorIs(t, err, account.ErrValidation)

	_, err = f.svc.CompleteGoogleLogin(context.Background(), account.GoogleProfile{Email: "a@b.co"})
	assert.ErrorIs(t, err, account.ErrValidation)
}

func TestAuthenticateRequest(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	// By session cookie
	user, err := f.svc.AuthenticateRequest(ctx, result.SessionID, "")
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)

	// By bearer token
	user, err = f.svc.AuthenticateRequest(ctx, "", result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.User.ID, user.ID)

	// Neither
	_, err = f.svc.AuthenticateRequest(ctx, "", "")
	assert.ErrorIs(t, err, account.ErrUnauthorized)
}

func TestAuthenticateRequestDestroysStaleSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	// The account disappears behind the session's back
	require.NoError(t, f.store.Delete(ctx, result.User.ID))

	_, err = f.svc.AuthenticateRequest(ctx, result.SessionID, "")
	assert.ErrorIs(t, err, account.ErrUnauthorized)

	// The session was destroyed, not just rejected
	_, ok, err := f.sessions.Resolve(ctx, result.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAuthenticateRequestDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, f.store.SetActive(ctx, result.User.ID, false))

	_, err = f.svc.AuthenticateRequest(ctx, result.SessionID, "")
	assert.ErrorIs(t, err, account.ErrUnauthorized)
}

func TestLogoutDestroysSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	result, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	f.svc.Logout(ctx, result.SessionID)
	_, ok, err := f.sessions.Resolve(ctx, result.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	// Logging out twice is fine
	f.svc.Logout(ctx, result.SessionID)
}

func TestChangePassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	err = f.svc.ChangePassword(ctx, reg.User.ID, "wrong-password", "correct horse")
	assert.ErrorIs(t, err, account.ErrValidation)

	err = f.svc.ChangePassword(ctx, reg.User.ID, "hunter22", "short")
	assert.ErrorIs(t, err, account.ErrValidation)

	require.NoError(t, f.svc.ChangePassword(ctx, reg.User.ID, "hunter22", "correct horse"))

	_, err = f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "alice@example.com", "correct horse", false)
	assert.NoError(t, err)
}

func TestChangePasswordClearsPendingReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))
	resetToken := f.mails.lastToken(t, "password_reset")

	require.NoError(t, f.svc.ChangePassword(ctx, reg.User.ID, "hunter22", "correct horse"))

	// The outstanding reset token died with the change
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, resetToken, "mallory pass"), account.ErrTokenInvalid)
}

func TestUpdateProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	updated, err := f.svc.UpdateProfile(ctx, reg.User.ID, "Alice Cooper", "alice.cooper@example.com")
	require.NoError(t, err)
	assert.Equal(t, "Alice Cooper", updated.Name)
	assert.Equal(t, "alice.cooper@example.com", updated.Email)

	_, err = f.svc.UpdateProfile(ctx, reg.User.ID, "", "alice@example.com")
	assert.ErrorIs(t, err, account.ErrValidation)

	// Cannot steal another account's email
	other, err := f.svc.Register(ctx, "Bob", "bob@example.com", "hunter22")
	require.NoError(t, err)
	_, err = f.svc.UpdateProfile(ctx, other.User.ID, "Bob", "alice.cooper@example.com")
	assert.ErrorIs(t, err, account.ErrConflict)
}

func TestDeleteAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteAccount(ctx, reg.User.ID, reg.SessionID))

	_, ok, err := f.sessions.Resolve(ctx, reg.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.svc.Login(ctx, "alice@example.com", "hunter22", false)
	assert.ErrorIs(t, err, account.ErrInvalidCredentials)
}

func TestListUsersExcludesDeactivated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	alice, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	bob, err := f.svc.Register(ctx, "Bob", "bob@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, f.store.SetActive(ctx, alice.User.ID, false))

	users, err := f.svc.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, bob.User.ID, users[0].ID)
}

func TestPurgeExpiredResetTokens(t *testing.T) {
	f := newFixture(t, auth.WithResetTokenTTL(10*time.Millisecond))
	ctx := context.Background()

	reg, err := f.svc.Register(ctx, "Alice", "alice@example.com", "hunter22")
	require.NoError(t, err)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "alice@example.com"))

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, f.svc.PurgeExpiredResetTokens(ctx))

	stored, err := f.store.FindByID(ctx, reg.User.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ResetToken)
}
