// Package notify defines the boundary to the email collaborator. The
// core treats delivery as best-effort: every send result is logged and
// deliberately discarded by the orchestrator, never failing the primary
// transaction.
package notify

import (
	"context"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/observability"
)

// Notifier sends account lifecycle emails
type Notifier interface {
	SendVerification(ctx context.Context, user *account.PublicUser, token string) error
	SendWelcome(ctx context.Context, user *account.PublicUser, federated bool) error
	SendPasswordReset(ctx context.Context, user *account.PublicUser, token string) error
	SendPasswordResetConfirmation(ctx context.Context, user *account.PublicUser) error
}

// LogNotifier is a Notifier that only logs. It stands in for the real
// email collaborator in development and tests.
type LogNotifier struct {
	logger *observability.Logger
}

// NewLogNotifier creates a log-only notifier
func NewLogNotifier(logger *observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) send(kind, email string) error {
	n.logger.WithFields(map[string]interface{}{
		"kind":  kind,
		"email": email,
	}).Info("notification dispatched")
	return nil
}

// SendVerification logs a verification email dispatch
func (n *LogNotifier) SendVerification(ctx context.Context, user *account.PublicUser, token string) error {
	return n.send("verification", user.Email)
}

// SendWelcome logs a welcome email dispatch
func (n *LogNotifier) SendWelcome(ctx context.Context, user *account.PublicUser, federated bool) error {
	return n.send("welcome", user.Email)
}

// SendPasswordReset logs a password reset email dispatch
func (n *LogNotifier) SendPasswordReset(ctx context.Context, user *account.PublicUser, token string) error {
	return n.send("password_reset", user.Email)
}

// SendPasswordResetConfirmation logs a reset confirmation dispatch
func (n *LogNotifier) SendPasswordResetConfirmation(ctx context.Context, user *account.PublicUser) error {
	return n.send("password_reset_confirmation", user.Email)
}
