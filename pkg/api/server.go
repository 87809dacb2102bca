// Package api exposes the auth and user management flows over HTTP.
package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/auth"
	"github.com/bridgehq/bridge-accounts/pkg/config"
	"github.com/bridgehq/bridge-accounts/pkg/httputil"
	"github.com/bridgehq/bridge-accounts/pkg/observability"
)

// maxBodyBytes caps request bodies; every payload here is a small JSON
// object.
const maxBodyBytes = 64 * 1024

// stateCookieTTL bounds the OAuth CSRF state cookie lifetime
const stateCookieTTL = 10 * time.Minute

// Server wires the auth service into an HTTP router
type Server struct {
	router  *mux.Router
	service *auth.Service
	google  auth.GoogleAuthenticator
	logger  *observability.Logger
	metrics *observability.Metrics

	cookieName   string
	cookieSecure bool
	clientURL    string
}

// ServerOption configures a Server
type ServerOption func(*Server)

// WithGoogleAuthenticator enables the Google login routes
func WithGoogleAuthenticator(g auth.GoogleAuthenticator) ServerOption {
	return func(s *Server) { s.google = g }
}

// WithServerMetrics attaches HTTP instrumentation
func WithServerMetrics(m *observability.Metrics) ServerOption {
	return func(s *Server) { s.metrics = m }
}

// NewServer builds the router with all routes and middleware attached
func NewServer(service *auth.Service, cfg *config.Config, logger *observability.Logger, opts ...ServerOption) *Server {
	s := &Server{
		router:       mux.NewRouter(),
		service:      service,
		logger:       logger,
		cookieName:   cfg.Auth.CookieName,
		cookieSecure: cfg.Auth.CookieSecure,
		clientURL:    cfg.Server.ClientURL,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

// Router returns the configured handler, ready to serve
func (s *Server) Router() http.Handler {
	middlewares := []func(http.Handler) http.Handler{
		httputil.RequestIDMiddleware,
		httputil.RecoveryMiddleware(s.logger),
		httputil.LoggingMiddleware(s.logger),
		httputil.CORSMiddleware([]string{s.clientURL}),
		httputil.MaxBytesMiddleware(maxBodyBytes),
	}
	if s.metrics != nil {
		middlewares = append(middlewares, s.metrics.HTTPMiddleware)
	}
	return httputil.Chain(middlewares...)(s.router)
}

func (s *Server) registerRoutes() {
	authRouter := s.router.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	authRouter.HandleFunc("/logout", s.handleLogout).Methods(http.MethodPost)
	authRouter.HandleFunc("/verify-email", s.handleVerifyEmail).Methods(http.MethodGet)
	authRouter.HandleFunc("/resend-verification", s.handleResendVerification).Methods(http.MethodPost)
	authRouter.HandleFunc("/forgot-password", s.handleForgotPassword).Methods(http.MethodPost)
	authRouter.HandleFunc("/reset-password", s.handleResetPassword).Methods(http.MethodPost)
	authRouter.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	authRouter.Handle("/me", s.requireAuth(http.HandlerFunc(s.handleMe))).Methods(http.MethodGet)

	if s.google != nil {
		authRouter.HandleFunc("/google", s.handleGoogleLogin).Methods(http.MethodGet)
		authRouter.HandleFunc("/google/callback", s.handleGoogleCallback).Methods(http.MethodGet)
	}

	userRouter := s.router.PathPrefix("/api/users").Subrouter()
	userRouter.Handle("/profile", s.requireAuth(http.HandlerFunc(s.handleGetProfile))).Methods(http.MethodGet)
	userRouter.Handle("/profile", s.requireAuth(http.HandlerFunc(s.handleUpdateProfile))).Methods(http.MethodPut)
	userRouter.Handle("/password", s.requireAuth(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPut)
	userRouter.Handle("/account", s.requireAuth(http.HandlerFunc(s.handleDeleteAccount))).Methods(http.MethodDelete)
	userRouter.Handle("", s.requireAuth(s.requireAdmin(http.HandlerFunc(s.handleListUsers)))).Methods(http.MethodGet)
}

// setSessionCookie attaches the httpOnly session cookie
func (s *Server) setSessionCookie(w http.ResponseWriter, sessionID string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearSessionCookie expires the session cookie
func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) sessionIDFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(s.cookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

// writeServiceError maps the service error taxonomy to HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, account.ErrValidation):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, account.ErrTokenInvalid):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, account.ErrAlreadyVerified):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, account.ErrInvalidCredentials):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, account.ErrAccountDeactivated):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, account.ErrUnauthorized):
		httputil.WriteUnauthorized(w, err.Error())
	case errors.Is(err, account.ErrForbidden):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, account.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, account.ErrConflict):
		httputil.WriteConflict(w, err.Error())
	default:
		httputil.WriteInternalError(w, "internal server error")
	}
}
