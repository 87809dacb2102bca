package api

import (
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/bridgehq/bridge-accounts/pkg/account"
	"github.com/bridgehq/bridge-accounts/pkg/httputil"
)

// stateCookieName carries the OAuth CSRF state between the redirect to
// Google and the callback.
const stateCookieName = "bridge_oauth_state"

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"rememberMe"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type authResponse struct {
	Success bool                `json:"success"`
	Message string              `json:"message,omitempty"`
	Token   string              `json:"token,omitempty"`
	User    *account.PublicUser `json:"user,omitempty"`
}

type messageResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type statusResponse struct {
	Authenticated bool                `json:"authenticated"`
	User          *account.PublicUser `json:"user,omitempty"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.service.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.setSessionCookie(w, result.SessionID, result.SessionTTL)
	httputil.WriteCreated(w, authResponse{
		Success: true,
		Message: "registration successful, please check your email to verify your account",
		Token:   result.Token,
		User:    result.User,
	})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	result, err := s.service.Login(r.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	s.setSessionCookie(w, result.SessionID, result.SessionTTL)
	httputil.WriteSuccess(w, authResponse{
		Success: true,
		Message: "login successful",
		Token:   result.Token,
		User:    result.User,
	})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.service.Logout(r.Context(), s.sessionIDFromRequest(r))
	s.clearSessionCookie(w)
	httputil.WriteSuccess(w, messageResponse{Success: true, Message: "logged out"})
}

func (s *Server) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	verificationToken := r.URL.Query().Get("token")
	if err := s.service.VerifyEmail(r.Context(), verificationToken); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Success: true, Message: "email verified successfully"})
}

func (s *Server) handleResendVerification(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.service.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Success: true, Message: "verification email sent"})
}

func (s *Server) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.service.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	// Same body whether or not the email exists
	httputil.WriteSuccess(w, messageResponse{
		Success: true,
		Message: "if an account exists for this email, a reset link has been sent",
	})
}

func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := s.service.ResetPassword(r.Context(), req.Token, req.Password); err != nil {
		writeServiceError(w, err)
		return
	}
	httputil.WriteSuccess(w, messageResponse{Success: true, Message: "password reset successful"})
}

// handleStatus reports whether the caller is authenticated without
// demanding that they are.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	user, err := s.service.AuthenticateRequest(r.Context(), s.sessionIDFromRequest(r), bearerToken(r))
	if err != nil {
		httputil.WriteSuccess(w, statusResponse{Authenticated: false})
		return
	}
	httputil.WriteSuccess(w, statusResponse{Authenticated: true, User: user.PublicView()})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	httputil.WriteSuccess(w, authResponse{Success: true, User: user.PublicView()})
}

func (s *Server) handleGoogleLogin(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieTTL.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, s.google.AuthCodeURL(state), http.StatusFound)
}

func (s *Server) redirectLoginError(w http.ResponseWriter, r *http.Request, reason string) {
	http.Redirect(w, r, s.clientURL+"/login?error="+url.QueryEscape(reason), http.StatusFound)
}

func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	// Expire the state cookie regardless of outcome
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		s.redirectLoginError(w, r, "google_auth_denied")
		return
	}

	stateCookie, err := r.Cookie(stateCookieName)
	if err != nil || stateCookie.Value == "" || stateCookie.Value != r.URL.Query().Get("state") {
		s.redirectLoginError(w, r, "invalid_oauth_state")
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		s.redirectLoginError(w, r, "missing_authorization_code")
		return
	}

	profile, err := s.google.Exchange(r.Context(), code)
	if err != nil {
		s.logger.WithError(err).Warn("google code exchange failed")
		s.redirectLoginError(w, r, "google_auth_failed")
		return
	}

	result, err := s.service.CompleteGoogleLogin(r.Context(), profile)
	if err != nil {
		s.logger.WithError(err).Warn("google login failed")
		s.redirectLoginError(w, r, "google_auth_failed")
		return
	}

	s.setSessionCookie(w, result.SessionID, result.SessionTTL)
	http.Redirect(w, r, s.clientURL+"/auth/success?token="+url.QueryEscape(result.Token), http.StatusFound)
}
